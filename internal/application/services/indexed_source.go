package services

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/referral-dashboard/internal/domain/entities"
	"github.com/bimakw/referral-dashboard/internal/domain/repositories"
	"github.com/bimakw/referral-dashboard/internal/domain/units"
	"github.com/bimakw/referral-dashboard/internal/infrastructure/metrics"
)

// Ensure IndexedSource implements HistorySource
var _ repositories.HistorySource = (*IndexedSource)(nil)

// IndexedSource builds summaries from the indexing service of every network
type IndexedSource struct {
	indexes        []repositories.UserIndex
	nativeDecimals map[entities.Chain]int
	logger         *zap.Logger
}

// NewIndexedSource creates an indexed history source.
// nativeDecimals maps a network to the decimals of its native currency.
func NewIndexedSource(indexes []repositories.UserIndex, nativeDecimals map[entities.Chain]int, logger *zap.Logger) *IndexedSource {
	return &IndexedSource{
		indexes:        indexes,
		nativeDecimals: nativeDecimals,
		logger:         logger,
	}
}

// Source returns DataSourceIndexed
func (s *IndexedSource) Source() entities.DataSource {
	return entities.DataSourceIndexed
}

// settledUser is the individual outcome of one network's query
type settledUser struct {
	chain entities.Chain
	user  *entities.IndexedUser
	err   error
}

// FetchSummary queries every network concurrently and combines whatever answered
func (s *IndexedSource) FetchSummary(ctx context.Context, address string) (*entities.UserReferralSummary, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", entities.ErrInvalidAddress, address)
	}
	address = strings.ToLower(address)

	start := time.Now()
	defer func() {
		metrics.FetchDuration.WithLabelValues(string(entities.DataSourceIndexed)).Observe(time.Since(start).Seconds())
	}()

	// One slot per network; a failed query never cancels the others
	results := make([]settledUser, len(s.indexes))
	var wg sync.WaitGroup
	for i, index := range s.indexes {
		wg.Add(1)
		go func(i int, index repositories.UserIndex) {
			defer wg.Done()
			user, err := index.QueryUser(ctx, address)
			results[i] = settledUser{chain: index.Chain(), user: user, err: err}
		}(i, index)
	}
	wg.Wait()

	users := make([]*entities.IndexedUser, 0, len(results))
	answered := 0
	for _, r := range results {
		if r.err != nil {
			s.logger.Warn("Indexed query failed, skipping network",
				zap.String("chain", string(r.chain)),
				zap.String("address", address),
				zap.Error(r.err),
			)
			metrics.NetworkFailures.WithLabelValues(string(entities.DataSourceIndexed), string(r.chain)).Inc()
			continue
		}
		answered++
		users = append(users, r.user)
	}

	if answered == 0 {
		return entities.EmptySummary(address), entities.ErrAllSourcesUnavailable
	}

	combined := CombineUserData(users...)
	if combined == nil {
		return entities.EmptySummary(address), nil
	}

	return s.toSummary(address, combined), nil
}

// CombineUserData merges per-network user records into one.
// Absent records contribute zero; the result is nil when every record is absent.
// Event lists are sorted newest first by their raw integer timestamp.
func CombineUserData(users ...*entities.IndexedUser) *entities.IndexedUser {
	var combined *entities.IndexedUser

	for _, u := range users {
		if u == nil {
			continue
		}
		if combined == nil {
			combined = &entities.IndexedUser{
				ID:               u.ID,
				TotalReferrals:   new(big.Int),
				TotalEarned:      new(big.Int),
				TotalWithdrawn:   new(big.Int),
				ReferralEvents:   []entities.IndexedReferralEvent{},
				WithdrawalEvents: []entities.IndexedWithdrawalEvent{},
			}
		}

		addInto(combined.TotalReferrals, u.TotalReferrals)
		addInto(combined.TotalEarned, u.TotalEarned)
		addInto(combined.TotalWithdrawn, u.TotalWithdrawn)
		combined.ReferralEvents = append(combined.ReferralEvents, u.ReferralEvents...)
		combined.WithdrawalEvents = append(combined.WithdrawalEvents, u.WithdrawalEvents...)
	}

	if combined == nil {
		return nil
	}

	sort.SliceStable(combined.ReferralEvents, func(i, j int) bool {
		return compareTimestamps(combined.ReferralEvents[i].Timestamp, combined.ReferralEvents[j].Timestamp) > 0
	})
	sort.SliceStable(combined.WithdrawalEvents, func(i, j int) bool {
		return compareTimestamps(combined.WithdrawalEvents[i].Timestamp, combined.WithdrawalEvents[j].Timestamp) > 0
	})

	return combined
}

func addInto(total, v *big.Int) {
	if v != nil {
		total.Add(total, v)
	}
}

// compareTimestamps treats a missing timestamp as zero
func compareTimestamps(a, b *big.Int) int {
	if a == nil {
		a = new(big.Int)
	}
	if b == nil {
		b = new(big.Int)
	}
	return a.Cmp(b)
}

// toSummary formats the combined record once and deduplicates events by id
func (s *IndexedSource) toSummary(address string, user *entities.IndexedUser) *entities.UserReferralSummary {
	summary := entities.EmptySummary(address)

	summary.TotalReferrals = s.referralCount(user.TotalReferrals)
	summary.TotalEarned = units.FormatBigAmount(user.TotalEarned, units.DefaultDecimals)
	summary.TotalWithdrawn = units.FormatBigAmount(user.TotalWithdrawn, units.DefaultDecimals)

	referrals := make([]entities.ReferralEvent, 0, len(user.ReferralEvents))
	for _, r := range user.ReferralEvents {
		event, err := s.convertReferral(r)
		if err != nil {
			s.dropRecord(r.Chain, r.ID, err)
			continue
		}
		referrals = append(referrals, event)
	}

	withdrawals := make([]entities.WithdrawalEvent, 0, len(user.WithdrawalEvents))
	for _, w := range user.WithdrawalEvents {
		event, err := convertWithdrawal(w)
		if err != nil {
			s.dropRecord(w.Chain, w.ID, err)
			continue
		}
		withdrawals = append(withdrawals, event)
	}

	summary.ReferralEvents = entities.MergeReferralEvents(referrals)
	summary.WithdrawalEvents = entities.MergeWithdrawalEvents(withdrawals)
	return summary
}

// referralCount clamps the combined counter to the int64 range
func (s *IndexedSource) referralCount(total *big.Int) int64 {
	switch {
	case total == nil || total.Sign() <= 0:
		return 0
	case total.IsInt64():
		return total.Int64()
	default:
		s.logger.Warn("Referral count exceeds int64, clamping",
			zap.String("total_referrals", total.String()),
		)
		return math.MaxInt64
	}
}

func (s *IndexedSource) dropRecord(chain entities.Chain, id string, err error) {
	s.logger.Warn("Dropping indexed record",
		zap.String("chain", string(chain)),
		zap.String("id", id),
		zap.Error(err),
	)
	metrics.DroppedRecords.WithLabelValues(string(chain)).Inc()
}

func (s *IndexedSource) decimalsFor(chain entities.Chain) int {
	if d, ok := s.nativeDecimals[chain]; ok {
		return d
	}
	return units.DefaultDecimals
}

func (s *IndexedSource) convertReferral(r entities.IndexedReferralEvent) (entities.ReferralEvent, error) {
	ms, err := timestampMs(r.Timestamp)
	if err != nil {
		return entities.ReferralEvent{}, err
	}

	return entities.ReferralEvent{
		ID:                 r.ID,
		Chain:              r.Chain,
		Buyer:              r.Buyer,
		USDAmount:          units.FormatBigAmount(r.USDAmount, units.DefaultDecimals),
		NativeCurrencyPaid: units.FormatBigAmount(r.NativeAmount, s.decimalsFor(r.Chain)),
		CashbackAmount:     units.FormatBigAmount(r.CashbackAmount, units.DefaultDecimals),
		BonusPercent:       bigString(r.BonusPercent),
		TimestampMs:        ms,
		Timestamp:          units.FormatTimestampMs(ms),
		TransactionHash:    r.TransactionHash,
		BlockNumber:        blockNumber(r.BlockNumber),
	}, nil
}

func convertWithdrawal(w entities.IndexedWithdrawalEvent) (entities.WithdrawalEvent, error) {
	ms, err := timestampMs(w.Timestamp)
	if err != nil {
		return entities.WithdrawalEvent{}, err
	}

	return entities.WithdrawalEvent{
		ID:                   w.ID,
		Chain:                w.Chain,
		Amount:               units.FormatBigAmount(w.Amount, units.DefaultDecimals),
		TotalWithdrawnToDate: units.FormatBigAmount(w.TotalWithdrawn, units.DefaultDecimals),
		TimestampMs:          ms,
		Timestamp:            units.FormatTimestampMs(ms),
		TransactionHash:      w.TransactionHash,
		BlockNumber:          blockNumber(w.BlockNumber),
	}, nil
}

func timestampMs(ts *big.Int) (int64, error) {
	if ts == nil {
		return 0, fmt.Errorf("%w: missing timestamp", units.ErrInvalidTimestamp)
	}
	return units.ParseTimestampMs(ts.String())
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func blockNumber(v *big.Int) uint64 {
	if v == nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}
