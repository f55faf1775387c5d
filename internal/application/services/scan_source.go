package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/referral-dashboard/internal/domain/entities"
	"github.com/bimakw/referral-dashboard/internal/domain/repositories"
	"github.com/bimakw/referral-dashboard/internal/domain/units"
	"github.com/bimakw/referral-dashboard/internal/infrastructure/metrics"
)

// Ensure ScanSource implements HistorySource
var _ repositories.HistorySource = (*ScanSource)(nil)

// DefaultMaxEvents caps each event list of a scanned summary
const DefaultMaxEvents = 50

// ScanSource builds summaries by scanning recent event logs of every network
type ScanSource struct {
	scanners  []repositories.ChainHistoryScanner
	maxEvents int
	logger    *zap.Logger
}

// NewScanSource creates a log-scan history source
func NewScanSource(scanners []repositories.ChainHistoryScanner, maxEvents int, logger *zap.Logger) *ScanSource {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	return &ScanSource{
		scanners:  scanners,
		maxEvents: maxEvents,
		logger:    logger,
	}
}

// Source returns DataSourceScan
func (s *ScanSource) Source() entities.DataSource {
	return entities.DataSourceScan
}

// FetchSummary scans every network concurrently, skipping networks that fail
func (s *ScanSource) FetchSummary(ctx context.Context, address string) (*entities.UserReferralSummary, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", entities.ErrInvalidAddress, address)
	}
	address = strings.ToLower(address)

	start := time.Now()
	defer func() {
		metrics.FetchDuration.WithLabelValues(string(entities.DataSourceScan)).Observe(time.Since(start).Seconds())
	}()

	histories := make([]*entities.ChainHistory, len(s.scanners))
	var g errgroup.Group
	for i, scanner := range s.scanners {
		i, scanner := i, scanner
		g.Go(func() error {
			history, err := scanner.FetchHistory(ctx, address)
			if err != nil {
				if errors.Is(err, entities.ErrInvalidAddress) {
					return err
				}
				s.logger.Warn("Log scan failed, skipping network",
					zap.String("chain", string(scanner.Chain())),
					zap.String("address", address),
					zap.Error(err),
				)
				metrics.NetworkFailures.WithLabelValues(string(entities.DataSourceScan), string(scanner.Chain())).Inc()
				return nil
			}
			histories[i] = history
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := entities.EmptySummary(address)
	totalEarned := new(big.Int)
	totalWithdrawn := new(big.Int)
	referralLists := make([][]entities.ReferralEvent, 0, len(histories))
	withdrawalLists := make([][]entities.WithdrawalEvent, 0, len(histories))
	answered := 0

	for _, h := range histories {
		if h == nil {
			continue
		}
		answered++

		summary.TotalReferrals += h.ReferralCount
		addInto(totalEarned, h.TotalEarned)
		addInto(totalWithdrawn, h.TotalWithdrawn)
		referralLists = append(referralLists, h.Referrals)
		withdrawalLists = append(withdrawalLists, h.Withdrawals)

		s.logger.Debug("Scanned network",
			zap.String("chain", string(h.Chain)),
			zap.Uint64("from_block", h.FromBlock),
			zap.Uint64("to_block", h.ToBlock),
			zap.Int("referrals", len(h.Referrals)),
			zap.Int("withdrawals", len(h.Withdrawals)),
			zap.Int("dropped", h.DroppedLogs),
		)
	}

	if answered == 0 {
		return summary, entities.ErrAllSourcesUnavailable
	}

	summary.TotalEarned = units.FormatBigAmount(totalEarned, units.DefaultDecimals)
	summary.TotalWithdrawn = units.FormatBigAmount(totalWithdrawn, units.DefaultDecimals)
	summary.ReferralEvents = truncate(entities.MergeReferralEvents(referralLists...), s.maxEvents)
	summary.WithdrawalEvents = truncate(entities.MergeWithdrawalEvents(withdrawalLists...), s.maxEvents)

	return summary, nil
}

// truncate keeps the first n entries of an already sorted list
func truncate[T any](list []T, n int) []T {
	if len(list) <= n {
		return list
	}
	return list[:n]
}
