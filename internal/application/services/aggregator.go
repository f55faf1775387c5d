package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/referral-dashboard/internal/domain/entities"
	"github.com/bimakw/referral-dashboard/internal/domain/repositories"
	"github.com/bimakw/referral-dashboard/internal/infrastructure/metrics"
)

// AggregatorState is a snapshot of what the dashboard displays
type AggregatorState struct {
	Address    string                        `json:"address"`
	Summary    *entities.UserReferralSummary `json:"summary"`
	Loading    bool                          `json:"loading"`
	Error      string                        `json:"error,omitempty"`
	DataSource entities.DataSource           `json:"data_source"`
}

// Aggregator owns the summary, loading and error state of one dashboard session.
// Every fetch is numbered and only the most recently issued one may apply its result.
type Aggregator struct {
	source repositories.HistorySource
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	address string
	valid   bool
	summary *entities.UserReferralSummary
	loading bool
	errMsg  string
	seq     uint64
}

// NewAggregator creates an aggregator bound to one history source
func NewAggregator(source repositories.HistorySource, logger *zap.Logger) *Aggregator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Aggregator{
		source:  source,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		summary: entities.EmptySummary(""),
	}
}

// DataSource reports which source the aggregator delegates to
func (a *Aggregator) DataSource() entities.DataSource {
	return a.source.Source()
}

// Snapshot returns a copy of the current state
func (a *Aggregator) Snapshot() AggregatorState {
	a.mu.Lock()
	defer a.mu.Unlock()

	return AggregatorState{
		Address:    a.address,
		Summary:    a.summary,
		Loading:    a.loading,
		Error:      a.errMsg,
		DataSource: a.source.Source(),
	}
}

// SetAddress switches the active address and fetches its summary.
// An empty address clears to the empty summary without any network call.
// An invalid address is recorded as an error state and returned.
func (a *Aggregator) SetAddress(address string) error {
	address = strings.ToLower(strings.TrimSpace(address))

	a.mu.Lock()
	if address == a.address {
		invalid := address != "" && !a.valid
		a.mu.Unlock()
		if invalid {
			return fmt.Errorf("%w: %q", entities.ErrInvalidAddress, address)
		}
		return nil
	}

	a.address = address
	// Anything still in flight belongs to the previous address
	a.seq++

	if address == "" {
		a.valid = false
		a.summary = entities.EmptySummary("")
		a.loading = false
		a.errMsg = ""
		a.mu.Unlock()
		return nil
	}

	if !common.IsHexAddress(address) {
		err := fmt.Errorf("%w: %q", entities.ErrInvalidAddress, address)
		a.valid = false
		a.summary = entities.EmptySummary(address)
		a.loading = false
		a.errMsg = err.Error()
		a.mu.Unlock()
		return err
	}

	a.valid = true
	a.startFetchLocked()
	a.mu.Unlock()
	return nil
}

// Refresh re-runs the fetch for the active address. Overlapping calls are
// allowed; the last one issued wins.
func (a *Aggregator) Refresh() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.valid {
		return
	}
	a.seq++
	a.startFetchLocked()
}

// Wait blocks until every in-flight fetch has returned
func (a *Aggregator) Wait() {
	a.wg.Wait()
}

// Close cancels in-flight fetches and waits for them
func (a *Aggregator) Close() {
	a.cancel()
	a.wg.Wait()
}

// startFetchLocked issues a fetch tagged with the current sequence number; a.mu must be held
func (a *Aggregator) startFetchLocked() {
	seq := a.seq
	address := a.address
	a.loading = true
	a.errMsg = ""

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		summary, err := a.source.FetchSummary(a.ctx, address)
		a.apply(seq, address, summary, err)
	}()
}

func (a *Aggregator) apply(seq uint64, address string, summary *entities.UserReferralSummary, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if seq != a.seq {
		metrics.StaleResults.Inc()
		a.logger.Debug("Discarding stale result",
			zap.String("address", address),
			zap.Uint64("seq", seq),
			zap.Uint64("latest", a.seq),
		)
		return
	}

	a.loading = false

	if summary == nil {
		summary = entities.EmptySummary(address)
	}

	switch {
	case err == nil:
		a.summary = summary
		a.errMsg = ""
	case errors.Is(err, entities.ErrAllSourcesUnavailable):
		a.logger.Warn("Referral data unavailable on all networks", zap.String("address", address))
		a.summary = summary
		a.errMsg = err.Error()
	default:
		a.logger.Error("Failed to fetch referral summary",
			zap.String("address", address),
			zap.Error(err),
		)
		a.summary = entities.EmptySummary(address)
		a.errMsg = err.Error()
	}
}
