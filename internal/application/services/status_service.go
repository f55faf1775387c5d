package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/referral-dashboard/internal/config"
	"github.com/bimakw/referral-dashboard/internal/domain/entities"
	"github.com/bimakw/referral-dashboard/internal/domain/repositories"
	"github.com/bimakw/referral-dashboard/internal/infrastructure/metrics"
)

// StatusService polls the liveness of every indexing endpoint.
// It is purely diagnostic and never touches session state.
type StatusService struct {
	indexes []repositories.UserIndex
	config  config.StatusConfig
	logger  *zap.Logger

	mu       sync.RWMutex
	statuses map[entities.Chain]entities.NetworkStatus

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewStatusService creates a status reporter with every network in the loading state
func NewStatusService(indexes []repositories.UserIndex, cfg config.StatusConfig, logger *zap.Logger) *StatusService {
	statuses := make(map[entities.Chain]entities.NetworkStatus, len(indexes))
	for _, index := range indexes {
		statuses[index.Chain()] = entities.NetworkStatus{
			Chain: index.Chain(),
			State: entities.IndexerStateLoading,
		}
	}

	return &StatusService{
		indexes:  indexes,
		config:   cfg,
		logger:   logger,
		statuses: statuses,
		stopCh:   make(chan struct{}),
	}
}

// Start begins polling
func (s *StatusService) Start(ctx context.Context) {
	s.logger.Info("Starting status reporter",
		zap.Duration("interval", s.config.PollInterval),
		zap.Int("networks", len(s.indexes)),
	)

	s.wg.Add(1)
	go s.runPollingLoop(ctx)
}

// Stop halts polling and waits for the loop to exit
func (s *StatusService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping status reporter")
		close(s.stopCh)
	})
	s.wg.Wait()
}

// Snapshot returns the last observed status of every network
func (s *StatusService) Snapshot() map[entities.Chain]entities.NetworkStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[entities.Chain]entities.NetworkStatus, len(s.statuses))
	for chain, status := range s.statuses {
		out[chain] = status
	}
	return out
}

func (s *StatusService) runPollingLoop(ctx context.Context) {
	defer s.wg.Done()

	interval := s.config.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run immediately on start
	s.Check(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Check(ctx)
		}
	}
}

// Check queries every network once, concurrently and independently
func (s *StatusService) Check(ctx context.Context) {
	var wg sync.WaitGroup
	for _, index := range s.indexes {
		wg.Add(1)
		go func(index repositories.UserIndex) {
			defer wg.Done()
			s.checkNetwork(ctx, index)
		}(index)
	}
	wg.Wait()
}

func (s *StatusService) checkNetwork(ctx context.Context, index repositories.UserIndex) {
	chain := index.Chain()
	block, err := index.LatestIndexedBlock(ctx)
	now := time.Now().UTC()

	status := entities.NetworkStatus{
		Chain:     chain,
		CheckedAt: &now,
	}

	if err != nil {
		s.logger.Warn("Indexer liveness check failed",
			zap.String("chain", string(chain)),
			zap.Error(err),
		)
		status.State = entities.IndexerStateError
		status.Error = err.Error()
		metrics.IndexerUp.WithLabelValues(string(chain)).Set(0)
	} else {
		status.State = entities.IndexerStateSuccess
		status.BlockNumber = block
		metrics.IndexerUp.WithLabelValues(string(chain)).Set(1)
		metrics.IndexerLatestBlock.WithLabelValues(string(chain)).Set(float64(block))
	}

	s.mu.Lock()
	s.statuses[chain] = status
	s.mu.Unlock()
}
