package services

import (
	"errors"

	"go.uber.org/zap"

	"github.com/bimakw/referral-dashboard/internal/config"
	"github.com/bimakw/referral-dashboard/internal/domain/entities"
	"github.com/bimakw/referral-dashboard/internal/domain/repositories"
)

// ErrNoBackends is returned when the selected source has nothing to query
var ErrNoBackends = errors.New("no backends configured for the selected history source")

// NewHistorySource picks the history source once from configuration.
// Only the backends of the selected source need to be supplied.
func NewHistorySource(
	cfg *config.Config,
	indexes []repositories.UserIndex,
	scanners []repositories.ChainHistoryScanner,
	logger *zap.Logger,
) (repositories.HistorySource, error) {
	if cfg.Source.UseIndexed {
		if len(indexes) == 0 {
			return nil, ErrNoBackends
		}
		logger.Info("Using indexed history source", zap.Int("networks", len(indexes)))
		return NewIndexedSource(indexes, NativeDecimals(cfg), logger), nil
	}

	if len(scanners) == 0 {
		return nil, ErrNoBackends
	}
	logger.Info("Using log-scan history source",
		zap.Int("networks", len(scanners)),
		zap.Int("max_events", cfg.Scan.MaxEvents),
	)
	return NewScanSource(scanners, cfg.Scan.MaxEvents, logger), nil
}

// NativeDecimals maps each network to its native currency decimals
func NativeDecimals(cfg *config.Config) map[entities.Chain]int {
	return map[entities.Chain]int{
		entities.ChainETH: cfg.ETH.NativeDecimals,
		entities.ChainBNB: cfg.BNB.NativeDecimals,
	}
}
