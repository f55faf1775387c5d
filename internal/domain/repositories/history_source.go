package repositories

import (
	"context"

	"github.com/bimakw/referral-dashboard/internal/domain/entities"
)

// HistorySource produces the combined referral summary for an address.
// Implementations degrade failed networks to empty contributions; when no
// network answered they return an empty summary with ErrAllSourcesUnavailable.
type HistorySource interface {
	FetchSummary(ctx context.Context, address string) (*entities.UserReferralSummary, error)

	// Source reports which kind of source this is
	Source() entities.DataSource
}

// UserIndex queries one network's indexing service
type UserIndex interface {
	Chain() entities.Chain

	// QueryUser returns nil when the indexer has no record for the address
	QueryUser(ctx context.Context, address string) (*entities.IndexedUser, error)

	// LatestIndexedBlock returns the newest block the indexer has processed
	LatestIndexedBlock(ctx context.Context) (uint64, error)
}

// ChainHistoryScanner scans one network's event logs
type ChainHistoryScanner interface {
	Chain() entities.Chain
	FetchHistory(ctx context.Context, address string) (*entities.ChainHistory, error)
}
