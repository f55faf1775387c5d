package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/referral-dashboard/internal/domain/entities"
	"github.com/bimakw/referral-dashboard/internal/domain/repositories"
	"github.com/bimakw/referral-dashboard/internal/infrastructure/cache"
)

// SummaryCache is the subset of the Redis cache used for summaries
type SummaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// ReferralService answers one-shot summary lookups
type ReferralService struct {
	source repositories.HistorySource
	cache  SummaryCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewReferralService creates a referral service. cache may be nil.
func NewReferralService(
	source repositories.HistorySource,
	cache SummaryCache,
	ttl time.Duration,
	logger *zap.Logger,
) *ReferralService {
	return &ReferralService{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// ReferralResponse is the API response for summary lookups
type ReferralResponse struct {
	Data       *entities.UserReferralSummary `json:"data"`
	DataSource entities.DataSource           `json:"data_source"`
	Error      string                        `json:"error,omitempty"`
}

// GetSummary returns the combined summary of an address.
// When no network answered, the empty summary is returned with a message and is not cached.
func (s *ReferralService) GetSummary(ctx context.Context, address string) (*ReferralResponse, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", entities.ErrInvalidAddress, address)
	}
	address = strings.ToLower(address)

	cacheKey := cache.SummaryKey(string(s.source.Source()), address)

	// Try cache first
	var cached ReferralResponse
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", cacheKey))
			return &cached, nil
		}
	}

	summary, err := s.source.FetchSummary(ctx, address)
	if err != nil {
		if errors.Is(err, entities.ErrAllSourcesUnavailable) {
			if summary == nil {
				summary = entities.EmptySummary(address)
			}
			return &ReferralResponse{
				Data:       summary,
				DataSource: s.source.Source(),
				Error:      err.Error(),
			}, nil
		}
		return nil, fmt.Errorf("failed to get referral summary: %w", err)
	}

	response := &ReferralResponse{
		Data:       summary,
		DataSource: s.source.Source(),
	}

	// Cache the response
	if s.cache != nil {
		if err := s.cache.SetWithTTL(ctx, cacheKey, response, s.ttl); err != nil {
			s.logger.Warn("Failed to cache response", zap.Error(err))
		}
	}

	return response, nil
}
