// Package graph queries the hosted GraphQL indexing service of each network
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/referral-dashboard/internal/config"
	"github.com/bimakw/referral-dashboard/internal/domain/entities"
	"github.com/bimakw/referral-dashboard/internal/domain/repositories"
)

// Ensure Client implements UserIndex
var _ repositories.UserIndex = (*Client)(nil)

// UserQuery fetches a referrer's counters and most recent events
const UserQuery = `query GetUser($userAddress: ID!, $first: Int!, $skip: Int!) {
  user(id: $userAddress) {
    id
    totalReferrals
    totalEarned
    totalWithdrawn
    referralEvents(first: $first, skip: $skip, orderBy: timestamp, orderDirection: desc) {
      id
      buyer
      usdAmount
      nativeAmount
      cashbackAmount
      bonusPercent
      timestamp
      transactionHash
      blockNumber
      chain
    }
    withdrawalEvents(first: $first, skip: $skip, orderBy: timestamp, orderDirection: desc) {
      id
      amount
      totalWithdrawn
      timestamp
      transactionHash
      blockNumber
      chain
    }
  }
}`

// MetaQuery asks for the newest indexed block only
const MetaQuery = `{ _meta { block { number } } }`

// maxResponseBytes bounds how much of a response body is read
const maxResponseBytes = 8 << 20

// Client talks to one network's indexing endpoint
type Client struct {
	endpoint   string
	chain      entities.Chain
	pageSize   int
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an indexing service client for one network
func NewClient(chain entities.Chain, endpoint string, cfg config.GraphConfig, logger *zap.Logger) *Client {
	return &Client{
		endpoint:   endpoint,
		chain:      chain,
		pageSize:   cfg.PageSize,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger.With(zap.String("chain", string(chain))),
	}
}

// Chain returns the network this client queries
func (c *Client) Chain() entities.Chain {
	return c.chain
}

// Endpoint returns the indexing endpoint URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

type request struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
}

type response struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

// QueryUser fetches the user record with the configured page size
func (c *Client) QueryUser(ctx context.Context, address string) (*entities.IndexedUser, error) {
	return c.QueryUserPage(ctx, address, c.pageSize, 0)
}

// QueryUserPage fetches the user record with explicit pagination of the event lists.
// It returns nil, nil when the indexer has no record for the address.
func (c *Client) QueryUserPage(ctx context.Context, address string, first, skip int) (*entities.IndexedUser, error) {
	var data struct {
		User *userDTO `json:"user"`
	}

	err := c.do(ctx, request{
		Query: UserQuery,
		Variables: map[string]interface{}{
			"userAddress": strings.ToLower(address),
			"first":       first,
			"skip":        skip,
		},
	}, &data)
	if err != nil {
		return nil, err
	}

	if data.User == nil {
		c.logger.Debug("No indexed user record", zap.String("address", address))
		return nil, nil
	}
	return data.User.toEntity(c.chain), nil
}

// LatestIndexedBlock returns the newest block number the indexer has processed
func (c *Client) LatestIndexedBlock(ctx context.Context) (uint64, error) {
	var data struct {
		Meta *struct {
			Block struct {
				Number BigInt `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
	}

	if err := c.do(ctx, request{Query: MetaQuery}, &data); err != nil {
		return 0, err
	}
	if data.Meta == nil || data.Meta.Block.Number.Int == nil {
		return 0, fmt.Errorf("%s indexer returned no _meta block", c.chain)
	}
	if !data.Meta.Block.Number.IsUint64() {
		return 0, fmt.Errorf("%s indexer returned block number out of range: %s", c.chain, data.Meta.Block.Number.String())
	}
	return data.Meta.Block.Number.Uint64(), nil
}

// HealthCheck checks that the indexing endpoint answers the meta query
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.LatestIndexedBlock(ctx)
	return err
}

// do posts a GraphQL request and decodes its data into dest
func (c *Client) do(ctx context.Context, req request, dest interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s indexer request failed: %v", entities.ErrSourceUnavailable, c.chain, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: %s indexer response read failed: %v", entities.ErrSourceUnavailable, c.chain, err)
	}

	c.logger.Debug("Indexer query",
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s indexer returned HTTP %d", entities.ErrSourceUnavailable, c.chain, resp.StatusCode)
	}

	var envelope response
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode %s indexer response: %w", c.chain, err)
	}

	if len(envelope.Errors) > 0 {
		messages := make([]string, len(envelope.Errors))
		for i, e := range envelope.Errors {
			messages[i] = e.Message
		}
		return fmt.Errorf("%s indexer query error: %s", c.chain, strings.Join(messages, "; "))
	}

	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return fmt.Errorf("%s indexer response has no data", c.chain)
	}

	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		return fmt.Errorf("failed to decode %s indexer data: %w", c.chain, err)
	}
	return nil
}

// BigInt decodes GraphQL BigInt values sent either as JSON strings or numbers
type BigInt struct {
	*big.Int
}

// UnmarshalJSON accepts "123", 123 and null. Base units are never negative.
func (b *BigInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		b.Int = nil
		return nil
	}
	s = strings.Trim(s, `"`)
	if strings.HasPrefix(s, "-") {
		return fmt.Errorf("negative BigInt %q", s)
	}

	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid BigInt %q", s)
	}
	b.Int = v
	return nil
}

// value returns the integer or zero when absent
func (b BigInt) value() *big.Int {
	if b.Int == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(b.Int)
}

// raw returns a copy of the integer, nil when absent
func (b BigInt) raw() *big.Int {
	if b.Int == nil {
		return nil
	}
	return new(big.Int).Set(b.Int)
}

type userDTO struct {
	ID               string          `json:"id"`
	TotalReferrals   BigInt          `json:"totalReferrals"`
	TotalEarned      BigInt          `json:"totalEarned"`
	TotalWithdrawn   BigInt          `json:"totalWithdrawn"`
	ReferralEvents   []referralDTO   `json:"referralEvents"`
	WithdrawalEvents []withdrawalDTO `json:"withdrawalEvents"`
}

type referralDTO struct {
	ID              string `json:"id"`
	Buyer           string `json:"buyer"`
	USDAmount       BigInt `json:"usdAmount"`
	NativeAmount    BigInt `json:"nativeAmount"`
	CashbackAmount  BigInt `json:"cashbackAmount"`
	BonusPercent    BigInt `json:"bonusPercent"`
	Timestamp       BigInt `json:"timestamp"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     BigInt `json:"blockNumber"`
	Chain           string `json:"chain"`
}

type withdrawalDTO struct {
	ID              string `json:"id"`
	Amount          BigInt `json:"amount"`
	TotalWithdrawn  BigInt `json:"totalWithdrawn"`
	Timestamp       BigInt `json:"timestamp"`
	TransactionHash string `json:"transactionHash"`
	BlockNumber     BigInt `json:"blockNumber"`
	Chain           string `json:"chain"`
}

// chainOf prefers the chain reported by the record and falls back to the client's network
func chainOf(reported string, fallback entities.Chain) entities.Chain {
	switch entities.Chain(strings.ToUpper(reported)) {
	case entities.ChainETH:
		return entities.ChainETH
	case entities.ChainBNB:
		return entities.ChainBNB
	default:
		return fallback
	}
}

func (u *userDTO) toEntity(chain entities.Chain) *entities.IndexedUser {
	user := &entities.IndexedUser{
		ID:               u.ID,
		TotalReferrals:   u.TotalReferrals.value(),
		TotalEarned:      u.TotalEarned.value(),
		TotalWithdrawn:   u.TotalWithdrawn.value(),
		ReferralEvents:   make([]entities.IndexedReferralEvent, len(u.ReferralEvents)),
		WithdrawalEvents: make([]entities.IndexedWithdrawalEvent, len(u.WithdrawalEvents)),
	}

	for i, r := range u.ReferralEvents {
		user.ReferralEvents[i] = entities.IndexedReferralEvent{
			ID:              r.ID,
			Chain:           chainOf(r.Chain, chain),
			Buyer:           strings.ToLower(r.Buyer),
			USDAmount:       r.USDAmount.value(),
			NativeAmount:    r.NativeAmount.value(),
			CashbackAmount:  r.CashbackAmount.value(),
			BonusPercent:    r.BonusPercent.value(),
			Timestamp:       r.Timestamp.raw(),
			TransactionHash: strings.ToLower(r.TransactionHash),
			BlockNumber:     r.BlockNumber.value(),
		}
	}

	for i, w := range u.WithdrawalEvents {
		user.WithdrawalEvents[i] = entities.IndexedWithdrawalEvent{
			ID:              w.ID,
			Chain:           chainOf(w.Chain, chain),
			Amount:          w.Amount.value(),
			TotalWithdrawn:  w.TotalWithdrawn.value(),
			Timestamp:       w.Timestamp.raw(),
			TransactionHash: strings.ToLower(w.TransactionHash),
			BlockNumber:     w.BlockNumber.value(),
		}
	}

	return user
}
