package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/bimakw/referral-dashboard/internal/config"
	"github.com/bimakw/referral-dashboard/internal/domain/entities"
)

// ChainReader is the subset of chain reads the scanner needs
type ChainReader interface {
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	GetBlockTimestampByHash(ctx context.Context, hash common.Hash) (time.Time, error)
}

// rpcBackend is implemented by *ethclient.Client
type rpcBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	Close()
}

type dialFunc func(ctx context.Context) (rpcBackend, error)

// Client wraps the Ethereum client with retry logic for one network.
// The connection is opened lazily and re-dialed after a failed dial.
type Client struct {
	dial    dialFunc
	chain   entities.Chain
	config  config.RPCConfig
	logger  *zap.Logger
	chainID int64

	mu     sync.Mutex
	client rpcBackend
}

// NewClient creates a client for a network's RPC endpoint. An unreachable node
// is only logged; a node reporting a different chain ID is an error.
func NewClient(chain entities.Chain, chainCfg config.ChainConfig, rpcCfg config.RPCConfig, logger *zap.Logger) (*Client, error) {
	url := chainCfg.RPCURL
	return newClient(chain, chainCfg, rpcCfg, logger, func(ctx context.Context) (rpcBackend, error) {
		return ethclient.DialContext(ctx, url)
	})
}

func newClient(chain entities.Chain, chainCfg config.ChainConfig, rpcCfg config.RPCConfig, logger *zap.Logger, dial dialFunc) (*Client, error) {
	c := &Client{
		dial:   dial,
		chain:  chain,
		config: rpcCfg,
		logger: logger.With(zap.String("chain", string(chain))),
	}

	ctx := context.Background()
	if rpcCfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rpcCfg.RequestTimeout)
		defer cancel()
	}

	backend, err := c.backend(ctx)
	if err != nil {
		c.logger.Warn("Chain node unreachable at startup, will retry per request",
			zap.String("rpc_url", chainCfg.RPCURL),
			zap.Error(err),
		)
		return c, nil
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		c.logger.Warn("Failed to get chain ID at startup, will retry per request",
			zap.String("rpc_url", chainCfg.RPCURL),
			zap.Error(err),
		)
		return c, nil
	}

	if chainID.Int64() != chainCfg.ChainID {
		c.Close()
		return nil, fmt.Errorf("%s chain ID mismatch: expected %d, got %d", chain, chainCfg.ChainID, chainID.Int64())
	}
	c.chainID = chainID.Int64()

	c.logger.Info("Connected to chain node",
		zap.String("rpc_url", chainCfg.RPCURL),
		zap.Int64("chain_id", c.chainID),
	)
	return c, nil
}

// backend returns the open connection, dialing if there is none yet
func (c *Client) backend(ctx context.Context) (rpcBackend, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	if c.dial == nil {
		return nil, fmt.Errorf("%w: %s has no RPC connection", entities.ErrSourceUnavailable, c.chain)
	}

	client, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s node: %v", entities.ErrSourceUnavailable, c.chain, err)
	}
	c.client = client
	return client, nil
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
}

// Chain returns the network this client reads from
func (c *Client) Chain() entities.Chain {
	return c.chain
}

// ChainID returns the chain ID reported by the node, or 0 when it was unreachable at startup
func (c *Client) ChainID() int64 {
	return c.chainID
}

// GetLatestBlockNumber returns the latest block number
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	return withRetry(ctx, c, "get latest block number", func(ctx context.Context, b rpcBackend) (uint64, error) {
		return b.BlockNumber(ctx)
	})
}

// GetLogs retrieves logs matching the filter query
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return withRetry(ctx, c, "get logs", func(ctx context.Context, b rpcBackend) ([]types.Log, error) {
		return b.FilterLogs(ctx, query)
	})
}

// GetBlockTimestampByHash returns the timestamp of the block with the given hash
func (c *Client) GetBlockTimestampByHash(ctx context.Context, hash common.Hash) (time.Time, error) {
	header, err := withRetry(ctx, c, "get block "+hash.Hex(), func(ctx context.Context, b rpcBackend) (*types.Header, error) {
		return b.HeaderByHash(ctx, hash)
	})
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(header.Time), 0), nil
}

// HealthCheck checks that the node answers
func (c *Client) HealthCheck(ctx context.Context) error {
	b, err := c.backend(ctx)
	if err != nil {
		return err
	}
	_, err = b.BlockNumber(ctx)
	return err
}

// withRetry runs call up to MaxRetries+1 times, each attempt bounded by RequestTimeout
func withRetry[T any](ctx context.Context, c *Client, op string, call func(context.Context, rpcBackend) (T, error)) (T, error) {
	var result T
	var err error

	for i := 0; i <= c.config.MaxRetries; i++ {
		attemptCtx := ctx
		cancel := func() {}
		if c.config.RequestTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		}

		var b rpcBackend
		b, err = c.backend(attemptCtx)
		if err == nil {
			result, err = call(attemptCtx, b)
		}
		cancel()
		if err == nil {
			return result, nil
		}

		if ctx.Err() != nil {
			return result, fmt.Errorf("failed to %s: %w", op, ctx.Err())
		}

		c.logger.Warn("RPC call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)

		if i < c.config.MaxRetries {
			select {
			case <-ctx.Done():
				return result, fmt.Errorf("failed to %s: %w", op, ctx.Err())
			case <-time.After(c.config.RetryDelay):
			}
		}
	}

	return result, fmt.Errorf("failed to %s after %d retries: %w", op, c.config.MaxRetries, err)
}
