package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/referral-dashboard/internal/config"
	"github.com/bimakw/referral-dashboard/internal/domain/entities"
	"github.com/bimakw/referral-dashboard/internal/domain/repositories"
	"github.com/bimakw/referral-dashboard/internal/infrastructure/metrics"
)

// Ensure Scanner implements ChainHistoryScanner
var _ repositories.ChainHistoryScanner = (*Scanner)(nil)

// Scanner reads a referrer's purchase and withdrawal logs from one network
// over a bounded window of recent blocks.
type Scanner struct {
	reader      ChainReader
	chain       entities.Chain
	contract    common.Address
	window      uint64
	decimals    int
	workerCount int
	logger      *zap.Logger
}

// NewScanner creates a log scanner for one network
func NewScanner(reader ChainReader, chain entities.Chain, chainCfg config.ChainConfig, scanCfg config.ScanConfig, logger *zap.Logger) *Scanner {
	workers := scanCfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}

	return &Scanner{
		reader:      reader,
		chain:       chain,
		contract:    common.HexToAddress(chainCfg.ContractAddress),
		window:      chainCfg.ScanWindow,
		decimals:    chainCfg.NativeDecimals,
		workerCount: workers,
		logger:      logger.With(zap.String("chain", string(chain))),
	}
}

// Chain returns the network this scanner reads
func (s *Scanner) Chain() entities.Chain {
	return s.chain
}

// ScanWindow returns the block range [from, to] ending at head. from never
// goes below zero.
func ScanWindow(head, window uint64) (from, to uint64) {
	if head <= window {
		return 0, head
	}
	return head - window, head
}

// FetchHistory scans the window for the user's referral events. A failed
// chain head lookup, or failure of both log queries, returns ErrSourceUnavailable.
// Failures of a single log category or a single block lookup only drop the affected events.
func (s *Scanner) FetchHistory(ctx context.Context, address string) (*entities.ChainHistory, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", entities.ErrInvalidAddress, address)
	}
	referrer := common.HexToAddress(address)

	head, err := s.reader.GetLatestBlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s chain head: %v", entities.ErrSourceUnavailable, s.chain, err)
	}

	fromBlock, toBlock := ScanWindow(head, s.window)

	s.logger.Debug("Scanning referral logs",
		zap.String("referrer", strings.ToLower(referrer.Hex())),
		zap.Uint64("from_block", fromBlock),
		zap.Uint64("to_block", toBlock),
	)

	history := &entities.ChainHistory{
		Chain:          s.chain,
		Referrals:      []entities.ReferralEvent{},
		Withdrawals:    []entities.WithdrawalEvent{},
		TotalEarned:    new(big.Int),
		TotalWithdrawn: new(big.Int),
		FromBlock:      fromBlock,
		ToBlock:        toBlock,
	}

	var purchaseLogs, withdrawalLogs []types.Log
	var purchaseErr, withdrawalErr error
	var g errgroup.Group
	g.Go(func() error {
		purchaseLogs, purchaseErr = s.queryLogs(ctx, PurchaseEventSignature, referrer, fromBlock, toBlock)
		return nil
	})
	g.Go(func() error {
		withdrawalLogs, withdrawalErr = s.queryLogs(ctx, WithdrawalEventSignature, referrer, fromBlock, toBlock)
		return nil
	})
	_ = g.Wait()

	// Nothing was answered for this network
	if purchaseErr != nil && withdrawalErr != nil {
		return nil, fmt.Errorf("%w: %s log queries: %v", entities.ErrSourceUnavailable, s.chain, purchaseErr)
	}

	s.collectPurchases(ctx, purchaseLogs, history)
	s.collectWithdrawals(withdrawalLogs, history)

	if history.DroppedLogs > 0 {
		metrics.DroppedRecords.WithLabelValues(string(s.chain)).Add(float64(history.DroppedLogs))
		s.logger.Warn("Dropped some referral logs",
			zap.Int("dropped", history.DroppedLogs),
			zap.Int("purchase_logs", len(purchaseLogs)),
			zap.Int("withdrawal_logs", len(withdrawalLogs)),
		)
	}

	s.logger.Info("Scanned referral logs",
		zap.Uint64("from_block", fromBlock),
		zap.Uint64("to_block", toBlock),
		zap.Int("referrals", len(history.Referrals)),
		zap.Int("withdrawals", len(history.Withdrawals)),
	)

	return history, nil
}

// BuildFilterQuery builds a filter for one event kind keyed by the indexed referrer
func (s *Scanner) BuildFilterQuery(signature common.Hash, referrer common.Address, fromBlock, toBlock uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{s.contract},
		Topics: [][]common.Hash{
			{signature},
			{ReferrerTopic(referrer)},
		},
	}
}

func (s *Scanner) queryLogs(ctx context.Context, signature common.Hash, referrer common.Address, fromBlock, toBlock uint64) ([]types.Log, error) {
	logs, err := s.reader.GetLogs(ctx, s.BuildFilterQuery(signature, referrer, fromBlock, toBlock))
	if err != nil {
		s.logger.Warn("Failed to fetch logs, skipping event kind",
			zap.String("signature", signature.Hex()),
			zap.Error(err),
		)
		return nil, err
	}
	return logs, nil
}

func (s *Scanner) collectPurchases(ctx context.Context, logs []types.Log, history *entities.ChainHistory) {
	if len(logs) == 0 {
		return
	}

	blockHashes := make(map[common.Hash]struct{})
	for _, log := range logs {
		blockHashes[log.BlockHash] = struct{}{}
	}
	timestamps := s.fetchBlockTimestamps(ctx, blockHashes)

	for _, log := range logs {
		blockTime, ok := timestamps[log.BlockHash]
		if !ok {
			history.DroppedLogs++
			continue
		}

		event, decoded, err := ParsePurchaseLog(log, s.chain, s.decimals, blockTime)
		if err != nil {
			s.logger.Debug("Failed to parse purchase log",
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index),
				zap.Error(err),
			)
			history.DroppedLogs++
			continue
		}

		history.Referrals = append(history.Referrals, *event)
		history.ReferralCount++
		history.TotalEarned.Add(history.TotalEarned, decoded.CashbackAmount)
	}
}

func (s *Scanner) collectWithdrawals(logs []types.Log, history *entities.ChainHistory) {
	var newest int64 = -1
	for _, log := range logs {
		event, decoded, err := ParseWithdrawalLog(log, s.chain)
		if err != nil {
			s.logger.Debug("Failed to parse withdrawal log",
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index),
				zap.Error(err),
			)
			history.DroppedLogs++
			continue
		}

		history.Withdrawals = append(history.Withdrawals, *event)

		// The running total reported by the newest withdrawal covers all earlier ones
		if event.TimestampMs > newest {
			newest = event.TimestampMs
			history.TotalWithdrawn.Set(decoded.TotalWithdrawn)
		}
	}
}

// fetchBlockTimestamps resolves block times concurrently. Blocks whose lookup
// fails are left out of the result.
func (s *Scanner) fetchBlockTimestamps(ctx context.Context, blockHashes map[common.Hash]struct{}) map[common.Hash]time.Time {
	timestamps := make(map[common.Hash]time.Time, len(blockHashes))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.workerCount)

	for hash := range blockHashes {
		hash := hash // capture
		g.Go(func() error {
			timestamp, err := s.reader.GetBlockTimestampByHash(ctx, hash)
			if err != nil {
				s.logger.Warn("Failed to get block timestamp, dropping its events",
					zap.String("block_hash", hash.Hex()),
					zap.Error(err),
				)
				return nil
			}

			mu.Lock()
			timestamps[hash] = timestamp
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()
	return timestamps
}
