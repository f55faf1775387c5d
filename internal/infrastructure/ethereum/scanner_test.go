package ethereum

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/referral-dashboard/internal/config"
	"github.com/bimakw/referral-dashboard/internal/domain/entities"
	"github.com/bimakw/referral-dashboard/internal/testutil"
)

func setupScannerTest(head uint64) (*Scanner, *testutil.MockChainReader) {
	reader := testutil.NewMockChainReader(head)
	scanner := NewScanner(reader, entities.ChainETH,
		config.ChainConfig{ContractAddress: testContract.Hex(), ScanWindow: 5000, NativeDecimals: 18},
		config.ScanConfig{MaxEvents: 50, WorkerCount: 2},
		zap.NewNop(),
	)
	return scanner, reader
}

func TestScanWindow(t *testing.T) {
	tests := []struct {
		name         string
		head, window uint64
		from, to     uint64
	}{
		{"head above window", 10000, 5000, 5000, 10000},
		{"head below window", 3000, 5000, 0, 3000},
		{"head equals window", 5000, 5000, 0, 5000},
		{"genesis", 0, 5000, 0, 0},
		{"zero window", 42, 0, 42, 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to := ScanWindow(tt.head, tt.window)
			if from != tt.from || to != tt.to {
				t.Errorf("ScanWindow(%d, %d) = (%d, %d), expected (%d, %d)", tt.head, tt.window, from, to, tt.from, tt.to)
			}
		})
	}
}

func TestScanner_FetchHistory_InvalidAddress(t *testing.T) {
	scanner, reader := setupScannerTest(10000)

	_, err := scanner.FetchHistory(context.Background(), "not-an-address")
	if !errors.Is(err, entities.ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if reader.CallCount("GetLatestBlockNumber") != 0 {
		t.Error("expected no chain reads for an invalid address")
	}
}

func TestScanner_FetchHistory_HeadUnavailable(t *testing.T) {
	scanner, reader := setupScannerTest(10000)
	reader.HeadErr = errors.New("connection refused")

	_, err := scanner.FetchHistory(context.Background(), testReferrer.Hex())
	if !errors.Is(err, entities.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if reader.CallCount("GetLogs") != 0 {
		t.Error("expected no log queries without a chain head")
	}
}

func TestScanner_FetchHistory_QueriesWindow(t *testing.T) {
	scanner, reader := setupScannerTest(10000)

	if _, err := scanner.FetchHistory(context.Background(), testReferrer.Hex()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reader.CallCount("GetLogs") != 2 {
		t.Fatalf("expected 2 log queries, got %d", reader.CallCount("GetLogs"))
	}

	for _, call := range reader.Calls {
		if call.Method != "GetLogs" {
			continue
		}
		query := call.Args[0].(ethereum.FilterQuery)
		if query.FromBlock.Uint64() != 5000 || query.ToBlock.Uint64() != 10000 {
			t.Errorf("expected window [5000, 10000], got [%s, %s]", query.FromBlock, query.ToBlock)
		}
		if len(query.Addresses) != 1 || query.Addresses[0] != testContract {
			t.Errorf("expected contract filter, got %v", query.Addresses)
		}
		if len(query.Topics) != 2 || query.Topics[1][0] != ReferrerTopic(testReferrer) {
			t.Errorf("expected referrer topic filter, got %v", query.Topics)
		}
	}
}

func TestScanner_FetchHistory_Success(t *testing.T) {
	scanner, reader := setupScannerTest(10000)

	blockA := common.HexToHash("0xa1")
	blockB := common.HexToHash("0xb2")
	timeA := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	timeB := time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)
	reader.SetBlockTime(blockA, timeA)
	reader.SetBlockTime(blockB, timeB)

	reader.AddLogs(
		purchaseLog(6000, blockA, common.HexToHash("0x01"), 0, ether(100), ether(1), ether(5), big.NewInt(5)),
		purchaseLog(6000, blockA, common.HexToHash("0x02"), 1, ether(200), ether(2), ether(10), big.NewInt(5)),
		purchaseLog(7000, blockB, common.HexToHash("0x03"), 0, ether(50), ether(1), ether(2), big.NewInt(4)),
		// Outside the window
		purchaseLog(100, blockA, common.HexToHash("0x04"), 0, ether(1), ether(1), ether(1), big.NewInt(1)),
		withdrawalLog(8000, common.HexToHash("0x05"), 0, ether(4), ether(4), 1705400000),
		withdrawalLog(9000, common.HexToHash("0x06"), 0, ether(3), ether(7), 1705500000),
	)

	history, err := scanner.FetchHistory(context.Background(), testReferrer.Hex())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if history.FromBlock != 5000 || history.ToBlock != 10000 {
		t.Errorf("unexpected window [%d, %d]", history.FromBlock, history.ToBlock)
	}
	if len(history.Referrals) != 3 {
		t.Fatalf("expected 3 referrals, got %d", len(history.Referrals))
	}
	if history.ReferralCount != 3 {
		t.Errorf("expected referral count 3, got %d", history.ReferralCount)
	}
	if history.TotalEarned.Cmp(ether(17)) != 0 {
		t.Errorf("expected total earned 17 ether, got %s", history.TotalEarned)
	}
	if len(history.Withdrawals) != 2 {
		t.Fatalf("expected 2 withdrawals, got %d", len(history.Withdrawals))
	}
	if history.TotalWithdrawn.Cmp(ether(7)) != 0 {
		t.Errorf("expected newest running total 7 ether, got %s", history.TotalWithdrawn)
	}
	if history.DroppedLogs != 0 {
		t.Errorf("expected no dropped logs, got %d", history.DroppedLogs)
	}

	// Two distinct blocks, looked up once each
	if reader.CallCount("GetBlockTimestampByHash") != 2 {
		t.Errorf("expected 2 block lookups, got %d", reader.CallCount("GetBlockTimestampByHash"))
	}

	for _, r := range history.Referrals {
		switch r.BlockNumber {
		case 6000:
			if r.TimestampMs != timeA.UnixMilli() {
				t.Errorf("block 6000 event has wrong time %d", r.TimestampMs)
			}
		case 7000:
			if r.TimestampMs != timeB.UnixMilli() {
				t.Errorf("block 7000 event has wrong time %d", r.TimestampMs)
			}
		}
	}
}

func TestScanner_FetchHistory_DropsEventsOfFailedBlockLookup(t *testing.T) {
	scanner, reader := setupScannerTest(10000)

	good := common.HexToHash("0xa1")
	bad := common.HexToHash("0xb2")
	reader.SetBlockTime(good, testutil.BaseTime)
	reader.BlockErrs[bad] = errors.New("header not found")

	reader.AddLogs(
		purchaseLog(6000, good, common.HexToHash("0x01"), 0, ether(1), ether(1), ether(1), big.NewInt(1)),
		purchaseLog(7000, bad, common.HexToHash("0x02"), 0, ether(1), ether(1), ether(1), big.NewInt(1)),
	)

	history, err := scanner.FetchHistory(context.Background(), testReferrer.Hex())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(history.Referrals) != 1 {
		t.Fatalf("expected 1 referral to survive, got %d", len(history.Referrals))
	}
	if history.Referrals[0].BlockNumber != 6000 {
		t.Errorf("expected surviving event from block 6000, got %d", history.Referrals[0].BlockNumber)
	}
	if history.DroppedLogs != 1 {
		t.Errorf("expected 1 dropped log, got %d", history.DroppedLogs)
	}
}

func TestScanner_FetchHistory_LogQueryFailureSkipsOnlyThatKind(t *testing.T) {
	scanner, reader := setupScannerTest(10000)
	reader.LogsErr[PurchaseEventSignature] = errors.New("query returned more than 10000 results")
	reader.AddLogs(withdrawalLog(8000, common.HexToHash("0x05"), 0, ether(1), ether(1), 1705400000))

	history, err := scanner.FetchHistory(context.Background(), testReferrer.Hex())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(history.Referrals) != 0 {
		t.Errorf("expected no referrals, got %d", len(history.Referrals))
	}
	if len(history.Withdrawals) != 1 {
		t.Errorf("expected 1 withdrawal, got %d", len(history.Withdrawals))
	}
}

func TestScanner_FetchHistory_AllLogQueriesFailed(t *testing.T) {
	scanner, reader := setupScannerTest(10000)
	reader.LogsErr[PurchaseEventSignature] = errors.New("rate limited")
	reader.LogsErr[WithdrawalEventSignature] = errors.New("rate limited")

	history, err := scanner.FetchHistory(context.Background(), testReferrer.Hex())
	if !errors.Is(err, entities.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
	if history != nil {
		t.Errorf("expected no history, got %+v", history)
	}
}

func TestScanner_FetchHistory_MalformedLogDropped(t *testing.T) {
	scanner, reader := setupScannerTest(10000)
	block := common.HexToHash("0xa1")
	reader.SetBlockTime(block, testutil.BaseTime)

	broken := purchaseLog(6000, block, common.HexToHash("0x01"), 0, ether(1), ether(1), ether(1), big.NewInt(1))
	broken.Data = broken.Data[:64]
	reader.AddLogs(
		broken,
		purchaseLog(6001, block, common.HexToHash("0x02"), 0, ether(1), ether(1), ether(1), big.NewInt(1)),
	)

	history, err := scanner.FetchHistory(context.Background(), testReferrer.Hex())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history.Referrals) != 1 {
		t.Errorf("expected 1 referral, got %d", len(history.Referrals))
	}
	if history.DroppedLogs != 1 {
		t.Errorf("expected 1 dropped log, got %d", history.DroppedLogs)
	}
}
