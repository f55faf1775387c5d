package testutil

import (
	"fmt"
	"math/big"
	"time"

	"github.com/bimakw/referral-dashboard/internal/domain/entities"
	"github.com/bimakw/referral-dashboard/internal/domain/units"
)

// Common test addresses
const (
	ContractAddress = "0x5fbdb2315678afecb367f032d93f642f64180aa3"
	AliceAddress    = "0x1111111111111111111111111111111111111111"
	BobAddress      = "0x2222222222222222222222222222222222222222"
	CharlieAddr     = "0x3333333333333333333333333333333333333333"
)

// BaseTime is the reference time of generated events
var BaseTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// CreateTestReferralEvent creates a referral event with default values
func CreateTestReferralEvent(opts ...ReferralOption) entities.ReferralEvent {
	ms := BaseTime.UnixMilli()
	e := entities.ReferralEvent{
		ID:                 "ETH-0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa-0",
		Chain:              entities.ChainETH,
		Buyer:              BobAddress,
		USDAmount:          "100",
		NativeCurrencyPaid: "0.05",
		CashbackAmount:     "5",
		BonusPercent:       "5",
		TimestampMs:        ms,
		Timestamp:          units.FormatTimestampMs(ms),
		TransactionHash:    "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		BlockNumber:        12345678,
	}

	for _, opt := range opts {
		opt(&e)
	}

	return e
}

type ReferralOption func(*entities.ReferralEvent)

func ReferralWithID(id string) ReferralOption {
	return func(e *entities.ReferralEvent) {
		e.ID = id
	}
}

func ReferralWithChain(chain entities.Chain) ReferralOption {
	return func(e *entities.ReferralEvent) {
		e.Chain = chain
	}
}

func ReferralWithTimestampMs(ms int64) ReferralOption {
	return func(e *entities.ReferralEvent) {
		e.TimestampMs = ms
		e.Timestamp = units.FormatTimestampMs(ms)
	}
}

func ReferralWithBuyer(buyer string) ReferralOption {
	return func(e *entities.ReferralEvent) {
		e.Buyer = buyer
	}
}

// CreateTestWithdrawalEvent creates a withdrawal event with default values
func CreateTestWithdrawalEvent(opts ...WithdrawalOption) entities.WithdrawalEvent {
	ms := BaseTime.UnixMilli()
	e := entities.WithdrawalEvent{
		ID:                   "ETH-0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb-1",
		Chain:                entities.ChainETH,
		Amount:               "5",
		TotalWithdrawnToDate: "5",
		TimestampMs:          ms,
		Timestamp:            units.FormatTimestampMs(ms),
		TransactionHash:      "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		BlockNumber:          12345679,
	}

	for _, opt := range opts {
		opt(&e)
	}

	return e
}

type WithdrawalOption func(*entities.WithdrawalEvent)

func WithdrawalWithID(id string) WithdrawalOption {
	return func(e *entities.WithdrawalEvent) {
		e.ID = id
	}
}

func WithdrawalWithChain(chain entities.Chain) WithdrawalOption {
	return func(e *entities.WithdrawalEvent) {
		e.Chain = chain
	}
}

func WithdrawalWithTimestampMs(ms int64) WithdrawalOption {
	return func(e *entities.WithdrawalEvent) {
		e.TimestampMs = ms
		e.Timestamp = units.FormatTimestampMs(ms)
	}
}

// GenerateReferralEvents creates n events on a chain, one minute apart,
// starting at BaseTime plus offset minutes.
func GenerateReferralEvents(chain entities.Chain, n, offset int) []entities.ReferralEvent {
	events := make([]entities.ReferralEvent, n)
	for i := 0; i < n; i++ {
		ms := BaseTime.Add(time.Duration(offset+i) * time.Minute).UnixMilli()
		events[i] = CreateTestReferralEvent(
			ReferralWithID(fmt.Sprintf("%s-0x%064x-%d", chain, offset+i, i)),
			ReferralWithChain(chain),
			ReferralWithTimestampMs(ms),
		)
	}
	return events
}

// CreateTestChainHistory creates a scan result for one chain
func CreateTestChainHistory(chain entities.Chain, referrals []entities.ReferralEvent, withdrawals []entities.WithdrawalEvent) *entities.ChainHistory {
	if referrals == nil {
		referrals = []entities.ReferralEvent{}
	}
	if withdrawals == nil {
		withdrawals = []entities.WithdrawalEvent{}
	}
	return &entities.ChainHistory{
		Chain:          chain,
		Referrals:      referrals,
		Withdrawals:    withdrawals,
		ReferralCount:  int64(len(referrals)),
		TotalEarned:    new(big.Int),
		TotalWithdrawn: new(big.Int),
		FromBlock:      0,
		ToBlock:        5000,
	}
}

// Ether returns n * 10^18
func Ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

// CreateIndexedUser creates an indexing-service user record
func CreateIndexedUser(referrals int64, earned, withdrawn *big.Int) *entities.IndexedUser {
	return &entities.IndexedUser{
		ID:               AliceAddress,
		TotalReferrals:   big.NewInt(referrals),
		TotalEarned:      earned,
		TotalWithdrawn:   withdrawn,
		ReferralEvents:   []entities.IndexedReferralEvent{},
		WithdrawalEvents: []entities.IndexedWithdrawalEvent{},
	}
}

// CreateIndexedReferral creates an indexing-service referral record
func CreateIndexedReferral(chain entities.Chain, id string, timestamp int64) entities.IndexedReferralEvent {
	return entities.IndexedReferralEvent{
		ID:              id,
		Chain:           chain,
		Buyer:           BobAddress,
		USDAmount:       Ether(100),
		NativeAmount:    big.NewInt(50000000000000000),
		CashbackAmount:  Ether(5),
		BonusPercent:    big.NewInt(5),
		Timestamp:       big.NewInt(timestamp),
		TransactionHash: "0xcccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc",
		BlockNumber:     big.NewInt(4000000),
	}
}

// CreateIndexedWithdrawal creates an indexing-service withdrawal record
func CreateIndexedWithdrawal(chain entities.Chain, id string, timestamp int64, amount, total *big.Int) entities.IndexedWithdrawalEvent {
	return entities.IndexedWithdrawalEvent{
		ID:              id,
		Chain:           chain,
		Amount:          amount,
		TotalWithdrawn:  total,
		Timestamp:       big.NewInt(timestamp),
		TransactionHash: "0xdddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd",
		BlockNumber:     big.NewInt(4000001),
	}
}
