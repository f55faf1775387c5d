package entities

import (
	"math/big"
)

// IndexedUser is the per-network user record returned by the indexing service.
// Counters, amounts and timestamps stay in base units until display.
type IndexedUser struct {
	ID               string
	TotalReferrals   *big.Int
	TotalEarned      *big.Int
	TotalWithdrawn   *big.Int
	ReferralEvents   []IndexedReferralEvent
	WithdrawalEvents []IndexedWithdrawalEvent
}

// IndexedReferralEvent is a raw purchase record from the indexing service
type IndexedReferralEvent struct {
	ID              string
	Chain           Chain
	Buyer           string
	USDAmount       *big.Int
	NativeAmount    *big.Int
	CashbackAmount  *big.Int
	BonusPercent    *big.Int
	Timestamp       *big.Int // epoch seconds
	TransactionHash string
	BlockNumber     *big.Int
}

// IndexedWithdrawalEvent is a raw withdrawal record from the indexing service
type IndexedWithdrawalEvent struct {
	ID              string
	Chain           Chain
	Amount          *big.Int
	TotalWithdrawn  *big.Int
	Timestamp       *big.Int // epoch seconds
	TransactionHash string
	BlockNumber     *big.Int
}
