package entities

import (
	"math/big"
)

// ChainHistory is what a log scan of one network found for a referrer
type ChainHistory struct {
	Chain       Chain
	Referrals   []ReferralEvent
	Withdrawals []WithdrawalEvent

	// Base-unit totals over everything seen in the window
	ReferralCount  int64
	TotalEarned    *big.Int
	TotalWithdrawn *big.Int

	FromBlock   uint64
	ToBlock     uint64
	DroppedLogs int
}
