package entities

import (
	"sort"
)

// Chain identifies the network an event was produced on
type Chain string

const (
	ChainETH Chain = "ETH"
	ChainBNB Chain = "BNB"
)

// Chains lists the networks in a fixed order
var Chains = []Chain{ChainETH, ChainBNB}

// DataSource identifies which history source produced a summary
type DataSource string

const (
	DataSourceIndexed DataSource = "indexed"
	DataSourceScan    DataSource = "scan"
)

// ReferralEvent is one completed purchase attributed to a referrer
type ReferralEvent struct {
	ID                 string `json:"id"`
	Chain              Chain  `json:"chain"`
	Buyer              string `json:"buyer"`
	USDAmount          string `json:"usd_amount"`
	NativeCurrencyPaid string `json:"native_currency_paid"`
	CashbackAmount     string `json:"cashback_amount"`
	BonusPercent       string `json:"bonus_percent"`
	TimestampMs        int64  `json:"timestamp_ms"`
	Timestamp          string `json:"timestamp"`
	TransactionHash    string `json:"transaction_hash"`
	BlockNumber        uint64 `json:"block_number"`
}

// WithdrawalEvent is one payout of accumulated referral earnings
type WithdrawalEvent struct {
	ID                   string `json:"id"`
	Chain                Chain  `json:"chain"`
	Amount               string `json:"amount"`
	TotalWithdrawnToDate string `json:"total_withdrawn_to_date"`
	TimestampMs          int64  `json:"timestamp_ms"`
	Timestamp            string `json:"timestamp"`
	TransactionHash      string `json:"transaction_hash"`
	BlockNumber          uint64 `json:"block_number"`
}

// UserReferralSummary is the combined view of one address across both networks
type UserReferralSummary struct {
	Address          string            `json:"address"`
	TotalReferrals   int64             `json:"total_referrals"`
	TotalEarned      string            `json:"total_earned"`
	TotalWithdrawn   string            `json:"total_withdrawn"`
	ReferralEvents   []ReferralEvent   `json:"referral_events"`
	WithdrawalEvents []WithdrawalEvent `json:"withdrawal_events"`
}

// EmptySummary returns the zero state shown when there is no data
func EmptySummary(address string) *UserReferralSummary {
	return &UserReferralSummary{
		Address:          address,
		TotalEarned:      "0",
		TotalWithdrawn:   "0",
		ReferralEvents:   []ReferralEvent{},
		WithdrawalEvents: []WithdrawalEvent{},
	}
}

// IsEmpty reports whether the summary carries no counts and no events
func (s *UserReferralSummary) IsEmpty() bool {
	return s.TotalReferrals == 0 &&
		len(s.ReferralEvents) == 0 &&
		len(s.WithdrawalEvents) == 0 &&
		s.TotalEarned == "0" &&
		s.TotalWithdrawn == "0"
}

// MergeReferralEvents deduplicates by ID and sorts newest first.
// The first occurrence of an ID wins.
func MergeReferralEvents(lists ...[]ReferralEvent) []ReferralEvent {
	seen := make(map[string]struct{})
	merged := make([]ReferralEvent, 0)
	for _, list := range lists {
		for _, e := range list {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			merged = append(merged, e)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].TimestampMs != merged[j].TimestampMs {
			return merged[i].TimestampMs > merged[j].TimestampMs
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}

// MergeWithdrawalEvents deduplicates by ID and sorts newest first
func MergeWithdrawalEvents(lists ...[]WithdrawalEvent) []WithdrawalEvent {
	seen := make(map[string]struct{})
	merged := make([]WithdrawalEvent, 0)
	for _, list := range lists {
		for _, e := range list {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			merged = append(merged, e)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].TimestampMs != merged[j].TimestampMs {
			return merged[i].TimestampMs > merged[j].TimestampMs
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}
