package ethereum

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/bimakw/referral-dashboard/internal/domain/entities"
	"github.com/bimakw/referral-dashboard/internal/domain/units"
)

// Presale contract events. The referrer is the first indexed argument of both.
const (
	PurchaseEventABI   = "ReferralPurchase(address,address,uint256,uint256,uint256,uint256)"
	WithdrawalEventABI = "ReferralWithdrawal(address,uint256,uint256,uint256)"
)

var (
	// PurchaseEventSignature is topic 0 of ReferralPurchase
	PurchaseEventSignature = crypto.Keccak256Hash([]byte(PurchaseEventABI))

	// WithdrawalEventSignature is topic 0 of ReferralWithdrawal
	WithdrawalEventSignature = crypto.Keccak256Hash([]byte(WithdrawalEventABI))
)

const wordSize = 32

// ReferrerTopic left-pads an address into an indexed topic
func ReferrerTopic(address common.Address) common.Hash {
	return common.BytesToHash(address.Bytes())
}

// EventID builds the id of a log-scan event
func EventID(chain entities.Chain, txHash common.Hash, logIndex uint) string {
	return fmt.Sprintf("%s-%s-%d", chain, strings.ToLower(txHash.Hex()), logIndex)
}

// PurchaseLog is a decoded ReferralPurchase log before display formatting
type PurchaseLog struct {
	Referrer       common.Address
	Buyer          common.Address
	USDAmount      *big.Int
	NativeAmount   *big.Int
	CashbackAmount *big.Int
	BonusPercent   *big.Int
}

// WithdrawalLog is a decoded ReferralWithdrawal log before display formatting
type WithdrawalLog struct {
	Referrer       common.Address
	Amount         *big.Int
	TotalWithdrawn *big.Int
	Timestamp      *big.Int
}

// DecodePurchaseLog decodes the topics and data of a ReferralPurchase log
func DecodePurchaseLog(log types.Log) (*PurchaseLog, error) {
	// Topics: signature, referrer, buyer
	if len(log.Topics) != 3 {
		return nil, fmt.Errorf("invalid number of topics: expected 3, got %d", len(log.Topics))
	}
	if log.Topics[0] != PurchaseEventSignature {
		return nil, fmt.Errorf("not a ReferralPurchase event")
	}

	words, err := splitWords(log.Data, 4)
	if err != nil {
		return nil, err
	}

	return &PurchaseLog{
		Referrer:       common.BytesToAddress(log.Topics[1].Bytes()),
		Buyer:          common.BytesToAddress(log.Topics[2].Bytes()),
		USDAmount:      words[0],
		NativeAmount:   words[1],
		CashbackAmount: words[2],
		BonusPercent:   words[3],
	}, nil
}

// DecodeWithdrawalLog decodes the topics and data of a ReferralWithdrawal log
func DecodeWithdrawalLog(log types.Log) (*WithdrawalLog, error) {
	// Topics: signature, referrer
	if len(log.Topics) != 2 {
		return nil, fmt.Errorf("invalid number of topics: expected 2, got %d", len(log.Topics))
	}
	if log.Topics[0] != WithdrawalEventSignature {
		return nil, fmt.Errorf("not a ReferralWithdrawal event")
	}

	words, err := splitWords(log.Data, 3)
	if err != nil {
		return nil, err
	}

	return &WithdrawalLog{
		Referrer:       common.BytesToAddress(log.Topics[1].Bytes()),
		Amount:         words[0],
		TotalWithdrawn: words[1],
		Timestamp:      words[2],
	}, nil
}

// ParsePurchaseLog converts a ReferralPurchase log into a ReferralEvent.
// Log-scan purchases carry no time of their own, so the block time is passed in.
func ParsePurchaseLog(log types.Log, chain entities.Chain, nativeDecimals int, blockTime time.Time) (*entities.ReferralEvent, *PurchaseLog, error) {
	decoded, err := DecodePurchaseLog(log)
	if err != nil {
		return nil, nil, err
	}

	ms := blockTime.UnixMilli()
	return &entities.ReferralEvent{
		ID:                 EventID(chain, log.TxHash, log.Index),
		Chain:              chain,
		Buyer:              strings.ToLower(decoded.Buyer.Hex()),
		USDAmount:          units.FormatBigAmount(decoded.USDAmount, units.DefaultDecimals),
		NativeCurrencyPaid: units.FormatBigAmount(decoded.NativeAmount, nativeDecimals),
		CashbackAmount:     units.FormatBigAmount(decoded.CashbackAmount, units.DefaultDecimals),
		BonusPercent:       decoded.BonusPercent.String(),
		TimestampMs:        ms,
		Timestamp:          units.FormatTimestampMs(ms),
		TransactionHash:    strings.ToLower(log.TxHash.Hex()),
		BlockNumber:        log.BlockNumber,
	}, decoded, nil
}

// ParseWithdrawalLog converts a ReferralWithdrawal log into a WithdrawalEvent.
// Withdrawn amounts are USD-denominated cashback and always use units.DefaultDecimals,
// independent of the network's native decimals.
func ParseWithdrawalLog(log types.Log, chain entities.Chain) (*entities.WithdrawalEvent, *WithdrawalLog, error) {
	decoded, err := DecodeWithdrawalLog(log)
	if err != nil {
		return nil, nil, err
	}

	ms, err := units.ParseTimestampMs(decoded.Timestamp.String())
	if err != nil {
		return nil, nil, err
	}

	return &entities.WithdrawalEvent{
		ID:                   EventID(chain, log.TxHash, log.Index),
		Chain:                chain,
		Amount:               units.FormatBigAmount(decoded.Amount, units.DefaultDecimals),
		TotalWithdrawnToDate: units.FormatBigAmount(decoded.TotalWithdrawn, units.DefaultDecimals),
		TimestampMs:          ms,
		Timestamp:            units.FormatTimestampMs(ms),
		TransactionHash:      strings.ToLower(log.TxHash.Hex()),
		BlockNumber:          log.BlockNumber,
	}, decoded, nil
}

// IsPurchaseEvent checks if a log is a ReferralPurchase event
func IsPurchaseEvent(log types.Log) bool {
	return len(log.Topics) == 3 && log.Topics[0] == PurchaseEventSignature
}

// IsWithdrawalEvent checks if a log is a ReferralWithdrawal event
func IsWithdrawalEvent(log types.Log) bool {
	return len(log.Topics) == 2 && log.Topics[0] == WithdrawalEventSignature
}

// splitWords splits ABI-encoded static data into n uint256 words
func splitWords(data []byte, n int) ([]*big.Int, error) {
	if len(data) != n*wordSize {
		return nil, fmt.Errorf("invalid data length: expected %d, got %d", n*wordSize, len(data))
	}

	words := make([]*big.Int, n)
	for i := 0; i < n; i++ {
		words[i] = new(big.Int).SetBytes(data[i*wordSize : (i+1)*wordSize])
	}
	return words, nil
}
