// Package units converts base-unit token amounts and epoch timestamps into
// display strings. All amount arithmetic is done on big.Int.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// DefaultDecimals is the decimal count of USD-denominated amounts
const DefaultDecimals = 18

// TimestampLayout is the display layout for event times
const TimestampLayout = "Jan 2, 2006, 3:04:05 PM"

var (
	// ErrInvalidAmount is returned for amounts that are not non-negative base-10 integers
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidTimestamp is returned for timestamps that are not non-negative integers
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

var big10 = big.NewInt(10)

// FormatAmount converts a base-unit integer string to a decimal string.
// Empty, zero and unparseable values format as "0".
func FormatAmount(raw string, decimals int) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "0"
	}

	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return "0"
	}
	return FormatBigAmount(value, decimals)
}

// FormatBigAmount converts a base-unit integer to a decimal string with
// trailing fractional zeros removed.
func FormatBigAmount(value *big.Int, decimals int) string {
	if value == nil || value.Sign() == 0 {
		return "0"
	}
	if decimals <= 0 {
		return value.String()
	}

	abs := new(big.Int).Abs(value)
	divisor := new(big.Int).Exp(big10, big.NewInt(int64(decimals)), nil)

	whole, frac := new(big.Int).QuoRem(abs, divisor, new(big.Int))

	sign := ""
	if value.Sign() < 0 {
		sign = "-"
	}

	if frac.Sign() == 0 {
		return sign + whole.String()
	}

	fracStr := frac.String()
	fracStr = strings.Repeat("0", decimals-len(fracStr)) + fracStr
	fracStr = strings.TrimRight(fracStr, "0")

	return sign + whole.String() + "." + fracStr
}

// ParseAmount parses a non-negative base-10 integer
func ParseAmount(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if !isDigits(raw) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}

	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	return value, nil
}

// ParseTimestampMs converts epoch seconds to epoch milliseconds
func ParseTimestampMs(epochSeconds string) (int64, error) {
	epochSeconds = strings.TrimSpace(epochSeconds)
	if !isDigits(epochSeconds) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, epochSeconds)
	}

	value, ok := new(big.Int).SetString(epochSeconds, 10)
	if !ok || !value.IsInt64() || value.Int64() > maxEpochSeconds {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidTimestamp, epochSeconds)
	}

	return value.Int64() * 1000, nil
}

// maxEpochSeconds keeps the millisecond value within int64
const maxEpochSeconds = (1<<63 - 1) / 1000

// FormatTimestamp converts epoch seconds to a local display string
func FormatTimestamp(epochSeconds string) (string, error) {
	ms, err := ParseTimestampMs(epochSeconds)
	if err != nil {
		return "", err
	}
	return FormatTimestampMs(ms), nil
}

// FormatTimestampMs formats epoch milliseconds in the local zone
func FormatTimestampMs(ms int64) string {
	return time.UnixMilli(ms).Local().Format(TimestampLayout)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
