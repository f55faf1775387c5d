package entities

import (
	"errors"
)

var (
	// ErrInvalidAddress is returned for user addresses that are not 20-byte hex addresses
	ErrInvalidAddress = errors.New("invalid address")

	// ErrSourceUnavailable is returned when a network cannot be reached
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrAllSourcesUnavailable is returned alongside an empty summary when no network answered
	ErrAllSourcesUnavailable = errors.New("referral data unavailable on all networks")
)
