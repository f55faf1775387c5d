package entities

import (
	"time"
)

// IndexerState is the liveness state of one network's indexing endpoint
type IndexerState string

const (
	IndexerStateLoading IndexerState = "loading"
	IndexerStateSuccess IndexerState = "success"
	IndexerStateError   IndexerState = "error"
)

// NetworkStatus is the last observed indexing status of a network
type NetworkStatus struct {
	Chain       Chain        `json:"chain"`
	State       IndexerState `json:"state"`
	BlockNumber uint64       `json:"block_number,omitempty"`
	Error       string       `json:"error,omitempty"`
	CheckedAt   *time.Time   `json:"checked_at,omitempty"`
}
