package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bimakw/referral-dashboard/internal/domain/entities"
	"github.com/bimakw/referral-dashboard/internal/domain/repositories"
)

type MockCall struct {
	Method string
	Args   []interface{}
}

// MockChainReader is an in-memory chain keyed by event signature and block hash
type MockChainReader struct {
	mu sync.RWMutex

	Head       uint64
	HeadErr    error
	Logs       map[common.Hash][]types.Log // keyed by topic 0
	LogsErr    map[common.Hash]error
	BlockTimes map[common.Hash]time.Time
	BlockErrs  map[common.Hash]error

	// Call tracking
	Calls []MockCall
}

func NewMockChainReader(head uint64) *MockChainReader {
	return &MockChainReader{
		Head:       head,
		Logs:       make(map[common.Hash][]types.Log),
		LogsErr:    make(map[common.Hash]error),
		BlockTimes: make(map[common.Hash]time.Time),
		BlockErrs:  make(map[common.Hash]error),
		Calls:      make([]MockCall, 0),
	}
}

func (m *MockChainReader) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "GetLatestBlockNumber"})

	if m.HeadErr != nil {
		return 0, m.HeadErr
	}
	return m.Head, nil
}

// GetLogs filters stored logs by topic 0, the topic 1 filter and the block range
func (m *MockChainReader) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "GetLogs", Args: []interface{}{query}})

	if len(query.Topics) == 0 || len(query.Topics[0]) == 0 {
		return nil, errors.New("query without event signature")
	}
	signature := query.Topics[0][0]

	if err := m.LogsErr[signature]; err != nil {
		return nil, err
	}

	result := make([]types.Log, 0)
	for _, log := range m.Logs[signature] {
		if query.FromBlock != nil && log.BlockNumber < query.FromBlock.Uint64() {
			continue
		}
		if query.ToBlock != nil && log.BlockNumber > query.ToBlock.Uint64() {
			continue
		}
		if len(query.Topics) > 1 && len(query.Topics[1]) > 0 {
			if len(log.Topics) < 2 || log.Topics[1] != query.Topics[1][0] {
				continue
			}
		}
		result = append(result, log)
	}
	return result, nil
}

func (m *MockChainReader) GetBlockTimestampByHash(ctx context.Context, hash common.Hash) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "GetBlockTimestampByHash", Args: []interface{}{hash}})

	if err := m.BlockErrs[hash]; err != nil {
		return time.Time{}, err
	}
	ts, ok := m.BlockTimes[hash]
	if !ok {
		return time.Time{}, errors.New("block not found")
	}
	return ts, nil
}

// AddLogs stores logs under their topic 0
func (m *MockChainReader) AddLogs(logs ...types.Log) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, log := range logs {
		m.Logs[log.Topics[0]] = append(m.Logs[log.Topics[0]], log)
	}
}

// SetBlockTime registers the timestamp of a block
func (m *MockChainReader) SetBlockTime(hash common.Hash, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BlockTimes[hash] = ts
}

// CallCount returns how many times a method was called
func (m *MockChainReader) CallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Ensure MockChainHistoryScanner implements ChainHistoryScanner
var _ repositories.ChainHistoryScanner = (*MockChainHistoryScanner)(nil)

// MockChainHistoryScanner returns a canned history for one network
type MockChainHistoryScanner struct {
	mu sync.Mutex

	ChainValue entities.Chain
	History    *entities.ChainHistory
	Err        error

	FetchHistoryFunc func(ctx context.Context, address string) (*entities.ChainHistory, error)

	Calls []MockCall
}

func NewMockChainHistoryScanner(chain entities.Chain) *MockChainHistoryScanner {
	return &MockChainHistoryScanner{
		ChainValue: chain,
		Calls:      make([]MockCall, 0),
	}
}

func (m *MockChainHistoryScanner) Chain() entities.Chain {
	return m.ChainValue
}

func (m *MockChainHistoryScanner) FetchHistory(ctx context.Context, address string) (*entities.ChainHistory, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "FetchHistory", Args: []interface{}{address}})
	m.mu.Unlock()

	if m.FetchHistoryFunc != nil {
		return m.FetchHistoryFunc(ctx, address)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.History, nil
}

// Ensure MockUserIndex implements UserIndex
var _ repositories.UserIndex = (*MockUserIndex)(nil)

// MockUserIndex is an in-memory indexing service for one network
type MockUserIndex struct {
	mu sync.Mutex

	ChainValue  entities.Chain
	User        *entities.IndexedUser
	Err         error
	LatestBlock uint64
	BlockErr    error

	QueryUserFunc func(ctx context.Context, address string) (*entities.IndexedUser, error)

	Calls []MockCall
}

func NewMockUserIndex(chain entities.Chain) *MockUserIndex {
	return &MockUserIndex{
		ChainValue: chain,
		Calls:      make([]MockCall, 0),
	}
}

func (m *MockUserIndex) Chain() entities.Chain {
	return m.ChainValue
}

func (m *MockUserIndex) QueryUser(ctx context.Context, address string) (*entities.IndexedUser, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "QueryUser", Args: []interface{}{address}})
	fn, user, err := m.QueryUserFunc, m.User, m.Err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, address)
	}
	return user, err
}

func (m *MockUserIndex) LatestIndexedBlock(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "LatestIndexedBlock"})

	if m.BlockErr != nil {
		return 0, m.BlockErr
	}
	return m.LatestBlock, nil
}

// SetLatestBlock changes the reported block under the lock
func (m *MockUserIndex) SetLatestBlock(block uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LatestBlock = block
	m.BlockErr = err
}

// CallCount returns how many times a method was called
func (m *MockUserIndex) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.Calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Ensure MockHistorySource implements HistorySource
var _ repositories.HistorySource = (*MockHistorySource)(nil)

// MockHistorySource returns canned summaries, optionally blocking until released
type MockHistorySource struct {
	mu sync.Mutex

	Kind    entities.DataSource
	Summary *entities.UserReferralSummary
	Err     error

	FetchSummaryFunc func(ctx context.Context, address string) (*entities.UserReferralSummary, error)

	Calls []MockCall
}

func NewMockHistorySource(kind entities.DataSource) *MockHistorySource {
	return &MockHistorySource{
		Kind:  kind,
		Calls: make([]MockCall, 0),
	}
}

func (m *MockHistorySource) FetchSummary(ctx context.Context, address string) (*entities.UserReferralSummary, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "FetchSummary", Args: []interface{}{address}})
	fn, summary, err := m.FetchSummaryFunc, m.Summary, m.Err
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, address)
	}
	return summary, err
}

func (m *MockHistorySource) Source() entities.DataSource {
	return m.Kind
}

// CallCount returns the number of FetchSummary calls
func (m *MockHistorySource) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockHealthChecker is a configurable health checker
type MockHealthChecker struct {
	mu sync.RWMutex

	Healthy bool
	Error   error
	Calls   []MockCall
}

func NewMockHealthChecker(healthy bool) *MockHealthChecker {
	var err error
	if !healthy {
		err = errors.New("health check failed")
	}
	return &MockHealthChecker{
		Healthy: healthy,
		Error:   err,
		Calls:   make([]MockCall, 0),
	}
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "HealthCheck", Args: nil})

	return m.Error
}

func (m *MockHealthChecker) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Healthy = healthy
	if healthy {
		m.Error = nil
	} else {
		m.Error = errors.New("health check failed")
	}
}

// MockCache is an in-memory JSON cache
type MockCache struct {
	mu sync.Mutex

	Data   map[string][]byte
	TTLs   map[string]time.Duration
	SetErr error
	Calls  []MockCall
}

func NewMockCache() *MockCache {
	return &MockCache{
		Data:  make(map[string][]byte),
		TTLs:  make(map[string]time.Duration),
		Calls: make([]MockCall, 0),
	}
}

func (m *MockCache) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "Get", Args: []interface{}{key}})

	data, ok := m.Data[key]
	if !ok {
		return errors.New("cache miss")
	}
	return json.Unmarshal(data, dest)
}

func (m *MockCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: "SetWithTTL", Args: []interface{}{key, ttl}})

	if m.SetErr != nil {
		return m.SetErr
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.Data[key] = data
	m.TTLs[key] = ttl
	return nil
}

// Has reports whether a key is cached
func (m *MockCache) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Data[key]
	return ok
}
