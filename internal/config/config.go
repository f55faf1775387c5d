package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	// Data source selection
	Source SourceConfig

	// Per-network settings
	ETH ChainConfig `envconfig:"ETH"`
	BNB ChainConfig `envconfig:"BNB"`

	// Shared RPC behaviour
	RPC RPCConfig

	// Log scan settings
	Scan ScanConfig

	// Indexing service settings
	Graph GraphConfig

	// Status reporter settings
	Status StatusConfig

	// Dashboard session settings
	Session SessionConfig

	// Redis configuration
	Redis RedisConfig

	// API server configuration
	API APIConfig

	// Logging configuration
	Log LogConfig
}

// SourceConfig selects the history source. It is read once at startup.
type SourceConfig struct {
	UseIndexed       bool   `envconfig:"USE_INDEXED_SOURCE" default:"true"`
	ChainsConfigFile string `envconfig:"CHAINS_CONFIG_FILE" default:""`
}

// ChainConfig holds the settings of one network
type ChainConfig struct {
	RPCURL          string `envconfig:"RPC_URL" yaml:"rpc"`
	ChainID         int64  `envconfig:"CHAIN_ID" yaml:"chain_id"`
	ContractAddress string `envconfig:"CONTRACT_ADDRESS" yaml:"contract"`
	GraphURL        string `envconfig:"GRAPH_URL" yaml:"graph"`
	ScanWindow      uint64 `envconfig:"SCAN_WINDOW" default:"5000" yaml:"scan_window"`
	NativeDecimals  int    `envconfig:"NATIVE_DECIMALS" default:"18" yaml:"native_decimals"`
}

// RPCConfig holds chain node request settings
type RPCConfig struct {
	RequestTimeout time.Duration `envconfig:"RPC_REQUEST_TIMEOUT" default:"30s"`
	MaxRetries     int           `envconfig:"RPC_MAX_RETRIES" default:"3"`
	RetryDelay     time.Duration `envconfig:"RPC_RETRY_DELAY" default:"1s"`
}

// ScanConfig holds log scan settings
type ScanConfig struct {
	MaxEvents   int `envconfig:"SCAN_MAX_EVENTS" default:"50"`
	WorkerCount int `envconfig:"SCAN_WORKER_COUNT" default:"4"`
}

// GraphConfig holds indexing service settings
type GraphConfig struct {
	PageSize       int           `envconfig:"GRAPH_PAGE_SIZE" default:"100"`
	RequestTimeout time.Duration `envconfig:"GRAPH_REQUEST_TIMEOUT" default:"15s"`
}

// StatusConfig holds status reporter settings
type StatusConfig struct {
	PollInterval time.Duration `envconfig:"STATUS_POLL_INTERVAL" default:"30s"`
}

// SessionConfig holds dashboard session settings
type SessionConfig struct {
	IdleTTL       time.Duration `envconfig:"SESSION_IDLE_TTL" default:"30m"`
	SweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1m"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"false"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// APIConfig holds API server settings
type APIConfig struct {
	Host            string        `envconfig:"API_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"API_PORT" default:"8081"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    int           `envconfig:"API_RATE_LIMIT_RPS" default:"100"`
	CacheTTL        time.Duration `envconfig:"API_CACHE_TTL" default:"30s"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// Testnet defaults used when neither the environment nor the chains file sets a value
var (
	defaultETH = ChainConfig{
		RPCURL:  "https://ethereum-sepolia-rpc.publicnode.com",
		ChainID: 11155111,
	}
	defaultBNB = ChainConfig{
		RPCURL:  "https://bsc-testnet-rpc.publicnode.com",
		ChainID: 97,
	}
)

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if cfg.Source.ChainsConfigFile != "" {
		if err := cfg.applyChainsFile(cfg.Source.ChainsConfigFile); err != nil {
			return nil, err
		}
	}

	cfg.ETH.fillDefaults(defaultETH)
	cfg.BNB.fillDefaults(defaultBNB)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings the services cannot run without
func (c *Config) Validate() error {
	for name, chain := range map[string]ChainConfig{"ETH": c.ETH, "BNB": c.BNB} {
		if c.Source.UseIndexed && chain.GraphURL == "" {
			return fmt.Errorf("%s_GRAPH_URL is required when the indexed source is enabled", name)
		}
		if !c.Source.UseIndexed && chain.ContractAddress == "" {
			return fmt.Errorf("%s_CONTRACT_ADDRESS is required when the scan source is enabled", name)
		}
		if chain.NativeDecimals < 0 {
			return fmt.Errorf("%s_NATIVE_DECIMALS must not be negative", name)
		}
	}
	if c.Scan.MaxEvents <= 0 {
		return fmt.Errorf("SCAN_MAX_EVENTS must be positive")
	}
	if c.Graph.PageSize <= 0 {
		return fmt.Errorf("GRAPH_PAGE_SIZE must be positive")
	}
	return nil
}

// Chain returns the settings of a network by name. Unknown names get the zero value.
func (c *Config) Chain(name string) ChainConfig {
	switch strings.ToUpper(name) {
	case "ETH":
		return c.ETH
	case "BNB":
		return c.BNB
	default:
		return ChainConfig{}
	}
}

// chainsFile mirrors the optional YAML file keyed by network name
type chainsFile struct {
	Chains map[string]ChainConfig `yaml:"chains"`
}

// applyChainsFile overlays non-zero per-chain values from a YAML file.
// Environment variables referenced as ${VAR} are expanded before parsing.
func (c *Config) applyChainsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read chains config file: %w", err)
	}

	var file chainsFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &file); err != nil {
		return fmt.Errorf("failed to parse chains config file: %w", err)
	}

	for name, chain := range file.Chains {
		switch strings.ToUpper(name) {
		case "ETH":
			c.ETH.overlay(chain)
		case "BNB":
			c.BNB.overlay(chain)
		default:
			return fmt.Errorf("unknown chain %q in chains config file", name)
		}
	}
	return nil
}

func (c *ChainConfig) overlay(o ChainConfig) {
	if o.RPCURL != "" {
		c.RPCURL = o.RPCURL
	}
	if o.ChainID != 0 {
		c.ChainID = o.ChainID
	}
	if o.ContractAddress != "" {
		c.ContractAddress = o.ContractAddress
	}
	if o.GraphURL != "" {
		c.GraphURL = o.GraphURL
	}
	if o.ScanWindow != 0 {
		c.ScanWindow = o.ScanWindow
	}
	if o.NativeDecimals != 0 {
		c.NativeDecimals = o.NativeDecimals
	}
}

func (c *ChainConfig) fillDefaults(d ChainConfig) {
	if c.RPCURL == "" {
		c.RPCURL = d.RPCURL
	}
	if c.ChainID == 0 {
		c.ChainID = d.ChainID
	}
}
