// Package config loads process configuration from the environment, an
// optional .env file, and command-line flags (flags win).
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// MaxRPCEndpoints is the largest fallback set the chain client accepts.
const MaxRPCEndpoints = 3

// DefaultGateways are public content gateways tried in rotation.
var DefaultGateways = []string{
	"https://ipfs.io",
	"https://gateway.pinata.cloud",
	"https://dweb.link",
}

// Config holds all runtime settings.
type Config struct {
	// Chain
	RPCURLs         []string
	RPCWSURL        string
	RPCRateLimit    int
	RPCMaxRetries   int
	RPCStallTimeout time.Duration

	// Contracts
	FactoryAddress     string
	MarketplaceAddress string

	// Indexer
	StartBlock    uint64
	Confirmations uint64
	BatchSize     uint64
	PollInterval  time.Duration
	RetryDelay    time.Duration

	// Storage
	PostgresDSN   string
	UseMemory     bool
	ClickHouseDSN string

	// Cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Metadata
	Gateways        []string
	MetadataTimeout time.Duration

	// Workers
	BootstrapConcurrency int
	RecomputeConcurrency int

	// Servers
	HTTPAddr    string
	MetricsAddr string

	// Logging
	LogLevel    string
	LogEncoding string
}

// Load reads the given .env files (missing files are ignored) and then
// builds a Config from the environment. Variables already set in the
// process environment take precedence over .env values.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from environment variables with defaults applied.
func FromEnv() *Config {
	return &Config{
		RPCURLs:         envList("RPC_URLS", nil),
		RPCWSURL:        env("RPC_WS_URL", ""),
		RPCRateLimit:    envInt("RPC_RATE_LIMIT", 100),
		RPCMaxRetries:   envInt("RPC_MAX_RETRIES", 2),
		RPCStallTimeout: envDuration("RPC_STALL_TIMEOUT", 2*time.Second),

		FactoryAddress:     env("FACTORY_ADDRESS", ""),
		MarketplaceAddress: env("MARKETPLACE_ADDRESS", ""),

		StartBlock:    envUint64("START_BLOCK", 0),
		Confirmations: envUint64("CONFIRMATIONS", 3),
		BatchSize:     envUint64("BATCH_SIZE", 1000),
		PollInterval:  envDuration("POLL_INTERVAL", 12*time.Second),
		RetryDelay:    envDuration("RETRY_DELAY", 5*time.Second),

		PostgresDSN:   env("POSTGRES_DSN", ""),
		UseMemory:     envBool("USE_MEMORY", false),
		ClickHouseDSN: env("CLICKHOUSE_DSN", ""),

		RedisAddr:     env("REDIS_ADDR", ""),
		RedisPassword: env("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		Gateways:        envList("IPFS_GATEWAYS", DefaultGateways),
		MetadataTimeout: envDuration("METADATA_TIMEOUT", 12*time.Second),

		BootstrapConcurrency: envInt("BOOTSTRAP_CONCURRENCY", 10),
		RecomputeConcurrency: envInt("RECOMPUTE_CONCURRENCY", 10),

		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9090"),

		LogLevel:    env("LOG_LEVEL", "info"),
		LogEncoding: env("LOG_ENCODING", "json"),
	}
}

// BindFlags registers flags on fs whose defaults are the current values.
// Call fs.Parse afterwards to let the command line override the environment.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.Var((*listValue)(&c.RPCURLs), "rpc-urls", "Comma-separated JSON-RPC endpoints (1-3), first is preferred")
	fs.StringVar(&c.RPCWSURL, "rpc-ws-url", c.RPCWSURL, "WebSocket endpoint for newHeads (optional)")
	fs.IntVar(&c.RPCRateLimit, "rpc-rate-limit", c.RPCRateLimit, "Max RPC calls per 10s window")
	fs.IntVar(&c.RPCMaxRetries, "rpc-max-retries", c.RPCMaxRetries, "Retries for retryable RPC failures")
	fs.DurationVar(&c.RPCStallTimeout, "rpc-stall-timeout", c.RPCStallTimeout, "Per-endpoint stall timeout before fallback")
	fs.StringVar(&c.FactoryAddress, "factory", c.FactoryAddress, "Token factory contract address")
	fs.StringVar(&c.MarketplaceAddress, "marketplace", c.MarketplaceAddress, "Marketplace contract address")
	fs.Uint64Var(&c.StartBlock, "start-block", c.StartBlock, "First block to index when the ledger is empty")
	fs.Uint64Var(&c.Confirmations, "confirmations", c.Confirmations, "Blocks behind head treated as final")
	fs.Uint64Var(&c.BatchSize, "batch-size", c.BatchSize, "Max blocks per indexer batch")
	fs.DurationVar(&c.PollInterval, "poll-interval", c.PollInterval, "Idle wait when no new blocks are final")
	fs.DurationVar(&c.RetryDelay, "retry-delay", c.RetryDelay, "Wait before retrying a failed batch")
	fs.StringVar(&c.PostgresDSN, "postgres-dsn", c.PostgresDSN, "PostgreSQL connection string")
	fs.BoolVar(&c.UseMemory, "use-memory", c.UseMemory, "Use in-memory storage instead of PostgreSQL")
	fs.StringVar(&c.ClickHouseDSN, "clickhouse-dsn", c.ClickHouseDSN, "ClickHouse DSN for trade history (optional)")
	fs.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis address for the read cache (optional)")
	fs.Var((*listValue)(&c.Gateways), "gateways", "Comma-separated content gateways")
	fs.DurationVar(&c.MetadataTimeout, "metadata-timeout", c.MetadataTimeout, "Per-gateway fetch timeout")
	fs.IntVar(&c.BootstrapConcurrency, "bootstrap-concurrency", c.BootstrapConcurrency, "Parallel token fetches during bootstrap")
	fs.IntVar(&c.RecomputeConcurrency, "recompute-concurrency", c.RecomputeConcurrency, "Parallel metric refreshes per tier tick")
	fs.StringVar(&c.HTTPAddr, "http-addr", c.HTTPAddr, "Admin HTTP address")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Prometheus metrics address (empty to disable)")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: debug, info, warn, error")
}

// Validate reports configuration errors that must stop the process.
func (c *Config) Validate() error {
	var errs []error

	switch n := len(c.RPCURLs); {
	case n == 0:
		errs = append(errs, errors.New("no RPC endpoints configured (RPC_URLS)"))
	case n > MaxRPCEndpoints:
		errs = append(errs, fmt.Errorf("at most %d RPC endpoints supported, got %d", MaxRPCEndpoints, n))
	}
	if !common.IsHexAddress(c.FactoryAddress) {
		errs = append(errs, fmt.Errorf("invalid factory address %q", c.FactoryAddress))
	}
	if !common.IsHexAddress(c.MarketplaceAddress) {
		errs = append(errs, fmt.Errorf("invalid marketplace address %q", c.MarketplaceAddress))
	}
	if !c.UseMemory && c.PostgresDSN == "" {
		errs = append(errs, errors.New("POSTGRES_DSN is required (set USE_MEMORY=true for in-memory storage)"))
	}
	if c.BatchSize == 0 {
		errs = append(errs, errors.New("batch size must be positive"))
	}
	if c.RPCRateLimit <= 0 {
		errs = append(errs, errors.New("rpc rate limit must be positive"))
	}
	if len(c.Gateways) == 0 {
		errs = append(errs, errors.New("at least one content gateway is required"))
	}

	return errors.Join(errs...)
}

type listValue []string

func (l *listValue) String() string {
	if l == nil {
		return ""
	}
	return strings.Join(*l, ",")
}

func (l *listValue) Set(s string) error {
	*l = splitList(s)
	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func envUint64(key string, def uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func envList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		if list := splitList(v); len(list) > 0 {
			return list
		}
	}
	return append([]string(nil), def...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
