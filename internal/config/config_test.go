package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testFactory     = "0x1111111111111111111111111111111111111111"
	testMarketplace = "0x2222222222222222222222222222222222222222"
)

func validConfig() *Config {
	c := FromEnv()
	c.RPCURLs = []string{"http://localhost:8545"}
	c.FactoryAddress = testFactory
	c.MarketplaceAddress = testMarketplace
	c.UseMemory = true
	return c
}

func TestFromEnv_Defaults(t *testing.T) {
	c := FromEnv()

	assert.Equal(t, 100, c.RPCRateLimit)
	assert.Equal(t, 2, c.RPCMaxRetries)
	assert.Equal(t, 2*time.Second, c.RPCStallTimeout)
	assert.Equal(t, uint64(3), c.Confirmations)
	assert.Equal(t, uint64(1000), c.BatchSize)
	assert.Equal(t, 5*time.Second, c.RetryDelay)
	assert.Equal(t, 10, c.BootstrapConcurrency)
	assert.Len(t, c.Gateways, 3)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("RPC_URLS", " http://a:8545 , http://b:8545,,")
	t.Setenv("CONFIRMATIONS", "12")
	t.Setenv("POLL_INTERVAL", "3s")
	t.Setenv("USE_MEMORY", "true")
	t.Setenv("BATCH_SIZE", "not-a-number")

	c := FromEnv()

	assert.Equal(t, []string{"http://a:8545", "http://b:8545"}, c.RPCURLs)
	assert.Equal(t, uint64(12), c.Confirmations)
	assert.Equal(t, 3*time.Second, c.PollInterval)
	assert.True(t, c.UseMemory)
	assert.Equal(t, uint64(1000), c.BatchSize)
}

func TestLoad_DotEnvDoesNotOverrideProcessEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("START_BLOCK=42\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("START_BLOCK", "")
	require.NoError(t, os.Unsetenv("START_BLOCK"))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), c.StartBlock)
	assert.Equal(t, "warn", c.LogLevel)
}

func TestLoad_MissingFileIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestBindFlags_OverrideEnv(t *testing.T) {
	t.Setenv("RPC_URLS", "http://env:8545")
	c := FromEnv()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--rpc-urls", "http://a,http://b", "--batch-size", "50"}))

	assert.Equal(t, []string{"http://a", "http://b"}, c.RPCURLs)
	assert.Equal(t, uint64(50), c.BatchSize)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no endpoints", func(c *Config) { c.RPCURLs = nil }, "no RPC endpoints"},
		{"too many endpoints", func(c *Config) { c.RPCURLs = []string{"a", "b", "c", "d"} }, "at most 3"},
		{"bad factory", func(c *Config) { c.FactoryAddress = "0x123" }, "invalid factory"},
		{"postgres required", func(c *Config) { c.UseMemory = false; c.PostgresDSN = "" }, "POSTGRES_DSN"},
		{"zero batch", func(c *Config) { c.BatchSize = 0 }, "batch size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
