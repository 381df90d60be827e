package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	st, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://api.relay.link", st.RelayAPIURL)
	assert.Equal(t, 15*time.Second, st.RelayTimeout)
	assert.Equal(t, 50.0, st.ThresholdUSD)
	assert.Equal(t, 100, st.CatalogLimit)
	assert.Empty(t, st.ChainIDs)
	assert.Empty(t, st.RPCURLs)
	assert.Equal(t, 20*time.Second, st.ChainTimeout)
	assert.Equal(t, 10*time.Second, st.PriceTimeout)
	assert.Equal(t, 8, st.PriceConcurrency)
	assert.Equal(t, 2*time.Minute, st.SweepTimeout)
	assert.Equal(t, 100, st.MulticallBatch)
	assert.Equal(t, int64(2), st.TipGwei)
	assert.Equal(t, int64(2), st.BasefeeMul)
	assert.Equal(t, int64(20), st.BufferPct)
	assert.True(t, st.WaitMined)
	assert.Equal(t, 10*time.Minute, st.CacheTTL)
	assert.Equal(t, time.Minute, st.PriceCacheTTL)
	assert.Equal(t, "info", st.LogLevel)
	assert.Empty(t, st.LogFile)
	assert.NoError(t, st.Validate())
}

func TestLoadFromEnvBothCases(t *testing.T) {
	t.Setenv("DUST_THRESHOLD_USD", "12.5")
	t.Setenv("chains", "1, 8453")
	t.Setenv("RPC_URL_8453", "https://base.example")
	t.Setenv("rpc_url_1", "https://eth.example")
	t.Setenv("PRICE_TIMEOUT", "3s")
	t.Setenv("relay_timeout", "4s")
	t.Setenv("wait_mined", "false")
	t.Setenv("RELAY_API_URL", "https://relay.example/")
	t.Setenv("log_file", "/tmp/ds.log")

	st, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 12.5, st.ThresholdUSD)
	assert.Equal(t, []uint64{1, 8453}, st.ChainIDs)
	assert.Equal(t, map[uint64]string{1: "https://eth.example", 8453: "https://base.example"}, st.RPCURLs)
	assert.Equal(t, 3*time.Second, st.PriceTimeout)
	assert.Equal(t, 4*time.Second, st.RelayTimeout)
	assert.False(t, st.WaitMined)
	assert.Equal(t, "https://relay.example", st.RelayAPIURL)
	assert.Equal(t, "/tmp/ds.log", st.LogFile)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dustsweeper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("catalog_limit: 40\nredis_addr: localhost:6379\nlog_level: debug\n"), 0o600))
	t.Setenv("CATALOG_LIMIT", "60")

	st, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 60, st.CatalogLimit, "env wins over file")
	assert.Equal(t, "localhost:6379", st.RedisAddr)
	assert.Equal(t, "debug", st.LogLevel)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("CHAINS", "1,abc")
	_, err = Load("")
	assert.ErrorContains(t, err, `invalid chain id "abc"`)
}

func TestValidate(t *testing.T) {
	st, err := Load("")
	require.NoError(t, err)

	st.ThresholdUSD = -1
	st.PriceConcurrency = 0
	st.BufferPct = 150
	st.WalletAddress = "not-an-address"
	st.LogLevel = "loud"
	st.SweepTimeout = 0
	st.RelayTimeout = -time.Second

	err = st.Validate()
	require.Error(t, err)
	for _, want := range []string{"dust_threshold_usd", "price_concurrency", "buffer_pct", "wallet_address", "log level", "sweep_timeout", "relay_timeout"} {
		assert.ErrorContains(t, err, want)
	}
}
