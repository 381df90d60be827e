package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/abbas-claw/dust-sweeper/internal/chains"
	"github.com/abbas-claw/dust-sweeper/internal/logger"
)

// Settings keeps all configuration options.
type Settings struct {
	RelayAPIURL  string
	RelayTimeout time.Duration
	ThresholdUSD float64
	CatalogLimit int

	// ChainIDs is empty when every supported chain is enabled.
	ChainIDs     []uint64
	RPCURLs      map[uint64]string
	ChainTimeout time.Duration

	PriceTimeout     time.Duration
	PriceConcurrency int
	SweepTimeout     time.Duration
	MulticallBatch   int

	WalletAddress       string
	WalletPrivateKeyHex string
	TipGwei             int64
	BasefeeMul          int64
	BufferPct           int64
	WaitMined           bool

	RedisAddr     string
	CacheTTL      time.Duration
	PriceCacheTTL time.Duration
	HistoryDB     string
	OTLPEndpoint  string
	HTTPAddr      string
	LogLevel      string
	LogFile       string
}

var defaults = map[string]any{
	"relay_api_url":               "https://api.relay.link",
	"relay_timeout":               "15s",
	"dust_threshold_usd":          50.0,
	"catalog_limit":               100,
	"chains":                      "",
	"chain_timeout":               "20s",
	"price_timeout":               "10s",
	"price_concurrency":           8,
	"sweep_timeout":               "2m",
	"multicall_batch":             100,
	"wallet_address":              "",
	"wallet_private_key":          "",
	"tip_gwei":                    2,
	"basefee_mul":                 2,
	"buffer_pct":                  20,
	"wait_mined":                  true,
	"redis_addr":                  "",
	"cache_ttl":                   "10m",
	"price_cache_ttl":             "1m",
	"history_db":                  "",
	"otel_exporter_otlp_endpoint": "",
	"http_addr":                   "",
	"log_level":                   "info",
	"log_file":                    "",
}

// Load reads settings from the environment, accepting both UPPER_CASE and
// lower_case keys, layered over an optional config file. An empty
// configFile skips the file.
func Load(configFile string) (Settings, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for k := range defaults {
		_ = v.BindEnv(k, strings.ToUpper(k), k)
	}
	for _, c := range chains.Supported() {
		k := rpcKey(c.ID)
		_ = v.BindEnv(k, strings.ToUpper(k), k)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	ids, err := parseChainIDs(v.GetString("chains"))
	if err != nil {
		return Settings{}, err
	}

	st := Settings{}
	st.RelayAPIURL = strings.TrimRight(strings.TrimSpace(v.GetString("relay_api_url")), "/")
	st.RelayTimeout = v.GetDuration("relay_timeout")
	st.ThresholdUSD = v.GetFloat64("dust_threshold_usd")
	st.CatalogLimit = v.GetInt("catalog_limit")

	st.ChainIDs = ids
	st.RPCURLs = map[uint64]string{}
	for _, c := range chains.Supported() {
		if u := strings.TrimSpace(v.GetString(rpcKey(c.ID))); u != "" {
			st.RPCURLs[c.ID] = u
		}
	}
	st.ChainTimeout = v.GetDuration("chain_timeout")

	st.PriceTimeout = v.GetDuration("price_timeout")
	st.PriceConcurrency = v.GetInt("price_concurrency")
	st.SweepTimeout = v.GetDuration("sweep_timeout")
	st.MulticallBatch = v.GetInt("multicall_batch")

	st.WalletAddress = strings.TrimSpace(v.GetString("wallet_address"))
	st.WalletPrivateKeyHex = strings.TrimSpace(v.GetString("wallet_private_key"))
	st.TipGwei = v.GetInt64("tip_gwei")
	st.BasefeeMul = v.GetInt64("basefee_mul")
	st.BufferPct = v.GetInt64("buffer_pct")
	st.WaitMined = v.GetBool("wait_mined")

	st.RedisAddr = strings.TrimSpace(v.GetString("redis_addr"))
	st.CacheTTL = v.GetDuration("cache_ttl")
	st.PriceCacheTTL = v.GetDuration("price_cache_ttl")
	st.HistoryDB = strings.TrimSpace(v.GetString("history_db"))
	st.OTLPEndpoint = strings.TrimSpace(v.GetString("otel_exporter_otlp_endpoint"))
	st.HTTPAddr = strings.TrimSpace(v.GetString("http_addr"))
	st.LogLevel = v.GetString("log_level")
	st.LogFile = strings.TrimSpace(v.GetString("log_file"))

	return st, nil
}

// Validate reports every bad value at once.
func (s Settings) Validate() error {
	var errs []error
	if s.RelayAPIURL == "" {
		errs = append(errs, errors.New("relay_api_url is required"))
	}
	if s.ThresholdUSD < 0 {
		errs = append(errs, fmt.Errorf("dust_threshold_usd must be >= 0, got %v", s.ThresholdUSD))
	}
	positive := map[string]int{
		"catalog_limit":     s.CatalogLimit,
		"price_concurrency": s.PriceConcurrency,
		"multicall_batch":   s.MulticallBatch,
	}
	for _, k := range []string{"catalog_limit", "price_concurrency", "multicall_batch"} {
		if positive[k] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0, got %d", k, positive[k]))
		}
	}
	for k, d := range map[string]time.Duration{
		"relay_timeout": s.RelayTimeout,
		"chain_timeout": s.ChainTimeout,
		"price_timeout": s.PriceTimeout,
		"sweep_timeout": s.SweepTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", k))
		}
	}
	if s.BasefeeMul < 1 {
		errs = append(errs, fmt.Errorf("basefee_mul must be >= 1, got %d", s.BasefeeMul))
	}
	if s.TipGwei < 0 {
		errs = append(errs, fmt.Errorf("tip_gwei must be >= 0, got %d", s.TipGwei))
	}
	if s.BufferPct < 0 || s.BufferPct > 100 {
		errs = append(errs, fmt.Errorf("buffer_pct must be within 0..100, got %d", s.BufferPct))
	}
	if s.WalletAddress != "" && !common.IsHexAddress(s.WalletAddress) {
		errs = append(errs, fmt.Errorf("wallet_address %q is not a hex address", s.WalletAddress))
	}
	if _, err := logger.ParseLevel(s.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func rpcKey(chainID uint64) string {
	return "rpc_url_" + strconv.FormatUint(chainID, 10)
}

func parseChainIDs(csv string) ([]uint64, error) {
	var out []uint64
	for _, p := range splitCSV(csv) {
		id, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("chains: invalid chain id %q", p)
		}
		out = append(out, id)
	}
	return out, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
