package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/abbas-claw/dust-sweeper/internal/balance"
	"github.com/abbas-claw/dust-sweeper/internal/cache"
	"github.com/abbas-claw/dust-sweeper/internal/chains"
	"github.com/abbas-claw/dust-sweeper/internal/config"
	"github.com/abbas-claw/dust-sweeper/internal/discovery"
	"github.com/abbas-claw/dust-sweeper/internal/dust"
	"github.com/abbas-claw/dust-sweeper/internal/history"
	"github.com/abbas-claw/dust-sweeper/internal/httpapi"
	"github.com/abbas-claw/dust-sweeper/internal/metrics"
	"github.com/abbas-claw/dust-sweeper/internal/pricing"
	"github.com/abbas-claw/dust-sweeper/internal/relay"
	"github.com/abbas-claw/dust-sweeper/internal/sweep"
	"github.com/abbas-claw/dust-sweeper/internal/telemetry"
	"github.com/abbas-claw/dust-sweeper/internal/token"
	"github.com/abbas-claw/dust-sweeper/internal/wallet"
)

// app holds everything a command needs, built once from Settings.
type app struct {
	st       config.Settings
	log      *zap.Logger
	registry *chains.Registry
	promReg  *prometheus.Registry
	metrics  *metrics.Metrics
	cache    *cache.Store
	relay    *relay.Client
	clients  map[uint64]*ethclient.Client
	history  *history.Repository
	server   *httpapi.Server
	shutdown telemetry.ShutdownFunc
}

func newApp(ctx context.Context, st config.Settings, log *zap.Logger) (*app, error) {
	registry, err := chains.NewRegistry(st.ChainIDs, st.RPCURLs)
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.InitTracer(ctx, telemetry.ServiceName, st.OTLPEndpoint)
	if err != nil {
		log.Warn("tracing disabled", zap.Error(err))
	}

	store, err := cache.New(ctx, cache.Config{Addr: st.RedisAddr})
	if err != nil {
		log.Warn("redis unavailable, caching disabled", zap.String("addr", st.RedisAddr), zap.Error(err))
		store, _ = cache.New(ctx, cache.Config{})
	}

	promReg := prometheus.NewRegistry()
	a := &app{
		st:       st,
		log:      log,
		registry: registry,
		promReg:  promReg,
		metrics:  metrics.New(promReg),
		cache:    store,
		clients:  map[uint64]*ethclient.Client{},
		shutdown: shutdown,
	}
	a.relay = relay.New(log,
		relay.WithBaseURL(st.RelayAPIURL),
		relay.WithTimeout(st.RelayTimeout),
		relay.WithCache(store, st.CacheTTL, st.PriceCacheTTL),
	)

	for _, ch := range registry.All() {
		ec, err := balance.Dial(ctx, ch, st.ChainTimeout)
		if err != nil {
			// discovery reports the chain as having no reader
			log.Warn("rpc dial failed", zap.Uint64("chain_id", ch.ID), zap.Error(err))
			continue
		}
		a.clients[ch.ID] = ec
	}

	if st.HistoryDB != "" {
		repo, err := history.NewRepository(st.HistoryDB)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.history = repo
	}
	return a, nil
}

func (a *app) close() {
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.server.Stop(ctx)
		cancel()
	}
	for _, ec := range a.clients {
		ec.Close()
	}
	if a.history != nil {
		_ = a.history.Close()
	}
	_ = a.cache.Close()
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdown(ctx); err != nil {
			a.log.Debug("tracer shutdown", zap.Error(err))
		}
		cancel()
	}
	_ = a.log.Sync()
}

// serve starts the status endpoint in the background when HTTP_ADDR is set.
func (a *app) serve(feed *sweep.Feed) {
	if a.st.HTTPAddr == "" {
		return
	}
	a.server = httpapi.NewServer(a.st.HTTPAddr, feed, a.promReg, a.log)
	go func() {
		if err := a.server.Start(); err != nil {
			a.log.Error("http server stopped", zap.Error(err))
		}
	}()
}

func (a *app) discovery() *discovery.Orchestrator {
	readers := make(map[uint64]discovery.BalanceReader, len(a.clients))
	for id, ec := range a.clients {
		readers[id] = balance.NewReader(id, ec, a.log, balance.WithMaxBatch(a.st.MulticallBatch))
	}
	return discovery.New(a.registry, a.relay, readers, discovery.Config{
		CatalogLimit: a.st.CatalogLimit,
		ChainTimeout: a.st.ChainTimeout,
	}, a.log, a.metrics)
}

func (a *app) pricing() *pricing.Enricher {
	return pricing.New(a.relay, pricing.Config{
		Concurrency: a.st.PriceConcurrency,
		Timeout:     a.st.PriceTimeout,
	}, a.log, a.metrics)
}

// scan runs discovery, pricing and classification for owner.
func (a *app) scan(ctx context.Context, owner common.Address, thresholdUSD float64, out *printer) (dust.Result, error) {
	found, err := a.discovery().Discover(ctx, owner, thresholdUSD, out.scanning)
	if err != nil {
		return dust.Result{}, err
	}
	if len(found) == 0 {
		return dust.Result{}, nil
	}
	out.line("Fetching prices...")
	priced := a.pricing().Enrich(ctx, found)
	return dust.Classify(priced, thresholdUSD), nil
}

func (a *app) signer(key *ecdsa.PrivateKey) *wallet.LocalSigner {
	clients := make(map[uint64]wallet.ChainClient, len(a.clients))
	for id, ec := range a.clients {
		clients[id] = ec
	}
	return wallet.NewLocalSigner(key, clients, wallet.Config{
		TipGwei:    a.st.TipGwei,
		BaseFeeMul: a.st.BasefeeMul,
		BufferPct:  a.st.BufferPct,
		WaitMined:  a.st.WaitMined,
	}, a.log)
}

func (a *app) sweeper(signer sweep.Signer, feed *sweep.Feed) *sweep.Orchestrator {
	opts := []sweep.Option{sweep.WithMetrics(a.metrics)}
	if a.history != nil {
		opts = append(opts, sweep.WithRecorder(a.history))
	}
	return sweep.New(a.relay, signer, feed, sweep.Config{Timeout: a.st.SweepTimeout}, a.log, opts...)
}

var errNoWallet = errors.New("no wallet: pass --wallet, or set WALLET_ADDRESS or WALLET_PRIVATE_KEY")

// ownerAddress resolves the wallet to scan: flag, then WALLET_ADDRESS, then
// the address of WALLET_PRIVATE_KEY.
func ownerAddress(flag string, st config.Settings) (common.Address, error) {
	for _, s := range []string{flag, st.WalletAddress} {
		if s == "" {
			continue
		}
		if !common.IsHexAddress(s) {
			return common.Address{}, fmt.Errorf("invalid wallet address %q", s)
		}
		return common.HexToAddress(s), nil
	}
	if st.WalletPrivateKeyHex != "" {
		key, err := wallet.ParsePrivateKey(st.WalletPrivateKeyHex)
		if err != nil {
			return common.Address{}, err
		}
		return wallet.AddressOf(key), nil
	}
	return common.Address{}, errNoWallet
}

func parseKeys(csv []string) ([]token.Key, error) {
	if len(csv) == 0 {
		return nil, nil
	}
	keys := make([]token.Key, 0, len(csv))
	for _, s := range csv {
		k, err := token.ParseKey(s)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}
