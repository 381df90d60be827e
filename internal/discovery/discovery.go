// Package discovery finds every non-zero balance a wallet holds across the
// configured chains.
package discovery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abbas-claw/dust-sweeper/internal/chains"
	"github.com/abbas-claw/dust-sweeper/internal/metrics"
	"github.com/abbas-claw/dust-sweeper/internal/relay"
	"github.com/abbas-claw/dust-sweeper/internal/token"
)

// Catalog lists candidate tokens for a set of chains in one call.
type Catalog interface {
	Currencies(ctx context.Context, chainIDs []uint64, limit int) ([]relay.Currency, error)
}

// BalanceReader reads balances on one chain.
type BalanceReader interface {
	NativeBalance(ctx context.Context, wallet common.Address) (*big.Int, error)
	TokenBalances(ctx context.Context, wallet common.Address, tokens []common.Address) ([]*big.Int, error)
}

// ProgressFunc is told when a chain's scan starts. It may be called from
// several goroutines at once.
type ProgressFunc func(chainID uint64, chainName string)

type Config struct {
	CatalogLimit int
	ChainTimeout time.Duration
}

const DefaultCatalogLimit = 100

type Orchestrator struct {
	registry *chains.Registry
	catalog  Catalog
	readers  map[uint64]BalanceReader
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// New builds an orchestrator. readers is keyed by chain id; a registry chain
// with no reader is scanned as empty.
func New(registry *chains.Registry, catalog Catalog, readers map[uint64]BalanceReader, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Orchestrator {
	if cfg.CatalogLimit <= 0 {
		cfg.CatalogLimit = DefaultCatalogLimit
	}
	return &Orchestrator{
		registry: registry,
		catalog:  catalog,
		readers:  readers,
		cfg:      cfg,
		logger:   logger.Named("discovery"),
		metrics:  m,
		tracer:   otel.Tracer("dustsweeper/discovery"),
	}
}

// Discover returns all non-zero balances of wallet, grouped by chain in
// registry order. Only a catalog failure is returned as an error; a chain that
// cannot be read contributes nothing.
func (o *Orchestrator) Discover(ctx context.Context, wallet common.Address, thresholdUSD float64, onProgress ProgressFunc) ([]token.Token, error) {
	started := time.Now()
	ctx, span := o.tracer.Start(ctx, "discovery.discover",
		trace.WithAttributes(attribute.String("wallet", wallet.Hex())))
	defer span.End()

	list := o.registry.All()
	o.logger.Info("scanning wallet",
		zap.String("wallet", wallet.Hex()),
		zap.Int("chains", len(list)),
		zap.Float64("dust_threshold_usd", thresholdUSD))

	catalog, err := o.catalog.Currencies(ctx, o.registry.IDs(), o.cfg.CatalogLimit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("discovery: fetch catalog: %w", err)
	}

	// One entry per (chain, address); the first listing wins.
	byChain := make(map[uint64][]relay.Currency, len(list))
	seen := make(map[uint64]map[common.Address]bool, len(list))
	for _, c := range catalog {
		if token.IsNativeAddress(c.Address) {
			continue
		}
		if seen[c.ChainID] == nil {
			seen[c.ChainID] = map[common.Address]bool{}
		}
		if seen[c.ChainID][c.Address] {
			o.logger.Debug("duplicate catalog entry dropped",
				zap.Uint64("chain_id", c.ChainID), zap.String("token", c.Address.Hex()))
			continue
		}
		seen[c.ChainID][c.Address] = true
		byChain[c.ChainID] = append(byChain[c.ChainID], c)
	}

	// Workers never return an error, so one chain cannot cancel another.
	perChain := make([][]token.Token, len(list))
	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range list {
		g.Go(func() error {
			if onProgress != nil {
				onProgress(ch.ID, ch.Name)
			}
			perChain[i] = o.scanChain(gctx, ch, wallet, byChain[ch.ID])
			return nil
		})
	}
	_ = g.Wait()

	var out []token.Token
	for _, found := range perChain {
		out = append(out, found...)
	}

	o.metrics.ScanDuration(time.Since(started))
	span.SetAttributes(attribute.Int("tokens", len(out)))
	o.logger.Info("scan finished",
		zap.Int("tokens", len(out)),
		zap.Int("catalog", len(catalog)),
		zap.Duration("took", time.Since(started)))
	return out, nil
}

func (o *Orchestrator) scanChain(ctx context.Context, ch chains.Chain, wallet common.Address, catalog []relay.Currency) []token.Token {
	ctx, span := o.tracer.Start(ctx, "discovery.scan_chain",
		trace.WithAttributes(attribute.Int64("chain.id", int64(ch.ID)), attribute.String("chain.name", ch.Name)))
	defer span.End()

	log := o.logger.With(zap.Uint64("chain_id", ch.ID), zap.String("chain", ch.Name))

	reader, ok := o.readers[ch.ID]
	if !ok || reader == nil {
		log.Warn("no rpc client for chain, skipping")
		o.metrics.ChainRead(ch.Name, "native", metrics.ReadNoRPC)
		return nil
	}

	if o.cfg.ChainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ChainTimeout)
		defer cancel()
	}

	var out []token.Token

	native, err := reader.NativeBalance(ctx, wallet)
	if err != nil {
		log.Warn("native balance read failed", zap.Error(err))
		span.RecordError(err)
		o.metrics.ChainRead(ch.Name, "native", metrics.ReadFailed)
	} else {
		o.metrics.ChainRead(ch.Name, "native", metrics.ReadOK)
		if native != nil && native.Sign() > 0 {
			out = append(out, token.NewNative(ch.ID, ch.Name, ch.Symbol, ch.NativeDecimals, native))
		}
	}

	if len(catalog) > 0 {
		addrs := make([]common.Address, len(catalog))
		for i, c := range catalog {
			addrs[i] = c.Address
		}
		balances, err := reader.TokenBalances(ctx, wallet, addrs)
		switch {
		case err != nil:
			log.Warn("token balance batch failed", zap.Int("tokens", len(addrs)), zap.Error(err))
			span.RecordError(err)
			o.metrics.ChainRead(ch.Name, "erc20", metrics.ReadFailed)
		case len(balances) != len(catalog):
			log.Warn("token balance batch size mismatch",
				zap.Int("want", len(catalog)), zap.Int("got", len(balances)))
			o.metrics.ChainRead(ch.Name, "erc20", metrics.ReadFailed)
		default:
			o.metrics.ChainRead(ch.Name, "erc20", metrics.ReadOK)
			for i, c := range catalog {
				if balances[i] == nil || balances[i].Sign() <= 0 {
					continue
				}
				out = append(out, token.NewERC20(ch.ID, ch.Name, c.Address, c.Symbol, c.Name, c.Decimals, c.LogoURI, balances[i]))
			}
		}
	}

	o.metrics.TokensFound(ch.Name, len(out))
	log.Debug("chain scanned", zap.Int("tokens", len(out)))
	return out
}
