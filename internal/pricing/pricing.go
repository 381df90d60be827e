// Package pricing attaches USD values to discovered balances.
package pricing

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abbas-claw/dust-sweeper/internal/metrics"
	"github.com/abbas-claw/dust-sweeper/internal/relay"
	"github.com/abbas-claw/dust-sweeper/internal/token"
)

// PriceSource returns the USD price of one whole unit of a token.
// relay.ErrPriceUnavailable marks a token the source cannot price.
type PriceSource interface {
	Price(ctx context.Context, chainID uint64, addr common.Address) (float64, error)
}

type Config struct {
	Concurrency int
	Timeout     time.Duration
}

const DefaultConcurrency = 8

type Enricher struct {
	source  PriceSource
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

func New(source PriceSource, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Enricher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Enricher{
		source:  source,
		cfg:     cfg,
		logger:  logger.Named("pricing"),
		metrics: m,
		tracer:  otel.Tracer("dustsweeper/pricing"),
	}
}

// Enrich returns a copy of tokens with USD values attached where a price was
// found. Every lookup settles before it returns; a failed lookup leaves that
// token's value unknown and affects no other token.
func (e *Enricher) Enrich(ctx context.Context, tokens []token.Token) []token.Token {
	ctx, span := e.tracer.Start(ctx, "pricing.enrich", trace.WithAttributes(attribute.Int("tokens", len(tokens))))
	defer span.End()

	out := make([]token.Token, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for i, t := range tokens {
		g.Go(func() error {
			out[i] = t.WithUSD(e.value(gctx, t))
			return nil
		})
	}
	_ = g.Wait()

	priced := 0
	for _, t := range out {
		if t.USD.Known() {
			priced++
		}
	}
	span.SetAttributes(attribute.Int("priced", priced))
	e.logger.Info("prices resolved", zap.Int("tokens", len(out)), zap.Int("priced", priced))
	return out
}

func (e *Enricher) value(ctx context.Context, t token.Token) token.USD {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	// Native balances are priced through the zero address on their chain.
	price, err := e.source.Price(ctx, t.ChainID, t.Address)
	switch {
	case errors.Is(err, relay.ErrPriceUnavailable):
		e.metrics.PriceLookup(metrics.PriceUnavailable)
		e.logger.Debug("no price", zap.Uint64("chain_id", t.ChainID), zap.String("token", t.Symbol))
		return token.UnknownUSD()
	case err != nil:
		e.metrics.PriceLookup(metrics.PriceFailed)
		e.logger.Warn("price lookup failed",
			zap.Uint64("chain_id", t.ChainID), zap.String("token", t.Symbol), zap.Error(err))
		return token.UnknownUSD()
	}

	e.metrics.PriceLookup(metrics.PricePriced)
	usd, _ := decimal.NewFromFloat(price).Mul(t.Amount()).Float64()
	return token.KnownUSD(usd)
}
