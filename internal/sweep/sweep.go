// Package sweep converts selected dust balances into each chain's native
// currency, one token at a time.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/abbas-claw/dust-sweeper/internal/history"
	"github.com/abbas-claw/dust-sweeper/internal/metrics"
	"github.com/abbas-claw/dust-sweeper/internal/relay"
	"github.com/abbas-claw/dust-sweeper/internal/token"
	"github.com/abbas-claw/dust-sweeper/internal/wallet"
)

var (
	ErrWalletNotConnected = errors.New("sweep: wallet not connected")
	ErrSweepInProgress    = errors.New("sweep: already running")
)

const (
	msgQuoting = "Getting quote..."
	msgNoRoute = "No route found"
	msgDone    = "Swept!"
	msgFailed  = "Failed"
)

type Quoter interface {
	Quote(ctx context.Context, req relay.QuoteRequest) (*relay.Quote, error)
}

type Signer interface {
	SendTransaction(ctx context.Context, req wallet.TxRequest) (common.Hash, error)
}

type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

type Config struct {
	// Timeout bounds the quote request and each transaction submission.
	Timeout time.Duration
}

type Orchestrator struct {
	quoter   Quoter
	signer   Signer
	feed     *Feed
	recorder Recorder
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	// running enforces one sweep at a time; tokens inside a sweep are
	// processed on the caller's goroutine.
	running sync.Mutex
}

type Option func(*Orchestrator)

// WithRecorder appends every finished token to a history ledger.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// New builds an orchestrator. signer may be nil, in which case Sweep refuses
// to start.
func New(quoter Quoter, signer Signer, feed *Feed, cfg Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		quoter: quoter,
		signer: signer,
		feed:   feed,
		cfg:    cfg,
		logger: logger.Named("sweep"),
		tracer: otel.Tracer("dustsweeper/sweep"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Feed() *Feed { return o.feed }

// Sweep processes tokens in order. A failure on one token marks that token
// as errored and moves on to the next. The returned error is only about the
// run itself: no signer, a concurrent run, or ctx cancelled mid-batch.
func (o *Orchestrator) Sweep(ctx context.Context, tokens []token.Token, owner common.Address) error {
	if o.signer == nil {
		return ErrWalletNotConnected
	}
	if !o.running.TryLock() {
		return ErrSweepInProgress
	}
	defer o.running.Unlock()

	runID := uuid.New().String()
	ctx, span := o.tracer.Start(ctx, "sweep.run", trace.WithAttributes(
		attribute.String("run_id", runID), attribute.Int("tokens", len(tokens))))
	defer span.End()

	log := o.logger.With(zap.String("run_id", runID))
	log.Info("sweep started", zap.Int("tokens", len(tokens)), zap.String("wallet", owner.Hex()))

	for _, t := range tokens {
		if err := ctx.Err(); err != nil {
			log.Warn("sweep cancelled", zap.Error(err))
			return err
		}
		st := o.sweepOne(ctx, log, t, owner)
		o.finish(ctx, log, runID, t, st)
	}
	log.Info("sweep finished")
	return nil
}

func (o *Orchestrator) sweepOne(ctx context.Context, log *zap.Logger, t token.Token, owner common.Address) Status {
	key := t.Key()
	ctx, span := o.tracer.Start(ctx, "sweep.token", trace.WithAttributes(
		attribute.String("token", key.String()), attribute.String("symbol", t.Symbol)))
	defer span.End()

	o.feed.begin(t)
	o.move(log, key, StateQuoting, msgQuoting, "")

	quote, err := o.quote(ctx, t, owner)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return o.fail(log, key, err)
	}
	if !hasActionable(quote) {
		return o.move(log, key, StateError, msgNoRoute, "")
	}

	var last common.Hash
	for _, step := range quote.Steps {
		state := StateSweeping
		if step.IsApproval() {
			state = StateApproving
		}
		for _, item := range step.Items {
			if !item.Actionable() {
				continue
			}
			o.move(log, key, state, fmt.Sprintf("Executing %s...", step.Action), "")

			hash, err := o.submit(ctx, t, owner, item.Data)
			if err != nil {
				span.SetStatus(codes.Error, err.Error())
				return o.fail(log, key, err)
			}
			last = hash
			log.Info("step submitted",
				zap.String("token", key.String()), zap.String("step", step.ID), zap.String("tx", hash.Hex()))
		}
	}
	return o.move(log, key, StateDone, msgDone, last.Hex())
}

func (o *Orchestrator) quote(ctx context.Context, t token.Token, owner common.Address) (*relay.Quote, error) {
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	return o.quoter.Quote(ctx, relay.QuoteRequest{
		User:                owner,
		OriginChainID:       t.ChainID,
		OriginCurrency:      t.Address,
		DestinationChainID:  t.ChainID,
		DestinationCurrency: token.NativeAddress,
		Amount:              t.Balance.String(),
		TradeType:           relay.TradeTypeExactInput,
	})
}

func (o *Orchestrator) submit(ctx context.Context, t token.Token, owner common.Address, d *relay.TxData) (common.Hash, error) {
	value, err := d.ValueWei()
	if err != nil {
		return common.Hash{}, err
	}
	chainID := d.ChainID
	if chainID == 0 {
		chainID = t.ChainID
	}
	ctx, cancel := o.withTimeout(ctx)
	defer cancel()
	return o.signer.SendTransaction(ctx, wallet.TxRequest{
		From:    owner,
		To:      d.To,
		Data:    d.Data,
		Value:   value,
		ChainID: chainID,
	})
}

func (o *Orchestrator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, o.cfg.Timeout)
}

func (o *Orchestrator) move(log *zap.Logger, key token.Key, state State, message, txHash string) Status {
	st, err := o.feed.transition(key, state, message, txHash)
	if err != nil {
		log.Error("status update rejected", zap.Error(err))
		cur, _ := o.feed.Get(key)
		return cur
	}
	return st
}

func (o *Orchestrator) fail(log *zap.Logger, key token.Key, err error) Status {
	msg := err.Error()
	if msg == "" {
		msg = msgFailed
	}
	log.Warn("token sweep failed", zap.String("token", key.String()), zap.Error(err))
	return o.move(log, key, StateError, msg, "")
}

func (o *Orchestrator) finish(ctx context.Context, log *zap.Logger, runID string, t token.Token, st Status) {
	o.metrics.SweepFinished(t.ChainName, string(st.State))
	if o.recorder == nil {
		return
	}
	err := o.recorder.Record(context.WithoutCancel(ctx), history.Entry{
		RunID:   runID,
		ChainID: t.ChainID,
		Token:   st.Key.Address.Hex(),
		Symbol:  t.Symbol,
		Amount:  t.BalanceFormatted,
		State:   string(st.State),
		Message: st.Message,
		TxHash:  st.TxHash,
	})
	if err != nil {
		log.Warn("history record failed", zap.String("token", t.Key().String()), zap.Error(err))
	}
}

func hasActionable(q *relay.Quote) bool {
	if q == nil {
		return false
	}
	for _, s := range q.Steps {
		for _, it := range s.Items {
			if it.Actionable() {
				return true
			}
		}
	}
	return false
}
