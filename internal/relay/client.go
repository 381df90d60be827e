// Package relay is a client for the Relay routing service: verified token
// catalog, USD prices and swap quotes.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/abbas-claw/dust-sweeper/internal/token"
)

const (
	DefaultBaseURL = "https://api.relay.link"
	DefaultTimeout = 15 * time.Second

	maxErrorBody = 4 << 10
)

// ErrPriceUnavailable means the service answered but has no USD price for
// the token.
var ErrPriceUnavailable = errors.New("relay: price unavailable")

// Cache stores raw response bodies. Errors are logged and otherwise ignored.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

type Client struct {
	baseURL    string
	http       *http.Client
	logger     *zap.Logger
	cache      Cache
	catalogTTL time.Duration
	priceTTL   time.Duration
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u = strings.TrimRight(strings.TrimSpace(u), "/"); u != "" {
			c.baseURL = u
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithCache enables read-through caching of catalog and price responses.
// A zero TTL disables caching for that call.
func WithCache(cache Cache, catalogTTL, priceTTL time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.catalogTTL = catalogTTL
		c.priceTTL = priceTTL
	}
}

func New(logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  logger.Named("relay"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Currencies fetches the verified catalog for chainIDs in a single request.
// The native currency entries are dropped, as are non-EVM addresses.
func (c *Client) Currencies(ctx context.Context, chainIDs []uint64, limit int) ([]Currency, error) {
	ctx, span := startSpan(ctx, "relay.currencies", attribute.Int("relay.chains", len(chainIDs)))
	defer span.End()

	key := catalogKey(chainIDs, limit)
	var wire []currencyWire
	body, hit := c.cached(ctx, key)
	if hit {
		if err := json.Unmarshal(body, &wire); err != nil {
			c.logger.Warn("cached catalog unreadable, refetching", zap.String("key", key), zap.Error(err))
			hit = false
			wire = nil
		}
	}
	if !hit {
		req := currenciesRequest{ChainIDs: chainIDs, Limit: limit, Verified: true}
		status, raw, err := c.do(ctx, http.MethodPost, "/currencies/v2", req)
		if err != nil {
			recordErr(span, err)
			return nil, fmt.Errorf("relay currencies: %w", err)
		}
		if status/100 != 2 {
			err := fmt.Errorf("relay currencies failed: %d", status)
			recordErr(span, err)
			return nil, err
		}
		if err := json.Unmarshal(raw, &wire); err != nil {
			recordErr(span, err)
			return nil, fmt.Errorf("relay currencies: decode: %w", err)
		}
		c.store(ctx, key, raw, c.catalogTTL)
	}

	out := make([]Currency, 0, len(wire))
	for _, w := range wire {
		if !common.IsHexAddress(w.Address) {
			continue
		}
		addr := common.HexToAddress(w.Address)
		if token.IsNativeAddress(addr) {
			continue
		}
		out = append(out, Currency{
			ChainID:  w.ChainID,
			Address:  addr,
			Symbol:   w.Symbol,
			Name:     w.Name,
			Decimals: w.Decimals,
			VMType:   w.VMType,
			LogoURI:  w.Metadata.LogoURI,
			Verified: w.Metadata.Verified,
		})
	}
	span.SetAttributes(attribute.Int("relay.currencies", len(out)))
	return out, nil
}

// Price returns the USD price of one whole unit of the token. ErrPriceUnavailable
// is returned when the service has no price; other errors are transport or
// decoding failures.
func (c *Client) Price(ctx context.Context, chainID uint64, addr common.Address) (float64, error) {
	ctx, span := startSpan(ctx, "relay.price", attribute.Int64("chain.id", int64(chainID)))
	defer span.End()

	key := priceKey(chainID, addr)
	if body, ok := c.cached(ctx, key); ok {
		if p, err := strconv.ParseFloat(string(body), 64); err == nil {
			return p, nil
		}
	}

	q := url.Values{}
	q.Set("chainId", strconv.FormatUint(chainID, 10))
	q.Set("address", strings.ToLower(addr.Hex()))
	q.Set("currency", "usd")
	status, raw, err := c.do(ctx, http.MethodGet, "/currencies/token/price?"+q.Encode(), nil)
	if err != nil {
		recordErr(span, err)
		return 0, fmt.Errorf("relay price: %w", err)
	}
	if status/100 != 2 {
		return 0, fmt.Errorf("%w: status %d", ErrPriceUnavailable, status)
	}

	var resp priceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		recordErr(span, err)
		return 0, fmt.Errorf("relay price: decode: %w", err)
	}
	if resp.Price == nil {
		return 0, ErrPriceUnavailable
	}
	c.store(ctx, key, []byte(strconv.FormatFloat(*resp.Price, 'g', -1, 64)), c.priceTTL)
	return *resp.Price, nil
}

// Quote requests a route. A non-2xx answer carries the service's response body
// in the error. Quotes are never cached.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	ctx, span := startSpan(ctx, "relay.quote",
		attribute.Int64("chain.id", int64(req.OriginChainID)),
		attribute.String("currency", req.OriginCurrency.Hex()))
	defer span.End()

	if req.TradeType == "" {
		req.TradeType = TradeTypeExactInput
	}
	status, raw, err := c.do(ctx, http.MethodPost, "/quote", req)
	if err != nil {
		recordErr(span, err)
		return nil, fmt.Errorf("relay quote: %w", err)
	}
	if status/100 != 2 {
		err := fmt.Errorf("relay quote failed: %d: %s", status, strings.TrimSpace(string(raw)))
		recordErr(span, err)
		return nil, err
	}
	var q Quote
	if err := json.Unmarshal(raw, &q); err != nil {
		recordErr(span, err)
		return nil, fmt.Errorf("relay quote: decode: %w", err)
	}
	span.SetAttributes(attribute.Int("relay.steps", len(q.Steps)))
	return &q, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var r io.Reader = resp.Body
	if resp.StatusCode/100 != 2 {
		r = io.LimitReader(resp.Body, maxErrorBody)
	}
	all, err := io.ReadAll(r)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, all, nil
}

func (c *Client) cached(ctx context.Context, key string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	val, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Debug("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return val, ok
}

func (c *Client) store(ctx context.Context, key string, val []byte, ttl time.Duration) {
	if c.cache == nil || ttl <= 0 {
		return
	}
	if err := c.cache.Set(ctx, key, val, ttl); err != nil {
		c.logger.Debug("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func catalogKey(chainIDs []uint64, limit int) string {
	ids := slices.Clone(chainIDs)
	slices.Sort(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return "currencies:" + strings.Join(parts, ",") + ":" + strconv.Itoa(limit)
}

func priceKey(chainID uint64, addr common.Address) string {
	return "price:" + token.Key{ChainID: chainID, Address: addr}.String()
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("dustsweeper/relay").Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}

func recordErr(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
