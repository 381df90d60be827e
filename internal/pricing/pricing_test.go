package pricing

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abbas-claw/dust-sweeper/internal/metrics"
	"github.com/abbas-claw/dust-sweeper/internal/relay"
	"github.com/abbas-claw/dust-sweeper/internal/token"
)

type mockSource struct{ mock.Mock }

func (m *mockSource) Price(ctx context.Context, chainID uint64, addr common.Address) (float64, error) {
	args := m.Called(ctx, chainID, addr)
	return args.Get(0).(float64), args.Error(1)
}

var (
	usdc = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	junk = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

func newEnricher(src PriceSource, cfg Config) *Enricher {
	return New(src, cfg, zap.NewNop(), metrics.New(prometheus.NewRegistry()))
}

func TestEnrichComputesValueFromFormattedBalance(t *testing.T) {
	src := &mockSource{}
	src.On("Price", mock.Anything, uint64(8453), usdc).Return(1.0, nil)
	src.On("Price", mock.Anything, uint64(8453), token.NativeAddress).Return(2500.0, nil)

	in := []token.Token{
		token.NewERC20(8453, "Base", usdc, "USDC", "USD Coin", 6, "", big.NewInt(400000)),
		token.NewNative(8453, "Base", "ETH", 18, big.NewInt(2_000_000_000_000_000_000)),
	}
	out := newEnricher(src, Config{}).Enrich(context.Background(), in)
	require.Len(t, out, 2)

	v, ok := out[0].USD.Value()
	require.True(t, ok)
	assert.InDelta(t, 0.4, v, 1e-9)

	v, ok = out[1].USD.Value()
	require.True(t, ok)
	assert.InDelta(t, 5000.0, v, 1e-6)

	assert.False(t, in[0].USD.Known(), "input is not modified")
	src.AssertExpectations(t)
}

func TestEnrichIsolatesFailures(t *testing.T) {
	src := &mockSource{}
	src.On("Price", mock.Anything, uint64(1), usdc).Return(1.0, nil)
	src.On("Price", mock.Anything, uint64(1), junk).Return(0.0, errors.New("connection reset"))
	src.On("Price", mock.Anything, uint64(1), dai).Return(0.0, relay.ErrPriceUnavailable)

	in := []token.Token{
		token.NewERC20(1, "Ethereum", usdc, "USDC", "", 6, "", big.NewInt(3_000_000)),
		token.NewERC20(1, "Ethereum", junk, "JUNK", "", 18, "", big.NewInt(1000)),
		token.NewERC20(1, "Ethereum", dai, "DAI", "", 18, "", big.NewInt(1)),
	}
	out := newEnricher(src, Config{Concurrency: 2}).Enrich(context.Background(), in)
	require.Len(t, out, 3)

	v, ok := out[0].USD.Value()
	require.True(t, ok)
	assert.InDelta(t, 3.0, v, 1e-9)
	assert.False(t, out[1].USD.Known())
	assert.False(t, out[2].USD.Known())

	for i := range in {
		assert.Equal(t, in[i].Key(), out[i].Key(), "order is preserved")
	}
}

func TestEnrichZeroPriceIsKnownZero(t *testing.T) {
	src := &mockSource{}
	src.On("Price", mock.Anything, uint64(1), usdc).Return(0.0, nil)

	out := newEnricher(src, Config{}).Enrich(context.Background(), []token.Token{
		token.NewERC20(1, "Ethereum", usdc, "USDC", "", 6, "", big.NewInt(1)),
	})
	v, ok := out[0].USD.Value()
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)
}

type slowSource struct{ inFlight, peak atomic.Int32 }

func (s *slowSource) Price(ctx context.Context, _ uint64, addr common.Address) (float64, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if addr == junk {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	time.Sleep(5 * time.Millisecond)
	return 1, nil
}

func TestEnrichBoundsConcurrencyAndTimesOut(t *testing.T) {
	src := &slowSource{}
	in := []token.Token{token.NewERC20(1, "Ethereum", junk, "JUNK", "", 0, "", big.NewInt(1))}
	for i := 0; i < 10; i++ {
		in = append(in, token.NewERC20(1, "Ethereum", common.BigToAddress(big.NewInt(int64(i+1))), "T", "", 0, "", big.NewInt(2)))
	}

	out := newEnricher(src, Config{Concurrency: 3, Timeout: 50 * time.Millisecond}).Enrich(context.Background(), in)

	assert.LessOrEqual(t, src.peak.Load(), int32(3))
	assert.False(t, out[0].USD.Known(), "timed out lookup stays unknown")
	for _, tok := range out[1:] {
		v, ok := tok.USD.Value()
		require.True(t, ok)
		assert.Equal(t, 2.0, v)
	}
}

func TestEnrichEmpty(t *testing.T) {
	out := newEnricher(&mockSource{}, Config{}).Enrich(context.Background(), nil)
	assert.Empty(t, out)
}
