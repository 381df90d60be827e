package dust

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abbas-claw/dust-sweeper/internal/token"
)

var (
	usdc = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	dai  = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
	obsc = common.HexToAddress("0x00000000000000000000000000000000000000ff")
)

func erc20(addr common.Address, sym string, usd token.USD) token.Token {
	return token.NewERC20(1, "Ethereum", addr, sym, sym, 18, "", big.NewInt(1000)).WithUSD(usd)
}

func native(usd token.USD) token.Token {
	return token.NewNative(1, "Ethereum", "ETH", 18, big.NewInt(2_000_000_000_000_000_000)).WithUSD(usd)
}

func sample() []token.Token {
	return []token.Token{
		native(token.KnownUSD(5000)),
		native(token.UnknownUSD()),
		native(token.KnownUSD(0.01)),
		erc20(usdc, "USDC", token.KnownUSD(0.4)),
		erc20(dai, "DAI", token.KnownUSD(50)),
		erc20(obsc, "OBSC", token.UnknownUSD()),
		erc20(usdc, "BIG", token.KnownUSD(1e6)),
		erc20(dai, "ZERO", token.KnownUSD(0)),
	}
}

func TestClassifyEveryTokenInExactlyOneList(t *testing.T) {
	for _, threshold := range []float64{0, 0.4, 1, 50, 1e9} {
		in := sample()
		res := Classify(in, threshold)
		assert.Len(t, in, len(res.Dust)+len(res.Keepers), "threshold %v", threshold)
	}
}

func TestClassifyNativeNeverDust(t *testing.T) {
	for _, threshold := range []float64{0, 1, 50, 1e12} {
		res := Classify(sample(), threshold)
		for _, d := range res.Dust {
			assert.False(t, d.IsNative, "threshold %v", threshold)
		}
	}
}

func TestClassifyUnknownAlwaysDust(t *testing.T) {
	unknown := erc20(obsc, "OBSC", token.UnknownUSD())
	for _, threshold := range []float64{0, 0.0001, 50, 1e12} {
		res := Classify([]token.Token{unknown}, threshold)
		require.Len(t, res.Dust, 1, "threshold %v", threshold)
		assert.Empty(t, res.Keepers)
	}
}

func TestClassifyThresholdIsStrict(t *testing.T) {
	res := Classify([]token.Token{erc20(dai, "DAI", token.KnownUSD(50))}, 50)
	assert.Empty(t, res.Dust)
	require.Len(t, res.Keepers, 1)

	res = Classify([]token.Token{erc20(dai, "DAI", token.KnownUSD(49.99))}, 50)
	assert.Len(t, res.Dust, 1)
}

func TestClassifyZeroThresholdKeepsPricedZero(t *testing.T) {
	res := Classify([]token.Token{erc20(dai, "ZERO", token.KnownUSD(0))}, 0)
	assert.Empty(t, res.Dust)
	assert.Len(t, res.Keepers, 1)
}

func TestClassifyIsIdempotent(t *testing.T) {
	in := sample()
	a := Classify(in, 50)
	b := Classify(in, 50)
	assert.Equal(t, a, b)
}

func TestClassifyUSDCAndNativeExample(t *testing.T) {
	usdcTok := token.NewERC20(8453, "Base", usdc, "USDC", "USD Coin", 6, "", big.NewInt(400000)).WithUSD(token.KnownUSD(0.40))
	eth := token.NewNative(8453, "Base", "ETH", 18, big.NewInt(2_000_000_000_000_000_000)).WithUSD(token.KnownUSD(5000))

	res := Classify([]token.Token{usdcTok, eth}, 50)
	require.Len(t, res.Dust, 1)
	require.Len(t, res.Keepers, 1)
	assert.Equal(t, "USDC", res.Dust[0].Symbol)
	assert.Equal(t, "ETH", res.Keepers[0].Symbol)
}

func TestClassifyObscureUnpricedExample(t *testing.T) {
	obscure := token.NewERC20(1, "Ethereum", obsc, "OBSC", "Obscure", 0, "", big.NewInt(1000))
	res := Classify([]token.Token{obscure}, 50)
	require.Len(t, res.Dust, 1)
	assert.Equal(t, "OBSC", res.Dust[0].Symbol)
}

func TestClassifyPreservesOrder(t *testing.T) {
	res := Classify(sample(), 50)
	syms := make([]string, len(res.Dust))
	for i, d := range res.Dust {
		syms[i] = d.Symbol
	}
	assert.Equal(t, []string{"USDC", "OBSC", "ZERO"}, syms)
}

func TestTotalUSDSkipsUnknown(t *testing.T) {
	total := TotalUSD([]token.Token{
		erc20(usdc, "USDC", token.KnownUSD(0.1)),
		erc20(dai, "DAI", token.KnownUSD(0.2)),
		erc20(obsc, "OBSC", token.UnknownUSD()),
	})
	assert.Equal(t, 0.3, total)
}

func TestSelect(t *testing.T) {
	in := []token.Token{
		erc20(usdc, "USDC", token.UnknownUSD()),
		erc20(dai, "DAI", token.UnknownUSD()),
		erc20(obsc, "OBSC", token.UnknownUSD()),
	}
	got := Select(in, []token.Key{in[2].Key(), in[0].Key()})
	require.Len(t, got, 2)
	assert.Equal(t, "USDC", got[0].Symbol)
	assert.Equal(t, "OBSC", got[1].Symbol)

	assert.Len(t, Select(in, nil), 3)
	assert.Empty(t, Select(in, []token.Key{}))
}
