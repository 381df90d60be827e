package main

import (
	"bytes"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abbas-claw/dust-sweeper/internal/config"
	"github.com/abbas-claw/dust-sweeper/internal/dust"
	"github.com/abbas-claw/dust-sweeper/internal/sweep"
	"github.com/abbas-claw/dust-sweeper/internal/token"
)

// well-known test key (hardhat account #0)
const testKeyHex = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestOwnerAddressPrecedence(t *testing.T) {
	flag := "0x1111111111111111111111111111111111111111"
	env := "0x2222222222222222222222222222222222222222"

	got, err := ownerAddress(flag, config.Settings{WalletAddress: env, WalletPrivateKeyHex: testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(flag), got)

	got, err = ownerAddress("", config.Settings{WalletAddress: env, WalletPrivateKeyHex: testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(env), got)

	got, err = ownerAddress("", config.Settings{WalletPrivateKeyHex: testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), got)

	_, err = ownerAddress("", config.Settings{})
	assert.ErrorIs(t, err, errNoWallet)

	_, err = ownerAddress("nope", config.Settings{})
	assert.Error(t, err)
}

func TestParseKeys(t *testing.T) {
	keys, err := parseKeys(nil)
	require.NoError(t, err)
	assert.Nil(t, keys, "no filter selects all dust")

	keys, err = parseKeys([]string{"8453:0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, uint64(8453), keys[0].ChainID)

	_, err = parseKeys([]string{"8453"})
	assert.Error(t, err)
}

func TestYesAndMask(t *testing.T) {
	assert.True(t, yes(" Y "))
	assert.True(t, yes("yes"))
	assert.False(t, yes(""))
	assert.False(t, yes("n"))

	assert.Equal(t, "***", maskHex("0x1234"))
	assert.Equal(t, "0xac09…ff80", maskHex(testKeyHex))
}

func TestPrinterEmptyWallet(t *testing.T) {
	var buf bytes.Buffer
	newPrinter(&buf).result(dust.Result{}, 50)
	assert.Equal(t, emptyWallet+"\n", buf.String())
}

func TestPrinterResult(t *testing.T) {
	usdc := token.NewERC20(8453, "Base", common.HexToAddress("0x0a"), "USDC", "USD Coin", 6, "", big.NewInt(400_000)).
		WithUSD(token.KnownUSD(0.4))
	junk := token.NewERC20(1, "Ethereum", common.HexToAddress("0x0b"), "JUNK", "Junk", 18, "", big.NewInt(1))
	eth := token.NewNative(1, "Ethereum", "ETH", 18, big.NewInt(1e18)).WithUSD(token.KnownUSD(2500))

	var buf bytes.Buffer
	newPrinter(&buf).result(dust.Classify([]token.Token{usdc, junk, eth}, 50), 50)
	out := buf.String()

	assert.Contains(t, out, "USDC")
	assert.Contains(t, out, "JUNK")
	assert.Contains(t, out, "—", "unpriced tokens show a dash")
	assert.Contains(t, out, "Total dust value: $0.40")
	assert.Contains(t, out, "Keeping: 1")
}

func TestPrinterScanningIsSafeFromManyGoroutines(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)
	var wg sync.WaitGroup
	for _, name := range []string{"Ethereum", "Base", "Arbitrum", "Optimism", "Polygon", "BSC"} {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			p.scanning(0, n)
		}(name)
	}
	wg.Wait()
	assert.Equal(t, 6, strings.Count(buf.String(), "Scanning "))
}

func TestPrinterSummary(t *testing.T) {
	var buf bytes.Buffer
	newPrinter(&buf).summary([]sweep.Status{
		{State: sweep.StateDone}, {State: sweep.StateError}, {State: sweep.StateDone},
	})
	assert.Contains(t, buf.String(), "Swept 2 of 3 tokens, 1 failed")
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"chains", "scan", "sweep", "history"} {
		assert.True(t, names[want], want)
	}
}

func TestChainsCommandPrintsRegistry(t *testing.T) {
	t.Setenv("CHAINS", "1,8453")
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"chains"})
	require.NoError(t, root.Execute())
	assert.Contains(t, buf.String(), "Ethereum")
	assert.Contains(t, buf.String(), "Base")
	assert.NotContains(t, buf.String(), "Polygon")
}
