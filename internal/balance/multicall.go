package balance

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Multicall3Address is the canonical Multicall3 deployment, identical on every
// supported chain.
var Multicall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

const aggregate3JSON = `[{
  "name": "aggregate3",
  "type": "function",
  "stateMutability": "payable",
  "inputs": [{
    "name": "calls",
    "type": "tuple[]",
    "components": [
      {"name": "target", "type": "address"},
      {"name": "allowFailure", "type": "bool"},
      {"name": "callData", "type": "bytes"}
    ]
  }],
  "outputs": [{
    "name": "returnData",
    "type": "tuple[]",
    "components": [
      {"name": "success", "type": "bool"},
      {"name": "returnData", "type": "bytes"}
    ]
  }]
}]`

var multicallABI = mustParseABI(aggregate3JSON)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("multicall abi: %v", err))
	}
	return parsed
}

type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type result3 struct {
	Success    bool
	ReturnData []byte
}

var balanceOfSelector = common.FromHex("0x70a08231")

// encodeBalanceOf builds balanceOf(owner) calldata.
func encodeBalanceOf(owner common.Address) []byte {
	out := make([]byte, 0, 4+32)
	out = append(out, balanceOfSelector...)
	return append(out, common.LeftPadBytes(owner.Bytes(), 32)...)
}

// packBalanceCalls encodes one aggregate3 call that reads owner's balance on
// every token, each allowed to fail on its own.
func packBalanceCalls(owner common.Address, tokens []common.Address) ([]byte, error) {
	data := encodeBalanceOf(owner)
	calls := make([]call3, len(tokens))
	for i, t := range tokens {
		calls[i] = call3{Target: t, AllowFailure: true, CallData: data}
	}
	return multicallABI.Pack("aggregate3", calls)
}

// unpackBalances decodes aggregate3 output into one balance per call. Failed
// sub-calls and malformed return data count as zero.
func unpackBalances(ret []byte, want int) ([]*big.Int, error) {
	var results []result3
	if err := multicallABI.UnpackIntoInterface(&results, "aggregate3", ret); err != nil {
		return nil, fmt.Errorf("decode aggregate3: %w", err)
	}
	if len(results) != want {
		return nil, fmt.Errorf("decode aggregate3: got %d results for %d calls", len(results), want)
	}
	out := make([]*big.Int, want)
	for i, r := range results {
		out[i] = new(big.Int)
		if r.Success && len(r.ReturnData) >= 32 {
			out[i].SetBytes(r.ReturnData[:32])
		}
	}
	return out, nil
}
