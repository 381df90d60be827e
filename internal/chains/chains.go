// Package chains is the fixed registry of EVM chains a wallet is scanned on.
package chains

import (
	"fmt"
	"sort"
	"strings"
)

// Chain describes one supported network.
type Chain struct {
	ID             uint64
	Name           string
	Symbol         string
	NativeDecimals uint8
	RPCURL         string
}

var supported = []Chain{
	{ID: 1, Name: "Ethereum", Symbol: "ETH", NativeDecimals: 18, RPCURL: "https://eth.llamarpc.com"},
	{ID: 8453, Name: "Base", Symbol: "ETH", NativeDecimals: 18, RPCURL: "https://mainnet.base.org"},
	{ID: 42161, Name: "Arbitrum", Symbol: "ETH", NativeDecimals: 18, RPCURL: "https://arb1.arbitrum.io/rpc"},
	{ID: 10, Name: "Optimism", Symbol: "ETH", NativeDecimals: 18, RPCURL: "https://mainnet.optimism.io"},
	{ID: 137, Name: "Polygon", Symbol: "POL", NativeDecimals: 18, RPCURL: "https://polygon-rpc.com"},
	{ID: 56, Name: "BSC", Symbol: "BNB", NativeDecimals: 18, RPCURL: "https://bsc-dataseed.binance.org"},
}

// Supported returns the built-in chain list in display order.
func Supported() []Chain {
	out := make([]Chain, len(supported))
	copy(out, supported)
	return out
}

// Registry is the immutable set of chains enabled for this process.
type Registry struct {
	chains []Chain
	byID   map[uint64]int
}

// NewRegistry selects the chains listed in ids (all supported chains when ids
// is empty) and applies RPC URL overrides keyed by chain id.
func NewRegistry(ids []uint64, rpcOverrides map[uint64]string) (*Registry, error) {
	want := map[uint64]bool{}
	for _, id := range ids {
		want[id] = true
	}

	r := &Registry{byID: map[uint64]int{}}
	for _, c := range supported {
		if len(want) > 0 && !want[c.ID] {
			continue
		}
		if u := strings.TrimSpace(rpcOverrides[c.ID]); u != "" {
			c.RPCURL = u
		}
		r.byID[c.ID] = len(r.chains)
		r.chains = append(r.chains, c)
		delete(want, c.ID)
	}

	if len(want) > 0 {
		unknown := make([]uint64, 0, len(want))
		for id := range want {
			unknown = append(unknown, id)
		}
		sort.Slice(unknown, func(i, j int) bool { return unknown[i] < unknown[j] })
		return nil, fmt.Errorf("unsupported chain ids: %v", unknown)
	}
	return r, nil
}

// All returns a copy of the enabled chains in registry order.
func (r *Registry) All() []Chain {
	out := make([]Chain, len(r.chains))
	copy(out, r.chains)
	return out
}

// IDs returns the enabled chain ids in registry order.
func (r *Registry) IDs() []uint64 {
	ids := make([]uint64, len(r.chains))
	for i, c := range r.chains {
		ids[i] = c.ID
	}
	return ids
}

func (r *Registry) Get(id uint64) (Chain, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Chain{}, false
	}
	return r.chains[i], true
}
