// Package token holds the balance records produced by a wallet scan.
package token

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// NativeAddress is the all-zero address used in place of a contract address
// for a chain's native currency, both in tokens and in outbound requests.
var NativeAddress = common.Address{}

// IsNativeAddress reports whether addr is the native currency sentinel.
func IsNativeAddress(addr common.Address) bool { return addr == NativeAddress }

// Key identifies a token balance within one scan.
type Key struct {
	ChainID uint64
	Address common.Address
}

func (k Key) String() string {
	return strconv.FormatUint(k.ChainID, 10) + ":" + strings.ToLower(k.Address.Hex())
}

// ParseKey parses the "<chainID>:<address>" form produced by Key.String.
func ParseKey(s string) (Key, error) {
	id, addr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Key{}, fmt.Errorf("token key %q: missing ':'", s)
	}
	chainID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("token key %q: chain id: %w", s, err)
	}
	if !common.IsHexAddress(addr) {
		return Key{}, fmt.Errorf("token key %q: bad address", s)
	}
	return Key{ChainID: chainID, Address: common.HexToAddress(addr)}, nil
}

// Token is one non-zero balance of one wallet on one chain.
type Token struct {
	ChainID          uint64
	ChainName        string
	Address          common.Address
	Symbol           string
	Name             string
	Decimals         uint8
	Balance          *big.Int
	BalanceFormatted string
	LogoURI          string
	USD              USD
	IsNative         bool
}

// NewNative builds the record for a chain's native currency balance.
func NewNative(chainID uint64, chainName, symbol string, decimals uint8, balance *big.Int) Token {
	return newToken(chainID, chainName, NativeAddress, symbol, chainName, decimals, "", balance)
}

// NewERC20 builds the record for a token contract balance.
func NewERC20(chainID uint64, chainName string, addr common.Address, symbol, name string, decimals uint8, logoURI string, balance *big.Int) Token {
	return newToken(chainID, chainName, addr, symbol, name, decimals, logoURI, balance)
}

func newToken(chainID uint64, chainName string, addr common.Address, symbol, name string, decimals uint8, logoURI string, balance *big.Int) Token {
	bal := new(big.Int)
	if balance != nil {
		bal.Set(balance)
	}
	return Token{
		ChainID:          chainID,
		ChainName:        chainName,
		Address:          addr,
		Symbol:           symbol,
		Name:             name,
		Decimals:         decimals,
		Balance:          bal,
		BalanceFormatted: FormatUnits(bal, decimals),
		LogoURI:          logoURI,
		USD:              UnknownUSD(),
		IsNative:         IsNativeAddress(addr),
	}
}

// Key returns the (chain, address) identity of t.
func (t Token) Key() Key { return Key{ChainID: t.ChainID, Address: t.Address} }

// Amount is the balance scaled by the token's decimals.
func (t Token) Amount() decimal.Decimal {
	if t.Balance == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(t.Balance, -int32(t.Decimals))
}

// WithUSD returns a copy of t carrying the given USD value.
func (t Token) WithUSD(u USD) Token {
	out := t
	if t.Balance != nil {
		out.Balance = new(big.Int).Set(t.Balance)
	}
	out.USD = u
	return out
}

// Keys returns the identity keys of tokens in order.
func Keys(tokens []Token) []Key {
	keys := make([]Key, 0, len(tokens))
	for _, t := range tokens {
		keys = append(keys, t.Key())
	}
	return keys
}
