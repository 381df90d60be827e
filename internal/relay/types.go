package relay

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TradeTypeExactInput asks for a quote that spends exactly the given amount.
const TradeTypeExactInput = "EXACT_INPUT"

// Currency is one entry of the routing service's verified token catalog.
type Currency struct {
	ChainID  uint64
	Address  common.Address
	Symbol   string
	Name     string
	Decimals uint8
	VMType   string
	LogoURI  string
	Verified bool
}

type currencyWire struct {
	ChainID  uint64 `json:"chainId"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
	VMType   string `json:"vmType"`
	Metadata struct {
		LogoURI  string `json:"logoURI"`
		Verified bool   `json:"verified"`
	} `json:"metadata"`
}

type currenciesRequest struct {
	ChainIDs []uint64 `json:"chainIds"`
	Limit    int      `json:"limit"`
	Verified bool     `json:"verified"`
}

type priceResponse struct {
	Price *float64 `json:"price"`
}

// QuoteRequest asks for a conversion of Amount base units of OriginCurrency.
type QuoteRequest struct {
	User                common.Address `json:"user"`
	OriginChainID       uint64         `json:"originChainId"`
	OriginCurrency      common.Address `json:"originCurrency"`
	DestinationChainID  uint64         `json:"destinationChainId"`
	DestinationCurrency common.Address `json:"destinationCurrency"`
	Amount              string         `json:"amount"`
	TradeType           string         `json:"tradeType"`
}

// Quote is an executable route: steps run in order, items within a step run
// in order.
type Quote struct {
	Steps   []Step       `json:"steps"`
	Details QuoteDetails `json:"details"`
	Fees    QuoteFees    `json:"fees"`
}

type Step struct {
	ID          string `json:"id"`
	Action      string `json:"action"`
	Description string `json:"description"`
	Kind        string `json:"kind"`
	Items       []Item `json:"items"`
}

// IsApproval reports whether the step grants the router an allowance.
func (s Step) IsApproval() bool {
	if strings.EqualFold(s.ID, "approve") {
		return true
	}
	return strings.Contains(strings.ToLower(s.Action), "approv")
}

const ItemIncomplete = "incomplete"

type Item struct {
	Status string  `json:"status"`
	Data   *TxData `json:"data"`
}

// Actionable reports whether the item still needs a transaction.
func (i Item) Actionable() bool {
	return i.Status == ItemIncomplete && i.Data != nil
}

// TxData is a transaction payload returned by the service. Data is opaque.
type TxData struct {
	From    common.Address `json:"from"`
	To      common.Address `json:"to"`
	Data    hexutil.Bytes  `json:"data"`
	Value   string         `json:"value"`
	ChainID uint64         `json:"chainId"`
}

// ValueWei parses Value, which the service sends as a decimal integer string.
// An empty value is zero.
func (d TxData) ValueWei() (*big.Int, error) {
	v := strings.TrimSpace(d.Value)
	if v == "" {
		return new(big.Int), nil
	}
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		return hexutil.DecodeBig(v)
	}
	out, ok := new(big.Int).SetString(v, 10)
	if !ok || out.Sign() < 0 {
		return nil, fmt.Errorf("invalid tx value %q", d.Value)
	}
	return out, nil
}

type AmountSummary struct {
	AmountFormatted string `json:"amountFormatted"`
	AmountUSD       string `json:"amountUsd"`
}

type QuoteDetails struct {
	CurrencyIn  AmountSummary `json:"currencyIn"`
	CurrencyOut AmountSummary `json:"currencyOut"`
}

type FeeAmount struct {
	AmountUSD string `json:"amountUsd"`
}

type QuoteFees struct {
	Gas     FeeAmount `json:"gas"`
	Relayer FeeAmount `json:"relayer"`
}
