package token

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatUnits renders raw base units as a decimal string with the given
// precision, without trailing zeros ("0.4", "2", "0.000001").
func FormatUnits(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -int32(decimals)).String()
}
