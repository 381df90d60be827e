// Package dust splits priced balances into sweepable dust and keepers.
package dust

import (
	"github.com/shopspring/decimal"

	"github.com/abbas-claw/dust-sweeper/internal/token"
)

const DefaultThresholdUSD = 50.0

type Result struct {
	Dust    []token.Token
	Keepers []token.Token
}

// Classify partitions tokens. Native balances are always kept; an unpriced
// token is dust; a priced token is dust only when strictly below thresholdUSD.
// Input order is preserved within each list.
func Classify(tokens []token.Token, thresholdUSD float64) Result {
	res := Result{
		Dust:    make([]token.Token, 0, len(tokens)),
		Keepers: make([]token.Token, 0, len(tokens)),
	}
	for _, t := range tokens {
		if isDust(t, thresholdUSD) {
			res.Dust = append(res.Dust, t)
		} else {
			res.Keepers = append(res.Keepers, t)
		}
	}
	return res
}

func isDust(t token.Token, thresholdUSD float64) bool {
	if t.IsNative {
		return false
	}
	v, known := t.USD.Value()
	if !known {
		return true
	}
	return v < thresholdUSD
}

// TotalUSD sums the known USD values of tokens. Unpriced tokens add nothing.
func TotalUSD(tokens []token.Token) float64 {
	sum := decimal.Zero
	for _, t := range tokens {
		if v, ok := t.USD.Value(); ok {
			sum = sum.Add(decimal.NewFromFloat(v))
		}
	}
	f, _ := sum.Float64()
	return f
}

// Select returns the tokens whose keys are in keys, in tokens order. A nil
// keys selects everything.
func Select(tokens []token.Token, keys []token.Key) []token.Token {
	if keys == nil {
		return append([]token.Token(nil), tokens...)
	}
	want := make(map[token.Key]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var out []token.Token
	for _, t := range tokens {
		if want[t.Key()] {
			out = append(out, t)
		}
	}
	return out
}
