package token

import "fmt"

// USD is a dollar value that may be unknown. The zero value is unknown, so a
// confirmed $0 and "no price" never collapse into the same number.
type USD struct {
	value float64
	known bool
}

func UnknownUSD() USD { return USD{} }

func KnownUSD(v float64) USD { return USD{value: v, known: true} }

// Value returns the amount and whether it is known.
func (u USD) Value() (float64, bool) { return u.value, u.known }

func (u USD) Known() bool { return u.known }

func (u USD) String() string {
	if !u.known {
		return "—"
	}
	return fmt.Sprintf("$%.2f", u.value)
}
