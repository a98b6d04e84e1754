// Package wei converts between the decimal ether strings used at the API
// boundary and the wei amounts used on the wire. Conversions are exact: a
// value that parses always formats back to the same decimal, so ledger rows
// never drift from what the caller submitted.
package wei

import (
	"fmt"
	"math/big"
	"strings"
)

var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Parse converts a decimal ether string ("0.5", "1", "0.000000000000000001")
// to wei. Fails on negative values, more than 18 fractional digits, or
// anything that is not a plain decimal.
func Parse(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty value")
	}
	// big.Rat also accepts fractions, exponents and hex floats; only plain
	// decimals are money here.
	if strings.Count(s, ".") > 1 || strings.IndexFunc(s, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	}) >= 0 {
		return nil, fmt.Errorf("invalid decimal value %q", s)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid decimal value %q", s)
	}
	r.Mul(r, new(big.Rat).SetInt(weiPerEther))
	if !r.IsInt() {
		return nil, fmt.Errorf("value %q has more than 18 decimal places", s)
	}
	return new(big.Int).Set(r.Num()), nil
}

// Format converts wei back to a decimal ether string with trailing zeros
// trimmed, so Format(Parse(x)) == x for any canonical input.
func Format(w *big.Int) string {
	if w == nil || w.Sign() == 0 {
		return "0"
	}
	r := new(big.Rat).SetFrac(new(big.Int).Set(w), weiPerEther)
	out := r.FloatString(18)
	out = strings.TrimRight(out, "0")
	out = strings.TrimRight(out, ".")
	if out == "" {
		return "0"
	}
	return out
}

// FormatGwei renders a wei amount as gwei for fee readouts.
func FormatGwei(w *big.Int) string {
	if w == nil {
		return "0"
	}
	r := new(big.Rat).SetFrac(new(big.Int).Set(w), big.NewInt(1_000_000_000))
	return r.FloatString(2)
}
