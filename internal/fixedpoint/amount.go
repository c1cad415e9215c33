package fixedpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// USDDecimals is the scale of every USD-denominated amount (USDC-scale).
const USDDecimals = 6

var (
	// ErrUnderflow indicates a subtraction that would go below zero where a non-negative result is required.
	ErrUnderflow = errors.New("fixed-point underflow")
	// ErrDivisionByZero indicates a division by a zero amount.
	ErrDivisionByZero = errors.New("fixed-point division by zero")
	// ErrInvalidAmount indicates an unparseable numeric string.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Amount is an immutable arbitrary-precision integer with a decimal scale.
// The zero value is 0 with 0 decimals.
type Amount struct {
	raw      *big.Int
	decimals uint
}

// FromRaw creates an Amount from an on-chain integer. The value is copied.
func FromRaw(v *big.Int, decimals uint) Amount {
	if v == nil {
		return Zero(decimals)
	}
	return Amount{raw: new(big.Int).Set(v), decimals: decimals}
}

// FromInt64 creates an Amount from a raw int64 value.
func FromInt64(v int64, decimals uint) Amount {
	return Amount{raw: big.NewInt(v), decimals: decimals}
}

// Zero returns a zero Amount with the given scale.
func Zero(decimals uint) Amount {
	return Amount{raw: new(big.Int), decimals: decimals}
}

// ParseRaw parses a base-10 integer string holding the raw value, e.g. "1500000000000000000".
func ParseRaw(s string, decimals uint) (Amount, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return Amount{}, fmt.Errorf("%w: raw integer %q", ErrInvalidAmount, s)
	}
	return Amount{raw: v, decimals: decimals}, nil
}

// FromDecimalString parses a human decimal such as "1.25" into an Amount with the given scale.
// Fraction digits beyond decimals are truncated toward zero.
func FromDecimalString(s string, decimals uint) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	scaled := d.Shift(int32(decimals)).Truncate(0)
	return Amount{raw: scaled.BigInt(), decimals: decimals}, nil
}

func (a Amount) int() *big.Int {
	if a.raw == nil {
		return new(big.Int)
	}
	return a.raw
}

// Raw returns a copy of the underlying integer.
func (a Amount) Raw() *big.Int {
	return new(big.Int).Set(a.int())
}

// Decimals returns the decimal scale.
func (a Amount) Decimals() uint {
	return a.decimals
}

// Rescale converts the amount to another scale. Growing is exact; shrinking truncates
// toward zero and is lossy.
func (a Amount) Rescale(target uint) Amount {
	switch {
	case target == a.decimals:
		return FromRaw(a.int(), target)
	case target > a.decimals:
		v := new(big.Int).Mul(a.int(), pow10(target-a.decimals))
		return Amount{raw: v, decimals: target}
	default:
		v := new(big.Int).Quo(a.int(), pow10(a.decimals-target))
		return Amount{raw: v, decimals: target}
	}
}

// Add returns a + b at the larger of the two scales.
func (a Amount) Add(b Amount) Amount {
	x, y := align(a, b)
	return Amount{raw: new(big.Int).Add(x.int(), y.int()), decimals: x.decimals}
}

// Sub returns a - b at the larger of the two scales. The result may be negative.
func (a Amount) Sub(b Amount) Amount {
	x, y := align(a, b)
	return Amount{raw: new(big.Int).Sub(x.int(), y.int()), decimals: x.decimals}
}

// SubNonNegative returns a - b, failing with ErrUnderflow if the result would be negative.
func (a Amount) SubNonNegative(b Amount) (Amount, error) {
	r := a.Sub(b)
	if r.Sign() < 0 {
		return Amount{}, fmt.Errorf("%w: %s - %s", ErrUnderflow, a, b)
	}
	return r, nil
}

// Mul returns a × b; the result scale is the sum of the operand scales.
func (a Amount) Mul(b Amount) Amount {
	return Amount{raw: new(big.Int).Mul(a.int(), b.int()), decimals: a.decimals + b.decimals}
}

// Div returns a / b expressed with target decimals, truncated toward zero.
func (a Amount) Div(b Amount, target uint) (Amount, error) {
	if b.IsZero() {
		return Amount{}, ErrDivisionByZero
	}
	// a/b = (ra / 10^da) / (rb / 10^db); raw at target = ra × 10^(target+db) / (rb × 10^da)
	num := new(big.Int).Mul(a.int(), pow10(target+b.decimals))
	den := new(big.Int).Mul(b.int(), pow10(a.decimals))
	return Amount{raw: num.Quo(num, den), decimals: target}, nil
}

// IsZero reports whether the amount equals zero.
func (a Amount) IsZero() bool {
	return a.int().Sign() == 0
}

// Sign returns -1, 0 or 1.
func (a Amount) Sign() int {
	return a.int().Sign()
}

// Cmp compares a and b after scale alignment and returns -1, 0 or 1.
func (a Amount) Cmp(b Amount) int {
	x, y := align(a, b)
	return x.int().Cmp(y.int())
}

// Equal reports whether a and b have the same value and scale.
func (a Amount) Equal(b Amount) bool {
	return a.decimals == b.decimals && a.int().Cmp(b.int()) == 0
}

// Decimal converts the amount to a shopspring decimal for display and export.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(a.int(), -int32(a.decimals))
}

// String renders the amount with all of its decimals, e.g. "100.000000".
func (a Amount) String() string {
	return a.Decimal().StringFixed(int32(a.decimals))
}

// ToDecimalString is an alias of String.
func (a Amount) ToDecimalString() string {
	return a.String()
}

// MarshalJSON encodes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a decimal string; the scale is the number of fraction digits.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: amount must be a JSON string: %v", ErrInvalidAmount, err)
	}
	var decimals uint
	if i := strings.IndexByte(s, '.'); i >= 0 {
		decimals = uint(len(s) - i - 1)
	}
	parsed, err := FromDecimalString(s, decimals)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func align(a, b Amount) (Amount, Amount) {
	switch {
	case a.decimals > b.decimals:
		return a, b.Rescale(a.decimals)
	case b.decimals > a.decimals:
		return a.Rescale(b.decimals), b
	default:
		return a, b
	}
}

func pow10(n uint) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
