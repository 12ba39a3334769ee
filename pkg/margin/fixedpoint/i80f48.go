// Package fixedpoint implements the I80F48 signed fixed-point type used
// throughout the margin engine: 80 integer bits, 48 fractional bits,
// checked arithmetic, and directional rounding for fee assessments.
package fixedpoint

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// fracExp (48) is the decimal exponent of the ULP and of String's
// fractional digits. Decimal.DivisionPrecision is set well above this so intermediate
// quotients never lose the bits a real I80F48 would keep.
const fracExp = 48

var (
	maxMagnitude = decimal.New(1, 80) // 10^80 is a loose, safe ceiling used only as a sanity bound
	one          = decimal.NewFromInt(1)
	ulp          = decimal.New(1, -fracExp)
)

func init() {
	decimal.DivisionPrecision = 60
}

// I80F48 is a checked signed fixed-point number. The zero value is zero.
type I80F48 struct {
	v decimal.Decimal
}

// Zero is the additive identity.
var Zero = I80F48{}

// FromInt64 builds an I80F48 from a native integer amount.
func FromInt64(n int64) I80F48 { return I80F48{v: decimal.NewFromInt(n)} }

// FromFloat64 builds an I80F48 from a float64, for seeding constants
// (interest curve knots, weights) — never for user-supplied amounts.
func FromFloat64(f float64) I80F48 { return I80F48{v: decimal.NewFromFloat(f)} }

// One ULP (10^-48) — the increment used for one-ULP rounding nudges.
func OneULP() I80F48 { return I80F48{v: ulp} }

func (a I80F48) checkMagnitude() I80F48 {
	if a.v.Abs().GreaterThan(maxMagnitude) {
		panic(fmt.Sprintf("fixedpoint: overflow, magnitude %s exceeds I80F48 range", a.v.String()))
	}
	return a
}

// Add returns a+b, panicking on overflow. Callers in the engine are
// expected to pre-validate that amounts stay in range; an overflow here
// indicates a programming error, not user input.
func (a I80F48) Add(b I80F48) I80F48 { return I80F48{v: a.v.Add(b.v)}.checkMagnitude() }

// Sub returns a-b.
func (a I80F48) Sub(b I80F48) I80F48 { return I80F48{v: a.v.Sub(b.v)}.checkMagnitude() }

// Mul returns a*b.
func (a I80F48) Mul(b I80F48) I80F48 { return I80F48{v: a.v.Mul(b.v)}.checkMagnitude() }

// Div returns a/b, returning an error instead of panicking since division
// by a caller-controlled denominator (e.g. a notional) is a recoverable
// instruction failure, not a programming error.
func (a I80F48) Div(b I80F48) (I80F48, error) {
	if b.IsZero() {
		return Zero, fmt.Errorf("fixedpoint: division by zero")
	}
	return I80F48{v: a.v.Div(b.v)}.checkMagnitude(), nil
}

// Neg returns -a.
func (a I80F48) Neg() I80F48 { return I80F48{v: a.v.Neg()} }

// Abs returns |a|.
func (a I80F48) Abs() I80F48 { return I80F48{v: a.v.Abs()} }

// IsZero reports whether a == 0.
func (a I80F48) IsZero() bool { return a.v.IsZero() }

// IsPositive reports whether a > 0.
func (a I80F48) IsPositive() bool { return a.v.IsPositive() }

// IsNegative reports whether a < 0.
func (a I80F48) IsNegative() bool { return a.v.IsNegative() }

// GreaterThan reports whether a > b.
func (a I80F48) GreaterThan(b I80F48) bool { return a.v.GreaterThan(b.v) }

// GreaterThanOrEqual reports whether a >= b.
func (a I80F48) GreaterThanOrEqual(b I80F48) bool { return a.v.GreaterThanOrEqual(b.v) }

// LessThan reports whether a < b.
func (a I80F48) LessThan(b I80F48) bool { return a.v.LessThan(b.v) }

// LessThanOrEqual reports whether a <= b.
func (a I80F48) LessThanOrEqual(b I80F48) bool { return a.v.LessThanOrEqual(b.v) }

// Equal reports whether a == b.
func (a I80F48) Equal(b I80F48) bool { return a.v.Equal(b.v) }

// Min returns the lesser of a, b.
func Min(a, b I80F48) I80F48 {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the greater of a, b.
func Max(a, b I80F48) I80F48 {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Clamp bounds a to [lo, hi].
func Clamp(a, lo, hi I80F48) I80F48 {
	return Max(lo, Min(hi, a))
}

// CeilToInt64 rounds toward +infinity; used for liability-side charges so
// the protocol never under-collects.
func (a I80F48) CeilToInt64() int64 {
	return a.v.Ceil().IntPart()
}

// FloorToInt64 rounds toward -infinity; used for asset-side credits so
// the protocol never over-credits.
func (a I80F48) FloorToInt64() int64 {
	return a.v.Floor().IntPart()
}

// RoundToInt64 rounds to the nearest integer, ties away from zero.
func (a I80F48) RoundToInt64() int64 {
	return a.v.Round(0).IntPart()
}

// Float64 converts to a float64. Only ever used for logging/display.
func (a I80F48) Float64() float64 {
	f, _ := a.v.Float64()
	return f
}

// String renders the value with full fractional precision.
func (a I80F48) String() string { return a.v.StringFixed(fracExp) }

// One is the multiplicative identity.
func One() I80F48 { return I80F48{v: one} }

// MarshalJSON/UnmarshalJSON and GobEncode/GobDecode delegate to the
// underlying decimal so I80F48 values round-trip through pkg/storage's
// JSON-encoded pebble entries without losing precision to float64.
func (a I80F48) MarshalJSON() ([]byte, error) { return a.v.MarshalJSON() }

func (a *I80F48) UnmarshalJSON(b []byte) error { return a.v.UnmarshalJSON(b) }

func (a I80F48) GobEncode() ([]byte, error) { return a.v.GobEncode() }

func (a *I80F48) GobDecode(b []byte) error { return a.v.GobDecode(b) }
