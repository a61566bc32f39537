// Package amount converts fixed-point on-chain integers into human-readable decimals.
//
// Conversion divides by the field's scale and truncates toward zero at the
// display precision. Truncation is done on exact decimals, never on float64,
// so values sitting on a precision boundary do not drift.
package amount

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// TokenAmount is a raw on-chain quantity together with the divisor that
// turns it into units and the number of digits to display.
type TokenAmount struct {
	Raw       decimal.Decimal
	Scale     int64
	Precision int32
}

// New builds a TokenAmount from an integer raw value
func New(raw int64, scale int64, precision int32) TokenAmount {
	return TokenAmount{Raw: decimal.NewFromInt(raw), Scale: scale, Precision: precision}
}

// Units returns raw/scale exactly truncated at Precision digits
func (t TokenAmount) Units() decimal.Decimal {
	return TruncateQuo(t.Raw, t.Scale, t.Precision)
}

// String formats the amount with exactly Precision fractional digits
func (t TokenAmount) String() string {
	return NormalizeDecimal(t.Raw, t.Scale, t.Precision)
}

// Normalize divides raw by scale, truncates toward zero at precision digits
// and formats with exactly precision digits after the decimal point.
//
// scale must be > 0 and precision >= 0. Violations are programmer errors:
// a non-positive scale or negative precision returns "NaN".
func Normalize(raw *big.Int, scale int64, precision int32) string {
	if raw == nil {
		raw = new(big.Int)
	}
	return NormalizeDecimal(decimal.NewFromBigInt(raw, 0), scale, precision)
}

// NormalizeInt is Normalize for int64 raw values
func NormalizeInt(raw int64, scale int64, precision int32) string {
	return NormalizeDecimal(decimal.NewFromInt(raw), scale, precision)
}

// NormalizeDecimal is Normalize for raw values that already carry a fractional
// part, as lending protocols report accrued amounts.
func NormalizeDecimal(raw decimal.Decimal, scale int64, precision int32) string {
	if scale <= 0 || precision < 0 {
		return "NaN"
	}
	q := TruncateQuo(raw, scale, precision)
	return format(q, precision)
}

// TruncateQuo returns raw/scale truncated toward zero at precision digits.
// The quotient is exact: QuoRem yields q with |raw - scale*q| < scale*10^-precision
// and a remainder carrying the sign of raw.
func TruncateQuo(raw decimal.Decimal, scale int64, precision int32) decimal.Decimal {
	if scale <= 0 || precision < 0 {
		return decimal.Zero
	}
	q, _ := raw.QuoRem(decimal.NewFromInt(scale), precision)
	return q
}

// RoundFixed rounds v half away from zero and formats with exactly precision
// digits. Used for percentages and derived prices, never for raw conversions.
func RoundFixed(v decimal.Decimal, precision int32) string {
	return v.StringFixed(precision)
}

func format(q decimal.Decimal, precision int32) string {
	s := q.StringFixed(precision)
	// "-0.00" after truncating a small negative value is shown without sign
	if q.IsZero() && len(s) > 0 && s[0] == '-' {
		s = s[1:]
	}
	return s
}
