package amount

import (
	"math/big"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeInt(t *testing.T) {
	tests := []struct {
		name      string
		raw       int64
		scale     int64
		precision int32
		want      string
	}{
		{"whole unit", 1_000_000_000, 1e9, 4, "1.0000"},
		{"truncates not rounds", 1_999_999, 1e6, 2, "1.99"},
		{"boundary digit kept", 123_450_000, 1e8, 4, "1.2345"},
		{"negative truncates toward zero", -1_999_999, 1e6, 2, "-1.99"},
		{"small negative shown as zero", -4_999, 1e6, 2, "0.00"},
		{"zero", 0, 1e6, 2, "0.00"},
		{"zero precision", 2_500_000, 1e6, 0, "2"},
		{"scale one", 42, 1, 3, "42.000"},
		{"usd notional product scale", 150_000_000_000_000_000, 1e15, 2, "150.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeInt(tt.raw, tt.scale, tt.precision))
		})
	}
}

func TestNormalize_BigInt(t *testing.T) {
	raw, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	assert.True(t, ok)
	assert.Equal(t, "123456789012345678901.234567", Normalize(raw, 1e9, 6))
	assert.Equal(t, "0.000", Normalize(nil, 1e6, 3))
}

func TestNormalizeDecimal_FractionalRaw(t *testing.T) {
	// lending protocols report accrued amounts with a fractional part
	raw := decimal.RequireFromString("100000000.987654321")
	assert.Equal(t, "1.000000", NormalizeDecimal(raw, 1e8, 6))
}

func TestNormalize_InvalidArguments(t *testing.T) {
	assert.Equal(t, "NaN", NormalizeInt(10, 0, 2))
	assert.Equal(t, "NaN", NormalizeInt(10, -1, 2))
	assert.Equal(t, "NaN", NormalizeInt(10, 10, -1))
}

func TestTokenAmount(t *testing.T) {
	a := New(2_345_678_901, 1e9, 4)
	assert.Equal(t, "2.3456", a.String())
	assert.True(t, a.Units().Equal(decimal.RequireFromString("2.3456")))
}

func TestRoundFixed(t *testing.T) {
	v := decimal.RequireFromString("37499.996")
	assert.Equal(t, "37500.00", RoundFixed(v, 2))
	assert.Equal(t, "-1.24", RoundFixed(decimal.RequireFromString("-1.235"), 2))
}

func TestTokenAmount_NegativeTruncatesTowardZero(t *testing.T) {
	a := TokenAmount{Raw: decimal.NewFromInt(-1_999_999), Scale: 1e6, Precision: 2}
	assert.Equal(t, "-1.99", a.String())
	assert.True(t, a.Units().Equal(decimal.RequireFromString("-1.99")))
}

// Normalizing a quote-scale PnL with the base scale (and the base-scale size
// with the quote scale) must give visibly different numbers. This guards the
// scale of each perp field against being conflated.
func TestNormalize_ScaleMismatchIsVisible(t *testing.T) {
	const (
		baseScale  int64 = 1_000_000_000
		quoteScale int64 = 1_000_000
	)
	pnlRaw := int64(1_250_500_000)      // 1250.50 USD at quote scale
	sizeRaw := int64(-12_500_000_000)   // -12.5 SOL at base scale

	correctPnl := NormalizeInt(pnlRaw, quoteScale, 2)
	correctSize := NormalizeInt(sizeRaw, baseScale, 4)
	swappedPnl := NormalizeInt(pnlRaw, baseScale, 2)
	swappedSize := NormalizeInt(sizeRaw, quoteScale, 4)

	assert.Equal(t, "1250.50", correctPnl)
	assert.Equal(t, "-12.5000", correctSize)
	assert.Equal(t, "1.25", swappedPnl)
	assert.Equal(t, "-12500.0000", swappedSize)
	assert.NotEqual(t, correctPnl, swappedPnl)
	assert.NotEqual(t, correctSize, swappedSize)
}

func TestNormalize_ZeroHasPrecisionDigits(t *testing.T) {
	for p := int32(1); p <= 9; p++ {
		want := "0." + strings.Repeat("0", int(p))
		assert.Equal(t, want, NormalizeInt(0, 1e6, p))
	}
}
