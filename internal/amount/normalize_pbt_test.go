package amount

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

var scales = []int64{1, 10, 1_000_000, 100_000_000, 1_000_000_000, 1_000_000_000_000_000}

func genScale() gopter.Gen {
	return gen.IntRange(0, len(scales)-1).Map(func(i int) int64 { return scales[i] })
}

func TestNormalizeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("has exactly p fractional digits", prop.ForAll(
		func(raw int64, scale int64, p int32) bool {
			s := NormalizeInt(raw, scale, p)
			dot := strings.IndexByte(s, '.')
			if p == 0 {
				return dot == -1
			}
			return dot >= 0 && len(s)-dot-1 == int(p)
		},
		gen.Int64Range(0, 1<<62),
		genScale(),
		gen.Int32Range(0, 12),
	))

	properties.Property("never rounds up", prop.ForAll(
		func(raw int64, scale int64, p int32) bool {
			got := decimal.RequireFromString(NormalizeInt(raw, scale, p))
			return got.Mul(decimal.NewFromInt(scale)).LessThanOrEqual(decimal.NewFromInt(raw))
		},
		gen.Int64Range(0, 1<<62),
		genScale(),
		gen.Int32Range(0, 12),
	))

	properties.Property("within one display step of the exact value", prop.ForAll(
		func(raw int64, scale int64, p int32) bool {
			got := decimal.RequireFromString(NormalizeInt(raw, scale, p))
			rem := decimal.NewFromInt(raw).Sub(got.Mul(decimal.NewFromInt(scale)))
			step := decimal.New(1, -p).Mul(decimal.NewFromInt(scale))
			return rem.LessThan(step)
		},
		gen.Int64Range(0, 1<<62),
		genScale(),
		gen.Int32Range(0, 12),
	))

	properties.Property("sign symmetric", prop.ForAll(
		func(raw int64, scale int64, p int32) bool {
			pos := NormalizeInt(raw, scale, p)
			neg := NormalizeInt(-raw, scale, p)
			if decimal.RequireFromString(pos).IsZero() {
				return neg == pos
			}
			return neg == "-"+pos
		},
		gen.Int64Range(0, 1<<62),
		genScale(),
		gen.Int32Range(0, 12),
	))

	properties.Property("deterministic", prop.ForAll(
		func(raw int64, scale int64, p int32) bool {
			return NormalizeInt(raw, scale, p) == NormalizeInt(raw, scale, p)
		},
		gen.Int64(),
		genScale(),
		gen.Int32Range(0, 12),
	))

	properties.TestingRun(t)
}
