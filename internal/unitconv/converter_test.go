package unitconv

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrimart/fulfillment/internal/domain"
)

func mustConverter(t *testing.T) *Converter {
	t.Helper()
	c, err := New(DefaultTable())
	require.NoError(t, err)
	return c
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestConvert(t *testing.T) {
	t.Parallel()
	c := mustConverter(t)

	t.Run("same unit returns value untouched", func(t *testing.T) {
		in := dec("3.333333")
		got, err := c.Convert(in, "kg", "kg")
		require.NoError(t, err)
		// not even rounded
		assert.Equal(t, in.String(), got.String())
	})

	t.Run("mass conversions", func(t *testing.T) {
		cases := []struct {
			value, want string
			from, to    string
		}{
			{"1.5", "1500", "kg", "g"},
			{"250", "0.25", "g", "kg"},
			{"2", "250", "crate", "kg"},
			{"125", "1", "kg", "crate"},
			{"0.5", "500", "t", "kg"},
		}
		for _, tc := range cases {
			got, err := c.Convert(dec(tc.value), tc.from, tc.to)
			require.NoError(t, err)
			assert.True(t, got.Equal(dec(tc.want)), "%s %s -> %s: got %s, want %s", tc.value, tc.from, tc.to, got, tc.want)
		}
	})

	t.Run("count conversions", func(t *testing.T) {
		got, err := c.Convert(dec("3"), "dozen", "unit")
		require.NoError(t, err)
		assert.True(t, got.Equal(dec("36")), "got %s", got)
	})

	t.Run("result rounded to two places", func(t *testing.T) {
		got, err := c.Convert(dec("1"), "unit", "dozen")
		require.NoError(t, err)
		assert.True(t, got.Equal(dec("0.08")), "got %s", got) // 1/12 = 0.0833...
	})

	t.Run("cleanly divisible values round trip exactly", func(t *testing.T) {
		cases := []struct{ from, to, value string }{
			{"kg", "crate", "12.5"},
			{"kg", "t", "250"},
			{"l", "ml", "7.25"},
			{"unit", "dozen", "36"},
		}
		for _, tc := range cases {
			x := dec(tc.value)
			there, err := c.Convert(x, tc.from, tc.to)
			require.NoError(t, err)
			back, err := c.Convert(there, tc.to, tc.from)
			require.NoError(t, err)
			assert.True(t, back.Equal(x), "%s<->%s: %s came back as %s", tc.from, tc.to, x, back)
		}
	})

	t.Run("round trips within rounding tolerance", func(t *testing.T) {
		// The intermediate is rounded to 2 places, so the round trip can be
		// off by half an ulp of the coarser unit expressed in the finer one:
		// 0.005 * (factor(to)/factor(from) + 1).
		cases := []struct{ from, to, value, tol string }{
			{"kg", "crate", "7.25", "0.63"},
			{"l", "ml", "7.25", "0.01"},
			{"unit", "dozen", "7.25", "0.07"},
			{"kg", "t", "7.25", "5.01"},
		}
		for _, tc := range cases {
			x := dec(tc.value)
			there, err := c.Convert(x, tc.from, tc.to)
			require.NoError(t, err)
			back, err := c.Convert(there, tc.to, tc.from)
			require.NoError(t, err)
			assert.True(t, back.Sub(x).Abs().LessThanOrEqual(dec(tc.tol)),
				"%s<->%s: %s came back as %s", tc.from, tc.to, x, back)
		}
	})

	t.Run("cross category fails", func(t *testing.T) {
		_, err := c.Convert(dec("1"), "kg", "l")
		assert.ErrorIs(t, err, domain.ErrInvalidUnitConversion)
	})

	t.Run("unknown units fail", func(t *testing.T) {
		_, err := c.Convert(dec("1"), "stone", "kg")
		assert.ErrorIs(t, err, domain.ErrInvalidUnitConversion)

		_, err = c.Convert(dec("1"), "kg", "stone")
		assert.ErrorIs(t, err, domain.ErrInvalidUnitConversion)
	})
}

func TestNewRejectsBadTables(t *testing.T) {
	t.Parallel()

	_, err := New(Table{
		CategoryMass:  {"kg": decimal.NewFromInt(1)},
		CategoryCount: {"kg": decimal.NewFromInt(1)},
	})
	assert.Error(t, err, "unit in two categories")

	_, err = New(Table{
		CategoryMass: {"kg": decimal.Zero},
	})
	assert.Error(t, err, "non-positive factor")
}
