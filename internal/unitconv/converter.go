package unitconv

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/agrimart/fulfillment/internal/domain"
)

type Category string

const (
	CategoryMass   Category = "mass"
	CategoryVolume Category = "volume"
	CategoryCount  Category = "count"
)

// Precision every conversion result is rounded to. Stock comparisons rely on
// converted quantities being stable at this scale.
const Precision = 2

// Table maps each category's units to their factor relative to the category
// base unit (kg, l, unit). Factors are configuration, not code: callers may
// build their own table and hand it to New.
type Table map[Category]map[string]decimal.Decimal

// DefaultTable returns the factors for the units the catalog currently sells in.
func DefaultTable() Table {
	return Table{
		CategoryMass: {
			"g":     decimal.RequireFromString("0.001"),
			"kg":    decimal.NewFromInt(1),
			"t":     decimal.NewFromInt(1000),
			"crate": decimal.NewFromInt(125),
		},
		CategoryVolume: {
			"ml": decimal.RequireFromString("0.001"),
			"l":  decimal.NewFromInt(1),
		},
		CategoryCount: {
			"unit":  decimal.NewFromInt(1),
			"dozen": decimal.NewFromInt(12),
		},
	}
}

type entry struct {
	category Category
	factor   decimal.Decimal
}

// Converter converts quantities between units of the same category. It holds
// no mutable state: Convert is safe for concurrent use.
type Converter struct {
	units map[string]entry
}

func New(t Table) (*Converter, error) {
	units := make(map[string]entry)
	for cat, factors := range t {
		for unit, factor := range factors {
			if !factor.IsPositive() {
				return nil, fmt.Errorf("unit %q: factor must be positive, got %s", unit, factor)
			}
			if prev, ok := units[unit]; ok {
				return nil, fmt.Errorf("unit %q registered in both %s and %s", unit, prev.category, cat)
			}
			units[unit] = entry{category: cat, factor: factor}
		}
	}
	return &Converter{units: units}, nil
}

// Known reports whether unit is registered in the factor table.
func (c *Converter) Known(unit string) bool {
	_, ok := c.units[unit]
	return ok
}

// Convert expresses value, given in from-units, in to-units. Identical units
// return value untouched, with no rounding applied. Unknown units and
// cross-category pairs fail with ErrInvalidUnitConversion.
func (c *Converter) Convert(value decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if from == to {
		return value, nil
	}
	src, ok := c.units[from]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown unit %q", domain.ErrInvalidUnitConversion, from)
	}
	dst, ok := c.units[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: unknown unit %q", domain.ErrInvalidUnitConversion, to)
	}
	if src.category != dst.category {
		return decimal.Zero, fmt.Errorf("%w: %q is %s, %q is %s",
			domain.ErrInvalidUnitConversion, from, src.category, to, dst.category)
	}
	return value.Mul(src.factor).Div(dst.factor).Round(Precision), nil
}
