package purchasing

import "github.com/shopspring/decimal"

// errNegative is surfaced as a field error, not a Go error: a negative price
// zeroes the line but must not abort footer recomputation.
const errNegative = "Negative"

var hundred = decimal.NewFromInt(100)

// LineTotal is the per-line monetary result. Total and TotalTax are rounded
// to 2 decimals at the point of return; aggregates sum these rounded values.
type LineTotal struct {
	Total    decimal.Decimal
	TotalTax decimal.Decimal
	Err      string
}

// CalculateLineTotal computes a document line's total and tax. Price and
// quantity arrive as NullDecimal so that unparseable input degrades to a
// zero line instead of failing the whole footer.
func CalculateLineTotal(price, qty decimal.NullDecimal, discountPct decimal.Decimal, taxInclusive bool, tax *TaxRate) LineTotal {
	zero := LineTotal{Total: decimal.Zero.Round(2), TotalTax: decimal.Zero.Round(2)}
	if !price.Valid || !qty.Valid {
		return zero
	}
	if price.Decimal.IsNegative() {
		zero.Err = errNegative
		return zero
	}
	if price.Decimal.IsZero() || qty.Decimal.IsZero() {
		return zero
	}

	beforeDiscount := price.Decimal.Mul(qty.Decimal)
	discountAmt := beforeDiscount.Mul(discountPct).Div(hundred)
	afterDiscount := beforeDiscount.Sub(discountAmt)

	rate := decimal.Zero
	if tax != nil {
		rate = tax.EffectiveRate
	}
	taxAmt := afterDiscount.Mul(rate).Div(hundred)

	total := afterDiscount
	if !taxInclusive {
		total = afterDiscount.Add(taxAmt)
	}
	return LineTotal{Total: total.Round(2), TotalTax: taxAmt.Round(2)}
}

// SumLineTotals aggregates already-rounded line results for document footers.
// Summing the rounded per-line figures, rather than rounding a raw sum, is
// load-bearing for cent-level compatibility and is pinned by tests.
func SumLineTotals(lines []LineTotal) (total, totalTax decimal.Decimal) {
	total, totalTax = decimal.Zero, decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Total)
		totalTax = totalTax.Add(line.TotalTax)
	}
	return total.Round(2), totalTax.Round(2)
}

// ClampPercent clamps an edited percentage into [0, 100].
func ClampPercent(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(hundred) {
		return hundred
	}
	return v
}

// ClampNonNegative clamps an edited price or quantity at zero.
func ClampNonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
