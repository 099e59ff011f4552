package assembly

import (
	"github.com/shopspring/decimal"
)

// Yield is the computed component requirement for a production run.
type Yield struct {
	TotalQuantity decimal.Decimal
	Err           string
}

// CalculateTotalQuantity computes how much of a component a production run
// needs, wastage included. Invalid or negative inputs and a zero production
// quantity yield a zero total without an error; insufficient availability is
// reported as a blocking error with the maximum the caller may request.
//
// Wastage mode is decided by the percentage: a positive percentage wins,
// otherwise the absolute quantity applies.
func CalculateTotalQuantity(qtyToProduce, qtyToUse decimal.NullDecimal, wastagePct, wastageQty, available decimal.Decimal) Yield {
	zero := Yield{TotalQuantity: decimal.Zero.Round(2)}
	if !qtyToProduce.Valid || !qtyToUse.Valid {
		return zero
	}
	produce, use := qtyToProduce.Decimal, qtyToUse.Decimal
	if produce.IsNegative() || use.IsNegative() || wastagePct.IsNegative() || wastageQty.IsNegative() {
		return zero
	}
	if produce.IsZero() {
		return zero
	}

	wastage := wastageQty
	if wastagePct.IsPositive() {
		wastage = use.Mul(wastagePct).Div(decimal.NewFromInt(100))
	}
	total := use.Add(wastage).Mul(produce).Round(2)

	result := Yield{TotalQuantity: total}
	if available.LessThan(total) {
		result.Err = "Maximum quantity is " + available.String()
	}
	return result
}

// NormalizeWastage enforces mutual exclusivity on every edit: setting a
// positive value in one field zeroes the other. pctEdited tells which field
// the user just changed. Negative entries clamp to zero.
func NormalizeWastage(pct, qty decimal.Decimal, pctEdited bool) (decimal.Decimal, decimal.Decimal) {
	if pct.IsNegative() {
		pct = decimal.Zero
	}
	if qty.IsNegative() {
		qty = decimal.Zero
	}
	if pctEdited && pct.IsPositive() {
		return pct, decimal.Zero
	}
	if !pctEdited && qty.IsPositive() {
		return decimal.Zero, qty
	}
	return pct, qty
}

// LineYield applies CalculateTotalQuantity to a stored component line.
func LineYield(order AssemblyOrder, line ComponentLine, available decimal.Decimal) Yield {
	return CalculateTotalQuantity(
		decimal.NewNullDecimal(order.QtyToProduce),
		decimal.NewNullDecimal(line.QtyToUse),
		line.WastagePct, line.WastageQty, available)
}

// RequiredQuantities maps component line ID to the total quantity the order
// needs, ignoring availability.
func RequiredQuantities(order AssemblyOrder) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal, len(order.Lines))
	for _, line := range order.Lines {
		// Only the total matters here; the availability error is ignored.
		yield := LineYield(order, line, decimal.Zero)
		out[line.ID] = yield.TotalQuantity
	}
	return out
}
