package purchasing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/procureflow/procureflow/internal/shared"
)

// AllocationCheck is the submit-time verdict on landed-cost allocations.
// MismatchIndex is the offending service line's position, -1 when OK.
type AllocationCheck struct {
	OK            bool
	MismatchIndex int
	SumCost       decimal.Decimal
	SumExpected   decimal.Decimal
	Message       string
}

// AllocationTarget is a bill line offered as a landed-cost destination. Its
// amount is the line's tax-exclusive total regardless of the order's own
// tax-inclusive setting.
type AllocationTarget struct {
	BillID     int64
	BillLineID int64
	ProductID  int64
	Amount     decimal.Decimal
}

// MaxForLine is the cap the editor shows for one allocation's cost: whatever
// of the source amount the other lines have not claimed. Every edit re-clamps
// the other lines' displayed max, but only the edited line's value is clamped
// on change.
func MaxForLine(costs []decimal.Decimal, idx int, sourceAmount decimal.Decimal) decimal.Decimal {
	others := decimal.Zero
	for i, cost := range costs {
		if i == idx {
			continue
		}
		others = others.Add(cost)
	}
	max := sourceAmount.Sub(others)
	if max.IsNegative() {
		return decimal.Zero
	}
	return max
}

// ClampCost clamps an edited cost into [0, max].
func ClampCost(cost, max decimal.Decimal) decimal.Decimal {
	if cost.IsNegative() {
		return decimal.Zero
	}
	if cost.GreaterThan(max) {
		return max
	}
	return cost
}

// ValidateAllocations checks every landed-cost service line for exact-sum
// completeness. Strict equality: a cent off in either direction blocks
// submission, naming the offending service line and both figures.
func ValidateAllocations(serviceLines []ServiceLine, currency string) AllocationCheck {
	for idx, line := range serviceLines {
		if !line.LandedCost {
			continue
		}
		sum := decimal.Zero
		for _, alloc := range line.Allocations {
			sum = sum.Add(alloc.Cost)
		}
		if !sum.Round(2).Equal(line.Amount.Round(2)) {
			return AllocationCheck{
				OK:            false,
				MismatchIndex: idx,
				SumCost:       sum.Round(2),
				SumExpected:   line.Amount.Round(2),
				Message: fmt.Sprintf("allocation for cost line %d is %s, expected %s",
					idx+1, shared.FormatAmount(currency, sum), shared.FormatAmount(currency, line.Amount)),
			}
		}
	}
	return AllocationCheck{OK: true, MismatchIndex: -1}
}

// AllocationTargets lists a bill's lines as landed-cost candidates. Each
// target amount is total minus tax from the line calculation run
// tax-exclusive, so the candidate value never depends on the parent order's
// tax-inclusive flag.
func AllocationTargets(bill Bill, taxes map[int64]TaxRate) []AllocationTarget {
	targets := make([]AllocationTarget, 0, len(bill.Lines))
	for _, line := range bill.Lines {
		var rate *TaxRate
		if tax, ok := taxes[line.TaxRateID]; ok {
			rate = &tax
		}
		result := CalculateLineTotal(
			decimal.NewNullDecimal(line.UnitPrice),
			decimal.NewNullDecimal(line.Qty),
			line.DiscountPct, false, rate)
		targets = append(targets, AllocationTarget{
			BillID:     bill.ID,
			BillLineID: line.ID,
			ProductID:  line.ProductID,
			Amount:     result.Total.Sub(result.TotalTax),
		})
	}
	return targets
}
