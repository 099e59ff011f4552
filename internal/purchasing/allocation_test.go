package purchasing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMaxForLine(t *testing.T) {
	costs := []decimal.Decimal{dec("10"), dec("25"), dec("5")}
	source := dec("100")

	// Other lines hold 30, so line 0 may grow to 70.
	require.Equal(t, "70", MaxForLine(costs, 0, source).String())
	require.Equal(t, "85", MaxForLine(costs, 1, source).String())
	require.Equal(t, "65", MaxForLine(costs, 2, source).String())
}

func TestMaxForLineNeverNegative(t *testing.T) {
	costs := []decimal.Decimal{dec("60"), dec("70")}
	require.Equal(t, "0", MaxForLine(costs, 0, dec("50")).String())
}

func TestClampCost(t *testing.T) {
	require.Equal(t, "0", ClampCost(dec("-4"), dec("10")).String())
	require.Equal(t, "10", ClampCost(dec("12"), dec("10")).String())
	require.Equal(t, "8", ClampCost(dec("8"), dec("10")).String())
}

func TestValidateAllocationsExactSum(t *testing.T) {
	lines := []ServiceLine{
		{Description: "Handling", Amount: dec("20"), LandedCost: false},
		{Description: "Freight", Amount: dec("150.00"), LandedCost: true, Allocations: []Allocation{
			{BillLineID: 1, Cost: dec("100.00")},
			{BillLineID: 2, Cost: dec("50.00")},
		}},
	}
	check := ValidateAllocations(lines, "USD")
	require.True(t, check.OK)
	require.Equal(t, -1, check.MismatchIndex)
}

func TestValidateAllocationsMismatch(t *testing.T) {
	for _, sum := range []string{"149.99", "150.01"} {
		lines := []ServiceLine{
			{Description: "Duty", Amount: dec("10"), LandedCost: true, Allocations: []Allocation{
				{BillLineID: 1, Cost: dec("10")},
			}},
			{Description: "Freight", Amount: dec("150.00"), LandedCost: true, Allocations: []Allocation{
				{BillLineID: 1, Cost: dec("100.00")},
				{BillLineID: 2, Cost: dec(sum).Sub(dec("100.00"))},
			}},
		}
		check := ValidateAllocations(lines, "USD")
		require.False(t, check.OK, sum)
		require.Equal(t, 1, check.MismatchIndex)
		require.Equal(t, sum, check.SumCost.StringFixed(2))
		require.Equal(t, "150.00", check.SumExpected.StringFixed(2))
		require.NotEmpty(t, check.Message)
	}
}

func TestValidateAllocationsUnallocatedLandedCost(t *testing.T) {
	lines := []ServiceLine{{Description: "Freight", Amount: dec("30"), LandedCost: true}}
	check := ValidateAllocations(lines, "EUR")
	require.False(t, check.OK)
	require.Equal(t, 0, check.MismatchIndex)
	require.Equal(t, "0.00", check.SumCost.StringFixed(2))
}

// Target amounts are tax-exclusive (total minus tax of a tax-exclusive
// calculation), independent of the order's tax-inclusive flag.
func TestAllocationTargets(t *testing.T) {
	taxes := map[int64]TaxRate{7: {ID: 7, Name: "GST", EffectiveRate: dec("15")}}
	bill := Bill{ID: 4, Lines: []BillLine{
		{ID: 41, ProductID: 9, Qty: dec("2"), UnitPrice: dec("100"), DiscountPct: dec("10"), TaxRateID: 7},
		{ID: 42, ProductID: 8, Qty: dec("1"), UnitPrice: dec("50")},
	}}

	targets := AllocationTargets(bill, taxes)
	require.Len(t, targets, 2)
	// 200 gross, 180 after discount; tax excluded from the candidate amount.
	require.Equal(t, "180.00", targets[0].Amount.StringFixed(2))
	require.Equal(t, int64(41), targets[0].BillLineID)
	require.Equal(t, "50.00", targets[1].Amount.StringFixed(2))
}
