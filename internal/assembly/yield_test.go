package assembly

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func num(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculateTotalQuantity(t *testing.T) {
	tests := []struct {
		name       string
		produce    decimal.NullDecimal
		use        decimal.NullDecimal
		pct        decimal.Decimal
		qty        decimal.Decimal
		available  decimal.Decimal
		wantTotal  string
		wantErrMsg string
	}{
		{
			name:    "percentage wastage within availability",
			produce: num("10"), use: num("5"), pct: dec("10"), qty: decimal.Zero,
			available: dec("60"), wantTotal: "55.00",
		},
		{
			name:    "percentage wastage exceeds availability",
			produce: num("10"), use: num("5"), pct: dec("10"), qty: decimal.Zero,
			available: dec("50"), wantTotal: "55.00", wantErrMsg: "Maximum quantity is 50",
		},
		{
			name:    "absolute wastage",
			produce: num("4"), use: num("2"), pct: decimal.Zero, qty: dec("0.5"),
			available: dec("100"), wantTotal: "10.00",
		},
		{
			name:    "positive percentage wins over quantity",
			produce: num("10"), use: num("5"), pct: dec("10"), qty: dec("99"),
			available: dec("100"), wantTotal: "55.00",
		},
		{
			name:    "zero production",
			produce: num("0"), use: num("5"), pct: dec("10"), qty: decimal.Zero,
			available: dec("100"), wantTotal: "0.00",
		},
		{
			name:    "invalid quantity to use",
			produce: num("10"), use: decimal.NullDecimal{}, pct: decimal.Zero, qty: decimal.Zero,
			available: dec("100"), wantTotal: "0.00",
		},
		{
			name:    "negative input",
			produce: num("10"), use: num("-5"), pct: decimal.Zero, qty: decimal.Zero,
			available: dec("100"), wantTotal: "0.00",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateTotalQuantity(tt.produce, tt.use, tt.pct, tt.qty, tt.available)
			require.Equal(t, tt.wantTotal, got.TotalQuantity.StringFixed(2))
			require.Equal(t, tt.wantErrMsg, got.Err)
		})
	}
}

func TestNormalizeWastageMutualExclusivity(t *testing.T) {
	pct, qty := NormalizeWastage(dec("10"), dec("3"), true)
	require.Equal(t, "10", pct.String())
	require.True(t, qty.IsZero())

	pct, qty = NormalizeWastage(dec("10"), dec("3"), false)
	require.True(t, pct.IsZero())
	require.Equal(t, "3", qty.String())

	// Clearing a field leaves the other untouched.
	pct, qty = NormalizeWastage(decimal.Zero, dec("3"), true)
	require.True(t, pct.IsZero())
	require.Equal(t, "3", qty.String())

	// Negatives clamp to zero.
	pct, qty = NormalizeWastage(dec("-1"), dec("-2"), true)
	require.True(t, pct.IsZero())
	require.True(t, qty.IsZero())
}

func TestRequiredQuantities(t *testing.T) {
	order := AssemblyOrder{
		QtyToProduce: dec("10"),
		Lines: []ComponentLine{
			{ID: 1, QtyToUse: dec("5"), WastagePct: dec("10")},
			{ID: 2, QtyToUse: dec("2"), WastageQty: dec("0.5")},
		},
	}
	required := RequiredQuantities(order)
	require.Equal(t, "55", required[1].String())
	require.Equal(t, "25", required[2].String())
}
