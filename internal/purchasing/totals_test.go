package purchasing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func num(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: dec(s), Valid: true}
}

func TestCalculateLineTotalTaxExclusive(t *testing.T) {
	tax := &TaxRate{ID: 1, Name: "GST", EffectiveRate: dec("15")}
	got := CalculateLineTotal(num("100"), num("2"), dec("10"), false, tax)
	require.Empty(t, got.Err)
	require.Equal(t, "207.00", got.Total.StringFixed(2))
	require.Equal(t, "27.00", got.TotalTax.StringFixed(2))
}

func TestCalculateLineTotalTaxInclusive(t *testing.T) {
	tax := &TaxRate{ID: 1, Name: "GST", EffectiveRate: dec("15")}
	got := CalculateLineTotal(num("100"), num("2"), dec("10"), true, tax)
	require.Empty(t, got.Err)
	require.Equal(t, "180.00", got.Total.StringFixed(2))
	require.Equal(t, "27.00", got.TotalTax.StringFixed(2))
}

func TestCalculateLineTotalNegativePrice(t *testing.T) {
	got := CalculateLineTotal(num("-5"), num("2"), decimal.Zero, false, nil)
	require.Equal(t, "Negative", got.Err)
	require.Equal(t, "0.00", got.Total.StringFixed(2))
	require.Equal(t, "0.00", got.TotalTax.StringFixed(2))
}

func TestCalculateLineTotalInvalidInput(t *testing.T) {
	got := CalculateLineTotal(decimal.NullDecimal{}, num("2"), decimal.Zero, false, nil)
	require.Empty(t, got.Err)
	require.True(t, got.Total.IsZero())

	got = CalculateLineTotal(num("10"), decimal.NullDecimal{}, decimal.Zero, false, nil)
	require.True(t, got.Total.IsZero())
}

func TestCalculateLineTotalZeroInputs(t *testing.T) {
	got := CalculateLineTotal(num("0"), num("5"), dec("10"), false, nil)
	require.Empty(t, got.Err)
	require.True(t, got.Total.IsZero())

	got = CalculateLineTotal(num("5"), num("0"), dec("10"), false, nil)
	require.True(t, got.Total.IsZero())
}

func TestCalculateLineTotalNoTax(t *testing.T) {
	got := CalculateLineTotal(num("19.99"), num("3"), decimal.Zero, false, nil)
	require.Equal(t, "59.97", got.Total.StringFixed(2))
	require.Equal(t, "0.00", got.TotalTax.StringFixed(2))
}

// Footer totals must sum the already-rounded per-line figures. With three
// lines of 33.333 the two orderings diverge by a cent: round-then-sum gives
// 99.99, sum-then-round gives 100.00. The former is the contract.
func TestSumLineTotalsRoundsBeforeSumming(t *testing.T) {
	line := CalculateLineTotal(num("33.333"), num("1"), decimal.Zero, false, nil)
	require.Equal(t, "33.33", line.Total.StringFixed(2))

	total, tax := SumLineTotals([]LineTotal{line, line, line})
	require.Equal(t, "99.99", total.StringFixed(2))
	require.Equal(t, "0.00", tax.StringFixed(2))

	raw := dec("33.333").Add(dec("33.333")).Add(dec("33.333"))
	require.Equal(t, "100.00", raw.Round(2).StringFixed(2), "orderings must actually diverge for this vector")
}

func TestClampPercent(t *testing.T) {
	require.Equal(t, "0", ClampPercent(dec("-3")).String())
	require.Equal(t, "100", ClampPercent(dec("101")).String())
	require.Equal(t, "42.5", ClampPercent(dec("42.5")).String())
}

func TestClampNonNegative(t *testing.T) {
	require.Equal(t, "0", ClampNonNegative(dec("-1")).String())
	require.Equal(t, "7", ClampNonNegative(dec("7")).String())
}
