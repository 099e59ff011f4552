package purchasing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/procureflow/procureflow/internal/lifecycle"
)

func qtyMap(pairs map[int64]string) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal, len(pairs))
	for id, s := range pairs {
		out[id] = dec(s)
	}
	return out
}

func TestRemainingClampsAtZero(t *testing.T) {
	available := qtyMap(map[int64]string{1: "10", 2: "4"})
	consumed := qtyMap(map[int64]string{1: "12", 3: "5"})

	rem := Remaining(available, consumed)
	require.Equal(t, "0", rem[1].String())
	require.Equal(t, "4", rem[2].String())
	require.Equal(t, "0", rem[3].String())
}

func TestMaxQuantityIncludesCurrentLine(t *testing.T) {
	rem := qtyMap(map[int64]string{1: "3"})
	require.Equal(t, "8", MaxQuantity(dec("5"), rem, 1).String())
	require.Equal(t, "5", MaxQuantity(dec("5"), rem, 99).String())
}

// Matcher vector: R1{lineA:10} number 1, R2{lineA:5} number 2, billed
// total 12. R1 must come out fully spent, R2 must offer 3 units.
func TestMatchRemainingFIFO(t *testing.T) {
	sources := []SourceDoc{
		{ID: 2, Number: "RCV-2", Qty: qtyMap(map[int64]string{100: "5"})},
		{ID: 1, Number: "RCV-1", Qty: qtyMap(map[int64]string{100: "10"})},
	}
	consumed := qtyMap(map[int64]string{100: "12"})

	leftovers := MatchRemaining(sources, consumed)
	require.Len(t, leftovers, 2)
	require.Equal(t, int64(1), leftovers[0].ID)
	require.Equal(t, "0", leftovers[0].Qty[100].String())
	require.False(t, leftovers[0].HasRemaining())
	require.Equal(t, int64(2), leftovers[1].ID)
	require.Equal(t, "3", leftovers[1].Qty[100].String())
	require.True(t, leftovers[1].HasRemaining())

	avail := AvailableSources(leftovers)
	require.Len(t, avail, 1)
	require.Equal(t, int64(2), avail[0].ID)
}

// The walk must be independent of load order: shuffled input produces the
// same leftover assignment because sorting is by document number suffix.
func TestMatchRemainingDeterministic(t *testing.T) {
	docA := SourceDoc{ID: 7, Number: "GRN-0003", Qty: qtyMap(map[int64]string{1: "4", 2: "6"})}
	docB := SourceDoc{ID: 5, Number: "GRN-0010", Qty: qtyMap(map[int64]string{1: "8"})}
	docC := SourceDoc{ID: 9, Number: "GRN-0007", Qty: qtyMap(map[int64]string{2: "2"})}
	consumed := qtyMap(map[int64]string{1: "6", 2: "7"})

	first := MatchRemaining([]SourceDoc{docA, docB, docC}, consumed)
	second := MatchRemaining([]SourceDoc{docC, docB, docA}, consumed)
	require.Equal(t, first, second)

	// GRN-0003 consumed first: line1 4 of 6, line2 6 of 7.
	require.Equal(t, "0", first[0].Qty[1].String())
	require.Equal(t, "0", first[0].Qty[2].String())
	// GRN-0007 next: line2 remaining 1 consumed, leftover 1.
	require.Equal(t, "1", first[1].Qty[2].String())
	// GRN-0010 last: line1 remaining 2 consumed, leftover 6.
	require.Equal(t, "6", first[2].Qty[1].String())
}

func TestMatchRemainingTieBreaksByID(t *testing.T) {
	sources := []SourceDoc{
		{ID: 12, Number: "RCV-5", Qty: qtyMap(map[int64]string{1: "5"})},
		{ID: 3, Number: "GRN-5", Qty: qtyMap(map[int64]string{1: "5"})},
	}
	leftovers := MatchRemaining(sources, qtyMap(map[int64]string{1: "5"}))
	require.Equal(t, int64(3), leftovers[0].ID)
	require.Equal(t, "0", leftovers[0].Qty[1].String())
	require.Equal(t, "5", leftovers[1].Qty[1].String())
}

func TestAggregateLeftoverSubset(t *testing.T) {
	leftovers := []Leftover{
		{ID: 1, Qty: qtyMap(map[int64]string{1: "0", 2: "3"})},
		{ID: 2, Qty: qtyMap(map[int64]string{1: "4"})},
		{ID: 3, Qty: qtyMap(map[int64]string{1: "2", 2: "1"})},
	}
	agg := AggregateLeftover(leftovers, []int64{1, 3})
	require.Equal(t, "2", agg[1].String())
	require.Equal(t, "4", agg[2].String())

	all := AggregateLeftover(leftovers, []int64{1, 2, 3})
	require.Equal(t, "6", all[1].String())
}

func TestConsumedQuantityHelpersSkipDraftAndVoid(t *testing.T) {
	receivings := []Receiving{
		{ID: 1, Status: lifecycle.StatusAuthorized, Lines: []ReceivingLine{{OrderLineID: 1, Qty: dec("5")}}},
		{ID: 2, Status: lifecycle.StatusDraft, Lines: []ReceivingLine{{OrderLineID: 1, Qty: dec("2")}}},
		{ID: 3, Status: lifecycle.StatusVoid, Lines: []ReceivingLine{{OrderLineID: 1, Qty: dec("9")}}},
	}
	got := ReceivedQuantities(receivings, 0)
	require.Equal(t, "5", got[1].String())

	// Excluding the edited document releases its quantity.
	got = ReceivedQuantities(receivings, 1)
	require.True(t, got[1].IsZero())
}

func TestBilledQuantitiesSkipsBlindLines(t *testing.T) {
	bills := []Bill{
		{ID: 1, Status: lifecycle.StatusAuthorized, Lines: []BillLine{
			{OrderLineID: 1, Qty: dec("2")},
			{OrderLineID: 0, Qty: dec("99")}, // blind bill line
		}},
		{ID: 2, Status: lifecycle.StatusCompleted, Lines: []BillLine{{OrderLineID: 1, Qty: dec("3")}}},
	}
	got := BilledQuantities(bills, 0)
	require.Equal(t, "5", got[1].String())
}

func TestNumericSuffix(t *testing.T) {
	require.Equal(t, int64(12), numericSuffix("RCV-0012"))
	require.Equal(t, int64(7), numericSuffix("7"))
	require.Equal(t, int64(0), numericSuffix("DRAFT-"))
	require.Equal(t, int64(3), numericSuffix("GRN2023-3"))
}
