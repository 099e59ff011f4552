package purchasing

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/procureflow/procureflow/internal/lifecycle"
)

// SourceDoc is one authorized document whose lines can still be consumed by
// the next document kind, e.g. a receiving offered to a bill editor. Qty maps
// order line id to the quantity the document carries for it.
type SourceDoc struct {
	ID     int64
	Number string
	Qty    map[int64]decimal.Decimal
}

// Leftover is a source document after the sequential consumption walk, with
// per-order-line quantity not yet consumed by downstream documents.
type Leftover struct {
	ID     int64
	Number string
	Qty    map[int64]decimal.Decimal
}

// HasRemaining reports whether any line still offers quantity; documents
// without remaining quantity are excluded from source pickers.
func (l Leftover) HasRemaining() bool {
	for _, qty := range l.Qty {
		if qty.IsPositive() {
			return true
		}
	}
	return false
}

// Remaining computes per-order-line quantity still open for a new consumer
// document, clamped at zero. Keys are the union of both maps so a line that
// was consumed without a matching source still reports zero, not a miss.
func Remaining(available, consumed map[int64]decimal.Decimal) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal, len(available))
	for lineID, avail := range available {
		rem := avail.Sub(consumed[lineID])
		if rem.IsNegative() {
			rem = decimal.Zero
		}
		out[lineID] = rem
	}
	for lineID := range consumed {
		if _, ok := out[lineID]; !ok {
			out[lineID] = decimal.Zero
		}
	}
	return out
}

// MaxQuantity is the upper bound the editor accepts for a line currently
// holding current: its own quantity plus whatever is left for others.
func MaxQuantity(current decimal.Decimal, remaining map[int64]decimal.Decimal, lineID int64) decimal.Decimal {
	return current.Add(remaining[lineID])
}

// MatchRemaining walks source documents in ledger order and consumes the
// already-billed totals from the oldest documents first. The result holds,
// per document, the quantity downstream documents have not yet spoken for.
//
// Which documents come out "spent" depends on this global FIFO order, while
// the quantity offered to a specific new document depends only on the
// caller's selected subset; hence the two-phase design with
// AggregateLeftover.
func MatchRemaining(sources []SourceDoc, consumed map[int64]decimal.Decimal) []Leftover {
	ordered := make([]SourceDoc, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		ni, nj := numericSuffix(ordered[i].Number), numericSuffix(ordered[j].Number)
		if ni != nj {
			return ni < nj
		}
		return ordered[i].ID < ordered[j].ID
	})

	remaining := make(map[int64]decimal.Decimal, len(consumed))
	for lineID, qty := range consumed {
		remaining[lineID] = qty
	}

	leftovers := make([]Leftover, 0, len(ordered))
	for _, doc := range ordered {
		left := Leftover{ID: doc.ID, Number: doc.Number, Qty: make(map[int64]decimal.Decimal, len(doc.Qty))}
		for _, lineID := range sortedLineIDs(doc.Qty) {
			qty := doc.Qty[lineID]
			rem := remaining[lineID]
			if rem.IsPositive() {
				take := decimal.Min(qty, rem)
				remaining[lineID] = rem.Sub(take)
				qty = qty.Sub(take)
			}
			left.Qty[lineID] = qty
		}
		leftovers = append(leftovers, left)
	}
	return leftovers
}

// AggregateLeftover sums leftover quantity across the selected source
// documents only, producing the per-order-line quantity usable by the new
// consumer document.
func AggregateLeftover(leftovers []Leftover, selected []int64) map[int64]decimal.Decimal {
	pick := make(map[int64]bool, len(selected))
	for _, id := range selected {
		pick[id] = true
	}
	out := make(map[int64]decimal.Decimal)
	for _, left := range leftovers {
		if !pick[left.ID] {
			continue
		}
		for lineID, qty := range left.Qty {
			out[lineID] = out[lineID].Add(qty)
		}
	}
	return out
}

// AvailableSources filters leftovers down to documents that still offer
// quantity on at least one line.
func AvailableSources(leftovers []Leftover) []Leftover {
	var out []Leftover
	for _, left := range leftovers {
		if left.HasRemaining() {
			out = append(out, left)
		}
	}
	return out
}

// numericSuffix extracts the trailing digit run of a document number for the
// FIFO tie-break, e.g. "RCV-0012" -> 12. Numbers without a suffix sort first.
func numericSuffix(number string) int64 {
	end := len(number)
	start := end
	for start > 0 && number[start-1] >= '0' && number[start-1] <= '9' {
		start--
	}
	var n int64
	for i := start; i < end; i++ {
		n = n*10 + int64(number[i]-'0')
	}
	return n
}

func sortedLineIDs(qty map[int64]decimal.Decimal) []int64 {
	ids := make([]int64, 0, len(qty))
	for id := range qty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// consuming reports whether a document in the given status counts toward
// consumed totals. Draft and void documents hold no quantity; a completed
// bill still does.
func consuming(status lifecycle.Status) bool {
	return status == lifecycle.StatusAuthorized || status == lifecycle.StatusCompleted
}

// OrderedQuantities sums ordered quantity per order line.
func OrderedQuantities(lines []OrderLine) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal, len(lines))
	for _, line := range lines {
		out[line.ID] = out[line.ID].Add(line.Ordered)
	}
	return out
}

// ReceivedQuantities sums authorized receiving quantity per order line,
// excluding the document currently being edited.
func ReceivedQuantities(receivings []Receiving, excludeID int64) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal)
	for _, rcv := range receivings {
		if rcv.ID == excludeID || !consuming(rcv.Status) {
			continue
		}
		for _, line := range rcv.Lines {
			out[line.OrderLineID] = out[line.OrderLineID].Add(line.Qty)
		}
	}
	return out
}

// BilledQuantities sums authorized bill quantity per order line, excluding
// the document currently being edited. Blind lines carry no order line and
// are skipped.
func BilledQuantities(bills []Bill, excludeID int64) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal)
	for _, bill := range bills {
		if bill.ID == excludeID || !consuming(bill.Status) {
			continue
		}
		for _, line := range bill.Lines {
			if line.OrderLineID == 0 {
				continue
			}
			out[line.OrderLineID] = out[line.OrderLineID].Add(line.Qty)
		}
	}
	return out
}

// CreditedQuantities sums authorized credit note quantity per order line.
func CreditedQuantities(notes []CreditNote, excludeID int64) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal)
	for _, note := range notes {
		if note.ID == excludeID || !consuming(note.Status) {
			continue
		}
		for _, line := range note.Lines {
			out[line.OrderLineID] = out[line.OrderLineID].Add(line.Qty)
		}
	}
	return out
}

// UnstockedQuantities sums authorized unstock quantity per order line.
func UnstockedQuantities(unstocks []Unstock, excludeID int64) map[int64]decimal.Decimal {
	out := make(map[int64]decimal.Decimal)
	for _, unstock := range unstocks {
		if unstock.ID == excludeID || !consuming(unstock.Status) {
			continue
		}
		for _, line := range unstock.Lines {
			out[line.OrderLineID] = out[line.OrderLineID].Add(line.Qty)
		}
	}
	return out
}

// ReceivingSources converts authorized receivings into matcher input.
func ReceivingSources(receivings []Receiving) []SourceDoc {
	var out []SourceDoc
	for _, rcv := range receivings {
		if !consuming(rcv.Status) {
			continue
		}
		doc := SourceDoc{ID: rcv.ID, Number: rcv.Number, Qty: make(map[int64]decimal.Decimal, len(rcv.Lines))}
		for _, line := range rcv.Lines {
			doc.Qty[line.OrderLineID] = doc.Qty[line.OrderLineID].Add(line.Qty)
		}
		out = append(out, doc)
	}
	return out
}

// BillSources converts authorized bills into matcher input for the credit
// note picker. Blind lines are skipped.
func BillSources(bills []Bill) []SourceDoc {
	var out []SourceDoc
	for _, bill := range bills {
		if !consuming(bill.Status) {
			continue
		}
		doc := SourceDoc{ID: bill.ID, Number: bill.Number, Qty: make(map[int64]decimal.Decimal, len(bill.Lines))}
		for _, line := range bill.Lines {
			if line.OrderLineID == 0 {
				continue
			}
			doc.Qty[line.OrderLineID] = doc.Qty[line.OrderLineID].Add(line.Qty)
		}
		out = append(out, doc)
	}
	return out
}
