package purchasing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Normalizing a bill into form values and back with no user edits must
// reproduce identical line identity and figure fields.
func TestBillFormRoundTrip(t *testing.T) {
	bill := Bill{
		ID:      12,
		OrderID: 3,
		Number:  "BILL-0042",
		Lines: []BillLine{
			{ID: 1, BillID: 12, OrderLineID: 100, ProductID: 9, Qty: dec("2.5"), UnitPrice: dec("19.99"), DiscountPct: dec("10"), TaxRateID: 7, AccountID: 300},
			{ID: 2, BillID: 12, OrderLineID: 0, ProductID: 4, Qty: dec("1"), UnitPrice: dec("5"), TaxRateID: 7, AccountID: 300},
		},
		ServiceLines: []ServiceLine{
			{ID: 3, BillID: 12, Description: "Freight", Amount: dec("80.00"), AccountID: 410, LandedCost: true, Allocations: []Allocation{
				{BillID: 12, BillLineID: 1, Cost: dec("60.00")},
				{BillID: 12, BillLineID: 2, Cost: dec("20.00")},
			}},
		},
	}

	form := BillFormFromDocument(bill)
	update, err := BillUpdateFromForm(form)
	require.NoError(t, err)

	require.Equal(t, bill.ID, update.BillID)
	require.Len(t, update.Lines, 2)
	for i, line := range update.Lines {
		require.Equal(t, bill.Lines[i].ID, line.ID)
		require.Equal(t, bill.Lines[i].OrderLineID, line.OrderLineID)
		require.True(t, bill.Lines[i].Qty.Equal(line.Qty), "quantity line %d", i)
		require.True(t, bill.Lines[i].DiscountPct.Equal(line.DiscountPct), "discount line %d", i)
		require.Equal(t, bill.Lines[i].TaxRateID, line.TaxRateID)
	}
	require.Len(t, update.ServiceLines, 1)
	require.True(t, bill.ServiceLines[0].Amount.Equal(update.ServiceLines[0].Amount))
	require.Len(t, update.ServiceLines[0].Allocations, 2)
	require.True(t, bill.ServiceLines[0].Allocations[0].Cost.Equal(update.ServiceLines[0].Allocations[0].Cost))
}

func TestBillUpdateFromFormClampsNegatives(t *testing.T) {
	form := BillForm{Lines: []BillLineForm{
		{LineID: 1, Quantity: "-3", UnitPrice: "-1.50", Discount: "120"},
	}}
	update, err := BillUpdateFromForm(form)
	require.NoError(t, err)
	require.Equal(t, "0", update.Lines[0].Qty.String())
	require.Equal(t, "0", update.Lines[0].UnitPrice.String())
	require.Equal(t, "100", update.Lines[0].DiscountPct.String())
}

func TestBillUpdateFromFormRejectsGarbage(t *testing.T) {
	form := BillForm{Lines: []BillLineForm{{LineID: 1, Quantity: "abc"}}}
	_, err := BillUpdateFromForm(form)
	require.ErrorIs(t, err, ErrValidation)
}

func TestReceivingFormRoundTrip(t *testing.T) {
	rcv := Receiving{
		ID:      5,
		OrderID: 3,
		Number:  "RCV-0007",
		Date:    time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC),
		Lines: []ReceivingLine{
			{ID: 1, ReceivingID: 5, OrderLineID: 100, Qty: dec("4"), BatchOrSerial: "LOT-9", ExpiryDate: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), WarehouseID: 2},
		},
	}
	form := ReceivingFormFromDocument(rcv)
	back, err := ReceivingUpdateFromForm(form)
	require.NoError(t, err)
	require.Equal(t, rcv.ID, back.ID)
	require.True(t, rcv.Date.Equal(back.Date))
	require.Len(t, back.Lines, 1)
	require.Equal(t, rcv.Lines[0].OrderLineID, back.Lines[0].OrderLineID)
	require.True(t, rcv.Lines[0].Qty.Equal(back.Lines[0].Qty))
	require.Equal(t, "LOT-9", back.Lines[0].BatchOrSerial)
	require.True(t, rcv.Lines[0].ExpiryDate.Equal(back.Lines[0].ExpiryDate))
}

func TestReceivingUpdateFromFormBadDate(t *testing.T) {
	_, err := ReceivingUpdateFromForm(ReceivingForm{Date: "14/02/2026"})
	require.ErrorIs(t, err, ErrValidation)
}
