package purchasing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Form DTOs mirror what document editors hold: decimals travel as strings so
// that partially typed input never corrupts state. Normalizing an API
// document into a form and back into an update payload with no edits must
// reproduce the document's line identities and figures exactly.

// BillLineForm is one editable bill line.
type BillLineForm struct {
	LineID      int64  `json:"lineId"`
	OrderLineID int64  `json:"orderLineId,omitempty"`
	ProductID   int64  `json:"productId"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	Discount    string `json:"discount"`
	TaxRateID   int64  `json:"taxRateId"`
	AccountID   int64  `json:"accountId"`
}

// ServiceLineForm is one editable additional-cost line.
type ServiceLineForm struct {
	LineID      int64            `json:"lineId"`
	Description string           `json:"description"`
	Amount      string           `json:"amount"`
	AccountID   int64            `json:"accountId"`
	LandedCost  bool             `json:"landedCost"`
	Allocations []AllocationForm `json:"allocations,omitempty"`
}

// AllocationForm is one editable landed-cost allocation.
type AllocationForm struct {
	BillID     int64  `json:"billId"`
	BillLineID int64  `json:"billLineId"`
	Cost       string `json:"cost"`
}

// BillForm is the full editor state for a bill.
type BillForm struct {
	BillID       int64             `json:"billId"`
	OrderID      int64             `json:"orderId"`
	Number       string            `json:"number"`
	Lines        []BillLineForm    `json:"lines"`
	ServiceLines []ServiceLineForm `json:"serviceLines"`
}

// BillUpdate is the parsed payload sent back on save.
type BillUpdate struct {
	BillID       int64
	OrderID      int64
	Number       string
	Lines        []BillLine
	ServiceLines []ServiceLine
}

// BillFormFromDocument normalizes an API bill into editor form values.
func BillFormFromDocument(bill Bill) BillForm {
	form := BillForm{BillID: bill.ID, OrderID: bill.OrderID, Number: bill.Number}
	for _, line := range bill.Lines {
		form.Lines = append(form.Lines, BillLineForm{
			LineID:      line.ID,
			OrderLineID: line.OrderLineID,
			ProductID:   line.ProductID,
			Quantity:    line.Qty.String(),
			UnitPrice:   line.UnitPrice.String(),
			Discount:    line.DiscountPct.String(),
			TaxRateID:   line.TaxRateID,
			AccountID:   line.AccountID,
		})
	}
	for _, svc := range bill.ServiceLines {
		svcForm := ServiceLineForm{
			LineID:      svc.ID,
			Description: svc.Description,
			Amount:      svc.Amount.String(),
			AccountID:   svc.AccountID,
			LandedCost:  svc.LandedCost,
		}
		for _, alloc := range svc.Allocations {
			svcForm.Allocations = append(svcForm.Allocations, AllocationForm{
				BillID:     alloc.BillID,
				BillLineID: alloc.BillLineID,
				Cost:       alloc.Cost.String(),
			})
		}
		form.ServiceLines = append(form.ServiceLines, svcForm)
	}
	return form
}

// BillUpdateFromForm parses editor state back into an update payload.
// Negative prices, quantities and discounts are clamped to their nearest
// legal bound rather than rejected; unparseable figures fail validation.
func BillUpdateFromForm(form BillForm) (BillUpdate, error) {
	update := BillUpdate{BillID: form.BillID, OrderID: form.OrderID, Number: form.Number}
	for i, line := range form.Lines {
		qty, err := parseFigure(line.Quantity, "quantity", i)
		if err != nil {
			return BillUpdate{}, err
		}
		price, err := parseFigure(line.UnitPrice, "unit price", i)
		if err != nil {
			return BillUpdate{}, err
		}
		discount, err := parseFigure(line.Discount, "discount", i)
		if err != nil {
			return BillUpdate{}, err
		}
		update.Lines = append(update.Lines, BillLine{
			ID:          line.LineID,
			BillID:      form.BillID,
			OrderLineID: line.OrderLineID,
			ProductID:   line.ProductID,
			Qty:         ClampNonNegative(qty),
			UnitPrice:   ClampNonNegative(price),
			DiscountPct: ClampPercent(discount),
			TaxRateID:   line.TaxRateID,
			AccountID:   line.AccountID,
		})
	}
	for i, svc := range form.ServiceLines {
		amount, err := parseFigure(svc.Amount, "amount", i)
		if err != nil {
			return BillUpdate{}, err
		}
		parsed := ServiceLine{
			ID:          svc.LineID,
			BillID:      form.BillID,
			Description: svc.Description,
			Amount:      ClampNonNegative(amount),
			AccountID:   svc.AccountID,
			LandedCost:  svc.LandedCost,
		}
		for _, alloc := range svc.Allocations {
			cost, err := parseFigure(alloc.Cost, "allocation cost", i)
			if err != nil {
				return BillUpdate{}, err
			}
			parsed.Allocations = append(parsed.Allocations, Allocation{
				BillID:     alloc.BillID,
				BillLineID: alloc.BillLineID,
				Cost:       ClampNonNegative(cost),
			})
		}
		update.ServiceLines = append(update.ServiceLines, parsed)
	}
	return update, nil
}

// ReceivingLineForm is one editable receiving line.
type ReceivingLineForm struct {
	LineID        int64  `json:"lineId"`
	OrderLineID   int64  `json:"orderLineId"`
	Quantity      string `json:"quantity"`
	BatchOrSerial string `json:"batchOrSerial,omitempty"`
	ExpiryDate    string `json:"expiryDate,omitempty"`
	WarehouseID   int64  `json:"warehouseId"`
}

// ReceivingForm is the editor state for a receiving.
type ReceivingForm struct {
	ReceivingID int64               `json:"receivingId"`
	OrderID     int64               `json:"orderId"`
	Number      string              `json:"number"`
	Date        string              `json:"date"`
	Lines       []ReceivingLineForm `json:"lines"`
}

// ReceivingFormFromDocument normalizes an API receiving into form values.
func ReceivingFormFromDocument(rcv Receiving) ReceivingForm {
	form := ReceivingForm{ReceivingID: rcv.ID, OrderID: rcv.OrderID, Number: rcv.Number}
	if !rcv.Date.IsZero() {
		form.Date = rcv.Date.Format(time.DateOnly)
	}
	for _, line := range rcv.Lines {
		lf := ReceivingLineForm{
			LineID:        line.ID,
			OrderLineID:   line.OrderLineID,
			Quantity:      line.Qty.String(),
			BatchOrSerial: line.BatchOrSerial,
			WarehouseID:   line.WarehouseID,
		}
		if !line.ExpiryDate.IsZero() {
			lf.ExpiryDate = line.ExpiryDate.Format(time.DateOnly)
		}
		form.Lines = append(form.Lines, lf)
	}
	return form
}

// ReceivingUpdateFromForm parses receiving editor state back into lines.
func ReceivingUpdateFromForm(form ReceivingForm) (Receiving, error) {
	rcv := Receiving{ID: form.ReceivingID, OrderID: form.OrderID, Number: form.Number}
	if form.Date != "" {
		date, err := time.Parse(time.DateOnly, form.Date)
		if err != nil {
			return Receiving{}, fmt.Errorf("date %q: %w", form.Date, ErrValidation)
		}
		rcv.Date = date
	}
	for i, line := range form.Lines {
		qty, err := parseFigure(line.Quantity, "quantity", i)
		if err != nil {
			return Receiving{}, err
		}
		parsed := ReceivingLine{
			ID:            line.LineID,
			ReceivingID:   form.ReceivingID,
			OrderLineID:   line.OrderLineID,
			Qty:           ClampNonNegative(qty),
			BatchOrSerial: line.BatchOrSerial,
			WarehouseID:   line.WarehouseID,
		}
		if line.ExpiryDate != "" {
			expiry, err := time.Parse(time.DateOnly, line.ExpiryDate)
			if err != nil {
				return Receiving{}, fmt.Errorf("expiry date %q: %w", line.ExpiryDate, ErrValidation)
			}
			parsed.ExpiryDate = expiry
		}
		rcv.Lines = append(rcv.Lines, parsed)
	}
	return rcv, nil
}

func parseFigure(s, field string, idx int) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("line %d: %s %q: %w", idx+1, field, s, ErrValidation)
	}
	return d, nil
}
