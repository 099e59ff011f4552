package shared

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatAmount renders an amount with its currency symbol for user-facing
// messages, e.g. "$1,204.50". Unknown codes fall back to "<code> <amount>".
func FormatAmount(code string, amount decimal.Decimal) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return code + " " + amount.StringFixed(2)
	}
	printer := message.NewPrinter(language.English)
	value, _ := amount.Round(2).Float64()
	return printer.Sprintf("%v", currency.NarrowSymbol(unit.Amount(value)))
}
