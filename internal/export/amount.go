package export

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-ledger/internal/models"
)

// AmountFormatter renders exact decimal amounts in a currency's display
// convention (symbol, grouping, fraction digits).
type AmountFormatter struct {
	currency *money.Currency
}

// NewAmountFormatter builds a formatter for an ISO 4217 code. Unknown codes
// fall back to a bare decimal rendering.
func NewAmountFormatter(code string) *AmountFormatter {
	return &AmountFormatter{currency: money.GetCurrency(code)}
}

// Format renders an amount. The decimal is shifted into the currency's minor
// unit so no float conversion ever happens.
func (f *AmountFormatter) Format(amount decimal.Decimal) string {
	if f.currency == nil {
		return amount.String()
	}
	minor := amount.Shift(int32(f.currency.Fraction)).Round(0).IntPart()
	return money.New(minor, f.currency.Code).Display()
}

// SumAmounts adds a snapshot's amounts exactly.
func SumAmounts(records []*models.ExpenseRecord) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range records {
		total = total.Add(rec.Amount)
	}
	return total
}
