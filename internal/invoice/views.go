package invoice

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-invoice/internal/db"
	"github.com/noah-isme/backend-invoice/internal/totals"
)

// DeriveStatus returns the status an invoice should carry given what has
// been paid against it. Cancellation is terminal.
func DeriveStatus(current string, total, paid decimal.Decimal) string {
	if current == db.InvoiceStatusCancelled {
		return db.InvoiceStatusCancelled
	}
	if total.IsPositive() && paid.GreaterThanOrEqual(total) {
		return db.InvoiceStatusPaid
	}
	return db.InvoiceStatusUnpaid
}

// Balance is what has been paid against an invoice and what remains.
type Balance struct {
	TotalPaid decimal.Decimal
	Due       decimal.Decimal
}

// NewBalance derives the due amount from the invoice total and payments.
func NewBalance(total, paid decimal.Decimal) Balance {
	return Balance{TotalPaid: paid, Due: total.Sub(paid)}
}

// MarshalJSON writes exact amounts next to their display text.
func (b Balance) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"total_paid": totals.Amount(b.TotalPaid),
		"due":        totals.Amount(b.Due),
		"display": map[string]string{
			"total_paid": totals.Format(b.TotalPaid),
			"due":        totals.Format(b.Due),
		},
	})
}

// Invoice is the API representation of a stored invoice.
type Invoice struct {
	ID            string         `json:"id"`
	ClientID      string         `json:"client_id"`
	ClientName    string         `json:"client_name"`
	InvoiceNumber string         `json:"invoice_number"`
	InvoiceDate   string         `json:"invoice_date"`
	DueDate       string         `json:"due_date"`
	Status        string         `json:"status"`
	Currency      string         `json:"currency"`
	Totals        totals.Totals  `json:"totals"`
	Balance       Balance        `json:"balance"`
	Items         []Item         `json:"items,omitempty"`
	Payments      []PaymentEntry `json:"payments,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Item is a stored line item with its computed breakdown.
type Item struct {
	ID          string      `json:"id"`
	Position    int         `json:"position"`
	Description string      `json:"description"`
	Breakdown   totals.Line `json:"breakdown"`
}

// PaymentEntry is a payment recorded against an invoice.
type PaymentEntry struct {
	ID            string      `json:"id"`
	InvoiceID     string      `json:"invoice_id"`
	InvoiceNumber string      `json:"invoice_number,omitempty"`
	ClientName    string      `json:"client_name,omitempty"`
	PaymentDate   string      `json:"payment_date"`
	Amount        json.Number `json:"amount"`
	AmountDisplay string      `json:"amount_display"`
	Mode          string      `json:"mode"`
	Notes         string      `json:"notes"`
	CreatedAt     time.Time   `json:"created_at"`
}

// FromRow converts an invoice row without items or payments.
func FromRow(row db.InvoiceRow) Invoice {
	return Invoice{
		ID:            db.UUIDString(row.ID),
		ClientID:      db.UUIDString(row.ClientID),
		ClientName:    row.ClientName,
		InvoiceNumber: row.InvoiceNumber,
		InvoiceDate:   db.DateString(row.InvoiceDate),
		DueDate:       db.DateString(row.DueDate),
		Status:        row.Status,
		Currency:      row.Currency,
		Totals: totals.Totals{
			Subtotal:      row.Subtotal,
			TotalDiscount: row.TotalDiscount,
			TotalTax:      row.TotalTax,
			GrandTotal:    row.TotalAmount,
		},
		Balance:   NewBalance(row.TotalAmount, row.TotalPaid),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

// ItemFromRow recomputes the breakdown of a stored item. Discount is a per
// unit amount here exactly as when the invoice total was computed.
func ItemFromRow(row db.InvoiceItem) Item {
	return Item{
		ID:          db.UUIDString(row.ID),
		Position:    int(row.Position),
		Description: row.Description,
		Breakdown:   totals.ComputeLine(lineItem(row)),
	}
}

func lineItem(row db.InvoiceItem) totals.LineItem {
	return totals.LineItem{
		Description: row.Description,
		Quantity:    totals.Dec(row.Quantity),
		UnitPrice:   totals.Dec(row.UnitPrice),
		Discount:    totals.Dec(row.Discount),
		TaxRate:     totals.Dec(row.TaxRate),
	}
}

// PaymentFromRow converts a stored payment.
func PaymentFromRow(p db.Payment) PaymentEntry {
	return PaymentEntry{
		ID:            db.UUIDString(p.ID),
		InvoiceID:     db.UUIDString(p.InvoiceID),
		PaymentDate:   db.DateString(p.PaymentDate),
		Amount:        totals.Amount(p.Amount),
		AmountDisplay: totals.Format(p.Amount),
		Mode:          p.Mode,
		Notes:         p.Notes,
		CreatedAt:     p.CreatedAt,
	}
}
