package db

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Invoice statuses.
const (
	InvoiceStatusUnpaid    = "unpaid"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusCancelled = "cancelled"
)

type BusinessProfile struct {
	UserID       pgtype.UUID
	BusinessName string
	Email        string
	Phone        string
	Address      string
	Gst          string
	UpdatedAt    time.Time
}

type Client struct {
	ID        pgtype.UUID
	UserID    pgtype.UUID
	Name      string
	Email     string
	Phone     string
	Address   string
	Gst       string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Invoice struct {
	ID            pgtype.UUID
	UserID        pgtype.UUID
	ClientID      pgtype.UUID
	InvoiceNumber string
	InvoiceDate   pgtype.Date
	DueDate       pgtype.Date
	Status        string
	Currency      string
	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	TotalTax      decimal.Decimal
	TotalAmount   decimal.Decimal
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InvoiceRow is an invoice joined with its client name and the sum of its payments.
type InvoiceRow struct {
	Invoice
	ClientName string
	TotalPaid  decimal.Decimal
}

type InvoiceItem struct {
	ID          pgtype.UUID
	InvoiceID   pgtype.UUID
	Position    int32
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	TaxRate     decimal.Decimal
}

type Payment struct {
	ID          pgtype.UUID
	InvoiceID   pgtype.UUID
	UserID      pgtype.UUID
	PaymentDate pgtype.Date
	Amount      decimal.Decimal
	Mode        string
	Notes       string
	CreatedAt   time.Time
}

// PaymentRow is a payment joined with its invoice number and client name.
type PaymentRow struct {
	Payment
	InvoiceNumber string
	ClientName    string
}

type DashboardSummaryRow struct {
	TotalInvoices     int64
	PaidInvoices      int64
	UnpaidInvoices    int64
	CancelledInvoices int64
	BilledAmount      decimal.Decimal
	CollectedAmount   decimal.Decimal
	UnpaidAmount      decimal.Decimal
}
