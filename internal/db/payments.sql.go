package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const paymentColumns = `id, invoice_id, user_id, payment_date, amount, mode, notes, created_at`

func scanPayment(row scanner) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.InvoiceID, &p.UserID, &p.PaymentDate, &p.Amount, &p.Mode, &p.Notes, &p.CreatedAt)
	return p, err
}

func collectPayments(ctx context.Context, q *Queries, sql string, args ...any) ([]Payment, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const createPayment = `INSERT INTO payments (invoice_id, user_id, payment_date, amount, mode, notes)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + paymentColumns

type CreatePaymentParams struct {
	InvoiceID   pgtype.UUID
	UserID      pgtype.UUID
	PaymentDate pgtype.Date
	Amount      decimal.Decimal
	Mode        string
	Notes       string
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, createPayment,
		arg.InvoiceID, arg.UserID, arg.PaymentDate, numeric(arg.Amount), arg.Mode, arg.Notes))
}

const listPaymentsByInvoice = `SELECT ` + paymentColumns + ` FROM payments
WHERE invoice_id = $1
ORDER BY payment_date, created_at`

func (q *Queries) ListPaymentsByInvoice(ctx context.Context, invoiceID pgtype.UUID) ([]Payment, error) {
	return collectPayments(ctx, q, listPaymentsByInvoice, invoiceID)
}

const listPaymentsByInvoices = `SELECT ` + paymentColumns + ` FROM payments
WHERE invoice_id = ANY($1::uuid[])
ORDER BY invoice_id, payment_date, created_at`

func (q *Queries) ListPaymentsByInvoices(ctx context.Context, invoiceIDs []pgtype.UUID) ([]Payment, error) {
	if len(invoiceIDs) == 0 {
		return nil, nil
	}
	return collectPayments(ctx, q, listPaymentsByInvoices, invoiceIDs)
}

const paymentFilter = `WHERE p.user_id = $1
  AND ($2 = '' OR p.mode = $2)
  AND ($3::date IS NULL OR p.payment_date = $3::date)`

const listPayments = `SELECT p.id, p.invoice_id, p.user_id, p.payment_date, p.amount, p.mode, p.notes, p.created_at,
       i.invoice_number, c.name
FROM payments p
JOIN invoices i ON i.id = p.invoice_id
JOIN clients c ON c.id = i.client_id
` + paymentFilter + `
ORDER BY p.payment_date DESC, p.created_at DESC
LIMIT $4 OFFSET $5`

type ListPaymentsParams struct {
	UserID pgtype.UUID
	Mode   string
	// Date filters to one payment day when Valid.
	Date   pgtype.Date
	Limit  int32
	Offset int32
}

func (q *Queries) ListPayments(ctx context.Context, arg ListPaymentsParams) ([]PaymentRow, error) {
	rows, err := q.db.Query(ctx, listPayments, arg.UserID, arg.Mode, arg.Date, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PaymentRow
	for rows.Next() {
		var r PaymentRow
		if err := rows.Scan(&r.ID, &r.InvoiceID, &r.UserID, &r.PaymentDate, &r.Amount, &r.Mode, &r.Notes, &r.CreatedAt,
			&r.InvoiceNumber, &r.ClientName); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const countPayments = `SELECT COUNT(*) FROM payments p
` + paymentFilter

type CountPaymentsParams struct {
	UserID pgtype.UUID
	Mode   string
	Date   pgtype.Date
}

func (q *Queries) CountPayments(ctx context.Context, arg CountPaymentsParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countPayments, arg.UserID, arg.Mode, arg.Date).Scan(&count)
	return count, err
}
