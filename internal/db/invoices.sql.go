package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

const invoiceColumns = `id, user_id, client_id, invoice_number, invoice_date, due_date, status, currency,
subtotal, total_discount, total_tax, total_amount, created_at, updated_at`

const invoiceRowSelect = `SELECT i.id, i.user_id, i.client_id, i.invoice_number, i.invoice_date, i.due_date, i.status, i.currency,
       i.subtotal, i.total_discount, i.total_tax, i.total_amount, i.created_at, i.updated_at,
       c.name,
       COALESCE((SELECT SUM(p.amount) FROM payments p WHERE p.invoice_id = i.id), 0) AS total_paid
FROM invoices i
JOIN clients c ON c.id = i.client_id`

type scanner interface{ Scan(...any) error }

func scanInvoice(row scanner) (Invoice, error) {
	var i Invoice
	err := row.Scan(&i.ID, &i.UserID, &i.ClientID, &i.InvoiceNumber, &i.InvoiceDate, &i.DueDate, &i.Status, &i.Currency,
		&i.Subtotal, &i.TotalDiscount, &i.TotalTax, &i.TotalAmount, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

func scanInvoiceRow(row scanner) (InvoiceRow, error) {
	var r InvoiceRow
	err := row.Scan(&r.ID, &r.UserID, &r.ClientID, &r.InvoiceNumber, &r.InvoiceDate, &r.DueDate, &r.Status, &r.Currency,
		&r.Subtotal, &r.TotalDiscount, &r.TotalTax, &r.TotalAmount, &r.CreatedAt, &r.UpdatedAt,
		&r.ClientName, &r.TotalPaid)
	return r, err
}

func collectInvoiceRows(ctx context.Context, q *Queries, sql string, args ...any) ([]InvoiceRow, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []InvoiceRow
	for rows.Next() {
		r, err := scanInvoiceRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// numeric renders d for a NUMERIC parameter. Strings are sent in text format,
// which keeps the value exact.
func numeric(d decimal.Decimal) string {
	return d.String()
}

const createInvoice = `INSERT INTO invoices (user_id, client_id, invoice_number, invoice_date, due_date, status, currency,
    subtotal, total_discount, total_tax, total_amount)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + invoiceColumns

type CreateInvoiceParams struct {
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
}

func (q *Queries) CreateInvoice(ctx context.Context, arg CreateInvoiceParams) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, createInvoice,
		arg.UserID, arg.ClientID, arg.InvoiceNumber, arg.InvoiceDate, arg.DueDate, arg.Status, arg.Currency,
		numeric(arg.Subtotal), numeric(arg.TotalDiscount), numeric(arg.TotalTax), numeric(arg.TotalAmount)))
}

const updateInvoice = `UPDATE invoices
SET client_id = $3, invoice_number = $4, invoice_date = $5, due_date = $6, status = $7,
    subtotal = $8, total_discount = $9, total_tax = $10, total_amount = $11, updated_at = now()
WHERE id = $1 AND user_id = $2
RETURNING ` + invoiceColumns

type UpdateInvoiceParams struct {
	ID            pgtype.UUID
	UserID        pgtype.UUID
	ClientID      pgtype.UUID
	InvoiceNumber string
	InvoiceDate   pgtype.Date
	DueDate       pgtype.Date
	Status        string
	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	TotalTax      decimal.Decimal
	TotalAmount   decimal.Decimal
}

func (q *Queries) UpdateInvoice(ctx context.Context, arg UpdateInvoiceParams) (Invoice, error) {
	return scanInvoice(q.db.QueryRow(ctx, updateInvoice,
		arg.ID, arg.UserID, arg.ClientID, arg.InvoiceNumber, arg.InvoiceDate, arg.DueDate, arg.Status,
		numeric(arg.Subtotal), numeric(arg.TotalDiscount), numeric(arg.TotalTax), numeric(arg.TotalAmount)))
}

type GetInvoiceParams struct {
	ID     pgtype.UUID
	UserID pgtype.UUID
}

const getInvoice = invoiceRowSelect + `
WHERE i.id = $1 AND i.user_id = $2`

func (q *Queries) GetInvoice(ctx context.Context, arg GetInvoiceParams) (InvoiceRow, error) {
	return scanInvoiceRow(q.db.QueryRow(ctx, getInvoice, arg.ID, arg.UserID))
}

const getInvoiceForUpdate = getInvoice + `
FOR UPDATE OF i`

// GetInvoiceForUpdate locks the invoice row until the surrounding transaction ends.
func (q *Queries) GetInvoiceForUpdate(ctx context.Context, arg GetInvoiceParams) (InvoiceRow, error) {
	return scanInvoiceRow(q.db.QueryRow(ctx, getInvoiceForUpdate, arg.ID, arg.UserID))
}

const listInvoices = invoiceRowSelect + `
WHERE i.user_id = $1 AND ($2 = '' OR i.status = $2)
ORDER BY i.invoice_date DESC, i.created_at DESC
LIMIT $3 OFFSET $4`

type ListInvoicesParams struct {
	UserID pgtype.UUID
	Status string
	Limit  int32
	Offset int32
}

func (q *Queries) ListInvoices(ctx context.Context, arg ListInvoicesParams) ([]InvoiceRow, error) {
	return collectInvoiceRows(ctx, q, listInvoices, arg.UserID, arg.Status, arg.Limit, arg.Offset)
}

const countInvoices = `SELECT COUNT(*) FROM invoices WHERE user_id = $1 AND ($2 = '' OR status = $2)`

type CountInvoicesParams struct {
	UserID pgtype.UUID
	Status string
}

func (q *Queries) CountInvoices(ctx context.Context, arg CountInvoicesParams) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, countInvoices, arg.UserID, arg.Status).Scan(&count)
	return count, err
}

const listDueInvoices = invoiceRowSelect + `
WHERE i.user_id = $1 AND i.status <> 'cancelled' AND ($2 = '' OR i.status = $2)
ORDER BY i.due_date ASC, i.invoice_number ASC`

type ListDueInvoicesParams struct {
	UserID pgtype.UUID
	Status string
}

func (q *Queries) ListDueInvoices(ctx context.Context, arg ListDueInvoicesParams) ([]InvoiceRow, error) {
	return collectInvoiceRows(ctx, q, listDueInvoices, arg.UserID, arg.Status)
}

// maxInvoiceNumberSequence reads the largest all-digit suffix among the
// user's numbers that start with the prefix. Renamed or hand-picked numbers
// that do not follow the pattern are ignored.
const maxInvoiceNumberSequence = `SELECT COALESCE(MAX(substring(invoice_number FROM length($2) + 1)::bigint), 0)
FROM invoices
WHERE user_id = $1
  AND left(invoice_number, length($2)) = $2
  AND substring(invoice_number FROM length($2) + 1) ~ '^[0-9]{1,18}$'`

type MaxInvoiceNumberSequenceParams struct {
	UserID pgtype.UUID
	Prefix string
}

func (q *Queries) MaxInvoiceNumberSequence(ctx context.Context, arg MaxInvoiceNumberSequenceParams) (int64, error) {
	var seq int64
	err := q.db.QueryRow(ctx, maxInvoiceNumberSequence, arg.UserID, arg.Prefix).Scan(&seq)
	return seq, err
}

const setInvoiceStatus = `UPDATE invoices SET status = $2, updated_at = now() WHERE id = $1`

type SetInvoiceStatusParams struct {
	ID     pgtype.UUID
	Status string
}

func (q *Queries) SetInvoiceStatus(ctx context.Context, arg SetInvoiceStatusParams) error {
	_, err := q.db.Exec(ctx, setInvoiceStatus, arg.ID, arg.Status)
	return err
}

const listDistinctInvoiceUsers = `SELECT DISTINCT user_id FROM invoices`

func (q *Queries) ListDistinctInvoiceUsers(ctx context.Context) ([]pgtype.UUID, error) {
	rows, err := q.db.Query(ctx, listDistinctInvoiceUsers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []pgtype.UUID
	for rows.Next() {
		var id pgtype.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const createInvoiceItem = `INSERT INTO invoice_items (invoice_id, position, description, quantity, unit_price, discount, tax_rate)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, invoice_id, position, description, quantity, unit_price, discount, tax_rate`

type CreateInvoiceItemParams struct {
	InvoiceID   pgtype.UUID
	Position    int32
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Discount    decimal.Decimal
	TaxRate     decimal.Decimal
}

func scanInvoiceItem(row scanner) (InvoiceItem, error) {
	var it InvoiceItem
	err := row.Scan(&it.ID, &it.InvoiceID, &it.Position, &it.Description, &it.Quantity, &it.UnitPrice, &it.Discount, &it.TaxRate)
	return it, err
}

func (q *Queries) CreateInvoiceItem(ctx context.Context, arg CreateInvoiceItemParams) (InvoiceItem, error) {
	return scanInvoiceItem(q.db.QueryRow(ctx, createInvoiceItem, arg.InvoiceID, arg.Position, arg.Description,
		numeric(arg.Quantity), numeric(arg.UnitPrice), numeric(arg.Discount), numeric(arg.TaxRate)))
}

const deleteInvoiceItems = `DELETE FROM invoice_items WHERE invoice_id = $1`

func (q *Queries) DeleteInvoiceItems(ctx context.Context, invoiceID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, deleteInvoiceItems, invoiceID)
	return err
}

const listInvoiceItems = `SELECT id, invoice_id, position, description, quantity, unit_price, discount, tax_rate
FROM invoice_items WHERE invoice_id = $1 ORDER BY position`

func (q *Queries) ListInvoiceItems(ctx context.Context, invoiceID pgtype.UUID) ([]InvoiceItem, error) {
	rows, err := q.db.Query(ctx, listInvoiceItems, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []InvoiceItem
	for rows.Next() {
		it, err := scanInvoiceItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
