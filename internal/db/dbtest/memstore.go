// Package dbtest provides an in-memory db.Store for service and handler tests.
package dbtest

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-invoice/internal/db"
)

// MemStore mimics the Postgres queries closely enough for service tests,
// including the constraint errors the services translate.
type MemStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	Now func() time.Time

	profiles map[pgtype.UUID]db.BusinessProfile
	clients  map[pgtype.UUID]db.Client
	invoices map[pgtype.UUID]db.Invoice
	items    map[pgtype.UUID][]db.InvoiceItem
	payments []db.Payment

	// FailNext, when set, is returned by the next query and then cleared.
	FailNext error
	Calls    map[string]int
}

// New returns an empty store.
func New() *MemStore {
	return &MemStore{
		profiles: map[pgtype.UUID]db.BusinessProfile{},
		clients:  map[pgtype.UUID]db.Client{},
		invoices: map[pgtype.UUID]db.Invoice{},
		items:    map[pgtype.UUID][]db.InvoiceItem{},
		Calls:    map[string]int{},
	}
}

var _ db.Store = (*MemStore)(nil)

// enter locks the store and counts the call. When it returns an error the
// lock has already been released.
func (m *MemStore) enter(name string) error {
	m.mu.Lock()
	m.Calls[name]++
	if err := m.FailNext; err != nil {
		m.FailNext = nil
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *MemStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now().UTC()
}

func newID() pgtype.UUID {
	return pgtype.UUID{Bytes: uuid.New(), Valid: true}
}

func pgErr(code, msg string) error {
	return &pgconn.PgError{Code: code, Message: msg}
}

// WithinTx serialises transactions and rolls back every change when fn fails.
func (m *MemStore) WithinTx(ctx context.Context, fn func(db.Querier) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.snapshot()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.restore(snapshot)
		m.mu.Unlock()
		return err
	}
	return nil
}

type state struct {
	profiles map[pgtype.UUID]db.BusinessProfile
	clients  map[pgtype.UUID]db.Client
	invoices map[pgtype.UUID]db.Invoice
	items    map[pgtype.UUID][]db.InvoiceItem
	payments []db.Payment
}

func (m *MemStore) snapshot() state {
	s := state{
		profiles: make(map[pgtype.UUID]db.BusinessProfile, len(m.profiles)),
		clients:  make(map[pgtype.UUID]db.Client, len(m.clients)),
		invoices: make(map[pgtype.UUID]db.Invoice, len(m.invoices)),
		items:    make(map[pgtype.UUID][]db.InvoiceItem, len(m.items)),
		payments: append([]db.Payment(nil), m.payments...),
	}
	for k, v := range m.profiles {
		s.profiles[k] = v
	}
	for k, v := range m.clients {
		s.clients[k] = v
	}
	for k, v := range m.invoices {
		s.invoices[k] = v
	}
	for k, v := range m.items {
		s.items[k] = append([]db.InvoiceItem(nil), v...)
	}
	return s
}

func (m *MemStore) restore(s state) {
	m.profiles, m.clients, m.invoices, m.items, m.payments = s.profiles, s.clients, s.invoices, s.items, s.payments
}

// Clients

func (m *MemStore) CreateClient(_ context.Context, arg db.CreateClientParams) (db.Client, error) {
	if err := m.enter("CreateClient"); err != nil {
		return db.Client{}, err
	}
	defer m.mu.Unlock()
	now := m.now()
	c := db.Client{ID: newID(), UserID: arg.UserID, Name: arg.Name, Email: arg.Email, Phone: arg.Phone,
		Address: arg.Address, Gst: arg.Gst, CreatedAt: now, UpdatedAt: now}
	m.clients[c.ID] = c
	return c, nil
}

func (m *MemStore) GetClient(_ context.Context, arg db.GetClientParams) (db.Client, error) {
	if err := m.enter("GetClient"); err != nil {
		return db.Client{}, err
	}
	defer m.mu.Unlock()
	c, ok := m.clients[arg.ID]
	if !ok || c.UserID != arg.UserID {
		return db.Client{}, pgx.ErrNoRows
	}
	return c, nil
}

func (m *MemStore) clientsMatching(userID pgtype.UUID, search string) []db.Client {
	term := strings.ToLower(strings.NewReplacer(`\%`, "%", `\_`, "_", `\\`, `\`).Replace(search))
	var out []db.Client
	for _, c := range m.clients {
		if c.UserID == userID && strings.Contains(strings.ToLower(c.Name), term) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *MemStore) ListClients(_ context.Context, arg db.ListClientsParams) ([]db.Client, error) {
	if err := m.enter("ListClients"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	return page(m.clientsMatching(arg.UserID, arg.Search), arg.Limit, arg.Offset), nil
}

func (m *MemStore) CountClients(_ context.Context, arg db.CountClientsParams) (int64, error) {
	if err := m.enter("CountClients"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	return int64(len(m.clientsMatching(arg.UserID, arg.Search))), nil
}

func (m *MemStore) UpdateClient(_ context.Context, arg db.UpdateClientParams) (db.Client, error) {
	if err := m.enter("UpdateClient"); err != nil {
		return db.Client{}, err
	}
	defer m.mu.Unlock()
	c, ok := m.clients[arg.ID]
	if !ok || c.UserID != arg.UserID {
		return db.Client{}, pgx.ErrNoRows
	}
	c.Name, c.Email, c.Phone, c.Address, c.Gst = arg.Name, arg.Email, arg.Phone, arg.Address, arg.Gst
	c.UpdatedAt = m.now()
	m.clients[c.ID] = c
	return c, nil
}

func (m *MemStore) DeleteClient(_ context.Context, arg db.DeleteClientParams) (int64, error) {
	if err := m.enter("DeleteClient"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	c, ok := m.clients[arg.ID]
	if !ok || c.UserID != arg.UserID {
		return 0, nil
	}
	for _, inv := range m.invoices {
		if inv.ClientID == c.ID {
			return 0, pgErr("23503", "update or delete on table \"clients\" violates foreign key constraint")
		}
	}
	delete(m.clients, c.ID)
	return 1, nil
}

// Invoices

func (m *MemStore) paidFor(invoiceID pgtype.UUID) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range m.payments {
		if p.InvoiceID == invoiceID {
			sum = sum.Add(p.Amount)
		}
	}
	return sum
}

func (m *MemStore) row(inv db.Invoice) db.InvoiceRow {
	return db.InvoiceRow{Invoice: inv, ClientName: m.clients[inv.ClientID].Name, TotalPaid: m.paidFor(inv.ID)}
}

func (m *MemStore) numberTaken(userID pgtype.UUID, number string, except pgtype.UUID) bool {
	for _, inv := range m.invoices {
		if inv.UserID == userID && inv.InvoiceNumber == number && inv.ID != except {
			return true
		}
	}
	return false
}

func checkInvoice(invoiceDate, dueDate pgtype.Date, status string) error {
	if dueDate.Time.Before(invoiceDate.Time) {
		return pgErr("23514", "new row for relation \"invoices\" violates check constraint \"invoices_due_after_issue\"")
	}
	switch status {
	case db.InvoiceStatusUnpaid, db.InvoiceStatusPaid, db.InvoiceStatusCancelled:
		return nil
	}
	return pgErr("23514", "new row for relation \"invoices\" violates check constraint \"invoices_status_check\"")
}

func (m *MemStore) CreateInvoice(_ context.Context, arg db.CreateInvoiceParams) (db.Invoice, error) {
	if err := m.enter("CreateInvoice"); err != nil {
		return db.Invoice{}, err
	}
	defer m.mu.Unlock()
	if _, ok := m.clients[arg.ClientID]; !ok {
		return db.Invoice{}, pgErr("23503", "insert on table \"invoices\" violates foreign key constraint")
	}
	if m.numberTaken(arg.UserID, arg.InvoiceNumber, pgtype.UUID{}) {
		return db.Invoice{}, pgErr("23505", "duplicate key value violates unique constraint \"invoices_user_number_key\"")
	}
	if err := checkInvoice(arg.InvoiceDate, arg.DueDate, arg.Status); err != nil {
		return db.Invoice{}, err
	}
	now := m.now()
	inv := db.Invoice{
		ID: newID(), UserID: arg.UserID, ClientID: arg.ClientID, InvoiceNumber: arg.InvoiceNumber,
		InvoiceDate: arg.InvoiceDate, DueDate: arg.DueDate, Status: arg.Status, Currency: arg.Currency,
		Subtotal: arg.Subtotal, TotalDiscount: arg.TotalDiscount, TotalTax: arg.TotalTax, TotalAmount: arg.TotalAmount,
		CreatedAt: now, UpdatedAt: now,
	}
	m.invoices[inv.ID] = inv
	return inv, nil
}

func (m *MemStore) UpdateInvoice(_ context.Context, arg db.UpdateInvoiceParams) (db.Invoice, error) {
	if err := m.enter("UpdateInvoice"); err != nil {
		return db.Invoice{}, err
	}
	defer m.mu.Unlock()
	inv, ok := m.invoices[arg.ID]
	if !ok || inv.UserID != arg.UserID {
		return db.Invoice{}, pgx.ErrNoRows
	}
	if _, ok := m.clients[arg.ClientID]; !ok {
		return db.Invoice{}, pgErr("23503", "update on table \"invoices\" violates foreign key constraint")
	}
	if m.numberTaken(arg.UserID, arg.InvoiceNumber, arg.ID) {
		return db.Invoice{}, pgErr("23505", "duplicate key value violates unique constraint \"invoices_user_number_key\"")
	}
	if err := checkInvoice(arg.InvoiceDate, arg.DueDate, arg.Status); err != nil {
		return db.Invoice{}, err
	}
	inv.ClientID, inv.InvoiceNumber, inv.InvoiceDate, inv.DueDate, inv.Status = arg.ClientID, arg.InvoiceNumber, arg.InvoiceDate, arg.DueDate, arg.Status
	inv.Subtotal, inv.TotalDiscount, inv.TotalTax, inv.TotalAmount = arg.Subtotal, arg.TotalDiscount, arg.TotalTax, arg.TotalAmount
	inv.UpdatedAt = m.now()
	m.invoices[inv.ID] = inv
	return inv, nil
}

func (m *MemStore) GetInvoice(_ context.Context, arg db.GetInvoiceParams) (db.InvoiceRow, error) {
	if err := m.enter("GetInvoice"); err != nil {
		return db.InvoiceRow{}, err
	}
	defer m.mu.Unlock()
	inv, ok := m.invoices[arg.ID]
	if !ok || inv.UserID != arg.UserID {
		return db.InvoiceRow{}, pgx.ErrNoRows
	}
	return m.row(inv), nil
}

// GetInvoiceForUpdate relies on WithinTx serialising transactions for its locking.
func (m *MemStore) GetInvoiceForUpdate(ctx context.Context, arg db.GetInvoiceParams) (db.InvoiceRow, error) {
	return m.GetInvoice(ctx, arg)
}

func (m *MemStore) invoicesFor(userID pgtype.UUID, keep func(db.Invoice) bool) []db.InvoiceRow {
	var out []db.InvoiceRow
	for _, inv := range m.invoices {
		if inv.UserID == userID && keep(inv) {
			out = append(out, m.row(inv))
		}
	}
	return out
}

func (m *MemStore) ListInvoices(_ context.Context, arg db.ListInvoicesParams) ([]db.InvoiceRow, error) {
	if err := m.enter("ListInvoices"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	rows := m.invoicesFor(arg.UserID, func(inv db.Invoice) bool { return arg.Status == "" || inv.Status == arg.Status })
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.InvoiceDate.Time.Equal(b.InvoiceDate.Time) {
			return a.InvoiceDate.Time.After(b.InvoiceDate.Time)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return page(rows, arg.Limit, arg.Offset), nil
}

func (m *MemStore) CountInvoices(_ context.Context, arg db.CountInvoicesParams) (int64, error) {
	if err := m.enter("CountInvoices"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	rows := m.invoicesFor(arg.UserID, func(inv db.Invoice) bool { return arg.Status == "" || inv.Status == arg.Status })
	return int64(len(rows)), nil
}

func (m *MemStore) ListDueInvoices(_ context.Context, arg db.ListDueInvoicesParams) ([]db.InvoiceRow, error) {
	if err := m.enter("ListDueInvoices"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	rows := m.invoicesFor(arg.UserID, func(inv db.Invoice) bool {
		return inv.Status != db.InvoiceStatusCancelled && (arg.Status == "" || inv.Status == arg.Status)
	})
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.DueDate.Time.Equal(b.DueDate.Time) {
			return a.DueDate.Time.Before(b.DueDate.Time)
		}
		return a.InvoiceNumber < b.InvoiceNumber
	})
	return rows, nil
}

func (m *MemStore) MaxInvoiceNumberSequence(_ context.Context, arg db.MaxInvoiceNumberSequenceParams) (int64, error) {
	if err := m.enter("MaxInvoiceNumberSequence"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	var highest int64
	for _, inv := range m.invoices {
		if inv.UserID != arg.UserID || !strings.HasPrefix(inv.InvoiceNumber, arg.Prefix) {
			continue
		}
		suffix := strings.TrimPrefix(inv.InvoiceNumber, arg.Prefix)
		if suffix == "" || len(suffix) > 18 || strings.TrimLeft(suffix, "0123456789") != "" {
			continue
		}
		n, err := strconv.ParseInt(suffix, 10, 64)
		if err == nil && n > highest {
			highest = n
		}
	}
	return highest, nil
}

func (m *MemStore) SetInvoiceStatus(_ context.Context, arg db.SetInvoiceStatusParams) error {
	if err := m.enter("SetInvoiceStatus"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	inv, ok := m.invoices[arg.ID]
	if !ok {
		return nil
	}
	inv.Status = arg.Status
	inv.UpdatedAt = m.now()
	m.invoices[inv.ID] = inv
	return nil
}

func (m *MemStore) ListDistinctInvoiceUsers(context.Context) ([]pgtype.UUID, error) {
	if err := m.enter("ListDistinctInvoiceUsers"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	seen := map[pgtype.UUID]bool{}
	var out []pgtype.UUID
	for _, inv := range m.invoices {
		if !seen[inv.UserID] {
			seen[inv.UserID] = true
			out = append(out, inv.UserID)
		}
	}
	return out, nil
}

// Items

func (m *MemStore) CreateInvoiceItem(_ context.Context, arg db.CreateInvoiceItemParams) (db.InvoiceItem, error) {
	if err := m.enter("CreateInvoiceItem"); err != nil {
		return db.InvoiceItem{}, err
	}
	defer m.mu.Unlock()
	if _, ok := m.invoices[arg.InvoiceID]; !ok {
		return db.InvoiceItem{}, pgErr("23503", "insert on table \"invoice_items\" violates foreign key constraint")
	}
	it := db.InvoiceItem{ID: newID(), InvoiceID: arg.InvoiceID, Position: arg.Position, Description: arg.Description,
		Quantity: arg.Quantity, UnitPrice: arg.UnitPrice, Discount: arg.Discount, TaxRate: arg.TaxRate}
	m.items[arg.InvoiceID] = append(m.items[arg.InvoiceID], it)
	return it, nil
}

func (m *MemStore) DeleteInvoiceItems(_ context.Context, invoiceID pgtype.UUID) error {
	if err := m.enter("DeleteInvoiceItems"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	delete(m.items, invoiceID)
	return nil
}

func (m *MemStore) ListInvoiceItems(_ context.Context, invoiceID pgtype.UUID) ([]db.InvoiceItem, error) {
	if err := m.enter("ListInvoiceItems"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	out := append([]db.InvoiceItem(nil), m.items[invoiceID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// Payments

func (m *MemStore) CreatePayment(_ context.Context, arg db.CreatePaymentParams) (db.Payment, error) {
	if err := m.enter("CreatePayment"); err != nil {
		return db.Payment{}, err
	}
	defer m.mu.Unlock()
	if _, ok := m.invoices[arg.InvoiceID]; !ok {
		return db.Payment{}, pgErr("23503", "insert on table \"payments\" violates foreign key constraint")
	}
	if !arg.Amount.IsPositive() {
		return db.Payment{}, pgErr("23514", "new row for relation \"payments\" violates check constraint \"payments_amount_check\"")
	}
	p := db.Payment{ID: newID(), InvoiceID: arg.InvoiceID, UserID: arg.UserID, PaymentDate: arg.PaymentDate,
		Amount: arg.Amount, Mode: arg.Mode, Notes: arg.Notes, CreatedAt: m.now()}
	m.payments = append(m.payments, p)
	return p, nil
}

func (m *MemStore) paymentsWhere(keep func(db.Payment) bool) []db.Payment {
	var out []db.Payment
	for _, p := range m.payments {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PaymentDate.Time.Equal(out[j].PaymentDate.Time) {
			return out[i].PaymentDate.Time.Before(out[j].PaymentDate.Time)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *MemStore) ListPaymentsByInvoice(_ context.Context, invoiceID pgtype.UUID) ([]db.Payment, error) {
	if err := m.enter("ListPaymentsByInvoice"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	return m.paymentsWhere(func(p db.Payment) bool { return p.InvoiceID == invoiceID }), nil
}

func (m *MemStore) ListPaymentsByInvoices(_ context.Context, invoiceIDs []pgtype.UUID) ([]db.Payment, error) {
	if err := m.enter("ListPaymentsByInvoices"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	wanted := make(map[pgtype.UUID]bool, len(invoiceIDs))
	for _, id := range invoiceIDs {
		wanted[id] = true
	}
	return m.paymentsWhere(func(p db.Payment) bool { return wanted[p.InvoiceID] }), nil
}

func (m *MemStore) filteredPayments(userID pgtype.UUID, mode string, date pgtype.Date) []db.PaymentRow {
	ps := m.paymentsWhere(func(p db.Payment) bool {
		return p.UserID == userID && (mode == "" || p.Mode == mode) && (!date.Valid || p.PaymentDate.Time.Equal(date.Time))
	})
	out := make([]db.PaymentRow, 0, len(ps))
	for i := len(ps) - 1; i >= 0; i-- {
		inv := m.invoices[ps[i].InvoiceID]
		out = append(out, db.PaymentRow{Payment: ps[i], InvoiceNumber: inv.InvoiceNumber, ClientName: m.clients[inv.ClientID].Name})
	}
	return out
}

func (m *MemStore) ListPayments(_ context.Context, arg db.ListPaymentsParams) ([]db.PaymentRow, error) {
	if err := m.enter("ListPayments"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	return page(m.filteredPayments(arg.UserID, arg.Mode, arg.Date), arg.Limit, arg.Offset), nil
}

func (m *MemStore) CountPayments(_ context.Context, arg db.CountPaymentsParams) (int64, error) {
	if err := m.enter("CountPayments"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	return int64(len(m.filteredPayments(arg.UserID, arg.Mode, arg.Date))), nil
}

// Reports

func (m *MemStore) DashboardSummary(_ context.Context, userID pgtype.UUID) (db.DashboardSummaryRow, error) {
	if err := m.enter("DashboardSummary"); err != nil {
		return db.DashboardSummaryRow{}, err
	}
	defer m.mu.Unlock()
	var r db.DashboardSummaryRow
	for _, inv := range m.invoices {
		if inv.UserID != userID {
			continue
		}
		r.TotalInvoices++
		paid := m.paidFor(inv.ID)
		switch inv.Status {
		case db.InvoiceStatusPaid:
			r.PaidInvoices++
		case db.InvoiceStatusUnpaid:
			r.UnpaidInvoices++
			if due := inv.TotalAmount.Sub(paid); due.IsPositive() {
				r.UnpaidAmount = r.UnpaidAmount.Add(due)
			}
		case db.InvoiceStatusCancelled:
			r.CancelledInvoices++
			continue
		}
		r.BilledAmount = r.BilledAmount.Add(inv.TotalAmount)
		r.CollectedAmount = r.CollectedAmount.Add(paid)
	}
	return r, nil
}

// Profiles

func (m *MemStore) GetBusinessProfile(_ context.Context, userID pgtype.UUID) (db.BusinessProfile, error) {
	if err := m.enter("GetBusinessProfile"); err != nil {
		return db.BusinessProfile{}, err
	}
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return db.BusinessProfile{}, pgx.ErrNoRows
	}
	return p, nil
}

func (m *MemStore) UpsertBusinessProfile(_ context.Context, arg db.UpsertBusinessProfileParams) (db.BusinessProfile, error) {
	if err := m.enter("UpsertBusinessProfile"); err != nil {
		return db.BusinessProfile{}, err
	}
	defer m.mu.Unlock()
	p := db.BusinessProfile{UserID: arg.UserID, BusinessName: arg.BusinessName, Email: arg.Email, Phone: arg.Phone,
		Address: arg.Address, Gst: arg.Gst, UpdatedAt: m.now()}
	m.profiles[arg.UserID] = p
	return p, nil
}

func page[T any](rows []T, limit, offset int32) []T {
	start := min(int(max(offset, 0)), len(rows))
	end := len(rows)
	if limit > 0 {
		end = min(start+int(limit), len(rows))
	}
	return rows[start:end]
}
