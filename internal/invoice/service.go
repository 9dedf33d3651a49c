// Package invoice stores invoices whose totals are always recomputed on the
// server from their line items.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-invoice/internal/common"
	"github.com/noah-isme/backend-invoice/internal/db"
	"github.com/noah-isme/backend-invoice/internal/lock"
	"github.com/noah-isme/backend-invoice/internal/obs"
	"github.com/noah-isme/backend-invoice/internal/totals"
)

// Locker serialises invoice number allocation.
type Locker interface {
	WithLock(ctx context.Context, name string, ttl time.Duration, fn func(context.Context) error) error
}

// ChangeNotifier is told when a user's invoices or payments changed so
// derived views can be refreshed.
type ChangeNotifier interface {
	InvoicesChanged(ctx context.Context, userID string)
}

// Input is the writable part of an invoice.
type Input struct {
	ClientID      string            `json:"client_id" validate:"required,uuid"`
	InvoiceNumber string            `json:"invoice_number" validate:"max=64"`
	InvoiceDate   string            `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	DueDate       string            `json:"due_date" validate:"required,datetime=2006-01-02"`
	Items         []totals.LineItem `json:"items" validate:"required,min=1,max=500"`
	// Total is the grand total the caller computed. When present it must
	// match the server computation at display precision.
	Total totals.Field `json:"total"`
}

// Quote is the result of computing totals without persisting anything.
type Quote struct {
	Currency string        `json:"currency"`
	Totals   totals.Totals `json:"totals"`
	Lines    []totals.Line `json:"lines"`
}

// ListParams filters the invoice list.
type ListParams struct {
	Status  string
	Page    int
	PerPage int
}

// ListResult is one page of invoices.
type ListResult struct {
	Items   []Invoice
	Total   int64
	Page    int
	PerPage int
}

// Service implements invoice operations for one user at a time.
type Service struct {
	store    db.Store
	locker   Locker
	notifier ChangeNotifier
	prefix   string
	currency string
	lockTTL  time.Duration
	now      func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store    db.Store
	Locker   Locker
	Notifier ChangeNotifier
	// NumberPrefix starts generated invoice numbers. Defaults to INV.
	NumberPrefix string
	Currency     string
	LockTTL      time.Duration
	Now          func() time.Time
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		store:    cfg.Store,
		locker:   cfg.Locker,
		notifier: cfg.Notifier,
		prefix:   strings.TrimSpace(cfg.NumberPrefix),
		currency: strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		lockTTL:  cfg.LockTTL,
		now:      cfg.Now,
	}
	if s.prefix == "" {
		s.prefix = "INV"
	}
	if s.currency == "" {
		s.currency = "INR"
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 10 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Quote computes totals and the per line breakdown for items.
func (s *Service) Quote(ctx context.Context, items []totals.LineItem) Quote {
	lines := make([]totals.Line, 0, len(items))
	for _, item := range items {
		lines = append(lines, totals.ComputeLine(item))
	}
	obs.RecordQuote()
	obs.RecordLineItems(ctx, "quote", len(items))
	return Quote{Currency: s.currency, Totals: totals.Compute(items), Lines: lines}
}

type prepared struct {
	owner       pgtype.UUID
	clientID    pgtype.UUID
	invoiceDate pgtype.Date
	dueDate     pgtype.Date
	totals      totals.Totals
}

// prepare validates in and computes its totals.
func (s *Service) prepare(userID string, in *Input) (prepared, error) {
	owner, err := common.UserUUID(userID)
	if err != nil {
		return prepared{}, err
	}
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.InvoiceNumber = strings.TrimSpace(in.InvoiceNumber)
	in.InvoiceDate = strings.TrimSpace(in.InvoiceDate)
	in.DueDate = strings.TrimSpace(in.DueDate)
	if err := common.ValidateStruct(in); err != nil {
		return prepared{}, err
	}
	details := map[string]string{}
	for i, item := range in.Items {
		if item.Description == "" {
			details["items["+strconv.Itoa(i)+"].description"] = "required"
		}
	}
	if len(details) > 0 {
		return prepared{}, common.ErrValidation("request validation failed").WithDetails(details)
	}

	p := prepared{owner: owner}
	p.clientID, _ = db.ParseUUID(in.ClientID)
	p.invoiceDate, _ = db.ParseDate(in.InvoiceDate)
	p.dueDate, _ = db.ParseDate(in.DueDate)
	if p.dueDate.Time.Before(p.invoiceDate.Time) {
		return prepared{}, common.ErrValidation("due date is before invoice date").
			WithDetails(map[string]string{"due_date": "gtefield=invoice_date"})
	}

	p.totals = totals.Compute(in.Items)
	if !in.Total.IsEmpty() {
		claimed := in.Total.Decimal().Round(totals.DisplayPlaces)
		if !claimed.Equal(p.totals.GrandTotal.Round(totals.DisplayPlaces)) {
			return prepared{}, common.NewAppError("TOTAL_MISMATCH", "total does not match the line items", http.StatusUnprocessableEntity, nil).
				WithDetails(map[string]string{"expected": totals.Format(p.totals.GrandTotal), "received": totals.Format(claimed)})
		}
	}
	return p, nil
}

// Create stores a new unpaid invoice. The invoice number is generated when
// the input leaves it empty.
func (s *Service) Create(ctx context.Context, userID string, in Input) (Invoice, error) {
	p, err := s.prepare(userID, &in)
	if err != nil {
		return Invoice{}, err
	}

	var created db.Invoice
	write := func(ctx context.Context) error {
		return s.store.WithinTx(ctx, func(q db.Querier) error {
			if err := ensureClient(ctx, q, p.owner, p.clientID); err != nil {
				return err
			}
			number := in.InvoiceNumber
			if number == "" {
				var err error
				if number, err = s.nextNumber(ctx, q, p.owner); err != nil {
					return err
				}
			}
			inv, err := q.CreateInvoice(ctx, db.CreateInvoiceParams{
				UserID:        p.owner,
				ClientID:      p.clientID,
				InvoiceNumber: number,
				InvoiceDate:   p.invoiceDate,
				DueDate:       p.dueDate,
				Status:        db.InvoiceStatusUnpaid,
				Currency:      s.currency,
				Subtotal:      p.totals.Subtotal,
				TotalDiscount: p.totals.TotalDiscount,
				TotalTax:      p.totals.TotalTax,
				TotalAmount:   p.totals.GrandTotal,
			})
			if err != nil {
				return writeError(err, number)
			}
			if err := insertItems(ctx, q, inv.ID, in.Items); err != nil {
				return err
			}
			created = inv
			return nil
		})
	}
	if in.InvoiceNumber == "" && s.locker != nil {
		err = s.locker.WithLock(ctx, "invoice-number:"+db.UUIDString(p.owner), s.lockTTL, write)
		if errors.Is(err, lock.ErrNotAcquired) {
			err = common.NewAppError("NUMBER_ALLOCATION_BUSY", "invoice numbering is busy, retry shortly", http.StatusServiceUnavailable, err)
		}
	} else {
		err = write(ctx)
	}
	if err != nil {
		return Invoice{}, err
	}

	obs.RecordInvoice("created")
	obs.RecordLineItems(ctx, "create", len(in.Items))
	s.changed(ctx, userID)
	return s.Get(ctx, userID, db.UUIDString(created.ID))
}

// Update replaces the header and items of an invoice that is not cancelled.
// The status is re-derived from existing payments against the new total.
func (s *Service) Update(ctx context.Context, userID, invoiceID string, in Input) (Invoice, error) {
	id, err := common.ResourceUUID(invoiceID, "invoice")
	if err != nil {
		return Invoice{}, err
	}
	p, err := s.prepare(userID, &in)
	if err != nil {
		return Invoice{}, err
	}
	err = s.store.WithinTx(ctx, func(q db.Querier) error {
		current, err := q.GetInvoiceForUpdate(ctx, db.GetInvoiceParams{ID: id, UserID: p.owner})
		if err != nil {
			return notFoundOr(err, "load invoice")
		}
		if current.Status == db.InvoiceStatusCancelled {
			return ErrCancelled()
		}
		if err := ensureClient(ctx, q, p.owner, p.clientID); err != nil {
			return err
		}
		number := in.InvoiceNumber
		if number == "" {
			number = current.InvoiceNumber
		}
		if _, err := q.UpdateInvoice(ctx, db.UpdateInvoiceParams{
			ID:            id,
			UserID:        p.owner,
			ClientID:      p.clientID,
			InvoiceNumber: number,
			InvoiceDate:   p.invoiceDate,
			DueDate:       p.dueDate,
			Status:        DeriveStatus(current.Status, p.totals.GrandTotal, current.TotalPaid),
			Subtotal:      p.totals.Subtotal,
			TotalDiscount: p.totals.TotalDiscount,
			TotalTax:      p.totals.TotalTax,
			TotalAmount:   p.totals.GrandTotal,
		}); err != nil {
			return writeError(err, number)
		}
		if err := q.DeleteInvoiceItems(ctx, id); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		return insertItems(ctx, q, id, in.Items)
	})
	if err != nil {
		return Invoice{}, err
	}
	obs.RecordInvoice("updated")
	obs.RecordLineItems(ctx, "update", len(in.Items))
	s.changed(ctx, userID)
	return s.Get(ctx, userID, invoiceID)
}

// Get returns an invoice with its items and payments.
func (s *Service) Get(ctx context.Context, userID, invoiceID string) (Invoice, error) {
	owner, err := common.UserUUID(userID)
	if err != nil {
		return Invoice{}, err
	}
	id, err := common.ResourceUUID(invoiceID, "invoice")
	if err != nil {
		return Invoice{}, err
	}
	row, err := s.store.GetInvoice(ctx, db.GetInvoiceParams{ID: id, UserID: owner})
	if err != nil {
		return Invoice{}, notFoundOr(err, "get invoice")
	}
	items, err := s.store.ListInvoiceItems(ctx, id)
	if err != nil {
		return Invoice{}, fmt.Errorf("list items: %w", err)
	}
	payments, err := s.store.ListPaymentsByInvoice(ctx, id)
	if err != nil {
		return Invoice{}, fmt.Errorf("list payments: %w", err)
	}
	inv := FromRow(row)
	inv.Items = make([]Item, 0, len(items))
	for _, it := range items {
		inv.Items = append(inv.Items, ItemFromRow(it))
	}
	inv.Payments = make([]PaymentEntry, 0, len(payments))
	for _, pay := range payments {
		inv.Payments = append(inv.Payments, PaymentFromRow(pay))
	}
	return inv, nil
}

// List returns a page of invoices, newest invoice date first.
func (s *Service) List(ctx context.Context, userID string, params ListParams) (ListResult, error) {
	owner, err := common.UserUUID(userID)
	if err != nil {
		return ListResult{}, err
	}
	status := strings.ToLower(strings.TrimSpace(params.Status))
	switch status {
	case "", db.InvoiceStatusUnpaid, db.InvoiceStatusPaid, db.InvoiceStatusCancelled:
	default:
		return ListResult{}, common.ErrValidation("unknown status filter").
			WithDetails(map[string]string{"status": "oneof=unpaid paid cancelled"})
	}
	limit, offset := common.Offset(params.Page, params.PerPage)
	rows, err := s.store.ListInvoices(ctx, db.ListInvoicesParams{UserID: owner, Status: status, Limit: limit, Offset: offset})
	if err != nil {
		return ListResult{}, fmt.Errorf("list invoices: %w", err)
	}
	total, err := s.store.CountInvoices(ctx, db.CountInvoicesParams{UserID: owner, Status: status})
	if err != nil {
		return ListResult{}, fmt.Errorf("count invoices: %w", err)
	}
	items := make([]Invoice, 0, len(rows))
	for _, row := range rows {
		items = append(items, FromRow(row))
	}
	return ListResult{Items: items, Total: total, Page: max(params.Page, 1), PerPage: int(limit)}, nil
}

// Cancel marks an invoice cancelled. Cancelling twice is not an error.
func (s *Service) Cancel(ctx context.Context, userID, invoiceID string) (Invoice, error) {
	owner, err := common.UserUUID(userID)
	if err != nil {
		return Invoice{}, err
	}
	id, err := common.ResourceUUID(invoiceID, "invoice")
	if err != nil {
		return Invoice{}, err
	}
	changed := false
	err = s.store.WithinTx(ctx, func(q db.Querier) error {
		current, err := q.GetInvoiceForUpdate(ctx, db.GetInvoiceParams{ID: id, UserID: owner})
		if err != nil {
			return notFoundOr(err, "load invoice")
		}
		if current.Status == db.InvoiceStatusCancelled {
			return nil
		}
		changed = true
		return q.SetInvoiceStatus(ctx, db.SetInvoiceStatusParams{ID: id, Status: db.InvoiceStatusCancelled})
	})
	if err != nil {
		return Invoice{}, err
	}
	if changed {
		obs.RecordInvoice("cancelled")
		s.changed(ctx, userID)
	}
	return s.Get(ctx, userID, invoiceID)
}

// nextNumber allocates <prefix>-<YYYYMMDD>-<user tag>-<seq>, one past the
// highest sequence in use today. Callers hold the per user number lock.
func (s *Service) nextNumber(ctx context.Context, q db.Querier, owner pgtype.UUID) (string, error) {
	stem := fmt.Sprintf("%s-%s-%s-", s.prefix, s.now().Format("20060102"), db.UUIDTag(owner))
	n, err := q.MaxInvoiceNumberSequence(ctx, db.MaxInvoiceNumberSequenceParams{UserID: owner, Prefix: stem})
	if err != nil {
		return "", fmt.Errorf("read invoice number sequence: %w", err)
	}
	return fmt.Sprintf("%s%03d", stem, n+1), nil
}

func (s *Service) changed(ctx context.Context, userID string) {
	if s.notifier != nil {
		s.notifier.InvoicesChanged(ctx, userID)
	}
}

func ensureClient(ctx context.Context, q db.Querier, owner, clientID pgtype.UUID) error {
	if _, err := q.GetClient(ctx, db.GetClientParams{ID: clientID, UserID: owner}); err != nil {
		if db.IsNotFound(err) {
			return common.NewAppError("CLIENT_NOT_FOUND", "client not found", http.StatusUnprocessableEntity, err).
				WithDetails(map[string]string{"client_id": "exists"})
		}
		return fmt.Errorf("load client: %w", err)
	}
	return nil
}

func insertItems(ctx context.Context, q db.Querier, invoiceID pgtype.UUID, items []totals.LineItem) error {
	for i, item := range items {
		if _, err := q.CreateInvoiceItem(ctx, db.CreateInvoiceItemParams{
			InvoiceID:   invoiceID,
			Position:    int32(i + 1),
			Description: item.Description,
			Quantity:    item.Quantity.Decimal(),
			UnitPrice:   item.UnitPrice.Decimal(),
			Discount:    item.Discount.Decimal(),
			TaxRate:     item.TaxRate.Decimal(),
		}); err != nil {
			return fmt.Errorf("insert item %d: %w", i+1, err)
		}
	}
	return nil
}

func writeError(err error, number string) error {
	switch {
	case db.IsUniqueViolation(err):
		return common.NewAppError("INVOICE_NUMBER_TAKEN", "invoice number already exists", http.StatusConflict, err).
			WithDetails(map[string]string{"invoice_number": number})
	case db.IsNotFound(err):
		return common.ErrNotFound("invoice")
	}
	return fmt.Errorf("write invoice: %w", err)
}

func notFoundOr(err error, op string) error {
	if db.IsNotFound(err) {
		return common.ErrNotFound("invoice")
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrCancelled is returned by operations that need an active invoice.
func ErrCancelled() error {
	return common.NewAppError("INVOICE_CANCELLED", "invoice is cancelled", http.StatusConflict, nil)
}
