// Package payment records payments against invoices and keeps invoice
// status in step with what has been paid.
package payment

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-invoice/internal/common"
	"github.com/noah-isme/backend-invoice/internal/db"
	"github.com/noah-isme/backend-invoice/internal/invoice"
	"github.com/noah-isme/backend-invoice/internal/obs"
	"github.com/noah-isme/backend-invoice/internal/totals"
)

// DefaultMode is used when a payment is recorded without a mode.
const DefaultMode = "UPI"

// knownModes bounds the metric label set. Other modes are stored as given.
var knownModes = map[string]bool{
	"UPI": true, "CASH": true, "CARD": true, "BANK_TRANSFER": true, "CHEQUE": true,
}

// Input is a payment as submitted by the caller.
type Input struct {
	PaymentDate string       `json:"payment_date" validate:"required,datetime=2006-01-02"`
	Amount      totals.Field `json:"amount"`
	Mode        string       `json:"mode" validate:"max=32"`
	Notes       string       `json:"notes" validate:"max=1000"`
}

// ListParams filters the payment list.
type ListParams struct {
	Mode    string
	Date    string
	Page    int
	PerPage int
}

// ListResult is one page of payments.
type ListResult struct {
	Items   []invoice.PaymentEntry
	Total   int64
	Page    int
	PerPage int
}

// Service records and lists payments.
type Service struct {
	store    db.Store
	notifier invoice.ChangeNotifier
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store    db.Store
	Notifier invoice.ChangeNotifier
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{store: cfg.Store, notifier: cfg.Notifier}
}

// Record stores a payment against an active invoice. The amount must be
// positive and no larger than what is still due. The invoice status is
// updated in the same transaction.
func (s *Service) Record(ctx context.Context, userID, invoiceID string, in Input) (invoice.PaymentEntry, error) {
	owner, err := common.UserUUID(userID)
	if err != nil {
		return invoice.PaymentEntry{}, err
	}
	id, err := common.ResourceUUID(invoiceID, "invoice")
	if err != nil {
		return invoice.PaymentEntry{}, err
	}
	in.PaymentDate = strings.TrimSpace(in.PaymentDate)
	in.Mode = normalizeMode(in.Mode)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.Mode == "" {
		in.Mode = DefaultMode
	}
	if err := common.ValidateStruct(&in); err != nil {
		return invoice.PaymentEntry{}, err
	}
	amount := in.Amount.Decimal()
	if !amount.IsPositive() {
		return invoice.PaymentEntry{}, common.NewAppError("INVALID_AMOUNT", "amount must be greater than zero", http.StatusUnprocessableEntity, nil).
			WithDetails(map[string]string{"amount": "gt=0"})
	}
	date, _ := db.ParseDate(in.PaymentDate)

	var entry invoice.PaymentEntry
	err = s.store.WithinTx(ctx, func(q db.Querier) error {
		current, err := q.GetInvoiceForUpdate(ctx, db.GetInvoiceParams{ID: id, UserID: owner})
		if err != nil {
			if db.IsNotFound(err) {
				return common.ErrNotFound("invoice")
			}
			return fmt.Errorf("load invoice: %w", err)
		}
		if current.Status == db.InvoiceStatusCancelled {
			return invoice.ErrCancelled()
		}
		due := current.TotalAmount.Sub(current.TotalPaid)
		if amount.GreaterThan(due) {
			return common.NewAppError("AMOUNT_EXCEEDS_DUE", "amount exceeds the outstanding due", http.StatusUnprocessableEntity, nil).
				WithDetails(map[string]string{"due": totals.Format(due), "amount": totals.Format(amount)})
		}
		p, err := q.CreatePayment(ctx, db.CreatePaymentParams{
			InvoiceID:   id,
			UserID:      owner,
			PaymentDate: date,
			Amount:      amount,
			Mode:        in.Mode,
			Notes:       in.Notes,
		})
		if err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		status := invoice.DeriveStatus(current.Status, current.TotalAmount, current.TotalPaid.Add(amount))
		if status != current.Status {
			if err := q.SetInvoiceStatus(ctx, db.SetInvoiceStatusParams{ID: id, Status: status}); err != nil {
				return fmt.Errorf("set invoice status: %w", err)
			}
		}
		entry = invoice.PaymentFromRow(p)
		entry.InvoiceNumber = current.InvoiceNumber
		entry.ClientName = current.ClientName
		return nil
	})
	if err != nil {
		return invoice.PaymentEntry{}, err
	}

	obs.RecordPayment(modeLabel(in.Mode))
	if s.notifier != nil {
		s.notifier.InvoicesChanged(ctx, userID)
	}
	return entry, nil
}

// ListForInvoice returns the payments of one invoice, oldest first.
func (s *Service) ListForInvoice(ctx context.Context, userID, invoiceID string) ([]invoice.PaymentEntry, error) {
	owner, err := common.UserUUID(userID)
	if err != nil {
		return nil, err
	}
	id, err := common.ResourceUUID(invoiceID, "invoice")
	if err != nil {
		return nil, err
	}
	row, err := s.store.GetInvoice(ctx, db.GetInvoiceParams{ID: id, UserID: owner})
	if err != nil {
		if db.IsNotFound(err) {
			return nil, common.ErrNotFound("invoice")
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	payments, err := s.store.ListPaymentsByInvoice(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	out := make([]invoice.PaymentEntry, 0, len(payments))
	for _, p := range payments {
		entry := invoice.PaymentFromRow(p)
		entry.InvoiceNumber = row.InvoiceNumber
		entry.ClientName = row.ClientName
		out = append(out, entry)
	}
	return out, nil
}

// List returns a page of the user's payments, newest first, optionally
// filtered by mode and payment date.
func (s *Service) List(ctx context.Context, userID string, params ListParams) (ListResult, error) {
	owner, err := common.UserUUID(userID)
	if err != nil {
		return ListResult{}, err
	}
	mode := normalizeMode(params.Mode)
	var date pgtype.Date
	if raw := strings.TrimSpace(params.Date); raw != "" {
		parsed, err := db.ParseDate(raw)
		if err != nil {
			return ListResult{}, common.ErrValidation("invalid date filter").
				WithDetails(map[string]string{"date": "datetime=2006-01-02"})
		}
		date = parsed
	}
	limit, offset := common.Offset(params.Page, params.PerPage)
	rows, err := s.store.ListPayments(ctx, db.ListPaymentsParams{UserID: owner, Mode: mode, Date: date, Limit: limit, Offset: offset})
	if err != nil {
		return ListResult{}, fmt.Errorf("list payments: %w", err)
	}
	total, err := s.store.CountPayments(ctx, db.CountPaymentsParams{UserID: owner, Mode: mode, Date: date})
	if err != nil {
		return ListResult{}, fmt.Errorf("count payments: %w", err)
	}
	items := make([]invoice.PaymentEntry, 0, len(rows))
	for _, row := range rows {
		entry := invoice.PaymentFromRow(row.Payment)
		entry.InvoiceNumber = row.InvoiceNumber
		entry.ClientName = row.ClientName
		items = append(items, entry)
	}
	return ListResult{Items: items, Total: total, Page: max(params.Page, 1), PerPage: int(limit)}, nil
}

func normalizeMode(mode string) string {
	return strings.ToUpper(strings.Join(strings.Fields(mode), "_"))
}

func modeLabel(mode string) string {
	if knownModes[mode] {
		return mode
	}
	return "OTHER"
}
