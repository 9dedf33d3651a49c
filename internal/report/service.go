// Package report builds the dashboard summary and the dues report from
// stored invoices and payments.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-invoice/internal/common"
	"github.com/noah-isme/backend-invoice/internal/db"
	"github.com/noah-isme/backend-invoice/internal/invoice"
	"github.com/noah-isme/backend-invoice/internal/obs"
	"github.com/noah-isme/backend-invoice/internal/totals"
)

// Refresher schedules an asynchronous dashboard recomputation.
type Refresher interface {
	EnqueueDashboardRefresh(ctx context.Context, userID string) error
}

// Dashboard summarises a user's invoices. Billed and collected amounts
// leave cancelled invoices out.
type Dashboard struct {
	TotalInvoices     int64
	PaidInvoices      int64
	UnpaidInvoices    int64
	CancelledInvoices int64
	BilledAmount      decimal.Decimal
	CollectedAmount   decimal.Decimal
	UnpaidAmount      decimal.Decimal
	GeneratedAt       time.Time
}

// MarshalJSON writes counts, exact amounts and their display text.
func (d Dashboard) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"total_invoices":     d.TotalInvoices,
		"paid_invoices":      d.PaidInvoices,
		"unpaid_invoices":    d.UnpaidInvoices,
		"cancelled_invoices": d.CancelledInvoices,
		"billed_amount":      totals.Amount(d.BilledAmount),
		"collected_amount":   totals.Amount(d.CollectedAmount),
		"unpaid_amount":      totals.Amount(d.UnpaidAmount),
		"display": map[string]string{
			"billed_amount":    totals.Format(d.BilledAmount),
			"collected_amount": totals.Format(d.CollectedAmount),
			"unpaid_amount":    totals.Format(d.UnpaidAmount),
		},
		"generated_at": d.GeneratedAt,
	})
}

// cachedDashboard is the Redis representation of a Dashboard.
type cachedDashboard struct {
	Total       int64           `json:"total"`
	Paid        int64           `json:"paid"`
	Unpaid      int64           `json:"unpaid"`
	Cancelled   int64           `json:"cancelled"`
	Billed      decimal.Decimal `json:"billed"`
	Collected   decimal.Decimal `json:"collected"`
	UnpaidDue   decimal.Decimal `json:"unpaid_due"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// Dues lists the invoices that are still part of the receivables picture
// and the sum of what remains due on them.
type Dues struct {
	Invoices []invoice.Invoice
	TotalDue decimal.Decimal
}

// MarshalJSON writes the invoices with the total due as number and text.
func (d Dues) MarshalJSON() ([]byte, error) {
	invoices := d.Invoices
	if invoices == nil {
		invoices = []invoice.Invoice{}
	}
	return json.Marshal(map[string]any{
		"invoices":          invoices,
		"total_due":         totals.Amount(d.TotalDue),
		"total_due_display": totals.Format(d.TotalDue),
	})
}

// Service serves reports with a Redis cache in front of the dashboard query.
type Service struct {
	store     db.Store
	cache     *Cache
	refresher Refresher
	now       func() time.Time
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store db.Store
	Redis redis.UniversalClient
	// TTL bounds how long a cached dashboard is served. Zero disables caching.
	TTL       time.Duration
	Refresher Refresher
	Now       func() time.Time
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		store:     cfg.Store,
		cache:     NewCache(cfg.Redis, cfg.TTL),
		refresher: cfg.Refresher,
		now:       cfg.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// SetRefresher wires the refresher after construction, for callers whose
// refresher depends on the service itself.
func (s *Service) SetRefresher(r Refresher) {
	s.refresher = r
}

// dashboardKey uses the canonical UUID text so every spelling of a subject
// shares one entry.
func dashboardKey(owner pgtype.UUID) string {
	return "dash:" + db.UUIDString(owner)
}

// Dashboard returns the user's summary, from cache when possible. A cache
// that cannot be read or written never fails the request.
func (s *Service) Dashboard(ctx context.Context, userID string) (Dashboard, error) {
	owner, err := common.UserUUID(userID)
	if err != nil {
		return Dashboard{}, err
	}
	var cached cachedDashboard
	hit, err := s.cache.GetJSON(ctx, dashboardKey(owner), &cached)
	switch {
	case err != nil:
		obs.RecordDashboardCache("error")
	case hit:
		obs.RecordDashboardCache("hit")
		return fromCache(cached), nil
	default:
		obs.RecordDashboardCache("miss")
	}
	return s.compute(ctx, owner)
}

// RefreshDashboard recomputes the summary and stores it in the cache.
func (s *Service) RefreshDashboard(ctx context.Context, userID string) (Dashboard, error) {
	owner, err := common.UserUUID(userID)
	if err != nil {
		return Dashboard{}, err
	}
	return s.compute(ctx, owner)
}

// RefreshAll recomputes the dashboard of every user that has invoices and
// returns how many were refreshed.
func (s *Service) RefreshAll(ctx context.Context) (int, error) {
	users, err := s.store.ListDistinctInvoiceUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list invoice users: %w", err)
	}
	n := 0
	for _, user := range users {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, err := s.compute(ctx, user); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Invalidate drops the cached dashboard of userID.
func (s *Service) Invalidate(ctx context.Context, userID string) error {
	owner, err := common.UserUUID(userID)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, dashboardKey(owner))
}

// InvoicesChanged invalidates the cached dashboard and schedules a refresh.
// Both steps are best effort; the next read recomputes on a miss.
func (s *Service) InvoicesChanged(ctx context.Context, userID string) {
	if err := s.Invalidate(ctx, userID); err != nil {
		obs.RecordDashboardCache("invalidate_error")
	}
	if s.refresher != nil {
		_ = s.refresher.EnqueueDashboardRefresh(ctx, userID)
	}
}

func (s *Service) compute(ctx context.Context, owner pgtype.UUID) (Dashboard, error) {
	row, err := s.store.DashboardSummary(ctx, owner)
	if err != nil {
		return Dashboard{}, fmt.Errorf("dashboard summary: %w", err)
	}
	d := Dashboard{
		TotalInvoices:     row.TotalInvoices,
		PaidInvoices:      row.PaidInvoices,
		UnpaidInvoices:    row.UnpaidInvoices,
		CancelledInvoices: row.CancelledInvoices,
		BilledAmount:      row.BilledAmount,
		CollectedAmount:   row.CollectedAmount,
		UnpaidAmount:      row.UnpaidAmount,
		GeneratedAt:       s.now().UTC(),
	}
	if err := s.cache.SetJSON(ctx, dashboardKey(owner), toCache(d)); err != nil {
		obs.RecordDashboardCache("store_error")
	}
	return d, nil
}

func toCache(d Dashboard) cachedDashboard {
	return cachedDashboard{
		Total: d.TotalInvoices, Paid: d.PaidInvoices, Unpaid: d.UnpaidInvoices, Cancelled: d.CancelledInvoices,
		Billed: d.BilledAmount, Collected: d.CollectedAmount, UnpaidDue: d.UnpaidAmount, GeneratedAt: d.GeneratedAt,
	}
}

func fromCache(c cachedDashboard) Dashboard {
	return Dashboard{
		TotalInvoices: c.Total, PaidInvoices: c.Paid, UnpaidInvoices: c.Unpaid, CancelledInvoices: c.Cancelled,
		BilledAmount: c.Billed, CollectedAmount: c.Collected, UnpaidAmount: c.UnpaidDue, GeneratedAt: c.GeneratedAt,
	}
}

// Dues returns every invoice that is not cancelled, optionally only the
// paid or unpaid ones, with its payments and the summed due.
func (s *Service) Dues(ctx context.Context, userID, status string) (Dues, error) {
	owner, err := common.UserUUID(userID)
	if err != nil {
		return Dues{}, err
	}
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", db.InvoiceStatusPaid, db.InvoiceStatusUnpaid:
	default:
		return Dues{}, common.ErrValidation("unknown status filter").
			WithDetails(map[string]string{"status": "oneof=paid unpaid"})
	}
	rows, err := s.store.ListDueInvoices(ctx, db.ListDueInvoicesParams{UserID: owner, Status: status})
	if err != nil {
		return Dues{}, fmt.Errorf("list due invoices: %w", err)
	}
	ids := make([]pgtype.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	payments, err := s.store.ListPaymentsByInvoices(ctx, ids)
	if err != nil {
		return Dues{}, fmt.Errorf("list payments: %w", err)
	}
	byInvoice := make(map[pgtype.UUID][]invoice.PaymentEntry, len(rows))
	for _, p := range payments {
		byInvoice[p.InvoiceID] = append(byInvoice[p.InvoiceID], invoice.PaymentFromRow(p))
	}

	out := Dues{Invoices: make([]invoice.Invoice, 0, len(rows))}
	for _, row := range rows {
		inv := invoice.FromRow(row)
		inv.Payments = byInvoice[row.ID]
		if inv.Payments == nil {
			inv.Payments = []invoice.PaymentEntry{}
		}
		out.Invoices = append(out.Invoices, inv)
		out.TotalDue = out.TotalDue.Add(inv.Balance.Due)
	}
	return out, nil
}
