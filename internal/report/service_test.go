package report_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-invoice/internal/common"
	"github.com/noah-isme/backend-invoice/internal/db"
	"github.com/noah-isme/backend-invoice/internal/db/dbtest"
	"github.com/noah-isme/backend-invoice/internal/invoice"
	"github.com/noah-isme/backend-invoice/internal/payment"
	"github.com/noah-isme/backend-invoice/internal/report"
	"github.com/noah-isme/backend-invoice/internal/totals"
)

const userID = "7d4f3f7e-2f55-4c55-9a0c-6a4a3b4f2a11"

type recordingRefresher struct {
	mu    sync.Mutex
	users []string
}

func (r *recordingRefresher) EnqueueDashboardRefresh(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	return nil
}

type fixture struct {
	mr        *miniredis.Miniredis
	store     *dbtest.MemStore
	reports   *report.Service
	invoices  *invoice.Service
	payments  *payment.Service
	refresher *recordingRefresher
	clientID  string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	store := dbtest.New()
	owner, err := db.ParseUUID(userID)
	require.NoError(t, err)
	c, err := store.CreateClient(context.Background(), db.CreateClientParams{UserID: owner, Name: "Initech"})
	require.NoError(t, err)

	refresher := &recordingRefresher{}
	reports := report.NewService(report.ServiceConfig{
		Store:     store,
		Redis:     rdb,
		TTL:       time.Minute,
		Refresher: refresher,
		Now:       func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) },
	})
	return fixture{
		mr:        mr,
		store:     store,
		reports:   reports,
		invoices:  invoice.NewService(invoice.ServiceConfig{Store: store, Notifier: reports}),
		payments:  payment.NewService(payment.ServiceConfig{Store: store, Notifier: reports}),
		refresher: refresher,
		clientID:  db.UUIDString(c.ID),
	}
}

// newInvoice creates an invoice for amount due on dueDate.
func (f fixture) newInvoice(t *testing.T, amount, dueDate string) invoice.Invoice {
	t.Helper()
	inv, err := f.invoices.Create(context.Background(), userID, invoice.Input{
		ClientID:    f.clientID,
		InvoiceDate: "2026-10-01",
		DueDate:     dueDate,
		Items:       []totals.LineItem{{Description: "Work", Quantity: totals.Text("1"), UnitPrice: totals.Text(amount)}},
	})
	require.NoError(t, err)
	return inv
}

func (f fixture) pay(t *testing.T, invoiceID, amount string) {
	t.Helper()
	_, err := f.payments.Record(context.Background(), userID, invoiceID, payment.Input{PaymentDate: "2026-10-10", Amount: totals.Text(amount)})
	require.NoError(t, err)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDashboardAmounts(t *testing.T) {
	f := newFixture(t)
	partly := f.newInvoice(t, "262.40", "2026-11-01")
	cancelled := f.newInvoice(t, "500", "2026-11-02")
	settled := f.newInvoice(t, "262.40", "2026-11-03")
	f.pay(t, partly.ID, "100")
	f.pay(t, settled.ID, "262.40")
	_, err := f.invoices.Cancel(context.Background(), userID, cancelled.ID)
	require.NoError(t, err)

	d, err := f.reports.Dashboard(context.Background(), userID)
	require.NoError(t, err)
	require.EqualValues(t, 3, d.TotalInvoices)
	require.EqualValues(t, 1, d.PaidInvoices)
	require.EqualValues(t, 1, d.UnpaidInvoices)
	require.EqualValues(t, 1, d.CancelledInvoices)
	require.True(t, d.BilledAmount.Equal(dec("524.8")), d.BilledAmount.String())
	require.True(t, d.CollectedAmount.Equal(dec("362.4")), d.CollectedAmount.String())
	require.True(t, d.UnpaidAmount.Equal(dec("162.4")), d.UnpaidAmount.String())
}

func TestDashboardCacheLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.newInvoice(t, "100", "2026-11-01")
	require.Equal(t, []string{userID}, f.refresher.users)

	first, err := f.reports.Dashboard(ctx, userID)
	require.NoError(t, err)
	require.True(t, f.mr.Exists("dash:"+userID))
	require.Equal(t, time.Minute, f.mr.TTL("dash:"+userID))

	second, err := f.reports.Dashboard(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, 1, f.store.Calls["DashboardSummary"])
	require.True(t, first.BilledAmount.Equal(second.BilledAmount))
	require.Equal(t, first.GeneratedAt, second.GeneratedAt)

	f.newInvoice(t, "50", "2026-11-02")
	require.False(t, f.mr.Exists("dash:"+userID))
	require.Len(t, f.refresher.users, 2)

	third, err := f.reports.Dashboard(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, 2, f.store.Calls["DashboardSummary"])
	require.True(t, third.BilledAmount.Equal(dec("150")))
}

func TestDashboardWithoutRedisFallsBack(t *testing.T) {
	f := newFixture(t)
	f.newInvoice(t, "75.5", "2026-11-01")
	f.mr.Close()

	d, err := f.reports.Dashboard(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, d.UnpaidAmount.Equal(dec("75.5")))
}

func TestDashboardCorruptCacheEntry(t *testing.T) {
	f := newFixture(t)
	f.newInvoice(t, "10", "2026-11-01")
	require.NoError(t, f.mr.Set("dash:"+userID, "{not json"))

	d, err := f.reports.Dashboard(context.Background(), userID)
	require.NoError(t, err)
	require.EqualValues(t, 1, d.TotalInvoices)
}

func TestRefreshAll(t *testing.T) {
	f := newFixture(t)
	f.newInvoice(t, "10", "2026-11-01")
	require.False(t, f.mr.Exists("dash:"+userID))

	n, err := f.reports.RefreshAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.True(t, f.mr.Exists("dash:"+userID))

	_, err = f.reports.RefreshDashboard(context.Background(), "nope")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
}

func TestDashboardKeyIgnoresSubjectCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.newInvoice(t, "10", "2026-11-01")
	upper := strings.ToUpper(userID)

	_, err := f.reports.RefreshAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, f.store.Calls["DashboardSummary"])

	d, err := f.reports.Dashboard(ctx, upper)
	require.NoError(t, err)
	require.EqualValues(t, 1, d.TotalInvoices)
	require.Equal(t, 1, f.store.Calls["DashboardSummary"])
	require.False(t, f.mr.Exists("dash:"+upper))

	require.NoError(t, f.reports.Invalidate(ctx, upper))
	require.False(t, f.mr.Exists("dash:"+userID))
}

func TestDues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	late := f.newInvoice(t, "300", "2026-11-05")
	early := f.newInvoice(t, "120.25", "2026-11-01")
	done := f.newInvoice(t, "40", "2026-11-03")
	gone := f.newInvoice(t, "999", "2026-10-30")
	f.pay(t, late.ID, "100")
	f.pay(t, late.ID, "50")
	f.pay(t, done.ID, "40")
	_, err := f.invoices.Cancel(ctx, userID, gone.ID)
	require.NoError(t, err)

	all, err := f.reports.Dues(ctx, userID, "")
	require.NoError(t, err)
	require.Len(t, all.Invoices, 3)
	require.Equal(t, early.ID, all.Invoices[0].ID)
	require.Equal(t, done.ID, all.Invoices[1].ID)
	require.Equal(t, late.ID, all.Invoices[2].ID)
	require.Len(t, all.Invoices[2].Payments, 2)
	require.Empty(t, all.Invoices[0].Payments)
	require.True(t, all.TotalDue.Equal(dec("270.25")), all.TotalDue.String())

	unpaid, err := f.reports.Dues(ctx, userID, "Unpaid")
	require.NoError(t, err)
	require.Len(t, unpaid.Invoices, 2)

	paid, err := f.reports.Dues(ctx, userID, "paid")
	require.NoError(t, err)
	require.Len(t, paid.Invoices, 1)
	require.True(t, paid.TotalDue.IsZero())

	_, err = f.reports.Dues(ctx, userID, "cancelled")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)

	empty, err := f.reports.Dues(ctx, uuid.NewString(), "")
	require.NoError(t, err)
	raw, err := json.Marshal(empty)
	require.NoError(t, err)
	require.JSONEq(t, `{"invoices":[],"total_due":0,"total_due_display":"0.00"}`, string(raw))
}

func TestReportEndpoints(t *testing.T) {
	f := newFixture(t)
	inv := f.newInvoice(t, "262.4", "2026-11-01")
	f.pay(t, inv.ID, "62.4")

	h := report.NewHandler(report.HandlerConfig{Service: f.reports})
	r := chiRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil)
	req = req.WithContext(common.WithUserID(req.Context(), userID))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 200.0, body.Data["unpaid_amount"])
	require.Equal(t, "62.40", body.Data["display"].(map[string]any)["collected_amount"])

	req = httptest.NewRequest(http.MethodGet, "/api/v1/reports/dues?status=unpaid", nil)
	req = req.WithContext(common.WithUserID(req.Context(), userID))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total_due_display":"200.00"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/dashboard", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func chiRouter(h *report.Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", h.Routes)
	return r
}
