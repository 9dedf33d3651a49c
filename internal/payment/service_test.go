package payment_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-invoice/internal/common"
	"github.com/noah-isme/backend-invoice/internal/db"
	"github.com/noah-isme/backend-invoice/internal/db/dbtest"
	"github.com/noah-isme/backend-invoice/internal/invoice"
	"github.com/noah-isme/backend-invoice/internal/payment"
	"github.com/noah-isme/backend-invoice/internal/totals"
)

const userID = "7d4f3f7e-2f55-4c55-9a0c-6a4a3b4f2a11"

type countingNotifier struct {
	mu    sync.Mutex
	count int
}

func (n *countingNotifier) InvoicesChanged(context.Context, string) {
	n.mu.Lock()
	n.count++
	n.mu.Unlock()
}

type fixture struct {
	store    *dbtest.MemStore
	invoices *invoice.Service
	svc      *payment.Service
	notifier *countingNotifier
	clientID string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := dbtest.New()
	owner, err := db.ParseUUID(userID)
	require.NoError(t, err)
	c, err := store.CreateClient(context.Background(), db.CreateClientParams{UserID: owner, Name: "Globex"})
	require.NoError(t, err)
	notifier := &countingNotifier{}
	return fixture{
		store:    store,
		invoices: invoice.NewService(invoice.ServiceConfig{Store: store, Now: func() time.Time { return time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC) }}),
		svc:      payment.NewService(payment.ServiceConfig{Store: store, Notifier: notifier}),
		notifier: notifier,
		clientID: db.UUIDString(c.ID),
	}
}

// newInvoice creates an invoice whose grand total is 262.40.
func (f fixture) newInvoice(t *testing.T) invoice.Invoice {
	t.Helper()
	inv, err := f.invoices.Create(context.Background(), userID, invoice.Input{
		ClientID:    f.clientID,
		InvoiceDate: "2026-10-18",
		DueDate:     "2026-11-17",
		Items: []totals.LineItem{
			{Description: "Design", Quantity: totals.Text("2"), UnitPrice: totals.Text("100"), Discount: totals.Text("10"), TaxRate: totals.Text("18")},
			{Description: "Hosting", Quantity: totals.Text("1"), UnitPrice: totals.Text("50")},
		},
	})
	require.NoError(t, err)
	return inv
}

func requireAppError(t *testing.T, err error, status int, code string) *common.AppError {
	t.Helper()
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, status, appErr.HTTPStatus)
	require.Equal(t, code, appErr.Code)
	return appErr
}

func TestRecordPartialThenFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.newInvoice(t)

	first, err := f.svc.Record(ctx, userID, inv.ID, payment.Input{PaymentDate: "2026-10-20", Amount: totals.Number(100)})
	require.NoError(t, err)
	require.Equal(t, payment.DefaultMode, first.Mode)
	require.Equal(t, "100.00", first.AmountDisplay)
	require.Equal(t, inv.InvoiceNumber, first.InvoiceNumber)
	require.Equal(t, "Globex", first.ClientName)

	got, err := f.invoices.Get(ctx, userID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, db.InvoiceStatusUnpaid, got.Status)
	require.True(t, got.Balance.Due.Equal(decimal.RequireFromString("162.4")))

	_, err = f.svc.Record(ctx, userID, inv.ID, payment.Input{PaymentDate: "2026-10-21", Amount: totals.Text("162.40"), Mode: " bank transfer ", Notes: " final "})
	require.NoError(t, err)

	got, err = f.invoices.Get(ctx, userID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, db.InvoiceStatusPaid, got.Status)
	require.True(t, got.Balance.Due.IsZero())
	require.Len(t, got.Payments, 2)
	require.Equal(t, "BANK_TRANSFER", got.Payments[1].Mode)
	require.Equal(t, "final", got.Payments[1].Notes)
	require.Equal(t, 2, f.notifier.count)

	_, err = f.svc.Record(ctx, userID, inv.ID, payment.Input{PaymentDate: "2026-10-22", Amount: totals.Text("0.01")})
	appErr := requireAppError(t, err, http.StatusUnprocessableEntity, "AMOUNT_EXCEEDS_DUE")
	require.Equal(t, "0.00", appErr.Details.(map[string]string)["due"])
}

func TestRecordRejectsOverpayment(t *testing.T) {
	f := newFixture(t)
	inv := f.newInvoice(t)

	_, err := f.svc.Record(context.Background(), userID, inv.ID, payment.Input{PaymentDate: "2026-10-20", Amount: totals.Text("262.41")})
	appErr := requireAppError(t, err, http.StatusUnprocessableEntity, "AMOUNT_EXCEEDS_DUE")
	require.Equal(t, map[string]string{"due": "262.40", "amount": "262.41"}, appErr.Details)
	require.Zero(t, f.store.Calls["CreatePayment"])
	require.Zero(t, f.notifier.count)
}

func TestRecordValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.newInvoice(t)

	for _, amount := range []totals.Field{"", totals.Text("0"), totals.Text("-5"), totals.Text("abc")} {
		_, err := f.svc.Record(ctx, userID, inv.ID, payment.Input{PaymentDate: "2026-10-20", Amount: amount})
		requireAppError(t, err, http.StatusUnprocessableEntity, "INVALID_AMOUNT")
	}

	_, err := f.svc.Record(ctx, userID, inv.ID, payment.Input{Amount: totals.Text("10")})
	appErr := requireAppError(t, err, http.StatusBadRequest, "VALIDATION_ERROR")
	require.Equal(t, "required", appErr.Details.(map[string]string)["payment_date"])

	_, err = f.svc.Record(ctx, userID, uuid.NewString(), payment.Input{PaymentDate: "2026-10-20", Amount: totals.Text("10")})
	requireAppError(t, err, http.StatusNotFound, "NOT_FOUND")

	_, err = f.svc.Record(ctx, uuid.NewString(), inv.ID, payment.Input{PaymentDate: "2026-10-20", Amount: totals.Text("10")})
	requireAppError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestRecordRejectsCancelledInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.newInvoice(t)
	_, err := f.invoices.Cancel(ctx, userID, inv.ID)
	require.NoError(t, err)

	_, err = f.svc.Record(ctx, userID, inv.ID, payment.Input{PaymentDate: "2026-10-20", Amount: totals.Text("10")})
	requireAppError(t, err, http.StatusConflict, "INVOICE_CANCELLED")
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.newInvoice(t)
	b := f.newInvoice(t)

	record := func(invoiceID, date, amount, mode string) {
		_, err := f.svc.Record(ctx, userID, invoiceID, payment.Input{PaymentDate: date, Amount: totals.Text(amount), Mode: mode})
		require.NoError(t, err)
	}
	record(a.ID, "2026-10-19", "10", "cash")
	record(a.ID, "2026-10-20", "20", "")
	record(b.ID, "2026-10-20", "30", "UPI")

	all, err := f.svc.List(ctx, userID, payment.ListParams{})
	require.NoError(t, err)
	require.EqualValues(t, 3, all.Total)
	require.Equal(t, "2026-10-20", all.Items[0].PaymentDate)
	require.Equal(t, "2026-10-19", all.Items[2].PaymentDate)

	upi, err := f.svc.List(ctx, userID, payment.ListParams{Mode: "upi"})
	require.NoError(t, err)
	require.EqualValues(t, 2, upi.Total)

	day, err := f.svc.List(ctx, userID, payment.ListParams{Date: "2026-10-19"})
	require.NoError(t, err)
	require.Len(t, day.Items, 1)
	require.Equal(t, "CASH", day.Items[0].Mode)
	require.Equal(t, a.InvoiceNumber, day.Items[0].InvoiceNumber)

	paged, err := f.svc.List(ctx, userID, payment.ListParams{Page: 2, PerPage: 2})
	require.NoError(t, err)
	require.Len(t, paged.Items, 1)
	require.EqualValues(t, 3, paged.Total)

	_, err = f.svc.List(ctx, userID, payment.ListParams{Date: "20/10/2026"})
	requireAppError(t, err, http.StatusBadRequest, "VALIDATION_ERROR")

	forA, err := f.svc.ListForInvoice(ctx, userID, a.ID)
	require.NoError(t, err)
	require.Len(t, forA, 2)
	require.Equal(t, "2026-10-19", forA[0].PaymentDate)

	_, err = f.svc.ListForInvoice(ctx, uuid.NewString(), a.ID)
	requireAppError(t, err, http.StatusNotFound, "NOT_FOUND")
}
