package invoice_test

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-invoice/internal/common"
	"github.com/noah-isme/backend-invoice/internal/db"
	"github.com/noah-isme/backend-invoice/internal/db/dbtest"
	"github.com/noah-isme/backend-invoice/internal/invoice"
	"github.com/noah-isme/backend-invoice/internal/lock"
	"github.com/noah-isme/backend-invoice/internal/totals"
)

const userID = "7d4f3f7e-2f55-4c55-9a0c-6a4a3b4f2a11"

var today = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

type countingNotifier struct {
	mu    sync.Mutex
	calls map[string]int
}

func (n *countingNotifier) InvoicesChanged(_ context.Context, userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.calls == nil {
		n.calls = map[string]int{}
	}
	n.calls[userID]++
}

func (n *countingNotifier) count(userID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[userID]
}

type fixture struct {
	redis    *miniredis.Miniredis
	rdb      *redis.Client
	store    *dbtest.MemStore
	svc      *invoice.Service
	notifier *countingNotifier
	clientID string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := dbtest.New()
	owner, err := db.ParseUUID(userID)
	require.NoError(t, err)
	c, err := store.CreateClient(context.Background(), db.CreateClientParams{UserID: owner, Name: "Acme Traders"})
	require.NoError(t, err)

	notifier := &countingNotifier{}
	svc := invoice.NewService(invoice.ServiceConfig{
		Store:    store,
		Locker:   lock.Locker{R: rdb, Prefix: "lock:", RetryBackoff: time.Millisecond},
		Notifier: notifier,
		Currency: "inr",
		Now:      func() time.Time { return today },
	})
	return fixture{redis: mr, rdb: rdb, store: store, svc: svc, notifier: notifier, clientID: db.UUIDString(c.ID)}
}

func (f fixture) input() invoice.Input {
	return invoice.Input{
		ClientID:    f.clientID,
		InvoiceDate: "2026-10-18",
		DueDate:     "2026-11-17",
		Items: []totals.LineItem{
			{Description: "Design", Quantity: totals.Number(2), UnitPrice: totals.Number(100), Discount: totals.Number(10), TaxRate: totals.Number(18)},
			{Description: "Hosting", Quantity: totals.Text("1"), UnitPrice: totals.Text("50"), TaxRate: totals.Text("abc")},
		},
	}
}

func requireAppError(t *testing.T, err error, status int, code string) *common.AppError {
	t.Helper()
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, status, appErr.HTTPStatus)
	require.Equal(t, code, appErr.Code)
	return appErr
}

// busyService shares the fixture store but gives up on the number lock after
// a few milliseconds. The lock is held by someone else for the test duration.
func (f fixture) busyService(t *testing.T) *invoice.Service {
	t.Helper()
	require.NoError(t, f.redis.Set("lock:invoice-number:"+userID, "someone-else"))
	return invoice.NewService(invoice.ServiceConfig{
		Store:  f.store,
		Locker: lock.Locker{R: f.rdb, Prefix: "lock:", RetryBackoff: time.Millisecond, MaxWait: 20 * time.Millisecond},
		Now:    func() time.Time { return today },
	})
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateComputesTotalsAndNumbers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Create(ctx, userID, f.input())
	require.NoError(t, err)
	require.Equal(t, "INV-20261018-7D4F3F-001", inv.InvoiceNumber)
	require.Equal(t, db.InvoiceStatusUnpaid, inv.Status)
	require.Equal(t, "INR", inv.Currency)
	require.Equal(t, "Acme Traders", inv.ClientName)
	require.True(t, inv.Totals.Subtotal.Equal(dec("250")))
	require.True(t, inv.Totals.TotalDiscount.Equal(dec("20")))
	require.True(t, inv.Totals.TotalTax.Equal(dec("32.4")))
	require.True(t, inv.Totals.GrandTotal.Equal(dec("262.4")))
	require.True(t, inv.Balance.Due.Equal(dec("262.4")))
	require.Len(t, inv.Items, 2)
	require.Equal(t, "Design", inv.Items[0].Description)
	require.True(t, inv.Items[0].Breakdown.Total.Equal(dec("212.4")))
	require.True(t, inv.Items[1].Breakdown.TaxRate.IsZero())
	require.Equal(t, 1, f.notifier.count(userID))

	second, err := f.svc.Create(ctx, userID, f.input())
	require.NoError(t, err)
	require.Equal(t, "INV-20261018-7D4F3F-002", second.InvoiceNumber)
}

func TestCreateNumberFollowsHighestSequence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Create(ctx, userID, f.input())
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, userID, f.input())
	require.NoError(t, err)

	renamed := f.input()
	renamed.InvoiceNumber = "CUSTOM-1"
	_, err = f.svc.Update(ctx, userID, first.ID, renamed)
	require.NoError(t, err)

	third, err := f.svc.Create(ctx, userID, f.input())
	require.NoError(t, err)
	require.Equal(t, "INV-20261018-7D4F3F-003", third.InvoiceNumber)

	manual := f.input()
	manual.InvoiceNumber = "INV-20261018-7D4F3F-010"
	_, err = f.svc.Create(ctx, userID, manual)
	require.NoError(t, err)

	next, err := f.svc.Create(ctx, userID, f.input())
	require.NoError(t, err)
	require.Equal(t, "INV-20261018-7D4F3F-011", next.InvoiceNumber)
}

func TestCreateNumberLockBusy(t *testing.T) {
	f := newFixture(t)
	svc := f.busyService(t)

	_, err := svc.Create(context.Background(), userID, f.input())
	requireAppError(t, err, http.StatusServiceUnavailable, "NUMBER_ALLOCATION_BUSY")
	require.ErrorIs(t, err, lock.ErrNotAcquired)

	manual := f.input()
	manual.InvoiceNumber = "MANUAL-1"
	inv, err := svc.Create(context.Background(), userID, manual)
	require.NoError(t, err)
	require.Equal(t, "MANUAL-1", inv.InvoiceNumber)
}

func TestCreateConcurrentNumbersAreUnique(t *testing.T) {
	f := newFixture(t)
	const n = 8
	numbers := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := f.svc.Create(context.Background(), userID, f.input())
			if err == nil {
				numbers <- inv.InvoiceNumber
			}
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[string]bool{}
	for num := range numbers {
		require.False(t, seen[num], "duplicate number %s", num)
		seen[num] = true
	}
	require.Len(t, seen, n)
	for i := 1; i <= n; i++ {
		require.True(t, seen[fmt.Sprintf("INV-20261018-7D4F3F-%03d", i)])
	}
}

func TestCreateTotalCheck(t *testing.T) {
	f := newFixture(t)

	in := f.input()
	in.Total = totals.Text("262.40")
	_, err := f.svc.Create(context.Background(), userID, in)
	require.NoError(t, err)

	in = f.input()
	in.Total = totals.Number(262.399)
	_, err = f.svc.Create(context.Background(), userID, in)
	require.NoError(t, err)

	in = f.input()
	in.Total = totals.Number(260)
	_, err = f.svc.Create(context.Background(), userID, in)
	appErr := requireAppError(t, err, http.StatusUnprocessableEntity, "TOTAL_MISMATCH")
	require.Equal(t, map[string]string{"expected": "262.40", "received": "260.00"}, appErr.Details)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.input()
	in.Items = nil
	appErr := requireAppError(t, mustFail(f.svc.Create(ctx, userID, in)), http.StatusBadRequest, "VALIDATION_ERROR")
	require.Equal(t, "required", appErr.Details.(map[string]string)["items"])

	in = f.input()
	in.Items[1].Description = ""
	appErr = requireAppError(t, mustFail(f.svc.Create(ctx, userID, in)), http.StatusBadRequest, "VALIDATION_ERROR")
	require.Equal(t, map[string]string{"items[1].description": "required"}, appErr.Details)

	in = f.input()
	in.DueDate = "2026-10-01"
	requireAppError(t, mustFail(f.svc.Create(ctx, userID, in)), http.StatusBadRequest, "VALIDATION_ERROR")

	in = f.input()
	in.InvoiceDate = "18/10/2026"
	appErr = requireAppError(t, mustFail(f.svc.Create(ctx, userID, in)), http.StatusBadRequest, "VALIDATION_ERROR")
	require.Equal(t, "datetime=2006-01-02", appErr.Details.(map[string]string)["invoice_date"])

	in = f.input()
	in.ClientID = uuid.NewString()
	requireAppError(t, mustFail(f.svc.Create(ctx, userID, in)), http.StatusUnprocessableEntity, "CLIENT_NOT_FOUND")

	requireAppError(t, mustFail(f.svc.Create(ctx, "not-a-user", f.input())), http.StatusUnauthorized, "UNAUTHORIZED")
	require.Zero(t, f.store.Calls["CreateInvoice"])
}

func mustFail(_ invoice.Invoice, err error) error { return err }

func TestCreateDuplicateNumberRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.input()
	in.InvoiceNumber = "ACME-1"
	_, err := f.svc.Create(ctx, userID, in)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, userID, in)
	requireAppError(t, err, http.StatusConflict, "INVOICE_NUMBER_TAKEN")

	list, err := f.svc.List(ctx, userID, invoice.ListParams{})
	require.NoError(t, err)
	require.EqualValues(t, 1, list.Total)
	require.Equal(t, 1, f.notifier.count(userID))
}

func TestUpdateRecomputesAndDerivesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, err := f.svc.Create(ctx, userID, f.input())
	require.NoError(t, err)

	id, _ := db.ParseUUID(inv.ID)
	owner, _ := db.ParseUUID(userID)
	_, err = f.store.CreatePayment(ctx, db.CreatePaymentParams{InvoiceID: id, UserID: owner, PaymentDate: db.Date(today), Amount: dec("100"), Mode: "UPI"})
	require.NoError(t, err)

	in := f.input()
	in.Items = []totals.LineItem{{Description: "Retainer", Quantity: totals.Text("1"), UnitPrice: totals.Text("100")}}
	updated, err := f.svc.Update(ctx, userID, inv.ID, in)
	require.NoError(t, err)
	require.Equal(t, inv.InvoiceNumber, updated.InvoiceNumber)
	require.Equal(t, db.InvoiceStatusPaid, updated.Status)
	require.True(t, updated.Totals.GrandTotal.Equal(dec("100")))
	require.True(t, updated.Balance.Due.IsZero())
	require.Len(t, updated.Items, 1)
	require.Equal(t, 1, updated.Items[0].Position)
	require.Len(t, updated.Payments, 1)

	in.Items[0].UnitPrice = totals.Text("150")
	in.InvoiceNumber = "CUSTOM-9"
	updated, err = f.svc.Update(ctx, userID, inv.ID, in)
	require.NoError(t, err)
	require.Equal(t, db.InvoiceStatusUnpaid, updated.Status)
	require.Equal(t, "CUSTOM-9", updated.InvoiceNumber)
	require.True(t, updated.Balance.Due.Equal(dec("50")))
	require.Equal(t, 3, f.notifier.count(userID))
}

func TestCancelIsTerminalAndIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv, err := f.svc.Create(ctx, userID, f.input())
	require.NoError(t, err)

	cancelled, err := f.svc.Cancel(ctx, userID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, db.InvoiceStatusCancelled, cancelled.Status)

	again, err := f.svc.Cancel(ctx, userID, inv.ID)
	require.NoError(t, err)
	require.Equal(t, db.InvoiceStatusCancelled, again.Status)
	require.Equal(t, 2, f.notifier.count(userID))

	_, err = f.svc.Update(ctx, userID, inv.ID, f.input())
	requireAppError(t, err, http.StatusConflict, "INVOICE_CANCELLED")

	_, err = f.svc.Cancel(ctx, userID, uuid.NewString())
	requireAppError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestListFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := f.svc.Create(ctx, userID, f.input())
		require.NoError(t, err)
	}
	first, err := f.svc.List(ctx, userID, invoice.ListParams{PerPage: 1})
	require.NoError(t, err)
	require.EqualValues(t, 3, first.Total)
	require.Len(t, first.Items, 1)
	_, err = f.svc.Cancel(ctx, userID, first.Items[0].ID)
	require.NoError(t, err)

	unpaid, err := f.svc.List(ctx, userID, invoice.ListParams{Status: "UNPAID"})
	require.NoError(t, err)
	require.EqualValues(t, 2, unpaid.Total)

	cancelled, err := f.svc.List(ctx, userID, invoice.ListParams{Status: "cancelled"})
	require.NoError(t, err)
	require.Len(t, cancelled.Items, 1)

	_, err = f.svc.List(ctx, userID, invoice.ListParams{Status: "overdue"})
	requireAppError(t, err, http.StatusBadRequest, "VALIDATION_ERROR")

	other, err := f.svc.List(ctx, uuid.NewString(), invoice.ListParams{})
	require.NoError(t, err)
	require.Zero(t, other.Total)
}

func TestQuoteMatchesCompute(t *testing.T) {
	f := newFixture(t)
	items := f.input().Items
	q := f.svc.Quote(context.Background(), items)
	require.Equal(t, "INR", q.Currency)
	require.True(t, q.Totals.Equal(totals.Compute(items)))
	require.Len(t, q.Lines, 2)
	require.True(t, q.Lines[1].Total.Equal(dec("50")))
}

func TestDeriveStatus(t *testing.T) {
	cases := []struct {
		current     string
		total, paid string
		want        string
	}{
		{db.InvoiceStatusUnpaid, "100", "0", db.InvoiceStatusUnpaid},
		{db.InvoiceStatusUnpaid, "100", "99.99", db.InvoiceStatusUnpaid},
		{db.InvoiceStatusUnpaid, "100", "100", db.InvoiceStatusPaid},
		{db.InvoiceStatusPaid, "120", "100", db.InvoiceStatusUnpaid},
		{db.InvoiceStatusUnpaid, "0", "0", db.InvoiceStatusUnpaid},
		{db.InvoiceStatusUnpaid, "-5", "0", db.InvoiceStatusUnpaid},
		{db.InvoiceStatusCancelled, "100", "100", db.InvoiceStatusCancelled},
	}
	for _, tc := range cases {
		got := invoice.DeriveStatus(tc.current, dec(tc.total), dec(tc.paid))
		require.Equal(t, tc.want, got, "%s total=%s paid=%s", tc.current, tc.total, tc.paid)
	}
}
