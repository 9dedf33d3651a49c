package payment_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-invoice/internal/common"
	"github.com/noah-isme/backend-invoice/internal/payment"
)

func newRouter(f fixture) http.Handler {
	h := payment.NewHandler(payment.HandlerConfig{Service: f.svc})
	r := chi.NewRouter()
	r.Route("/api/v1/invoices", func(r chi.Router) { h.InvoiceRoutes(r, nil) })
	r.Route("/api/v1/payments", h.Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authed {
		req = req.WithContext(common.WithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPaymentEndpoints(t *testing.T) {
	f := newFixture(t)
	h := newRouter(f)
	inv := f.newInvoice(t)
	base := "/api/v1/invoices/" + inv.ID + "/payments"

	rec := do(t, h, http.MethodPost, base, `{"payment_date":"2026-10-20","amount":"62.4","mode":"card"}`, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, 62.4, created.Data["amount"])
	require.Equal(t, "62.40", created.Data["amount_display"])
	require.Equal(t, "CARD", created.Data["mode"])

	rec = do(t, h, http.MethodPost, base, `{"payment_date":"2026-10-20","amount":500}`, true)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "AMOUNT_EXCEEDS_DUE")

	rec = do(t, h, http.MethodGet, base, "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Data, 1)

	rec = do(t, h, http.MethodGet, "/api/v1/payments?mode=card&date=2026-10-20", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1", rec.Header().Get("X-Total-Count"))

	rec = do(t, h, http.MethodGet, "/api/v1/payments", "", false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, base, `not json`, true)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
