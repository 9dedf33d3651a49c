package payment

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-invoice/internal/common"
)

const defaultPerPage = 20

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// InvoiceRoutes mounts the per invoice payment endpoints on the invoice
// router. create wraps the POST route, typically with idempotency.
func (h *Handler) InvoiceRoutes(r chi.Router, create func(http.Handler) http.Handler) {
	if create == nil {
		create = func(next http.Handler) http.Handler { return next }
	}
	r.Get("/{invoiceID}/payments", h.ListForInvoice)
	r.With(create).Post("/{invoiceID}/payments", h.Record)
}

// Routes mounts the payment list on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
}

// Record handles POST /api/v1/invoices/{invoiceID}/payments.
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		h.writeError(w, r, common.ErrUnauthorized())
		return
	}
	var in Input
	if err := common.DecodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	entry, err := h.service.Record(r.Context(), userID, chi.URLParam(r, "invoiceID"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": entry})
}

// ListForInvoice handles GET /api/v1/invoices/{invoiceID}/payments.
func (h *Handler) ListForInvoice(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		h.writeError(w, r, common.ErrUnauthorized())
		return
	}
	items, err := h.service.ListForInvoice(r.Context(), userID, chi.URLParam(r, "invoiceID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

// List handles GET /api/v1/payments.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		h.writeError(w, r, common.ErrUnauthorized())
		return
	}
	page, perPage := common.ParsePagination(r, defaultPerPage)
	query := r.URL.Query()
	result, err := h.service.List(r.Context(), userID, ListParams{
		Mode:    query.Get("mode"),
		Date:    query.Get("date"),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": common.Pagination{Page: result.Page, PerPage: result.PerPage, TotalItems: int(result.Total)},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if !common.IsAppError(err) {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("payment request failed")
	}
	common.WriteError(w, err)
}
