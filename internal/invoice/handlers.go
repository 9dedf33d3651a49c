package invoice

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-invoice/internal/common"
	"github.com/noah-isme/backend-invoice/internal/totals"
)

const defaultPerPage = 20

// Handler exposes the invoice endpoints.
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

// RouteOptions carries the middleware applied to individual invoice routes.
type RouteOptions struct {
	Create func(http.Handler) http.Handler
	Quote  func(http.Handler) http.Handler
}

func passthrough(next http.Handler) http.Handler { return next }

// Routes mounts the invoice endpoints on r.
func (h *Handler) Routes(r chi.Router, opts RouteOptions) {
	if opts.Create == nil {
		opts.Create = passthrough
	}
	if opts.Quote == nil {
		opts.Quote = passthrough
	}
	r.With(opts.Quote).Post("/quote", h.Quote)
	r.Get("/", h.List)
	r.With(opts.Create).Post("/", h.Create)
	r.Get("/{invoiceID}", h.Get)
	r.Put("/{invoiceID}", h.Update)
	r.Post("/{invoiceID}/cancel", h.Cancel)
}

type quoteRequest struct {
	Items []totals.LineItem `json:"items"`
}

// Quote handles POST /api/v1/invoices/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if _, ok := common.UserID(r.Context()); !ok {
		h.writeError(w, r, common.ErrUnauthorized())
		return
	}
	var req quoteRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": h.service.Quote(r.Context(), req.Items)})
}

// List handles GET /api/v1/invoices.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		h.writeError(w, r, common.ErrUnauthorized())
		return
	}
	page, perPage := common.ParsePagination(r, defaultPerPage)
	result, err := h.service.List(r.Context(), userID, ListParams{Status: r.URL.Query().Get("status"), Page: page, PerPage: perPage})
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

// Create handles POST /api/v1/invoices.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
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
	inv, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/invoices/"+inv.ID)
	common.JSON(w, http.StatusCreated, map[string]any{"data": inv})
}

// Get handles GET /api/v1/invoices/{invoiceID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		h.writeError(w, r, common.ErrUnauthorized())
		return
	}
	inv, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "invoiceID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": inv})
}

// Update handles PUT /api/v1/invoices/{invoiceID}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
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
	inv, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "invoiceID"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": inv})
}

// Cancel handles POST /api/v1/invoices/{invoiceID}/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		h.writeError(w, r, common.ErrUnauthorized())
		return
	}
	inv, err := h.service.Cancel(r.Context(), userID, chi.URLParam(r, "invoiceID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": inv})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *common.AppError
	if !errors.As(err, &appErr) {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("invoice request failed")
	} else if appErr.HTTPStatus == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	common.WriteError(w, err)
}
