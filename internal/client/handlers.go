package client

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-invoice/internal/common"
)

const defaultPerPage = 20

// Handler exposes the client endpoints.
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

// Routes mounts the client endpoints on r. create wraps the POST handler,
// typically with idempotency middleware.
func (h *Handler) Routes(r chi.Router, create func(http.Handler) http.Handler) {
	r.Get("/", h.List)
	r.With(create).Post("/", h.Create)
	r.Get("/{clientID}", h.Get)
	r.Put("/{clientID}", h.Update)
	r.Delete("/{clientID}", h.Delete)
}

// List handles GET /api/v1/clients.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		h.writeError(w, r, common.ErrUnauthorized())
		return
	}
	page, perPage := common.ParsePagination(r, defaultPerPage)
	result, err := h.service.List(r.Context(), userID, ListParams{Query: r.URL.Query().Get("q"), Page: page, PerPage: perPage})
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

// Create handles POST /api/v1/clients.
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
	c, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": c})
}

// Get handles GET /api/v1/clients/{clientID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		h.writeError(w, r, common.ErrUnauthorized())
		return
	}
	c, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "clientID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// Update handles PUT /api/v1/clients/{clientID}.
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
	c, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "clientID"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// Delete handles DELETE /api/v1/clients/{clientID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		h.writeError(w, r, common.ErrUnauthorized())
		return
	}
	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "clientID")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if !common.IsAppError(err) {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("client request failed")
	}
	common.WriteError(w, err)
}
