package profile

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-invoice/internal/common"
)

// Handler exposes the profile endpoints.
type Handler struct {
	Service *Service
}

// Routes mounts GET and PUT on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Get)
	r.Put("/", h.Update)
}

// Get handles GET /api/v1/profile.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		h.writeError(w, r, common.ErrUnauthorized())
		return
	}
	p, err := h.Service.Get(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// Update handles PUT /api/v1/profile.
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
	p, err := h.Service.Update(r.Context(), userID, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if !common.IsAppError(err) {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("profile request failed")
	}
	common.WriteError(w, err)
}
