package evolution

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/obelisk-core/obelisk/internal/api"
)

// Handler handles evolution cycle HTTP endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler creates a new evolution handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, validate: validator.New()}
}

// Start opens a cycle.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	c, err := h.svc.Start(r.Context(), req.CycleID)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.JSON(w, http.StatusCreated, c)
}

// Evolve closes a cycle. fine_tune defaults to true.
func (h *Handler) Evolve(w http.ResponseWriter, r *http.Request) {
	var req EvolveRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	fineTune := true
	if req.FineTune != nil {
		fineTune = *req.FineTune
	}

	res, err := h.svc.Evolve(r.Context(), req.CycleID, fineTune)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, res)
}

// Status returns a cycle's current record.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Status(r.Context(), chi.URLParam(r, "cycleID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, c)
}
