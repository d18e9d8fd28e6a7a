package generation

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/obelisk-core/obelisk/internal/api"
	"github.com/obelisk-core/obelisk/internal/auth"
)

// Handler exposes the Generate operation over HTTP.
type Handler struct {
	orch     *Orchestrator
	validate *validator.Validate
}

// NewHandler creates a new generation handler.
func NewHandler(orch *Orchestrator) *Handler {
	return &Handler{
		orch:     orch,
		validate: validator.New(),
	}
}

// Generate runs one generation. Malformed input is rejected before any
// collaborator is called.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	userID, err := auth.ResolveUserID(r.Context(), req.UserID)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	req.UserID = userID

	res, err := h.orch.Generate(r.Context(), req)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, res)
}
