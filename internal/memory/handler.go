package memory

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/obelisk-core/obelisk/internal/api"
	"github.com/obelisk-core/obelisk/internal/auth"
)

// Handler handles memory HTTP endpoints.
type Handler struct {
	svc      *Service
	validate *validator.Validate
}

// NewHandler creates a new memory handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
	}
}

// MemoryResponse is the body of GetMemory.
type MemoryResponse struct {
	UserID  string              `json:"user_id"`
	Context ConversationContext `json:"context"`
}

// SaveResponse acknowledges a stored interaction.
type SaveResponse struct {
	InteractionID string `json:"interaction_id"`
	CycleID       string `json:"cycle_id,omitempty"`
}

// Get returns the recency-selected conversation context for a user.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.ResolveUserID(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	cc, err := h.svc.BuildContext(r.Context(), userID, "")
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, MemoryResponse{UserID: userID, Context: cc})
}

// Save stores a query/response pair supplied by the caller.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.ResolveUserID(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	var req SaveInteractionRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	it := &Interaction{UserID: userID, Query: req.Query, Response: req.Response}
	if err := h.svc.RecordInteraction(r.Context(), it); err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusCreated, SaveResponse{InteractionID: it.ID.String(), CycleID: it.CycleID})
}
