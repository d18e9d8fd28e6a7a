package quantum

import (
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/obelisk-core/obelisk/internal/api"
	"github.com/obelisk-core/obelisk/internal/failure"
)

// Handler exposes GetQuantumInfluence over HTTP.
type Handler struct {
	sampler  *Sampler
	validate *validator.Validate
}

// NewHandler creates a new quantum handler.
func NewHandler(sampler *Sampler) *Handler {
	return &Handler{sampler: sampler, validate: validator.New()}
}

// InfluenceResponse is the body of GetQuantumInfluence. A degraded draw
// still answers with the default value and says so.
type InfluenceResponse struct {
	Influence
	Degraded bool   `json:"degraded,omitempty"`
	Warning  string `json:"warning,omitempty"`
}

// Influence draws once from the configured source. The body is an optional
// circuit description.
func (h *Handler) Influence(w http.ResponseWriter, r *http.Request) {
	var c Circuit
	if err := api.DecodeJSON(r, &c); err != nil {
		api.HandleError(w, err)
		return
	}
	if err := h.validate.Struct(c); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	infl, err := h.sampler.Draw(r.Context(), c)
	resp := InfluenceResponse{Influence: infl}
	if err != nil {
		if !failure.Is(err, failure.KindDegradedInput) {
			api.HandleError(w, err)
			return
		}
		resp.Degraded = true
		resp.Warning = failure.MessageOf(err)
	}

	api.JSON(w, http.StatusOK, resp)
}
