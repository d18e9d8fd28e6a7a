package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mw "github.com/obelisk-core/obelisk/internal/middleware"
)

// HandlerSet holds handler functions injected by the app container to
// avoid import cycles.
type HandlerSet struct {
	Generate         http.HandlerFunc
	QuantumInfluence http.HandlerFunc

	StartCycle  http.HandlerFunc
	Evolve      http.HandlerFunc
	CycleStatus http.HandlerFunc

	GetMemory       http.HandlerFunc
	SaveInteraction http.HandlerFunc

	AuthMiddleware func(http.Handler) http.Handler
}

// ReadinessCheck is one named dependency probe.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins  []string
	GenerateRateLimiter func(http.Handler) http.Handler

	Mode          string
	InitializedAt time.Time
	ModelReady    func(ctx context.Context) bool
	Checks        []ReadinessCheck
}

// HealthResponse is the readiness body.
type HealthResponse struct {
	Status        string            `json:"status"`
	Mode          string            `json:"mode"`
	ModelLoaded   bool              `json:"model_loaded"`
	InitializedAt time.Time         `json:"initialized_at"`
	Checks        map[string]string `json:"checks"`
}

func NewRouter(cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness never touches dependencies.
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	ready := readinessHandler(cfg)
	r.Get("/health/ready", ready)
	r.Get("/health", ready)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if h.AuthMiddleware != nil {
			r.Use(h.AuthMiddleware)
		}

		r.Group(func(r chi.Router) {
			if cfg.GenerateRateLimiter != nil {
				r.Use(cfg.GenerateRateLimiter)
			}
			r.Post("/generate", h.Generate)
		})

		r.Post("/quantum/influence", h.QuantumInfluence)

		r.Post("/evolve", h.Evolve)
		r.Get("/evolution/cycle/{cycleID}", h.CycleStatus)
		r.Route("/evolution/cycles", func(r chi.Router) {
			r.Post("/", h.StartCycle)
			r.Get("/{cycleID}", h.CycleStatus)
		})

		r.Route("/memory/{userID}", func(r chi.Router) {
			r.Get("/", h.GetMemory)
			r.Post("/", h.SaveInteraction)
		})
	})

	return r
}

// readinessHandler reports 503 when any storage dependency fails. A model
// that is not loaded degrades status but keeps the instance in rotation,
// since generation falls back to other backends.
func readinessHandler(cfg RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		resp := HealthResponse{
			Status:        "healthy",
			Mode:          cfg.Mode,
			InitializedAt: cfg.InitializedAt,
			Checks:        make(map[string]string, len(cfg.Checks)),
		}
		status := http.StatusOK

		for _, c := range cfg.Checks {
			if err := c.Check(ctx); err != nil {
				resp.Checks[c.Name] = "unhealthy: " + err.Error()
				resp.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name] = "healthy"
		}

		if cfg.ModelReady != nil {
			resp.ModelLoaded = cfg.ModelReady(ctx)
		}
		if !resp.ModelLoaded && resp.Status == "healthy" {
			resp.Status = "degraded"
		}

		JSON(w, status, resp)
	}
}
