// Package app wires every collaborator once at process start.
package app

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/obelisk-core/obelisk/internal/api"
	"github.com/obelisk-core/obelisk/internal/auth"
	"github.com/obelisk-core/obelisk/internal/config"
	"github.com/obelisk-core/obelisk/internal/database"
	"github.com/obelisk-core/obelisk/internal/evolution"
	"github.com/obelisk-core/obelisk/internal/generation"
	"github.com/obelisk-core/obelisk/internal/inference"
	"github.com/obelisk-core/obelisk/internal/memory"
	mw "github.com/obelisk-core/obelisk/internal/middleware"
	inats "github.com/obelisk-core/obelisk/internal/nats"
	"github.com/obelisk-core/obelisk/internal/quantum"
	iredis "github.com/obelisk-core/obelisk/internal/redis"
)

// Worker is a background loop that runs until ctx is cancelled.
type Worker func(ctx context.Context) error

// Container holds the process-wide services. Build it once with New and
// release it with Close.
type Container struct {
	Mode          string
	InitializedAt time.Time

	Memory       *memory.Service
	Evolution    *evolution.Service
	Sampler      *quantum.Sampler
	Orchestrator *generation.Orchestrator
	Models       *inference.Chain

	Router  http.Handler
	Workers []Worker

	checks  []api.ReadinessCheck
	closers []func()
}

type storage struct {
	memRepo   memory.Repository
	cycleRepo evolution.Repository
	history   memory.History
	locker    evolution.Locker
	redis     *redis.Client
}

// New builds the container for cfg.Mode. On error everything opened so far
// is closed again.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{Mode: cfg.Mode}
	if err := c.build(ctx, cfg); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context, cfg *config.Config) error {
	st, err := c.openStorage(ctx, cfg)
	if err != nil {
		return err
	}

	var (
		retry  memory.RetryQueue
		events evolution.EventPublisher
	)
	if cfg.NATS.URL != "" {
		nc, err := inats.NewClient(ctx, cfg.NATS)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, nc.Close)
		c.checks = append(c.checks, api.ReadinessCheck{Name: "nats", Check: nc.Check})

		pub := inats.NewPublisher(nc.JetStream())
		retry = memory.NewNATSRetryQueue(pub)
		events = pub
		consumer := memory.NewRetryConsumer(st.memRepo, st.history, inats.NewConsumerManager(nc.JetStream()))
		c.Workers = append(c.Workers, consumer.Start)
	}

	var embedder memory.Embedder
	fallbacks := []inference.Model{}
	if cfg.Gemini.APIKey != "" {
		gc, err := inference.NewGeminiClient(ctx, cfg.Gemini.APIKey)
		if err != nil {
			return err
		}
		fallbacks = append(fallbacks, inference.NewGeminiModel(gc, cfg.Gemini.Model))
		embedder = inference.NewGeminiEmbedder(gc, cfg.Gemini.EmbeddingModel)
	}

	primary := inference.NewHTTPModel(cfg.Model.BaseURL, cfg.Model.APIKey, cfg.Model.Timeout, nil)
	c.Models = inference.NewChain(inference.DefaultBreakerConfig(), primary, fallbacks...)

	c.Sampler = quantum.NewSampler(newQuantumSource(cfg.Quantum), cfg.Quantum.Qubits, cfg.Quantum.Shots, cfg.Quantum.Timeout)

	c.Memory = memory.NewService(st.memRepo, st.history, embedder, retry, memory.Options{
		MaxMessages:      cfg.Memory.MaxMessages,
		MaxMemories:      cfg.Memory.MaxMemories,
		CandidateLimit:   cfg.Memory.CandidateLimit,
		SummaryMaxLength: cfg.Memory.SummaryMaxLength,
	})

	c.Orchestrator = generation.NewOrchestrator(c.Memory, c.Sampler, c.Models, primary, c.Memory, generationOptions(cfg))

	trainer, err := c.newTrainer(cfg.Trainer)
	if err != nil {
		return err
	}
	c.Evolution = evolution.NewService(
		st.cycleRepo,
		c.Memory,
		evolution.WeightedScorer{HalfLife: cfg.Evolution.HalfLife, Limit: cfg.Evolution.TopContributors},
		trainer,
		st.locker,
		events,
		evolution.Options{LockTTL: cfg.Evolution.LockTTL},
	)

	c.InitializedAt = time.Now().UTC()
	c.Router = c.newRouter(cfg, st.redis)

	slog.Info("service container initialized",
		"mode", c.Mode,
		"primary_model", c.Models.Primary().Name(),
		"fallbacks", len(fallbacks),
		"quantum_source", cfg.Quantum.Source,
		"nats", cfg.NATS.URL != "",
	)
	return nil
}

func (c *Container) openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	if cfg.Mode == config.ModeSolo {
		db, err := database.NewSQLite(ctx, cfg.SQLite)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() { db.Close() })
		c.checks = append(c.checks, pingCheck("database", db))

		repo := memory.NewSQLiteRepository(db)
		return &storage{
			memRepo:   repo,
			cycleRepo: evolution.NewSQLiteRepository(db),
			history:   memory.NewInteractionHistory(repo),
			locker:    evolution.NewLocalLocker(),
		}, nil
	}

	if err := database.RunPostgresMigrations(cfg.DB.DSN()); err != nil {
		return nil, err
	}
	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, pool.Close)
	c.checks = append(c.checks, poolCheck(pool))

	rc, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() { rc.Close() })
	c.checks = append(c.checks, api.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
		return rc.Ping(ctx).Err()
	}})

	return &storage{
		memRepo:   memory.NewPostgresRepository(pool),
		cycleRepo: evolution.NewPostgresRepository(pool),
		history:   memory.NewShortTermStore(rc, cfg.Memory.MaxMessages, cfg.Memory.HistoryTTLSec),
		locker:    evolution.NewRedisLocker(rc),
		redis:     rc,
	}, nil
}

func (c *Container) newTrainer(cfg config.TrainerConfig) (evolution.Trainer, error) {
	if cfg.Target == "" {
		return evolution.NewDatasetTrainer(cfg.DatasetDir), nil
	}
	t, err := evolution.NewGRPCTrainer(cfg.Target, cfg.APIKey, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() { t.Close() })
	return t, nil
}

func (c *Container) newRouter(cfg *config.Config, rc *redis.Client) http.Handler {
	var jwt *auth.JWTManager
	if cfg.JWT.AccessSecret != "" {
		jwt = auth.NewJWTManager(cfg.JWT.AccessSecret, cfg.JWT.Issuer)
	}

	var limiter func(http.Handler) http.Handler
	if rc != nil {
		limiter = mw.NewRateLimiter(rc, "generate",
			cfg.RateLimit.GenerateMaxRequests, cfg.RateLimit.GenerateWindowSec, rateLimitKey).Middleware
	}

	generate := generation.NewHandler(c.Orchestrator)
	influence := quantum.NewHandler(c.Sampler)
	cycles := evolution.NewHandler(c.Evolution)
	mem := memory.NewHandler(c.Memory)

	return api.NewRouter(api.RouterConfig{
		CORSAllowedOrigins:  cfg.CORS.AllowedOrigins,
		GenerateRateLimiter: limiter,
		Mode:                c.Mode,
		InitializedAt:       c.InitializedAt,
		ModelReady:          c.modelReady,
		Checks:              c.checks,
	}, api.HandlerSet{
		Generate:         generate.Generate,
		QuantumInfluence: influence.Influence,
		StartCycle:       cycles.Start,
		Evolve:           cycles.Evolve,
		CycleStatus:      cycles.Status,
		GetMemory:        mem.Get,
		SaveInteraction:  mem.Save,
		AuthMiddleware:   auth.Middleware(jwt),
	})
}

// modelReady reports whether the primary backend has its model loaded.
func (c *Container) modelReady(ctx context.Context) bool {
	checker, ok := c.Models.Primary().(inference.Checker)
	if !ok {
		return true
	}
	return checker.Ready(ctx) == nil
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func newQuantumSource(cfg config.QuantumConfig) quantum.Source {
	if cfg.Source == "http" {
		return quantum.NewHTTPSource(cfg.URL, cfg.APIKey, nil)
	}
	return quantum.NewSimulator()
}

// rateLimitKey counts authenticated callers by user and anonymous ones by IP.
func rateLimitKey(r *http.Request) string {
	if claims := auth.GetUserClaims(r.Context()); claims != nil && claims.UserID != "" {
		return "user:" + claims.UserID
	}
	return "ip:" + mw.ClientIP(r)
}

// generationOptions maps config onto the orchestrator. Load already applied
// the defaults, so every value, including a zero weight, is taken as given.
func generationOptions(cfg *config.Config) generation.Options {
	opts := generation.DefaultOptions()
	opts.EndToken = cfg.Model.EndToken
	opts.BaseTemperature = cfg.Model.BaseTemperature
	opts.TemperatureSpread = cfg.Model.TemperatureSpread
	opts.MaxTokens = cfg.Model.MaxTokens
	opts.Timeout = cfg.Generation.Timeout
	opts.PersistTimeout = cfg.Generation.PersistTimeout
	opts.DefaultWeight = cfg.Generation.DefaultWeight
	return opts
}

func pingCheck(name string, db *sql.DB) api.ReadinessCheck {
	return api.ReadinessCheck{Name: name, Check: db.PingContext}
}

func poolCheck(pool *pgxpool.Pool) api.ReadinessCheck {
	return api.ReadinessCheck{Name: "database", Check: pool.Ping}
}
