package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Modes select the storage backends wired by the service container.
const (
	ModeSolo   = "solo"
	ModeServer = "server"
)

type Config struct {
	Mode       string
	Server     ServerConfig
	DB         DBConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	NATS       NATSConfig
	JWT        JWTConfig
	CORS       CORSConfig
	RateLimit  RateLimitConfig
	Model      ModelConfig
	Gemini     GeminiConfig
	Quantum    QuantumConfig
	Memory     MemoryConfig
	Generation GenerationConfig
	Evolution  EvolutionConfig
	Trainer    TrainerConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

// JWTConfig enables bearer-token protection of the API when AccessSecret is set.
type JWTConfig struct {
	AccessSecret string
	Issuer       string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	GenerateMaxRequests int
	GenerateWindowSec   int
}

type ModelConfig struct {
	BaseURL           string
	APIKey            string
	MaxTokens         int
	BaseTemperature   float64
	TemperatureSpread float64
	EndToken          int
	Timeout           time.Duration
}

type GeminiConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
}

type QuantumConfig struct {
	Source  string // "simulator" or "http"
	URL     string
	APIKey  string
	Qubits  int
	Shots   int
	Timeout time.Duration
}

type MemoryConfig struct {
	MaxMessages      int
	MaxMemories      int
	CandidateLimit   int
	HistoryTTLSec    int
	SummaryMaxLength int
}

type GenerationConfig struct {
	Timeout        time.Duration
	DefaultWeight  float64
	PersistTimeout time.Duration
}

type EvolutionConfig struct {
	TopContributors int
	HalfLife        time.Duration
	LockTTL         time.Duration
}

type TrainerConfig struct {
	Target     string // gRPC address; empty selects the dataset trainer
	APIKey     string
	DatasetDir string
	Timeout    time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Mode: k.String("obelisk.mode"),
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		SQLite: SQLiteConfig{
			Path: k.String("sqlite.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		JWT: JWTConfig{
			AccessSecret: k.String("jwt.access.secret"),
			Issuer:       k.String("jwt.issuer"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(k.String("cors.allowed.origins")),
		},
		RateLimit: RateLimitConfig{
			GenerateMaxRequests: k.Int("ratelimit.generate.max"),
			GenerateWindowSec:   k.Int("ratelimit.generate.window"),
		},
		Model: ModelConfig{
			BaseURL:           k.String("model.base.url"),
			APIKey:            k.String("model.api.key"),
			MaxTokens:         k.Int("model.max.tokens"),
			BaseTemperature:   k.Float64("model.base.temperature"),
			TemperatureSpread: k.Float64("model.temperature.spread"),
			EndToken:          k.Int("model.end.token"),
		},
		Gemini: GeminiConfig{
			APIKey:         k.String("gemini.api.key"),
			Model:          k.String("gemini.model"),
			EmbeddingModel: k.String("gemini.embedding.model"),
		},
		Quantum: QuantumConfig{
			Source: k.String("quantum.source"),
			URL:    k.String("quantum.url"),
			APIKey: k.String("quantum.api.key"),
			Qubits: k.Int("quantum.qubits"),
			Shots:  k.Int("quantum.shots"),
		},
		Memory: MemoryConfig{
			MaxMessages:      k.Int("memory.max.messages"),
			MaxMemories:      k.Int("memory.max.memories"),
			CandidateLimit:   k.Int("memory.candidate.limit"),
			HistoryTTLSec:    k.Int("memory.history.ttl"),
			SummaryMaxLength: k.Int("memory.summary.max.length"),
		},
		Generation: GenerationConfig{
			DefaultWeight: 0.7,
		},
		Evolution: EvolutionConfig{
			TopContributors: k.Int("evolution.top.contributors"),
		},
		Trainer: TrainerConfig{
			Target:     k.String("trainer.target"),
			APIKey:     k.String("trainer.api.key"),
			DatasetDir: k.String("trainer.dataset.dir"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	// Apply defaults
	if cfg.Mode == "" {
		cfg.Mode = ModeSolo
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "obelisk"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "obelisk"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "obelisk.db"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "obelisk"
	}
	if cfg.RateLimit.GenerateMaxRequests == 0 {
		cfg.RateLimit.GenerateMaxRequests = 60
	}
	if cfg.RateLimit.GenerateWindowSec == 0 {
		cfg.RateLimit.GenerateWindowSec = 60
	}
	if cfg.Model.BaseURL == "" {
		cfg.Model.BaseURL = "http://localhost:8000"
	}
	if cfg.Model.MaxTokens == 0 {
		cfg.Model.MaxTokens = 1024
	}
	if cfg.Model.BaseTemperature == 0 {
		cfg.Model.BaseTemperature = 0.6
	}
	if cfg.Model.TemperatureSpread == 0 {
		cfg.Model.TemperatureSpread = 0.4
	}
	if cfg.Model.EndToken == 0 {
		cfg.Model.EndToken = 151668
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.5-flash"
	}
	if cfg.Gemini.EmbeddingModel == "" {
		cfg.Gemini.EmbeddingModel = "gemini-embedding-001"
	}
	if cfg.Quantum.Source == "" {
		cfg.Quantum.Source = "simulator"
	}
	if cfg.Quantum.Qubits == 0 {
		cfg.Quantum.Qubits = 2
	}
	if cfg.Quantum.Shots == 0 {
		cfg.Quantum.Shots = 128
	}
	if cfg.Memory.MaxMessages == 0 {
		cfg.Memory.MaxMessages = 20
	}
	if cfg.Memory.MaxMemories == 0 {
		cfg.Memory.MaxMemories = 5
	}
	if cfg.Memory.CandidateLimit == 0 {
		cfg.Memory.CandidateLimit = 100
	}
	if cfg.Memory.HistoryTTLSec == 0 {
		cfg.Memory.HistoryTTLSec = 86400
	}
	if cfg.Memory.SummaryMaxLength == 0 {
		cfg.Memory.SummaryMaxLength = 500
	}
	if cfg.Evolution.TopContributors == 0 {
		cfg.Evolution.TopContributors = 10
	}
	if cfg.Trainer.DatasetDir == "" {
		cfg.Trainer.DatasetDir = "datasets"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	if w := k.String("generation.default.weight"); w != "" {
		cfg.Generation.DefaultWeight = k.Float64("generation.default.weight")
	}

	// Parse durations
	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"server.read.timeout", "15s", &cfg.Server.ReadTimeout},
		{"server.write.timeout", "150s", &cfg.Server.WriteTimeout},
		{"server.shutdown.timeout", "30s", &cfg.Server.ShutdownTimeout},
		{"model.timeout", "90s", &cfg.Model.Timeout},
		{"quantum.timeout", "5s", &cfg.Quantum.Timeout},
		{"generation.timeout", "120s", &cfg.Generation.Timeout},
		{"generation.persist.timeout", "10s", &cfg.Generation.PersistTimeout},
		{"evolution.half.life", "168h", &cfg.Evolution.HalfLife},
		{"evolution.lock.ttl", "30m", &cfg.Evolution.LockTTL},
		{"trainer.timeout", "30m", &cfg.Trainer.Timeout},
	}
	for _, d := range durations {
		raw := k.String(d.key)
		if raw == "" {
			raw = d.def
		}
		*d.dest, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", d.key, err)
		}
	}

	return cfg, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
