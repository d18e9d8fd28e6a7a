package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obelisk-core/obelisk/internal/auth"
	"github.com/obelisk-core/obelisk/internal/config"
)

func newModelServer(t *testing.T, loaded bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"<think>let me see</think>The answer is 42.","tokens":[]}`)) //nolint:errcheck
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"model_loaded": loaded}) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func soloConfig(t *testing.T, modelURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Mode:      config.ModeSolo,
		SQLite:    config.SQLiteConfig{Path: filepath.Join(dir, "obelisk.db")},
		JWT:       config.JWTConfig{Issuer: "obelisk"},
		RateLimit: config.RateLimitConfig{GenerateMaxRequests: 10, GenerateWindowSec: 60},
		Model: config.ModelConfig{
			BaseURL:           modelURL,
			MaxTokens:         256,
			BaseTemperature:   0.6,
			TemperatureSpread: 0.4,
			EndToken:          151668,
			Timeout:           5 * time.Second,
		},
		Quantum:    config.QuantumConfig{Source: "simulator", Qubits: 2, Shots: 128, Timeout: time.Second},
		Memory:     config.MemoryConfig{MaxMessages: 20, MaxMemories: 5, CandidateLimit: 100, SummaryMaxLength: 500},
		Generation: config.GenerationConfig{Timeout: 10 * time.Second, PersistTimeout: 5 * time.Second, DefaultWeight: 0.7},
		Evolution:  config.EvolutionConfig{TopContributors: 10, HalfLife: 24 * time.Hour, LockTTL: time.Minute},
		Trainer:    config.TrainerConfig{DatasetDir: filepath.Join(dir, "datasets")},
	}
}

func call(t *testing.T, h http.Handler, method, path, body string, header ...string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.ContentLength = int64(len(body))
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func TestContainer_SoloEndToEnd(t *testing.T) {
	model := newModelServer(t, true)
	c, err := New(context.Background(), soloConfig(t, model.URL))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	assert.Equal(t, config.ModeSolo, c.Mode)
	assert.False(t, c.InitializedAt.IsZero())
	h := c.Router

	code, _ := call(t, h, http.MethodPost, "/api/v1/evolution/cycles", `{"cycle_id":"cycle-1"}`)
	require.Equal(t, http.StatusCreated, code)

	code, body := call(t, h, http.MethodPost, "/api/v1/generate", `{"query":"what is the answer?","user_id":"alice"}`)
	require.Equal(t, http.StatusOK, code, body)
	data := body["data"].(map[string]any)
	assert.Equal(t, "The answer is 42.", data["response_text"])
	assert.Equal(t, "model", data["source"])
	assert.NotEmpty(t, data["interaction_id"])
	infl := data["quantum_influence"].(float64)
	assert.GreaterOrEqual(t, infl, 0.0)
	assert.LessOrEqual(t, infl, 1.0)

	code, body = call(t, h, http.MethodGet, "/api/v1/memory/alice", "")
	require.Equal(t, http.StatusOK, code)
	ctxBody := body["data"].(map[string]any)["context"].(map[string]any)
	assert.Len(t, ctxBody["messages"], 2)
	assert.Contains(t, ctxBody["memory_summary"], "what is the answer?")

	code, _ = call(t, h, http.MethodPost, "/api/v1/memory/bob", `{"query":"hi","response":"hello"}`)
	require.Equal(t, http.StatusCreated, code)

	code, body = call(t, h, http.MethodPost, "/api/v1/evolve", `{"cycle_id":"cycle-1"}`)
	require.Equal(t, http.StatusOK, code, body)
	result := body["data"].(map[string]any)
	assert.Equal(t, "completed", result["status"])
	assert.True(t, strings.HasPrefix(result["artifact_id"].(string), "dataset-cycle-1-"))
	assert.Len(t, result["top_contributors"], 2)

	code, body = call(t, h, http.MethodGet, "/api/v1/evolution/cycles/cycle-1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", body["data"].(map[string]any)["state"])

	code, body = call(t, h, http.MethodPost, "/api/v1/quantum/influence", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["data"].(map[string]any)["quantum"])
}

func TestContainer_Health(t *testing.T) {
	model := newModelServer(t, false)
	c, err := New(context.Background(), soloConfig(t, model.URL))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	code, body := call(t, c.Router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "solo", data["mode"])
	assert.Equal(t, false, data["model_loaded"])
	assert.Equal(t, "degraded", data["status"])
	assert.Equal(t, "healthy", data["checks"].(map[string]any)["database"])
}

func TestContainer_JWTProtectsAPI(t *testing.T) {
	model := newModelServer(t, true)
	cfg := soloConfig(t, model.URL)
	cfg.JWT.AccessSecret = strings.Repeat("s", 32)
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	code, _ := call(t, c.Router, http.MethodGet, "/api/v1/memory/alice", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	token, err := auth.NewJWTManager(cfg.JWT.AccessSecret, cfg.JWT.Issuer).GenerateAccessToken("alice", time.Minute)
	require.NoError(t, err)
	bearer := "Bearer " + token

	code, _ = call(t, c.Router, http.MethodGet, "/api/v1/memory/alice", "", "Authorization", bearer)
	assert.Equal(t, http.StatusOK, code)

	code, body := call(t, c.Router, http.MethodGet, "/api/v1/memory/bob", "", "Authorization", bearer)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "forbidden", body["kind"])
}

func TestGenerationOptions_KeepsConfiguredWeight(t *testing.T) {
	cfg := soloConfig(t, "http://model.invalid")

	assert.InDelta(t, 0.7, generationOptions(cfg).DefaultWeight, 1e-9)

	cfg.Generation.DefaultWeight = 0
	opts := generationOptions(cfg)
	assert.Zero(t, opts.DefaultWeight)
	assert.Equal(t, 10*time.Second, opts.Timeout)
	assert.Equal(t, 256, opts.MaxTokens)
}
