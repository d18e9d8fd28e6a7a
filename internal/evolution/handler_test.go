package evolution

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	f := newFixture(t)
	h := NewHandler(f.svc)

	r := chi.NewRouter()
	r.Post("/evolution/cycles", h.Start)
	r.Get("/evolution/cycles/{cycleID}", h.Status)
	r.Post("/evolve", h.Evolve)
	return r, f
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.ContentLength = int64(len(body))
	}
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_CycleLifecycle(t *testing.T) {
	router, f := newTestRouter(t)

	rec := do(router, http.MethodPost, "/evolution/cycles", `{"cycle_id":"c1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	f.record(t, "alice", "hello")

	rec = do(router, http.MethodPost, "/evolve", `{"cycle_id":"c1","fine_tune":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var evolved struct {
		Data Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &evolved))
	assert.Equal(t, StateCompleted, evolved.Data.Status)
	require.Len(t, evolved.Data.TopContributors, 1)
	assert.Equal(t, "alice", evolved.Data.TopContributors[0].UserID)

	rec = do(router, http.MethodGet, "/evolution/cycles/c1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		Data Cycle `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, StateCompleted, status.Data.State)

	rec = do(router, http.MethodPost, "/evolve", `{"cycle_id":"c1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandler_FineTuneDefaultsToTrue(t *testing.T) {
	router, f := newTestRouter(t)

	require.Equal(t, http.StatusCreated, do(router, http.MethodPost, "/evolution/cycles", `{"cycle_id":"c1"}`).Code)
	f.record(t, "alice", "hello")

	rec := do(router, http.MethodPost, "/evolve", `{"cycle_id":"c1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"artifact_id":"lora-1"`)
	assert.Len(t, f.trainer.reqs, 1)
}

func TestHandler_Errors(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown cycle status", http.MethodGet, "/evolution/cycles/nope", "", http.StatusNotFound},
		{"unknown cycle evolve", http.MethodPost, "/evolve", `{"cycle_id":"nope"}`, http.StatusConflict},
		{"missing cycle id", http.MethodPost, "/evolve", `{}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/evolve", `{"cycle_id":"c1","extra":1}`, http.StatusBadRequest},
		{"slash in cycle id", http.MethodPost, "/evolution/cycles", `{"cycle_id":"a/b"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}
