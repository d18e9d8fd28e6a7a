package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obelisk-core/obelisk/internal/memory"
)

func TestHTTPModel_Generate(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/generate", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "a</think>b", "tokens": []int{1, 151668, 2}})
	}))
	defer srv.Close()

	m := NewHTTPModel(srv.URL+"/", "secret", time.Second, nil)
	out, err := m.Generate(context.Background(), Request{
		Query:         "hi",
		Messages:      []memory.Message{{Role: memory.RoleUser, Content: "before"}},
		MemorySummary: "- fact",
		Influence:     0.4,
		Temperature:   0.76,
		MaxTokens:     64,
	})
	require.NoError(t, err)
	assert.Equal(t, "a</think>b", out.Text)
	assert.Equal(t, []int{1, 151668, 2}, out.Tokens)

	assert.Equal(t, "hi", got.Query)
	assert.Equal(t, "- fact", got.MemorySummary)
	assert.Equal(t, 0.4, got.Influence)
	assert.Equal(t, 64, got.MaxTokens)
	assert.Len(t, got.Messages, 1)
}

func TestHTTPModel_GenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{"))
		}},
		{"empty generation", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"text":"","tokens":[]}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPModel(srv.URL, "", time.Second, nil).Generate(context.Background(), Request{Query: "q"})
			assert.Error(t, err)
		})
	}
}

func TestHTTPModel_Decode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/detokenize", r.URL.Path)
		var body struct {
			Tokens []int `json:"tokens"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []int{7, 8}, body.Tokens)
		_, _ = w.Write([]byte(`{"text":"hello"}`))
	}))
	defer srv.Close()

	m := NewHTTPModel(srv.URL, "", time.Second, nil)
	text, err := m.Decode(context.Background(), []int{7, 8})
	require.NoError(t, err)
	assert.Equal(t, "hello", text)

	text, err = m.Decode(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestHTTPModel_Ready(t *testing.T) {
	loaded := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"model_loaded": loaded})
	}))
	defer srv.Close()

	m := NewHTTPModel(srv.URL, "", time.Second, nil)
	assert.NoError(t, m.Ready(context.Background()))

	loaded = false
	assert.Error(t, m.Ready(context.Background()))
}

func TestHTTPModel_HonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewHTTPModel(srv.URL, "", 0, nil).Generate(ctx, Request{Query: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
