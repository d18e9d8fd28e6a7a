package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/obelisk-core/obelisk/internal/memory"
)

// HTTPModel is a client for the model server that hosts the primary model.
//
//	POST /v1/generate    Request           -> {"text", "tokens"}
//	POST /v1/detokenize  {"tokens"}        -> {"text"}
//	GET  /health                           -> {"model_loaded"}
type HTTPModel struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPModel creates a model server client. A nil client gets one with
// the given timeout.
func NewHTTPModel(baseURL, apiKey string, timeout time.Duration, client *http.Client) *HTTPModel {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &HTTPModel{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

func (m *HTTPModel) Name() string { return "model-server" }

type generateResponse struct {
	Text   string `json:"text"`
	Tokens []int  `json:"tokens"`
}

func (m *HTTPModel) Generate(ctx context.Context, req Request) (Output, error) {
	if req.Messages == nil {
		req.Messages = []memory.Message{}
	}
	var resp generateResponse
	if err := m.post(ctx, "/v1/generate", req, &resp); err != nil {
		return Output{}, err
	}
	if resp.Text == "" && len(resp.Tokens) == 0 {
		return Output{}, fmt.Errorf("model server returned an empty generation")
	}
	return Output{Text: resp.Text, Tokens: resp.Tokens}, nil
}

func (m *HTTPModel) Decode(ctx context.Context, tokens []int) (string, error) {
	if len(tokens) == 0 {
		return "", nil
	}
	var resp struct {
		Text string `json:"text"`
	}
	if err := m.post(ctx, "/v1/detokenize", map[string][]int{"tokens": tokens}, &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (m *HTTPModel) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}
	m.authorize(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling model server health: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server health returned %d", resp.StatusCode)
	}
	var body struct {
		ModelLoaded *bool `json:"model_loaded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding model server health: %w", err)
	}
	if body.ModelLoaded != nil && !*body.ModelLoaded {
		return fmt.Errorf("model not loaded")
	}
	return nil
}

func (m *HTTPModel) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	m.authorize(req)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling model server %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("model server %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (m *HTTPModel) authorize(req *http.Request) {
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}
}
