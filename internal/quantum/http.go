package quantum

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// HTTPSource draws from a remote quantum backend or QRNG gateway.
//
// GET {url}?qubits=N&shots=M must answer with either {"value": x} or a
// measurement histogram {"counts": {"01": k, ...}}.
type HTTPSource struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPSource creates a remote randomness source. A nil client uses
// http.DefaultClient; deadlines come from the caller's context.
func NewHTTPSource(endpoint, apiKey string, client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{url: endpoint, apiKey: apiKey, client: client}
}

type drawResponse struct {
	Value  *float64       `json:"value"`
	Counts map[string]int `json:"counts"`
}

func (s *HTTPSource) Draw(ctx context.Context, qubits, shots int) (float64, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return 0, fmt.Errorf("parsing quantum url: %w", err)
	}
	q := u.Query()
	q.Set("qubits", strconv.Itoa(qubits))
	q.Set("shots", strconv.Itoa(shots))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("building quantum request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling quantum backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("quantum backend returned %d: %s", resp.StatusCode, body)
	}

	var dr drawResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return 0, fmt.Errorf("decoding quantum response: %w", err)
	}

	switch {
	case dr.Value != nil:
		if *dr.Value < 0 || *dr.Value > 1 {
			return 0, fmt.Errorf("quantum value %g outside [0,1]", *dr.Value)
		}
		return *dr.Value, nil
	case len(dr.Counts) > 0:
		return ReduceCounts(dr.Counts, qubits)
	default:
		return 0, fmt.Errorf("quantum response carried neither value nor counts")
	}
}
