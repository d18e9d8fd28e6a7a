package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obelisk-core/obelisk/internal/failure"
)

func TestHandleError_MapsKinds(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		kind    failure.Kind
		message string
	}{
		{"validation", failure.New(failure.KindValidation, "op", "query is required"), http.StatusBadRequest, failure.KindValidation, "query is required"},
		{"not found", failure.New(failure.KindNotFound, "op", "cycle c1 not found"), http.StatusNotFound, failure.KindNotFound, "cycle c1 not found"},
		{"cycle", failure.New(failure.KindCycle, "op", "cycle c1 failed"), http.StatusConflict, failure.KindCycle, "cycle c1 failed"},
		{"conflict", failure.New(failure.KindConflict, "op", "busy"), http.StatusConflict, failure.KindConflict, "busy"},
		{"inference", failure.New(failure.KindInference, "op", "all backends failed"), http.StatusBadGateway, failure.KindInference, "all backends failed"},
		{"timeout", failure.New(failure.KindTimeout, "op", "deadline"), http.StatusGatewayTimeout, failure.KindTimeout, "deadline"},
		{"persistence hides detail", failure.Wrap(failure.KindPersistence, "op", errors.New("pq: secret table")), http.StatusInternalServerError, failure.KindPersistence, "Internal Server Error"},
		{"untyped", errors.New("boom"), http.StatusInternalServerError, failure.KindInternal, "Internal Server Error"},
		{"app error", NewBadRequestError("invalid JSON body"), http.StatusBadRequest, failure.KindValidation, "invalid JSON body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleError(rec, tt.err)
			assert.Equal(t, tt.status, rec.Code)

			var body Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.kind, body.Kind)
			assert.Equal(t, tt.message, body.Error)
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Query string `json:"query"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, DecodeJSON(req, &v))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":"hi"}`))
	require.NoError(t, DecodeJSON(req, &v))
	assert.Equal(t, "hi", v.Query)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nope":1}`))
	err := DecodeJSON(req, &v)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.Code)
}
