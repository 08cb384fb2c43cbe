package json

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteResponse(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteResponse(w, http.StatusAccepted, map[string]string{"state": "generating"}))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"state":"generating"}`, w.Body.String())
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name       string
		write      func(http.ResponseWriter, string)
		wantStatus int
		wantError  string
	}{
		{"unauthorized", WriteUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"bad request", WriteBadRequest, http.StatusBadRequest, "bad_request"},
		{"forbidden", WriteForbidden, http.StatusForbidden, "forbidden"},
		{"not found", WriteNotFound, http.StatusNotFound, "not_found"},
		{"conflict", WriteConflict, http.StatusConflict, "conflict"},
		{"unprocessable", WriteUnprocessable, http.StatusUnprocessableEntity, "unprocessable_entity"},
		{"bad gateway", WriteBadGateway, http.StatusBadGateway, "bad_gateway"},
		{"internal", WriteInternalServerError, http.StatusInternalServerError, "internal_server_error"},
		{"unavailable", WriteServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w, "details")

			assert.Equal(t, tt.wantStatus, w.Code)
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.wantError, body.Error)
			assert.Equal(t, "details", body.Message)
		})
	}
}
