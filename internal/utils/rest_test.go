package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
	}{
		{name: "bad request", code: http.StatusBadRequest, message: "Invalid input"},
		{name: "unauthorized", code: http.StatusUnauthorized, message: "Authentication required"},
		{name: "internal server error", code: http.StatusInternalServerError, message: "Something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			RespondWithError(w, tt.code, tt.message)

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body.Error)
			assert.Empty(t, body.Code)
		})
	}
}

func TestRespondWithErrorCode(t *testing.T) {
	w := httptest.NewRecorder()
	RespondWithErrorCode(w, http.StatusPaymentRequired, "cost_limit_exceeded", "The assistant is unavailable right now.")

	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "cost_limit_exceeded", body.Code)
}
