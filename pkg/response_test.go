package pkg

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MapsSentinelsToStatus(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"not found", fmt.Errorf("%w: chat not found", ErrNotFound), http.StatusNotFound, "not found: chat not found"},
		{"forbidden", fmt.Errorf("%w: not a member", ErrForbidden), http.StatusForbidden, "forbidden: not a member"},
		{"bad request", fmt.Errorf("%w: empty message", ErrBadRequest), http.StatusBadRequest, "bad request: empty message"},
		{"conflict", fmt.Errorf("%w: member", ErrAlreadyExists), http.StatusConflict, "already exists: member"},
		{"unknown hides detail", errors.New("disk I/O error"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var resp APIResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.message, resp.Error)
			assert.Empty(t, rec.Header().Get("Retry-After"))
		})
	}
}

func TestError_RateLimitSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, fmt.Errorf("send message: %w", &RateLimitError{RetryAfterSeconds: 7}))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "7", rec.Header().Get("Retry-After"))
}

func TestJSON_WrapsDataInEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, map[string]string{"id": "c1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"id":"c1"}}`, rec.Body.String())
}
