package apperr

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindAndStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   string
		status int
	}{
		{"validation", Validation("item_name required"), "validation", http.StatusBadRequest},
		{"not found", NotFound("quotation 7"), "not_found", http.StatusNotFound},
		{"conflict", Conflict("item in use"), "conflict", http.StatusConflict},
		{"unauthorized", Unauthorized("invalid token"), "unauthorized", http.StatusUnauthorized},
		{"upstream", Upstream("store image", errors.New("dial tcp: refused")), "upstream_storage", http.StatusBadGateway},
		{"plain", errors.New("boom"), "internal", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, Kind(tt.err))
			assert.Equal(t, tt.status, Status(tt.err))
		})
	}
}

func TestRetryableConflict(t *testing.T) {
	err := RetryableConflict("catalog name taken", errors.New("UNIQUE constraint failed"))
	assert.True(t, Is(err, ErrConflict))
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(Conflict("item in use")))
	assert.Contains(t, err.Error(), "catalog name taken")
}
