package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityServer(t *testing.T, handler http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestHTTPValidatorValidToken(t *testing.T) {
	t.Parallel()
	url := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req validateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Token == "valid-token" {
			_ = json.NewEncoder(w).Encode(validateResponse{Valid: true, PlayerID: "p-123", Username: "alice"})
			return
		}
		_ = json.NewEncoder(w).Encode(validateResponse{Valid: false})
	})

	v := NewHTTPValidator(url, "")
	id, err := v.Validate(context.Background(), "valid-token")
	require.NoError(t, err)
	assert.Equal(t, &Identity{PlayerID: "p-123", Username: "alice"}, id)

	_, err = v.Validate(context.Background(), "other")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHTTPValidatorDefaultsUsername(t *testing.T) {
	t.Parallel()
	url := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(validateResponse{Valid: true, PlayerID: "p-9"})
	})

	id, err := NewHTTPValidator(url, "").Validate(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, "p-9", id.Username)
}

func TestHTTPValidatorEmptyToken(t *testing.T) {
	t.Parallel()
	_, err := NewHTTPValidator("http://localhost:9999", "").Validate(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHTTPValidatorStatusCodes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrInvalidToken},
		{"forbidden", http.StatusForbidden, ErrInvalidToken},
		{"rate limited", http.StatusTooManyRequests, ErrUnavailable},
		{"server error", http.StatusInternalServerError, ErrUnavailable},
		{"service unavailable", http.StatusServiceUnavailable, ErrUnavailable},
		{"unexpected", http.StatusTeapot, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			})
			_, err := NewHTTPValidator(url, "").Validate(context.Background(), "token")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHTTPValidatorTimeout(t *testing.T) {
	t.Parallel()
	url := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	_, err := NewHTTPValidator(url, "").Validate(context.Background(), "token")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPValidatorAdminSecret(t *testing.T) {
	t.Parallel()
	got := make(chan string, 1)
	url := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("X-Admin-Secret")
		_ = json.NewEncoder(w).Encode(validateResponse{Valid: true, PlayerID: "p"})
	})

	_, err := NewHTTPValidator(url, "my-secret").Validate(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "my-secret", <-got)
}

func TestHTTPValidatorMalformedJSON(t *testing.T) {
	t.Parallel()
	url := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	})

	_, err := NewHTTPValidator(url, "").Validate(context.Background(), "token")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPValidatorNetworkError(t *testing.T) {
	t.Parallel()
	_, err := NewHTTPValidator("http://localhost:1", "").Validate(context.Background(), "token")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNoopValidator(t *testing.T) {
	t.Parallel()
	for _, token := range []string{"any-token", ""} {
		id, err := NewNoopValidator().Validate(context.Background(), token)
		require.NoError(t, err)
		assert.Nil(t, id)
	}
}
