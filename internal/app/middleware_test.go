package app

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/atmos-esg/atmos/internal/shared"
)

func newTokenAuth(t *testing.T, token string) *TokenAuth {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTokenAuth(logger, string(hash))
}

func TestTokenAuthAcceptsValidToken(t *testing.T) {
	auth := newTokenAuth(t, "s3cret")

	var gotActor string
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/companies", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	req.Header.Set("X-Actor-ID", "analyst-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "analyst-1", gotActor)
}

func TestTokenAuthRejectsBadToken(t *testing.T) {
	auth := newTokenAuth(t, "s3cret")
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	for _, header := range []string{"", "Bearer wrong", "Basic s3cret", "s3cret"} {
		req := httptest.NewRequest(http.MethodGet, "/companies", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, "header %q", header)
		assert.Equal(t, "Bearer", rr.Header().Get("WWW-Authenticate"))
	}
}

func TestTokenAuthMemoisesVerification(t *testing.T) {
	auth := newTokenAuth(t, "s3cret")
	require.True(t, auth.verify("s3cret"))
	require.Len(t, auth.granted, 1)

	// Second call hits the memo, not bcrypt.
	auth.tokenHash = "garbage"
	assert.True(t, auth.verify("s3cret"))
	assert.False(t, auth.verify("other"))
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", bearerToken(req))

	req.Header.Set("Authorization", "Bearer abc ")
	assert.Equal(t, "abc", bearerToken(req))
}
