package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/toolkeeper/internal/storage"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(storage.NewMemoryStorage(), "test-secret", time.Hour, nil)
}

func TestRegisterAndLogin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	creds := Credentials{Username: " alice ", Password: "correct horse"}

	require.NoError(t, s.Register(ctx, creds))
	assert.True(t, errors.Is(s.Register(ctx, creds), ErrUserExists))

	token, err := s.Login(ctx, Credentials{Username: "alice", Password: "correct horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, time.Minute)

	username, err := s.Verify(token.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)

	_, err = s.Login(ctx, Credentials{Username: "alice", Password: "wrong password"})
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
	_, err = s.Login(ctx, Credentials{Username: "bob", Password: "correct horse"})
	assert.True(t, errors.Is(err, ErrInvalidCredentials))
}

func TestRegister_validation(t *testing.T) {
	s := newService(t)
	err := s.Register(context.Background(), Credentials{Username: "al", Password: "short"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"username", "password"}, verr.Fields)
}

func TestRegister_passwordByteLength(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	// 40 runes but 80 bytes.
	err := s.Register(ctx, Credentials{Username: "alice", Password: strings.Repeat("é", 40)})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, []string{"password"}, verr.Fields)

	require.NoError(t, s.Register(ctx, Credentials{Username: "alice", Password: strings.Repeat("é", 36)}))
}

func TestVerify_rejects(t *testing.T) {
	s := newService(t)
	token, err := s.Issue("alice")
	require.NoError(t, err)

	other := NewService(storage.NewMemoryStorage(), "other-secret", time.Hour, nil)
	_, err = other.Verify(token.Token)
	assert.True(t, errors.Is(err, ErrInvalidToken), "wrong secret")

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Verify(token.Token)
	assert.True(t, errors.Is(err, ErrInvalidToken), "expired")

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "alice"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.Verify(none)
	assert.True(t, errors.Is(err, ErrInvalidToken), "alg none")

	_, err = s.Verify("garbage")
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestMiddleware(t *testing.T) {
	s := newService(t)
	token, err := s.Issue("alice")
	require.NoError(t, err)

	var seen string
	handler := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UsernameFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"invalid", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token.Token, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/tools", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, "alice", seen)
}
