package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokens(t *testing.T) *TokenService {
	t.Helper()
	priv, pub, err := GenerateKeyPair(2048)
	require.NoError(t, err)
	return NewTokenServiceWithKeys(priv, pub, &Config{
		Issuer:     "cryptobook",
		Audience:   "cryptobook-api",
		Expiration: time.Hour,
	})
}

func TestTokenService_RoundTrip(t *testing.T) {
	svc := newTestTokens(t)
	tok, err := svc.GenerateToken("7", "ada", []string{"writer"})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "7", claims.Subject)
	assert.Equal(t, "ada", claims.Username)
	assert.True(t, claims.HasAnyRole("admin", "writer"))
	assert.False(t, claims.HasAnyRole("admin"))
}

func TestTokenService_RejectsForeignKey(t *testing.T) {
	a := newTestTokens(t)
	b := newTestTokens(t)
	tok, err := a.GenerateToken("1", "ada", []string{"admin"})
	require.NoError(t, err)

	_, err = b.ValidateToken(tok)
	assert.Error(t, err)
}

func TestTokenService_RejectsWrongAudience(t *testing.T) {
	priv, pub, err := GenerateKeyPair(2048)
	require.NoError(t, err)
	issuer := NewTokenServiceWithKeys(priv, pub, &Config{Issuer: "cryptobook", Audience: "other", Expiration: time.Hour})
	verifier := NewTokenServiceWithKeys(nil, pub, &Config{Issuer: "cryptobook", Audience: "cryptobook-api"})

	tok, err := issuer.GenerateToken("1", "ada", []string{"admin"})
	require.NoError(t, err)
	_, err = verifier.ValidateToken(tok)
	assert.Error(t, err)

	_, err = verifier.GenerateToken("1", "ada", nil)
	assert.Error(t, err)
}

func TestGate_Open(t *testing.T) {
	g := NewGate(nil, "")
	assert.True(t, g.Open())
	assert.True(t, g.Resolve("anything", "").Can(CapUserWrite))
}

func TestGate_AdminHost(t *testing.T) {
	g := NewGate(nil, "admin.cryptobook.dev")

	assert.True(t, g.Resolve("admin.cryptobook.dev", "").Can(CapUserWrite))
	assert.True(t, g.Resolve("ADMIN.cryptobook.dev:4000", "").Can(CapUserWrite))
	assert.False(t, g.Resolve("cryptobook.dev", "").Can(CapUserWrite))
}

func TestGate_BearerToken(t *testing.T) {
	svc := newTestTokens(t)
	g := NewGate(svc, "")

	writer, err := svc.GenerateToken("1", "ada", []string{"writer"})
	require.NoError(t, err)
	reader, err := svc.GenerateToken("2", "bob", []string{"reader"})
	require.NoError(t, err)

	p := g.Resolve("localhost", "Bearer "+writer)
	assert.Equal(t, "1", p.Subject)
	assert.True(t, p.Can(CapUserWrite))

	assert.False(t, g.Resolve("localhost", "Bearer "+reader).Can(CapUserWrite))
	assert.False(t, g.Resolve("localhost", "Bearer garbage").Can(CapUserWrite))
	assert.False(t, g.Resolve("localhost", writer).Can(CapUserWrite))
}

func TestRequire(t *testing.T) {
	assert.ErrorIs(t, Require(context.Background(), CapUserWrite), ErrUnauthorized)

	g := NewGate(nil, "admin")
	denied := WithPrincipal(context.Background(), g.Resolve("public", ""))
	assert.ErrorIs(t, Require(denied, CapUserWrite), ErrUnauthorized)

	granted := WithPrincipal(context.Background(), g.Resolve("admin", ""))
	assert.NoError(t, Require(granted, CapUserWrite))
}

func TestGate_Middleware(t *testing.T) {
	g := NewGate(nil, "admin")

	var got *Principal
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "http://admin/graphql", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, got)
	assert.Equal(t, "admin", got.Host)
	assert.True(t, got.Can(CapUserWrite))
}
