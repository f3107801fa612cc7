// Package auth decides who may call mutating operations. A Gate turns the
// request's bearer token and Host header into a Principal; resolvers check
// capabilities on the Principal carried in the context.
package auth

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/alim08/cryptobook/pkg/logger"
	"github.com/alim08/cryptobook/pkg/metrics"
	"go.uber.org/zap"
)

// ErrUnauthorized is returned when the caller lacks a required capability.
var ErrUnauthorized = errors.New("unauthorized")

// Capability names one privileged action.
type Capability string

const CapUserWrite Capability = "user:write"

// writerRoles are the token roles that grant CapUserWrite.
var writerRoles = []string{"admin", "writer"}

// Principal is the caller of one request.
type Principal struct {
	Subject string
	Host    string
	Roles   []string
	caps    map[Capability]bool
}

// Can reports whether p holds c.
func (p *Principal) Can(c Capability) bool {
	return p != nil && p.caps[c]
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal attached by the gate, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}

// Require fails with ErrUnauthorized unless the context's principal holds c.
func Require(ctx context.Context, c Capability) error {
	p, _ := PrincipalFrom(ctx)
	if !p.Can(c) {
		metrics.AuthDecisions.WithLabelValues(string(c), "denied").Inc()
		return ErrUnauthorized
	}
	metrics.AuthDecisions.WithLabelValues(string(c), "granted").Inc()
	return nil
}

// Gate builds principals. With neither tokens nor an admin host configured
// it is open and every caller holds every capability.
type Gate struct {
	tokens    *TokenService
	adminHost string
}

// NewGate creates a gate. tokens may be nil.
func NewGate(tokens *TokenService, adminHost string) *Gate {
	return &Gate{tokens: tokens, adminHost: strings.ToLower(stripPort(adminHost))}
}

// Open reports whether the gate grants everything.
func (g *Gate) Open() bool {
	return g.tokens == nil && g.adminHost == ""
}

// Resolve derives the principal for a request from its Host header and
// Authorization value. An invalid token yields an anonymous principal
// rather than an error; the capability check rejects it later.
func (g *Gate) Resolve(host, authorization string) *Principal {
	p := &Principal{
		Subject: "anonymous",
		Host:    host,
		caps:    make(map[Capability]bool),
	}
	if g.Open() {
		p.caps[CapUserWrite] = true
		return p
	}

	if g.adminHost != "" && strings.EqualFold(stripPort(host), g.adminHost) {
		p.caps[CapUserWrite] = true
	}

	if g.tokens != nil && authorization != "" {
		tokenString, ok := bearer(authorization)
		if !ok {
			metrics.AuthTokenErrors.WithLabelValues("invalid_format").Inc()
			return p
		}
		claims, err := g.tokens.ValidateToken(tokenString)
		if err != nil {
			logger.Log.Warn("token validation failed", zap.Error(err), zap.String("host", host))
			return p
		}
		p.Subject = claims.Subject
		p.Roles = claims.Roles
		if claims.HasAnyRole(writerRoles...) {
			p.caps[CapUserWrite] = true
		}
	}
	return p
}

// Middleware attaches the request's principal to its context.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := g.Resolve(r.Host, r.Header.Get("Authorization"))
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func bearer(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
