package gate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/carebook/carebook/libs/auth"
	"github.com/carebook/carebook/libs/httpx"
)

const (
	RoleProvider = "provider"
	RolePatient  = "patient"
)

// Caller is the authenticated identity behind a request.
type Caller struct {
	ID        string
	Role      string
	Token     string
	ExpiresAt time.Time
}

type ctxKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(ctxKey{}).(Caller)
	return c, ok
}

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

// Gate authenticates bearer tokens and rejects revoked ones.
type Gate struct {
	verifier TokenVerifier
	revoked  auth.RevocationList
	logger   *slog.Logger
}

func New(verifier TokenVerifier, revoked auth.RevocationList, logger *slog.Logger) *Gate {
	return &Gate{verifier: verifier, revoked: revoked, logger: logger}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="schedule-service"`)
	httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", msg)
}

// Require lets a request through only with a valid, unrevoked token. A revocation
// lookup failure fails closed.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			unauthorized(w, "missing or invalid Authorization header")
			return
		}
		claims, err := g.verifier.Verify(r.Context(), token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "token expired"
			}
			unauthorized(w, msg)
			return
		}

		if g.revoked != nil {
			revoked, err := g.revoked.IsRevoked(r.Context(), token)
			if err != nil {
				g.logger.ErrorContext(r.Context(), "revocation lookup failed", "err", err)
				httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable", "identity check unavailable")
				return
			}
			if revoked {
				unauthorized(w, "token revoked")
				return
			}
		}

		caller := Caller{ID: claims.Sub, Role: claims.Role, Token: token, ExpiresAt: claims.ExpiresAt()}
		httpx.AnnotateLog(r.Context(), "caller_id", caller.ID, "caller_role", caller.Role)
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// RequireRole must run behind Require.
func RequireRole(next http.Handler, roles ...string) http.Handler {
	allowed := map[string]struct{}{}
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			unauthorized(w, "unauthenticated")
			return
		}
		if _, ok := allowed[caller.Role]; !ok {
			httpx.WriteError(w, http.StatusForbidden, "forbidden", "forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RevokeHandler invalidates the presented token for the rest of its lifetime.
func (g *Gate) RevokeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			unauthorized(w, "unauthenticated")
			return
		}
		if g.revoked == nil {
			httpx.WriteError(w, http.StatusServiceUnavailable, "unavailable", "revocation not configured")
			return
		}
		if err := g.revoked.Revoke(r.Context(), caller.Token, caller.ID, caller.ExpiresAt); err != nil {
			g.logger.ErrorContext(r.Context(), "revoke failed", "err", err, "caller_id", caller.ID)
			httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// RateLimitKey keys rate limiting by caller, falling back to the client address.
func RateLimitKey(r *http.Request) string {
	if c, ok := CallerFromContext(r.Context()); ok {
		return "caller:" + c.ID
	}
	return "ip:" + httpx.ClientIP(r)
}
