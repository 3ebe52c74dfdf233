package handlers

import (
	"net/http"

	"github.com/carebook/carebook/libs/httpx"
	"github.com/carebook/carebook/services/schedule-service/internal/gate"
)

// Register mounts the API on mux. Every route sits behind the gate; schedule
// management additionally needs the provider role. mw wraps each authenticated
// route (rate limiting keyed by caller).
func Register(mux *http.ServeMux, h *ScheduleHandler, g *gate.Gate, mw httpx.Middleware) {
	if mw == nil {
		mw = func(next http.Handler) http.Handler { return next }
	}
	authed := func(next http.Handler) http.Handler { return g.Require(mw(next)) }
	provider := func(fn http.HandlerFunc) http.Handler {
		return authed(gate.RequireRole(fn, gate.RoleProvider))
	}

	mux.Handle("POST /api/v1/schedules", provider(h.Create))
	mux.Handle("GET /api/v1/schedules", provider(h.List))
	mux.Handle("PATCH /api/v1/schedules/{id}", provider(h.UpdateStatus))
	mux.Handle("DELETE /api/v1/schedules/{id}", provider(h.Delete))
	mux.Handle("GET /api/v1/providers/available", authed(http.HandlerFunc(h.AvailableProviders)))
	mux.Handle("POST /api/v1/session/revoke", authed(g.RevokeHandler()))
}
