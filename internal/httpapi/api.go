// Package httpapi exposes the back-office auth service over HTTP: login and
// session management, permission checks, user administration, the audit feed
// and operational probes.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/core"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/identity"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/obs"
)

// ReadyProbe reports whether the service can serve traffic, typically by
// pinging the database.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Limits controls the protective middleware. Zero values fall back to
// sensible defaults.
type Limits struct {
	MaxBodyBytes   int64
	RateBurst      int
	RatePerSecond  int
	AllowedOrigins []string
}

func (l Limits) withDefaults() Limits {
	if l.MaxBodyBytes <= 0 {
		l.MaxBodyBytes = 1 << 20
	}
	if l.RateBurst <= 0 {
		l.RateBurst = 40
	}
	if l.RatePerSecond <= 0 {
		l.RatePerSecond = 20
	}
	return l
}

// API is the HTTP layer over the core service.
type API struct {
	mux        *http.ServeMux
	svc        *core.Service
	provider   identity.Provider
	readyProbe ReadyProbe
	limits     Limits
	version    string
}

func New(svc *core.Service, provider identity.Provider, rp ReadyProbe, limits Limits, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		provider:   provider,
		readyProbe: rp,
		limits:     limits.withDefaults(),
		version:    version,
	}

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("/v1/permissions/check", a.handleCheckPermission)
	a.mux.HandleFunc("/v1/access/validate", a.handleValidateAccess)
	a.mux.HandleFunc("/v1/sessions/end-all", a.handleEndAllSessions)
	a.mux.HandleFunc("/v1/system/initialize", a.handleInitialize)
	a.mux.HandleFunc("/v1/activity", a.handleActivity)
	a.mux.HandleFunc("/v1/users", a.handleUsersCollection)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)
	a.mux.HandleFunc("/v1/audit", a.handleAudit)

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.limits.MaxBodyBytes)
	h = RateLimit(h, a.limits.RateBurst, a.limits.RatePerSecond)
	h = CORS(h, a.limits.AllowedOrigins)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "snacks-auth",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "snacks-auth",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
