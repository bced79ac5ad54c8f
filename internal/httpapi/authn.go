package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/auth"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/identity"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/system/initialize",
	"/v1/permissions/check",
	"/v1/access/validate",
	"/v1/info",
	"/metrics",
	"/healthz",
	"/readyz",
}

// withAuth verifies the bearer token for protected routes and attaches the
// caller identity to the request context. Public routes pass through; the
// permission-check and access-validation handlers do their own token work so
// they can fail closed instead of rejecting the request outright.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		id, err := a.provider.VerifyToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			} else {
				writeAuthError(w, r, err)
			}
			return
		}

		ctx := auth.ContextWithCaller(r.Context(), id.UID)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerUID returns the verified caller for the request, or "" for anonymous
// callers on public routes.
func (a *API) callerUID(r *http.Request) string {
	if uid, ok := auth.CallerFromContext(r.Context()); ok {
		return uid
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		return ""
	}
	id, err := a.provider.VerifyToken(r.Context(), token)
	if err != nil {
		return ""
	}
	return id.UID
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
