package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/audit"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/auth"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/core"
)

type createUserRequest struct {
	Email       string           `json:"email"`
	Password    string           `json:"password"`
	UserName    string           `json:"user_name"`
	FullName    string           `json:"full_name"`
	Role        auth.Role        `json:"role,omitempty"`
	Permissions auth.Permissions `json:"permissions,omitempty"`
	ReleaseDate *time.Time       `json:"release_date,omitempty"`
	WhatsApp    string           `json:"whatsapp,omitempty"`
	Phone       string           `json:"phone,omitempty"`
}

func (a *API) handleUsersCollection(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req createUserRequest
		if err := decodeJSON(r, &req); err != nil {
			badJSON(w, r, err)
			return
		}
		user, err := a.svc.CreateUser(r.Context(), uid, core.CreateUserRequest{
			Email:       req.Email,
			Password:    req.Password,
			UserName:    req.UserName,
			FullName:    req.FullName,
			Role:        req.Role,
			Permissions: req.Permissions,
			ReleaseDate: req.ReleaseDate,
			WhatsApp:    req.WhatsApp,
			Phone:       req.Phone,
		})
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	case http.MethodGet:
		users, err := a.svc.ListUsers(r.Context(), uid)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": users})
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

type updateUserRequest struct {
	Email            *string           `json:"email,omitempty"`
	UserName         *string           `json:"user_name,omitempty"`
	FullName         *string           `json:"full_name,omitempty"`
	Role             *auth.Role        `json:"role,omitempty"`
	Available        *bool             `json:"available,omitempty"`
	Permissions      *auth.Permissions `json:"permissions,omitempty"`
	ReleaseDate      *time.Time        `json:"release_date,omitempty"`
	ClearReleaseDate bool              `json:"clear_release_date,omitempty"`
	WhatsApp         *string           `json:"whatsapp,omitempty"`
	Phone            *string           `json:"phone,omitempty"`
}

// handleUserResource serves /v1/users/{id} and /v1/users/{id}/sessions.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	targetID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			user, err := a.svc.GetUser(r.Context(), uid, targetID)
			if err != nil {
				writeAuthError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, user)
		case http.MethodPatch:
			var req updateUserRequest
			if err := decodeJSON(r, &req); err != nil {
				badJSON(w, r, err)
				return
			}
			user, err := a.svc.UpdateUser(r.Context(), uid, targetID, auth.UserUpdate{
				Email:            req.Email,
				UserName:         req.UserName,
				FullName:         req.FullName,
				Role:             req.Role,
				Available:        req.Available,
				Permissions:      req.Permissions,
				ReleaseDate:      req.ReleaseDate,
				ClearReleaseDate: req.ClearReleaseDate,
				WhatsApp:         req.WhatsApp,
				Phone:            req.Phone,
			})
			if err != nil {
				writeAuthError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, user)
		default:
			methodNotAllowed(w, r, "GET, PATCH")
		}
	case len(parts) == 2 && parts[1] == "sessions":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		activeOnly := r.URL.Query().Get("active") == "true"
		sessions, err := a.svc.ListUserSessions(r.Context(), uid, targetID, activeOnly)
		if err != nil {
			writeAuthError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	uid, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	q := r.URL.Query()
	f := audit.Filter{
		UserID:   strings.TrimSpace(q.Get("user_id")),
		Resource: strings.TrimSpace(q.Get("resource")),
		Severity: audit.Severity(strings.TrimSpace(q.Get("severity"))),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		f.Limit = n
	}
	if f.Severity != "" && !audit.ValidSeverity(f.Severity) {
		writeError(w, r, http.StatusBadRequest, "unknown severity")
		return
	}
	entries, err := a.svc.ListAudit(r.Context(), uid, f)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
