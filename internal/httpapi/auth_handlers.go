package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/auth"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/core"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Device   string `json:"device,omitempty"`
	Location string `json:"location,omitempty"`
}

type loginResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Session   *auth.Session `json:"session"`
	User      *auth.User    `json:"user"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		badJSON(w, r, err)
		return
	}
	res, err := a.svc.Login(r.Context(), core.LoginRequest{
		Email:     req.Email,
		Password:  req.Password,
		Device:    req.Device,
		UserAgent: r.UserAgent(),
		IPAddress: clientIP(r),
		Location:  req.Location,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt,
		Session:   res.Session,
		User:      res.User,
	})
}

type logoutRequest struct {
	SessionID string `json:"session_id"`
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	uid, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req logoutRequest
	if err := decodeJSON(r, &req); err != nil {
		badJSON(w, r, err)
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeError(w, r, http.StatusBadRequest, "session_id is required")
		return
	}
	if err := a.svc.Logout(r.Context(), uid, req.SessionID); err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type checkPermissionRequest struct {
	Resource  string `json:"resource"`
	Operation string `json:"operation"`
}

// handleCheckPermission is the fail-closed yes/no check used by UI gating.
// Anonymous, expired or malformed credentials all produce a plain
// {"hasPermission": false} with status 200.
func (a *API) handleCheckPermission(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req checkPermissionRequest
	if err := decodeJSON(r, &req); err != nil {
		badJSON(w, r, err)
		return
	}
	uid := a.callerUID(r)
	allowed := a.svc.CheckPermission(r.Context(), uid, req.Resource, req.Operation)
	writeJSON(w, http.StatusOK, map[string]any{"hasPermission": allowed})
}

// handleValidateAccess is the strict variant: it reports why access failed
// through the status code and records an audit entry on success.
func (a *API) handleValidateAccess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := a.provider.VerifyToken(r.Context(), token)
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return
	}

	q := r.URL.Query()
	resource := strings.TrimSpace(q.Get("resource"))
	operation := strings.TrimSpace(q.Get("operation"))
	resourceID := strings.TrimSpace(q.Get("resourceId"))

	if err := a.svc.ValidateAccess(r.Context(), id.UID, resource, operation, resourceID); err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hasAccess": true})
}

type endAllSessionsRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason,omitempty"`
}

func (a *API) handleEndAllSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	uid, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req endAllSessionsRequest
	if err := decodeJSON(r, &req); err != nil {
		badJSON(w, r, err)
		return
	}
	target := strings.TrimSpace(req.UserID)
	if target == "" {
		target = uid
	}
	count, err := a.svc.EndAllSessions(r.Context(), uid, target, req.Reason)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "count": count})
}

type initializeRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	UserName string `json:"user_name"`
	WhatsApp string `json:"whatsapp"`
	Phone    string `json:"phone,omitempty"`
}

func (a *API) handleInitialize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req initializeRequest
	if err := decodeJSON(r, &req); err != nil {
		badJSON(w, r, err)
		return
	}
	uid, err := a.svc.InitializeSystem(r.Context(), core.InitializeRequest{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		UserName: req.UserName,
		WhatsApp: req.WhatsApp,
		Phone:    req.Phone,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "uid": uid})
}

type activityRequest struct {
	Action     string            `json:"action"`
	Resource   string            `json:"resource"`
	ResourceID string            `json:"resource_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	Success    *bool             `json:"success,omitempty"`
}

func (a *API) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	uid, ok := auth.CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req activityRequest
	if err := decodeJSON(r, &req); err != nil {
		badJSON(w, r, err)
		return
	}
	if err := a.svc.LogActivity(r.Context(), uid, core.ActivityRequest{
		Action:     req.Action,
		Resource:   req.Resource,
		ResourceID: req.ResourceID,
		Details:    req.Details,
		Success:    req.Success,
	}); err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}
