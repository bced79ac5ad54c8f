package core

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/audit"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/auth"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/identity"
)

// LoginRequest carries credentials plus descriptive session metadata.
type LoginRequest struct {
	Email     string
	Password  string
	Device    string
	UserAgent string
	IPAddress string
	Location  string
}

// LoginResult is the issued token and the created session.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Session   *auth.Session
	User      *auth.User
}

// Login authenticates credentials, opens a session record and issues a bearer
// token. Both successful and failed attempts leave an audit trail.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	id, err := s.provider.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			s.audit.Record(ctx, &audit.Entry{
				Action:   "login_failed",
				Resource: auth.ResourceSessions,
				Details:  map[string]string{"email": strings.ToLower(strings.TrimSpace(req.Email)), "reason": "invalid credentials"},
				Severity: audit.SeverityWarning,
			})
			return LoginResult{}, auth.ErrUnauthorized
		}
		return LoginResult{}, err
	}

	user, err := s.store.Users(ctx).Find(ctx, id.UID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return LoginResult{}, auth.ErrUnauthorized
		}
		return LoginResult{}, err
	}
	if !user.Available {
		s.audit.Record(ctx, &audit.Entry{
			UserID:   user.ID,
			UserName: user.UserName,
			Action:   "login_failed",
			Resource: auth.ResourceSessions,
			Details:  map[string]string{"reason": "account unavailable"},
			Severity: audit.SeverityWarning,
		})
		return LoginResult{}, auth.ErrUnauthorized
	}

	session := &auth.Session{
		UserID:    user.ID,
		StartTime: s.now().UTC(),
		Device:    req.Device,
		UserAgent: req.UserAgent,
		IPAddress: req.IPAddress,
		Location:  req.Location,
	}
	if err := s.store.Sessions(ctx).Create(ctx, session); err != nil {
		return LoginResult{}, err
	}

	token, expiresAt, err := s.provider.IssueToken(id, s.tokenTTL)
	if err != nil {
		return LoginResult{}, err
	}

	s.audit.Record(ctx, &audit.Entry{
		UserID:     user.ID,
		UserName:   user.UserName,
		Action:     "login_success",
		Resource:   auth.ResourceSessions,
		ResourceID: session.ID,
		Details:    map[string]string{"device": req.Device, "location": req.Location},
		Severity:   audit.SeverityInfo,
	})
	return LoginResult{Token: token, ExpiresAt: expiresAt, Session: session, User: user}, nil
}

// Logout closes one session. Closing an already-closed session is a no-op.
// Only the session owner or a master may close it.
func (s *Service) Logout(ctx context.Context, callerUID, sessionID string) error {
	if strings.TrimSpace(callerUID) == "" {
		return auth.ErrUnauthorized
	}
	if strings.TrimSpace(sessionID) == "" {
		return auth.ErrInvalidInput
	}
	session, err := s.store.Sessions(ctx).Find(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.UserID != callerUID {
		caller, err := s.store.Users(ctx).Find(ctx, callerUID)
		if err != nil || caller.Role != auth.RoleMaster {
			return auth.ErrPermissionDenied
		}
	}
	closed, err := s.store.Sessions(ctx).Close(ctx, sessionID, "logout", s.now().UTC())
	if err != nil {
		return err
	}
	if closed {
		s.audit.Record(ctx, &audit.Entry{
			UserID:     session.UserID,
			Action:     "logout",
			Resource:   auth.ResourceSessions,
			ResourceID: sessionID,
			Severity:   audit.SeverityInfo,
		})
	}
	return nil
}

// EndAllSessions closes every active session of the target user in one
// atomic write. Allowed when the caller is the target or a master. Returns
// the number of sessions closed; zero active sessions is a successful no-op
// that writes no audit record.
func (s *Service) EndAllSessions(ctx context.Context, callerUID, targetUserID, reason string) (int64, error) {
	if strings.TrimSpace(callerUID) == "" {
		return 0, auth.ErrUnauthorized
	}
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return 0, auth.ErrInvalidInput
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "requested"
	}

	if callerUID != targetUserID {
		caller, err := s.store.Users(ctx).Find(ctx, callerUID)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				return 0, auth.ErrPermissionDenied
			}
			return 0, err
		}
		if caller.Role != auth.RoleMaster {
			return 0, auth.ErrPermissionDenied
		}
	}

	count, err := s.store.Sessions(ctx).CloseAll(ctx, targetUserID, reason, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.audit.Record(ctx, &audit.Entry{
			UserID:     callerUID,
			Action:     "end_sessions",
			Resource:   auth.ResourceSessions,
			ResourceID: targetUserID,
			Details: map[string]string{
				"count":  strconv.FormatInt(count, 10),
				"reason": reason,
			},
			Severity: audit.SeverityInfo,
		})
	}
	return count, nil
}

// ListUserSessions returns the target user's sessions; allowed for the user
// themselves or callers with read access to the sessions resource.
func (s *Service) ListUserSessions(ctx context.Context, callerUID, targetUserID string, activeOnly bool) ([]*auth.Session, error) {
	if strings.TrimSpace(callerUID) == "" {
		return nil, auth.ErrUnauthorized
	}
	if callerUID != targetUserID {
		if _, err := s.requireOp(ctx, callerUID, auth.ResourceSessions, auth.OpRead); err != nil {
			return nil, err
		}
	}
	return s.store.Sessions(ctx).ListByUser(ctx, targetUserID, activeOnly)
}
