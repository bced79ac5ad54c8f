// Package core implements the callable entry points of the back-office
// security subsystem: permission checks, session bookkeeping, activity
// logging and one-time system bootstrap.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/audit"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/auth"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/identity"
)

const defaultTokenTTL = 12 * time.Hour

// Service wires the store, the authentication provider and the audit logger
// behind the operations the HTTP boundary exposes.
type Service struct {
	store    auth.Store
	provider identity.Provider
	audit    *audit.Logger
	now      func() time.Time
	tokenTTL time.Duration
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithTokenTTL configures the bearer token lifetime issued at login.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

// NewService constructs a Service.
func NewService(store auth.Store, provider identity.Provider, auditLogger *audit.Logger, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("core: store is required")
	}
	if provider == nil {
		return nil, errors.New("core: identity provider is required")
	}
	if auditLogger == nil {
		return nil, errors.New("core: audit logger is required")
	}
	s := &Service{
		store:    store,
		provider: provider,
		audit:    auditLogger,
		now:      time.Now,
		tokenTTL: defaultTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Audit exposes the audit logger for read paths.
func (s *Service) Audit() *audit.Logger {
	return s.audit
}

// CheckPermission evaluates whether the caller may perform operation on
// resource. It fails closed: any lookup error or missing authentication
// yields false, never an error.
func (s *Service) CheckPermission(ctx context.Context, callerUID, resource, operation string) bool {
	if strings.TrimSpace(callerUID) == "" {
		return false
	}
	user, err := s.store.Users(ctx).Find(ctx, callerUID)
	if err != nil {
		return false
	}
	return auth.HasPermission(user, resource, operation)
}

// ValidateAccess performs the same evaluation as CheckPermission but
// distinguishes failure modes and appends an access audit record on success.
func (s *Service) ValidateAccess(ctx context.Context, callerUID, resource, operation, resourceID string) error {
	if strings.TrimSpace(callerUID) == "" {
		return auth.ErrUnauthorized
	}
	if resource == "" || operation == "" {
		return fmt.Errorf("%w: resource and operation are required", auth.ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).Find(ctx, callerUID)
	if err != nil {
		// A valid token without a user record is treated as denied, not
		// as an internal failure.
		if errors.Is(err, auth.ErrNotFound) {
			return auth.ErrPermissionDenied
		}
		return err
	}
	if !auth.HasPermission(user, resource, operation) {
		return auth.ErrPermissionDenied
	}
	details := map[string]string{"operation": operation}
	if resourceID != "" {
		details["target_id"] = resourceID
	}
	s.audit.Record(ctx, &audit.Entry{
		UserID:   user.ID,
		UserName: user.UserName,
		Action:   "validate_access",
		Resource: resource,
		Details:  details,
		Severity: audit.SeverityInfo,
	})
	return nil
}

// ActivityRequest is a client-attributed activity log entry.
type ActivityRequest struct {
	Action     string
	Resource   string
	ResourceID string
	Details    map[string]string
	Success    *bool
}

// LogActivity appends a structured entry to the caller's activity trail.
// Best-effort: audit failures never surface to the caller.
func (s *Service) LogActivity(ctx context.Context, callerUID string, req ActivityRequest) error {
	if strings.TrimSpace(callerUID) == "" {
		return auth.ErrUnauthorized
	}
	if strings.TrimSpace(req.Action) == "" || strings.TrimSpace(req.Resource) == "" {
		return fmt.Errorf("%w: action and resource are required", auth.ErrInvalidInput)
	}
	severity := audit.SeverityInfo
	if req.Success != nil && !*req.Success {
		severity = audit.SeverityWarning
	}
	var userName string
	if user, err := s.store.Users(ctx).Find(ctx, callerUID); err == nil {
		userName = user.UserName
	}
	s.audit.Record(ctx, &audit.Entry{
		UserID:     callerUID,
		UserName:   userName,
		Action:     req.Action,
		Resource:   req.Resource,
		ResourceID: req.ResourceID,
		Details:    req.Details,
		Severity:   severity,
	})
	return nil
}

// InitializeRequest carries the bootstrap master account fields.
type InitializeRequest struct {
	Email    string
	Password string
	FullName string
	UserName string
	WhatsApp string
	Phone    string
}

// InitializeSystem creates the first master account. It rejects with
// auth.ErrAlreadyInitialized when any user record exists; callers must branch
// on that instead of retrying blindly.
func (s *Service) InitializeSystem(ctx context.Context, req InitializeRequest) (string, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	req.UserName = strings.TrimSpace(req.UserName)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return "", fmt.Errorf("%w: valid email is required", auth.ErrInvalidInput)
	}
	if req.Password == "" {
		return "", fmt.Errorf("%w: password is required", auth.ErrInvalidInput)
	}
	if req.FullName == "" || req.UserName == "" {
		return "", fmt.Errorf("%w: full name and user name are required", auth.ErrInvalidInput)
	}
	if strings.TrimSpace(req.WhatsApp) == "" {
		return "", fmt.Errorf("%w: whatsapp number is required", auth.ErrInvalidInput)
	}

	count, err := s.store.Users(ctx).Count(ctx)
	if err != nil {
		return "", err
	}
	if count > 0 {
		return "", auth.ErrAlreadyInitialized
	}

	uid, err := s.provider.CreateIdentity(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return "", auth.ErrConflict
		}
		return "", err
	}

	master := &auth.User{
		ID:          uid,
		Email:       req.Email,
		UserName:    req.UserName,
		FullName:    req.FullName,
		Role:        auth.RoleMaster,
		Available:   true,
		Permissions: auth.FullPermissions(),
		WhatsApp:    req.WhatsApp,
		Phone:       req.Phone,
		CreatedBy:   "system",
	}
	if err := s.store.Users(ctx).Create(ctx, master); err != nil {
		return "", err
	}

	if err := s.store.Settings(ctx).Put(ctx, &auth.NotificationSettings{
		UserID:         uid,
		EmailEnabled:   true,
		WhatsAppNumber: req.WhatsApp,
		OrderAlerts:    true,
		StockAlerts:    true,
	}); err != nil {
		return "", err
	}

	s.audit.Record(ctx, &audit.Entry{
		UserID:     uid,
		UserName:   req.UserName,
		Action:     "initialize_system",
		Resource:   auth.ResourceUsers,
		ResourceID: uid,
		Details:    map[string]string{"email": req.Email, "role": string(auth.RoleMaster)},
		Severity:   audit.SeverityCritical,
	})
	return uid, nil
}

// requireOp loads the caller and checks one permission. Missing
// authentication maps to ErrUnauthorized, a resolved caller without the
// capability to ErrPermissionDenied.
func (s *Service) requireOp(ctx context.Context, callerUID, resource, operation string) (*auth.User, error) {
	if strings.TrimSpace(callerUID) == "" {
		return nil, auth.ErrUnauthorized
	}
	caller, err := s.store.Users(ctx).Find(ctx, callerUID)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			return nil, auth.ErrUnauthorized
		}
		return nil, err
	}
	if !auth.HasPermission(caller, resource, operation) {
		return nil, auth.ErrPermissionDenied
	}
	return caller, nil
}
