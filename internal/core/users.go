package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/audit"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/auth"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/identity"
)

// CreateUserRequest carries the fields of an administratively created account.
type CreateUserRequest struct {
	Email       string
	Password    string
	UserName    string
	FullName    string
	Role        auth.Role
	Permissions auth.Permissions
	ReleaseDate *time.Time
	WhatsApp    string
	Phone       string
}

// CreateUser provisions a new identity plus user record. Requires write
// access to the users resource; only a master may create another master.
func (s *Service) CreateUser(ctx context.Context, callerUID string, req CreateUserRequest) (*auth.User, error) {
	caller, err := s.requireOp(ctx, callerUID, auth.ResourceUsers, auth.OpWrite)
	if err != nil {
		return nil, err
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.UserName = strings.TrimSpace(req.UserName)
	req.FullName = strings.TrimSpace(req.FullName)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", auth.ErrInvalidInput)
	}
	if req.Password == "" {
		return nil, fmt.Errorf("%w: password is required", auth.ErrInvalidInput)
	}
	if req.UserName == "" {
		return nil, fmt.Errorf("%w: user name is required", auth.ErrInvalidInput)
	}
	if req.Role == "" {
		req.Role = auth.RoleViewer
	}
	if !auth.ValidRole(req.Role) {
		return nil, fmt.Errorf("%w: unsupported role %s", auth.ErrInvalidInput, req.Role)
	}
	if req.Role == auth.RoleMaster && caller.Role != auth.RoleMaster {
		return nil, auth.ErrPermissionDenied
	}
	perms, err := normalizePermissions(req.Permissions)
	if err != nil {
		return nil, err
	}

	uid, err := s.provider.CreateIdentity(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return nil, auth.ErrConflict
		}
		return nil, err
	}

	user := &auth.User{
		ID:          uid,
		Email:       req.Email,
		UserName:    req.UserName,
		FullName:    req.FullName,
		Role:        req.Role,
		Available:   true,
		Permissions: perms,
		ReleaseDate: req.ReleaseDate,
		WhatsApp:    req.WhatsApp,
		Phone:       req.Phone,
		CreatedBy:   caller.ID,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, &audit.Entry{
		UserID:     caller.ID,
		UserName:   caller.UserName,
		Action:     "create_user",
		Resource:   auth.ResourceUsers,
		ResourceID: user.ID,
		Details:    map[string]string{"email": user.Email, "role": string(user.Role)},
		Severity:   audit.SeverityInfo,
	})
	return user, nil
}

// UpdateUser applies an allow-listed update to a user record and audits the
// names of the changed fields. Deactivating an account also terminates its
// active sessions.
func (s *Service) UpdateUser(ctx context.Context, callerUID, targetID string, upd auth.UserUpdate) (*auth.User, error) {
	caller, err := s.requireOp(ctx, callerUID, auth.ResourceUsers, auth.OpWrite)
	if err != nil {
		return nil, err
	}
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, fmt.Errorf("%w: user id is required", auth.ErrInvalidInput)
	}
	if upd.Role != nil {
		if !auth.ValidRole(*upd.Role) {
			return nil, fmt.Errorf("%w: unsupported role %s", auth.ErrInvalidInput, *upd.Role)
		}
		if *upd.Role == auth.RoleMaster && caller.Role != auth.RoleMaster {
			return nil, auth.ErrPermissionDenied
		}
	}
	if upd.Permissions != nil {
		perms, err := normalizePermissions(*upd.Permissions)
		if err != nil {
			return nil, err
		}
		upd.Permissions = &perms
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return nil, fmt.Errorf("%w: valid email is required", auth.ErrInvalidInput)
		}
		upd.Email = &email
	}

	previous, err := s.store.Users(ctx).Find(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if previous.Role == auth.RoleMaster && caller.Role != auth.RoleMaster {
		return nil, auth.ErrPermissionDenied
	}

	updated, err := s.store.Users(ctx).Update(ctx, targetID, upd, caller.ID)
	if err != nil {
		return nil, err
	}

	details := map[string]string{"changed": strings.Join(changedFields(upd), ",")}
	deactivated := upd.Available != nil && !*upd.Available && previous.Available
	if deactivated {
		count, err := s.store.Sessions(ctx).CloseAll(ctx, targetID, "user deactivated", s.now().UTC())
		if err == nil && count > 0 {
			details["sessions_closed"] = strconv.FormatInt(count, 10)
		}
	}

	s.audit.Record(ctx, &audit.Entry{
		UserID:     caller.ID,
		UserName:   caller.UserName,
		Action:     "update_user",
		Resource:   auth.ResourceUsers,
		ResourceID: targetID,
		Details:    details,
		Severity:   audit.SeverityInfo,
	})
	return updated, nil
}

// GetUser returns one user record; allowed for the user themselves or
// callers with read access to the users resource.
func (s *Service) GetUser(ctx context.Context, callerUID, targetID string) (*auth.User, error) {
	if strings.TrimSpace(callerUID) == "" {
		return nil, auth.ErrUnauthorized
	}
	if callerUID != targetID {
		if _, err := s.requireOp(ctx, callerUID, auth.ResourceUsers, auth.OpRead); err != nil {
			return nil, err
		}
	}
	return s.store.Users(ctx).Find(ctx, targetID)
}

// ListUsers returns all user records.
func (s *Service) ListUsers(ctx context.Context, callerUID string) ([]*auth.User, error) {
	if _, err := s.requireOp(ctx, callerUID, auth.ResourceUsers, auth.OpRead); err != nil {
		return nil, err
	}
	return s.store.Users(ctx).List(ctx)
}

// ListAudit reads the audit log; requires read access to the audit resource.
func (s *Service) ListAudit(ctx context.Context, callerUID string, f audit.Filter) ([]*audit.Entry, error) {
	if _, err := s.requireOp(ctx, callerUID, auth.ResourceAudit, auth.OpRead); err != nil {
		return nil, err
	}
	return s.audit.List(ctx, f)
}

// normalizePermissions validates resource names and operation tokens.
func normalizePermissions(perms auth.Permissions) (auth.Permissions, error) {
	if perms == nil {
		return auth.Permissions{}, nil
	}
	known := make(map[string]struct{}, len(auth.KnownResources))
	for _, r := range auth.KnownResources {
		known[r] = struct{}{}
	}
	out := make(auth.Permissions, len(perms))
	for resource, ops := range perms {
		resource = strings.TrimSpace(strings.ToLower(resource))
		if _, ok := known[resource]; !ok {
			return nil, fmt.Errorf("%w: unknown resource %q", auth.ErrInvalidInput, resource)
		}
		var normalized []string
		seen := make(map[string]struct{}, len(ops))
		for _, op := range ops {
			op = strings.TrimSpace(strings.ToLower(op))
			switch op {
			case auth.OpRead, auth.OpWrite, auth.OpDelete, auth.OpAll:
			default:
				return nil, fmt.Errorf("%w: unknown operation %q", auth.ErrInvalidInput, op)
			}
			if _, ok := seen[op]; ok {
				continue
			}
			seen[op] = struct{}{}
			normalized = append(normalized, op)
		}
		out[resource] = normalized
	}
	return out, nil
}

func changedFields(upd auth.UserUpdate) []string {
	var fields []string
	if upd.Email != nil {
		fields = append(fields, "email")
	}
	if upd.UserName != nil {
		fields = append(fields, "user_name")
	}
	if upd.FullName != nil {
		fields = append(fields, "full_name")
	}
	if upd.Role != nil {
		fields = append(fields, "role")
	}
	if upd.Available != nil {
		fields = append(fields, "available")
	}
	if upd.Permissions != nil {
		fields = append(fields, "permissions")
	}
	if upd.ReleaseDate != nil || upd.ClearReleaseDate {
		fields = append(fields, "release_date")
	}
	if upd.WhatsApp != nil {
		fields = append(fields, "whatsapp")
	}
	if upd.Phone != nil {
		fields = append(fields, "phone")
	}
	return fields
}
