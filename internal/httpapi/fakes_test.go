package httpapi

import (
	"context"
	"strconv"
	"time"

	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/audit"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/auth"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/identity"
)

// memStore is a minimal in-memory auth.Store for handler tests.
type memStore struct {
	users    map[string]*auth.User
	sessions map[string]*auth.Session
	settings map[string]*auth.NotificationSettings
	seq      int
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*auth.User),
		sessions: make(map[string]*auth.Session),
		settings: make(map[string]*auth.NotificationSettings),
	}
}

func (m *memStore) Users(context.Context) auth.UserStore        { return (*memUsers)(m) }
func (m *memStore) Sessions(context.Context) auth.SessionStore  { return (*memSessions)(m) }
func (m *memStore) Settings(context.Context) auth.SettingsStore { return (*memSettings)(m) }

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return prefix + "-" + strconv.Itoa(m.seq)
}

type memUsers memStore

func (m *memUsers) Create(_ context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = (*memStore)(m).nextID("user")
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*auth.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memUsers) List(context.Context) ([]*auth.User, error) {
	var out []*auth.User
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memUsers) Update(_ context.Context, id string, upd auth.UserUpdate, actorID string) (*auth.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.Available != nil {
		u.Available = *upd.Available
	}
	if upd.Permissions != nil {
		u.Permissions = *upd.Permissions
	}
	u.UpdatedBy = actorID
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	return &cp, nil
}

func (m *memUsers) Count(context.Context) (int, error) { return len(m.users), nil }

func (m *memUsers) ListExpired(context.Context, time.Time) ([]*auth.User, error) { return nil, nil }

func (m *memUsers) ListInactiveWithSessions(context.Context) ([]*auth.User, error) { return nil, nil }

func (m *memUsers) Deactivate(_ context.Context, id, actorID string) error {
	u, ok := m.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.Available = false
	u.UpdatedBy = actorID
	return nil
}

type memSessions memStore

func (m *memSessions) Create(_ context.Context, s *auth.Session) error {
	if s.ID == "" {
		s.ID = (*memStore)(m).nextID("session")
	}
	s.Active = true
	if s.StartTime.IsZero() {
		s.StartTime = time.Now().UTC()
	}
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessions) Find(_ context.Context, id string) (*auth.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) ListByUser(_ context.Context, userID string, activeOnly bool) ([]*auth.Session, error) {
	var out []*auth.Session
	for _, s := range m.sessions {
		if s.UserID != userID || (activeOnly && !s.Active) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memSessions) Close(_ context.Context, id, reason string, now time.Time) (bool, error) {
	s, ok := m.sessions[id]
	if !ok || !s.Active {
		return false, nil
	}
	s.Active = false
	s.EndTime = &now
	s.EndReason = reason
	return true, nil
}

func (m *memSessions) CloseAll(_ context.Context, userID, reason string, now time.Time) (int64, error) {
	var n int64
	for _, s := range m.sessions {
		if s.UserID == userID && s.Active {
			s.Active = false
			s.EndTime = &now
			s.EndReason = reason
			n++
		}
	}
	return n, nil
}

func (m *memSessions) DeleteClosedBefore(context.Context, time.Time) (int64, error) { return 0, nil }

type memSettings memStore

func (m *memSettings) Put(_ context.Context, s *auth.NotificationSettings) error {
	cp := *s
	m.settings[s.UserID] = &cp
	return nil
}

func (m *memSettings) Find(_ context.Context, userID string) (*auth.NotificationSettings, error) {
	s, ok := m.settings[userID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// memProvider maps "token-<uid>" bearer tokens straight to identities.
type memProvider struct {
	credentials map[string]string
	uids        map[string]string
	seq         int
}

func newMemProvider() *memProvider {
	return &memProvider{
		credentials: make(map[string]string),
		uids:        make(map[string]string),
	}
}

func (p *memProvider) register(email, password, uid string) {
	p.credentials[email] = password
	p.uids[email] = uid
}

func (p *memProvider) CreateIdentity(_ context.Context, email, password string) (string, error) {
	if _, ok := p.credentials[email]; ok {
		return "", identity.ErrEmailTaken
	}
	p.seq++
	uid := "uid-" + strconv.Itoa(p.seq)
	p.register(email, password, uid)
	return uid, nil
}

func (p *memProvider) Authenticate(_ context.Context, email, password string) (identity.Identity, error) {
	stored, ok := p.credentials[email]
	if !ok || stored != password {
		return identity.Identity{}, identity.ErrInvalidCredentials
	}
	return identity.Identity{UID: p.uids[email], Email: email}, nil
}

func (p *memProvider) IssueToken(id identity.Identity, ttl time.Duration) (string, time.Time, error) {
	return "token-" + id.UID, time.Now().UTC().Add(ttl), nil
}

func (p *memProvider) VerifyToken(_ context.Context, token string) (identity.Identity, error) {
	for email, uid := range p.uids {
		if token == "token-"+uid {
			return identity.Identity{UID: uid, Email: email}, nil
		}
	}
	return identity.Identity{}, identity.ErrInvalidToken
}

// memAuditStore keeps appended entries in order.
type memAuditStore struct {
	entries []*audit.Entry
}

func (m *memAuditStore) Append(_ context.Context, e *audit.Entry) error {
	cp := *e
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *memAuditStore) List(_ context.Context, f audit.Filter) ([]*audit.Entry, error) {
	var out []*audit.Entry
	for _, e := range m.entries {
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.Resource != "" && e.Resource != f.Resource {
			continue
		}
		if f.Severity != "" && e.Severity != f.Severity {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
