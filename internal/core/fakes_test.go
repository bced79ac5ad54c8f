package core

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/audit"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/auth"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/identity"
)

// fakeStore is an in-memory auth.Store for service-level tests.
type fakeStore struct {
	users    map[string]*auth.User
	sessions map[string]*auth.Session
	settings map[string]*auth.NotificationSettings
	seq      int
	failUser bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:    make(map[string]*auth.User),
		sessions: make(map[string]*auth.Session),
		settings: make(map[string]*auth.NotificationSettings),
	}
}

func (f *fakeStore) Users(context.Context) auth.UserStore        { return (*fakeUsers)(f) }
func (f *fakeStore) Sessions(context.Context) auth.SessionStore  { return (*fakeSessions)(f) }
func (f *fakeStore) Settings(context.Context) auth.SettingsStore { return (*fakeSettings)(f) }

func (f *fakeStore) nextID(prefix string) string {
	f.seq++
	return prefix + "-" + strconv.Itoa(f.seq)
}

type fakeUsers fakeStore

func (f *fakeUsers) Create(_ context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = (*fakeStore)(f).nextID("user")
	}
	if _, ok := f.users[u.ID]; ok {
		return auth.ErrConflict
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUsers) Find(_ context.Context, id string) (*auth.User, error) {
	if f.failUser {
		return nil, errors.New("store unavailable")
	}
	u, ok := f.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeUsers) List(context.Context) ([]*auth.User, error) {
	var out []*auth.User
	for _, u := range f.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeUsers) Update(_ context.Context, id string, upd auth.UserUpdate, actorID string) (*auth.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.UserName != nil {
		u.UserName = *upd.UserName
	}
	if upd.FullName != nil {
		u.FullName = *upd.FullName
	}
	if upd.Role != nil {
		u.Role = *upd.Role
	}
	if upd.Available != nil {
		u.Available = *upd.Available
	}
	if upd.Permissions != nil {
		u.Permissions = *upd.Permissions
	}
	if upd.ClearReleaseDate {
		u.ReleaseDate = nil
	} else if upd.ReleaseDate != nil {
		u.ReleaseDate = upd.ReleaseDate
	}
	if upd.WhatsApp != nil {
		u.WhatsApp = *upd.WhatsApp
	}
	if upd.Phone != nil {
		u.Phone = *upd.Phone
	}
	u.UpdatedBy = actorID
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) Count(context.Context) (int, error) {
	return len(f.users), nil
}

func (f *fakeUsers) ListExpired(_ context.Context, now time.Time) ([]*auth.User, error) {
	var out []*auth.User
	for _, u := range f.users {
		if u.Available && u.ReleaseDate != nil && u.ReleaseDate.Before(now) {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeUsers) ListInactiveWithSessions(context.Context) ([]*auth.User, error) {
	var out []*auth.User
	for _, u := range f.users {
		if u.Available {
			continue
		}
		for _, s := range f.sessions {
			if s.UserID == u.ID && s.Active {
				cp := *u
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeUsers) Deactivate(_ context.Context, id, actorID string) error {
	u, ok := f.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.Available = false
	u.UpdatedBy = actorID
	return nil
}

type fakeSessions fakeStore

func (f *fakeSessions) Create(_ context.Context, s *auth.Session) error {
	if s.ID == "" {
		s.ID = (*fakeStore)(f).nextID("session")
	}
	s.Active = true
	if s.StartTime.IsZero() {
		s.StartTime = time.Now().UTC()
	}
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeSessions) Find(_ context.Context, id string) (*auth.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) ListByUser(_ context.Context, userID string, activeOnly bool) ([]*auth.Session, error) {
	var out []*auth.Session
	for _, s := range f.sessions {
		if s.UserID != userID {
			continue
		}
		if activeOnly && !s.Active {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeSessions) Close(_ context.Context, id, reason string, now time.Time) (bool, error) {
	s, ok := f.sessions[id]
	if !ok || !s.Active {
		return false, nil
	}
	s.Active = false
	s.EndTime = &now
	s.EndReason = reason
	return true, nil
}

func (f *fakeSessions) CloseAll(_ context.Context, userID, reason string, now time.Time) (int64, error) {
	var n int64
	for _, s := range f.sessions {
		if s.UserID == userID && s.Active {
			s.Active = false
			s.EndTime = &now
			s.EndReason = reason
			n++
		}
	}
	return n, nil
}

func (f *fakeSessions) DeleteClosedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, s := range f.sessions {
		if !s.Active && s.EndTime != nil && s.EndTime.Before(cutoff) {
			delete(f.sessions, id)
			n++
		}
	}
	return n, nil
}

type fakeSettings fakeStore

func (f *fakeSettings) Put(_ context.Context, s *auth.NotificationSettings) error {
	cp := *s
	f.settings[s.UserID] = &cp
	return nil
}

func (f *fakeSettings) Find(_ context.Context, userID string) (*auth.NotificationSettings, error) {
	s, ok := f.settings[userID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// fakeProvider is an in-memory identity.Provider.
type fakeProvider struct {
	credentials map[string]string // email -> password
	uids        map[string]string // email -> uid
	seq         int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		credentials: make(map[string]string),
		uids:        make(map[string]string),
	}
}

func (p *fakeProvider) register(email, password, uid string) {
	p.credentials[email] = password
	p.uids[email] = uid
}

func (p *fakeProvider) CreateIdentity(_ context.Context, email, password string) (string, error) {
	if _, ok := p.credentials[email]; ok {
		return "", identity.ErrEmailTaken
	}
	p.seq++
	uid := "uid-" + strconv.Itoa(p.seq)
	p.register(email, password, uid)
	return uid, nil
}

func (p *fakeProvider) Authenticate(_ context.Context, email, password string) (identity.Identity, error) {
	stored, ok := p.credentials[email]
	if !ok || stored != password {
		return identity.Identity{}, identity.ErrInvalidCredentials
	}
	return identity.Identity{UID: p.uids[email], Email: email}, nil
}

func (p *fakeProvider) IssueToken(id identity.Identity, ttl time.Duration) (string, time.Time, error) {
	return "token-" + id.UID, time.Now().UTC().Add(ttl), nil
}

func (p *fakeProvider) VerifyToken(_ context.Context, token string) (identity.Identity, error) {
	for email, uid := range p.uids {
		if token == "token-"+uid {
			return identity.Identity{UID: uid, Email: email}, nil
		}
	}
	return identity.Identity{}, identity.ErrInvalidToken
}

// recordingAuditStore captures appended entries.
type recordingAuditStore struct {
	entries []*audit.Entry
}

func (r *recordingAuditStore) Append(_ context.Context, e *audit.Entry) error {
	cp := *e
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *recordingAuditStore) List(context.Context, audit.Filter) ([]*audit.Entry, error) {
	return r.entries, nil
}

func (r *recordingAuditStore) byAction(action string) []*audit.Entry {
	var out []*audit.Entry
	for _, e := range r.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
