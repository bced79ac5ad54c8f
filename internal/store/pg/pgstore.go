// Package pg implements the persistence interfaces over PostgreSQL.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/auth"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/ids"
)

var _ auth.Store = (*PGStore)(nil)

// PGStore implements auth.Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

// New constructs a PGStore over an open connection pool.
func New(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) auth.UserStore       { return &userStore{db: s.db} }
func (s *PGStore) Sessions(context.Context) auth.SessionStore { return &sessionStore{db: s.db} }
func (s *PGStore) Settings(context.Context) auth.SettingsStore {
	return &settingsStore{db: s.db}
}

const userColumns = `id, email, user_name, full_name, role, available, permissions,
	release_date, whatsapp, phone, created_at, updated_at, created_by, updated_by`

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	perms, err := json.Marshal(u.Permissions)
	if err != nil {
		return fmt.Errorf("marshal permissions: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`insert into users(id, email, user_name, full_name, role, available, permissions,
			release_date, whatsapp, phone, created_by, updated_by)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)`,
		u.ID, u.Email, u.UserName, u.FullName, string(u.Role), u.Available, perms,
		u.ReleaseDate, u.WhatsApp, u.Phone, u.CreatedBy,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return auth.ErrConflict
	}
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func (s *userStore) List(ctx context.Context) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (s *userStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `select count(*) from users`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Update applies the allow-listed fields. Unknown or nil fields never reach
// the statement, so write paths cannot be steered to arbitrary columns.
func (s *userStore) Update(ctx context.Context, id string, upd auth.UserUpdate, actorID string) (*auth.User, error) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+"=$"+strconv.Itoa(len(args)))
	}
	if upd.Email != nil {
		add("email", *upd.Email)
	}
	if upd.UserName != nil {
		add("user_name", *upd.UserName)
	}
	if upd.FullName != nil {
		add("full_name", *upd.FullName)
	}
	if upd.Role != nil {
		add("role", string(*upd.Role))
	}
	if upd.Available != nil {
		add("available", *upd.Available)
	}
	if upd.Permissions != nil {
		perms, err := json.Marshal(*upd.Permissions)
		if err != nil {
			return nil, fmt.Errorf("marshal permissions: %w", err)
		}
		add("permissions", perms)
	}
	if upd.ClearReleaseDate {
		sets = append(sets, "release_date=null")
	} else if upd.ReleaseDate != nil {
		add("release_date", *upd.ReleaseDate)
	}
	if upd.WhatsApp != nil {
		add("whatsapp", *upd.WhatsApp)
	}
	if upd.Phone != nil {
		add("phone", *upd.Phone)
	}
	if len(sets) == 0 {
		return s.Find(ctx, id)
	}
	add("updated_by", actorID)
	sets = append(sets, "updated_at=now()")

	args = append(args, id)
	query := `update users set ` + strings.Join(sets, ", ") +
		` where id=$` + strconv.Itoa(len(args)) + ` returning ` + userColumns
	row := s.db.QueryRowContext(ctx, query, args...)
	return scanUser(row)
}

func (s *userStore) ListExpired(ctx context.Context, now time.Time) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users
		 where available=true and release_date is not null and release_date < $1
		 order by release_date asc`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (s *userStore) ListInactiveWithSessions(ctx context.Context) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select distinct on (u.id) `+prefixedUserColumns("u")+` from users u
		 join sessions s on s.user_id = u.id and s.active
		 where u.available = false
		 order by u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (s *userStore) Deactivate(ctx context.Context, id, actorID string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set available=false, updated_by=$2, updated_at=now() where id=$1`,
		id, actorID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func prefixedUserColumns(alias string) string {
	cols := strings.Split(userColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u           auth.User
		role        string
		permissions []byte
		releaseDate sql.NullTime
		createdBy   sql.NullString
		updatedBy   sql.NullString
	)
	err := row.Scan(&u.ID, &u.Email, &u.UserName, &u.FullName, &role, &u.Available,
		&permissions, &releaseDate, &u.WhatsApp, &u.Phone,
		&u.CreatedAt, &u.UpdatedAt, &createdBy, &updatedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	u.Role = auth.Role(role)
	if len(permissions) > 0 {
		if err := json.Unmarshal(permissions, &u.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	if releaseDate.Valid {
		t := releaseDate.Time
		u.ReleaseDate = &t
	}
	u.CreatedBy = createdBy.String
	u.UpdatedBy = updatedBy.String
	return &u, nil
}

func collectUsers(rows *sql.Rows) ([]*auth.User, error) {
	var users []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Session store ------------------------------------------------------------

const sessionColumns = `id, user_id, active, start_time, end_time, end_reason,
	device, user_agent, ip_address, location`

type sessionStore struct{ db *sql.DB }

func (s *sessionStore) Create(ctx context.Context, sess *auth.Session) error {
	if sess.ID == "" {
		sess.ID = ids.New()
	}
	if sess.StartTime.IsZero() {
		sess.StartTime = time.Now().UTC()
	}
	sess.Active = true
	_, err := s.db.ExecContext(ctx,
		`insert into sessions(id, user_id, active, start_time, device, user_agent, ip_address, location)
		 values($1,$2,true,$3,$4,$5,$6,$7)`,
		sess.ID, sess.UserID, sess.StartTime, sess.Device, sess.UserAgent, sess.IPAddress, sess.Location,
	)
	return err
}

func (s *sessionStore) Find(ctx context.Context, id string) (*auth.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+sessionColumns+` from sessions where id=$1`, id)
	return scanSession(row)
}

func (s *sessionStore) ListByUser(ctx context.Context, userID string, activeOnly bool) ([]*auth.Session, error) {
	query := `select ` + sessionColumns + ` from sessions where user_id=$1`
	if activeOnly {
		query += ` and active`
	}
	query += ` order by start_time desc`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*auth.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Close is a no-op for an already-closed session: the active guard keeps the
// transition monotone, so end_time never moves backward.
func (s *sessionStore) Close(ctx context.Context, id, reason string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update sessions set active=false, end_time=$2, end_reason=$3
		 where id=$1 and active`,
		id, now, reason)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *sessionStore) CloseAll(ctx context.Context, userID, reason string, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`update sessions set active=false, end_time=$2, end_reason=$3
		 where user_id=$1 and active`,
		userID, now, reason)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sessionStore) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`delete from sessions where active=false and end_time is not null and end_time < $1`,
		cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSession(row rowScanner) (*auth.Session, error) {
	var (
		sess      auth.Session
		endTime   sql.NullTime
		endReason sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Active, &sess.StartTime, &endTime,
		&endReason, &sess.Device, &sess.UserAgent, &sess.IPAddress, &sess.Location)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	if endTime.Valid {
		t := endTime.Time
		sess.EndTime = &t
	}
	sess.EndReason = endReason.String
	return &sess, nil
}

// Settings store -----------------------------------------------------------

type settingsStore struct{ db *sql.DB }

func (s *settingsStore) Put(ctx context.Context, settings *auth.NotificationSettings) error {
	_, err := s.db.ExecContext(ctx,
		`insert into notification_settings(user_id, email_enabled, whatsapp_number, order_alerts, stock_alerts)
		 values($1,$2,$3,$4,$5)
		 on conflict (user_id) do update set
			email_enabled=excluded.email_enabled,
			whatsapp_number=excluded.whatsapp_number,
			order_alerts=excluded.order_alerts,
			stock_alerts=excluded.stock_alerts,
			updated_at=now()`,
		settings.UserID, settings.EmailEnabled, settings.WhatsAppNumber,
		settings.OrderAlerts, settings.StockAlerts,
	)
	return err
}

func (s *settingsStore) Find(ctx context.Context, userID string) (*auth.NotificationSettings, error) {
	row := s.db.QueryRowContext(ctx,
		`select user_id, email_enabled, whatsapp_number, order_alerts, stock_alerts, updated_at
		 from notification_settings where user_id=$1`, userID)
	var settings auth.NotificationSettings
	err := row.Scan(&settings.UserID, &settings.EmailEnabled, &settings.WhatsAppNumber,
		&settings.OrderAlerts, &settings.StockAlerts, &settings.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	return &settings, nil
}
