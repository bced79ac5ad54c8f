package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/audit"
	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/ids"
)

var _ audit.Store = (*AuditStore)(nil)

// AuditStore implements audit.Store over the append-only audit_log table.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore constructs an AuditStore.
func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Append(ctx context.Context, e *audit.Entry) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	details, err := json.Marshal(e.Details)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into audit_log(id, occurred_at, user_id, user_name, action, resource, resource_id, details, severity)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		e.ID, e.OccurredAt, e.UserID, e.UserName, e.Action, e.Resource, e.ResourceID,
		details, string(e.Severity),
	)
	return err
}

func (s *AuditStore) List(ctx context.Context, f audit.Filter) ([]*audit.Entry, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, clause+"$"+strconv.Itoa(len(args)))
	}
	if f.UserID != "" {
		add("user_id=", f.UserID)
	}
	if f.Resource != "" {
		add("resource=", f.Resource)
	}
	if f.Severity != "" {
		add("severity=", string(f.Severity))
	}
	query := `select id, occurred_at, user_id, user_name, action, resource, resource_id, details, severity
		from audit_log`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by occurred_at desc`
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	args = append(args, limit)
	query += ` limit $` + strconv.Itoa(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		var (
			e          audit.Entry
			resourceID sql.NullString
			userName   sql.NullString
			details    []byte
			severity   string
		)
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.UserID, &userName, &e.Action,
			&e.Resource, &resourceID, &details, &severity); err != nil {
			return nil, err
		}
		e.UserName = userName.String
		e.ResourceID = resourceID.String
		e.Severity = audit.Severity(severity)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, err
			}
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
