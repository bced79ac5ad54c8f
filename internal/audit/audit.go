// Package audit maintains the append-only log of security-relevant actions.
package audit

import (
	"context"
	"strings"
	"time"

	"github.com/EduOptmaIdea/snacks-di-chris-app-sub000/internal/obs"
)

// Severity classifies an audit entry.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// ValidSeverity reports whether s is a known severity level.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

// Entry is one immutable audit record. Entries are never updated or deleted
// by normal operation.
type Entry struct {
	ID         string            `json:"id"`
	OccurredAt time.Time         `json:"occurred_at"`
	UserID     string            `json:"user_id"`
	UserName   string            `json:"user_name,omitempty"`
	Action     string            `json:"action"`
	Resource   string            `json:"resource"`
	ResourceID string            `json:"resource_id,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
	Severity   Severity          `json:"severity"`
}

// Filter narrows List results.
type Filter struct {
	UserID   string
	Resource string
	Severity Severity
	Limit    int
}

// Store appends and reads immutable entries.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) ([]*Entry, error)
}

// Logger writes audit entries through a Store.
type Logger struct {
	store Store
	now   func() time.Time
}

// NewLogger constructs a Logger.
func NewLogger(store Store) *Logger {
	return &Logger{store: store, now: time.Now}
}

// WithClock overrides the time source. Only intended for test use.
func (l *Logger) WithClock(fn func() time.Time) *Logger {
	if fn != nil {
		l.now = fn
	}
	return l
}

// Append stores the entry, filling timestamp and severity defaults.
func (l *Logger) Append(ctx context.Context, e *Entry) error {
	l.normalize(e)
	if err := l.store.Append(ctx, e); err != nil {
		return err
	}
	l.emit(e)
	return nil
}

// Record stores the entry best-effort: a failing audit write is logged to the
// operational output and swallowed so it never blocks the action it annotates.
func (l *Logger) Record(ctx context.Context, e *Entry) {
	l.normalize(e)
	if err := l.store.Append(ctx, e); err != nil {
		obs.LogEvent("audit_append_failed", map[string]any{
			"action":   e.Action,
			"resource": e.Resource,
			"error":    err.Error(),
		})
		return
	}
	l.emit(e)
}

// List reads entries matching the filter.
func (l *Logger) List(ctx context.Context, f Filter) ([]*Entry, error) {
	return l.store.List(ctx, f)
}

func (l *Logger) normalize(e *Entry) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = l.now().UTC()
	}
	if !ValidSeverity(e.Severity) {
		e.Severity = SeverityInfo
	}
	e.Action = strings.TrimSpace(e.Action)
	e.Resource = strings.TrimSpace(e.Resource)
}

// emit mirrors the entry onto the structured operational log.
func (l *Logger) emit(e *Entry) {
	fields := map[string]any{
		"ts":       e.OccurredAt.Format(time.RFC3339Nano),
		"action":   e.Action,
		"resource": e.Resource,
		"severity": string(e.Severity),
	}
	if e.UserID != "" {
		fields["user_id"] = e.UserID
	}
	if e.ResourceID != "" {
		fields["resource_id"] = e.ResourceID
	}
	obs.LogEvent("audit", fields)
}
