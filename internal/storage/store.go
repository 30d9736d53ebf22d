package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	StatusDone  = "done"
	StatusError = "error"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrAmbiguous = errors.New("session id prefix is ambiguous")
)

// Store is the SQLite history of analysis runs.
type Store struct {
	db *sql.DB
}

// Session is one recorded analysis run.
type Session struct {
	ID         string
	Ticker     string
	Question   string
	Mode       string
	Status     string
	Answer     string
	ToolRounds int
	Duration   time.Duration
	CreatedAt  time.Time
}

// MessageRecord is one conversation message of a session, in seq order.
type MessageRecord struct {
	ID            string
	SessionID     string
	Role          string
	Content       string
	ToolCallsJSON string
	ToolCallID    string
	Seq           int
}

// ListFilter narrows ListSessions. Zero values mean no filter.
type ListFilter struct {
	Ticker string
	Limit  int
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const sessionColumns = `id, ticker, question, mode, status, answer, tool_rounds, duration_ms, created_at`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var (
		rec        Session
		durationMs int64
	)
	if err := row.Scan(&rec.ID, &rec.Ticker, &rec.Question, &rec.Mode, &rec.Status, &rec.Answer, &rec.ToolRounds, &durationMs, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	return &rec, nil
}

// ListSessions returns sessions newest first.
func (s *Store) ListSessions(ctx context.Context, filter ListFilter) ([]Session, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	ticker := strings.ToUpper(strings.TrimSpace(filter.Ticker))

	rows, err := s.db.QueryContext(ctx, `
SELECT `+sessionColumns+`
FROM sessions
WHERE (? = '' OR ticker = ?)
ORDER BY created_at DESC, rowid DESC
LIMIT ?
`, ticker, ticker, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions rows: %w", err)
	}
	return sessions, nil
}

// FindSession resolves a full session id or a unique prefix of one.
func (s *Store) FindSession(ctx context.Context, idOrPrefix string) (*Session, error) {
	idOrPrefix = strings.TrimSpace(idOrPrefix)
	if idOrPrefix == "" {
		return nil, fmt.Errorf("session id is required")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT `+sessionColumns+`
FROM sessions
WHERE id = ? OR id LIKE ? || '%'
LIMIT 2
`, idOrPrefix, idOrPrefix)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	defer rows.Close()

	var found []*Session
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if rec.ID == idOrPrefix {
			return rec, nil
		}
		found = append(found, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find session rows: %w", err)
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, idOrPrefix)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguous, idOrPrefix)
	}
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]MessageRecord, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("session id is required")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, role, content, tool_calls_json, tool_call_id, seq
FROM messages
WHERE session_id = ?
ORDER BY seq ASC
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []MessageRecord
	for rows.Next() {
		var rec MessageRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Role, &rec.Content, &rec.ToolCallsJSON, &rec.ToolCallID, &rec.Seq); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages rows: %w", err)
	}
	return msgs, nil
}

// DeleteSession removes a session and, by cascade, its messages.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return nil
}

// Prune deletes sessions older than the cutoff and reports how many went.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}
