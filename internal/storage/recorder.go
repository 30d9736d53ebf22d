package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/dyike/StockPilot/consts"
	"github.com/dyike/StockPilot/internal/models"
)

// Run is a finished analysis ready to be recorded.
type Run struct {
	State     *models.ConversationState
	Mode      string
	StartedAt time.Time
	Duration  time.Duration
}

// Record stores the run and all its messages in one transaction and returns
// the new session id.
func (s *Store) Record(ctx context.Context, run Run) (string, error) {
	if s == nil {
		return "", errors.New("store is required")
	}
	if run.State == nil {
		return "", errors.New("conversation state is required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	answer := run.State.Answer()
	status := StatusDone
	if strings.HasPrefix(answer, consts.AnalysisErrorPrefix) {
		status = StatusError
	}
	id := uuid.NewString()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin record: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO sessions (id, ticker, question, mode, status, answer, tool_rounds, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, id, run.State.Ticker, run.State.Question, run.Mode, status, answer,
		run.State.ToolRounds(), run.Duration.Milliseconds(), run.StartedAt.UTC())
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}

	for i, msg := range run.State.Messages {
		if msg == nil {
			continue
		}
		rec, err := messageRecord(id, i+1, msg)
		if err != nil {
			return "", err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO messages (id, session_id, role, content, tool_calls_json, tool_call_id, seq)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, rec.ID, rec.SessionID, rec.Role, rec.Content, rec.ToolCallsJSON, rec.ToolCallID, rec.Seq)
		if err != nil {
			return "", fmt.Errorf("insert message %d: %w", rec.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit record: %w", err)
	}
	return id, nil
}

func messageRecord(sessionID string, seq int, msg *schema.Message) (MessageRecord, error) {
	rec := MessageRecord{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
		Seq:        seq,
	}
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return rec, fmt.Errorf("marshal tool calls: %w", err)
		}
		rec.ToolCallsJSON = string(data)
	}
	return rec, nil
}

// LoadConversation rebuilds the recorded conversation of a session.
func (s *Store) LoadConversation(ctx context.Context, idOrPrefix string) (*Session, *models.ConversationState, error) {
	session, err := s.FindSession(ctx, idOrPrefix)
	if err != nil {
		return nil, nil, err
	}
	records, err := s.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}

	state := &models.ConversationState{Ticker: session.Ticker, Question: session.Question}
	for _, rec := range records {
		msg := &schema.Message{
			Role:       schema.RoleType(rec.Role),
			Content:    rec.Content,
			ToolCallID: rec.ToolCallID,
		}
		if rec.ToolCallsJSON != "" {
			if err := json.Unmarshal([]byte(rec.ToolCallsJSON), &msg.ToolCalls); err != nil {
				return nil, nil, fmt.Errorf("decode tool calls of message %d: %w", rec.Seq, err)
			}
		}
		state.Append(msg)
	}
	return session, state, nil
}
