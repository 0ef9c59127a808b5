package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/leadqual-platform/internal/leads"
)

// SQLStore persists conversations and messages to PostgreSQL through
// database/sql (pgx stdlib driver). A partial unique index on
// conversations(lead_id) WHERE status = 'active' backs the one-active rule.
type SQLStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

// NewSQLStore creates a new conversation store. A nil tracer uses the global
// provider.
func NewSQLStore(db *sql.DB, tracer trace.Tracer) *SQLStore {
	if db == nil {
		panic("conversation: sql db required")
	}
	if tracer == nil {
		tracer = otel.Tracer("leadqual.internal.conversation.store")
	}
	return &SQLStore{db: db, tracer: tracer}
}

const conversationColumns = `id, lead_id, business_id, status, channel, last_message_at, created_at, closed_at`

func (s *SQLStore) ActiveForLead(ctx context.Context, leadID string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE lead_id = $1 AND status = 'active'`, leadID)
	return scanConversation(row)
}

func (s *SQLStore) Create(ctx context.Context, conv *Conversation) error {
	ctx, span := s.tracer.Start(ctx, "conversation.store.create")
	defer span.End()

	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	conv.Status = StatusActive
	span.SetAttributes(attribute.String("lead_id", conv.LeadID))

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, lead_id, business_id, status, channel, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, conv.ID, conv.LeadID, conv.BusinessID, string(StatusActive), string(conv.Channel), conv.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errActiveExists
		}
		span.RecordError(err)
		return fmt.Errorf("conversation: insert conversation: %w", err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (s *SQLStore) Close(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET status = 'closed', closed_at = $2
		WHERE id = $1 AND status = 'active'
	`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("conversation: close: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return nil
}

func (s *SQLStore) AppendMessage(ctx context.Context, msg *Message) (err error) {
	ctx, span := s.tracer.Start(ctx, "conversation.store.append_message")
	defer span.End()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	meta := []byte("{}")
	if len(msg.Metadata) > 0 {
		if meta, err = json.Marshal(msg.Metadata); err != nil {
			return fmt.Errorf("conversation: marshal metadata: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO conversation_messages (id, conversation_id, content, is_from_lead, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, msg.ConversationID, msg.Content, msg.IsFromLead, string(meta), msg.CreatedAt); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: insert message: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_at = $2 WHERE id = $1
	`, msg.ConversationID, msg.CreatedAt); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: touch conversation: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("conversation: commit message: %w", err)
	}
	return nil
}

const messageColumns = `id, conversation_id, content, is_from_lead, metadata, created_at`

func (s *SQLStore) RecentMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = MaxHistoryMessages
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT `+messageColumns+`, seq FROM conversation_messages
			WHERE conversation_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) recent
		ORDER BY seq ASC
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation: recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *SQLStore) LeadMessages(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content FROM conversation_messages
		WHERE conversation_id = $1 AND is_from_lead
		ORDER BY seq ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation: lead messages: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("conversation: scan lead message: %w", err)
		}
		out = append(out, content)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListMessages(ctx context.Context, conversationID string, offset, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM conversation_messages
		WHERE conversation_id = $1
		ORDER BY seq ASC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("conversation: list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var (
		conv          Conversation
		status        string
		channel       string
		lastMessageAt sql.NullTime
		closedAt      sql.NullTime
	)
	if err := row.Scan(&conv.ID, &conv.LeadID, &conv.BusinessID, &status, &channel, &lastMessageAt, &conv.CreatedAt, &closedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("conversation: scan conversation: %w", err)
	}
	conv.Status = Status(status)
	conv.Channel = leads.Channel(channel)
	if lastMessageAt.Valid {
		conv.LastMessageAt = &lastMessageAt.Time
	}
	if closedAt.Valid {
		conv.ClosedAt = &closedAt.Time
	}
	return &conv, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var (
			msg  Message
			meta []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Content, &msg.IsFromLead, &meta, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("conversation: decode metadata: %w", err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("conversation: rows: %w", err)
	}
	return out, nil
}
