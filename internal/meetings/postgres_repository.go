package meetings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// exclusionViolation is raised by the no-overlap constraint on scheduled meetings.
const exclusionViolation = "23P01"

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const meetingColumns = `id, business_id, lead_id, COALESCE(conversation_id, ''), title, start_at, end_at, timezone, status, COALESCE(external_event_id, ''), metadata, created_at`

// PostgresRepository stores meetings in Postgres.
type PostgresRepository struct {
	db db
}

func NewPostgresRepository(pool db) *PostgresRepository {
	if pool == nil {
		panic("meetings: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, m *Meeting) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.Status == "" {
		m.Status = StatusScheduled
	}
	metadata, err := json.Marshal(nonNilMetadata(m.Metadata))
	if err != nil {
		return fmt.Errorf("meetings: marshal metadata: %w", err)
	}
	err = r.db.QueryRow(ctx, `
		INSERT INTO meetings (id, business_id, lead_id, conversation_id, title, start_at, end_at, timezone, status, external_event_id, metadata)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, NULLIF($10, ''), $11::jsonb)
		RETURNING created_at
	`,
		m.ID,
		m.BusinessID,
		m.LeadID,
		m.ConversationID,
		m.Title,
		m.StartAt.UTC(),
		m.EndAt.UTC(),
		m.Timezone,
		string(m.Status),
		m.ExternalEventID,
		string(metadata),
	).Scan(&m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
			return ErrSlotConflict
		}
		return fmt.Errorf("meetings: insert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, businessID, id string) (*Meeting, error) {
	m, err := scanMeeting(r.db.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1 AND business_id = $2`, id, businessID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMeetingNotFound
		}
		return nil, fmt.Errorf("meetings: select: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) ListScheduled(ctx context.Context, businessID string, from, to time.Time) ([]*Meeting, error) {
	rows, err := r.db.Query(ctx, `SELECT `+meetingColumns+` FROM meetings
		WHERE business_id = $1 AND status = 'scheduled' AND start_at < $3 AND end_at > $2
		ORDER BY start_at`, businessID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("meetings: list scheduled: %w", err)
	}
	defer rows.Close()
	return collectMeetings(rows)
}

func (r *PostgresRepository) List(ctx context.Context, businessID string, filter ListFilter) ([]*Meeting, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	var from, to *time.Time
	if !filter.From.IsZero() {
		f := filter.From.UTC()
		from = &f
	}
	if !filter.To.IsZero() {
		t := filter.To.UTC()
		to = &t
	}
	rows, err := r.db.Query(ctx, `SELECT `+meetingColumns+` FROM meetings
		WHERE business_id = $1
		  AND ($2 = '' OR status = $2)
		  AND ($3::timestamptz IS NULL OR end_at > $3)
		  AND ($4::timestamptz IS NULL OR start_at < $4)
		ORDER BY start_at
		LIMIT $5 OFFSET $6`, businessID, string(filter.Status), from, to, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("meetings: list: %w", err)
	}
	defer rows.Close()
	return collectMeetings(rows)
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, businessID, id string, status Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE meetings SET status = $3 WHERE id = $1 AND business_id = $2`, id, businessID, string(status))
	if err != nil {
		return fmt.Errorf("meetings: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMeetingNotFound
	}
	return nil
}

func collectMeetings(rows pgx.Rows) ([]*Meeting, error) {
	out := []*Meeting{}
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("meetings: scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("meetings: rows: %w", err)
	}
	return out, nil
}

func scanMeeting(row pgx.Row) (*Meeting, error) {
	var (
		m        Meeting
		status   string
		metadata []byte
	)
	if err := row.Scan(
		&m.ID,
		&m.BusinessID,
		&m.LeadID,
		&m.ConversationID,
		&m.Title,
		&m.StartAt,
		&m.EndAt,
		&m.Timezone,
		&status,
		&m.ExternalEventID,
		&metadata,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}
	m.Status = Status(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &m, nil
}

func nonNilMetadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
