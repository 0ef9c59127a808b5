package leads

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

// db is the subset of pgxpool.Pool the repository needs.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const leadColumns = `id, business_id, name, email, phone, status, channel, source, qualification, last_contacted_at, created_at, updated_at`

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db db
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool db) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	query := `
		INSERT INTO leads (id, business_id, name, email, phone, status, channel, source, qualification)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '{}'::jsonb)
		RETURNING created_at, updated_at
	`
	lead := &Lead{
		ID:            id.String(),
		BusinessID:    req.BusinessID,
		Name:          req.Name,
		Email:         req.Email,
		Phone:         req.Phone,
		Status:        StatusNew,
		Channel:       Channel(req.Channel),
		Source:        req.Source,
		Qualification: map[string]string{},
	}
	if err := r.db.QueryRow(ctx, query,
		id.String(),
		req.BusinessID,
		req.Name,
		req.Email,
		req.Phone,
		string(StatusNew),
		req.Channel,
		req.Source,
	).Scan(&lead.CreatedAt, &lead.UpdatedAt); err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}
	return lead, nil
}

// GetByID fetches a lead scoped to the business.
func (r *PostgresRepository) GetByID(ctx context.Context, businessID, id string) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1 AND business_id = $2`
	lead, err := scanLead(r.db.QueryRow(ctx, query, id, businessID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// FindByPhone returns leads sharing a phone number, most-recently-active first.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) ([]*Lead, error) {
	phone = NormalizePhone(phone)
	if phone == "" {
		return nil, nil
	}
	query := `SELECT ` + leadColumns + ` FROM leads
		WHERE phone = $1
		ORDER BY last_contacted_at DESC NULLS LAST, created_at DESC`
	rows, err := r.db.Query(ctx, query, phone)
	if err != nil {
		return nil, fmt.Errorf("leads: find by phone: %w", err)
	}
	defer rows.Close()
	return collectLeads(rows)
}

// ListByBusiness returns leads for a business, newest first.
func (r *PostgresRepository) ListByBusiness(ctx context.Context, businessID string, filter ListFilter) ([]*Lead, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	query := `SELECT ` + leadColumns + ` FROM leads
		WHERE business_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`
	rows, err := r.db.Query(ctx, query, businessID, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("leads: list: %w", err)
	}
	defer rows.Close()
	return collectLeads(rows)
}

// MergeQualification applies a jsonb concatenation so existing keys not in
// data survive.
func (r *PostgresRepository) MergeQualification(ctx context.Context, id string, data map[string]string) error {
	clean := MergeQualification(nil, data)
	if len(clean) == 0 {
		return nil
	}
	payload, err := json.Marshal(clean)
	if err != nil {
		return fmt.Errorf("leads: marshal qualification: %w", err)
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE leads
		SET qualification = COALESCE(qualification, '{}'::jsonb) || $2::jsonb, updated_at = now()
		WHERE id = $1
	`, id, string(payload))
	if err != nil {
		return fmt.Errorf("leads: merge qualification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

// UpdateStatus moves a lead to status when its current status permits it.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE leads SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)
	`, id, string(status), allowedPredecessors(status))
	if err != nil {
		return fmt.Errorf("leads: update status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	if err := r.db.QueryRow(ctx, `SELECT status FROM leads WHERE id = $1`, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrLeadNotFound
		}
		return fmt.Errorf("leads: read status: %w", err)
	}
	return fmt.Errorf("leads: %s -> %s: %w", current, status, ErrInvalidTransition)
}

// TouchContact records the time of the latest interaction.
func (r *PostgresRepository) TouchContact(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE leads SET last_contacted_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("leads: touch contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeadNotFound
	}
	return nil
}

func collectLeads(rows pgx.Rows) ([]*Lead, error) {
	var out []*Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan: %w", err)
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: rows: %w", err)
	}
	return out, nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var (
		lead          Lead
		status        string
		channel       string
		qualification []byte
	)
	if err := row.Scan(
		&lead.ID,
		&lead.BusinessID,
		&lead.Name,
		&lead.Email,
		&lead.Phone,
		&status,
		&channel,
		&lead.Source,
		&qualification,
		&lead.LastContactedAt,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return nil, err
	}
	lead.Status = Status(status)
	lead.Channel = Channel(channel)
	lead.Qualification = map[string]string{}
	if len(qualification) > 0 {
		if err := json.Unmarshal(qualification, &lead.Qualification); err != nil {
			return nil, fmt.Errorf("decode qualification: %w", err)
		}
	}
	return &lead, nil
}
