package business

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresRepository reads business configuration from Postgres.
type PostgresRepository struct {
	db db
}

// NewPostgresRepository wires the repository to a pgx pool.
func NewPostgresRepository(pool db) *PostgresRepository {
	if pool == nil {
		panic("business: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

const businessColumns = `id, owner_user_id, name, industry, service_description, timezone, notification_email`

func (r *PostgresRepository) GetBusiness(ctx context.Context, id string) (*Business, error) {
	return r.getBusiness(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = $1`, id)
}

func (r *PostgresRepository) GetBusinessByAPIKey(ctx context.Context, apiKey string) (*Business, error) {
	return r.getBusiness(ctx, `SELECT `+businessColumns+` FROM businesses WHERE api_key_hash = $1`, HashAPIKey(apiKey))
}

func (r *PostgresRepository) getBusiness(ctx context.Context, query string, arg string) (*Business, error) {
	var b Business
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&b.ID,
		&b.OwnerUserID,
		&b.Name,
		&b.Industry,
		&b.ServiceDescription,
		&b.Timezone,
		&b.NotificationEmail,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBusinessNotFound
		}
		return nil, fmt.Errorf("business: select business: %w", err)
	}
	return &b, nil
}

func (r *PostgresRepository) GetAssistantConfig(ctx context.Context, businessID string) (*AssistantConfig, error) {
	cfg := AssistantConfig{BusinessID: businessID}
	err := r.db.QueryRow(ctx, `
		SELECT name, role, tone, qualification_fields, default_meeting_minutes
		FROM assistant_configs
		WHERE business_id = $1
	`, businessID).Scan(&cfg.Name, &cfg.Role, &cfg.Tone, &cfg.QualificationFields, &cfg.DefaultMeetingMinutes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAssistantConfigNotFound
		}
		return nil, fmt.Errorf("business: select assistant config: %w", err)
	}
	return &cfg, nil
}

func (r *PostgresRepository) SaveAssistantConfig(ctx context.Context, cfg *AssistantConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO assistant_configs (business_id, name, role, tone, qualification_fields, default_meeting_minutes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (business_id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			tone = EXCLUDED.tone,
			qualification_fields = EXCLUDED.qualification_fields,
			default_meeting_minutes = EXCLUDED.default_meeting_minutes,
			updated_at = now()
	`, cfg.BusinessID, cfg.Name, cfg.Role, cfg.Tone, cfg.QualificationFields, cfg.DefaultMeetingMinutes)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrBusinessNotFound
		}
		return fmt.Errorf("business: upsert assistant config: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListHours(ctx context.Context, businessID string) ([]Hours, error) {
	rows, err := r.db.Query(ctx, `
		SELECT weekday, to_char(start_time, 'HH24:MI'), to_char(end_time, 'HH24:MI')
		FROM business_hours
		WHERE business_id = $1
		ORDER BY weekday, start_time
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("business: list hours: %w", err)
	}
	defer rows.Close()

	var out []Hours
	for rows.Next() {
		var h Hours
		if err := rows.Scan(&h.Weekday, &h.Start, &h.End); err != nil {
			return nil, fmt.Errorf("business: scan hours: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("business: list hours: %w", err)
	}
	return out, nil
}

// ReplaceHours swaps the full weekly schedule in one transaction.
func (r *PostgresRepository) ReplaceHours(ctx context.Context, businessID string, hours []Hours) (err error) {
	normalized, err := NormalizeHours(hours)
	if err != nil {
		return err
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("business: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM business_hours WHERE business_id = $1`, businessID); err != nil {
		return fmt.Errorf("business: clear hours: %w", err)
	}
	for _, h := range normalized {
		if _, err = tx.Exec(ctx, `
			INSERT INTO business_hours (business_id, weekday, start_time, end_time)
			VALUES ($1, $2, $3::time, $4::time)
		`, businessID, h.Weekday, h.Start, h.End); err != nil {
			return fmt.Errorf("business: insert hours: %w", err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("business: commit hours: %w", err)
	}
	return nil
}
