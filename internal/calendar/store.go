package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfman30/leadqual-platform/internal/apperr"
)

func validateCredential(cred Credential) error {
	fields := map[string]string{}
	if strings.TrimSpace(cred.UserID) == "" {
		fields["user_id"] = "required"
	}
	if strings.TrimSpace(cred.RefreshToken) == "" {
		fields["refresh_token"] = "required"
	}
	if len(fields) > 0 {
		return apperr.Validation("invalid calendar credential", fields)
	}
	return nil
}

// InMemoryCredentialStore keeps credentials in a map.
type InMemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

func NewInMemoryCredentialStore() *InMemoryCredentialStore {
	return &InMemoryCredentialStore{creds: make(map[string]Credential)}
}

func (s *InMemoryCredentialStore) GetCredential(ctx context.Context, userID string) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cred, ok := s.creds[userID]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return &cred, nil
}

func (s *InMemoryCredentialStore) SaveCredential(ctx context.Context, cred Credential) error {
	if err := validateCredential(cred); err != nil {
		return err
	}
	if cred.CalendarID == "" {
		cred.CalendarID = DefaultCalendarID
	}
	cred.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	s.creds[cred.UserID] = cred
	s.mu.Unlock()
	return nil
}

func (s *InMemoryCredentialStore) DeleteCredential(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.creds, userID)
	return nil
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresCredentialStore stores credentials in the calendar_credentials table.
type PostgresCredentialStore struct {
	db db
}

func NewPostgresCredentialStore(pool db) *PostgresCredentialStore {
	if pool == nil {
		panic("calendar: pgx pool required")
	}
	return &PostgresCredentialStore{db: pool}
}

func (s *PostgresCredentialStore) GetCredential(ctx context.Context, userID string) (*Credential, error) {
	var cred Credential
	err := s.db.QueryRow(ctx, `
		SELECT user_id, refresh_token, calendar_id, updated_at
		FROM calendar_credentials WHERE user_id = $1
	`, userID).Scan(&cred.UserID, &cred.RefreshToken, &cred.CalendarID, &cred.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("calendar: select credential: %w", err)
	}
	return &cred, nil
}

func (s *PostgresCredentialStore) SaveCredential(ctx context.Context, cred Credential) error {
	if err := validateCredential(cred); err != nil {
		return err
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO calendar_credentials (user_id, refresh_token, calendar_id, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE
		SET refresh_token = EXCLUDED.refresh_token, calendar_id = EXCLUDED.calendar_id, updated_at = now()
	`, cred.UserID, cred.RefreshToken, cred.Calendar())
	if err != nil {
		return fmt.Errorf("calendar: upsert credential: %w", err)
	}
	return nil
}

func (s *PostgresCredentialStore) DeleteCredential(ctx context.Context, userID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM calendar_credentials WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("calendar: delete credential: %w", err)
	}
	return nil
}
