package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/wolfman30/leadqual-platform/internal/apperr"
)

func TestInMemoryCredentialStore(t *testing.T) {
	store := NewInMemoryCredentialStore()
	ctx := context.Background()

	if _, err := store.GetCredential(ctx, "u1"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.SaveCredential(ctx, Credential{UserID: "u1"}); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := store.SaveCredential(ctx, Credential{UserID: "u1", RefreshToken: "rt"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	cred, err := store.GetCredential(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cred.Calendar() != DefaultCalendarID || cred.RefreshToken != "rt" {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if err := store.DeleteCredential(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetCredential(ctx, "u1"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestPostgresCredentialStore_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery("FROM calendar_credentials WHERE user_id = \\$1").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "refresh_token", "calendar_id", "updated_at"}).
			AddRow("u1", "rt", "primary", now))
	mock.ExpectQuery("FROM calendar_credentials WHERE user_id = \\$1").
		WithArgs("u2").
		WillReturnError(pgx.ErrNoRows)

	store := NewPostgresCredentialStore(mock)
	cred, err := store.GetCredential(context.Background(), "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cred.RefreshToken != "rt" {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if _, err := store.GetCredential(context.Background(), "u2"); !errors.Is(err, ErrCredentialNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresCredentialStore_SaveUpserts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("INSERT INTO calendar_credentials").
		WithArgs("u1", "rt", "primary").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	store := NewPostgresCredentialStore(mock)
	if err := store.SaveCredential(context.Background(), Credential{UserID: "u1", RefreshToken: "rt"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
