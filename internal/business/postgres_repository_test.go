package business

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestPostgresRepository_GetAssistantConfig(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT name, role, tone, qualification_fields, default_meeting_minutes\\s+FROM assistant_configs").
		WithArgs("biz-1").
		WillReturnRows(pgxmock.NewRows([]string{"name", "role", "tone", "qualification_fields", "default_meeting_minutes"}).
			AddRow("Ava", "sales assistant", "friendly", []string{"budget", "timeline"}, 45))

	repo := NewPostgresRepository(mock)
	cfg, err := repo.GetAssistantConfig(context.Background(), "biz-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cfg.Role != "sales assistant" || len(cfg.QualificationFields) != 2 || cfg.DefaultMeetingMinutes != 45 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestPostgresRepository_GetBusinessByAPIKeyHashesKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("FROM businesses WHERE api_key_hash = \\$1").
		WithArgs(HashAPIKey("secret-key")).
		WillReturnError(pgx.ErrNoRows)

	repo := NewPostgresRepository(mock)
	if _, err := repo.GetBusinessByAPIKey(context.Background(), "secret-key"); !errors.Is(err, ErrBusinessNotFound) {
		t.Fatalf("expected ErrBusinessNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_ReplaceHoursInTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM business_hours WHERE business_id = \\$1").
		WithArgs("biz-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec("INSERT INTO business_hours").
		WithArgs("biz-1", "monday", "09:00", "12:00").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO business_hours").
		WithArgs("biz-1", "monday", "13:00", "17:00").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	repo := NewPostgresRepository(mock)
	err = repo.ReplaceHours(context.Background(), "biz-1", []Hours{
		{Weekday: "Monday", Start: "09:00", End: "12:00"},
		{Weekday: "MONDAY", Start: "13:00", End: "17:00"},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_ReplaceHoursRollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM business_hours").
		WithArgs("biz-1").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	repo := NewPostgresRepository(mock)
	if err := repo.ReplaceHours(context.Background(), "biz-1", []Hours{{Weekday: "monday", Start: "09:00", End: "10:00"}}); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_ReplaceHoursValidatesBeforeWriting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	if err := repo.ReplaceHours(context.Background(), "biz-1", []Hours{{Weekday: "funday", Start: "09:00", End: "10:00"}}); err == nil {
		t.Fatalf("expected validation error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expected no database calls: %v", err)
	}
}
