package leads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var leadRowColumns = []string{"id", "business_id", "name", "email", "phone", "status", "channel", "source", "qualification", "last_contacted_at", "created_at", "updated_at"}

func TestPostgresRepository_FindByPhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	now := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	contacted := now.Add(-time.Hour)
	mock.ExpectQuery("SELECT .* FROM leads\\s+WHERE phone = \\$1\\s+ORDER BY last_contacted_at DESC NULLS LAST").
		WithArgs("+15550001111").
		WillReturnRows(pgxmock.NewRows(leadRowColumns).
			AddRow("lead-1", "biz-1", "Ann", "", "+15550001111", "qualified", "whatsapp", "web", []byte(`{"budget":"5000"}`), &contacted, now, now).
			AddRow("lead-2", "biz-2", "Ann", "", "+15550001111", "new", "sms", "", []byte(`{}`), (*time.Time)(nil), now, now))

	repo := NewPostgresRepository(mock)
	found, err := repo.FindByPhone(context.Background(), "whatsapp:+15550001111")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 leads, got %d", len(found))
	}
	if found[0].Status != StatusQualified || found[0].Channel != ChannelWhatsApp {
		t.Fatalf("unexpected first lead: %+v", found[0])
	}
	if found[0].Qualification["budget"] != "5000" {
		t.Fatalf("expected decoded qualification, got %#v", found[0].Qualification)
	}
	if found[1].LastContactedAt != nil {
		t.Fatalf("expected nil last contact for second lead")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_GetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("SELECT .* FROM leads WHERE id = \\$1 AND business_id = \\$2").
		WithArgs("lead-1", "biz-1").
		WillReturnError(pgx.ErrNoRows)

	repo := NewPostgresRepository(mock)
	if _, err := repo.GetByID(context.Background(), "biz-1", "lead-1"); !errors.Is(err, ErrLeadNotFound) {
		t.Fatalf("expected ErrLeadNotFound, got %v", err)
	}
}

func TestPostgresRepository_MergeQualificationUsesJSONBConcat(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("UPDATE leads\\s+SET qualification = COALESCE\\(qualification, '\\{\\}'::jsonb\\) \\|\\| \\$2::jsonb").
		WithArgs("lead-1", `{"budget":"5000"}`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewPostgresRepository(mock)
	if err := repo.MergeQualification(context.Background(), "lead-1", map[string]string{"budget": "5000", "blank": ""}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := repo.MergeQualification(context.Background(), "lead-1", map[string]string{}); err != nil {
		t.Fatalf("empty merge should be a no-op: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_UpdateStatusRejectsRegression(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("UPDATE leads SET status = \\$2").
		WithArgs("lead-1", "new", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM leads WHERE id = \\$1").
		WithArgs("lead-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("converted"))

	repo := NewPostgresRepository(mock)
	err = repo.UpdateStatus(context.Background(), "lead-1", StatusNew)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO leads").
		WithArgs(pgxmock.AnyArg(), "biz-1", "Ann", "ann@example.com", "+15550001111", "new", "sms", "web").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	repo := NewPostgresRepository(mock)
	lead, err := repo.Create(context.Background(), &CreateLeadRequest{
		BusinessID: "biz-1",
		Name:       "Ann",
		Email:      "ANN@example.com",
		Phone:      "555-000-1111",
		Source:     "web",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if lead.Status != StatusNew || !lead.CreatedAt.Equal(now) {
		t.Fatalf("unexpected lead: %+v", lead)
	}
}

func TestNewPostgresRepositoryPanicsWithoutPool(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	NewPostgresRepository(nil)
}
