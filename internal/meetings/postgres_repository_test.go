package meetings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestPostgresRepository_CreateMapsExclusionViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("INSERT INTO meetings").
		WithArgs(pgxmock.AnyArg(), "biz-1", "lead-1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23P01", ConstraintName: "meetings_no_overlap"})

	repo := NewPostgresRepository(mock)
	start := monday.Add(9 * time.Hour)
	err = repo.Create(context.Background(), &Meeting{BusinessID: "biz-1", LeadID: "lead-1", StartAt: start, EndAt: start.Add(30 * time.Minute)})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_CreateAssignsDefaults(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	created := time.Now().UTC()
	mock.ExpectQuery("INSERT INTO meetings").
		WithArgs(pgxmock.AnyArg(), "biz-1", "lead-1", "", "Intro", pgxmock.AnyArg(), pgxmock.AnyArg(), "UTC", "scheduled", "", "{}").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(created))

	repo := NewPostgresRepository(mock)
	start := monday.Add(9 * time.Hour)
	m := &Meeting{BusinessID: "biz-1", LeadID: "lead-1", Title: "Intro", Timezone: "UTC", StartAt: start, EndAt: start.Add(30 * time.Minute)}
	if err := repo.Create(context.Background(), m); err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.ID == "" || m.Status != StatusScheduled || !m.CreatedAt.Equal(created) {
		t.Fatalf("unexpected meeting %+v", m)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresRepository_ListScheduled(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	start := monday.Add(9 * time.Hour)
	cols := []string{"id", "business_id", "lead_id", "conversation_id", "title", "start_at", "end_at", "timezone", "status", "external_event_id", "metadata", "created_at"}
	mock.ExpectQuery("FROM meetings\\s+WHERE business_id = \\$1 AND status = 'scheduled'").
		WithArgs("biz-1", monday, monday.Add(24*time.Hour)).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow("m-1", "biz-1", "lead-1", "", "Intro", start, start.Add(30*time.Minute), "UTC", "scheduled", "evt-1", []byte(`{"source":"chat"}`), monday))

	repo := NewPostgresRepository(mock)
	list, err := repo.ListScheduled(context.Background(), "biz-1", monday, monday.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ExternalEventID != "evt-1" || list[0].Metadata["source"] != "chat" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestPostgresRepository_GetAndUpdateNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery("FROM meetings WHERE id = \\$1 AND business_id = \\$2").
		WithArgs("m-1", "biz-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec("UPDATE meetings SET status").
		WithArgs("m-1", "biz-1", "cancelled").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewPostgresRepository(mock)
	if _, err := repo.Get(context.Background(), "biz-1", "m-1"); !errors.Is(err, ErrMeetingNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := repo.UpdateStatus(context.Background(), "biz-1", "m-1", StatusCancelled); !errors.Is(err, ErrMeetingNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
