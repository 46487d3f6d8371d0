package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var appointmentRowColumns = []string{"id", "user_id", "doctor", "scheduled_for", "hospital", "disease_conclusion", "severity", "medications", "status", "created_at"}

func appointmentRow(status string) *pgxmock.Rows {
	created := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	return pgxmock.NewRows(appointmentRowColumns).AddRow(
		"appt-1", "user-1", "Dr. Mehta", created.Add(48*time.Hour), "Apollo",
		"Migraine", "High", []string{"sumatriptan"}, status, created,
	)
}

func TestPostgresRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	created := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	appt := &Appointment{
		ID: "appt-1", UserID: "user-1", Doctor: "Dr. Mehta", Time: created.Add(time.Hour),
		Hospital: "Apollo", Status: StatusPending, CreatedAt: created,
	}
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs("appt-1", "user-1", "Dr. Mehta", appt.Time, "Apollo", "", "", []string{}, "pending", created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), appt); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepository_TransitionStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	mock.ExpectQuery("UPDATE appointments SET status").WithArgs("appt-1", "approved").WillReturnRows(appointmentRow("approved"))
	appt, err := repo.TransitionStatus(context.Background(), "appt-1", StatusApproved)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if appt.Status != StatusApproved || appt.Medications[0] != "sumatriptan" {
		t.Fatalf("unexpected appointment %#v", appt)
	}

	// Already decided: the conditional update matches nothing and the current row is returned.
	mock.ExpectQuery("UPDATE appointments SET status").WithArgs("appt-1", "rejected").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT .* FROM appointments WHERE id").WithArgs("appt-1").WillReturnRows(appointmentRow("approved"))
	appt, err = repo.TransitionStatus(context.Background(), "appt-1", StatusRejected)
	if !errors.Is(err, ErrTerminalStatus) || appt == nil || appt.Status != StatusApproved {
		t.Fatalf("expected terminal status conflict, got %v %#v", err, appt)
	}

	mock.ExpectQuery("UPDATE appointments SET status").WithArgs("ghost", "approved").WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT .* FROM appointments WHERE id").WithArgs("ghost").WillReturnError(pgx.ErrNoRows)
	if _, err := repo.TransitionStatus(context.Background(), "ghost", StatusApproved); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresRepository_ListByUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	mock.ExpectQuery("SELECT .* FROM appointments WHERE user_id = \\$1 ORDER BY created_at DESC").
		WithArgs("user-1").
		WillReturnRows(appointmentRow("pending"))

	items, err := repo.ListByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].Status != StatusPending {
		t.Fatalf("unexpected items %#v", items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
