package appointments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/valooran/patient-intake-system/internal/diagnosis"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const appointmentColumns = `id, user_id, doctor, scheduled_for, hospital, disease_conclusion, severity, medications, status, created_at`

// PostgresRepository stores appointments in the appointments table.
type PostgresRepository struct {
	pool pgxQuerier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q pgxQuerier) *PostgresRepository {
	if q == nil {
		panic("appointments: querier required")
	}
	return &PostgresRepository{pool: q}
}

func (r *PostgresRepository) Create(ctx context.Context, appt *Appointment) error {
	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	meds := appt.Medications
	if meds == nil {
		meds = []string{}
	}
	if _, err := r.pool.Exec(ctx, query,
		appt.ID,
		appt.UserID,
		appt.Doctor,
		appt.Time,
		appt.Hospital,
		appt.DiseaseConclusion,
		string(appt.Severity),
		meds,
		string(appt.Status),
		appt.CreatedAt,
	); err != nil {
		return fmt.Errorf("appointments: insert failed: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	return appt, nil
}

// TransitionStatus only updates rows still pending, so concurrent decisions cannot
// overwrite each other.
func (r *PostgresRepository) TransitionStatus(ctx context.Context, id string, to Status) (*Appointment, error) {
	query := `
		UPDATE appointments SET status = $2
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + appointmentColumns
	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, id, string(to)))
	if err == nil {
		return appt, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("appointments: update status failed: %w", err)
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return current, ErrTerminalStatus
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	return r.list(ctx, query, userID)
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments ORDER BY created_at DESC, id DESC`
	return r.list(ctx, query)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list failed: %w", err)
	}
	defer rows.Close()

	out := make([]*Appointment, 0)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan failed: %w", err)
		}
		out = append(out, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: list failed: %w", err)
	}
	return out, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt     Appointment
		severity string
		status   string
	)
	if err := row.Scan(
		&appt.ID,
		&appt.UserID,
		&appt.Doctor,
		&appt.Time,
		&appt.Hospital,
		&appt.DiseaseConclusion,
		&severity,
		&appt.Medications,
		&status,
		&appt.CreatedAt,
	); err != nil {
		return nil, err
	}
	appt.Severity = diagnosis.Severity(severity)
	appt.Status = Status(status)
	if appt.Medications == nil {
		appt.Medications = []string{}
	}
	return &appt, nil
}
