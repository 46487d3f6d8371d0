// Package audit keeps an append-only trail of appointment lifecycle events.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/valooran/patient-intake-system/internal/appointments"
	"github.com/valooran/patient-intake-system/internal/auth"
)

// EventType names an appointment lifecycle event.
type EventType string

const (
	EventBooked        EventType = "appointment.booked"
	EventStatusChanged EventType = "appointment.status_changed"
)

// Event is an immutable audit record.
type Event struct {
	ID            string          `json:"id"`
	EventType     EventType       `json:"eventType"`
	AppointmentID string          `json:"appointmentId"`
	UserID        string          `json:"userId"`
	ActorID       string          `json:"actorId"`
	FromStatus    string          `json:"fromStatus,omitempty"`
	ToStatus      string          `json:"toStatus"`
	Medications   []string        `json:"medications,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Details carries event-specific context.
type Details struct {
	Doctor            string `json:"doctor,omitempty"`
	Hospital          string `json:"hospital,omitempty"`
	ScheduledFor      string `json:"scheduledFor,omitempty"`
	DiseaseConclusion string `json:"diseaseConclusion,omitempty"`
	Severity          string `json:"severity,omitempty"`
	ActorRole         string `json:"actorRole,omitempty"`
}

// Filter narrows Query results.
type Filter struct {
	AppointmentID string
	UserID        string
	EventType     EventType
	StartTime     time.Time
	EndTime       time.Time
	Limit         int
}

// Store writes audit events to Postgres.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new audit store.
func NewStore(db *sql.DB) *Store {
	if db == nil {
		panic("audit: sql db required")
	}
	return &Store{db: db, now: time.Now}
}

// Record inserts one event.
func (s *Store) Record(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	if event.Details == nil {
		event.Details = json.RawMessage(`{}`)
	}
	if event.Medications == nil {
		event.Medications = []string{}
	}

	query := `
		INSERT INTO appointment_events (
			id, event_type, appointment_id, user_id, actor_id,
			from_status, to_status, medications, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.AppointmentID,
		event.UserID,
		event.ActorID,
		nullString(event.FromStatus),
		event.ToStatus,
		pq.Array(event.Medications),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to record event: %w", err)
	}
	return nil
}

// AppointmentBooked records a new pending appointment.
func (s *Store) AppointmentBooked(ctx context.Context, appt *appointments.Appointment) error {
	details, _ := json.Marshal(Details{
		Doctor:            appt.Doctor,
		Hospital:          appt.Hospital,
		ScheduledFor:      appt.Time.UTC().Format(time.RFC3339),
		DiseaseConclusion: appt.DiseaseConclusion,
		Severity:          string(appt.Severity),
		ActorRole:         auth.RoleUser,
	})
	return s.Record(ctx, Event{
		EventType:     EventBooked,
		AppointmentID: appt.ID,
		UserID:        appt.UserID,
		ActorID:       appt.UserID,
		ToStatus:      string(appt.Status),
		Medications:   appt.Medications,
		Details:       details,
	})
}

// AppointmentStatusChanged records an administrator decision.
func (s *Store) AppointmentStatusChanged(ctx context.Context, appt *appointments.Appointment, from appointments.Status, actor auth.Identity) error {
	details, _ := json.Marshal(Details{ActorRole: actor.Role})
	return s.Record(ctx, Event{
		EventType:     EventStatusChanged,
		AppointmentID: appt.ID,
		UserID:        appt.UserID,
		ActorID:       actor.UserID,
		FromStatus:    string(from),
		ToStatus:      string(appt.Status),
		Medications:   appt.Medications,
		Details:       details,
	})
}

// Query returns events matching filter, newest first.
func (s *Store) Query(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, appointment_id, user_id, actor_id,
			   from_status, to_status, medications, details, created_at
		FROM appointment_events
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.AppointmentID != "" {
		query += fmt.Sprintf(" AND appointment_id = $%d", argIdx)
		args = append(args, filter.AppointmentID)
		argIdx++
	}
	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e       Event
			from    sql.NullString
			details []byte
		)
		if err := rows.Scan(
			&e.ID, &e.EventType, &e.AppointmentID, &e.UserID, &e.ActorID,
			&from, &e.ToStatus, pq.Array(&e.Medications), &details, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.FromStatus = from.String
		e.Details = json.RawMessage(details)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	return events, nil
}

var _ appointments.Listener = (*Store)(nil)

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
