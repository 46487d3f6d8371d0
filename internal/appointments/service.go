package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valooran/patient-intake-system/internal/auth"
	"github.com/valooran/patient-intake-system/internal/observability/metrics"
	"github.com/valooran/patient-intake-system/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var appointmentsTracer = otel.Tracer("intake.internal.appointments")

// Listener observes committed lifecycle changes. Listener errors are logged and never
// undo or fail the operation.
type Listener interface {
	AppointmentBooked(ctx context.Context, appt *Appointment) error
	AppointmentStatusChanged(ctx context.Context, appt *Appointment, from Status, actor auth.Identity) error
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithListener(l Listener) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.listeners = append(s.listeners, l)
		}
	}
}

func WithMetrics(m *metrics.AppointmentMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// Service drives the appointment lifecycle: pending, then approved or rejected by an
// administrator, never back.
type Service struct {
	repo      Repository
	logger    *logging.Logger
	now       func() time.Time
	listeners []Listener
	metrics   *metrics.AppointmentMetrics
}

// NewService constructs an appointments service.
func NewService(repo Repository, logger *logging.Logger, opts ...ServiceOption) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{repo: repo, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Book creates a pending appointment owned by userID.
func (s *Service) Book(ctx context.Context, userID string, req BookRequest) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.book")
	defer span.End()
	span.SetAttributes(attribute.String("intake.user_id", userID))

	if strings.TrimSpace(userID) == "" {
		return nil, ErrForbidden
	}
	now := s.now().UTC()
	req, severity, err := req.Validate(now)
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:                uuid.NewString(),
		UserID:            userID,
		Doctor:            req.Doctor,
		Time:              req.Time.UTC(),
		Hospital:          req.Hospital,
		DiseaseConclusion: req.DiseaseConclusion,
		Severity:          severity,
		Medications:       req.Medications,
		Status:            StatusPending,
		CreatedAt:         now,
	}
	if err := s.repo.Create(ctx, appt); err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.metrics.ObserveBooked()
	s.logger.Info("appointment booked", "appointment_id", appt.ID, "user_id", userID, "severity", string(severity))

	for _, l := range s.listeners {
		if err := l.AppointmentBooked(ctx, appt.clone()); err != nil {
			s.logger.Warn("appointment listener failed", "event", "booked", "appointment_id", appt.ID, "error", err)
		}
	}
	return appt, nil
}

// SetStatus records an administrator decision. Re-applying the current terminal
// status is a no-op; any other change to a decided appointment is ErrTerminalStatus.
func (s *Service) SetStatus(ctx context.Context, actor auth.Identity, id string, status Status) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.set_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("intake.appointment_id", id),
		attribute.String("intake.status", string(status)),
	)

	if !actor.IsAdmin() {
		s.metrics.ObserveTransition(string(status), "forbidden")
		return nil, ErrForbidden
	}
	if status != StatusApproved && status != StatusRejected {
		s.metrics.ObserveTransition(string(status), "invalid")
		return nil, fmt.Errorf("%w: status must be approved or rejected", ErrValidation)
	}

	appt, err := s.repo.TransitionStatus(ctx, id, status)
	switch {
	case errors.Is(err, ErrTerminalStatus) && appt != nil && appt.Status == status:
		s.metrics.ObserveTransition(string(status), "noop")
		return appt, nil
	case errors.Is(err, ErrTerminalStatus):
		s.metrics.ObserveTransition(string(status), "conflict")
		return appt, err
	case errors.Is(err, ErrNotFound):
		s.metrics.ObserveTransition(string(status), "not_found")
		return nil, err
	case err != nil:
		span.RecordError(err)
		s.metrics.ObserveTransition(string(status), "error")
		return nil, err
	}

	s.metrics.ObserveTransition(string(status), "ok")
	s.logger.Info("appointment status changed", "appointment_id", id, "status", string(status), "admin_id", actor.UserID)
	for _, l := range s.listeners {
		if err := l.AppointmentStatusChanged(ctx, appt.clone(), StatusPending, actor); err != nil {
			s.logger.Warn("appointment listener failed", "event", "status_changed", "appointment_id", id, "error", err)
		}
	}
	return appt, nil
}

// ListForUser returns the user's appointments, most recent first.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.list_for_user")
	defer span.End()
	return s.repo.ListByUser(ctx, userID)
}

// ListAll returns every appointment, most recent first. Administrators only.
func (s *Service) ListAll(ctx context.Context, actor auth.Identity) ([]*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.list_all")
	defer span.End()
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.repo.ListAll(ctx)
}
