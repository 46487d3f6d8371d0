package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/valooran/patient-intake-system/internal/appointments"
	"github.com/valooran/patient-intake-system/internal/auth"
	"github.com/valooran/patient-intake-system/pkg/logging"
)

// Service sends appointment notices to the admin inbox.
type Service struct {
	email      EmailSender
	adminEmail string
	logger     *logging.Logger
}

// NewService creates a notification service. An empty adminEmail disables delivery.
func NewService(email EmailSender, adminEmail string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:      email,
		adminEmail: strings.TrimSpace(adminEmail),
		logger:     logger,
	}
}

// AppointmentBooked tells the admin inbox a pending appointment needs review.
func (s *Service) AppointmentBooked(ctx context.Context, appt *appointments.Appointment) error {
	if !s.enabled() {
		s.logger.Debug("notify: admin email not configured, skipping booking notice", "appointment_id", appt.ID)
		return nil
	}
	return s.send(ctx, AppointmentNotice{
		Kind:        NoticeBooked,
		To:          s.adminEmail,
		Appointment: appt,
	})
}

// AppointmentStatusChanged sends a summary of an administrator decision. Replies go to
// the deciding administrator when their email is known.
func (s *Service) AppointmentStatusChanged(ctx context.Context, appt *appointments.Appointment, from appointments.Status, actor auth.Identity) error {
	if !s.enabled() {
		return nil
	}
	return s.send(ctx, AppointmentNotice{
		Kind:           NoticeStatusChanged,
		To:             s.adminEmail,
		ReplyTo:        actor.Email,
		Appointment:    appt,
		PreviousStatus: from,
		Actor:          actorLabel(actor),
	})
}

func (s *Service) enabled() bool {
	return s.email != nil && s.adminEmail != ""
}

func (s *Service) send(ctx context.Context, notice AppointmentNotice) error {
	if err := s.email.SendNotice(ctx, notice); err != nil {
		s.logger.Error("notify: failed to send appointment notice", "error", err, "kind", notice.Kind, "appointment_id", notice.Appointment.ID)
		return fmt.Errorf("notify: send appointment email: %w", err)
	}
	return nil
}

func actorLabel(actor auth.Identity) string {
	if actor.Email != "" {
		return actor.Email
	}
	return actor.UserID
}

var _ appointments.Listener = (*Service)(nil)
