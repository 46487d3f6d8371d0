package notify

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/valooran/patient-intake-system/pkg/logging"
)

// EmailSender delivers appointment notices.
type EmailSender interface {
	SendNotice(ctx context.Context, notice AppointmentNotice) error
}

const defaultFromName = "Patient Intake"

// SenderConfig is the envelope shared by every provider.
type SenderConfig struct {
	FromEmail string
	FromName  string
}

func (c SenderConfig) withDefaults() SenderConfig {
	if c.FromName == "" {
		c.FromName = defaultFromName
	}
	return c
}

// SendGridSender sends notices through the SendGrid v3 API.
type SendGridSender struct {
	client *sendgrid.Client
	from   SenderConfig
	logger *logging.Logger
}

// NewSendGridSender returns nil without an API key.
func NewSendGridSender(apiKey string, cfg SenderConfig, logger *logging.Logger) *SendGridSender {
	if apiKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SendGridSender{
		client: sendgrid.NewSendClient(apiKey),
		from:   cfg.withDefaults(),
		logger: logger,
	}
}

func (s *SendGridSender) SendNotice(ctx context.Context, n AppointmentNotice) error {
	if s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	html, err := n.HTML()
	if err != nil {
		return err
	}

	message := mail.NewSingleEmail(
		mail.NewEmail(s.from.FromName, s.from.FromEmail),
		n.Subject(),
		mail.NewEmail("", n.To),
		n.Text(),
		html,
	)
	message.AddCategories("appointment_" + string(n.Kind))
	if n.ReplyTo != "" {
		message.SetReplyTo(mail.NewEmail("", n.ReplyTo))
	}

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "appointment_id", n.Appointment.ID)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}
	s.logger.Info("notice sent via sendgrid", "kind", n.Kind, "appointment_id", n.Appointment.ID, "status", response.StatusCode)
	return nil
}

type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESSender sends notices through SES v2.
type SESSender struct {
	client sesAPI
	from   SenderConfig
	logger *logging.Logger
}

// NewSESSender returns nil without a client.
func NewSESSender(client *sesv2.Client, cfg SenderConfig, logger *logging.Logger) *SESSender {
	if client == nil {
		return nil
	}
	return newSESSender(client, cfg, logger)
}

func newSESSender(client sesAPI, cfg SenderConfig, logger *logging.Logger) *SESSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &SESSender{client: client, from: cfg.withDefaults(), logger: logger}
}

func (s *SESSender) SendNotice(ctx context.Context, n AppointmentNotice) error {
	html, err := n.HTML()
	if err != nil {
		return err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fmt.Sprintf("%s <%s>", s.from.FromName, s.from.FromEmail)),
		Destination:      &types.Destination{ToAddresses: []string{n.To}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8Content(n.Subject()),
				Body: &types.Body{
					Text: utf8Content(n.Text()),
					Html: utf8Content(html),
				},
			},
		},
		EmailTags: []types.MessageTag{{Name: aws.String("notice"), Value: aws.String(string(n.Kind))}},
	}
	if n.ReplyTo != "" {
		input.ReplyToAddresses = []string{n.ReplyTo}
	}

	output, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("notify: SES send failed: %w", err)
	}
	s.logger.Info("notice sent via SES", "kind", n.Kind, "appointment_id", n.Appointment.ID, "message_id", aws.ToString(output.MessageId))
	return nil
}

func utf8Content(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}

// StubEmailSender logs instead of sending. Used when no provider is configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) SendNotice(ctx context.Context, n AppointmentNotice) error {
	s.logger.Info("notice not sent, no email provider configured", "kind", n.Kind, "appointment_id", n.Appointment.ID, "subject", n.Subject())
	return nil
}

var (
	_ EmailSender = (*SendGridSender)(nil)
	_ EmailSender = (*SESSender)(nil)
	_ EmailSender = (*StubEmailSender)(nil)
)
