// Package notify emails the admin inbox about appointment activity.
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/valooran/patient-intake-system/internal/appointments"
)

// NoticeKind names the appointment event an email reports.
type NoticeKind string

const (
	NoticeBooked        NoticeKind = "booked"
	NoticeStatusChanged NoticeKind = "status_changed"
)

// AppointmentNotice is one admin email about an appointment. Senders render it with
// Subject, Text and HTML.
type AppointmentNotice struct {
	Kind        NoticeKind
	To          string
	ReplyTo     string
	Appointment *appointments.Appointment
	// PreviousStatus and Actor are set for status changes.
	PreviousStatus appointments.Status
	Actor          string
}

func (n AppointmentNotice) Subject() string {
	a := n.Appointment
	if n.Kind == NoticeStatusChanged {
		return fmt.Sprintf("Appointment %s: %s", a.Status, a.Doctor)
	}
	return fmt.Sprintf("New appointment request: %s at %s", a.Doctor, a.Hospital)
}

func (n AppointmentNotice) headline() string {
	if n.Kind == NoticeStatusChanged {
		return fmt.Sprintf("Status changed from %s to %s by %s.", n.PreviousStatus, n.Appointment.Status, n.Actor)
	}
	return "A patient has requested an appointment that needs review."
}

type detailRow struct {
	Label string
	Value string
}

func (n AppointmentNotice) details() []detailRow {
	a := n.Appointment
	rows := []detailRow{
		{"Appointment", a.ID},
		{"Patient", a.UserID},
		{"Doctor", a.Doctor},
		{"Hospital", a.Hospital},
		{"Time", a.Time.UTC().Format(time.RFC1123)},
		{"Status", string(a.Status)},
	}
	if a.DiseaseConclusion != "" {
		rows = append(rows, detailRow{"Diagnosis", a.DiseaseConclusion})
	}
	if a.Severity != "" {
		rows = append(rows, detailRow{"Severity", string(a.Severity)})
	}
	if len(a.Medications) > 0 {
		rows = append(rows, detailRow{"Medications", strings.Join(a.Medications, ", ")})
	}
	return rows
}

// Text is the plain-text body.
func (n AppointmentNotice) Text() string {
	var b strings.Builder
	b.WriteString(n.headline())
	b.WriteString("\n\n")
	for _, row := range n.details() {
		fmt.Fprintf(&b, "%s: %s\n", row.Label, row.Value)
	}
	return b.String()
}

var noticeHTML = template.Must(template.New("notice").Parse(`<p>{{.Headline}}</p>
<table>
{{- range .Rows}}
<tr><th align="left">{{.Label}}</th><td>{{.Value}}</td></tr>
{{- end}}
</table>
`))

// HTML is the escaped HTML body.
func (n AppointmentNotice) HTML() (string, error) {
	var buf bytes.Buffer
	err := noticeHTML.Execute(&buf, struct {
		Headline string
		Rows     []detailRow
	}{n.headline(), n.details()})
	if err != nil {
		return "", fmt.Errorf("notify: render notice: %w", err)
	}
	return buf.String(), nil
}
