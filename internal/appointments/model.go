package appointments

import (
	"fmt"
	"strings"
	"time"

	"github.com/valooran/patient-intake-system/internal/diagnosis"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ParseDecision accepts the statuses an administrator may set.
func ParseDecision(raw string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusApproved:
		return StatusApproved, nil
	case StatusRejected:
		return StatusRejected, nil
	default:
		return "", fmt.Errorf("%w: status must be approved or rejected", ErrValidation)
	}
}

// Appointment is a booking request. The user owns the content fields; only an
// administrator changes Status.
type Appointment struct {
	ID                string             `json:"id"`
	UserID            string             `json:"userId"`
	Doctor            string             `json:"doctor"`
	Time              time.Time          `json:"time"`
	Hospital          string             `json:"hospital"`
	DiseaseConclusion string             `json:"diseaseConclusion,omitempty"`
	Severity          diagnosis.Severity `json:"severity,omitempty"`
	Medications       []string           `json:"medications"`
	Status            Status             `json:"status"`
	CreatedAt         time.Time          `json:"createdAt"`
}

func (a *Appointment) clone() *Appointment {
	if a == nil {
		return nil
	}
	out := *a
	out.Medications = append([]string(nil), a.Medications...)
	return &out
}

// BookRequest is the body of POST /api/appointments. Diagnosis fields are optional and
// usually copied from a conversation conclusion.
type BookRequest struct {
	Doctor            string    `json:"doctor"`
	Time              time.Time `json:"time"`
	Hospital          string    `json:"hospital"`
	DiseaseConclusion string    `json:"diseaseConclusion,omitempty"`
	Severity          string    `json:"severity,omitempty"`
	Medications       []string  `json:"medications,omitempty"`
}

// Validate checks the request against now and returns the normalized appointment fields.
func (r BookRequest) Validate(now time.Time) (BookRequest, diagnosis.Severity, error) {
	r.Doctor = strings.TrimSpace(r.Doctor)
	r.Hospital = strings.TrimSpace(r.Hospital)
	r.DiseaseConclusion = strings.TrimSpace(r.DiseaseConclusion)

	if r.Doctor == "" {
		return r, "", fmt.Errorf("%w: doctor is required", ErrValidation)
	}
	if r.Hospital == "" {
		return r, "", fmt.Errorf("%w: hospital is required", ErrValidation)
	}
	if r.Time.IsZero() {
		return r, "", fmt.Errorf("%w: time is required", ErrValidation)
	}
	if !r.Time.After(now) {
		return r, "", fmt.Errorf("%w: time must be in the future", ErrValidation)
	}

	var severity diagnosis.Severity
	if strings.TrimSpace(r.Severity) != "" {
		level, ok := diagnosis.ParseSeverity(r.Severity)
		if !ok {
			return r, "", fmt.Errorf("%w: severity must be one of Low, Moderate, High, Emergency", ErrValidation)
		}
		severity = level
	}

	meds := make([]string, 0, len(r.Medications))
	for _, med := range r.Medications {
		if med = strings.TrimSpace(med); med != "" {
			meds = append(meds, med)
		}
	}
	r.Medications = meds
	return r, severity, nil
}

// StatusRequest is the body of PATCH /api/appointments/{id}.
type StatusRequest struct {
	Status string `json:"status"`
}
