package appointments

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valooran/patient-intake-system/internal/auth"
	"github.com/valooran/patient-intake-system/internal/diagnosis"
	"github.com/valooran/patient-intake-system/internal/observability/metrics"
	"github.com/valooran/patient-intake-system/pkg/logging"
)

var (
	testNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	admin   = auth.Identity{UserID: "admin-1", Role: auth.RoleAdmin}
	patient = auth.Identity{UserID: "user-1", Role: auth.RoleUser}
)

type recordingListener struct {
	mu      sync.Mutex
	booked  []*Appointment
	changed []Status
	err     error
}

func (l *recordingListener) AppointmentBooked(_ context.Context, appt *Appointment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.booked = append(l.booked, appt)
	return l.err
}

func (l *recordingListener) AppointmentStatusChanged(_ context.Context, appt *Appointment, from Status, _ auth.Identity) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changed = append(l.changed, appt.Status)
	return l.err
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *InMemoryRepository) {
	t.Helper()
	repo := NewInMemoryRepository()
	clock := testNow
	base := []ServiceOption{
		WithClock(func() time.Time { return clock }),
		WithMetrics(metrics.NewAppointmentMetrics(prometheus.NewRegistry())),
	}
	logger := logging.NewWithWriter(&strings.Builder{}, "error")
	return NewService(repo, logger, append(base, opts...)...), repo
}

func validBooking() BookRequest {
	return BookRequest{
		Doctor:            "Dr. Mehta",
		Time:              testNow.Add(48 * time.Hour),
		Hospital:          "Apollo Hospitals Chennai",
		DiseaseConclusion: "Tension-type headache",
		Severity:          "moderate",
		Medications:       []string{"paracetamol", " ibuprofen ", ""},
	}
}

func TestService_BookCreatesPending(t *testing.T) {
	listener := &recordingListener{}
	svc, _ := newTestService(t, WithListener(listener))

	appt, err := svc.Book(context.Background(), patient.UserID, validBooking())
	require.NoError(t, err)

	assert.NotEmpty(t, appt.ID)
	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, testNow, appt.CreatedAt)
	assert.Equal(t, diagnosis.SeverityModerate, appt.Severity)
	assert.Equal(t, []string{"paracetamol", "ibuprofen"}, appt.Medications)
	require.Len(t, listener.booked, 1)
	assert.Equal(t, appt.ID, listener.booked[0].ID)
}

func TestService_BookValidation(t *testing.T) {
	svc, repo := newTestService(t)

	cases := []struct {
		name   string
		mutate func(*BookRequest)
	}{
		{"time now", func(r *BookRequest) { r.Time = testNow }},
		{"time past", func(r *BookRequest) { r.Time = testNow.Add(-time.Minute) }},
		{"time missing", func(r *BookRequest) { r.Time = time.Time{} }},
		{"doctor blank", func(r *BookRequest) { r.Doctor = "  " }},
		{"hospital blank", func(r *BookRequest) { r.Hospital = "" }},
		{"unknown severity", func(r *BookRequest) { r.Severity = "critical" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validBooking()
			tc.mutate(&req)
			_, err := svc.Book(context.Background(), patient.UserID, req)
			assert.True(t, errors.Is(err, ErrValidation), "got %v", err)
		})
	}

	all, _ := repo.ListAll(context.Background())
	assert.Empty(t, all)
}

func TestService_BookWithoutDiagnosis(t *testing.T) {
	svc, _ := newTestService(t)
	req := BookRequest{Doctor: "Dr. Rao", Hospital: "Fortis", Time: testNow.Add(time.Hour)}

	appt, err := svc.Book(context.Background(), patient.UserID, req)
	require.NoError(t, err)
	assert.Equal(t, diagnosis.Severity(""), appt.Severity)
	assert.Empty(t, appt.Medications)
}

func TestService_SetStatusRequiresAdmin(t *testing.T) {
	svc, repo := newTestService(t)
	appt, err := svc.Book(context.Background(), patient.UserID, validBooking())
	require.NoError(t, err)

	_, err = svc.SetStatus(context.Background(), patient, appt.ID, StatusApproved)
	assert.True(t, errors.Is(err, ErrForbidden))

	stored, err := repo.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestService_SetStatusTransitions(t *testing.T) {
	listener := &recordingListener{err: errors.New("smtp down")}
	svc, _ := newTestService(t, WithListener(listener))
	ctx := context.Background()

	appt, err := svc.Book(ctx, patient.UserID, validBooking())
	require.NoError(t, err)

	updated, err := svc.SetStatus(ctx, admin, appt.ID, StatusApproved)
	require.NoError(t, err, "listener errors must not fail the transition")
	assert.Equal(t, StatusApproved, updated.Status)

	// Same terminal status again is a no-op.
	again, err := svc.SetStatus(ctx, admin, appt.ID, StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, again.Status)

	// Terminal states never change.
	current, err := svc.SetStatus(ctx, admin, appt.ID, StatusRejected)
	assert.True(t, errors.Is(err, ErrTerminalStatus))
	assert.Equal(t, StatusApproved, current.Status)

	_, err = svc.SetStatus(ctx, admin, appt.ID, StatusPending)
	assert.True(t, errors.Is(err, ErrValidation))

	assert.Equal(t, []Status{StatusApproved}, listener.changed)
}

func TestService_SetStatusNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.SetStatus(context.Background(), admin, "missing", StatusRejected)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestService_ConcurrentDecisionsHaveOneWinner(t *testing.T) {
	svc, _ := newTestService(t)
	appt, err := svc.Book(context.Background(), patient.UserID, validBooking())
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		conflicts int
	)
	for i := 0; i < 20; i++ {
		status := StatusApproved
		if i%2 == 1 {
			status = StatusRejected
		}
		wg.Add(1)
		go func(status Status) {
			defer wg.Done()
			if _, err := svc.SetStatus(context.Background(), admin, appt.ID, status); errors.Is(err, ErrTerminalStatus) {
				mu.Lock()
				conflicts++
				mu.Unlock()
			}
		}(status)
	}
	wg.Wait()

	// Whichever status won, the ten callers asking for the other one conflicted.
	assert.Equal(t, 10, conflicts)
}

func TestService_ListsNewestFirst(t *testing.T) {
	repo := NewInMemoryRepository()
	clock := testNow
	svc := NewService(repo, nil, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		req := validBooking()
		req.Time = clock.Add(72 * time.Hour)
		appt, err := svc.Book(ctx, patient.UserID, req)
		require.NoError(t, err)
		ids = append(ids, appt.ID)
		clock = clock.Add(time.Minute)
	}
	other, err := svc.Book(ctx, "user-2", validBookingAt(clock))
	require.NoError(t, err)

	mine, err := svc.ListForUser(ctx, patient.UserID)
	require.NoError(t, err)
	require.Len(t, mine, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{mine[0].ID, mine[1].ID, mine[2].ID})

	all, err := svc.ListAll(ctx, admin)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, other.ID, all[0].ID)

	_, err = svc.ListAll(ctx, patient)
	assert.True(t, errors.Is(err, ErrForbidden))
}

func validBookingAt(now time.Time) BookRequest {
	req := validBooking()
	req.Time = now.Add(24 * time.Hour)
	return req
}
