package feedback

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/valooran/patient-intake-system/internal/auth"
	"github.com/valooran/patient-intake-system/pkg/logging"
)

// Service validates and records feedback.
type Service struct {
	repo   Repository
	logger *logging.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger *logging.Logger) *Service {
	if repo == nil {
		panic("feedback: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

func (s *Service) Submit(ctx context.Context, userID string, req SubmitRequest) (*Feedback, error) {
	req, err := req.Validate()
	if err != nil {
		return nil, err
	}
	fb := &Feedback{
		ID:        uuid.NewString(),
		UserID:    userID,
		Rating:    req.Rating,
		Comment:   req.Comment,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, fb); err != nil {
		return nil, err
	}
	s.logger.Info("feedback submitted", "feedback_id", fb.ID, "user_id", userID, "rating", fb.Rating)
	return fb, nil
}

// List returns every submission, most recent first. Administrators only.
func (s *Service) List(ctx context.Context, actor auth.Identity) ([]*Feedback, error) {
	if !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.repo.List(ctx)
}
