// Package feedback collects post-consultation ratings from patients.
package feedback

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrValidation marks a submission with bad input.
	ErrValidation = errors.New("feedback: validation failed")

	// ErrForbidden is returned when a non-administrator lists feedback.
	ErrForbidden = errors.New("feedback: admin access only")
)

const maxCommentLength = 2000

// Feedback is one rating left by a user.
type Feedback struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SubmitRequest is the body of POST /api/feedback.
type SubmitRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// Validate enforces a 1 to 5 rating and a bounded optional comment.
func (r SubmitRequest) Validate() (SubmitRequest, error) {
	if r.Rating < 1 || r.Rating > 5 {
		return r, fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}
	r.Comment = strings.TrimSpace(r.Comment)
	if len([]rune(r.Comment)) > maxCommentLength {
		return r, fmt.Errorf("%w: comment is too long", ErrValidation)
	}
	return r, nil
}
