package appointments

import "errors"

var (
	// ErrValidation marks a booking or status request with bad input.
	ErrValidation = errors.New("appointments: validation failed")

	// ErrNotFound is returned when the referenced appointment does not exist.
	ErrNotFound = errors.New("appointments: appointment not found")

	// ErrForbidden is returned when a non-administrator attempts an admin-only action.
	ErrForbidden = errors.New("appointments: admin access only")

	// ErrTerminalStatus is returned when an approved or rejected appointment would change.
	ErrTerminalStatus = errors.New("appointments: status is final")
)
