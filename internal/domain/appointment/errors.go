package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("appointment: not found")
	ErrConflict         = errors.New("appointment: status conflict")
	ErrForbidden        = errors.New("appointment: action reserved for the other party")
	ErrStoreUnavailable = errors.New("appointment: store unavailable")
)

// ValidationError rejects malformed input before any store call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// storeErr classifies a repository error. Domain errors pass through, anything
// else is reported as the store being unavailable.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict),
		errors.Is(err, ErrForbidden), errors.Is(err, ErrStoreUnavailable),
		errors.As(err, &verr):
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

func isStoreFailure(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
