package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists appointments. Implementations return ErrNotFound when
// a record does not exist and raw driver errors otherwise.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ListReceived returns open appointments directed at participant.
	ListReceived(ctx context.Context, participant string) ([]*Appointment, error)
	// ListScheduled returns the appointments scheduler created that are
	// neither canceled nor declined.
	ListScheduled(ctx context.Context, scheduler string) ([]*Appointment, error)
	// CompareAndSetStatus moves the record from expected to next. It reports
	// false without error when the record is missing or no longer in expected.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status, at time.Time) (bool, error)
	// DeleteIfStatus removes the record only while it is still in expected.
	DeleteIfStatus(ctx context.Context, id uuid.UUID, expected Status) (bool, error)
}

var (
	receivedStatuses = []Status{StatusPending, StatusApproved}
	hiddenScheduled  = []Status{StatusCanceled, StatusDeclined}
)

func statusStrings(ss []Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}
