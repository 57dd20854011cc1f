package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action is a request to move an appointment to another status.
type Action string

const (
	ActionAccept  Action = "accept"
	ActionDecline Action = "decline"
	ActionCancel  Action = "cancel"
)

// ParseAction maps client input onto the closed set of actions.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionAccept, ActionDecline, ActionCancel:
		return a, nil
	}
	return "", &ValidationError{Field: "action", Message: "Invalid action"}
}

// DeclinePolicy selects what a decline does to the stored record.
type DeclinePolicy string

const (
	// DeclineRetain keeps the record in the declined status. Every read path
	// treats declined records as absent.
	DeclineRetain DeclinePolicy = "retain"
	// DeclinePurge deletes the record.
	DeclinePurge DeclinePolicy = "purge"
)

func ParseDeclinePolicy(s string) (DeclinePolicy, error) {
	switch p := DeclinePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return DeclineRetain, nil
	case DeclineRetain, DeclinePurge:
		return p, nil
	}
	return "", fmt.Errorf("unknown decline policy %q", s)
}

type rule struct {
	from []Status
	to   Status
	by   Role
}

var rules = map[Action]rule{
	ActionAccept:  {from: []Status{StatusPending}, to: StatusApproved, by: RoleParticipant},
	ActionDecline: {from: []Status{StatusPending}, to: StatusDeclined, by: RoleParticipant},
	ActionCancel:  {from: []Status{StatusPending, StatusApproved}, to: StatusCanceled, by: RoleScheduler},
}

// Authority is the only writer of appointment status. Every change is a
// compare-and-set against the status it read, so two racing actions on the
// same record cannot both take effect.
type Authority struct {
	repo   Repository
	policy DeclinePolicy
	now    func() time.Time
}

func NewAuthority(repo Repository, policy DeclinePolicy, now func() time.Time) *Authority {
	if policy == "" {
		policy = DeclineRetain
	}
	if now == nil {
		now = time.Now
	}
	return &Authority{repo: repo, policy: policy, now: now}
}

// Apply performs action on behalf of actor. The returned appointment reflects
// the status written; after a purging decline it is the final snapshot of a
// record that no longer exists.
func (t *Authority) Apply(ctx context.Context, id uuid.UUID, action Action, actor string) (*Appointment, error) {
	r, ok := rules[action]
	if !ok {
		return nil, &ValidationError{Field: "action", Message: "Invalid action"}
	}

	cur, err := t.repo.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err)
	}
	if !cur.Visible() {
		return nil, ErrNotFound
	}
	role, ok := cur.RoleOf(actor)
	if !ok {
		return nil, ErrNotFound
	}
	if role != r.by {
		return nil, fmt.Errorf("%w: only the %s may %s", ErrForbidden, r.by, action)
	}
	if !hasStatus(r.from, cur.Status) {
		return nil, fmt.Errorf("%w: cannot %s an appointment that is %s", ErrConflict, action, cur.Status)
	}

	at := t.now().UTC()
	var applied bool
	if action == ActionDecline && t.policy == DeclinePurge {
		applied, err = t.repo.DeleteIfStatus(ctx, id, cur.Status)
	} else {
		applied, err = t.repo.CompareAndSetStatus(ctx, id, cur.Status, r.to, at)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	if !applied {
		return nil, t.lost(ctx, id, cur.Status)
	}

	cur.Status = r.to
	cur.UpdatedAt = at
	return cur, nil
}

// lost explains a compare-and-set that matched no record.
func (t *Authority) lost(ctx context.Context, id uuid.UUID, expected Status) error {
	latest, err := t.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return storeErr(err)
	}
	if !latest.Visible() {
		return ErrNotFound
	}
	return fmt.Errorf("%w: status changed from %s to %s", ErrConflict, expected, latest.Status)
}
