package appointment

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ListForRole returns the appointments user sees in the given role, ordered
// by scheduled date and time.
func ListForRole(ctx context.Context, repo Repository, user string, role Role) ([]*Appointment, error) {
	var (
		items []*Appointment
		err   error
	)
	user = CanonicalUsername(user)
	switch role {
	case RoleParticipant:
		items, err = repo.ListReceived(ctx, user)
	case RoleScheduler:
		items, err = repo.ListScheduled(ctx, user)
	default:
		return nil, &ValidationError{Field: "role", Message: fmt.Sprintf("unknown role %q", role)}
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return visible(items), nil
}

// ListForUser runs the received and scheduled queries concurrently and merges
// them into one list without duplicates.
func ListForUser(ctx context.Context, repo Repository, user string, loc *time.Location) ([]*Appointment, error) {
	var received, scheduled []*Appointment
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		received, err = ListForRole(gctx, repo, user, RoleParticipant)
		return err
	})
	g.Go(func() error {
		var err error
		scheduled, err = ListForRole(gctx, repo, user, RoleScheduler)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return MergeByID(loc, received, scheduled), nil
}

// MergeByID combines lists keyed by id. When an id appears more than once the
// copy from the later list wins. The result is ordered by instant, then
// creation time, then id. Records whose instant cannot be parsed sort first.
func MergeByID(loc *time.Location, lists ...[]*Appointment) []*Appointment {
	arena := make(map[uuid.UUID]int)
	var merged []*Appointment
	for _, list := range lists {
		for _, a := range list {
			if a == nil {
				continue
			}
			if i, ok := arena[a.ID]; ok {
				merged[i] = a
				continue
			}
			arena[a.ID] = len(merged)
			merged = append(merged, a)
		}
	}

	type keyed struct {
		a       *Appointment
		instant time.Time
		ok      bool
	}
	ks := make([]keyed, len(merged))
	for i, a := range merged {
		t, err := a.Instant(loc)
		ks[i] = keyed{a: a, instant: t, ok: err == nil}
	}
	sort.SliceStable(ks, func(i, j int) bool {
		x, y := ks[i], ks[j]
		if x.ok != y.ok {
			return !x.ok
		}
		if !x.instant.Equal(y.instant) {
			return x.instant.Before(y.instant)
		}
		if !x.a.CreatedAt.Equal(y.a.CreatedAt) {
			return x.a.CreatedAt.Before(y.a.CreatedAt)
		}
		return x.a.ID.String() < y.a.ID.String()
	})

	out := make([]*Appointment, len(ks))
	for i, k := range ks {
		out[i] = k.a
	}
	return out
}

// FilterText keeps appointments whose title or description contains q,
// ignoring case. An empty q keeps everything.
func FilterText(appts []*Appointment, q string) []*Appointment {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return appts
	}
	out := make([]*Appointment, 0, len(appts))
	for _, a := range appts {
		if strings.Contains(strings.ToLower(a.Title), q) || strings.Contains(strings.ToLower(a.Description), q) {
			out = append(out, a)
		}
	}
	return out
}

func visible(appts []*Appointment) []*Appointment {
	out := appts[:0:0]
	for _, a := range appts {
		if a.Visible() {
			out = append(out, a)
		}
	}
	return out
}
