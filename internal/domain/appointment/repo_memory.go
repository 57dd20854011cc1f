package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type repoMemory struct {
	mu    sync.RWMutex
	appts map[uuid.UUID]*Appointment
}

// NewRepoMemory returns a process-local Repository. Records are copied in and
// out so callers never share state with the store.
func NewRepoMemory() Repository {
	return &repoMemory{appts: make(map[uuid.UUID]*Appointment)}
}

func (r *repoMemory) Create(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ID = uuid.New()
	r.appts[a.ID] = a.clone()
	return nil
}

func (r *repoMemory) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.clone(), nil
}

func (r *repoMemory) ListReceived(_ context.Context, participant string) ([]*Appointment, error) {
	return r.list(func(a *Appointment) bool {
		return strings.EqualFold(a.AppointmentWith, participant) && hasStatus(receivedStatuses, a.Status)
	}), nil
}

func (r *repoMemory) ListScheduled(_ context.Context, scheduler string) ([]*Appointment, error) {
	return r.list(func(a *Appointment) bool {
		return strings.EqualFold(a.CreatedBy, scheduler) && !hasStatus(hiddenScheduled, a.Status)
	}), nil
}

func (r *repoMemory) CompareAndSetStatus(_ context.Context, id uuid.UUID, expected, next Status, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status != expected {
		return false, nil
	}
	a.Status = next
	a.UpdatedAt = at
	return true, nil
}

func (r *repoMemory) DeleteIfStatus(_ context.Context, id uuid.UUID, expected Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appts[id]
	if !ok || a.Status != expected {
		return false, nil
	}
	delete(r.appts, id)
	return true, nil
}

func (r *repoMemory) list(match func(*Appointment) bool) []*Appointment {
	r.mu.RLock()
	var items []*Appointment
	for _, a := range r.appts {
		if match(a) {
			items = append(items, a.clone())
		}
	}
	r.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool { return scheduleLess(items[i], items[j]) })
	return items
}

// scheduleLess orders by scheduled date and time, then creation, then id. This
// is the ORDER BY every backend applies to list queries.
func scheduleLess(a, b *Appointment) bool {
	if a.Date != b.Date {
		return a.Date < b.Date
	}
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func hasStatus(set []Status, s Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
