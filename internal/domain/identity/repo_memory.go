package identity

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

type userRepoMemory struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewUserRepoMemory() UserRepository {
	return &userRepoMemory{users: make(map[string]*User)}
}

func (r *userRepoMemory) Create(_ context.Context, u *User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(u.Username)
	if _, ok := r.users[key]; ok {
		return ErrUsernameTaken
	}
	for _, other := range r.users {
		if strings.EqualFold(other.Email, u.Email) {
			return ErrEmailTaken
		}
	}
	u.ID = uuid.New()
	r.users[key] = u.clone()
	return nil
}

func (r *userRepoMemory) GetByUsername(_ context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[strings.ToLower(username)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.clone(), nil
}

func (r *userRepoMemory) Search(_ context.Context, term string, limit int) ([]*User, error) {
	term = strings.ToLower(term)
	all := r.sorted()
	out := make([]*User, 0, len(all))
	for _, u := range all {
		if limit > 0 && len(out) == limit {
			break
		}
		if strings.Contains(strings.ToLower(u.Username), term) || strings.Contains(strings.ToLower(u.Email), term) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *userRepoMemory) List(_ context.Context, limit, offset int) ([]*User, int, error) {
	all := r.sorted()
	total := len(all)
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (r *userRepoMemory) sorted() []*User {
	r.mu.RLock()
	out := make([]*User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u.clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Username) < strings.ToLower(out[j].Username) })
	return out
}
