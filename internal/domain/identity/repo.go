package identity

import (
	"context"
)

// DefaultSearchLimit caps user picker results.
const DefaultSearchLimit = 20

type UserRepository interface {
	// Create stores u and assigns its ID. Usernames and emails are unique
	// without regard to case; a clash returns ErrUsernameTaken or ErrEmailTaken.
	Create(ctx context.Context, u *User) error
	GetByUsername(ctx context.Context, username string) (*User, error)
	// Search matches term as a case-insensitive substring of username or email.
	Search(ctx context.Context, term string, limit int) ([]*User, error)
	List(ctx context.Context, limit, offset int) ([]*User, int, error)
}
