package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/rendezvous/rendezvous/internal/platform/auth"
	"github.com/rendezvous/rendezvous/internal/platform/validation"
)

type RegisterRequest struct {
	Username    string `json:"username" validate:"required,username,min=3,max=64"`
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,min=8,max=72"`
	DisplayName string `json:"displayName" validate:"omitempty,max=128"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type Settings struct {
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Now        func() time.Time
}

type Service struct {
	users    UserRepository
	tokens   *auth.TokenIssuer
	validate *validator.Validate
	cost     int
	now      func() time.Time
	logger   zerolog.Logger

	// dummyHash is compared against when the username is unknown so that
	// failed logins take the same time either way.
	dummyHash []byte
}

// NewService builds the directory service. tokens may be nil, in which case
// Login returns ErrTokensDisabled.
func NewService(users UserRepository, tokens *auth.TokenIssuer, logger zerolog.Logger, cfg Settings) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cfg.BcryptCost)
	return &Service{
		users:     users,
		tokens:    tokens,
		validate:  validation.New(),
		cost:      cfg.BcryptCost,
		now:       cfg.Now,
		logger:    logger.With().Str("component", "identity").Logger(),
		dummyHash: dummy,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	password := req.Password
	validation.Sanitize(&req)
	req.Password = password
	req.Email = strings.ToLower(req.Email)
	if err := s.validate.Struct(req); err != nil {
		return nil, validation.FieldErrors(err)[0]
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	u := &User{
		Username:     req.Username,
		Email:        req.Email,
		DisplayName:  req.DisplayName,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if !errors.Is(err, ErrUsernameTaken) && !errors.Is(err, ErrEmailTaken) {
			s.logger.Error().Err(err).Str("username", u.Username).Msg("register user failed")
		}
		return nil, err
	}
	s.logger.Info().Str("username", u.Username).Msg("user registered")
	return u, nil
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	if s.tokens == nil {
		return nil, ErrTokensDisabled
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := s.validate.Struct(req); err != nil {
		return nil, validation.FieldErrors(err)[0]
	}

	u, err := s.users.GetByUsername(ctx, req.Username)
	if errors.Is(err, ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Debug().Str("username", u.Username).Msg("login rejected")
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(u.Username, u.Email)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("username", u.Username).Msg("user logged in")
	return &Session{Token: token, TokenType: "Bearer", ExpiresAt: exp, User: u}, nil
}

// Me returns the directory entry for the authenticated username.
func (s *Service) Me(ctx context.Context, username string) (*User, error) {
	return s.users.GetByUsername(ctx, username)
}

// Search powers the participant picker. The caller is left out of the results
// since an appointment with oneself is not allowed.
func (s *Service) Search(ctx context.Context, caller, term string, limit int) ([]*User, error) {
	term = strings.TrimSpace(term)
	if limit <= 0 || limit > DefaultSearchLimit {
		limit = DefaultSearchLimit
	}
	found, err := s.users.Search(ctx, term, limit+1)
	if err != nil {
		return nil, err
	}
	out := make([]*User, 0, len(found))
	for _, u := range found {
		if strings.EqualFold(u.Username, caller) {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}
