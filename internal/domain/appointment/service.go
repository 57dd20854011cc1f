package appointment

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rendezvous/rendezvous/internal/platform/validation"
)

// CreateRequest is the payload a scheduler submits. CreatedBy defaults to the
// caller and must match it when given.
type CreateRequest struct {
	Title           string `json:"title" validate:"required,notblank,max=200"`
	Description     string `json:"description" validate:"required,notblank,max=2000"`
	Date            string `json:"appointmentDate" validate:"required,isodate"`
	Time            string `json:"appointmentTime" validate:"required,clocktime"`
	AppointmentWith string `json:"appointmentWith" validate:"required,username,max=64"`
	AppointedTo     string `json:"appointedTo" validate:"omitempty,max=128"`
	CreatedBy       string `json:"createdBy" validate:"omitempty,username,max=64"`
	VoiceNote       string `json:"voiceNote" validate:"omitempty,max=64"`
}

type Settings struct {
	// Location interprets scheduled dates and times. Defaults to UTC.
	Location      *time.Location
	DeclinePolicy DeclinePolicy
	// Now is the clock used for timestamps and as the default partition
	// reference. Defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	repo      Repository
	authority *Authority
	validate  *validator.Validate
	loc       *time.Location
	now       func() time.Time
	logger    zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger, cfg Settings) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		repo:      repo,
		authority: NewAuthority(repo, cfg.DeclinePolicy, cfg.Now),
		validate:  validation.New(),
		loc:       cfg.Location,
		now:       cfg.Now,
		logger:    logger.With().Str("component", "appointment").Logger(),
	}
}

// Location returns the zone scheduled times are interpreted in.
func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) Create(ctx context.Context, caller string, req CreateRequest) (*Appointment, error) {
	validation.Sanitize(&req)
	caller = CanonicalUsername(caller)
	req.CreatedBy = CanonicalUsername(req.CreatedBy)
	req.AppointmentWith = CanonicalUsername(req.AppointmentWith)
	if req.CreatedBy == "" {
		req.CreatedBy = caller
	}
	if req.CreatedBy == "" {
		return nil, &ValidationError{Field: "createdBy", Message: "is required"}
	}
	if caller != "" && req.CreatedBy != caller {
		return nil, ErrForbidden
	}
	if err := s.validate.Struct(req); err != nil {
		fe := validation.FieldErrors(err)[0]
		return nil, &ValidationError{Field: fe.Field, Message: fe.Message}
	}
	if req.AppointmentWith == req.CreatedBy {
		return nil, &ValidationError{Field: "appointmentWith", Message: "cannot schedule an appointment with yourself"}
	}
	date, clock, err := normalizeSchedule(req.Date, req.Time)
	if err != nil {
		return nil, &ValidationError{Field: "appointmentDate", Message: err.Error()}
	}

	now := s.now().UTC()
	a := &Appointment{
		Title:           req.Title,
		Description:     req.Description,
		Date:            date,
		Time:            clock,
		Status:          StatusPending,
		CreatedBy:       req.CreatedBy,
		AppointmentWith: req.AppointmentWith,
		AppointedTo:     req.AppointedTo,
		Attachment:      req.VoiceNote,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		s.logger.Error().Err(err).Str("created_by", a.CreatedBy).Msg("create appointment failed")
		return nil, storeErr(err)
	}
	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("created_by", a.CreatedBy).
		Str("appointment_with", a.AppointmentWith).
		Msg("appointment created")
	return a, nil
}

// Get returns the appointment when caller is one of its parties.
func (s *Service) Get(ctx context.Context, caller string, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail(err, "get appointment")
	}
	if !a.Visible() {
		return nil, ErrNotFound
	}
	if _, ok := a.RoleOf(caller); !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s *Service) Transition(ctx context.Context, caller string, id uuid.UUID, action Action) (*Appointment, error) {
	a, err := s.authority.Apply(ctx, id, action, caller)
	if err != nil {
		ev := s.logger.Debug()
		if isStoreFailure(err) {
			ev = s.logger.Error()
		}
		ev.Err(err).
			Str("appointment_id", id.String()).
			Str("action", string(action)).
			Str("actor", caller).
			Msg("transition rejected")
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("action", string(action)).
		Str("actor", caller).
		Str("to", string(a.Status)).
		Msg("appointment transitioned")
	return a, nil
}

func (s *Service) ListReceived(ctx context.Context, caller string) ([]*Appointment, error) {
	items, err := ListForRole(ctx, s.repo, caller, RoleParticipant)
	if err != nil {
		return nil, s.fail(err, "list received appointments")
	}
	return items, nil
}

func (s *Service) ListScheduled(ctx context.Context, caller string) ([]*Appointment, error) {
	items, err := ListForRole(ctx, s.repo, caller, RoleScheduler)
	if err != nil {
		return nil, s.fail(err, "list scheduled appointments")
	}
	return items, nil
}

func (s *Service) ListForUser(ctx context.Context, caller string) ([]*Appointment, error) {
	items, err := ListForUser(ctx, s.repo, caller, s.loc)
	if err != nil {
		return nil, s.fail(err, "list appointments")
	}
	return items, nil
}

// Partition buckets appts against the service clock.
func (s *Service) Partition(appts []*Appointment) Buckets {
	return Partition(appts, s.now(), s.loc)
}

// PartitionAt buckets appts against an explicit reference time.
func (s *Service) PartitionAt(appts []*Appointment, asOf time.Time) Buckets {
	return Partition(appts, asOf, s.loc)
}

// fail classifies err and logs it when it is a store failure.
func (s *Service) fail(err error, op string) error {
	err = storeErr(err)
	if isStoreFailure(err) {
		s.logger.Error().Err(err).Msg(op + " failed")
	}
	return err
}
