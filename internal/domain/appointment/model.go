package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rendezvous/rendezvous/internal/platform/validation"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDeclined  Status = "declined"
	StatusCanceled  Status = "canceled"
	StatusCompleted Status = "completed"
)

var validStatuses = map[Status]bool{
	StatusPending: true, StatusApproved: true, StatusDeclined: true,
	StatusCanceled: true, StatusCompleted: true,
}

func (s Status) Valid() bool { return validStatuses[s] }

// Terminal reports whether no action can move the appointment out of s.
func (s Status) Terminal() bool {
	return s == StatusDeclined || s == StatusCanceled || s == StatusCompleted
}

// Open reports whether the appointment still awaits its meeting time.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusApproved
}

// Role is the side a user plays in an appointment.
type Role string

const (
	// RoleScheduler created the appointment.
	RoleScheduler Role = "scheduler"
	// RoleParticipant is the party the appointment is directed at.
	RoleParticipant Role = "participant"
)

// Appointment maps to the appointment table and collection.
type Appointment struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Description     string    `db:"description" json:"description"`
	Date            string    `db:"scheduled_date" json:"appointmentDate"`
	Time            string    `db:"scheduled_time" json:"appointmentTime"`
	Status          Status    `db:"status" json:"currentStatus"`
	CreatedBy       string    `db:"created_by" json:"createdBy"`
	AppointmentWith string    `db:"appointment_with" json:"appointmentWith"`
	AppointedTo     string    `db:"appointed_to" json:"appointedTo,omitempty"`
	Attachment      string    `db:"attachment" json:"voiceNote,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// RoleOf returns the role user plays in the appointment. ok is false when user
// is neither party.
func (a *Appointment) RoleOf(user string) (role Role, ok bool) {
	switch {
	case user == "":
		return "", false
	case strings.EqualFold(user, a.CreatedBy):
		return RoleScheduler, true
	case strings.EqualFold(user, a.AppointmentWith):
		return RoleParticipant, true
	}
	return "", false
}

// CanonicalUsername is the form usernames are stored and queried in. The user
// directory treats usernames case-insensitively, so the engine does too.
func CanonicalUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Instant combines the scheduled date and time in loc.
func (a *Appointment) Instant(loc *time.Location) (time.Time, error) {
	return ParseInstant(a.Date, a.Time, loc)
}

// Visible reports whether the appointment may be returned by any read path.
func (a *Appointment) Visible() bool {
	return a.Status != StatusDeclined
}

func (a *Appointment) clone() *Appointment {
	c := *a
	return &c
}

// ParseInstant interprets a YYYY-MM-DD date and an HH:MM[:SS] clock time as a
// single instant in loc.
func ParseInstant(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.Parse(validation.DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	c, err := validation.ParseClock(clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", clock, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), 0, loc), nil
}

// normalizeSchedule rewrites date and clock into their canonical zero padded
// forms so that lexical ordering in the store matches chronological ordering.
func normalizeSchedule(date, clock string) (string, string, error) {
	d, err := time.Parse(validation.DateLayout, date)
	if err != nil {
		return "", "", err
	}
	c, err := validation.ParseClock(clock)
	if err != nil {
		return "", "", err
	}
	layout := validation.ClockLayout
	if c.Second() != 0 {
		layout = validation.ClockLayoutSecond
	}
	return d.Format(validation.DateLayout), c.Format(layout), nil
}
