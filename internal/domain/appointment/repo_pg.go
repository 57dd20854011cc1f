package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgStringTooLong   = "22001"
	pgCheckViolation  = "23514"
	pgUniqueViolation = "23505"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

const apptCols = `id, title, description, scheduled_date, scheduled_time, status,
	created_by, appointment_with, appointed_to, attachment, created_at, updated_at`

func (r *repoPG) scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Date, &a.Time, &a.Status,
		&a.CreatedBy, &a.AppointmentWith, &a.AppointedTo, &a.Attachment, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointment (id, title, description, scheduled_date, scheduled_time, status,
			created_by, appointment_with, appointed_to, attachment, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.Title, a.Description, a.Date, a.Time, a.Status,
		a.CreatedBy, a.AppointmentWith, a.AppointedTo, a.Attachment, a.CreatedAt, a.UpdatedAt)
	return rejectedInsert(err)
}

// rejectedInsert turns constraint failures into domain errors so they are not
// reported as the store being unavailable.
func rejectedInsert(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgStringTooLong:
		return &ValidationError{Message: "a field exceeds its maximum length"}
	case pgCheckViolation:
		return &ValidationError{Message: "appointment violates " + pgErr.ConstraintName}
	case pgUniqueViolation:
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppt(r.pool.QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

func (r *repoPG) ListReceived(ctx context.Context, participant string) ([]*Appointment, error) {
	return r.list(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE appointment_with = $1 AND status = ANY($2)
		ORDER BY scheduled_date, scheduled_time, created_at, id`,
		participant, statusStrings(receivedStatuses))
}

func (r *repoPG) ListScheduled(ctx context.Context, scheduler string) ([]*Appointment, error) {
	return r.list(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE created_by = $1 AND status <> ALL($2)
		ORDER BY scheduled_date, scheduled_time, created_at, id`,
		scheduler, statusStrings(hiddenScheduled))
}

func (r *repoPG) CompareAndSetStatus(ctx context.Context, id uuid.UUID, expected, next Status, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointment SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`,
		id, expected, next, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) DeleteIfStatus(ctx context.Context, id uuid.UUID, expected Status) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointment WHERE id = $1 AND status = $2`, id, expected)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) list(ctx context.Context, query string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
