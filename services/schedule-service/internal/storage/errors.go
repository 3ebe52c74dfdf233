package storage

import (
	"errors"

	"github.com/carebook/carebook/services/schedule-service/internal/slots"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"
)

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsConflict reports whether err is a unique or exclusion constraint violation.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeUniqueViolation || pgErr.Code == codeExclusionViolation
	}
	return false
}

// mapError turns storage failures the engine expects into slot errors.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case IsNotFound(err):
		return slots.NotFound(slots.MsgScheduleNotFound)
	case IsConflict(err):
		return slots.Conflict(slots.MsgScheduleConflict)
	}
	return err
}
