package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"

	"dispatch-bot/internal/domain"
)

const uniqueViolation = "23505"

// classify maps SQLSTATEs the server will return again on every retry onto
// domain errors. Class 22 is a data exception, class 23 an integrity
// violation. Anything else is returned wrapped as-is.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch {
	case pgErr.Code == uniqueViolation:
		return fmt.Errorf("%s: %w: %s", op, domain.ErrAlreadyExists, pgErr.ConstraintName)
	case strings.HasPrefix(pgErr.Code, "22"), strings.HasPrefix(pgErr.Code, "23"):
		return fmt.Errorf("%s: %w: %s (%s)", op, domain.ErrInvalidArgument, pgErr.Message, pgErr.Code)
	}
	return fmt.Errorf("%s: %w", op, err)
}
