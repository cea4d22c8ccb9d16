package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Common repository errors
var (
	ErrNotFound     = errors.New("entity not found")
	ErrDuplicateKey = errors.New("duplicate key violation")
	ErrForeignKey   = errors.New("foreign key violation")
	ErrInvalidInput = errors.New("invalid input")
)

// IsForeignKeyViolation checks if the error is a foreign key constraint
// violation. Session restore classifies re-insert failures with this: a
// parent removed by cascade makes the inversion unrestorable, not fatal.
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}

	return errors.Is(err, ErrForeignKey) ||
		strings.Contains(err.Error(), "violates foreign key constraint")
}

// IsDuplicateKeyViolation checks if the error is a unique constraint
// violation, e.g. a re-inserted row colliding with a slot reused after the
// delete.
func IsDuplicateKeyViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	return errors.Is(err, ErrDuplicateKey) ||
		strings.Contains(err.Error(), "violates unique constraint")
}

// IsNotFound checks if the error indicates a record was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}

// WrapRepositoryError maps database errors onto the repository error set,
// keeping constraint violations distinguishable for per-item restore
// reporting.
func WrapRepositoryError(err error, operation string) error {
	if err == nil {
		return nil
	}

	if IsNotFound(err) {
		return ErrNotFound
	}
	if IsDuplicateKeyViolation(err) {
		return ErrDuplicateKey
	}
	if IsForeignKeyViolation(err) {
		return ErrForeignKey
	}

	return fmt.Errorf("%s: %w", operation, err)
}
