package repository

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/complyvault/compliance-backend/internal/domain/audit"
	"github.com/complyvault/compliance-backend/internal/infrastructure/database"
)

// identifierPattern restricts table and column names to plain SQL
// identifiers. Table names additionally come only from the restore
// allow-list; this is the second fence.
var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// RecordStore reads and writes live rows of restorable tables as opaque
// field maps. It never touches audit_events; reconstructive writes re-enter
// the event recorder through the restore executors.
type RecordStore struct{}

// NewRecordStore creates a record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{}
}

// Get reads the current live row as a field map. Returns ErrNotFound when the
// row does not exist in the organization's scope.
func (s *RecordStore) Get(ctx context.Context, q database.Querier, table string, recordID string, orgID uuid.UUID) (audit.FieldMap, error) {
	if err := validIdentifier(table); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		`SELECT to_jsonb(t) FROM %s t WHERE id = $1 AND organization_id = $2`, table)

	var payload []byte
	if err := q.QueryRow(ctx, query, recordID, orgID).Scan(&payload); err != nil {
		return nil, WrapRepositoryError(err, "get live row")
	}
	return audit.UnmarshalFields(payload)
}

// Update applies the given fields to the live row. Field order is fixed by
// sorting so generated SQL is deterministic. Returns ErrNotFound when the row
// is missing.
func (s *RecordStore) Update(ctx context.Context, q database.Querier, table string, recordID string, orgID uuid.UUID, fields audit.FieldMap) error {
	if err := validIdentifier(table); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	columns := sortedColumns(fields)
	assignments := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns)+2)
	args = append(args, recordID, orgID)
	for _, col := range columns {
		if err := validIdentifier(col); err != nil {
			return err
		}
		args = append(args, normalizeArg(fields[col]))
		assignments = append(assignments, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	query := fmt.Sprintf(
		`UPDATE %s SET %s WHERE id = $1 AND organization_id = $2`,
		table, strings.Join(assignments, ", "))

	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return WrapRepositoryError(err, "update live row")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Insert re-creates a row from a stored snapshot verbatim. Constraint
// violations (a reused unique slot, a missing parent) surface to the caller
// untouched; session restore records them per item.
func (s *RecordStore) Insert(ctx context.Context, q database.Querier, table string, fields audit.FieldMap) error {
	if err := validIdentifier(table); err != nil {
		return err
	}
	if len(fields) == 0 {
		return ErrInvalidInput
	}

	columns := sortedColumns(fields)
	placeholders := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns))
	for _, col := range columns {
		if err := validIdentifier(col); err != nil {
			return err
		}
		args = append(args, normalizeArg(fields[col]))
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)`,
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	_, err := q.Exec(ctx, query, args...)
	return WrapRepositoryError(err, "insert live row")
}

// Delete removes the live row. Returns ErrNotFound when it is already gone.
func (s *RecordStore) Delete(ctx context.Context, q database.Querier, table string, recordID string, orgID uuid.UUID) error {
	if err := validIdentifier(table); err != nil {
		return err
	}

	query := fmt.Sprintf(
		`DELETE FROM %s WHERE id = $1 AND organization_id = $2`, table)

	tag, err := q.Exec(ctx, query, recordID, orgID)
	if err != nil {
		return WrapRepositoryError(err, "delete live row")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func sortedColumns(fields audit.FieldMap) []string {
	columns := make([]string, 0, len(fields))
	for col := range fields {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}

// normalizeArg converts JSON-decoded values into types pgx can bind. Nested
// maps and lists are passed as-is and rely on jsonb columns; scalar values go
// through untouched.
func normalizeArg(v interface{}) interface{} {
	switch val := v.(type) {
	case []interface{}:
		// Lists of strings become text arrays; anything else stays a
		// jsonb payload.
		strs := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return val
			}
			strs = append(strs, s)
		}
		return strs
	default:
		return v
	}
}

func validIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: invalid identifier %q", ErrInvalidInput, name)
	}
	return nil
}
