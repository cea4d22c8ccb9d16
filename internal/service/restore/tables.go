package restore

import (
	"fmt"
	"strings"

	"github.com/complyvault/compliance-backend/internal/domain/audit"
	"github.com/complyvault/compliance-backend/internal/domain/errors"
)

// TableHandler declares how one restorable table is written back: which
// fields are identity/creation fields that a restore never overwrites, and
// any per-table coercion of snapshot values. Tables without a handler fail
// fast with UnsupportedTableError instead of risking a generic blind write.
type TableHandler interface {
	Table() string
	ImmutableFields() []string
	Coerce(fields audit.FieldMap) (audit.FieldMap, error)
}

// Registry is the explicit allow-list of restorable tables.
type Registry struct {
	handlers map[string]TableHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]TableHandler)}
}

// Register adds a handler; the last registration for a table wins.
func (r *Registry) Register(handler TableHandler) {
	r.handlers[handler.Table()] = handler
}

// Handler looks up the handler for a table.
func (r *Registry) Handler(table string) (TableHandler, error) {
	handler, ok := r.handlers[table]
	if !ok {
		return nil, errors.NewUnsupportedTableError(table)
	}
	return handler, nil
}

// Tables lists the registered table names.
func (r *Registry) Tables() []string {
	tables := make([]string, 0, len(r.handlers))
	for table := range r.handlers {
		tables = append(tables, table)
	}
	return tables
}

// DefaultRegistry returns the registry covering the compliance schema's
// restorable tables.
func DefaultRegistry() *Registry {
	registry := NewRegistry()
	registry.Register(&requirementsHandler{})
	registry.Register(&assessmentsHandler{})
	registry.Register(&orgRequirementsHandler{})
	return registry
}

// baseHandler carries the identity/creation fields shared by every
// restorable table.
type baseHandler struct{}

func (baseHandler) ImmutableFields() []string {
	return []string{"id", "organization_id", "created_at", "created_by"}
}

// requirementsHandler restores rows of the requirements library.
type requirementsHandler struct{ baseHandler }

func (requirementsHandler) Table() string { return "requirements" }

func (requirementsHandler) Coerce(fields audit.FieldMap) (audit.FieldMap, error) {
	coerced := fields.Clone()
	if err := coerceStringList(coerced, "tags"); err != nil {
		return nil, err
	}
	return coerced, nil
}

// assessmentsHandler restores assessment rows; status is a closed enum.
type assessmentsHandler struct{ baseHandler }

func (assessmentsHandler) Table() string { return "assessments" }

var assessmentStatuses = map[string]struct{}{
	"DRAFT": {}, "IN_PROGRESS": {}, "COMPLETED": {}, "ARCHIVED": {},
}

func (assessmentsHandler) Coerce(fields audit.FieldMap) (audit.FieldMap, error) {
	coerced := fields.Clone()
	if err := coerceEnum(coerced, "status", assessmentStatuses); err != nil {
		return nil, err
	}
	return coerced, nil
}

// orgRequirementsHandler restores an organization's per-requirement
// fulfilment rows.
type orgRequirementsHandler struct{ baseHandler }

func (orgRequirementsHandler) Table() string { return "organization_requirements" }

var fulfilmentStatuses = map[string]struct{}{
	"FULFILLED": {}, "PARTIALLY_FULFILLED": {}, "NOT_FULFILLED": {}, "NOT_APPLICABLE": {},
}

func (orgRequirementsHandler) Coerce(fields audit.FieldMap) (audit.FieldMap, error) {
	coerced := fields.Clone()
	if err := coerceEnum(coerced, "fulfilment_status", fulfilmentStatuses); err != nil {
		return nil, err
	}
	if err := coerceStringList(coerced, "evidence_refs"); err != nil {
		return nil, err
	}
	return coerced, nil
}

// coerceEnum normalizes case and verifies membership so a snapshot written
// under an older casing convention still restores cleanly.
func coerceEnum(fields audit.FieldMap, field string, allowed map[string]struct{}) error {
	raw, ok := fields[field]
	if !ok || raw == nil {
		return nil
	}
	s, ok := raw.(string)
	if !ok {
		return errors.NewValidationError("BAD_FIELD_TYPE",
			fmt.Sprintf("field %q must be a string", field))
	}
	normalized := strings.ToUpper(strings.TrimSpace(s))
	if _, ok := allowed[normalized]; !ok {
		return errors.NewValidationError("BAD_ENUM_VALUE",
			fmt.Sprintf("field %q has unknown value %q", field, s))
	}
	fields[field] = normalized
	return nil
}

// coerceStringList ensures a snapshot list is entirely strings, the shape the
// text[] columns expect.
func coerceStringList(fields audit.FieldMap, field string) error {
	raw, ok := fields[field]
	if !ok || raw == nil {
		return nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return errors.NewValidationError("BAD_FIELD_TYPE",
			fmt.Sprintf("field %q must be a list", field))
	}
	for _, item := range list {
		if _, ok := item.(string); !ok {
			return errors.NewValidationError("BAD_FIELD_TYPE",
				fmt.Sprintf("field %q must contain only strings", field))
		}
	}
	return nil
}
