package internal

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Sentinel errors for the operation level failure modes. Callers detect them
// with errors.Is so a runaway process action is distinguishable from a bad
// action id, and a data layer failure from a validation failure.
var (
	ErrActionNotFound      = errors.New("action not found")
	ErrTableNotFound       = errors.New("table not found")
	ErrSchemaNotFound      = errors.New("schema not found")
	ErrConnectionNotFound  = errors.New("connection not found")
	ErrSourceNotFound      = errors.New("source not found")
	ErrRecursionLimit      = errors.New("max recursive depth exceeded")
	ErrStructuralInvariant = errors.New("structural invariant violated")
	ErrData                = errors.New("data layer failure")
)

// ValidationError reports a row that failed its table's compiled validator,
// annotated with the path of the offending field.
type ValidationError struct {
	Table   string `json:"table"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("validation failed for table %s: %s", e.Table, e.Message)
	}
	return fmt.Sprintf("validation failed for table %s at %s: %s", e.Table, e.Path, e.Message)
}

// NewValidationError creates a field path annotated validation error.
func NewValidationError(table, path, message string) *ValidationError {
	return &ValidationError{Table: table, Path: path, Message: message}
}

// IsValidation returns true if err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
