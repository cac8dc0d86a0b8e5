package internal

import (
	"time"

	"github.com/cockroachdb/errors"
)

// FieldType is the declared type of a table column.
type FieldType string

const (
	FieldTypeText      FieldType = "text"
	FieldTypeNumber    FieldType = "number"
	FieldTypeDate      FieldType = "date"
	FieldTypeEmail     FieldType = "email"
	FieldTypeDropdown  FieldType = "dropdown"
	FieldTypeBoolean   FieldType = "boolean"
	FieldTypeReference FieldType = "reference"
	FieldTypeJSON      FieldType = "json"
	FieldTypeList      FieldType = "list"
)

// MaxFieldDepth bounds recursion when walking nested json/list field
// definitions so a pathological schema cannot loop forever.
const MaxFieldDepth = 32

// Field describes one column of a table. A json field may declare nested
// sub-fields and a list field declares exactly one child field for its
// element type.
type Field struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        FieldType  `json:"type"`
	Required    bool       `json:"required,omitempty"`
	Key         bool       `json:"key,omitempty"`
	Encrypted   bool       `json:"encrypted,omitempty"`
	MinLength   *int       `json:"minLength,omitempty"`
	MaxLength   *int       `json:"maxLength,omitempty"`
	Min         *float64   `json:"min,omitempty"`
	Max         *float64   `json:"max,omitempty"`
	MinDate     *time.Time `json:"minDate,omitempty"`
	MaxDate     *time.Time `json:"maxDate,omitempty"`
	Options     []string   `json:"options,omitempty"`
	ReferenceTo string     `json:"referenceTo,omitempty"`
	Fields      []Field    `json:"fields,omitempty"`
	Child       *Field     `json:"child,omitempty"`
}

// ActionType is the kind of mutation an action performs.
type ActionType string

const (
	ActionTypeAdd     ActionType = "add"
	ActionTypeUpdate  ActionType = "update"
	ActionTypeDelete  ActionType = "delete"
	ActionTypeProcess ActionType = "process"
)

// ActionConfigSubActions is the config key holding the ordered sub-action
// ids of a process action.
const ActionConfigSubActions = "actions"

// Action is a named mutating operation on a table. A process action invokes
// other actions on the same table by id, in the order listed in its config.
type Action struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Type   ActionType     `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Table binds a field list and its actions to a location inside a source.
type Table struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	SourceID string   `json:"sourceId"`
	Path     string   `json:"path,omitempty"`
	Fields   []Field  `json:"fields"`
	Actions  []Action `json:"actions,omitempty"`
}

// Field returns the field with the given id or nil.
func (t *Table) Field(id string) *Field {
	for i := range t.Fields {
		if t.Fields[i].ID == id {
			return &t.Fields[i]
		}
	}
	return nil
}

// KeyField returns the field marked as the row key or nil if the table has
// none.
func (t *Table) KeyField() *Field {
	for i := range t.Fields {
		if t.Fields[i].Key {
			return &t.Fields[i]
		}
	}
	return nil
}

// Action returns the action with the given id or nil.
func (t *Table) Action(id string) *Action {
	for i := range t.Actions {
		if t.Actions[i].ID == id {
			return &t.Actions[i]
		}
	}
	return nil
}

// RequiresKey returns true if the table carries any action type that targets
// rows by key.
func (t *Table) RequiresKey() bool {
	for _, a := range t.Actions {
		if a.Type == ActionTypeUpdate || a.Type == ActionTypeDelete {
			return true
		}
	}
	return false
}

// HasEncryptedFields returns true if any top level field is marked encrypted.
func (t *Table) HasEncryptedFields() bool {
	for _, f := range t.Fields {
		if f.Encrypted {
			return true
		}
	}
	return false
}

// CheckTableMutation enforces the structural invariants of a table edit
// before it is persisted: a table that targets rows by key must keep exactly
// one key field, and a table that had a key field must never lose its last
// one. The previous table may be nil for a newly created table.
func CheckTableMutation(previous *Table, next *Table) error {
	var keys int
	for _, f := range next.Fields {
		if f.Key {
			keys++
		}
	}
	if keys > 1 {
		return errors.Mark(errors.Newf("table %s declares %d key fields, at most one is allowed", next.ID, keys), ErrStructuralInvariant)
	}
	if keys == 0 {
		if next.RequiresKey() {
			return errors.Mark(errors.Newf("table %s has update or delete actions but no key field", next.ID), ErrStructuralInvariant)
		}
		if previous != nil && previous.KeyField() != nil {
			return errors.Mark(errors.Newf("table %s cannot drop its last key field", next.ID), ErrStructuralInvariant)
		}
	}
	return nil
}

// View is a stored query bound to a table.
type View struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	TableID   string        `json:"tableId"`
	Filters   []QueryFilter `json:"filters,omitempty"`
	OrderBy   string        `json:"orderBy,omitempty"`
	Direction string        `json:"direction,omitempty"`
	Limit     *int          `json:"limit,omitempty"`
}

// QueryOptions resolves the view into options the query engine understands.
func (v *View) QueryOptions() TableQueryOptions {
	return TableQueryOptions{
		Filters:   v.Filters,
		OrderBy:   v.OrderBy,
		Direction: v.Direction,
		Limit:     v.Limit,
	}
}

// Schema is the caller owned document holding tables and views.
type Schema struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Tables []Table `json:"tables,omitempty"`
	Views  []View  `json:"views,omitempty"`
}

// Table returns the table with the given id or nil.
func (s *Schema) Table(id string) *Table {
	for i := range s.Tables {
		if s.Tables[i].ID == id {
			return &s.Tables[i]
		}
	}
	return nil
}

// Connection holds the credential material for one source. Content is opaque
// to the core and may be stored encrypted.
type Connection struct {
	ID       string `json:"id"`
	SourceID string `json:"sourceId"`
	Name     string `json:"name"`
	Content  string `json:"content,omitempty"`
}

// Row is an open map of field id to value. It is not statically typed beyond
// the table's field list.
type Row map[string]any

// Operator is a filter comparison operator.
type Operator string

const (
	OperatorEq       Operator = "eq"
	OperatorNe       Operator = "ne"
	OperatorGt       Operator = "gt"
	OperatorGte      Operator = "gte"
	OperatorLt       Operator = "lt"
	OperatorLte      Operator = "lte"
	OperatorContains Operator = "contains"
)

// QueryFilter is one predicate applied to a single field.
type QueryFilter struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// TableQueryOptions selects, orders and pages the rows of one table.
type TableQueryOptions struct {
	Filters   []QueryFilter `json:"filters,omitempty"`
	OrderBy   string        `json:"orderBy,omitempty"`
	Direction string        `json:"direction,omitempty"`
	Limit     *int          `json:"limit,omitempty"`
	Offset    *int          `json:"offset,omitempty"`
}
