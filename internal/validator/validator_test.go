package validator

import (
	"testing"
	"time"

	"github.com/gridbase/gridbase/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intptr(v int) *int          { return &v }
func floatptr(v float64) *float64 { return &v }

func testTable() *internal.Table {
	return &internal.Table{
		ID: "tbl1",
		Fields: []internal.Field{
			{ID: "id", Name: "ID", Type: internal.FieldTypeText, Required: true, Key: true},
			{ID: "name", Name: "Name", Type: internal.FieldTypeText, MinLength: intptr(2), MaxLength: intptr(10)},
			{ID: "age", Name: "Age", Type: internal.FieldTypeNumber, Min: floatptr(0), Max: floatptr(150)},
			{ID: "email", Name: "Email", Type: internal.FieldTypeEmail},
			{ID: "status", Name: "Status", Type: internal.FieldTypeDropdown, Options: []string{"active", "inactive"}},
			{ID: "active", Name: "Active", Type: internal.FieldTypeBoolean},
		},
	}
}

func TestValidateOK(t *testing.T) {
	v, err := Compile(testTable())
	require.NoError(t, err)
	assert.NoError(t, v.Validate(internal.Row{
		"id":     "row1",
		"name":   "Alice",
		"age":    30.0,
		"email":  "alice@example.com",
		"status": "active",
		"active": true,
	}))
}

func TestValidateMissingRequired(t *testing.T) {
	v, err := Compile(testTable())
	require.NoError(t, err)
	err = v.Validate(internal.Row{"name": "Bob"})
	require.Error(t, err)
	assert.True(t, internal.IsValidation(err))
}

func TestValidateOptionalNull(t *testing.T) {
	v, err := Compile(testTable())
	require.NoError(t, err)
	assert.NoError(t, v.Validate(internal.Row{"id": "row1", "name": nil}))
}

func TestValidateBounds(t *testing.T) {
	v, err := Compile(testTable())
	require.NoError(t, err)

	err = v.Validate(internal.Row{"id": "r", "name": "x"})
	require.Error(t, err)
	ve := err.(*internal.ValidationError)
	assert.Contains(t, ve.Path, "name")

	err = v.Validate(internal.Row{"id": "r", "age": 200})
	require.Error(t, err)
	ve = err.(*internal.ValidationError)
	assert.Contains(t, ve.Path, "age")

	err = v.Validate(internal.Row{"id": "r", "status": "unknown"})
	require.Error(t, err)

	err = v.Validate(internal.Row{"id": "r", "email": "not-an-email"})
	require.Error(t, err)
}

func TestValidateWrongType(t *testing.T) {
	v, err := Compile(testTable())
	require.NoError(t, err)
	err = v.Validate(internal.Row{"id": "r", "active": "yes"})
	require.Error(t, err)
	assert.True(t, internal.IsValidation(err))
}

func TestValidateNested(t *testing.T) {
	table := &internal.Table{
		ID: "tbl2",
		Fields: []internal.Field{
			{ID: "id", Type: internal.FieldTypeText, Required: true},
			{ID: "address", Type: internal.FieldTypeJSON, Fields: []internal.Field{
				{ID: "street", Type: internal.FieldTypeText, Required: true},
				{ID: "zip", Type: internal.FieldTypeText, MinLength: intptr(5)},
			}},
			{ID: "tags", Type: internal.FieldTypeList, Child: &internal.Field{ID: "tag", Type: internal.FieldTypeText}},
			{ID: "blob", Type: internal.FieldTypeJSON},
		},
	}
	v, err := Compile(table)
	require.NoError(t, err)

	assert.NoError(t, v.Validate(internal.Row{
		"id":      "r",
		"address": map[string]any{"street": "Main St", "zip": "94107"},
		"tags":    []any{"a", "b"},
		"blob":    map[string]any{"anything": []any{1, "two"}},
	}))

	err = v.Validate(internal.Row{"id": "r", "address": map[string]any{"zip": "94107"}})
	require.Error(t, err)
	ve := err.(*internal.ValidationError)
	assert.Contains(t, ve.Path, "address")

	err = v.Validate(internal.Row{"id": "r", "tags": []any{"ok", 5}})
	require.Error(t, err)
	ve = err.(*internal.ValidationError)
	assert.Contains(t, ve.Path, "tags")
}

func TestValidateDateBounds(t *testing.T) {
	min := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	max := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	table := &internal.Table{
		ID: "tbl3",
		Fields: []internal.Field{
			{ID: "created", Type: internal.FieldTypeDate, MinDate: &min, MaxDate: &max},
		},
	}
	v, err := Compile(table)
	require.NoError(t, err)
	assert.NoError(t, v.Validate(internal.Row{"created": "2022-06-01T00:00:00Z"}))
	err = v.Validate(internal.Row{"created": "2019-06-01T00:00:00Z"})
	require.Error(t, err)
	ve := err.(*internal.ValidationError)
	assert.Equal(t, "/created", ve.Path)
	err = v.Validate(internal.Row{"created": "2025-06-01T00:00:00Z"})
	require.Error(t, err)
}

func TestFieldHashDeterministic(t *testing.T) {
	a := testTable()
	b := testTable()
	assert.Equal(t, FieldHash(a), FieldHash(b))
	b.Fields[1].MaxLength = intptr(99)
	assert.NotEqual(t, FieldHash(a), FieldHash(b))
}

func TestCompileTooDeep(t *testing.T) {
	// list of list of list ... beyond the guard
	leaf := &internal.Field{ID: "leaf", Type: internal.FieldTypeText}
	cur := leaf
	for i := 0; i < internal.MaxFieldDepth+2; i++ {
		cur = &internal.Field{ID: "nested", Type: internal.FieldTypeList, Child: cur}
	}
	table := &internal.Table{ID: "deep", Fields: []internal.Field{*cur}}
	_, err := Compile(table)
	require.Error(t, err)
}
