package validator

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/gridbase/gridbase/internal"
	"github.com/gridbase/gridbase/internal/util"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/cast"
)

// Validator validates rows against a table's compiled field list. Building
// one is deterministic for a given field list, which is what lets the cache
// key on a content hash instead of the table id alone.
type Validator struct {
	TableID string
	Hash    string

	schema *jsonschema.Schema
	fields []internal.Field
}

// Compile translates the table's field list into a compiled JSON schema
// wrapped with the declared date range checks.
func Compile(table *internal.Table) (*Validator, error) {
	doc, err := buildTableSchema(table)
	if err != nil {
		return nil, err
	}
	buf, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrapf(err, "marshalling schema for table %s", table.ID)
	}
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	resource := fmt.Sprintf("table-%s.json", table.ID)
	if err := compiler.AddResource(resource, bytes.NewReader(buf)); err != nil {
		return nil, errors.Wrapf(err, "adding schema resource for table %s", table.ID)
	}
	schema, err := compiler.Compile(resource)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling schema for table %s", table.ID)
	}
	return &Validator{
		TableID: table.ID,
		Hash:    FieldHash(table),
		schema:  schema,
		fields:  table.Fields,
	}, nil
}

// FieldHash returns the content hash of the table's field list.
func FieldHash(table *internal.Table) string {
	return util.Hash(util.JSONStringify(table.Fields))
}

// Validate checks a single row. It returns a field path annotated
// ValidationError on failure and never partially applies anything.
func (v *Validator) Validate(row internal.Row) error {
	// round trip through JSON so times, numbers and nested values take the
	// shape the schema library expects
	var o map[string]any
	if err := json.Unmarshal([]byte(util.JSONStringify(row)), &o); err != nil {
		return internal.NewValidationError(v.TableID, "", fmt.Sprintf("row is not JSON representable: %s", err))
	}
	if err := v.schema.Validate(o); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			leaf := leafCause(ve)
			return internal.NewValidationError(v.TableID, leaf.InstanceLocation, leaf.Message)
		}
		return internal.NewValidationError(v.TableID, "", err.Error())
	}
	for _, f := range v.fields {
		if val, ok := o[f.ID]; ok && val != nil {
			if err := checkDateBounds(f, val, "/"+f.ID, 0); err != nil {
				err.Table = v.TableID
				return err
			}
		}
	}
	return nil
}

func leafCause(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	cur := ve
	for len(cur.Causes) > 0 {
		cur = cur.Causes[0]
	}
	return cur
}

// checkDateBounds walks nested values enforcing the declared MinDate/MaxDate
// constraints, which JSON schema cannot express for epoch encoded dates.
func checkDateBounds(f internal.Field, val any, path string, depth int) *internal.ValidationError {
	if depth > internal.MaxFieldDepth {
		return nil
	}
	switch f.Type {
	case internal.FieldTypeDate:
		if f.MinDate == nil && f.MaxDate == nil {
			return nil
		}
		ts, err := cast.ToTimeE(val)
		if err != nil {
			return nil // the type check already ran
		}
		if f.MinDate != nil && ts.Before(*f.MinDate) {
			return internal.NewValidationError("", path, fmt.Sprintf("date %s is before minimum %s", ts.Format("2006-01-02"), f.MinDate.Format("2006-01-02")))
		}
		if f.MaxDate != nil && ts.After(*f.MaxDate) {
			return internal.NewValidationError("", path, fmt.Sprintf("date %s is after maximum %s", ts.Format("2006-01-02"), f.MaxDate.Format("2006-01-02")))
		}
	case internal.FieldTypeJSON:
		obj, ok := val.(map[string]any)
		if !ok {
			return nil
		}
		for _, sub := range f.Fields {
			if v, ok := obj[sub.ID]; ok && v != nil {
				if err := checkDateBounds(sub, v, path+"/"+sub.ID, depth+1); err != nil {
					return err
				}
			}
		}
	case internal.FieldTypeList:
		arr, ok := val.([]any)
		if !ok || f.Child == nil {
			return nil
		}
		for i, el := range arr {
			if el == nil {
				continue
			}
			if err := checkDateBounds(*f.Child, el, fmt.Sprintf("%s/%d", path, i), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildTableSchema(table *internal.Table) (map[string]any, error) {
	properties := make(map[string]any, len(table.Fields))
	var required []string
	for _, f := range table.Fields {
		s, err := buildFieldSchema(f, 0)
		if err != nil {
			return nil, errors.Wrapf(err, "field %s", f.ID)
		}
		if f.Required {
			required = append(required, f.ID)
		} else {
			// optional fields may also carry an explicit null
			s = map[string]any{"anyOf": []any{s, map[string]any{"type": "null"}}}
		}
		properties[f.ID] = s
	}
	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc, nil
}

func buildFieldSchema(f internal.Field, depth int) (map[string]any, error) {
	if depth > internal.MaxFieldDepth {
		return nil, errors.Newf("field nesting exceeds %d levels", internal.MaxFieldDepth)
	}
	switch f.Type {
	case internal.FieldTypeText:
		s := map[string]any{"type": "string"}
		if f.MinLength != nil {
			s["minLength"] = *f.MinLength
		}
		if f.MaxLength != nil {
			s["maxLength"] = *f.MaxLength
		}
		return s, nil
	case internal.FieldTypeEmail:
		return map[string]any{"type": "string", "format": "email"}, nil
	case internal.FieldTypeNumber:
		s := map[string]any{"type": "number"}
		if f.Min != nil {
			s["minimum"] = *f.Min
		}
		if f.Max != nil {
			s["maximum"] = *f.Max
		}
		return s, nil
	case internal.FieldTypeBoolean:
		return map[string]any{"type": "boolean"}, nil
	case internal.FieldTypeDate:
		// a date arrives as an ISO string or a numeric epoch
		return map[string]any{"anyOf": []any{
			map[string]any{"type": "string"},
			map[string]any{"type": "number"},
		}}, nil
	case internal.FieldTypeDropdown:
		if len(f.Options) > 0 {
			opts := make([]any, 0, len(f.Options))
			for _, o := range f.Options {
				opts = append(opts, o)
			}
			return map[string]any{"enum": opts}, nil
		}
		return map[string]any{"type": "string"}, nil
	case internal.FieldTypeReference:
		return map[string]any{"anyOf": []any{
			map[string]any{"type": "string"},
			map[string]any{"type": "number"},
		}}, nil
	case internal.FieldTypeJSON:
		if len(f.Fields) == 0 {
			return map[string]any{}, nil // any shape
		}
		properties := make(map[string]any, len(f.Fields))
		var required []string
		for _, sub := range f.Fields {
			s, err := buildFieldSchema(sub, depth+1)
			if err != nil {
				return nil, err
			}
			if sub.Required {
				required = append(required, sub.ID)
			}
			properties[sub.ID] = s
		}
		s := map[string]any{"type": "object", "properties": properties}
		if len(required) > 0 {
			s["required"] = required
		}
		return s, nil
	case internal.FieldTypeList:
		if f.Child == nil {
			return map[string]any{"type": "array"}, nil
		}
		items, err := buildFieldSchema(*f.Child, depth+1)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "array", "items": items}, nil
	default:
		return nil, errors.Newf("unknown field type %s", f.Type)
	}
}
