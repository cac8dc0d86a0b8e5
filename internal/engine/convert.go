package engine

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gridbase/gridbase/internal"
	"github.com/spf13/cast"
)

// maxSafeInt is the largest integer exactly representable in a float64.
// Anything wider degrades to a string instead of silently truncating.
const maxSafeInt = int64(1)<<53 - 1

// convertRow maps the native column values of one result row back to the
// field type model. Columns the native row carries no value for are omitted
// from the output, not set to null.
func convertRow(table *internal.Table, columns []string, values []any) internal.Row {
	row := make(internal.Row, len(columns))
	for i, col := range columns {
		f := table.Field(col)
		if f == nil || values[i] == nil {
			continue
		}
		row[col] = convertValue(*f, values[i], 0)
	}
	return row
}

func convertValue(f internal.Field, raw any, depth int) any {
	if depth > internal.MaxFieldDepth {
		return raw
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}
	if n, ok := raw.(json.Number); ok {
		raw = normalizeNumber(n)
	}
	if f.Encrypted {
		// ciphertext passes through untouched, the decode boundary opens it
		return raw
	}
	switch f.Type {
	case internal.FieldTypeDate:
		return convertDate(raw)
	case internal.FieldTypeNumber:
		switch v := raw.(type) {
		case int64:
			if v > maxSafeInt || v < -maxSafeInt {
				return strconv.FormatInt(v, 10)
			}
			return v
		case float64:
			return v
		case string:
			if n, err := cast.ToFloat64E(v); err == nil {
				return n
			}
			return v
		default:
			return raw
		}
	case internal.FieldTypeBoolean:
		if b, err := cast.ToBoolE(raw); err == nil {
			return b
		}
		return raw
	case internal.FieldTypeJSON:
		s, ok := raw.(string)
		if !ok {
			return raw
		}
		parsed, err := parseJSON(s)
		if err != nil {
			return s // fall back to the raw string
		}
		obj, ok := parsed.(map[string]any)
		if !ok || len(f.Fields) == 0 {
			return normalizeJSON(parsed)
		}
		out := make(map[string]any, len(f.Fields))
		for _, sub := range f.Fields {
			// sub-fields absent from the native value are skipped
			if v, present := obj[sub.ID]; present && v != nil {
				out[sub.ID] = convertValue(sub, v, depth+1)
			}
		}
		return out
	case internal.FieldTypeList:
		s, ok := raw.(string)
		if !ok {
			return raw
		}
		parsed, err := parseJSON(s)
		if err != nil {
			return s
		}
		arr, ok := parsed.([]any)
		if !ok {
			return normalizeJSON(parsed)
		}
		if f.Child == nil {
			return normalizeJSON(arr)
		}
		out := make([]any, 0, len(arr))
		for _, el := range arr {
			if el == nil {
				out = append(out, nil)
				continue
			}
			out = append(out, convertValue(*f.Child, el, depth+1))
		}
		return out
	default:
		return cast.ToString(raw)
	}
}

// convertDate accepts a native timestamp, a numeric epoch (seconds) or an
// ISO string representation.
func convertDate(raw any) any {
	switch v := raw.(type) {
	case time.Time:
		return v
	case int64:
		return time.Unix(v, 0).UTC()
	case float64:
		return time.Unix(int64(v), 0).UTC()
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
		if t, err := cast.ToTimeE(v); err == nil {
			return t
		}
		return v
	default:
		return raw
	}
}

func parseJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// normalizeJSON rewrites json.Number leaves into int64, float64 or a string
// for integers beyond the safe range.
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case json.Number:
		return normalizeNumber(val)
	case map[string]any:
		for k, el := range val {
			val[k] = normalizeJSON(el)
		}
		return val
	case []any:
		for i, el := range val {
			val[i] = normalizeJSON(el)
		}
		return val
	default:
		return v
	}
}

func normalizeNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		if i > maxSafeInt || i < -maxSafeInt {
			return n.String()
		}
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
