package engine

import (
	"testing"
	"time"

	"github.com/gridbase/gridbase/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertRowOmitsNilAndUnknown(t *testing.T) {
	table := &internal.Table{
		ID: "t",
		Fields: []internal.Field{
			{ID: "id", Type: internal.FieldTypeText},
			{ID: "age", Type: internal.FieldTypeNumber},
		},
	}
	row := convertRow(table, []string{"id", "age", "ghost"}, []any{"a", nil, "x"})
	assert.Equal(t, internal.Row{"id": "a"}, row)
}

func TestConvertValueNumber(t *testing.T) {
	f := internal.Field{ID: "n", Type: internal.FieldTypeNumber}
	assert.Equal(t, int64(42), convertValue(f, int64(42), 0))
	assert.Equal(t, 1.5, convertValue(f, 1.5, 0))
	assert.Equal(t, 30.0, convertValue(f, "30", 0))
	assert.Equal(t, "not a number", convertValue(f, "not a number", 0))
	// integers wider than float64 degrade to strings
	assert.Equal(t, "9007199254740993", convertValue(f, int64(9007199254740993), 0))
	assert.Equal(t, "-9007199254740993", convertValue(f, int64(-9007199254740993), 0))
}

func TestConvertValueBoolean(t *testing.T) {
	f := internal.Field{ID: "b", Type: internal.FieldTypeBoolean}
	assert.Equal(t, true, convertValue(f, int64(1), 0))
	assert.Equal(t, false, convertValue(f, int64(0), 0))
	assert.Equal(t, true, convertValue(f, "true", 0))
}

func TestConvertValueEncryptedPassthrough(t *testing.T) {
	f := internal.Field{ID: "s", Type: internal.FieldTypeNumber, Encrypted: true}
	assert.Equal(t, "gb1:abc", convertValue(f, []byte("gb1:abc"), 0))
}

func TestConvertDate(t *testing.T) {
	f := internal.Field{ID: "d", Type: internal.FieldTypeDate}
	when := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, raw := range []any{when, when.Unix(), float64(when.Unix())} {
		got, ok := convertValue(f, raw, 0).(time.Time)
		require.True(t, ok)
		assert.True(t, got.Equal(when))
	}

	parsed, ok := convertValue(f, "2024-05-01T12:00:00Z", 0).(time.Time)
	require.True(t, ok)
	assert.True(t, parsed.Equal(when))

	// unparseable values survive untouched
	assert.Equal(t, "pretty recently", convertValue(f, "pretty recently", 0))
}

func TestConvertValueJSON(t *testing.T) {
	f := internal.Field{ID: "addr", Type: internal.FieldTypeJSON, Fields: []internal.Field{
		{ID: "city", Type: internal.FieldTypeText},
		{ID: "zip", Type: internal.FieldTypeNumber},
	}}
	got := convertValue(f, `{"city":"Oslo","zip":"1234","ignored":true}`, 0)
	assert.Equal(t, map[string]any{"city": "Oslo", "zip": 1234.0}, got)

	// absent sub-fields stay absent
	got = convertValue(f, `{"city":"Oslo"}`, 0)
	assert.Equal(t, map[string]any{"city": "Oslo"}, got)

	// untyped objects come back as-is with numbers normalized
	free := internal.Field{ID: "meta", Type: internal.FieldTypeJSON}
	assert.Equal(t, map[string]any{"k": int64(7)}, convertValue(free, `{"k":7}`, 0))

	// broken serialization falls back to the raw string
	assert.Equal(t, "{not json", convertValue(f, "{not json", 0))
}

func TestConvertValueList(t *testing.T) {
	f := internal.Field{ID: "scores", Type: internal.FieldTypeList, Child: &internal.Field{ID: "score", Type: internal.FieldTypeNumber}}
	assert.Equal(t, []any{int64(1), 2.5, nil}, convertValue(f, `[1,2.5,null]`, 0))

	untyped := internal.Field{ID: "tags", Type: internal.FieldTypeList}
	assert.Equal(t, []any{"a", int64(2)}, convertValue(untyped, `["a",2]`, 0))

	assert.Equal(t, "[broken", convertValue(f, "[broken", 0))
}

func TestNormalizeJSONBigIntegers(t *testing.T) {
	v, err := parseJSON(`{"small":1,"big":9007199254740993,"f":1.25}`)
	require.NoError(t, err)
	got := normalizeJSON(v).(map[string]any)
	assert.Equal(t, int64(1), got["small"])
	assert.Equal(t, "9007199254740993", got["big"])
	assert.Equal(t, 1.25, got["f"])
}
