package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gridbase/gridbase/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	f, err := parseFilter("age:gt:28")
	require.NoError(t, err)
	assert.Equal(t, "age", f.Field)
	assert.Equal(t, internal.OperatorGt, f.Operator)
	assert.Equal(t, int64(28), f.Value)

	f, err = parseFilter("score:lte:1.5")
	require.NoError(t, err)
	assert.Equal(t, 1.5, f.Value)

	f, err = parseFilter("active:eq:true")
	require.NoError(t, err)
	assert.Equal(t, true, f.Value)

	f, err = parseFilter("name:contains:bo:b")
	require.NoError(t, err)
	assert.Equal(t, "bo:b", f.Value)

	_, err = parseFilter("age:gt")
	assert.Error(t, err)
}

func TestLoadSchema(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(fn, []byte(`{"id":"crm","name":"CRM","tables":[{"id":"people","sourceId":"memory","fields":[{"id":"id","type":"text","key":true}]}]}`), 0644))

	schema, err := loadSchema(fn)
	require.NoError(t, err)
	assert.Equal(t, "crm", schema.ID)
	require.NotNil(t, schema.Table("people"))
	assert.True(t, schema.Table("people").Fields[0].Key)

	_, err = loadSchema(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}
