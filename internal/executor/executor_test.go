package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gridbase/gridbase/internal"
	"github.com/gridbase/gridbase/internal/codec"
	"github.com/gridbase/gridbase/internal/validator"
	"github.com/shopmonkeyus/go-common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// op records one adapter mutation in dispatch order.
type op struct {
	kind string
	key  internal.Row
	row  internal.Row
}

type recordingAdapter struct {
	ops []op
}

var _ internal.SourceAdapter = (*recordingAdapter)(nil)
var _ internal.RowAdder = (*recordingAdapter)(nil)
var _ internal.RowUpdater = (*recordingAdapter)(nil)
var _ internal.RowDeleter = (*recordingAdapter)(nil)

func (a *recordingAdapter) Scheme() string { return "recording" }

func (a *recordingAdapter) AddRow(ctx context.Context, table *internal.Table, secret string, row internal.Row) error {
	a.ops = append(a.ops, op{kind: "add", row: row})
	return nil
}

func (a *recordingAdapter) UpdateRow(ctx context.Context, table *internal.Table, secret string, key internal.Row, row internal.Row) error {
	a.ops = append(a.ops, op{kind: "update", key: key, row: row})
	return nil
}

func (a *recordingAdapter) DeleteRow(ctx context.Context, table *internal.Table, secret string, key internal.Row) error {
	a.ops = append(a.ops, op{kind: "delete", key: key})
	return nil
}

// readOnlyAdapter exposes no mutation capabilities at all.
type readOnlyAdapter struct{}

func (a *readOnlyAdapter) Scheme() string { return "readonly" }

func testTable() *internal.Table {
	return &internal.Table{
		ID:       "tbl",
		SourceID: "recording",
		Fields: []internal.Field{
			{ID: "id", Type: internal.FieldTypeText, Required: true, Key: true},
			{ID: "name", Type: internal.FieldTypeText},
		},
		Actions: []internal.Action{
			{ID: "a1", Type: internal.ActionTypeAdd},
			{ID: "u1", Type: internal.ActionTypeUpdate},
			{ID: "d1", Type: internal.ActionTypeDelete},
			{ID: "p1", Type: internal.ActionTypeProcess, Config: map[string]any{
				internal.ActionConfigSubActions: []any{"a1", "d1"},
			}},
			{ID: "loop", Type: internal.ActionTypeProcess, Config: map[string]any{
				internal.ActionConfigSubActions: []any{"a1", "loop"},
			}},
		},
	}
}

func newExecutor(t *testing.T, adapter internal.SourceAdapter, maxDepth int) (*Executor, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	registry := internal.NewAdapterRegistry()
	registry.Register(adapter)
	validators := validator.NewCache(ctx, logger.NewTestLogger(), time.Minute, 10)
	e := New(Config{
		Logger:            logger.NewTestLogger(),
		Registry:          registry,
		Validators:        validators,
		MaxRecursiveDepth: maxDepth,
	})
	return e, func() {
		validators.Close()
		cancel()
	}
}

func TestExecuteAdd(t *testing.T) {
	adapter := &recordingAdapter{}
	e, done := newExecutor(t, adapter, 0)
	defer done()

	rows := []internal.Row{
		{"id": "r1", "name": "first"},
		{"id": "r2", "name": "second"},
	}
	require.NoError(t, e.Execute(context.Background(), testTable(), "a1", rows, ""))
	require.Len(t, adapter.ops, 2)
	assert.Equal(t, "add", adapter.ops[0].kind)
	assert.Equal(t, "r1", adapter.ops[0].row["id"])
	assert.Equal(t, "r2", adapter.ops[1].row["id"])
}

func TestExecuteAddValidationFailure(t *testing.T) {
	adapter := &recordingAdapter{}
	e, done := newExecutor(t, adapter, 0)
	defer done()

	rows := []internal.Row{
		{"id": "r1"},
		{"name": "missing required id"},
		{"id": "r3"},
	}
	err := e.Execute(context.Background(), testTable(), "a1", rows, "")
	require.Error(t, err)
	assert.True(t, internal.IsValidation(err))
	// the first row was applied, the failing row and everything after it was not
	require.Len(t, adapter.ops, 1)
	assert.Equal(t, "r1", adapter.ops[0].row["id"])
}

func TestExecuteUpdateSkipsKeylessRows(t *testing.T) {
	adapter := &recordingAdapter{}
	e, done := newExecutor(t, adapter, 0)
	defer done()

	rows := []internal.Row{
		{"id": "r1", "name": "updated"},
		{"name": "no key, silently skipped"},
	}
	require.NoError(t, e.Execute(context.Background(), testTable(), "u1", rows, ""))
	require.Len(t, adapter.ops, 1)
	assert.Equal(t, "update", adapter.ops[0].kind)
	assert.Equal(t, internal.Row{"id": "r1"}, adapter.ops[0].key)
}

func TestExecuteDelete(t *testing.T) {
	adapter := &recordingAdapter{}
	e, done := newExecutor(t, adapter, 0)
	defer done()

	rows := []internal.Row{
		{"id": "r1"},
		{"unrelated": true},
	}
	require.NoError(t, e.Execute(context.Background(), testTable(), "d1", rows, ""))
	require.Len(t, adapter.ops, 1)
	assert.Equal(t, "delete", adapter.ops[0].kind)
	assert.Equal(t, internal.Row{"id": "r1"}, adapter.ops[0].key)
}

func TestExecuteProcessSequential(t *testing.T) {
	adapter := &recordingAdapter{}
	e, done := newExecutor(t, adapter, 0)
	defer done()

	rows := []internal.Row{{"id": "r1"}}
	require.NoError(t, e.Execute(context.Background(), testTable(), "p1", rows, ""))
	require.Len(t, adapter.ops, 2)
	assert.Equal(t, "add", adapter.ops[0].kind)
	assert.Equal(t, "delete", adapter.ops[1].kind)
}

func TestExecuteProcessCycle(t *testing.T) {
	adapter := &recordingAdapter{}
	e, done := newExecutor(t, adapter, 5)
	defer done()

	rows := []internal.Row{{"id": "r1"}}
	err := e.Execute(context.Background(), testTable(), "loop", rows, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, internal.ErrRecursionLimit))
	assert.False(t, errors.Is(err, internal.ErrActionNotFound))
	// each level below the boundary applied its add before recursing
	assert.Len(t, adapter.ops, 5)
}

func TestExecuteUnknownAction(t *testing.T) {
	e, done := newExecutor(t, &recordingAdapter{}, 0)
	defer done()

	err := e.Execute(context.Background(), testTable(), "nope", nil, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, internal.ErrActionNotFound))
}

func TestExecuteMissingCapabilityIsNoop(t *testing.T) {
	e, done := newExecutor(t, &readOnlyAdapter{}, 0)
	defer done()

	table := testTable()
	table.SourceID = "readonly"
	rows := []internal.Row{{"id": "r1"}}
	assert.NoError(t, e.Execute(context.Background(), table, "a1", rows, ""))
	assert.NoError(t, e.Execute(context.Background(), table, "u1", rows, ""))
	assert.NoError(t, e.Execute(context.Background(), table, "d1", rows, ""))
}

func TestExecuteUnknownSource(t *testing.T) {
	e, done := newExecutor(t, &recordingAdapter{}, 0)
	defer done()

	table := testTable()
	table.SourceID = "missing"
	err := e.Execute(context.Background(), table, "a1", []internal.Row{{"id": "r1"}}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, internal.ErrSourceNotFound))
}

func TestExecuteAddEncryptsMarkedFields(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	adapter := &recordingAdapter{}
	registry := internal.NewAdapterRegistry()
	registry.Register(adapter)
	validators := validator.NewCache(ctx, logger.NewTestLogger(), time.Minute, 10)
	defer validators.Close()
	fieldCodec, err := codec.New(logger.NewTestLogger(), "secret")
	require.NoError(t, err)
	e := New(Config{
		Logger:     logger.NewTestLogger(),
		Registry:   registry,
		Validators: validators,
		Codec:      fieldCodec,
	})

	table := &internal.Table{
		ID:       "tbl",
		SourceID: "recording",
		Fields: []internal.Field{
			{ID: "id", Type: internal.FieldTypeText, Required: true, Key: true},
			{ID: "ssn", Type: internal.FieldTypeText, Encrypted: true},
		},
		Actions: []internal.Action{{ID: "a1", Type: internal.ActionTypeAdd}},
	}
	require.NoError(t, e.Execute(context.Background(), table, "a1", []internal.Row{{"id": "r1", "ssn": "123-45-6789"}}, ""))
	require.Len(t, adapter.ops, 1)
	stored, _ := adapter.ops[0].row["ssn"].(string)
	assert.True(t, strings.HasPrefix(stored, "gb1:"))
}

func TestExecuteEncryptedFieldsWithoutCodec(t *testing.T) {
	e, done := newExecutor(t, &recordingAdapter{}, 0)
	defer done()

	table := testTable()
	table.Fields = append(table.Fields, internal.Field{ID: "ssn", Type: internal.FieldTypeText, Encrypted: true})
	err := e.Execute(context.Background(), table, "a1", []internal.Row{{"id": "r1"}}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encryption secret")
}
