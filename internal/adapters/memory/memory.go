package memory

import (
	"context"
	"reflect"
	"sync"

	"github.com/gridbase/gridbase/internal"
	"github.com/shopmonkeyus/go-common/logger"
)

// Adapter keeps table rows in process memory, preserving insertion order.
// It is the reference implementation of the mutation capabilities and is
// used for scratch tables and tests.
type Adapter struct {
	logger logger.Logger
	mu     sync.RWMutex
	tables map[string][]internal.Row
}

var _ internal.SourceAdapter = (*Adapter)(nil)
var _ internal.DataProvider = (*Adapter)(nil)
var _ internal.CapabilityReporter = (*Adapter)(nil)
var _ internal.RowAdder = (*Adapter)(nil)
var _ internal.RowUpdater = (*Adapter)(nil)
var _ internal.RowDeleter = (*Adapter)(nil)

func New(logger logger.Logger) *Adapter {
	return &Adapter{
		logger: logger.WithPrefix("[memory]"),
		tables: make(map[string][]internal.Row),
	}
}

func (a *Adapter) Scheme() string {
	return "memory"
}

// Seed replaces the rows of a table, for bootstrapping fixtures.
func (a *Adapter) Seed(tableID string, rows []internal.Row) {
	a.mu.Lock()
	defer a.mu.Unlock()
	copied := make([]internal.Row, len(rows))
	copy(copied, rows)
	a.tables[tableID] = copied
}

// GetCapabilities reports no native query support so every read goes
// through the query engine.
func (a *Adapter) GetCapabilities(table *internal.Table) internal.Capabilities {
	return internal.Capabilities{}
}

func (a *Adapter) GetData(ctx context.Context, table *internal.Table, secret string) (*internal.DataSourceDescriptor, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rows := a.tables[table.ID]
	copied := make([]internal.Row, len(rows))
	copy(copied, rows)
	return &internal.DataSourceDescriptor{
		Kind: internal.DescriptorInline,
		Data: copied,
	}, nil
}

func (a *Adapter) AddRow(ctx context.Context, table *internal.Table, secret string, row internal.Row) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tables[table.ID] = append(a.tables[table.ID], row)
	return nil
}

func (a *Adapter) UpdateRow(ctx context.Context, table *internal.Table, secret string, key internal.Row, row internal.Row) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	rows := a.tables[table.ID]
	for i, existing := range rows {
		if matches(existing, key) {
			rows[i] = row
			return nil
		}
	}
	a.logger.Debug("update matched no row in table %s", table.ID)
	return nil
}

func (a *Adapter) DeleteRow(ctx context.Context, table *internal.Table, secret string, key internal.Row) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	rows := a.tables[table.ID]
	for i, existing := range rows {
		if matches(existing, key) {
			a.tables[table.ID] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	a.logger.Debug("delete matched no row in table %s", table.ID)
	return nil
}

// matches uses deep equality, key values are not restricted to comparable
// types.
func matches(row internal.Row, key internal.Row) bool {
	for k, v := range key {
		if !reflect.DeepEqual(row[k], v) {
			return false
		}
	}
	return len(key) > 0
}
