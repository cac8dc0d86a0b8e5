package internal

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// SourceAdapter is the base interface implemented by all source adapters.
// Every other capability is optional and discovered with a type assertion,
// so a source only exposes the subset of operations it can actually serve.
type SourceAdapter interface {

	// Scheme returns the unique scheme the adapter is registered under.
	Scheme() string
}

// TableDescriptor identifies one table discoverable inside a source.
type TableDescriptor struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Capabilities reports which parts of a query a source can execute natively.
// The query engine works uniformly regardless, so these are advisory.
type Capabilities struct {
	Filter bool `json:"filter"`
	Limit  bool `json:"limit"`
	Offset bool `json:"offset"`
}

// TableLister is implemented by adapters that can enumerate tables at a
// source specific path.
type TableLister interface {
	ListTables(ctx context.Context, path string) ([]TableDescriptor, error)
}

// TableGetter is implemented by adapters that can derive a table definition
// from the source itself.
type TableGetter interface {
	GetTable(ctx context.Context, path string, secret string) (*Table, error)
}

// CapabilityReporter is implemented by adapters that can report their native
// query capabilities.
type CapabilityReporter interface {
	GetCapabilities(table *Table) Capabilities
}

// DataProvider is implemented by adapters that can hand back a descriptor of
// where the table's rows live.
type DataProvider interface {
	GetData(ctx context.Context, table *Table, secret string) (*DataSourceDescriptor, error)
}

// StreamProvider is implemented by adapters that can stream rows directly.
type StreamProvider interface {
	GetDataStream(ctx context.Context, table *Table, secret string) (RowStream, error)
}

// RowAdder is implemented by adapters that support creating rows.
type RowAdder interface {
	AddRow(ctx context.Context, table *Table, secret string, row Row) error
}

// RowUpdater is implemented by adapters that support updating rows by key.
type RowUpdater interface {
	UpdateRow(ctx context.Context, table *Table, secret string, key Row, row Row) error
}

// RowDeleter is implemented by adapters that support deleting rows by key.
type RowDeleter interface {
	DeleteRow(ctx context.Context, table *Table, secret string, key Row) error
}

// AuthResult is the outcome of an adapter's authorization exchange.
type AuthResult struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Email   string `json:"email,omitempty"`
}

// Authorizer is implemented by adapters whose sources require a login
// exchange to mint connection content.
type Authorizer interface {
	Authorize(ctx context.Context, params map[string]string) (*AuthResult, error)
	GetAuthURL() string
}

// RowStream is an incremental reader over a source's rows, mirroring the
// shape of a streaming JSON decoder.
type RowStream interface {

	// More returns true when another row is available.
	More() bool

	// Next returns the next row.
	Next() (Row, error)

	// Close releases the stream.
	Close() error
}

// DataFormat describes the serialization of file and url backed data.
type DataFormat string

const (
	FormatJSON    DataFormat = "json"
	FormatCSV     DataFormat = "csv"
	FormatParquet DataFormat = "parquet"
	FormatNDJSON  DataFormat = "ndjson"
	FormatAuto    DataFormat = "auto"
)

// DescriptorKind tags the variant of a DataSourceDescriptor.
type DescriptorKind string

const (
	DescriptorInline     DescriptorKind = "inline"
	DescriptorFile       DescriptorKind = "file"
	DescriptorURL        DescriptorKind = "url"
	DescriptorStream     DescriptorKind = "stream"
	DescriptorConnection DescriptorKind = "connection"
)

// DataSourceDescriptor tells the query engine where a table's rows live: an
// inline batch, an already materialized stream, or a reference to an external
// queryable location.
type DataSourceDescriptor struct {
	Kind DescriptorKind `json:"kind"`

	// inline
	Data []Row `json:"data,omitempty"`

	// file
	Path string `json:"path,omitempty"`

	// url
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// file and url
	Format DataFormat `json:"format,omitempty"`

	// stream
	Stream RowStream `json:"-"`

	// connection: a database/sql driver name, its connection string and the
	// table to select from
	Module           string `json:"module,omitempty"`
	ConnectionString string `json:"connectionString,omitempty"`
	Target           string `json:"target,omitempty"`
}

// AdapterRegistry holds the registered source adapters keyed by scheme.
type AdapterRegistry struct {
	mu       sync.RWMutex
	adapters map[string]SourceAdapter
}

// NewAdapterRegistry returns an empty registry.
func NewAdapterRegistry() *AdapterRegistry {
	return &AdapterRegistry{adapters: make(map[string]SourceAdapter)}
}

// Register registers an adapter under its scheme, replacing any previous
// registration.
func (r *AdapterRegistry) Register(adapter SourceAdapter) {
	r.mu.Lock()
	r.adapters[adapter.Scheme()] = adapter
	r.mu.Unlock()
}

// Adapter returns the adapter registered for the given source id.
func (r *AdapterRegistry) Adapter(sourceID string) (SourceAdapter, error) {
	r.mu.RLock()
	adapter := r.adapters[sourceID]
	r.mu.RUnlock()
	if adapter == nil {
		return nil, errors.Mark(errors.Newf("no adapter registered for source %s", sourceID), ErrSourceNotFound)
	}
	return adapter, nil
}

// Schemes returns the registered schemes.
func (r *AdapterRegistry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]string, 0, len(r.adapters))
	for scheme := range r.adapters {
		res = append(res, scheme)
	}
	return res
}
