package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gridbase/gridbase/internal"
	"github.com/gridbase/gridbase/internal/codec"
	"github.com/shopmonkeyus/go-common/logger"

	_ "github.com/mattn/go-sqlite3"
)

// Engine virtualizes queries over arbitrary sources: it asks the table's
// adapter where the rows live, materializes them into a temporary table in
// an embedded analytical store, and runs one uniformly built SQL statement
// there. That way every source supports the full filter, sort and paginate
// contract even with zero native query capability.
type Engine struct {
	logger   logger.Logger
	registry *internal.AdapterRegistry
	codec    *codec.FieldCodec
}

// New creates a query engine. The codec may be nil when no table marks
// fields encrypted.
func New(logger logger.Logger, registry *internal.AdapterRegistry, fieldCodec *codec.FieldCodec) *Engine {
	return &Engine{
		logger:   logger.WithPrefix("[engine]"),
		registry: registry,
		codec:    fieldCodec,
	}
}

// Query returns the table's rows with the given filters, ordering and
// pagination applied. A caller supplied deadline on ctx bounds the whole
// call; cleanup still runs when it fires.
func (e *Engine) Query(ctx context.Context, table *internal.Table, secret string, opts internal.TableQueryOptions) ([]internal.Row, error) {
	started := time.Now()
	defer func() {
		internal.QueryDuration.Observe(time.Since(started).Seconds())
	}()

	adapter, err := e.registry.Adapter(table.SourceID)
	if err != nil {
		return nil, err
	}
	desc, err := e.describe(ctx, adapter, table, secret)
	if err != nil {
		return nil, err
	}
	if desc == nil {
		// the source exposes no read capability at all
		return []internal.Row{}, nil
	}

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "opening analytical store"), internal.ErrData)
	}
	// the temp table lives on a single in-memory connection
	db.SetMaxOpenConns(1)
	tmp := tempTableName()
	defer func() {
		// must run even when ingest or the query itself fails
		if _, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdentifier(tmp))); err != nil {
			e.logger.Debug("dropping temp table %s: %s", tmp, err)
		}
		if err := db.Close(); err != nil {
			e.logger.Debug("closing analytical store: %s", err)
		}
	}()

	if err := e.materialize(ctx, db, tmp, table, desc); err != nil {
		return nil, err
	}

	query, args, err := buildSelect(tmp, table, opts)
	if err != nil {
		return nil, err
	}
	e.logger.Trace("query: %s args: %v", query, args)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "executing query against %s", tmp), internal.ErrData)
	}
	defer rows.Close()
	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "reading result columns"), internal.ErrData)
	}
	out := make([]internal.Row, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "scanning result row"), internal.ErrData)
		}
		row := convertRow(table, columns, values)
		if e.codec != nil {
			row = e.codec.DecodeRow(table, row)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "iterating result rows"), internal.ErrData)
	}
	return out, nil
}

// describe asks the adapter where the table's rows live, preferring a data
// descriptor over a raw stream. A nil result means the source exposes
// neither capability.
func (e *Engine) describe(ctx context.Context, adapter internal.SourceAdapter, table *internal.Table, secret string) (*internal.DataSourceDescriptor, error) {
	if provider, ok := adapter.(internal.DataProvider); ok {
		desc, err := provider.GetData(ctx, table, secret)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "getting data descriptor for table %s", table.ID), internal.ErrData)
		}
		return desc, nil
	}
	if provider, ok := adapter.(internal.StreamProvider); ok {
		stream, err := provider.GetDataStream(ctx, table, secret)
		if err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "getting data stream for table %s", table.ID), internal.ErrData)
		}
		return &internal.DataSourceDescriptor{Kind: internal.DescriptorStream, Stream: stream}, nil
	}
	return nil, nil
}

// tempTableName returns a unique table name so concurrent queries can share
// one engine instance safely.
func tempTableName() string {
	return "gb_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
