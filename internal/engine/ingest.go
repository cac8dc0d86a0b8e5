package engine

import (
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gridbase/gridbase/internal"
	"github.com/gridbase/gridbase/internal/util"
	"github.com/spf13/cast"

	// drivers for connection descriptors that point at foreign databases
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// rowSource yields rows one at a time until it reports no more.
type rowSource func() (internal.Row, bool, error)

// materialize copies the descriptor's rows into the temp table using bound
// parameters inside one transaction.
func (e *Engine) materialize(ctx context.Context, db *sql.DB, tmp string, table *internal.Table, desc *internal.DataSourceDescriptor) error {
	if _, err := db.ExecContext(ctx, createTableSQL(tmp, table)); err != nil {
		return errors.Mark(errors.Wrapf(err, "creating temp table %s", tmp), internal.ErrData)
	}
	source, closer, err := e.openSource(ctx, table, desc)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer()
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "beginning ingest transaction"), internal.ErrData)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL(tmp, table))
	if err != nil {
		tx.Rollback()
		return errors.Mark(errors.Wrap(err, "preparing ingest statement"), internal.ErrData)
	}
	var count int
	for {
		row, ok, err := source()
		if err != nil {
			stmt.Close()
			tx.Rollback()
			return errors.Mark(errors.Wrapf(err, "reading source row %d", count), internal.ErrData)
		}
		if !ok {
			break
		}
		args := make([]any, 0, len(table.Fields))
		for _, f := range table.Fields {
			args = append(args, bindValue(f, row[f.ID]))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			stmt.Close()
			tx.Rollback()
			return errors.Mark(errors.Wrapf(err, "inserting source row %d", count), internal.ErrData)
		}
		count++
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return errors.Mark(errors.Wrap(err, "committing ingest"), internal.ErrData)
	}
	internal.RowsIngested.Add(float64(count))
	e.logger.Debug("materialized %d rows into %s for table %s", count, tmp, table.ID)
	return nil
}

// openSource turns a descriptor into a row source plus an optional cleanup.
func (e *Engine) openSource(ctx context.Context, table *internal.Table, desc *internal.DataSourceDescriptor) (rowSource, func(), error) {
	switch desc.Kind {
	case internal.DescriptorInline:
		return sliceSource(desc.Data), nil, nil
	case internal.DescriptorStream:
		if desc.Stream == nil {
			return nil, nil, errors.Mark(errors.New("stream descriptor carries no stream"), internal.ErrData)
		}
		stream := desc.Stream
		source := func() (internal.Row, bool, error) {
			if !stream.More() {
				return nil, false, nil
			}
			row, err := stream.Next()
			if err != nil {
				return nil, false, err
			}
			return row, true, nil
		}
		return source, func() { stream.Close() }, nil
	case internal.DescriptorFile:
		return e.openFile(desc)
	case internal.DescriptorURL:
		return e.openURL(ctx, desc)
	case internal.DescriptorConnection:
		return e.openConnection(ctx, desc)
	default:
		return nil, nil, errors.Mark(errors.Newf("unknown data source descriptor kind %s", desc.Kind), internal.ErrData)
	}
}

func sliceSource(rows []internal.Row) rowSource {
	var i int
	return func() (internal.Row, bool, error) {
		if i >= len(rows) {
			return nil, false, nil
		}
		row := rows[i]
		i++
		return row, true, nil
	}
}

// detectFormat resolves an auto format from the file extension or url path.
func detectFormat(declared internal.DataFormat, path string) internal.DataFormat {
	if declared != "" && declared != internal.FormatAuto {
		return declared
	}
	name := strings.TrimSuffix(path, ".gz")
	switch filepath.Ext(name) {
	case ".ndjson", ".jsonl":
		return internal.FormatNDJSON
	case ".csv":
		return internal.FormatCSV
	case ".parquet":
		return internal.FormatParquet
	default:
		return internal.FormatJSON
	}
}

func (e *Engine) openFile(desc *internal.DataSourceDescriptor) (rowSource, func(), error) {
	format := detectFormat(desc.Format, desc.Path)
	switch format {
	case internal.FormatNDJSON:
		dec, err := util.NewNDJSONDecoder(desc.Path)
		if err != nil {
			return nil, nil, errors.Mark(err, internal.ErrData)
		}
		return decoderSource(dec), func() { dec.Close() }, nil
	case internal.FormatJSON:
		in, err := openLocal(desc.Path)
		if err != nil {
			return nil, nil, errors.Mark(err, internal.ErrData)
		}
		source, err := jsonArraySource(in)
		if err != nil {
			in.Close()
			return nil, nil, err
		}
		return source, func() { in.Close() }, nil
	case internal.FormatCSV:
		in, err := openLocal(desc.Path)
		if err != nil {
			return nil, nil, errors.Mark(err, internal.ErrData)
		}
		return csvSource(in), func() { in.Close() }, nil
	default:
		return nil, nil, errors.Mark(errors.Newf("unsupported data format %s for %s", format, desc.Path), internal.ErrData)
	}
}

// openLocal opens a source file, transparently decompressing a gzip suffix.
func openLocal(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "reading gzip header of %s", path)
	}
	return &gzipFile{gz: gz, file: f}, nil
}

type gzipFile struct {
	gz   *gzip.Reader
	file *os.File
}

func (g *gzipFile) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipFile) Close() error {
	g.gz.Close()
	return g.file.Close()
}

func (e *Engine) openURL(ctx context.Context, desc *internal.DataSourceDescriptor) (rowSource, func(), error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.URL, nil)
	if err != nil {
		return nil, nil, errors.Mark(errors.Wrapf(err, "building request for %s", desc.URL), internal.ErrData)
	}
	for k, v := range desc.Headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil, errors.Mark(errors.Wrapf(err, "fetching %s", desc.URL), internal.ErrData)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, nil, errors.Mark(errors.Newf("fetching %s returned status %d", desc.URL, resp.StatusCode), internal.ErrData)
	}
	format := desc.Format
	if format == "" || format == internal.FormatAuto {
		switch {
		case strings.Contains(resp.Header.Get("Content-Type"), "ndjson"):
			format = internal.FormatNDJSON
		case strings.Contains(resp.Header.Get("Content-Type"), "csv"):
			format = internal.FormatCSV
		default:
			format = detectFormat(internal.FormatAuto, req.URL.Path)
		}
	}
	closer := func() { resp.Body.Close() }
	switch format {
	case internal.FormatNDJSON:
		return decoderSource(util.NewStreamDecoder(resp.Body)), closer, nil
	case internal.FormatJSON:
		source, err := jsonArraySource(resp.Body)
		if err != nil {
			closer()
			return nil, nil, err
		}
		return source, closer, nil
	case internal.FormatCSV:
		return csvSource(resp.Body), closer, nil
	default:
		closer()
		return nil, nil, errors.Mark(errors.Newf("unsupported data format %s for %s", format, desc.URL), internal.ErrData)
	}
}

// openConnection selects everything from the target of a foreign database
// reachable through a registered database/sql driver.
func (e *Engine) openConnection(ctx context.Context, desc *internal.DataSourceDescriptor) (rowSource, func(), error) {
	db, err := sql.Open(desc.Module, desc.ConnectionString)
	if err != nil {
		return nil, nil, errors.Mark(errors.Wrapf(err, "opening %s connection", desc.Module), internal.ErrData)
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", quoteForeignIdentifier(desc.Module, desc.Target)))
	if err != nil {
		db.Close()
		return nil, nil, errors.Mark(errors.Wrapf(err, "selecting from %s", desc.Target), internal.ErrData)
	}
	columns, err := rows.Columns()
	if err != nil {
		rows.Close()
		db.Close()
		return nil, nil, errors.Mark(errors.Wrap(err, "reading foreign columns"), internal.ErrData)
	}
	source := func() (internal.Row, bool, error) {
		if !rows.Next() {
			return nil, false, rows.Err()
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, false, err
		}
		row := make(internal.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		return row, true, nil
	}
	closer := func() {
		rows.Close()
		db.Close()
	}
	return source, closer, nil
}

func decoderSource(dec util.JSONDecoder) rowSource {
	return func() (internal.Row, bool, error) {
		if !dec.More() {
			return nil, false, nil
		}
		var row internal.Row
		if err := dec.Decode(&row); err != nil {
			return nil, false, err
		}
		return row, true, nil
	}
}

// jsonArraySource streams the objects of a JSON array document, also
// accepting a single top level object.
func jsonArraySource(r io.Reader) (rowSource, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "reading json document"), internal.ErrData)
	}
	if delim, ok := tok.(json.Delim); ok && delim == '{' {
		// single object: re-assemble it from the remaining tokens by
		// decoding the fields pairwise
		row := make(internal.Row)
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, errors.Mark(errors.Wrap(err, "reading json document"), internal.ErrData)
			}
			key, _ := keyTok.(string)
			var val any
			if err := dec.Decode(&val); err != nil {
				return nil, errors.Mark(errors.Wrap(err, "reading json document"), internal.ErrData)
			}
			row[key] = val
		}
		done := false
		return func() (internal.Row, bool, error) {
			if done {
				return nil, false, nil
			}
			done = true
			return row, true, nil
		}, nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, errors.Mark(errors.New("json document is not an array or object"), internal.ErrData)
	}
	return func() (internal.Row, bool, error) {
		if !dec.More() {
			return nil, false, nil
		}
		var row internal.Row
		if err := dec.Decode(&row); err != nil {
			return nil, false, err
		}
		return row, true, nil
	}, nil
}

// csvSource maps csv records to rows using the header line as field ids.
// Values arrive as strings; the column affinity of the temp table handles
// numeric comparisons.
func csvSource(r io.Reader) rowSource {
	reader := csv.NewReader(r)
	var header []string
	return func() (internal.Row, bool, error) {
		if header == nil {
			h, err := reader.Read()
			if err != nil {
				if err == io.EOF {
					return nil, false, nil
				}
				return nil, false, err
			}
			header = h
		}
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, false, nil
			}
			return nil, false, err
		}
		row := make(internal.Row, len(header))
		for i, col := range header {
			if i < len(record) && record[i] != "" {
				row[col] = record[i]
			}
		}
		return row, true, nil
	}
}

// bindValue normalizes a row value into what the temp table column stores.
// Nested and encrypted values stay serialized text and are never decoded
// here.
func bindValue(f internal.Field, v any) any {
	if v == nil {
		return nil
	}
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			v = i
		} else if fl, err := n.Float64(); err == nil {
			v = fl
		} else {
			v = n.String()
		}
	}
	if f.Encrypted {
		if s, ok := v.(string); ok {
			return s
		}
		return util.JSONStringify(v)
	}
	switch f.Type {
	case internal.FieldTypeJSON, internal.FieldTypeList:
		if s, ok := v.(string); ok {
			return s
		}
		return util.JSONStringify(v)
	case internal.FieldTypeDate:
		return bindDate(v)
	case internal.FieldTypeNumber, internal.FieldTypeBoolean:
		return v
	default:
		if s, ok := v.(string); ok {
			return s
		}
		return cast.ToString(v)
	}
}

// dateLayout is the canonical stored form for date columns. Fixed width and
// always UTC, so text comparison on the column matches comparison of the
// underlying instants.
const dateLayout = "2006-01-02 15:04:05.000000000+00:00"

// bindDate rewrites every accepted date representation into dateLayout.
// Rows and filter values both pass through here, so an epoch encoded source
// compares correctly against a timestamp or ISO string filter. A string
// that does not parse as a date is stored as is.
func bindDate(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(dateLayout)
	case int64:
		return time.Unix(t, 0).UTC().Format(dateLayout)
	case float64:
		return time.Unix(int64(t), 0).UTC().Format(dateLayout)
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return parsed.UTC().Format(dateLayout)
		}
		if parsed, err := cast.ToTimeE(t); err == nil {
			return parsed.UTC().Format(dateLayout)
		}
		return t
	default:
		return v
	}
}
