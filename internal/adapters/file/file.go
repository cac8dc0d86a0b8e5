package file

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gridbase/gridbase/internal"
	"github.com/gridbase/gridbase/internal/util"
	"github.com/shopmonkeyus/go-common/logger"
)

// Adapter serves tables backed by data files under a root directory. A
// table's path names the file relative to the root; reads hand the file
// to the query engine and appends land in newline delimited JSON.
type Adapter struct {
	logger logger.Logger
	dir    string
}

var _ internal.SourceAdapter = (*Adapter)(nil)
var _ internal.DataProvider = (*Adapter)(nil)
var _ internal.CapabilityReporter = (*Adapter)(nil)
var _ internal.TableLister = (*Adapter)(nil)
var _ internal.RowAdder = (*Adapter)(nil)

func New(logger logger.Logger, dir string) (*Adapter, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to get absolute path for %s", dir)
	}
	if !util.Exists(abs) {
		if err := os.MkdirAll(abs, 0755); err != nil {
			return nil, errors.Wrap(err, "unable to create directory")
		}
	}
	return &Adapter{
		logger: logger.WithPrefix("[file]"),
		dir:    abs,
	}, nil
}

func (a *Adapter) Scheme() string {
	return "file"
}

// GetCapabilities reports no native query support, files are always
// materialized by the query engine.
func (a *Adapter) GetCapabilities(table *internal.Table) internal.Capabilities {
	return internal.Capabilities{}
}

// resolve joins a table path against the root, rejecting escapes.
func (a *Adapter) resolve(path string) (string, error) {
	if path == "" {
		return "", errors.New("table path is required")
	}
	fp := filepath.Join(a.dir, filepath.Clean("/"+path))
	if !strings.HasPrefix(fp, a.dir+string(filepath.Separator)) {
		return "", errors.Newf("path %s escapes the data directory", path)
	}
	return fp, nil
}

func (a *Adapter) GetData(ctx context.Context, table *internal.Table, secret string) (*internal.DataSourceDescriptor, error) {
	fp, err := a.resolve(table.Path)
	if err != nil {
		return nil, err
	}
	return &internal.DataSourceDescriptor{
		Kind:   internal.DescriptorFile,
		Path:   fp,
		Format: internal.FormatAuto,
	}, nil
}

// AddRow appends the row to the table's file as newline delimited JSON.
func (a *Adapter) AddRow(ctx context.Context, table *internal.Table, secret string, row internal.Row) error {
	fp, err := a.resolve(table.Path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(fp)
	if !util.Exists(dir) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "unable to create directory")
		}
	}
	f, err := os.OpenFile(fp, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrapf(err, "unable to open %s", fp)
	}
	if _, err := f.WriteString(util.JSONStringify(row) + "\n"); err != nil {
		f.Close()
		return errors.Wrapf(err, "unable to write %s", fp)
	}
	return f.Close()
}

var tableExtensions = map[string]bool{
	".json":   true,
	".ndjson": true,
	".jsonl":  true,
	".csv":    true,
}

// ListTables enumerates the data files under a directory relative to the
// root, one table per file.
func (a *Adapter) ListTables(ctx context.Context, path string) ([]internal.TableDescriptor, error) {
	dir := a.dir
	if path != "" {
		fp, err := a.resolve(path)
		if err != nil {
			return nil, err
		}
		dir = fp
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read directory %s", dir)
	}
	var tables []internal.TableDescriptor
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(strings.TrimSuffix(name, ".gz")))
		if ext == "" {
			ext = strings.ToLower(filepath.Ext(name))
		}
		if !tableExtensions[ext] {
			continue
		}
		rel, err := filepath.Rel(a.dir, filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		tables = append(tables, internal.TableDescriptor{
			Name: strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ext),
			Path: rel,
		})
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables, nil
}
