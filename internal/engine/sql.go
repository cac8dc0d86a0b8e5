package engine

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gridbase/gridbase/internal"
	"github.com/spf13/cast"
)

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteForeignIdentifier quotes a relation name in the dialect of the
// driver module a connection descriptor names. MySQL needs backticks, it
// reads a double quoted name as a string literal unless ANSI_QUOTES is on.
func quoteForeignIdentifier(module, name string) string {
	if module == "mysql" {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return quoteIdentifier(name)
}

// columnType maps a field to its native column type. Nested and opaque
// values are stored as serialized text and never decoded during ingest.
func columnType(f internal.Field) string {
	if f.Encrypted {
		return "TEXT"
	}
	switch f.Type {
	case internal.FieldTypeNumber:
		return "NUMERIC"
	case internal.FieldTypeBoolean:
		return "INTEGER"
	case internal.FieldTypeDate:
		return "TIMESTAMP"
	case internal.FieldTypeJSON, internal.FieldTypeList:
		return "TEXT"
	default:
		return "TEXT"
	}
}

func createTableSQL(tmp string, table *internal.Table) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	sb.WriteString(quoteIdentifier(tmp))
	sb.WriteString(" (")
	for i, f := range table.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdentifier(f.ID))
		sb.WriteString(" ")
		sb.WriteString(columnType(f))
	}
	sb.WriteString(")")
	return sb.String()
}

func insertSQL(tmp string, table *internal.Table) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(quoteIdentifier(tmp))
	sb.WriteString(" (")
	for i, f := range table.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdentifier(f.ID))
	}
	sb.WriteString(") VALUES (")
	for i := range table.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("?")
	}
	sb.WriteString(")")
	return sb.String()
}

var operatorSQL = map[internal.Operator]string{
	internal.OperatorEq:  "=",
	internal.OperatorNe:  "<>",
	internal.OperatorGt:  ">",
	internal.OperatorGte: ">=",
	internal.OperatorLt:  "<",
	internal.OperatorLte: "<=",
}

// buildSelect builds the single statement executed against the temp table.
// Every literal is a bound parameter, never interpolated, even though the
// identifiers are system generated.
func buildSelect(tmp string, table *internal.Table, opts internal.TableQueryOptions) (string, []any, error) {
	var sb strings.Builder
	var args []any
	sb.WriteString("SELECT ")
	for i, f := range table.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdentifier(f.ID))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdentifier(tmp))
	for i, filter := range opts.Filters {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		f := table.Field(filter.Field)
		if f == nil {
			return "", nil, errors.Newf("filter references unknown field %s on table %s", filter.Field, table.ID)
		}
		if filter.Operator == internal.OperatorContains {
			sb.WriteString(quoteIdentifier(f.ID))
			sb.WriteString(" LIKE ?")
			args = append(args, "%"+cast.ToString(filter.Value)+"%")
			continue
		}
		op, ok := operatorSQL[filter.Operator]
		if !ok {
			return "", nil, errors.Newf("unsupported filter operator %s", filter.Operator)
		}
		sb.WriteString(quoteIdentifier(f.ID))
		sb.WriteString(" ")
		sb.WriteString(op)
		sb.WriteString(" ?")
		args = append(args, bindValue(*f, filter.Value))
	}
	if opts.OrderBy != "" {
		f := table.Field(opts.OrderBy)
		if f == nil {
			return "", nil, errors.Newf("order by references unknown field %s on table %s", opts.OrderBy, table.ID)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(quoteIdentifier(f.ID))
		if strings.EqualFold(opts.Direction, "desc") {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}
	if opts.Limit != nil {
		sb.WriteString(" LIMIT ?")
		args = append(args, *opts.Limit)
	} else if opts.Offset != nil {
		// sqlite requires a LIMIT clause before OFFSET
		sb.WriteString(" LIMIT -1")
	}
	if opts.Offset != nil {
		sb.WriteString(" OFFSET ?")
		args = append(args, *opts.Offset)
	}
	return sb.String(), args, nil
}
