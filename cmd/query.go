package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/gridbase/gridbase/internal"
	"github.com/gridbase/gridbase/internal/codec"
	"github.com/gridbase/gridbase/internal/engine"
	"github.com/gridbase/gridbase/internal/util"
	"github.com/spf13/cobra"
)

func loadSchema(fn string) (*internal.Schema, error) {
	buf, err := os.ReadFile(fn)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", fn)
	}
	var schema internal.Schema
	if err := json.Unmarshal(buf, &schema); err != nil {
		return nil, errors.Wrapf(err, "unable to parse %s", fn)
	}
	return &schema, nil
}

func resolveTable(cmd *cobra.Command) (*internal.Schema, *internal.Table, error) {
	schema, err := loadSchema(mustFlagString(cmd, "schema", true))
	if err != nil {
		return nil, nil, err
	}
	tableID := mustFlagString(cmd, "table", true)
	table := schema.Table(tableID)
	if table == nil {
		return nil, nil, errors.Mark(errors.Newf("table %s not found in schema %s", tableID, schema.ID), internal.ErrTableNotFound)
	}
	return schema, table, nil
}

// parseFilter parses field:operator:value into a query filter. Numeric and
// boolean values are detected so comparisons behave as expected.
func parseFilter(arg string) (internal.QueryFilter, error) {
	parts := strings.SplitN(arg, ":", 3)
	if len(parts) != 3 {
		return internal.QueryFilter{}, errors.Newf("invalid filter %q, expected field:operator:value", arg)
	}
	var value any = parts[2]
	if i, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
		value = i
	} else if f, err := strconv.ParseFloat(parts[2], 64); err == nil {
		value = f
	} else if b, err := strconv.ParseBool(parts[2]); err == nil {
		value = b
	}
	return internal.QueryFilter{
		Field:    parts[0],
		Operator: internal.Operator(parts[1]),
		Value:    value,
	}, nil
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "run a filtered, ordered and paginated read against a table",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd)
		defer util.RecoverPanic(log)
		cfg := loadConfig(cmd)

		_, table, err := resolveTable(cmd)
		if err != nil {
			log.Fatal("%s", err)
		}
		registry, err := newRegistry(log, cfg)
		if err != nil {
			log.Fatal("%s", err)
		}
		var fieldCodec *codec.FieldCodec
		if cfg.EncryptionSecret != "" {
			if fieldCodec, err = codec.New(log, cfg.EncryptionSecret); err != nil {
				log.Fatal("%s", err)
			}
		}

		var opts internal.TableQueryOptions
		filters, _ := cmd.Flags().GetStringArray("filter")
		for _, arg := range filters {
			filter, err := parseFilter(arg)
			if err != nil {
				log.Fatal("%s", err)
			}
			opts.Filters = append(opts.Filters, filter)
		}
		opts.OrderBy = mustFlagString(cmd, "order-by", false)
		if mustFlagBool(cmd, "desc", false) {
			opts.Direction = "desc"
		}
		if cmd.Flags().Changed("limit") {
			limit, _ := cmd.Flags().GetInt("limit")
			opts.Limit = &limit
		}
		if cmd.Flags().Changed("offset") {
			offset, _ := cmd.Flags().GetInt("offset")
			opts.Offset = &offset
		}

		rows, err := engine.New(log, registry, fieldCodec).Query(context.Background(), table, cfg.EncryptionSecret, opts)
		if err != nil {
			log.Fatal("%s", err)
		}
		for _, row := range rows {
			fmt.Println(util.JSONStringify(row))
		}
		green := color.New(color.FgGreen).SprintFunc()
		log.Info("%s returned %s", table.ID, green(fmt.Sprintf("%d rows", len(rows))))
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().String("schema", "", "the schema json file")
	queryCmd.Flags().String("table", "", "the table id to query")
	queryCmd.Flags().StringArray("filter", nil, "a filter as field:operator:value, repeatable")
	queryCmd.Flags().String("order-by", "", "the field to order by")
	queryCmd.Flags().Bool("desc", false, "order descending")
	queryCmd.Flags().Int("limit", 0, "the maximum number of rows to return")
	queryCmd.Flags().Int("offset", 0, "the number of rows to skip")
}
