package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/gridbase/gridbase/internal"
	"github.com/gridbase/gridbase/internal/util"
	"github.com/gridbase/gridbase/internal/validator"
	"github.com/spf13/cobra"
)

func readRows(fn string) ([]internal.Row, error) {
	dec, err := util.NewNDJSONDecoder(fn)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	var rows []internal.Row
	for dec.More() {
		var row internal.Row
		if err := dec.Decode(&row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "validate newline delimited json rows against a table definition",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd)
		defer util.RecoverPanic(log)

		_, table, err := resolveTable(cmd)
		if err != nil {
			log.Fatal("%s", err)
		}
		rows, err := readRows(args[0])
		if err != nil {
			log.Fatal("%s", err)
		}

		v, err := validator.NewCache(context.Background(), log, 0, 0).Get(table)
		if err != nil {
			log.Fatal("%s", err)
		}

		red := color.New(color.FgRed).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		var failed int
		for i, row := range rows {
			if err := v.Validate(row); err != nil {
				failed++
				fmt.Printf("%s row %d: %s\n", red("invalid"), i+1, err)
			}
		}
		if failed > 0 {
			log.Error("%d of %d rows failed validation", failed, len(rows))
			os.Exit(1)
		}
		log.Info("%s %d rows", green("validated"), len(rows))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().String("schema", "", "the schema json file")
	validateCmd.Flags().String("table", "", "the table id to validate against")
}
