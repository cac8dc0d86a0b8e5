package cmd

import (
	"context"

	"github.com/gridbase/gridbase/internal/codec"
	"github.com/gridbase/gridbase/internal/executor"
	"github.com/gridbase/gridbase/internal/util"
	"github.com/gridbase/gridbase/internal/validator"
	"github.com/spf13/cobra"
)

var actionsCmd = &cobra.Command{
	Use:   "actions [rows file]",
	Short: "execute a table action over newline delimited json rows",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		log := newLogger(cmd)
		defer util.RecoverPanic(log)
		cfg := loadConfig(cmd)

		_, table, err := resolveTable(cmd)
		if err != nil {
			log.Fatal("%s", err)
		}
		actionID := mustFlagString(cmd, "action", true)
		rows, err := readRows(args[0])
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

		ctx := context.Background()
		exec := executor.New(executor.Config{
			Logger:            log,
			Registry:          registry,
			Validators:        validator.NewCache(ctx, log, cfg.ValidatorCacheTTL, cfg.ValidatorCacheSize),
			Codec:             fieldCodec,
			MaxRecursiveDepth: cfg.MaxRecursiveDepth,
		})
		if err := exec.Execute(ctx, table, actionID, rows, cfg.EncryptionSecret); err != nil {
			log.Fatal("%s", err)
		}
		log.Info("executed %s on %s with %d rows", actionID, table.ID, len(rows))
	},
}

func init() {
	rootCmd.AddCommand(actionsCmd)
	actionsCmd.Flags().String("schema", "", "the schema json file")
	actionsCmd.Flags().String("table", "", "the table id")
	actionsCmd.Flags().String("action", "", "the action id to execute")
}
