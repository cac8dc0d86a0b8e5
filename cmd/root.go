package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/gridbase/gridbase/internal"
	"github.com/gridbase/gridbase/internal/adapters/file"
	"github.com/gridbase/gridbase/internal/adapters/memory"
	"github.com/shopmonkeyus/go-common/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set by main from the build metadata.
var Version = "dev"

func mustFlagBool(cmd *cobra.Command, name string, required bool) bool {
	val, err := cmd.Flags().GetBool(name)
	if required && err != nil {
		fmt.Printf("error: %s\n", err)
		os.Exit(1)
	}
	return val
}

func mustFlagString(cmd *cobra.Command, name string, required bool) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		fmt.Printf("error: %s\n", err)
		os.Exit(1)
	}
	if required && val == "" {
		fmt.Printf("error: required flag --%s missing\n", name)
		os.Exit(1)
	}
	return val
}

func newLogger(cmd *cobra.Command) logger.Logger {
	if mustFlagBool(cmd, "verbose", false) {
		return logger.NewConsoleLogger(logger.LevelTrace)
	}
	if mustFlagBool(cmd, "silent", false) {
		return logger.NewConsoleLogger(logger.LevelError)
	}
	return logger.NewConsoleLogger(logger.LevelInfo)
}

// loadConfig merges flag and environment settings on top of the defaults.
func loadConfig(cmd *cobra.Command) internal.Config {
	v := viper.New()
	v.SetEnvPrefix("GRIDBASE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.BindPFlags(cmd.Flags())
	return internal.ConfigFromViper(v)
}

// newRegistry registers the built in adapters.
func newRegistry(log logger.Logger, cfg internal.Config) (*internal.AdapterRegistry, error) {
	registry := internal.NewAdapterRegistry()
	registry.Register(memory.New(log))
	fileAdapter, err := file.New(log, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	registry.Register(fileAdapter)
	return registry, nil
}

var rootCmd = &cobra.Command{
	Use:   "gridbase",
	Short: "expose heterogeneous data sources through one uniform table model",
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("verbose", false, "turn on verbose logging")
	rootCmd.PersistentFlags().Bool("silent", false, "turn off all logging")
	rootCmd.PersistentFlags().String("data-dir", "data", "the directory for file tables and durable state")
	rootCmd.PersistentFlags().String("encryption-secret", "", "the secret for encrypted fields")
	rootCmd.PersistentFlags().Int("max-recursive-depth", 0, "the maximum process action recursion depth")
}
