// Package commands provides the CLI commands for the go-taint-query tool.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-taint-query/internal/config"
	"github.com/l3aro/go-taint-query/internal/log"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "gtq",
	Short: "go-taint-query - Taint analysis over extracted code facts",
	Long: `go-taint-query computes which variables carry untrusted data through a
program and answers point queries about them.

Commands:
  analyze     Run taint analysis over a fact store and save the fact set
  query       Ask whether a variable or call argument is tainted
  cfg         Show the control flow graph of a function
  patterns    List the source, sink and sanitizer patterns in effect
  serve       Serve a saved fact set over HTTP
  init        Create a project configuration
  doctor      Check that the configuration can drive an analysis

Use "gtq [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file path (default: ~/.gtq and ./.gtq layering)")
	RootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose logging")
	RootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON lines")

	RootCmd.AddCommand(analyzeCmd)
	RootCmd.AddCommand(queryCmd)
	RootCmd.AddCommand(cfgCmd)
	RootCmd.AddCommand(patternsCmd)
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(initCmd)
	RootCmd.AddCommand(doctorCmd)
}

// loadConfig resolves the configuration for a command, applying the
// persistent flags last.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if v, _ := cmd.Flags().GetBool("verbose"); v {
		cfg.Verbose = true
	}
	if v, _ := cmd.Flags().GetBool("log-json"); v {
		cfg.LogJSON = true
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) log.Logger {
	level := log.InfoLevel
	if cfg.Verbose {
		level = log.DebugLevel
	}
	return log.New(log.LoggerConfig{Level: level, JSONOutput: cfg.LogJSON, Output: os.Stderr})
}
