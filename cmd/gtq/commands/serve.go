package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-taint-query/pkg/facts"
	"github.com/l3aro/go-taint-query/pkg/server"
	"github.com/l3aro/go-taint-query/pkg/taint"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a saved fact set over HTTP",
	Long: `Loads the fact set written by analyze and answers read-only queries:

  GET /api/tainted?var=b&line=12[&file=app.py]
  GET /api/provenance?var=b&line=12
  GET /api/argument?file=app.py&line=40&callee=execute&index=0
  GET /api/findings
  GET /api/stats
  GET /healthz

Findings are evaluated against the fact store when it is readable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			c.ServeAddr, _ = cmd.Flags().GetString("addr")
		}
		if cmd.Flags().Changed("factset") {
			c.FactSetPath, _ = cmd.Flags().GetString("factset")
		}
		logger := newLogger(c)

		fs, err := taint.LoadFactSetFile(c.FactSetPath)
		if err != nil {
			return fmt.Errorf("loading fact set (run gtq analyze first): %w", err)
		}
		q := taint.NewFacade(fs)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var findings []taint.Finding
		if store, err := facts.OpenSQLite(ctx, c.FactStore); err == nil {
			reg, _, err := buildRegistry(store, c, logger)
			if err != nil {
				return err
			}
			findings = taint.EvaluateSinks(q, store, reg)
		} else {
			logger.Warn("fact store unavailable, serving without findings", "error", err)
		}

		return server.NewApp(q, findings, logger).Serve(ctx, c.ServeAddr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
	serveCmd.Flags().String("factset", "", "Fact set path (default from config)")
}
