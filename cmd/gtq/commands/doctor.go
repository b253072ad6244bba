package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-taint-query/internal/config"
	"github.com/l3aro/go-taint-query/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the configuration can drive an analysis",
	Long: `Opens the fact store, resolves the pattern plugins, checks that the
fact-store files can be parsed from the source root and reads the saved fact
set. Exits non-zero when any check fails.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		configPath, _ := cmd.Flags().GetString("config")
		if configPath == "" {
			configPath = config.EffectiveConfigFilePath()
		}

		result, err := healthcheck.Check(cmd.Context(), c, configPath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(os.Stdout, result)
		if result.Failed() {
			return fmt.Errorf("health check failed: one or more checks errored")
		}
		return nil
	},
}

func displayDoctorResult(w io.Writer, result *healthcheck.HealthCheckResult) {
	if result.ConfigPath == "" {
		fmt.Fprintln(w, "Using config: defaults (run 'gtq init' to create one)")
	} else {
		fmt.Fprintf(w, "Using config: %s (%s)\n", result.ConfigPath, result.ConfigScope)
	}
	fmt.Fprintln(w)
	for _, c := range result.Checks {
		fmt.Fprintf(w, "  %s %-12s %s\n", formatStatusIcon(c.Status), c.Name, c.Detail)
	}
}

func formatStatusIcon(status healthcheck.Status) string {
	switch status {
	case healthcheck.StatusOK:
		return color.GreenString("✓")
	case healthcheck.StatusWarn:
		return color.YellowString("!")
	case healthcheck.StatusError:
		return color.RedString("✗")
	case healthcheck.StatusSkipped:
		return "-"
	default:
		return "?"
	}
}
