package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-taint-query/internal/config"
	"github.com/l3aro/go-taint-query/pkg/facts"
	"github.com/l3aro/go-taint-query/pkg/frameworks"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a project configuration",
	Long: `Guides you through setting up .gtq/config.yaml. With --yes the defaults are
written without prompting. --sample also writes a small fact store with one
tainted flow, handy for trying the other commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		sample, _ := cmd.Flags().GetBool("sample")
		return runInit(yes, sample)
	},
}

func runInit(yes, sample bool) error {
	cfg := config.DefaultConfig()
	path := config.ProjectConfigFilePath()
	if existing, err := config.LoadFromFile(path); err == nil {
		cfg = existing
	}

	if !yes {
		if err := promptConfig(cfg); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Configuration saved to %s\n", path)

	if sample {
		if err := writeSample(cfg.FactStore); err != nil {
			return err
		}
		fmt.Printf("Sample fact store written to %s\n", cfg.FactStore)
	}
	return nil
}

func promptConfig(cfg *config.Config) error {
	budget := cfg.Budget.String()
	var names []string
	for _, b := range frameworks.Builtins() {
		names = append(names, b.Name())
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Fact store").
				Description("SQLite database produced by the extractors").
				Value(&cfg.FactStore),
			huh.NewInput().
				Title("Source root").
				Description("Directory the fact store's file paths are relative to").
				Value(&cfg.SourceRoot),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Use control flow graphs?").
				Description("Python and JS/TS functions get branch-aware reachability; others use line order").
				Value(&cfg.UseCFG),
			huh.NewMultiSelect[string]().
				Title("Frameworks").
				Description("Leave empty to detect them from the fact store").
				Options(huh.NewOptions(names...)...).
				Value(&cfg.Frameworks),
			huh.NewInput().
				Title("Wall-clock budget").
				Placeholder("10m0s").
				Validate(func(s string) error {
					_, err := time.ParseDuration(s)
					return err
				}).
				Value(&budget),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	d, err := time.ParseDuration(budget)
	if err != nil {
		return fmt.Errorf("invalid budget %q: %w", budget, err)
	}
	cfg.Budget = d
	return nil
}

// writeSample writes sampleTables to path unless a file already exists there.
func writeSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing fact store %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return facts.WriteSQLite(path, sampleTables())
}

// sampleTables is a Flask view whose query parameter reaches a SQL sink
// through a helper, next to a sanitized path that does not.
func sampleTables() facts.Tables {
	return facts.Tables{
		Assignments: []facts.Assignment{
			{File: "app/views.py", Line: 8, Target: "name", Expr: "request.args.get('name')", Function: "search"},
			{File: "app/views.py", Line: 9, Target: "query", Expr: "\"SELECT * FROM users WHERE name = '\" + name + \"'\"", Function: "search"},
			{File: "app/views.py", Line: 14, Target: "page", Expr: "request.args.get('page')", Function: "profile"},
			{File: "app/views.py", Line: 15, Target: "page", Expr: "html.escape(page)", Function: "profile"},
		},
		CallArgs: []facts.CallArg{
			{File: "app/views.py", Line: 10, Caller: "search", Callee: "run_query", Index: 0, Expr: "query", Param: "sql"},
			{File: "app/views.py", Line: 16, Caller: "profile", Callee: "render_template_string", Index: 0, Expr: "page", Param: "source"},
			{File: "app/db.py", Line: 5, Caller: "run_query", Callee: "cursor.execute", Index: 0, Expr: "sql", Param: "operation"},
		},
		Returns: []facts.Return{
			{File: "app/db.py", Line: 6, Function: "run_query", Expr: "cursor.fetchall()"},
		},
		Symbols: []facts.Symbol{
			{Path: "app/views.py", Name: "search", Type: "function", Line: 7},
			{Path: "app/views.py", Name: "profile", Type: "function", Line: 13},
			{Path: "app/db.py", Name: "run_query", Type: "function", Line: 3},
		},
	}
}

func init() {
	initCmd.Flags().BoolP("yes", "y", false, "Accept defaults without prompting")
	initCmd.Flags().Bool("sample", false, "Also write a sample fact store")
}
