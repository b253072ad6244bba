package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-taint-query/internal/log"
	"github.com/l3aro/go-taint-query/internal/scanner"
	"github.com/l3aro/go-taint-query/pkg/cfg"
)

// cfgCmd represents the cfg command
var cfgCmd = &cobra.Command{
	Use:   "cfg <path> [function]",
	Short: "Show the control flow graph of a function",
	Long: `Parses a Python, JavaScript or TypeScript file and prints the control
flow graph of one function, or of every function with --all. A directory is
scanned for source files (honoring .gtqignore) and requires --all.
--json prints the persisted dict form.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := args[0]
		info, err := os.Stat(target)
		if err != nil {
			return fmt.Errorf("stat path: %w", err)
		}

		all, _ := cmd.Flags().GetBool("all")
		if len(args) == 1 && !all {
			return fmt.Errorf("name a function or pass --all")
		}
		if info.IsDir() && !all {
			return fmt.Errorf("%s is a directory, pass --all", target)
		}

		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		logger := newLogger(c)

		var funcs []cfg.Function
		if info.IsDir() {
			funcs, err = parseTree(cmd.Context(), target, logger)
		} else {
			funcs, err = cfg.ParseFile(cmd.Context(), target)
		}
		if err != nil {
			return err
		}
		if len(args) == 2 {
			funcs = functionsNamed(funcs, args[1])
			if len(funcs) == 0 {
				return fmt.Errorf("function %q not found in %s", args[1], target)
			}
			if len(funcs) > 1 && !all {
				logger.Warn("function name is ambiguous, showing the first", "function", args[1], "matches", len(funcs))
				funcs = funcs[:1]
			}
		}
		if len(funcs) == 0 {
			return fmt.Errorf("no functions found in %s", target)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		bar := newBar(len(funcs), "building CFGs", !all || jsonOutput)
		graphs, err := cfg.BuildAll(cmd.Context(), funcs, c.Workers, logger, func(*cfg.Graph) { _ = bar.Add(1) })
		_ = bar.Finish()
		if err != nil {
			return err
		}

		if jsonOutput {
			dicts := make([]cfg.Dict, len(graphs))
			for i, g := range graphs {
				dicts[i] = g.ToDict()
			}
			var v interface{} = dicts
			if len(dicts) == 1 && !all {
				v = dicts[0]
			}
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}
		for _, g := range graphs {
			printGraph(os.Stdout, g)
		}
		return nil
	},
}

// parseTree parses every supported source file under root. Function names
// are prefixed with the file they come from; files that fail to parse are
// skipped.
func parseTree(ctx context.Context, root string, logger log.Logger) ([]cfg.Function, error) {
	files, err := scanner.Scan(ctx, root, scanner.DefaultOptions())
	if err != nil {
		return nil, err
	}
	var funcs []cfg.Function
	for _, f := range files {
		parsed, err := cfg.ParseFile(ctx, f.FullPath)
		if err != nil {
			logger.Debug("skipping source file", "file", f.Path, "error", err)
			continue
		}
		for _, fn := range parsed {
			fn.Name = f.Path + ":" + fn.Name
			funcs = append(funcs, fn)
		}
	}
	return funcs, nil
}

// functionsNamed matches by exact name, or by the method part of a
// Class.method name.
func functionsNamed(funcs []cfg.Function, name string) []cfg.Function {
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	var out []cfg.Function
	for _, fn := range funcs {
		short := fn.Name
		if i := strings.LastIndex(short, ":"); i >= 0 {
			short = short[i+1:]
		}
		if short == name {
			out = append(out, fn)
		}
	}
	return out
}

func printGraph(w io.Writer, g *cfg.Graph) {
	fmt.Fprintf(w, "=== CFG for function: %s ===\n", g.Name)
	fmt.Fprintf(w, "Cyclomatic Complexity: %d\n", g.Complexity())
	fmt.Fprintf(w, "Entry Block: %d\n", g.Entry)
	fmt.Fprintf(w, "Exit Block: %d\n", g.Exit)
	if dead := g.Unreachable(); len(dead) > 0 {
		fmt.Fprintf(w, "Unreachable Blocks: %v\n", dead)
	}

	fmt.Fprintf(w, "\nBlocks (%d):\n", g.NumBlocks())
	for _, b := range g.Blocks {
		fmt.Fprintf(w, "  %d (%s)\n", b.ID, b.Kind)
		for _, s := range b.Statements {
			fmt.Fprintf(w, "    %4d  %s\n", s.Line, s.Text)
		}
	}

	fmt.Fprintf(w, "\nEdges (%d):\n", len(g.Edges))
	for _, e := range g.Edges {
		fmt.Fprintf(w, "  %d --%s--> %d\n", e.SourceID, e.Condition, e.TargetID)
	}
	fmt.Fprintln(w)
}

func init() {
	cfgCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	cfgCmd.Flags().Bool("all", false, "Build every function in the file or directory")
}
