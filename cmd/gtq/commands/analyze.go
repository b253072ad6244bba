package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-taint-query/internal/config"
	"github.com/l3aro/go-taint-query/internal/log"
	"github.com/l3aro/go-taint-query/pkg/cache"
	"github.com/l3aro/go-taint-query/pkg/dirty"
	"github.com/l3aro/go-taint-query/pkg/facts"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run taint analysis over a fact store",
	Long: `Reads the assignments, call arguments, returns and symbols of a fact store,
propagates taint from every source to a fixed point and saves the resulting
fact set. Tainted arguments reaching a sink are reported as findings.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("db") {
			c.FactStore, _ = cmd.Flags().GetString("db")
		}
		if cmd.Flags().Changed("source-root") {
			c.SourceRoot, _ = cmd.Flags().GetString("source-root")
		}
		if cmd.Flags().Changed("out") {
			c.FactSetPath, _ = cmd.Flags().GetString("out")
		}
		if cmd.Flags().Changed("budget") {
			c.Budget, _ = cmd.Flags().GetDuration("budget")
		}
		if cmd.Flags().Changed("max-facts") {
			c.MaxFacts, _ = cmd.Flags().GetInt("max-facts")
		}
		if packs, _ := cmd.Flags().GetStringSlice("pack"); len(packs) > 0 {
			c.PatternPacks = append(c.PatternPacks, packs...)
		}
		if fw, _ := cmd.Flags().GetStringSlice("framework"); len(fw) > 0 {
			c.Frameworks = fw
		}
		if noCFG, _ := cmd.Flags().GetBool("no-cfg"); noCFG {
			c.UseCFG = false
		}
		if err := c.Validate(); err != nil {
			return err
		}

		logger := newLogger(c)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		graphs := cache.New(cache.Options{MaxSize: c.CacheSize})
		cacheFile, _ := cmd.Flags().GetString("cache-file")
		var sums *dirty.Tracker
		if cacheFile != "" && c.UseCFG {
			if sums, err = loadGraphCache(ctx, graphs, cacheFile, c.SourceRoot, logger); err != nil {
				return err
			}
		}

		quiet, _ := cmd.Flags().GetBool("quiet")
		jsonOutput, _ := cmd.Flags().GetBool("json")
		if c.UseCFG {
			if err := warmFromStore(ctx, cmd, c, graphs, logger, quiet || jsonOutput); err != nil {
				return err
			}
		}

		result, err := runAnalysis(ctx, c, graphs, logger)
		if err != nil {
			return err
		}

		if err := result.FactSet.SaveFile(c.FactSetPath); err != nil {
			return fmt.Errorf("saving fact set: %w", err)
		}
		if sums != nil {
			persistGraphCache(graphs, sums, cacheFile, logger)
		}

		if jsonOutput {
			data, err := json.MarshalIndent(result.Findings, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}
		printAnalysis(os.Stdout, result, c.FactSetPath)
		return nil
	},
}

// loadGraphCache fills graphs from a persisted cache and drops the graphs of
// source files that changed since it was written. A cache that cannot be
// decoded is ignored.
func loadGraphCache(ctx context.Context, graphs *cache.GraphCache, path, root string, logger log.Logger) (*dirty.Tracker, error) {
	if err := cache.LoadFromFile(graphs, path); err != nil {
		logger.Warn("ignoring CFG cache", "file", path, "error", err)
		graphs.Clear()
	}
	sums, err := dirty.LoadFile(path+dirty.SumsSuffix, root)
	if err != nil {
		logger.Warn("ignoring CFG cache hashes", "error", err)
		sums = dirty.New(root)
	}

	changed, err := sums.ChangedFiles(ctx, graphs.Files())
	if err != nil {
		return nil, err
	}
	for _, file := range changed {
		n := graphs.DeleteFile(file)
		sums.Forget(file)
		logger.Debug("dropped stale CFGs", "file", file, "graphs", n)
	}
	return sums, nil
}

// persistGraphCache writes graphs and the hashes of the files they were
// built from next to each other.
func persistGraphCache(graphs *cache.GraphCache, sums *dirty.Tracker, path string, logger log.Logger) {
	for _, file := range graphs.Files() {
		if err := sums.Record(file); err != nil {
			graphs.DeleteFile(file)
			sums.Forget(file)
		}
	}
	if err := cache.PersistToFile(graphs, path); err != nil {
		logger.Warn("failed to persist CFG cache", "file", path, "error", err)
		return
	}
	if err := sums.SaveFile(path + dirty.SumsSuffix); err != nil {
		logger.Warn("failed to persist CFG cache hashes", "error", err)
	}
}

// warmFromStore pre-builds graphs before propagation when the fact store is
// readable; failures fall through to runAnalysis, which reports them.
func warmFromStore(ctx context.Context, cmd *cobra.Command, c *config.Config, graphs *cache.GraphCache, logger log.Logger, quiet bool) error {
	if warm, _ := cmd.Flags().GetBool("warm"); !warm {
		return nil
	}
	store, err := facts.OpenSQLite(ctx, c.FactStore)
	if err != nil {
		return nil
	}
	n, err := warmGraphs(ctx, store, c, graphs, logger, quiet)
	if err != nil {
		return fmt.Errorf("building CFGs: %w", err)
	}
	logger.Debug("CFGs built", "graphs", n)
	return nil
}

func printAnalysis(w io.Writer, a *analysis, path string) {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed, color.Bold)
	green := color.New(color.FgGreen)
	st := a.FactSet.Stats()

	bold.Fprintf(w, "Taint analysis %s\n", st.RunID)
	fmt.Fprintf(w, "  plugins:      %s\n", strings.Join(a.Plugins, ", "))
	fmt.Fprintf(w, "  patterns:     %d\n", st.Patterns)
	fmt.Fprintf(w, "  seeds:        %d\n", st.Seeds)
	fmt.Fprintf(w, "  facts:        %d definitions, %d uses\n", st.Facts, st.Uses)
	fmt.Fprintf(w, "  tainted args: %d\n", st.TaintedArgs)
	fmt.Fprintf(w, "  returns:      %d\n", st.TaintedReturns)
	if st.Skipped > 0 || st.Unresolved > 0 {
		fmt.Fprintf(w, "  skipped rows: %d, unresolved calls: %d\n", st.Skipped, st.Unresolved)
	}
	fmt.Fprintf(w, "  duration:     %s\n", st.Duration)
	fmt.Fprintf(w, "  saved to:     %s\n\n", path)

	if len(a.Findings) == 0 {
		green.Fprintln(w, "No tainted sink arguments.")
		return
	}
	red.Fprintf(w, "%d tainted sink argument(s):\n", len(a.Findings))
	for _, f := range a.Findings {
		fmt.Fprintf(w, "  %s:%d %s arg %d (%s <- %s)\n", f.File, f.Line, f.Callee, f.Index, f.SinkCategory, f.SourceCategory)
		for _, h := range f.Provenance {
			fmt.Fprintf(w, "      %-10s %s:%d %s\n", h.Kind, h.File, h.Line, h.Expr)
		}
	}
}

func init() {
	analyzeCmd.Flags().String("db", "", "Fact store (SQLite) path")
	analyzeCmd.Flags().String("source-root", "", "Directory fact-store paths are relative to")
	analyzeCmd.Flags().StringP("out", "o", "", "Where to write the fact set")
	analyzeCmd.Flags().Duration("budget", 0, "Wall-clock budget, e.g. 2m (0 = none)")
	analyzeCmd.Flags().Int("max-facts", 0, "Abort after this many facts (0 = none)")
	analyzeCmd.Flags().StringSlice("pack", nil, "Extra YAML pattern pack (repeatable)")
	analyzeCmd.Flags().StringSlice("framework", nil, "Force built-in frameworks instead of detecting them")
	analyzeCmd.Flags().Bool("no-cfg", false, "Decide reachability by line order only")
	analyzeCmd.Flags().Bool("warm", true, "Build CFGs in parallel before propagation")
	analyzeCmd.Flags().String("cache-file", "", "Load and persist built CFGs at this path")
	analyzeCmd.Flags().BoolP("quiet", "q", false, "Hide the progress bar")
	analyzeCmd.Flags().BoolP("json", "j", false, "Print findings as JSON")
}
