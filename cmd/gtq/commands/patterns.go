package commands

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-taint-query/pkg/facts"
	"github.com/l3aro/go-taint-query/pkg/registry"
)

// patternsCmd represents the patterns command
var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "List the source, sink and sanitizer patterns in effect",
	Long: `Resolves plugins the way analyze does and prints the resulting registry in
registration order. Without a readable fact store, only forced frameworks,
pattern packs and core apply.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("db") {
			c.FactStore, _ = cmd.Flags().GetString("db")
		}
		if packs, _ := cmd.Flags().GetStringSlice("pack"); len(packs) > 0 {
			c.PatternPacks = append(c.PatternPacks, packs...)
		}
		if fw, _ := cmd.Flags().GetStringSlice("framework"); len(fw) > 0 {
			c.Frameworks = fw
		}
		logger := newLogger(c)

		store, err := facts.OpenSQLite(cmd.Context(), c.FactStore)
		if err != nil {
			logger.Debug("fact store unavailable, skipping detection", "error", err)
			store = nil
		}
		reg, names, err := buildRegistry(store, c, logger)
		if err != nil {
			return err
		}

		kind, _ := cmd.Flags().GetString("kind")
		switch registry.Kind(kind) {
		case "", registry.KindSource, registry.KindSink, registry.KindSanitizer:
		default:
			return fmt.Errorf("unknown kind %q (use source, sink or sanitizer)", kind)
		}
		patterns := reg.Patterns(registry.Kind(kind))

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			return printJSON(map[string]interface{}{"plugins": names, "patterns": patterns})
		}
		printPatterns(os.Stdout, names, patterns)
		return nil
	},
}

func printPatterns(w io.Writer, plugins []string, patterns []registry.Pattern) {
	color.New(color.Bold).Fprintf(w, "Plugins: %v\n\n", plugins)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tPATTERN\tCATEGORY\tLANGUAGE\tORIGIN")
	for _, p := range patterns {
		language := p.Language
		if language == "" {
			language = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Kind, p.Text, p.Category, language, p.Origin)
	}
	tw.Flush()
}

func init() {
	patternsCmd.Flags().String("db", "", "Fact store used for framework detection")
	patternsCmd.Flags().StringSlice("pack", nil, "Extra YAML pattern pack (repeatable)")
	patternsCmd.Flags().StringSlice("framework", nil, "Force built-in frameworks")
	patternsCmd.Flags().String("kind", "", "Only list source, sink or sanitizer patterns")
	patternsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
