package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-taint-query/pkg/taint"
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query <variable> <line> | --callee <name> <file> <line>",
	Short: "Ask whether a variable or call argument is tainted",
	Long: `Answers a point query against the fact set saved by analyze.

  gtq query b 12                       is variable b tainted at line 12?
  gtq query b 12 --file app/views.py   the same, restricted to one file
  gtq query --callee execute app/db.py 40 --index 0
                                       is argument 0 of execute on line 40 tainted?

The exit status is 0 either way; use --json for scripting.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path := c.FactSetPath
		if cmd.Flags().Changed("factset") {
			path, _ = cmd.Flags().GetString("factset")
		}
		fs, err := taint.LoadFactSetFile(path)
		if err != nil {
			return fmt.Errorf("loading fact set (run gtq analyze first): %w", err)
		}
		q := taint.NewFacade(fs)

		jsonOutput, _ := cmd.Flags().GetBool("json")
		callee, _ := cmd.Flags().GetString("callee")
		line, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid line %q", args[1])
		}

		if callee != "" {
			index, _ := cmd.Flags().GetInt("index")
			arg, tainted := q.TaintedArgument(args[0], line, callee, index)
			if jsonOutput {
				return printJSON(map[string]interface{}{"tainted": tainted, "argument": arg})
			}
			printArgument(os.Stdout, args[0], line, callee, index, arg, tainted)
			return nil
		}

		file, _ := cmd.Flags().GetString("file")
		name := args[0]
		var (
			fact    taint.TaintFact
			tainted bool
		)
		if file != "" {
			fact, tainted = q.Fact(file, name, line)
		} else if prov, ok := q.Provenance(name, line); ok {
			fact, tainted = taint.TaintFact{Variable: name, Line: line, Provenance: prov}, true
		}
		if jsonOutput {
			return printJSON(map[string]interface{}{"variable": name, "line": line, "tainted": tainted, "provenance": fact.Provenance})
		}
		printVariable(os.Stdout, name, line, fact, tainted)
		return nil
	},
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printVariable(w io.Writer, name string, line int, fact taint.TaintFact, tainted bool) {
	if !tainted {
		color.New(color.FgGreen).Fprintf(w, "%s is not tainted at line %d\n", name, line)
		return
	}
	color.New(color.FgRed, color.Bold).Fprintf(w, "%s is tainted at line %d\n", name, line)
	printProvenance(w, fact.Provenance)
}

func printArgument(w io.Writer, file string, line int, callee string, index int, arg taint.TaintedArg, tainted bool) {
	if !tainted {
		color.New(color.FgGreen).Fprintf(w, "argument %d of %s at %s:%d is not tainted\n", index, callee, file, line)
		return
	}
	color.New(color.FgRed, color.Bold).Fprintf(w, "argument %d of %s at %s:%d is tainted (%s)\n", index, arg.Callee, file, line, arg.Category)
	printProvenance(w, arg.Provenance)
}

func printProvenance(w io.Writer, prov taint.Provenance) {
	for i, h := range prov {
		target := h.Variable
		if target == "" {
			target = "-"
		}
		fmt.Fprintf(w, "  %d. %-10s %s:%d %s  %s\n", i+1, h.Kind, h.File, h.Line, target, h.Expr)
	}
}

func init() {
	queryCmd.Flags().String("factset", "", "Fact set path (default from config)")
	queryCmd.Flags().String("file", "", "Restrict a variable query to one file")
	queryCmd.Flags().String("callee", "", "Query a call argument instead: args are <file> <line>")
	queryCmd.Flags().Int("index", 0, "Argument index for --callee")
	queryCmd.Flags().BoolP("json", "j", false, "Output as JSON")
}
