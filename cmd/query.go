package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"hdql/internal/ast"
	"hdql/internal/format"
	"hdql/internal/parser"
	"hdql/internal/result"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Each command binds its own format flag since the defaults differ.
var (
	flagQueryFormat   string
	flagExplainFormat string
	flagAnalyzeFormat string

	flagTopK    int
	flagVerbose bool
	flagOutput  string
)

var queryCmd = &cobra.Command{
	Use:   "query <query>",
	Short: "Run one HDQL query and print the result",
	Example: `  hdql query 'command("dep*")'
  hdql query 'similar_to(feature("cache"), distance=0.4)' --format json
  hdql query 'maximize(coverage) subject_to(effort <= 100)' -v`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := format.Parse(flagQueryFormat)
		if err != nil {
			return err
		}
		st, err := openExisting()
		if err != nil {
			return err
		}
		snap, err := st.Snapshot()
		st.Close()
		if err != nil {
			return fmt.Errorf("read store: %w", err)
		}

		res, err := newEngine(snap).Execute(cmd.Context(), args[0], topK(cmd, flagTopK), flagVerbose)
		if err != nil {
			return withPointer(cmd, err)
		}
		return writeOutput(cmd, func(w io.Writer) error { return format.Write(w, res, f) })
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse <query>",
	Short: "Print the syntax tree of a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := newEngine(nil).Parse(args[0])
		if err != nil {
			return withPointer(cmd, err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprint(out, ast.Dump(n))
		fmt.Fprintf(out, "\ncanonical: %s\n", n)
		return nil
	},
}

var explainCmd = &cobra.Command{
	Use:   "explain <query>",
	Short: "Show the execution plan of a query without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := loadSnapshot()
		if err != nil {
			return err
		}
		p, err := newEngine(snap).Plan(args[0], topK(cmd, flagTopK))
		if err != nil {
			return withPointer(cmd, err)
		}
		return writeOutput(cmd, func(w io.Writer) error {
			switch flagExplainFormat {
			case "json":
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(p.Map())
			case "yaml":
				return yaml.NewEncoder(w).Encode(p.Map())
			case "text", "":
				_, err := fmt.Fprintln(w, p.Explain())
				return err
			}
			return fmt.Errorf("unknown format %q (want text, json or yaml)", flagExplainFormat)
		})
	},
}

var analyzeOpts = result.DefaultAnalyzeOptions()

var analyzeCmd = &cobra.Command{
	Use:   "analyze <query>",
	Short: "Summarise the matches of a query: statistics, gaps and opportunities",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := format.Parse(flagAnalyzeFormat)
		if err != nil {
			return err
		}
		st, err := openExisting()
		if err != nil {
			return err
		}
		snap, err := st.Snapshot()
		st.Close()
		if err != nil {
			return fmt.Errorf("read store: %w", err)
		}

		ar, err := newEngine(snap).Analyze(cmd.Context(), args[0], topK(cmd, flagTopK), analyzeOpts)
		if err != nil {
			return withPointer(cmd, err)
		}
		return writeOutput(cmd, func(w io.Writer) error { return format.Write(w, ar, f) })
	},
}

// withPointer prints a caret under the failing column of parse errors.
func withPointer(cmd *cobra.Command, err error) error {
	var pe *parser.ParseError
	if errors.As(err, &pe) {
		fmt.Fprintln(cmd.ErrOrStderr(), pe.Pointer())
	}
	return err
}

// writeOutput sends output to --output when set, else stdout.
func writeOutput(cmd *cobra.Command, write func(io.Writer) error) error {
	if flagOutput == "" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(flagOutput)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func init() {
	queryCmd.Flags().StringVarP(&flagQueryFormat, "format", "f", "table", "output format: table, json, yaml or markdown")
	queryCmd.Flags().IntVarP(&flagTopK, "top-k", "k", 0, "maximum results (default from config)")
	queryCmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "include the reasoning trace")
	queryCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "write the result to a file")

	explainCmd.Flags().StringVarP(&flagExplainFormat, "format", "f", "text", "output format: text, json or yaml")
	explainCmd.Flags().IntVarP(&flagTopK, "top-k", "k", 0, "result limit to plan for (default from config)")
	explainCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "write the plan to a file")

	af := analyzeCmd.Flags()
	af.StringVarP(&flagAnalyzeFormat, "format", "f", "markdown", "output format: table, json, yaml or markdown")
	af.IntVarP(&flagTopK, "top-k", "k", 0, "maximum matches to analyse (default from config)")
	af.StringVarP(&flagOutput, "output", "o", "", "write the analysis to a file")
	af.StringVar(&analyzeOpts.GapAttribute, "gap-attr", analyzeOpts.GapAttribute, "attribute compared against --gap-threshold")
	af.Float64Var(&analyzeOpts.GapThreshold, "gap-threshold", analyzeOpts.GapThreshold, "values below this are gaps")
	af.StringVar(&analyzeOpts.ValueAttribute, "value-attr", analyzeOpts.ValueAttribute, "attribute used as opportunity value")
	af.StringVar(&analyzeOpts.EffortAttribute, "effort-attr", analyzeOpts.EffortAttribute, "attribute used as opportunity effort")

	rootCmd.AddCommand(queryCmd, parseCmd, explainCmd, analyzeCmd)
}
