package cmd

import (
	"fmt"
	"runtime"
	"time"

	"hdql/internal/catalog"
	"hdql/internal/embedder"

	"github.com/spf13/cobra"
)

var flagWorkers int

var loadCmd = &cobra.Command{
	Use:   "load <path|glob>...",
	Short: "Load entity catalogs (YAML or JSON) into the database",
	Example: `  hdql load catalog/
  hdql load 'catalogs/**/*.yaml' --workers 8`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		emb, err := embedder.FromConfig(cfg)
		if err != nil {
			return err
		}
		if o, ok := emb.(*embedder.OllamaEmbedder); ok {
			if err := o.CheckModel(ctx); err != nil {
				return err
			}
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		l := catalog.New(st, emb,
			catalog.WithWorkers(flagWorkers),
			catalog.WithLogger(logger),
		)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Loading into %s with %s...\n", cfg.DB, emb.Name())
		start := time.Now()

		stats, err := l.Load(ctx, args)
		elapsed := time.Since(start)

		if stats != nil {
			fmt.Fprintf(out, "\nDone in %s\n", elapsed.Round(time.Millisecond))
			if stats.Reset {
				fmt.Fprintln(out, "  Embedder changed: existing entities were cleared")
			}
			fmt.Fprintf(out, "  Files:     %d total, %d failed\n", stats.FilesTotal, stats.FilesFailed)
			fmt.Fprintf(out, "  Entities:  %d total, %d loaded, %d unchanged\n",
				stats.EntitiesTotal, stats.EntitiesLoaded, stats.EntitiesSkipped)
			fmt.Fprintf(out, "  Embedded:  %d\n", stats.EntitiesEmbedded)
		}
		return err
	},
}

func init() {
	loadCmd.Flags().IntVar(&flagWorkers, "workers", runtime.NumCPU(), "parallel decode workers")
	rootCmd.AddCommand(loadCmd)
}
