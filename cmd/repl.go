package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"hdql/internal/catalog"
	"hdql/internal/config"
	"hdql/internal/embedder"
	"hdql/internal/engine"
	"hdql/internal/store"
	"hdql/internal/tui"

	"github.com/spf13/cobra"
)

var (
	flagPlain bool
	flagLoad  []string
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Open the interactive query shell",
	Long: `Open the interactive query shell. The shell watches the database and
picks up catalog changes made by 'hdql load' in another terminal.

--plain reads one line at a time from stdin and prints markdown, for
piping queries in from scripts.`,
	Args: cobra.NoArgs,
	RunE: runREPL,
}

func runREPL(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	// The full-screen shell owns the terminal, so logs go to a file.
	if !flagPlain {
		f, err := openLogFile()
		if err != nil {
			return err
		}
		defer f.Close()
		level, _ := config.ParseLevel(cfg.LogLevel)
		logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := st.Snapshot()
	if err != nil {
		return fmt.Errorf("read store: %w", err)
	}
	live := store.NewLive(snap)
	eng := newEngine(nil, engine.WithLive(live))

	var loader *catalog.Loader
	if len(flagLoad) > 0 {
		emb, err := embedder.FromConfig(cfg)
		if err != nil {
			return err
		}
		loader = catalog.New(st, emb, catalog.WithLogger(logger))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	serveMetrics(ctx)
	go func() {
		if err := store.Watch(ctx, cfg.DB, live, st.Snapshot, logger); err != nil {
			logger.Warn("store watcher stopped", "error", err)
		}
	}()

	if flagPlain {
		if loader != nil {
			stats, err := loader.Load(ctx, flagLoad)
			if err != nil {
				return err
			}
			if stats.EntitiesLoaded > 0 {
				snap, err := st.Snapshot()
				if err != nil {
					return fmt.Errorf("read store: %w", err)
				}
				live.Swap(snap)
			}
		}
		return runPlain(ctx, tui.NewSession(eng, cfg.TopK), cmd.InOrStdin(), cmd.OutOrStdout())
	}

	var embName string
	if emb, err := embedder.FromConfig(cfg); err == nil {
		embName = emb.Name()
	}
	return tui.Run(tui.Config{
		Engine:    eng,
		Live:      live,
		DB:        st,
		Embedder:  embName,
		Loader:    loader,
		LoadPaths: flagLoad,
		TopK:      cfg.TopK,
	})
}

// runPlain handles one line of input at a time until EOF or :exit.
func runPlain(ctx context.Context, s *tui.Session, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	fmt.Fprintln(out, "hdql (type :help for commands, :exit to quit)")
	for {
		fmt.Fprint(out, "hdql> ")
		if !sc.Scan() {
			fmt.Fprintln(out)
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		r := s.Handle(ctx, line)
		switch {
		case r.Quit:
			fmt.Fprintln(out, "Goodbye.")
			return nil
		case r.Clear:
			continue
		}
		if r.Err != nil {
			fmt.Fprintln(out, "Error:", r.Err)
		}
		if r.Markdown != "" {
			fmt.Fprintln(out, r.Markdown)
		}
		fmt.Fprintln(out)
	}
	return sc.Err()
}

func openLogFile() (*os.File, error) {
	dir := filepath.Dir(cfg.DB)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "repl.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, replCmd} {
		c.Flags().BoolVar(&flagPlain, "plain", false, "line mode without the full-screen interface")
		c.Flags().StringSliceVar(&flagLoad, "load", nil, "catalog paths or globs to load before the shell opens")
	}
	rootCmd.AddCommand(replCmd)
}
