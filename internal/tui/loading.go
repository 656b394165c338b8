package tui

import (
	"context"
	"fmt"

	"hdql/internal/catalog"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

type loadingModel struct {
	spinner spinner.Model
	loaded  int
	total   int
	done    bool
	stats   *catalog.Stats
	err     error
}

func newLoadingModel() loadingModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return loadingModel{spinner: sp}
}

// loadDoneMsg is sent when loading completes.
type loadDoneMsg struct {
	stats *catalog.Stats
	err   error
}

// loadProgressMsg is sent after each stored batch.
type loadProgressMsg struct {
	loaded int
	total  int
}

// runLoad loads cfg.LoadPaths and swaps the fresh snapshot into cfg.Live.
func runLoad(cfg Config) tea.Cmd {
	return func() tea.Msg {
		l := cfg.Loader.WithProgressFunc(func(loaded, total int) {
			if cfg.program != nil && cfg.program.p != nil {
				cfg.program.p.Send(loadProgressMsg{loaded: loaded, total: total})
			}
		})
		stats, err := l.Load(context.Background(), cfg.LoadPaths)
		if cfg.DB != nil && cfg.Live != nil && stats != nil && stats.EntitiesLoaded > 0 {
			snap, serr := cfg.DB.Snapshot()
			if serr != nil {
				return loadDoneMsg{stats: stats, err: fmt.Errorf("reload snapshot: %w", serr)}
			}
			cfg.Live.Swap(snap)
		}
		return loadDoneMsg{stats: stats, err: err}
	}
}

func (m loadingModel) Update(msg tea.Msg) (loadingModel, tea.Cmd) {
	switch msg := msg.(type) {
	case loadDoneMsg:
		m.done = true
		m.stats = msg.stats
		m.err = msg.err
		return m, nil
	case loadProgressMsg:
		m.loaded = msg.loaded
		m.total = msg.total
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m loadingModel) View(width, height int) string {
	s := "\n"
	s += titleStyle.Render("  Loading catalogs") + "\n\n"

	if m.done {
		if m.err != nil {
			s += errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n"
			s += dimStyle.Render("  Press Enter to continue to the shell anyway, or q to quit.") + "\n"
			return s
		}
		s += successStyle.Render("  ✓ Loading complete!") + "\n\n"
		if m.stats != nil {
			s += fmt.Sprintf("  Files:    %d\n", m.stats.FilesTotal)
			s += fmt.Sprintf("  Entities: %d total, %d loaded, %d unchanged\n",
				m.stats.EntitiesTotal, m.stats.EntitiesLoaded, m.stats.EntitiesSkipped)
		}
		s += "\n"
		s += dimStyle.Render("  Press Enter to start querying") + "\n"
		return s
	}

	s += fmt.Sprintf("  %s Embedding and storing entities...\n", m.spinner.View())
	if m.total > 0 {
		s += fmt.Sprintf("  %d / %d entities stored\n", m.loaded, m.total)
	}
	return s
}
