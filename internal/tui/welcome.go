package tui

import (
	"fmt"
	"strings"

	"hdql/internal/catalog"

	tea "github.com/charmbracelet/bubbletea"
)

type storeStatus int

const (
	storeEmpty storeStatus = iota
	storeReady
	storeStale
)

type welcomeModel struct {
	status      storeStatus
	staleReason string
	entities    int
	types       []string
	err         error
	ready       bool // true once the check has completed
}

// checkStoreMsg is sent after inspecting the loaded snapshot.
type checkStoreMsg struct {
	status      storeStatus
	staleReason string
	entities    int
	types       []string
	err         error
}

func checkStore(cfg Config) tea.Cmd {
	return func() tea.Msg {
		msg := checkStoreMsg{status: storeEmpty}
		if cfg.Live != nil {
			snap := cfg.Live.Snapshot()
			msg.entities = snap.Len()
			msg.types = snap.Types()
		}
		if msg.entities > 0 {
			msg.status = storeReady
		}
		if cfg.DB == nil || cfg.Embedder == "" {
			return msg
		}

		last, err := cfg.DB.GetMeta(catalog.MetaEmbedder)
		if err != nil {
			msg.err = err
			return msg
		}
		if last != "" && last != cfg.Embedder {
			msg.status = storeStale
			msg.staleReason = fmt.Sprintf("embedder changed: %s → %s; the next load re-embeds everything", last, cfg.Embedder)
		}
		return msg
	}
}

func (m welcomeModel) Update(msg tea.Msg) (welcomeModel, tea.Cmd) {
	switch msg := msg.(type) {
	case checkStoreMsg:
		m.status = msg.status
		m.staleReason = msg.staleReason
		m.entities = msg.entities
		m.types = msg.types
		m.err = msg.err
		m.ready = true
	}
	return m, nil
}

func (m welcomeModel) View(width, height int) string {
	s := "\n"
	s += titleStyle.Render("  ◆ hdql") + "\n"
	s += subtitleStyle.Render("  Hyperdimensional query shell") + "\n\n"

	if !m.ready {
		s += dimStyle.Render("  Checking store...") + "\n"
		return s
	}

	if m.err != nil {
		s += errorStyle.Render("  Error: "+m.err.Error()) + "\n"
	}

	switch m.status {
	case storeReady:
		s += successStyle.Render(fmt.Sprintf("  ✓ %d entities loaded", m.entities)) + "\n"
		s += dimStyle.Render("    types: "+strings.Join(m.types, ", ")) + "\n"
	case storeEmpty:
		s += warnStyle.Render("  ✗ No entities loaded") + "\n"
		s += dimStyle.Render("    run `hdql load <path>` to load a catalog") + "\n"
	case storeStale:
		s += warnStyle.Render(fmt.Sprintf("  ⚠ %d entities, embedder mismatch", m.entities)) + "\n"
		s += dimStyle.Render("    "+m.staleReason) + "\n"
	}

	s += "\n"
	s += dimStyle.Render("  Press Enter to continue") + "\n"
	return s
}
