// Package tui is the interactive HDQL shell.
package tui

import (
	"hdql/internal/catalog"
	"hdql/internal/engine"
	"hdql/internal/store"

	tea "github.com/charmbracelet/bubbletea"
)

// ViewState represents which screen is active.
type ViewState int

const (
	ViewWelcome ViewState = iota
	ViewLoading
	ViewREPL
)

// programRef is an indirect pointer to the tea.Program so background goroutines
// can send messages. It must be set after tea.NewProgram returns but before Run.
type programRef struct {
	p *tea.Program
}

// Config holds what the CLI layer has already built.
type Config struct {
	Engine *engine.Engine
	Live   *store.Live
	// DB is the backing database; nil when running over an in-memory store.
	DB *store.SQLiteStore
	// Embedder is the configured embedder name, compared with the one that
	// produced the stored vectors.
	Embedder string
	// Loader and LoadPaths, when set, load catalogs before the shell opens.
	Loader    *catalog.Loader
	LoadPaths []string
	TopK      int

	// program is set internally so background goroutines can send messages.
	program *programRef
}

// Model is the top-level Bubble Tea model.
type Model struct {
	state  ViewState
	config Config
	width  int
	height int

	welcome welcomeModel
	loading loadingModel
	repl    replModel
}

// New creates a new TUI model with the given config.
func New(cfg Config) Model {
	return Model{
		state:  ViewWelcome,
		config: cfg,
	}
}

func (m Model) Init() tea.Cmd {
	return checkStore(m.config)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.state == ViewREPL {
			var c tea.Cmd
			m.repl, c = m.repl.Update(msg)
			return m, c
		}
		return m, nil

	case tea.KeyMsg:
		// Global quit.
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.state != ViewREPL {
				return m, tea.Quit
			}
		}
	}

	var cmd tea.Cmd

	switch m.state {
	case ViewWelcome:
		m.welcome, cmd = m.welcome.Update(msg)
		if cmd != nil {
			return m, cmd
		}
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter && m.welcome.ready {
			if m.config.Loader != nil && len(m.config.LoadPaths) > 0 {
				m.state = ViewLoading
				m.loading = newLoadingModel()
				return m, tea.Batch(m.loading.spinner.Tick, runLoad(m.config))
			}
			return m, m.transitionToREPL()
		}

	case ViewLoading:
		m.loading, cmd = m.loading.Update(msg)
		if cmd != nil {
			return m, cmd
		}
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEnter && m.loading.done {
			return m, m.transitionToREPL()
		}

	case ViewREPL:
		m.repl, cmd = m.repl.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Model) transitionToREPL() tea.Cmd {
	m.repl = newREPLModel(NewSession(m.config.Engine, m.config.TopK), m.config.Live)
	m.repl.initViewport(m.width, m.height)
	m.state = ViewREPL
	return nil
}

func (m Model) View() string {
	switch m.state {
	case ViewWelcome:
		return m.welcome.View(m.width, m.height)
	case ViewLoading:
		return m.loading.View(m.width, m.height)
	case ViewREPL:
		return m.repl.View(m.width, m.height)
	}
	return ""
}

// Run starts the TUI program.
func Run(cfg Config) error {
	ref := &programRef{}
	cfg.program = ref
	model := New(cfg)
	p := tea.NewProgram(model, tea.WithAltScreen())
	ref.p = p
	_, err := p.Run()
	return err
}
