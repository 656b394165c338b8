package tui

import (
	"context"
	"fmt"
	"strings"

	"hdql/internal/store"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

type replModel struct {
	viewport    viewport.Model
	input       textinput.Model
	spinner     spinner.Model
	renderer    *glamour.TermRenderer
	session     *Session
	live        *store.Live
	entries     []entry
	running     bool
	recall      int
	width       int
	height      int
	initialized bool
}

type entry struct {
	role    string
	content string
}

// replyMsg is sent when a line has been handled.
type replyMsg struct {
	reply Reply
}

func newREPLModel(s *Session, live *store.Live) replModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	ti := textinput.New()
	ti.Placeholder = `command("*") -> job("dev")   (:help for commands)`
	ti.Prompt = "hdql> "
	ti.CharLimit = 2000
	ti.Focus()

	return replModel{
		spinner: sp,
		input:   ti,
		session: s,
		live:    live,
	}
}

func (m *replModel) initViewport(width, height int) {
	m.width = width
	m.height = height

	// Layout: viewport + status bar (1 line) + input (1 line) + gap (1 line).
	vpHeight := height - 3
	if vpHeight < 5 {
		vpHeight = 5
	}
	m.viewport = viewport.New(width, vpHeight)
	m.viewport.SetContent(dimStyle.Render("Type an HDQL query, or :help for commands and :examples for ideas."))

	m.input.Width = width - 10

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width-2),
	)
	if err == nil {
		m.renderer = r
	}

	m.initialized = true
}

func handleLine(s *Session, line string) tea.Cmd {
	return func() tea.Msg {
		return replyMsg{reply: s.Handle(context.Background(), line)}
	}
}

func (m replModel) Update(msg tea.Msg) (replModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.initViewport(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case replyMsg:
		m.running = false
		r := msg.reply
		switch {
		case r.Quit:
			return m, tea.Quit
		case r.Clear:
			m.entries = nil
			m.viewport.SetContent(dimStyle.Render("Screen cleared."))
			return m, nil
		}
		if r.Err != nil {
			m.entries = append(m.entries, entry{role: "error", content: r.Err.Error()})
		}
		if r.Markdown != "" {
			m.entries = append(m.entries, entry{role: "result", content: r.Markdown})
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.running {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			m.refresh()
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if m.running {
			return m, nil
		}
		switch msg.Type {
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			m.input.Reset()
			m.recall = 0
			m.entries = append(m.entries, entry{role: "query", content: line})
			m.running = true
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, handleLine(m.session, line))

		case tea.KeyCtrlP, tea.KeyCtrlN:
			m.recallHistory(msg.Type == tea.KeyCtrlP)
			return m, nil
		}
	}

	if !m.running {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	// Update viewport (scrolling).
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// recallHistory steps through previous queries, newest first.
func (m *replModel) recallHistory(older bool) {
	h := m.session.History()
	if older && m.recall < len(h) {
		m.recall++
	} else if !older && m.recall > 0 {
		m.recall--
	}
	if m.recall == 0 {
		m.input.SetValue("")
		return
	}
	m.input.SetValue(h[len(h)-m.recall])
	m.input.CursorEnd()
}

func (m *replModel) refresh() {
	m.viewport.SetContent(m.renderEntries())
	m.viewport.GotoBottom()
}

func (m replModel) renderMarkdown(content string) string {
	if m.renderer == nil {
		return resultStyle.Render(content)
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return resultStyle.Render(content)
	}
	return strings.TrimRight(rendered, "\n")
}

func (m replModel) renderEntries() string {
	var sb strings.Builder
	for _, e := range m.entries {
		switch e.role {
		case "query":
			sb.WriteString(queryStyle.Render("hdql> ") + e.content + "\n\n")
		case "result":
			sb.WriteString(m.renderMarkdown(e.content) + "\n\n")
		case "error":
			sb.WriteString(errorStyle.Render("Error: "+e.content) + "\n\n")
		}
	}
	if m.running {
		sb.WriteString(m.spinner.View() + " " + dimStyle.Render("Running...") + "\n")
	}
	return sb.String()
}

func (m replModel) View(width, height int) string {
	if !m.initialized {
		return ""
	}

	status := "idle"
	if m.running {
		status = "running..."
	}
	if m.live != nil {
		snap := m.live.Snapshot()
		status = fmt.Sprintf("%d entities • snapshot v%d • %s", snap.Len(), m.live.Version(), status)
	}
	statusBar := statusBarStyle.
		Width(m.width).
		Render(" hdql • " + status)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.viewport.View(),
		statusBar,
		m.input.View(),
	)
}
