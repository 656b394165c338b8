package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"hdql/internal/ast"
	"hdql/internal/engine"
	"hdql/internal/format"
	"hdql/internal/parser"
)

// Reply is the outcome of one REPL line. Markdown is rendered by the
// caller; Err is shown instead when set.
type Reply struct {
	Markdown string
	Err      error
	Clear    bool
	Quit     bool
}

// Session holds REPL state shared by the interactive and plain modes.
type Session struct {
	eng     *engine.Engine
	topK    int
	verbose bool
	history []string
}

func NewSession(eng *engine.Engine, topK int) *Session {
	if topK <= 0 {
		topK = engine.DefaultTopK
	}
	return &Session{eng: eng, topK: topK}
}

// History returns the queries executed so far, oldest first.
func (s *Session) History() []string { return s.history }

// pluralTypes lets :show accept "commands" for "command".
var pluralTypes = map[string]string{
	"commands":    "command",
	"features":    "feature",
	"constraints": "constraint",
	"jobs":        "job",
	"outcomes":    "outcome",
}

const helpText = `**Commands**

- ` + "`<query>`" + ` run an HDQL query
- ` + "`:parse <query>`" + ` show the syntax tree
- ` + "`:explain <query>`" + ` show the execution plan
- ` + "`:show <type>`" + ` list entities of a type
- ` + "`:k <n>`" + ` set the result limit
- ` + "`:verbose`" + ` toggle reasoning traces
- ` + "`:history`" + ` list previous queries
- ` + "`:examples`" + ` show example queries
- ` + "`:clear`" + ` clear the screen
- ` + "`:exit`" + ` quit
`

var examples = []struct{ desc, query string }{
	{"All commands", `command("*")`},
	{"Commands related to a job", `command("*") -> job("python-developer")`},
	{"Commands similar to deps", `similar_to(command("deps*"), distance=0.2)`},
	{"Features with high coverage", `feature("*").coverage >= 0.8`},
	{"Either of two commands", `command("init") OR command("check")`},
	{"Everything except commands", `NOT command("*")`},
	{"Next feature to build", `maximize(coverage) subject_to(effort <= 100)`},
}

// Handle runs one line: a query or a colon command.
func (s *Session) Handle(ctx context.Context, line string) Reply {
	line = strings.TrimSpace(line)
	if line == "" {
		return Reply{}
	}
	if !strings.HasPrefix(line, ":") {
		return s.query(ctx, line)
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "exit", "quit", "q":
		return Reply{Quit: true}
	case "clear":
		return Reply{Clear: true}
	case "help", "h", "?":
		return Reply{Markdown: helpText}
	case "examples":
		var sb strings.Builder
		sb.WriteString("**Example queries**\n\n")
		for i, ex := range examples {
			fmt.Fprintf(&sb, "%d. %s\n\n   `%s`\n\n", i+1, ex.desc, ex.query)
		}
		return Reply{Markdown: sb.String()}
	case "history":
		if len(s.history) == 0 {
			return Reply{Markdown: "_No query history._"}
		}
		var sb strings.Builder
		for i, q := range s.history {
			fmt.Fprintf(&sb, "%d. `%s`\n", i+1, q)
		}
		return Reply{Markdown: sb.String()}
	case "verbose":
		s.verbose = !s.verbose
		return Reply{Markdown: fmt.Sprintf("_verbose traces %s_", onOff(s.verbose))}
	case "k":
		n, err := strconv.Atoi(arg)
		if err != nil || n <= 0 {
			return Reply{Err: fmt.Errorf("usage: :k <positive number>")}
		}
		s.topK = n
		return Reply{Markdown: fmt.Sprintf("_result limit set to %d_", n)}
	case "parse":
		if arg == "" {
			return Reply{Err: errors.New("usage: :parse <query>")}
		}
		n, err := s.eng.Parse(arg)
		if err != nil {
			return errorReply(err)
		}
		return Reply{Markdown: "```\n" + ast.Dump(n) + "```\n\nCanonical form: `" + n.String() + "`"}
	case "explain":
		if arg == "" {
			return Reply{Err: errors.New("usage: :explain <query>")}
		}
		p, err := s.eng.Plan(arg, s.topK)
		if err != nil {
			return errorReply(err)
		}
		return Reply{Markdown: "```\n" + p.Explain() + "\n```"}
	case "show":
		return s.show(arg)
	}
	return Reply{Err: fmt.Errorf("unknown command :%s (try :help)", name)}
}

func (s *Session) query(ctx context.Context, q string) Reply {
	s.history = append(s.history, q)
	res, err := s.eng.Execute(ctx, q, s.topK, s.verbose)
	if err != nil {
		return errorReply(err)
	}
	return Reply{Markdown: format.RenderMarkdown(res)}
}

func (s *Session) show(arg string) Reply {
	if arg == "" {
		return Reply{Err: fmt.Errorf("usage: :show <type> (one of %s)", strings.Join(s.eng.EntityTypes(), ", "))}
	}
	typ := strings.ToLower(arg)
	if singular, ok := pluralTypes[typ]; ok {
		typ = singular
	}
	ents := s.eng.Store().LookupPrefix(typ, "")
	if len(ents) == 0 {
		return Reply{Markdown: fmt.Sprintf("_No %s entities._", typ)}
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "**%s** (%d)\n\n| Name | Description |\n|---|---|\n", typ, len(ents))
	for _, e := range ents {
		fmt.Fprintf(&sb, "| `%s` | %s |\n", e.Name, strings.ReplaceAll(e.Description, "|", "\\|"))
	}
	return Reply{Markdown: sb.String()}
}

// errorReply adds a caret pointer under parse errors.
func errorReply(err error) Reply {
	var pe *parser.ParseError
	if errors.As(err, &pe) {
		return Reply{Err: err, Markdown: "```\n" + pe.Pointer() + "\n```"}
	}
	return Reply{Err: err}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
