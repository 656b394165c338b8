// Package format renders query results for terminals, files and tools.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"hdql/internal/result"
)

type Format string

const (
	Table    Format = "table"
	JSON     Format = "json"
	YAML     Format = "yaml"
	Markdown Format = "markdown"
)

// Parse validates a --format value.
func Parse(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case Table, JSON, YAML, Markdown:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want table, json, yaml or markdown)", s)
}

// Write renders res in format f to w.
func Write(w io.Writer, res result.Result, f Format) error {
	s, err := Render(res, f)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, s)
	return err
}

// Render returns res in format f, newline terminated.
func Render(res result.Result, f Format) (string, error) {
	switch f {
	case JSON:
		b, err := json.MarshalIndent(res.ToMap(), "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode json: %w", err)
		}
		return string(b) + "\n", nil
	case YAML:
		b, err := yaml.Marshal(res.ToMap())
		if err != nil {
			return "", fmt.Errorf("encode yaml: %w", err)
		}
		return string(b), nil
	case Markdown:
		return RenderMarkdown(res), nil
	case Table:
		return RenderTable(res), nil
	}
	return "", fmt.Errorf("unknown format %q", f)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...)
}

// RenderTable draws res as a bordered terminal table.
func RenderTable(res result.Result) string {
	var sb strings.Builder
	switch r := res.(type) {
	case *result.VectorQueryResult:
		t := newTable("#", "Entity", "Type", "Score", "Explanation")
		for i, m := range r.Matches {
			t.Row(fmt.Sprint(i+1), m.Entity.Name, m.Entity.Type, fmt.Sprintf("%.3f", m.Score), m.Explanation)
		}
		sb.WriteString(t.String() + "\n")
		sb.WriteString(footerStyle.Render(footer(r.Len(), r.ExecutionTimeMS, r.QueryID)) + "\n")
		writeTrace(&sb, r.Trace)

	case *result.RecommendationResult:
		t := newTable("#", "Entity", "Type", r.Attribute, "Rationale")
		for i, rec := range r.Recommendations {
			t.Row(fmt.Sprint(i+1), rec.Entity.Name, rec.Entity.Type, fmt.Sprintf("%g", rec.Score), rec.Rationale)
		}
		sb.WriteString(t.String() + "\n")
		if r.TradeOffs.Summary != "" {
			sb.WriteString(r.TradeOffs.Summary + "\n")
		}
		if n := len(r.Alternatives); n > 0 {
			sb.WriteString(fmt.Sprintf("%d alternatives ranked below the top %d\n", n, r.Len()))
		}
		sb.WriteString(footerStyle.Render(footer(r.Len(), r.ExecutionTimeMS, r.QueryID)) + "\n")
		writeTrace(&sb, r.Trace)

	case *result.AnalysisResult:
		t := newTable("Metric", "Value")
		for _, k := range sortedKeys(r.Metrics) {
			t.Row(k, fmt.Sprintf("%.3f", r.Metrics[k]))
		}
		sb.WriteString(t.String() + "\n")
		if len(r.Gaps) > 0 {
			g := newTable("Severity", "Gap", "Suggested action")
			for _, gap := range r.Gaps {
				action := ""
				if len(gap.SuggestedActions) > 0 {
					action = gap.SuggestedActions[0]
				}
				g.Row(gap.Severity, gap.Description, action)
			}
			sb.WriteString(g.String() + "\n")
		}
		if len(r.Opportunities) > 0 {
			o := newTable("Entity", "Value", "Effort", "ROI")
			for _, op := range r.Opportunities {
				o.Row(op.Entity, fmt.Sprintf("%g", op.PotentialValue), fmt.Sprintf("%g", op.ImplementationEffort), roi(op))
			}
			sb.WriteString(o.String() + "\n")
		}
		for _, in := range r.Insights {
			sb.WriteString("- " + in + "\n")
		}
		sb.WriteString(footerStyle.Render(footer(-1, r.ExecutionTimeMS, r.QueryID)) + "\n")
	}
	return sb.String()
}

// RenderMarkdown renders res as markdown.
func RenderMarkdown(res result.Result) string {
	var sb strings.Builder
	switch r := res.(type) {
	case *result.VectorQueryResult:
		if r.Len() == 0 {
			sb.WriteString("_No matches._\n\n")
		} else {
			sb.WriteString("| # | Entity | Type | Score |\n|---|---|---|---|\n")
			for i, m := range r.Matches {
				fmt.Fprintf(&sb, "| %d | `%s` | %s | %.3f |\n", i+1, m.Entity.Name, m.Entity.Type, m.Score)
			}
			sb.WriteString("\n")
			for _, m := range r.Matches {
				fmt.Fprintf(&sb, "- **%s**: %s\n", m.Entity.Key(), m.Explanation)
			}
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "_%s_\n", footer(r.Len(), r.ExecutionTimeMS, r.QueryID))
		writeTraceMarkdown(&sb, r.Trace)

	case *result.RecommendationResult:
		if r.Len() == 0 {
			sb.WriteString("_No recommendations._\n\n")
		} else {
			fmt.Fprintf(&sb, "| # | Entity | %s | Rationale |\n|---|---|---|---|\n", r.Attribute)
			for i, rec := range r.Recommendations {
				fmt.Fprintf(&sb, "| %d | `%s` | %g | %s |\n", i+1, rec.Entity.Key(), rec.Score, rec.Rationale)
			}
			sb.WriteString("\n**Trade-offs:** " + r.TradeOffs.Summary + "\n\n")
			if len(r.Alternatives) > 0 {
				sb.WriteString("**Alternatives:**\n\n")
				for _, a := range r.Alternatives {
					fmt.Fprintf(&sb, "- `%s` (%g)\n", a.Entity.Key(), a.Score)
				}
				sb.WriteString("\n")
			}
		}
		fmt.Fprintf(&sb, "_%s_\n", footer(r.Len(), r.ExecutionTimeMS, r.QueryID))
		writeTraceMarkdown(&sb, r.Trace)

	case *result.AnalysisResult:
		sb.WriteString("**Metrics**\n\n")
		for _, k := range sortedKeys(r.Metrics) {
			fmt.Fprintf(&sb, "- %s: %.3f\n", k, r.Metrics[k])
		}
		if len(r.Gaps) > 0 {
			sb.WriteString("\n**Gaps**\n\n")
			for _, g := range r.Gaps {
				fmt.Fprintf(&sb, "- [%s] %s\n", strings.ToUpper(g.Severity), g.Description)
			}
		}
		if len(r.Opportunities) > 0 {
			sb.WriteString("\n**Opportunities**\n\n")
			for _, o := range r.Opportunities {
				fmt.Fprintf(&sb, "- `%s` ROI %s\n", o.Entity, roi(o))
			}
		}
		if len(r.Insights) > 0 {
			sb.WriteString("\n**Insights**\n\n")
			for _, in := range r.Insights {
				sb.WriteString("- " + in + "\n")
			}
		}
	}
	return sb.String()
}

func footer(n int, ms float64, id string) string {
	s := fmt.Sprintf("%.2fms", ms)
	if n >= 0 {
		s = fmt.Sprintf("%d results (%s)", n, s)
	}
	if id != "" {
		s += " query " + id
	}
	return s
}

func writeTrace(sb *strings.Builder, t *result.ReasoningTrace) {
	if t == nil {
		return
	}
	sb.WriteString("\n" + t.ExecutionPlan + "\n\n" + t.Explain() + "\n")
}

func writeTraceMarkdown(sb *strings.Builder, t *result.ReasoningTrace) {
	if t == nil {
		return
	}
	sb.WriteString("\n```\n" + t.ExecutionPlan + "\n\n" + t.Explain() + "\n```\n")
}

func roi(o result.Opportunity) string {
	if o.ImplementationEffort == 0 {
		return "∞"
	}
	return fmt.Sprintf("%.2f", o.ROI())
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
