package format

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"hdql/internal/result"
	"hdql/internal/store"
)

func vectorResult() *result.VectorQueryResult {
	add := &store.Entity{Type: "command", Name: "deps-add", Attributes: map[string]store.Value{"coverage": store.Number(0.7)}}
	rm := &store.Entity{Type: "command", Name: "deps-remove"}
	return &result.VectorQueryResult{
		QueryID: "q-1",
		Query:   `command("dep*")`,
		Matches: []result.Match{
			{Entity: add, Score: 1, Explanation: "command:deps-add matches"},
			{Entity: rm, Score: 0.8, Distance: 0.2, Explanation: "command:deps-remove matches"},
		},
		ExecutionTimeMS: 1.5,
	}
}

func TestParse(t *testing.T) {
	for _, s := range []string{"table", "JSON", "yaml", "markdown"} {
		_, err := Parse(s)
		assert.NoError(t, err, s)
	}
	_, err := Parse("csv")
	assert.Error(t, err)
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, vectorResult(), JSON))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "vector", got["kind"])
	assert.Equal(t, 1.5, got["execution_time_ms"])
	matches := got["matches"].([]any)
	require.Len(t, matches, 2)
	first := matches[0].(map[string]any)
	assert.Equal(t, "deps-add", first["entity_name"])
	assert.Equal(t, "command", first["entity_type"])
	assert.Equal(t, 0.7, first["attributes"].(map[string]any)["coverage"])
}

func TestRenderYAML(t *testing.T) {
	out, err := Render(vectorResult(), YAML)
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, "q-1", got["query_id"])
	assert.Len(t, got["matches"], 2)
}

func TestRenderTable(t *testing.T) {
	out := RenderTable(vectorResult())
	assert.Contains(t, out, "deps-add")
	assert.Contains(t, out, "0.800")
	assert.Contains(t, out, "2 results (1.50ms) query q-1")

	vr := vectorResult()
	vr.Trace = &result.ReasoningTrace{Steps: []string{"lookup"}, ExecutionPlan: "Query Execution Plan"}
	assert.Contains(t, RenderTable(vr), "Query Execution Trace:")
}

func TestRenderRecommendation(t *testing.T) {
	lint := &store.Entity{Type: "feature", Name: "lint"}
	cache := &store.Entity{Type: "feature", Name: "cache"}
	rr := &result.RecommendationResult{
		Attribute:       "coverage",
		Recommendations: []result.Recommendation{{Entity: lint, Score: 0.3, Rationale: "ranked 1 of 2"}},
		Alternatives:    []result.Alternative{{Entity: cache, Score: 0.9}},
		TradeOffs:       result.TradeOffAnalysis{Summary: "1 of 1 recommendations are Pareto-optimal"},
	}
	table := RenderTable(rr)
	assert.Contains(t, table, "coverage")
	assert.Contains(t, table, "1 alternatives ranked below the top 1")

	md := RenderMarkdown(rr)
	assert.Contains(t, md, "| 1 | `feature:lint` | 0.3 | ranked 1 of 2 |")
	assert.Contains(t, md, "- `feature:cache` (0.9)")
}

func TestRenderAnalysis(t *testing.T) {
	ar := result.Analyze(vectorResult(), result.DefaultAnalyzeOptions())
	table := RenderTable(ar)
	assert.Contains(t, table, "mean_score")
	md := RenderMarkdown(ar)
	assert.Contains(t, md, "**Insights**")

	ar.Opportunities = []result.Opportunity{{Entity: "feature:x", PotentialValue: 3}}
	assert.Contains(t, RenderMarkdown(ar), "ROI ∞")
}

func TestRenderMarkdownEmpty(t *testing.T) {
	out := RenderMarkdown(&result.VectorQueryResult{})
	assert.Contains(t, out, "_No matches._")
	assert.Contains(t, out, "0 results")
}
