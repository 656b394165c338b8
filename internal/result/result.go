// Package result holds the values a query produces: ranked vector matches,
// recommendations and analyses.
package result

import (
	"fmt"
	"sort"
	"strings"

	"hdql/internal/store"
)

// Kind identifies a Result variant.
type Kind string

const (
	KindVector         Kind = "vector"
	KindRecommendation Kind = "recommendation"
	KindAnalysis       Kind = "analysis"
)

// Result is one of *VectorQueryResult, *RecommendationResult or
// *AnalysisResult. Results are not modified after they are returned;
// WithTiming returns a stamped copy.
type Result interface {
	Kind() Kind
	// Len is the number of rows (matches, recommendations or gaps).
	Len() int
	// ToMap renders the result as a JSON-serialisable mapping.
	ToMap() map[string]any
	// WithTiming returns a copy carrying the query id and elapsed time.
	WithTiming(queryID string, ms float64) Result
	result()
}

// Match is one ranked entity. Score is a cosine similarity for similarity
// and relation steps and 1.0 for plain lookups.
type Match struct {
	Entity      *store.Entity
	Score       float64
	Distance    float64
	Explanation string
}

// Confidence is the score clamped to [0, 1].
func (m Match) Confidence() float64 { return min(max(m.Score, 0), 1) }

func (m Match) toMap() map[string]any {
	attrs := make(map[string]any, len(m.Entity.Attributes))
	for k, v := range m.Entity.Attributes {
		attrs[k] = v.Any()
	}
	return map[string]any{
		"entity_name": m.Entity.Name,
		"entity_type": m.Entity.Type,
		"description": m.Entity.Description,
		"attributes":  attrs,
		"score":       m.Score,
		"distance":    m.Distance,
		"explanation": m.Explanation,
	}
}

// SortMatches orders by score descending, then entity key ascending.
func SortMatches(ms []Match) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Score != ms[j].Score {
			return ms[i].Score > ms[j].Score
		}
		return ms[i].Entity.Key() < ms[j].Entity.Key()
	})
}

// ReasoningTrace records how a result was produced.
type ReasoningTrace struct {
	Steps []string
	// Counts is the working-set size after each step, keyed "#n op_type".
	Counts        map[string]int
	ExecutionPlan string
}

// Explain renders the trace as numbered steps followed by the
// intermediate counts.
func (t *ReasoningTrace) Explain() string {
	lines := []string{"Query Execution Trace:", ""}
	for i, s := range t.Steps {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, s))
	}
	if len(t.Counts) > 0 {
		lines = append(lines, "", "Intermediate Results:")
		keys := make([]string, 0, len(t.Counts))
		for k := range t.Counts {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return stepOrder(keys[i]) < stepOrder(keys[j]) })
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("  %s: %d", k, t.Counts[k]))
		}
	}
	return strings.Join(lines, "\n")
}

// stepOrder extracts n from a "#n op" key.
func stepOrder(key string) int {
	var n int
	fmt.Sscanf(key, "#%d", &n)
	return n
}

func (t *ReasoningTrace) toMap() map[string]any {
	if t == nil {
		return nil
	}
	return map[string]any{
		"steps":                t.Steps,
		"intermediate_results": t.Counts,
		"execution_plan":       t.ExecutionPlan,
	}
}

// VectorQueryResult is a ranked list of matching entities.
type VectorQueryResult struct {
	QueryID         string
	Query           string
	Matches         []Match
	Trace           *ReasoningTrace
	ExecutionTimeMS float64
}

func (*VectorQueryResult) result()    {}
func (*VectorQueryResult) Kind() Kind { return KindVector }
func (r *VectorQueryResult) Len() int { return len(r.Matches) }

func (r *VectorQueryResult) WithTiming(queryID string, ms float64) Result {
	c := *r
	c.QueryID, c.ExecutionTimeMS = queryID, ms
	return &c
}

// ConfidenceScores returns each match's confidence, in match order.
func (r *VectorQueryResult) ConfidenceScores() []float64 {
	out := make([]float64, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = m.Confidence()
	}
	return out
}

// TopK returns the k best matches.
func (r *VectorQueryResult) TopK(k int) []Match {
	ms := append([]Match(nil), r.Matches...)
	SortMatches(ms)
	if k >= 0 && k < len(ms) {
		ms = ms[:k]
	}
	return ms
}

// FilterByConfidence returns a copy keeping matches whose confidence is at
// least threshold.
func (r *VectorQueryResult) FilterByConfidence(threshold float64) *VectorQueryResult {
	c := *r
	c.Matches = nil
	for _, m := range r.Matches {
		if m.Confidence() >= threshold {
			c.Matches = append(c.Matches, m)
		}
	}
	return &c
}

func (r *VectorQueryResult) ToMap() map[string]any {
	matches := make([]map[string]any, len(r.Matches))
	for i, m := range r.Matches {
		matches[i] = m.toMap()
	}
	out := map[string]any{
		"kind":              string(KindVector),
		"query_id":          r.QueryID,
		"query":             r.Query,
		"matches":           matches,
		"confidence_scores": r.ConfidenceScores(),
		"execution_time_ms": r.ExecutionTimeMS,
	}
	if r.Trace != nil {
		out["reasoning"] = r.Trace.toMap()
	}
	return out
}
