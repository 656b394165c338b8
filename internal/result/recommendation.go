package result

import (
	"fmt"
	"strings"

	"hdql/internal/store"
)

// maxAlternatives caps the alternatives listed by Explain.
const maxAlternatives = 5

// Recommendation is one ranked optimize candidate. Score is the objective
// attribute's value.
type Recommendation struct {
	Entity    *store.Entity
	Score     float64
	Rationale string
	// Metrics holds the entity's numeric attributes.
	Metrics map[string]float64
}

// Alternative is a candidate that passed the constraints but fell outside
// the top k.
type Alternative struct {
	Entity    *store.Entity
	Score     float64
	TradeOffs string
}

// TradeOffAnalysis splits the recommended entities into the Pareto
// frontier and the options it dominates.
type TradeOffAnalysis struct {
	Summary        string
	ParetoFrontier []*store.Entity
	Dominated      []*store.Entity
}

// RecommendationResult is produced by maximize/minimize queries.
type RecommendationResult struct {
	QueryID         string
	Query           string
	Objective       string
	Attribute       string
	Recommendations []Recommendation
	TradeOffs       TradeOffAnalysis
	Alternatives    []Alternative
	// ObjectiveValue is the best recommendation's score, 0 when empty.
	ObjectiveValue  float64
	Trace           *ReasoningTrace
	ExecutionTimeMS float64
}

func (*RecommendationResult) result()    {}
func (*RecommendationResult) Kind() Kind { return KindRecommendation }
func (r *RecommendationResult) Len() int { return len(r.Recommendations) }

func (r *RecommendationResult) WithTiming(queryID string, ms float64) Result {
	c := *r
	c.QueryID, c.ExecutionTimeMS = queryID, ms
	return &c
}

// Explain describes the top recommendation, the trade-offs and the
// alternatives.
func (r *RecommendationResult) Explain() string {
	if len(r.Recommendations) == 0 {
		return "No recommendations found."
	}
	top := r.Recommendations[0]
	lines := []string{
		"Top Recommendation: " + top.Entity.Key(),
		fmt.Sprintf("Score: %.3f", top.Score),
		"",
		"Why this recommendation:",
		top.Rationale,
		"",
		"Trade-offs:",
		r.TradeOffs.Summary,
		"",
		"Alternatives considered:",
	}
	if len(r.Alternatives) == 0 {
		lines = append(lines, "  (none)")
	}
	for i, alt := range r.Alternatives {
		if i == maxAlternatives {
			break
		}
		lines = append(lines, fmt.Sprintf("  - %s (score=%.3f)", alt.Entity.Key(), alt.Score))
	}
	return strings.Join(lines, "\n")
}

func (r *RecommendationResult) ToMap() map[string]any {
	recs := make([]map[string]any, len(r.Recommendations))
	for i, rec := range r.Recommendations {
		recs[i] = map[string]any{
			"entity_name": rec.Entity.Name,
			"entity_type": rec.Entity.Type,
			"description": rec.Entity.Description,
			"score":       rec.Score,
			"rationale":   rec.Rationale,
			"metrics":     rec.Metrics,
		}
	}
	alts := make([]map[string]any, len(r.Alternatives))
	for i, a := range r.Alternatives {
		alts[i] = map[string]any{
			"entity_name": a.Entity.Name,
			"entity_type": a.Entity.Type,
			"score":       a.Score,
			"trade_offs":  a.TradeOffs,
		}
	}
	out := map[string]any{
		"kind":            string(KindRecommendation),
		"query_id":        r.QueryID,
		"query":           r.Query,
		"objective":       r.Objective,
		"attribute":       r.Attribute,
		"recommendations": recs,
		"trade_offs": map[string]any{
			"summary":         r.TradeOffs.Summary,
			"pareto_frontier": keys(r.TradeOffs.ParetoFrontier),
			"dominated":       keys(r.TradeOffs.Dominated),
		},
		"alternatives":      alts,
		"objective_value":   r.ObjectiveValue,
		"execution_time_ms": r.ExecutionTimeMS,
	}
	if r.Trace != nil {
		out["reasoning"] = r.Trace.toMap()
	}
	return out
}

func keys(es []*store.Entity) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Key()
	}
	return out
}

// Dimension is one axis of a trade-off comparison.
type Dimension struct {
	Attribute      string
	HigherIsBetter bool
}

// Pareto splits entities into those no other entity dominates and the
// rest. An entity dominates another when it is at least as good on every
// dimension and strictly better on one. Entities missing a numeric value
// for any dimension are treated as dominated. Input order is preserved.
func Pareto(entities []*store.Entity, dims []Dimension) (frontier, dominated []*store.Entity) {
	vals := make([][]float64, len(entities))
	complete := make([]bool, len(entities))
	for i, e := range entities {
		vals[i] = make([]float64, len(dims))
		complete[i] = true
		for d, dim := range dims {
			v, ok := e.Attributes[dim.Attribute].Float()
			if !ok {
				complete[i] = false
				break
			}
			if !dim.HigherIsBetter {
				v = -v
			}
			vals[i][d] = v
		}
	}

	dominates := func(a, b []float64) bool {
		strictly := false
		for d := range a {
			if a[d] < b[d] {
				return false
			}
			if a[d] > b[d] {
				strictly = true
			}
		}
		return strictly
	}

	for i, e := range entities {
		isDominated := !complete[i]
		for j := range entities {
			if isDominated {
				break
			}
			if i != j && complete[j] && dominates(vals[j], vals[i]) {
				isDominated = true
			}
		}
		if isDominated {
			dominated = append(dominated, e)
		} else {
			frontier = append(frontier, e)
		}
	}
	return frontier, dominated
}
