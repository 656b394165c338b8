package result

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Severity levels for gaps, most severe first.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// Gap is a shortfall found among the analysed entities.
type Gap struct {
	Type             string
	Description      string
	Severity         string
	Affected         []string
	SuggestedActions []string
}

// Opportunity is an entity worth investing in, ranked by ROI.
type Opportunity struct {
	Type                 string
	Description          string
	Entity               string
	PotentialValue       float64
	ImplementationEffort float64
}

// ROI is value per unit of effort; +Inf when effort is zero.
func (o Opportunity) ROI() float64 {
	if o.ImplementationEffort == 0 {
		return math.Inf(1)
	}
	return o.PotentialValue / o.ImplementationEffort
}

// AnalysisResult summarises a set of matches.
type AnalysisResult struct {
	QueryID         string
	Query           string
	Metrics         map[string]float64
	Gaps            []Gap
	Opportunities   []Opportunity
	Insights        []string
	ExecutionTimeMS float64
}

func (*AnalysisResult) result()    {}
func (*AnalysisResult) Kind() Kind { return KindAnalysis }
func (r *AnalysisResult) Len() int { return len(r.Gaps) }

func (r *AnalysisResult) WithTiming(queryID string, ms float64) Result {
	c := *r
	c.QueryID, c.ExecutionTimeMS = queryID, ms
	return &c
}

// SummaryReport renders metrics, gaps, opportunities and insights.
func (r *AnalysisResult) SummaryReport() string {
	lines := []string{"ANALYSIS SUMMARY", strings.Repeat("=", 80), "", "Key Metrics:"}
	names := make([]string, 0, len(r.Metrics))
	for k := range r.Metrics {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		lines = append(lines, fmt.Sprintf("  %s: %.3f", k, r.Metrics[k]))
	}

	lines = append(lines, "", fmt.Sprintf("Gaps Identified (%d):", len(r.Gaps)))
	for _, g := range r.Gaps {
		lines = append(lines, fmt.Sprintf("  [%s] %s", strings.ToUpper(g.Severity), g.Description))
	}

	lines = append(lines, "", fmt.Sprintf("Opportunities (%d):", len(r.Opportunities)))
	for _, o := range r.Opportunities {
		lines = append(lines, fmt.Sprintf("  %s (ROI=%.2f, value=%.1f, effort=%.1f)",
			o.Description, o.ROI(), o.PotentialValue, o.ImplementationEffort))
	}

	lines = append(lines, "", "Key Insights:")
	for _, in := range r.Insights {
		lines = append(lines, "  - "+in)
	}
	return strings.Join(lines, "\n")
}

func (r *AnalysisResult) ToMap() map[string]any {
	gaps := make([]map[string]any, len(r.Gaps))
	for i, g := range r.Gaps {
		gaps[i] = map[string]any{
			"type":              g.Type,
			"description":       g.Description,
			"severity":          g.Severity,
			"affected_entities": g.Affected,
			"suggested_actions": g.SuggestedActions,
		}
	}
	opps := make([]map[string]any, len(r.Opportunities))
	for i, o := range r.Opportunities {
		var roi any = o.ROI()
		if math.IsInf(o.ROI(), 0) {
			roi = nil
		}
		opps[i] = map[string]any{
			"type":                  o.Type,
			"description":           o.Description,
			"entity":                o.Entity,
			"potential_value":       o.PotentialValue,
			"implementation_effort": o.ImplementationEffort,
			"roi_score":             roi,
		}
	}
	return map[string]any{
		"kind":              string(KindAnalysis),
		"query_id":          r.QueryID,
		"query":             r.Query,
		"metrics":           r.Metrics,
		"gaps":              gaps,
		"opportunities":     opps,
		"insights":          r.Insights,
		"execution_time_ms": r.ExecutionTimeMS,
	}
}

// AnalyzeOptions names the attributes Analyze reads.
type AnalyzeOptions struct {
	// GapAttribute is compared against GapThreshold; lower is a gap.
	GapAttribute string
	GapThreshold float64
	// ValueAttribute and EffortAttribute drive opportunity ROI.
	ValueAttribute  string
	EffortAttribute string
}

// DefaultAnalyzeOptions reads coverage, value and effort.
func DefaultAnalyzeOptions() AnalyzeOptions {
	return AnalyzeOptions{
		GapAttribute:    "coverage",
		GapThreshold:    0.5,
		ValueAttribute:  "value",
		EffortAttribute: "effort",
	}
}

// tightSpread is the score standard deviation below which matches are
// reported as indistinguishable.
const tightSpread = 0.05

// Analyze derives metrics, gaps, opportunities and insights from the
// matches of vr.
func Analyze(vr *VectorQueryResult, opts AnalyzeOptions) *AnalysisResult {
	ar := &AnalysisResult{QueryID: vr.QueryID, Query: vr.Query, Metrics: make(map[string]float64)}
	n := len(vr.Matches)
	ar.Metrics["match_count"] = float64(n)

	if n == 0 {
		ar.Gaps = append(ar.Gaps, Gap{
			Type:             "capability",
			Description:      "query matched no entities",
			Severity:         SeverityHigh,
			SuggestedActions: []string{"widen the query with a wildcard or a larger similarity distance", "load more entities"},
		})
		ar.Insights = append(ar.Insights, "no entities matched, so no metrics beyond the count are available")
		return ar
	}

	scores := make([]float64, n)
	for i, m := range vr.Matches {
		scores[i] = m.Score
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	mean := stat.Mean(scores, nil)
	ar.Metrics["mean_score"] = mean
	ar.Metrics["min_score"] = sorted[0]
	ar.Metrics["max_score"] = sorted[n-1]
	ar.Metrics["median_score"] = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	spread := 0.0
	if n > 1 {
		spread = stat.StdDev(scores, nil)
	}
	ar.Metrics["score_stddev"] = spread

	for attr, vals := range numericAttributes(vr.Matches) {
		ar.Metrics["mean_"+attr] = stat.Mean(vals, nil)
	}

	ar.Gaps = findGaps(vr.Matches, opts)
	ar.Opportunities = findOpportunities(vr.Matches, opts)

	best := vr.TopK(1)[0]
	ar.Insights = append(ar.Insights,
		fmt.Sprintf("%d entities matched with mean score %.3f", n, mean),
		fmt.Sprintf("strongest match is %s (score %.3f)", best.Entity.Key(), best.Score),
	)
	if types := typeCounts(vr.Matches); len(types) > 1 {
		ar.Insights = append(ar.Insights, "matches span "+types.String())
	}
	if n > 1 && spread < tightSpread {
		ar.Insights = append(ar.Insights, "scores are tightly clustered; the query barely separates its matches")
	}
	if g := countBelow(ar.Gaps, opts.GapAttribute); g > 0 {
		ar.Insights = append(ar.Insights, fmt.Sprintf("%d of %d matches fall below %s %.2f", g, n, opts.GapAttribute, opts.GapThreshold))
	}
	if len(ar.Opportunities) > 0 {
		o := ar.Opportunities[0]
		ar.Insights = append(ar.Insights, fmt.Sprintf("best return is %s (ROI %.2f)", o.Entity, o.ROI()))
	}
	return ar
}

func numericAttributes(ms []Match) map[string][]float64 {
	out := make(map[string][]float64)
	for _, m := range ms {
		for k, v := range m.Entity.Attributes {
			if f, ok := v.Float(); ok {
				out[k] = append(out[k], f)
			}
		}
	}
	return out
}

func findGaps(ms []Match, opts AnalyzeOptions) []Gap {
	var missing []string
	var out []Gap
	for _, m := range ms {
		v, ok := m.Entity.Attributes[opts.GapAttribute].Float()
		if !ok {
			missing = append(missing, m.Entity.Key())
			continue
		}
		if v >= opts.GapThreshold {
			continue
		}
		out = append(out, Gap{
			Type:        opts.GapAttribute,
			Description: fmt.Sprintf("%s has %s %.2f, below %.2f", m.Entity.Key(), opts.GapAttribute, v, opts.GapThreshold),
			Severity:    severity(v, opts.GapThreshold),
			Affected:    []string{m.Entity.Key()},
			SuggestedActions: []string{
				fmt.Sprintf("raise %s of %s to at least %.2f", opts.GapAttribute, m.Entity.Key(), opts.GapThreshold),
			},
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return severityRank(out[i].Severity) < severityRank(out[j].Severity) })
	if len(missing) > 0 {
		out = append(out, Gap{
			Type:             "data",
			Description:      fmt.Sprintf("%d matches have no numeric %s attribute", len(missing), opts.GapAttribute),
			Severity:         SeverityLow,
			Affected:         missing,
			SuggestedActions: []string{"record " + opts.GapAttribute + " for these entities"},
		})
	}
	return out
}

// severity grades v by how far it falls short of threshold.
func severity(v, threshold float64) string {
	if threshold <= 0 {
		return SeverityMedium
	}
	switch r := v / threshold; {
	case r < 0.5:
		return SeverityCritical
	case r < 0.75:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

func severityRank(s string) int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	}
	return 3
}

func countBelow(gaps []Gap, attr string) int {
	n := 0
	for _, g := range gaps {
		if g.Type == attr {
			n++
		}
	}
	return n
}

func findOpportunities(ms []Match, opts AnalyzeOptions) []Opportunity {
	var out []Opportunity
	for _, m := range ms {
		value, ok := m.Entity.Attributes[opts.ValueAttribute].Float()
		if !ok {
			continue
		}
		effort, ok := m.Entity.Attributes[opts.EffortAttribute].Float()
		if !ok || effort < 0 {
			continue
		}
		out = append(out, Opportunity{
			Type:                 m.Entity.Type,
			Description:          fmt.Sprintf("invest in %s", m.Entity.Key()),
			Entity:               m.Entity.Key(),
			PotentialValue:       value,
			ImplementationEffort: effort,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].ROI(), out[j].ROI()
		if ri != rj {
			return ri > rj
		}
		return out[i].Entity < out[j].Entity
	})
	return out
}

type typeCount struct {
	name string
	n    int
}

type typeCountList []typeCount

func (l typeCountList) String() string {
	parts := make([]string, len(l))
	for i, tc := range l {
		parts[i] = fmt.Sprintf("%s (%d)", tc.name, tc.n)
	}
	return fmt.Sprintf("%d entity types: %s", len(l), strings.Join(parts, ", "))
}

func typeCounts(ms []Match) typeCountList {
	counts := make(map[string]int)
	for _, m := range ms {
		counts[m.Entity.Type]++
	}
	out := make(typeCountList, 0, len(counts))
	for name, n := range counts {
		out = append(out, typeCount{name, n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
