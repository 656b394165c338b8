package plan

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExplain(t *testing.T) {
	p := compileQuery(t, `similar_to(command("dep*"), distance=0.2)`)
	out := p.Explain()

	lines := strings.Split(out, "\n")
	assert.Equal(t, "Query Execution Plan", lines[0])
	assert.Equal(t, strings.Repeat("=", 80), lines[1])
	assert.Contains(t, out, `Query: similar_to(command("dep*"), distance=0.2)`)
	assert.Contains(t, out, "Estimated Cost: 5.10")
	assert.Contains(t, out, "Operations: 3")
	assert.Contains(t, out, `1. lookup command("dep*") prefix scan (cost 3.00)`)
	assert.Contains(t, out, "2. similarity distance <= 0.20 <- #1 (cost 2.00)")
	assert.Contains(t, out, "3. collect_results top 10 <- #2 (cost 0.10)")
	assert.Contains(t, out, "Index Hints:\n  - "+HintWildcardLookup+"\n  - "+HintSimilarity)
}

func TestPlanMap(t *testing.T) {
	p := compileQuery(t, `maximize(value) subject_to(effort <= 100)`)
	b, err := json.Marshal(p.Map())
	require.NoError(t, err)

	var decoded struct {
		Operations []struct {
			OpType     string         `json:"op_type"`
			Inputs     []int          `json:"inputs"`
			Parameters map[string]any `json:"parameters"`
			Cost       float64        `json:"cost"`
		} `json:"operations"`
		EstimatedCost float64  `json:"estimated_cost"`
		IndexHints    []string `json:"index_hints"`
	}
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Len(t, decoded.Operations, 2)
	assert.Equal(t, "optimize", decoded.Operations[0].OpType)
	assert.Equal(t, "maximize", decoded.Operations[0].Parameters["objective_type"])
	assert.Len(t, decoded.Operations[0].Parameters["constraints"], 1)
	assert.Equal(t, []int{0}, decoded.Operations[1].Inputs)
	assert.InDelta(t, 3.6, decoded.EstimatedCost, 1e-9)
	assert.Len(t, decoded.IndexHints, 1)
}
