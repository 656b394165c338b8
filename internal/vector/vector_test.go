package vector

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 2}, []float32{-1, -2}, -1},
		{"zero norm", []float32{0, 0, 0}, []float32{1, 2, 3}, 0},
		{"both zero", []float32{0, 0}, []float32{0, 0}, 0},
		{"length mismatch", []float32{1, 2, 3}, []float32{1, 2}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			assert.False(t, math.IsNaN(got))
			assert.InDelta(t, tt.want, got, 1e-6)
		})
	}
}

func TestCosineSelfIsExact(t *testing.T) {
	for _, v := range [][]float32{
		{1, 1},
		{0.3, 0.7, 0.1},
		{-2.5, 1e-3, 4, 0.25},
	} {
		assert.Equal(t, 1.0, Cosine(v, v), "%v", v)
		assert.Equal(t, 0.0, Distance(v, v), "%v", v)
	}

	// Parallel but not identical vectors round to 1 as well.
	assert.Equal(t, 1.0, Cosine([]float32{1, 1}, []float32{3, 3}))
	assert.Less(t, Cosine([]float32{1, 1}, []float32{1, 0}), 1.0)
}

func TestCosineBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		a := make([]float32, 64)
		b := make([]float32, 64)
		for j := range a {
			a[j] = float32(rng.NormFloat64())
			b[j] = float32(rng.NormFloat64())
		}
		sim := Cosine(a, b)
		require.GreaterOrEqual(t, sim, -1.0)
		require.LessOrEqual(t, sim, 1.0)

		d := Distance(a, b)
		require.GreaterOrEqual(t, d, 0.0)
		require.LessOrEqual(t, d, 2.0)
	}
}

func TestCentroid(t *testing.T) {
	assert.Nil(t, Centroid(nil))
	assert.Equal(t, []float32{1, 2}, Centroid([][]float32{{1, 2}}))
	assert.Equal(t, []float32{2, 3}, Centroid([][]float32{{1, 2}, {3, 4}}))
	assert.Equal(t, []float32{1, 2}, Centroid([][]float32{{1, 2}, {9}}), "mismatched lengths are skipped")
}

func TestFindSimilar(t *testing.T) {
	corpus := map[string][]float32{
		"command:init":    {1, 0, 0},
		"command:check":   {0.8, 0.6, 0},
		"command:version": {0, 0, 1},
	}

	got := FindSimilar(corpus["command:init"], corpus, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "command:init", got[0].Name)
	assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	assert.Equal(t, "command:check", got[1].Name)
	assert.Equal(t, "command:version", got[2].Name)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}

	assert.Len(t, FindSimilar(corpus["command:init"], corpus, 1), 1)
	assert.Len(t, FindSimilar(corpus["command:init"], corpus, 0), 3)
}

func TestSortScoredTieBreak(t *testing.T) {
	s := []Scored{{"b", 0.5}, {"a", 0.5}, {"c", 0.9}}
	SortScored(s)
	assert.Equal(t, []Scored{{"c", 0.9}, {"a", 0.5}, {"b", 0.5}}, s)
}
