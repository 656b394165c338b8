// Package vector holds the numeric primitives shared by the store and the
// executor: cosine similarity, cosine distance, centroids and brute-force
// k-nearest search.
package vector

import (
	"math"
	"slices"
	"sort"

	"github.com/viterin/vek/vek32"
)

// epsilon guards against division by a near-zero norm.
const epsilon = 1e-12

// Tolerance absorbs float32 rounding in similarity scores. Scores within
// Tolerance of 1 are reported as exactly 1.
const Tolerance = 1e-6

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	return math.Sqrt(float64(vek32.Dot(v, v)))
}

// Cosine returns dot(a,b) / (|a| |b|), clamped to [-1, 1].
// Degenerate inputs (different lengths, empty, or a near-zero norm) yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := Norm(a), Norm(b)
	if na < epsilon || nb < epsilon {
		return 0
	}
	if slices.Equal(a, b) {
		return 1
	}
	sim := float64(vek32.Dot(a, b)) / (na * nb)
	if math.IsNaN(sim) {
		return 0
	}
	if sim > 1-Tolerance {
		return 1
	}
	return math.Max(-1, sim)
}

// Distance is the cosine distance 1 - Cosine(a, b), in [0, 2].
func Distance(a, b []float32) float64 {
	return 1 - Cosine(a, b)
}

// Centroid bundles the given vectors into their element-wise mean.
// It returns nil for an empty input and skips vectors whose length differs
// from the first one.
func Centroid(vs [][]float32) []float32 {
	if len(vs) == 0 {
		return nil
	}
	out := make([]float32, len(vs[0]))
	n := 0
	for _, v := range vs {
		if len(v) != len(out) {
			continue
		}
		vek32.Add_Inplace(out, v)
		n++
	}
	if n > 1 {
		vek32.MulNumber_Inplace(out, 1/float32(n))
	}
	return out
}

// Scored is a name paired with its similarity to a query vector.
type Scored struct {
	Name  string
	Score float64
}

// FindSimilar ranks every vector in corpus by cosine similarity to query and
// returns the k best, highest score first. Ties are broken by name so the
// order is reproducible. k <= 0 returns every entry.
func FindSimilar(query []float32, corpus map[string][]float32, k int) []Scored {
	out := make([]Scored, 0, len(corpus))
	for name, v := range corpus {
		out = append(out, Scored{Name: name, Score: Cosine(query, v)})
	}
	SortScored(out)
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// SortScored orders by descending score, then ascending name.
func SortScored(s []Scored) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Score != s[j].Score {
			return s[i].Score > s[j].Score
		}
		return s[i].Name < s[j].Name
	})
}
