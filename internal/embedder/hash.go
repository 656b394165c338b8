package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"unicode"

	"github.com/viterin/vek/vek32"
)

// HashEmbedder is an offline embedder. Every token gets a fixed random
// Gaussian vector seeded from its SHA-256 digest; a text is the normalized
// superposition of its token vectors. Texts sharing tokens land close
// together, unrelated texts are near orthogonal.
type HashEmbedder struct {
	dim int
}

var _ Embedder = (*HashEmbedder)(nil)

func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Name() string { return "hash:" + strconv.Itoa(h.dim) }

func (h *HashEmbedder) Dimension() int { return h.dim }

func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	v := make([]float32, h.dim)
	for _, tok := range Tokenize(text) {
		vek32.Add_Inplace(v, h.token(tok))
	}
	if n := vek32.Dot(v, v); n > 0 {
		vek32.MulNumber_Inplace(v, float32(1/math.Sqrt(float64(n))))
	}
	return v
}

func (h *HashEmbedder) token(tok string) []float32 {
	sum := sha256.Sum256([]byte(tok))
	rng := rand.New(rand.NewPCG(binary.BigEndian.Uint64(sum[:8]), binary.BigEndian.Uint64(sum[8:16])))
	v := make([]float32, h.dim)
	for i := range v {
		v[i] = float32(rng.NormFloat64())
	}
	return v
}

// Tokenize lowercases text and splits it on anything that is not a letter
// or digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
