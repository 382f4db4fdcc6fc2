// Package embed implements the worker's EmbeddingModel as a seeded
// hash-embedding (§4.3.1): deterministic, requires no model weights, and is
// bit-identical for identical input both within and across process
// lifetimes.
package embed

import (
	"hash/fnv"
	"math"
	"strings"

	"github.com/likealocal/tips-pipeline/internal/model"
)

// Model produces a fixed-dimension embedding vector for a piece of text.
type Model interface {
	Embed(text string) []float32
}

// HashEmbedder tokenizes text on whitespace, hashes each token with FNV-1a,
// folds the hash into one of model.EmbeddingDim buckets, and L2-normalizes
// the result.
type HashEmbedder struct{}

// NewHashEmbedder builds a HashEmbedder.
func NewHashEmbedder() *HashEmbedder { return &HashEmbedder{} }

// Embed returns a unit-normalized model.EmbeddingDim-length vector. The
// zero text and any text producing an all-zero accumulator returns the
// zero vector unchanged, since there is nothing meaningful to normalize.
func (e *HashEmbedder) Embed(text string) []float32 {
	vec := make([]float64, model.EmbeddingDim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		bucket := h.Sum32() % uint32(model.EmbeddingDim)
		vec[bucket]++
	}

	var sumSq float64
	for _, v := range vec {
		sumSq += v * v
	}
	norm := math.Sqrt(sumSq)

	out := make([]float32, model.EmbeddingDim)
	if norm == 0 {
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}
