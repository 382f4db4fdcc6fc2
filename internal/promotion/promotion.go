// Package promotion implements the Promotion Engine (§4.5): a greedy,
// order-stable clustering of a location's processed tips by embedding
// similarity, producing the promoted-tip summary stored back through the
// Persistence Gateway.
package promotion

import (
	"math"
	"sort"

	"github.com/likealocal/tips-pipeline/internal/model"
)

// Config carries the two process-wide thresholds the engine is tuned by.
type Config struct {
	SimilarityThreshold float64
	MinMentions         int
}

// Cluster runs the greedy clustering algorithm over tips (§4.5 steps 1-3)
// and returns the resulting promotions, sorted by mention_count descending,
// then similarity_score descending, then tip_id ascending.
//
// tips need not arrive pre-sorted or pre-normalized; Cluster sorts by
// TipID and defensively L2-normalizes each vector before comparing.
func Cluster(tips []model.ProcessedTip, cfg Config) []model.Promotion {
	if len(tips) == 0 {
		return nil
	}

	units := make([]unit, len(tips))
	for i, t := range tips {
		units[i] = unit{tip: t, vector: normalize(t.Vector)}
	}
	sort.Slice(units, func(i, j int) bool { return units[i].tip.TipID < units[j].tip.TipID })

	var promotions []model.Promotion
	remaining := units
	for len(remaining) > 0 {
		head := remaining[0]
		rest := remaining[1:]

		var members []unit
		var leftover []unit
		for _, x := range rest {
			if cosine(head.vector, x.vector) >= cfg.SimilarityThreshold {
				members = append(members, x)
			} else {
				leftover = append(leftover, x)
			}
		}

		clusterSize := 1 + len(members)
		if clusterSize >= cfg.MinMentions {
			promotions = append(promotions, model.Promotion{
				TipText:         head.tip.TranslatedText,
				MentionCount:    clusterSize,
				SimilarityScore: meanSimilarity(head, members),
			})
		}

		remaining = leftover
	}

	// promotions was appended in ascending head-tip_id order; SliceStable
	// preserves that as the final tip_id-ascending tie-break (§4.5 output
	// ordering) without the Promotion type needing to retain a tip_id.
	sort.SliceStable(promotions, func(i, j int) bool {
		a, b := promotions[i], promotions[j]
		if a.MentionCount != b.MentionCount {
			return a.MentionCount > b.MentionCount
		}
		return a.SimilarityScore > b.SimilarityScore
	})
	return promotions
}

type unit struct {
	tip    model.ProcessedTip
	vector []float32
}

func meanSimilarity(head unit, members []unit) float64 {
	if len(members) == 0 {
		return 1.0
	}
	var sum float64
	for _, m := range members {
		sum += cosine(head.vector, m.vector)
	}
	return sum / float64(len(members))
}

// normalize returns a defensive L2-normalized copy of v; a zero vector is
// returned unchanged (cosine against it is 0 by convention below).
func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// cosine computes the cosine similarity of two pre-normalized vectors,
// which reduces to a dot product (§4.5).
func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
