package similarity

import (
	"math"
	"strings"
)

// ============================================================================
// Multi-Signal Similarity Scoring
// ============================================================================

// Signals holds the three independent similarity signals between two
// artifact versions
type Signals struct {
	Semantic       float64 `json:"semantic"`
	TokenOverlap   float64 `json:"token_overlap"`
	EditSimilarity float64 `json:"edit_similarity"`
}

// Weights controls how the signals blend into a single confidence value
type Weights struct {
	Semantic       float64 `json:"semantic"`
	TokenOverlap   float64 `json:"token_overlap"`
	EditSimilarity float64 `json:"edit_similarity"`
}

// DefaultWeights returns the balanced default blend
func DefaultWeights() Weights {
	return Weights{
		Semantic:       0.5,
		TokenOverlap:   0.3,
		EditSimilarity: 0.2,
	}
}

// Computer scores pairs of artifact contents. It holds no state beyond the
// configured weights, so a single instance is safe for concurrent use.
type Computer struct {
	weights Weights
}

// NewComputer creates a computer with the given weights. Zero-value weights
// fall back to the defaults.
func NewComputer(weights Weights) *Computer {
	if weights.Semantic == 0 && weights.TokenOverlap == 0 && weights.EditSimilarity == 0 {
		weights = DefaultWeights()
	}
	return &Computer{weights: weights}
}

// Compute scores two contents and returns the raw signals plus the blended
// confidence. Embeddings are optional: when either is missing the semantic
// signal falls back to the token-overlap value.
func (c *Computer) Compute(a, b string, embA, embB []float32) (Signals, float64) {
	signals := Signals{
		TokenOverlap:   TokenOverlap(a, b),
		EditSimilarity: EditSimilarity(a, b),
	}

	if len(embA) > 0 && len(embB) > 0 {
		signals.Semantic = Cosine(embA, embB)
	} else {
		signals.Semantic = signals.TokenOverlap
	}

	return signals, c.Blend(signals)
}

// Blend collapses signals into a single confidence value, clamped to [0,1]
func (c *Computer) Blend(s Signals) float64 {
	confidence := c.weights.Semantic*s.Semantic +
		c.weights.TokenOverlap*s.TokenOverlap +
		c.weights.EditSimilarity*s.EditSimilarity
	return Clamp(confidence)
}

// TokenOverlap computes the Jaccard similarity of the case-insensitive
// whitespace-delimited token sets of a and b. Two empty token sets are
// treated as identical (1.0); callers that consider empty content invalid
// must reject it upstream.
func TokenOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}

	intersection := 0
	for token := range setA {
		if setB[token] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 1.0
	}

	return float64(intersection) / float64(union)
}

// EditSimilarity computes 1 - levenshtein(a,b)/max(len(a),len(b)).
// Both strings empty yields 1.0.
func EditSimilarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	distance := levenshtein(a, b)
	return 1.0 - float64(distance)/float64(longest)
}

// Cosine computes cosine similarity between two embedding vectors. Vectors of
// different lengths or zero magnitude score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Clamp bounds v to [0.0, 1.0]
func Clamp(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

func tokenSet(content string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range strings.Fields(strings.ToLower(content)) {
		set[token] = true
	}
	return set
}

// levenshtein computes the byte-level edit distance using two rolling rows
func levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := 0; j <= len(b); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
