package lineage

import (
	"prompt-lineage/backend/internal/similarity"
)

// ============================================================================
// Evolution Classification
// ============================================================================

// Thresholds configures the classifier cutoffs. These are deployment tuning
// knobs, not constants.
type Thresholds struct {
	// RefineTokenOverlap: token overlap at or above this means a minor edit
	// of the same prompt
	RefineTokenOverlap float64 `json:"refine_token_overlap"`
	// EvolveSemantic: semantic similarity at or above this means the same
	// intent in different wording
	EvolveSemantic float64 `json:"evolve_semantic"`
}

// DefaultThresholds returns the standard cutoffs
func DefaultThresholds() Thresholds {
	return Thresholds{
		RefineTokenOverlap: 0.80,
		EvolveSemantic:     0.50,
	}
}

// Classify maps signals to an evolution kind. Rules apply in priority order
// (Refines > Evolves > Derives); the first match wins.
func Classify(signals similarity.Signals, thresholds Thresholds) EvolutionKind {
	if signals.TokenOverlap >= thresholds.RefineTokenOverlap {
		return KindRefines
	}
	if signals.Semantic >= thresholds.EvolveSemantic {
		return KindEvolves
	}
	return KindDerives
}
