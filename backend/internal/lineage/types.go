package lineage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"prompt-lineage/backend/internal/similarity"
)

// ============================================================================
// Lineage Graph Types
// ============================================================================

// NodeID identifies one artifact version. Opaque, never reused.
type NodeID string

// EdgeID identifies one evolution relationship. Opaque, never reused.
type EdgeID string

// EvolutionKind classifies the relationship between two artifact versions
type EvolutionKind string

const (
	// KindRefines marks a minor edit of the same underlying prompt
	KindRefines EvolutionKind = "refines"
	// KindEvolves marks the same intent in materially different wording
	KindEvolves EvolutionKind = "evolves"
	// KindDerives marks a new prompt related only by a weak signal
	KindDerives EvolutionKind = "derives"
)

// MetadataEntry is one key/value pair attached to a version. Stored as a
// slice so submission order is preserved.
type MetadataEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// PromptVersion is one recorded prompt state at a point in time. Immutable
// after creation; the engine never deletes versions.
type PromptVersion struct {
	ID          NodeID          `json:"id"`
	Content     string          `json:"content"`
	ContentHash string          `json:"content_hash"`
	CreatedAt   time.Time       `json:"created_at"`
	Metadata    []MetadataEntry `json:"metadata,omitempty"`
}

// EvolutionEdge is a typed, confidence-scored directed relationship between
// two versions. Created once; re-scoring produces a new edge, never an
// in-place update.
type EvolutionEdge struct {
	ID         EdgeID             `json:"id"`
	Source     NodeID             `json:"source"`
	Target     NodeID             `json:"target"`
	Kind       EvolutionKind      `json:"kind"`
	Confidence float64            `json:"confidence"`
	Signals    similarity.Signals `json:"signals"`
	ComputedAt time.Time          `json:"computed_at"`
}

// SimilarityMatch is one ranked result from a similarity search
type SimilarityMatch struct {
	NodeID     NodeID  `json:"node_id"`
	Confidence float64 `json:"confidence"`
}

// HashContent returns the hex sha256 digest used for content identity
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
