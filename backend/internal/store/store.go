package store

import (
	"context"
	"time"

	"prompt-lineage/backend/internal/lineage"
)

// ============================================================================
// Memory-Graph Backing Store Boundary
// ============================================================================

// DecisionRecord is the one audit entry emitted per engine invocation
type DecisionRecord struct {
	ExecutionRef string                 `json:"execution_ref"`
	SessionID    string                 `json:"session_id,omitempty"`
	DecisionID   string                 `json:"decision_id,omitempty"`
	Kind         string                 `json:"kind"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	RecordedAt   time.Time              `json:"recorded_at"`
}

// StoreResult reports where a decision record landed
type StoreResult struct {
	RefID    string `json:"ref_id"`
	Success  bool   `json:"success"`
	Location string `json:"location,omitempty"`
}

// Filter narrows a decision-event query
type Filter struct {
	SessionID  string
	DecisionID string
	Limit      int
}

// Store is the injected backing-store capability. The engine is not durable
// itself: it rehydrates from and flushes to an implementation of this
// interface. StoreDecisionEvent must be idempotent per ExecutionRef —
// resubmitting the same reference is a no-op success, never a duplicate
// write.
type Store interface {
	StoreDecisionEvent(ctx context.Context, record DecisionRecord) (StoreResult, error)
	RetrieveDecisionEvent(ctx context.Context, executionRef string) (DecisionRecord, error)
	QueryDecisionEvents(ctx context.Context, filter Filter) ([]DecisionRecord, error)

	SaveVersion(ctx context.Context, version lineage.PromptVersion) error
	SaveEdge(ctx context.Context, edge lineage.EvolutionEdge) error
	LoadVersions(ctx context.Context) ([]lineage.PromptVersion, error)
	LoadEdges(ctx context.Context) ([]lineage.EvolutionEdge, error)
}
