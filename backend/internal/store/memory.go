package store

import (
	"context"
	"sync"

	"prompt-lineage/backend/internal/lineage"
	pkgerrors "prompt-lineage/backend/pkg/errors"
)

// MemoryStore is an in-memory Store used for tests and offline runs. It
// implements the same contract as the Neo4j store, including idempotency per
// execution ref.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]DecisionRecord
	order    []string // execution refs in arrival order
	versions map[lineage.NodeID]lineage.PromptVersion
	edges    map[lineage.EdgeID]lineage.EvolutionEdge

	// StoreCalls counts real (non-idempotent-replay) decision writes
	StoreCalls int
	// FailNext makes the next StoreDecisionEvent fail with a transient error
	FailNext int
	// RejectNext makes the next StoreDecisionEvent fail permanently
	RejectNext bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]DecisionRecord),
		versions: make(map[lineage.NodeID]lineage.PromptVersion),
		edges:    make(map[lineage.EdgeID]lineage.EvolutionEdge),
	}
}

// StoreDecisionEvent stores a record, treating a resubmitted execution ref
// as a no-op success
func (s *MemoryStore) StoreDecisionEvent(ctx context.Context, record DecisionRecord) (StoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.RejectNext {
		s.RejectNext = false
		return StoreResult{}, pkgerrors.NewStoreRejected(record.ExecutionRef, "malformed record")
	}
	if s.FailNext > 0 {
		s.FailNext--
		return StoreResult{}, pkgerrors.NewStoreUnavailable("store_decision_event", nil)
	}
	if record.ExecutionRef == "" {
		return StoreResult{}, pkgerrors.NewStoreRejected("", "missing execution ref")
	}

	if _, exists := s.records[record.ExecutionRef]; exists {
		return StoreResult{RefID: record.ExecutionRef, Success: true, Location: "memory"}, nil
	}

	s.records[record.ExecutionRef] = record
	s.order = append(s.order, record.ExecutionRef)
	s.StoreCalls++
	return StoreResult{RefID: record.ExecutionRef, Success: true, Location: "memory"}, nil
}

// RetrieveDecisionEvent returns a stored record by execution ref
func (s *MemoryStore) RetrieveDecisionEvent(ctx context.Context, executionRef string) (DecisionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[executionRef]
	if !ok {
		return DecisionRecord{}, pkgerrors.NewRecordNotFound(executionRef)
	}
	return record, nil
}

// QueryDecisionEvents returns records matching the filter in arrival order
func (s *MemoryStore) QueryDecisionEvents(ctx context.Context, filter Filter) ([]DecisionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := []DecisionRecord{}
	for _, ref := range s.order {
		record := s.records[ref]
		if filter.SessionID != "" && record.SessionID != filter.SessionID {
			continue
		}
		if filter.DecisionID != "" && record.DecisionID != filter.DecisionID {
			continue
		}
		results = append(results, record)
		if filter.Limit > 0 && len(results) >= filter.Limit {
			break
		}
	}
	return results, nil
}

// SaveVersion persists a prompt version
func (s *MemoryStore) SaveVersion(ctx context.Context, version lineage.PromptVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[version.ID] = version
	return nil
}

// SaveEdge persists an evolution edge
func (s *MemoryStore) SaveEdge(ctx context.Context, edge lineage.EvolutionEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[edge.ID] = edge
	return nil
}

// LoadVersions returns every persisted version
func (s *MemoryStore) LoadVersions(ctx context.Context) ([]lineage.PromptVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := make([]lineage.PromptVersion, 0, len(s.versions))
	for _, version := range s.versions {
		versions = append(versions, version)
	}
	return versions, nil
}

// LoadEdges returns every persisted edge
func (s *MemoryStore) LoadEdges(ctx context.Context) ([]lineage.EvolutionEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	edges := make([]lineage.EvolutionEdge, 0, len(s.edges))
	for _, edge := range s.edges {
		edges = append(edges, edge)
	}
	return edges, nil
}
