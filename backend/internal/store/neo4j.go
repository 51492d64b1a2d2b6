package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"prompt-lineage/backend/internal/lineage"
	"prompt-lineage/backend/internal/similarity"
	pkgerrors "prompt-lineage/backend/pkg/errors"
	"prompt-lineage/backend/pkg/logger"
	"go.uber.org/zap"
)

// ============================================================================
// Neo4j Backing Store
// ============================================================================

// Neo4jStore persists prompt versions, evolution edges and decision events
// in the memory-graph backing store
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jStore creates a store over an existing driver
func NewNeo4jStore(driver neo4j.DriverWithContext) *Neo4jStore {
	return &Neo4jStore{
		driver: driver,
		logger: logger.Get(),
	}
}

// Close closes the Neo4j driver connection
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

// StoreDecisionEvent stores one decision record. MERGE on the execution ref
// makes resubmission a no-op success.
func (s *Neo4jStore) StoreDecisionEvent(ctx context.Context, record DecisionRecord) (StoreResult, error) {
	if record.ExecutionRef == "" {
		return StoreResult{}, pkgerrors.NewStoreRejected("", "missing execution ref")
	}

	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return StoreResult{}, pkgerrors.NewStoreRejected(record.ExecutionRef, "payload not serializable")
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (d:DecisionEvent {execution_ref: $executionRef})
		ON CREATE SET
			d.session_id = $sessionID,
			d.decision_id = $decisionID,
			d.kind = $kind,
			d.payload = $payload,
			d.recorded_at = $recordedAt
		RETURN d.execution_ref as ref
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"executionRef": record.ExecutionRef,
		"sessionID":    record.SessionID,
		"decisionID":   record.DecisionID,
		"kind":         record.Kind,
		"payload":      string(payload),
		"recordedAt":   record.RecordedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return StoreResult{}, pkgerrors.NewStoreUnavailable("store_decision_event", err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return StoreResult{}, pkgerrors.NewStoreUnavailable("store_decision_event", err)
	}

	return StoreResult{RefID: record.ExecutionRef, Success: true, Location: "neo4j"}, nil
}

// RetrieveDecisionEvent fetches one decision record by execution ref
func (s *Neo4jStore) RetrieveDecisionEvent(ctx context.Context, executionRef string) (DecisionRecord, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (d:DecisionEvent {execution_ref: $executionRef})
		RETURN d.execution_ref as execution_ref, d.session_id as session_id,
		       d.decision_id as decision_id, d.kind as kind,
		       d.payload as payload, d.recorded_at as recorded_at
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"executionRef": executionRef,
	})
	if err != nil {
		return DecisionRecord{}, pkgerrors.NewStoreUnavailable("retrieve_decision_event", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return DecisionRecord{}, pkgerrors.NewStoreUnavailable("retrieve_decision_event", err)
		}
		return DecisionRecord{}, pkgerrors.NewRecordNotFound(executionRef)
	}

	return decisionRecordFromNeo4j(result.Record()), nil
}

// QueryDecisionEvents returns records matching the filter, oldest first
func (s *Neo4jStore) QueryDecisionEvents(ctx context.Context, filter Filter) ([]DecisionRecord, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}

	query := `
		MATCH (d:DecisionEvent)
		WHERE ($sessionID = '' OR d.session_id = $sessionID)
		  AND ($decisionID = '' OR d.decision_id = $decisionID)
		RETURN d.execution_ref as execution_ref, d.session_id as session_id,
		       d.decision_id as decision_id, d.kind as kind,
		       d.payload as payload, d.recorded_at as recorded_at
		ORDER BY d.recorded_at ASC
		LIMIT $limit
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"sessionID":  filter.SessionID,
		"decisionID": filter.DecisionID,
		"limit":      limit,
	})
	if err != nil {
		return nil, pkgerrors.NewStoreUnavailable("query_decision_events", err)
	}

	var records []DecisionRecord
	for result.Next(ctx) {
		records = append(records, decisionRecordFromNeo4j(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, pkgerrors.NewStoreUnavailable("query_decision_events", err)
	}
	return records, nil
}

// SaveVersion persists one prompt version node
func (s *Neo4jStore) SaveVersion(ctx context.Context, version lineage.PromptVersion) error {
	metadata, err := json.Marshal(version.Metadata)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (v:PromptVersion {id: $id})
		ON CREATE SET
			v.content = $content,
			v.content_hash = $contentHash,
			v.created_at = $createdAt,
			v.metadata = $metadata
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"id":          string(version.ID),
		"content":     version.Content,
		"contentHash": version.ContentHash,
		"createdAt":   version.CreatedAt.Format(time.RFC3339Nano),
		"metadata":    string(metadata),
	})
	if err != nil {
		return pkgerrors.NewStoreUnavailable("save_version", err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return pkgerrors.NewStoreUnavailable("save_version", err)
	}
	return nil
}

// SaveEdge persists one evolution edge as a typed relationship
func (s *Neo4jStore) SaveEdge(ctx context.Context, edge lineage.EvolutionEdge) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MATCH (src:PromptVersion {id: $source})
		MATCH (dst:PromptVersion {id: $target})
		MERGE (src)-[e:EVOLVED_TO {id: $id}]->(dst)
		ON CREATE SET
			e.kind = $kind,
			e.confidence = $confidence,
			e.semantic = $semantic,
			e.token_overlap = $tokenOverlap,
			e.edit_similarity = $editSimilarity,
			e.computed_at = $computedAt
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"id":             string(edge.ID),
		"source":         string(edge.Source),
		"target":         string(edge.Target),
		"kind":           string(edge.Kind),
		"confidence":     edge.Confidence,
		"semantic":       edge.Signals.Semantic,
		"tokenOverlap":   edge.Signals.TokenOverlap,
		"editSimilarity": edge.Signals.EditSimilarity,
		"computedAt":     edge.ComputedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return pkgerrors.NewStoreUnavailable("save_edge", err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return pkgerrors.NewStoreUnavailable("save_edge", err)
	}
	return nil
}

// LoadVersions fetches every persisted prompt version, oldest first
func (s *Neo4jStore) LoadVersions(ctx context.Context) ([]lineage.PromptVersion, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (v:PromptVersion)
		RETURN v.id as id, v.content as content, v.content_hash as content_hash,
		       v.created_at as created_at, v.metadata as metadata
		ORDER BY v.created_at ASC
	`

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, pkgerrors.NewStoreUnavailable("load_versions", err)
	}

	var versions []lineage.PromptVersion
	for result.Next(ctx) {
		record := result.Record()
		version := lineage.PromptVersion{
			ID:          lineage.NodeID(getString(record, "id")),
			Content:     getString(record, "content"),
			ContentHash: getString(record, "content_hash"),
			CreatedAt:   getTime(record, "created_at"),
		}
		if raw := getString(record, "metadata"); raw != "" && raw != "null" {
			_ = json.Unmarshal([]byte(raw), &version.Metadata)
		}
		versions = append(versions, version)
	}
	if err := result.Err(); err != nil {
		return nil, pkgerrors.NewStoreUnavailable("load_versions", err)
	}
	return versions, nil
}

// LoadEdges fetches every persisted evolution edge, oldest first
func (s *Neo4jStore) LoadEdges(ctx context.Context) ([]lineage.EvolutionEdge, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (src:PromptVersion)-[e:EVOLVED_TO]->(dst:PromptVersion)
		RETURN e.id as id, src.id as source, dst.id as target,
		       e.kind as kind, e.confidence as confidence,
		       e.semantic as semantic, e.token_overlap as token_overlap,
		       e.edit_similarity as edit_similarity, e.computed_at as computed_at
		ORDER BY e.computed_at ASC
	`

	result, err := session.Run(ctx, query, nil)
	if err != nil {
		return nil, pkgerrors.NewStoreUnavailable("load_edges", err)
	}

	var edges []lineage.EvolutionEdge
	for result.Next(ctx) {
		record := result.Record()
		edges = append(edges, lineage.EvolutionEdge{
			ID:         lineage.EdgeID(getString(record, "id")),
			Source:     lineage.NodeID(getString(record, "source")),
			Target:     lineage.NodeID(getString(record, "target")),
			Kind:       lineage.EvolutionKind(getString(record, "kind")),
			Confidence: getFloat64(record, "confidence"),
			Signals: similarity.Signals{
				Semantic:       getFloat64(record, "semantic"),
				TokenOverlap:   getFloat64(record, "token_overlap"),
				EditSimilarity: getFloat64(record, "edit_similarity"),
			},
			ComputedAt: getTime(record, "computed_at"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, pkgerrors.NewStoreUnavailable("load_edges", err)
	}
	return edges, nil
}

// Record helpers

func decisionRecordFromNeo4j(record *neo4j.Record) DecisionRecord {
	decision := DecisionRecord{
		ExecutionRef: getString(record, "execution_ref"),
		SessionID:    getString(record, "session_id"),
		DecisionID:   getString(record, "decision_id"),
		Kind:         getString(record, "kind"),
		RecordedAt:   getTime(record, "recorded_at"),
	}
	if raw := getString(record, "payload"); raw != "" && raw != "null" {
		_ = json.Unmarshal([]byte(raw), &decision.Payload)
	}
	return decision
}

func getString(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getFloat64(record *neo4j.Record, key string) float64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0.0
	}
	if f, ok := val.(float64); ok {
		return f
	}
	if i, ok := val.(int64); ok {
		return float64(i)
	}
	return 0.0
}

func getTime(record *neo4j.Record, key string) time.Time {
	raw := getString(record, key)
	if raw == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
