package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"prompt-lineage/backend/internal/lineage"
	"prompt-lineage/backend/internal/similarity"
	"prompt-lineage/backend/internal/store"
	pkgerrors "prompt-lineage/backend/pkg/errors"
	"prompt-lineage/backend/pkg/logger"
	"go.uber.org/zap"
)

// ============================================================================
// Lineage Service
// ============================================================================

// Embedder fetches embedding vectors for artifact contents. Optional: a nil
// embedder degrades the semantic signal gracefully.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options configures the service
type Options struct {
	Weights         similarity.Weights
	Thresholds      lineage.Thresholds
	DedupByHash     bool
	MaxContentBytes int
	AuditReads      bool
}

// Service exposes the caller-facing lineage operations over the tracker and
// the backing store
type Service struct {
	tracker    *lineage.Tracker
	store      store.Store
	recorder   *store.Recorder
	embedder   Embedder
	auditReads bool
	logger     *zap.Logger
}

// NewService wires a tracker to the backing store and optional embedder
func NewService(backing store.Store, recorder *store.Recorder, embedder Embedder, opts Options) *Service {
	svc := &Service{
		store:      backing,
		recorder:   recorder,
		embedder:   embedder,
		auditReads: opts.AuditReads,
		logger:     logger.Get(),
	}
	svc.tracker = lineage.NewTracker(svc, lineage.TrackerOptions{
		Weights:         opts.Weights,
		Thresholds:      opts.Thresholds,
		DedupByHash:     opts.DedupByHash,
		MaxContentBytes: opts.MaxContentBytes,
	})
	return svc
}

// Tracker exposes the underlying tracker
func (s *Service) Tracker() *lineage.Tracker {
	return s.tracker
}

// EmitEvolution implements lineage.DecisionEmitter: exactly one decision
// record per graph mutation, submitted through the retrying recorder.
func (s *Service) EmitEvolution(ctx context.Context, edge lineage.EvolutionEdge, parent, child lineage.PromptVersion) error {
	record := store.DecisionRecord{
		ExecutionRef: uuid.NewString(),
		SessionID:    sessionFrom(ctx),
		DecisionID:   string(edge.ID),
		Kind:         "track_evolution",
		Payload: map[string]interface{}{
			"source":          string(edge.Source),
			"target":          string(edge.Target),
			"kind":            string(edge.Kind),
			"confidence":      edge.Confidence,
			"semantic":        edge.Signals.Semantic,
			"token_overlap":   edge.Signals.TokenOverlap,
			"edit_similarity": edge.Signals.EditSimilarity,
			"source_hash":     parent.ContentHash,
			"target_hash":     child.ContentHash,
		},
		RecordedAt: time.Now().UTC(),
	}
	_, err := s.recorder.Record(ctx, record)
	return err
}

// Rehydrate loads the persisted graph from the backing store on cold start.
// Versions restore oldest-first so every edge finds its endpoints.
func (s *Service) Rehydrate(ctx context.Context) error {
	versions, err := s.store.LoadVersions(ctx)
	if err != nil {
		return err
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].CreatedAt.Before(versions[j].CreatedAt)
	})
	for _, version := range versions {
		if err := s.tracker.RestoreVersion(version); err != nil {
			return err
		}
	}

	edges, err := s.store.LoadEdges(ctx)
	if err != nil {
		return err
	}
	sort.Slice(edges, func(i, j int) bool {
		return edges[i].ComputedAt.Before(edges[j].ComputedAt)
	})
	for _, edge := range edges {
		if err := s.tracker.RestoreEdge(edge); err != nil {
			return err
		}
	}

	s.logger.Info("Rehydrated lineage graph",
		zap.Int("versions", len(versions)),
		zap.Int("edges", len(edges)))
	return nil
}

// TrackRequest carries one evolution submission
type TrackRequest struct {
	ParentID  lineage.NodeID
	Content   string
	Metadata  []lineage.MetadataEntry
	SessionID string
}

// TrackResult is the outcome of a tracked evolution
type TrackResult struct {
	Version lineage.PromptVersion `json:"version"`
	Edge    lineage.EvolutionEdge `json:"edge"`
}

// Track registers the new content as a child version of the parent, scores
// and classifies the relationship, and records exactly one decision event
func (s *Service) Track(ctx context.Context, req TrackRequest) (TrackResult, error) {
	if !s.tracker.Graph().HasNode(req.ParentID) {
		return TrackResult{}, pkgerrors.NewNodeNotFound(string(req.ParentID))
	}
	parent, _ := s.tracker.Graph().Node(req.ParentID)

	child, err := s.tracker.RegisterVersion(req.Content, req.Metadata)
	if err != nil {
		return TrackResult{}, err
	}

	embParent, embChild := s.embedPair(ctx, parent.Content, child.Content)
	ctx = withSession(ctx, req.SessionID)
	edge, err := s.tracker.TrackEvolution(ctx, parent.ID, child.ID, embParent, embChild)
	if err != nil {
		return TrackResult{}, err
	}

	// Flush-on-write: the backing store is the durability layer. Failures
	// here are logged, not fatal; the next flush retries.
	if err := s.store.SaveVersion(ctx, child); err != nil {
		s.logger.Warn("Failed to persist version", zap.String("node_id", string(child.ID)), zap.Error(err))
	}
	if err := s.store.SaveEdge(ctx, edge); err != nil {
		s.logger.Warn("Failed to persist edge", zap.String("edge_id", string(edge.ID)), zap.Error(err))
	}

	return TrackResult{Version: child, Edge: edge}, nil
}

// RegisterRoot registers a version with no parent (the start of a lineage)
func (s *Service) RegisterRoot(ctx context.Context, content string, metadata []lineage.MetadataEntry) (lineage.PromptVersion, error) {
	version, err := s.tracker.RegisterVersion(content, metadata)
	if err != nil {
		return lineage.PromptVersion{}, err
	}
	if err := s.store.SaveVersion(ctx, version); err != nil {
		s.logger.Warn("Failed to persist version", zap.String("node_id", string(version.ID)), zap.Error(err))
	}
	return version, nil
}

// InspectResult is a node with its direct neighborhood
type InspectResult struct {
	Version  lineage.PromptVersion   `json:"version"`
	Incoming []lineage.EvolutionEdge `json:"incoming"`
	Outgoing []lineage.EvolutionEdge `json:"outgoing"`
}

// Inspect returns the node and its direct neighbors
func (s *Service) Inspect(ctx context.Context, nodeID lineage.NodeID) (InspectResult, error) {
	version, ok := s.tracker.Graph().Node(nodeID)
	if !ok {
		return InspectResult{}, pkgerrors.NewNodeNotFound(string(nodeID))
	}
	result := InspectResult{
		Version:  version,
		Incoming: s.tracker.Graph().NeighborsIn(nodeID),
		Outgoing: s.tracker.Graph().NeighborsOut(nodeID),
	}
	s.auditRead(ctx, "inspect", map[string]interface{}{"node_id": string(nodeID)})
	return result, nil
}

// SubgraphResult is the lineage around a node up to a depth
type SubgraphResult struct {
	Version     lineage.PromptVersion   `json:"version"`
	Ancestors   []lineage.PromptVersion `json:"ancestors"`
	Descendants []lineage.PromptVersion `json:"descendants"`
}

// Retrieve returns the full ancestor/descendant subgraph up to depth
func (s *Service) Retrieve(ctx context.Context, nodeID lineage.NodeID, depth int) (SubgraphResult, error) {
	version, ok := s.tracker.Graph().Node(nodeID)
	if !ok {
		return SubgraphResult{}, pkgerrors.NewNodeNotFound(string(nodeID))
	}

	ancestorIDs, err := s.tracker.Ancestors(nodeID, depth)
	if err != nil {
		return SubgraphResult{}, err
	}
	descendantIDs, err := s.tracker.Descendants(nodeID, depth)
	if err != nil {
		return SubgraphResult{}, err
	}

	result := SubgraphResult{
		Version:     version,
		Ancestors:   s.resolve(ancestorIDs),
		Descendants: s.resolve(descendantIDs),
	}
	s.auditRead(ctx, "retrieve", map[string]interface{}{
		"node_id": string(nodeID),
		"depth":   depth,
	})
	return result, nil
}

// CompareResult carries the raw signals between two versions plus an
// optional classifier suggestion
type CompareResult struct {
	Signals    similarity.Signals    `json:"signals"`
	Confidence float64               `json:"confidence"`
	Suggested  lineage.EvolutionKind `json:"suggested_kind,omitempty"`
}

// Compare scores two known versions without inserting an edge
func (s *Service) Compare(ctx context.Context, firstID, secondID lineage.NodeID, suggestKind bool) (CompareResult, error) {
	first, ok := s.tracker.Graph().Node(firstID)
	if !ok {
		return CompareResult{}, pkgerrors.NewNodeNotFound(string(firstID))
	}
	second, ok := s.tracker.Graph().Node(secondID)
	if !ok {
		return CompareResult{}, pkgerrors.NewNodeNotFound(string(secondID))
	}

	embFirst, embSecond := s.embedPair(ctx, first.Content, second.Content)
	signals, confidence := s.tracker.Computer().Compute(first.Content, second.Content, embFirst, embSecond)

	result := CompareResult{Signals: signals, Confidence: confidence}
	if suggestKind {
		result.Suggested = lineage.Classify(signals, s.tracker.Thresholds())
	}
	s.auditRead(ctx, "compare", map[string]interface{}{
		"first":  string(firstID),
		"second": string(secondID),
	})
	return result, nil
}

// Similar ranks known versions against a node id or raw content. When the
// query names a known node, the node itself is excluded from the ranking.
func (s *Service) Similar(ctx context.Context, nodeIDOrContent string, threshold float64) ([]lineage.SimilarityMatch, error) {
	queryContent := nodeIDOrContent
	excludeID := lineage.NodeID("")
	if version, ok := s.tracker.Graph().Node(lineage.NodeID(nodeIDOrContent)); ok {
		queryContent = version.Content
		excludeID = version.ID
	}

	var queryEmb []float32
	if s.embedder != nil {
		emb, err := s.embedder.Embed(ctx, queryContent)
		if err != nil {
			s.logger.Warn("Embedding unavailable for similarity query, degrading to token overlap", zap.Error(err))
		} else {
			queryEmb = emb
		}
	}

	matches, err := s.tracker.FindSimilar(ctx, queryContent, nil, threshold, queryEmb)
	if err != nil {
		return nil, err
	}
	if excludeID != "" {
		filtered := matches[:0]
		for _, match := range matches {
			if match.NodeID != excludeID {
				filtered = append(filtered, match)
			}
		}
		matches = filtered
	}

	s.auditRead(ctx, "similar", map[string]interface{}{
		"query":     nodeIDOrContent,
		"threshold": threshold,
		"matches":   len(matches),
	})
	return matches, nil
}

// Replay returns the ordered scoring decisions around a node. Without
// verbose, the step contents are omitted.
func (s *Service) Replay(ctx context.Context, nodeID lineage.NodeID, direction lineage.ReplayDirection, verbose bool) ([]lineage.ReplayStep, error) {
	steps, err := s.tracker.Replay(nodeID, direction)
	if err != nil {
		return nil, err
	}
	if !verbose {
		for i := range steps {
			steps[i].SourceContent = ""
			steps[i].TargetContent = ""
		}
	}
	s.auditRead(ctx, "replay", map[string]interface{}{
		"node_id":   string(nodeID),
		"direction": string(direction),
	})
	return steps, nil
}

// Flush persists the entire in-memory graph to the backing store
func (s *Service) Flush(ctx context.Context) error {
	for _, version := range s.tracker.Graph().AllNodes() {
		if err := s.store.SaveVersion(ctx, version); err != nil {
			return err
		}
	}
	for _, edge := range s.tracker.Graph().AllEdges() {
		if err := s.store.SaveEdge(ctx, edge); err != nil {
			return err
		}
	}
	return nil
}

// DecisionEvents queries the audit trail in the backing store
func (s *Service) DecisionEvents(ctx context.Context, filter store.Filter) ([]store.DecisionRecord, error) {
	return s.store.QueryDecisionEvents(ctx, filter)
}

// embedPair fetches embeddings for both contents, degrading to nil on any
// failure so scoring falls back to the token-overlap signal
func (s *Service) embedPair(ctx context.Context, a, b string) ([]float32, []float32) {
	if s.embedder == nil {
		return nil, nil
	}
	embA, err := s.embedder.Embed(ctx, a)
	if err != nil {
		s.logger.Warn("Embedding unavailable, degrading to token overlap", zap.Error(err))
		return nil, nil
	}
	embB, err := s.embedder.Embed(ctx, b)
	if err != nil {
		s.logger.Warn("Embedding unavailable, degrading to token overlap", zap.Error(err))
		return nil, nil
	}
	return embA, embB
}

// auditRead emits at most one decision record for a read operation, and only
// when read auditing is enabled. Best-effort: a failed audit never fails the
// read.
func (s *Service) auditRead(ctx context.Context, kind string, payload map[string]interface{}) {
	if !s.auditReads {
		return
	}
	record := store.DecisionRecord{
		ExecutionRef: uuid.NewString(),
		SessionID:    sessionFrom(ctx),
		Kind:         kind,
		Payload:      payload,
		RecordedAt:   time.Now().UTC(),
	}
	if _, err := s.recorder.Record(ctx, record); err != nil {
		s.logger.Warn("Failed to audit read", zap.String("kind", kind), zap.Error(err))
	}
}

func (s *Service) resolve(ids []lineage.NodeID) []lineage.PromptVersion {
	versions := make([]lineage.PromptVersion, 0, len(ids))
	for _, id := range ids {
		if version, ok := s.tracker.Graph().Node(id); ok {
			versions = append(versions, version)
		}
	}
	return versions
}

// Session propagation

type sessionKey struct{}

func withSession(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey{}, sessionID)
}

func sessionFrom(ctx context.Context) string {
	if sessionID, ok := ctx.Value(sessionKey{}).(string); ok {
		return sessionID
	}
	return ""
}
