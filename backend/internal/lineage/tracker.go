package lineage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"prompt-lineage/backend/internal/similarity"
	pkgerrors "prompt-lineage/backend/pkg/errors"
	"prompt-lineage/backend/pkg/logger"
	"go.uber.org/zap"
)

// ============================================================================
// Lineage Tracker
// ============================================================================

// DecisionEmitter receives exactly one audit record per graph mutation.
// Implementations talk to the backing store; the tracker awaits the emission
// without holding the graph lock.
type DecisionEmitter interface {
	EmitEvolution(ctx context.Context, edge EvolutionEdge, parent, child PromptVersion) error
}

// TrackerOptions tunes tracker behavior
type TrackerOptions struct {
	Weights         similarity.Weights
	Thresholds      Thresholds
	DedupByHash     bool
	MaxContentBytes int
}

// Tracker owns the lineage graph and orchestrates scoring, classification,
// mutation and audit emission. Safe for concurrent use.
type Tracker struct {
	graph      *Graph
	computer   *similarity.Computer
	thresholds Thresholds
	emitter    DecisionEmitter
	opts       TrackerOptions
	logger     *zap.Logger

	clockMu     sync.Mutex
	lastCreated time.Time
}

// NewTracker creates a tracker over a fresh graph
func NewTracker(emitter DecisionEmitter, opts TrackerOptions) *Tracker {
	if opts.MaxContentBytes <= 0 {
		opts.MaxContentBytes = 65536
	}
	thresholds := opts.Thresholds
	if thresholds.RefineTokenOverlap == 0 && thresholds.EvolveSemantic == 0 {
		thresholds = DefaultThresholds()
	}
	return &Tracker{
		graph:      NewGraph(),
		computer:   similarity.NewComputer(opts.Weights),
		thresholds: thresholds,
		emitter:    emitter,
		opts:       opts,
		logger:     logger.Get(),
	}
}

// Graph exposes the owned graph for read-only collaborators (replay, service)
func (t *Tracker) Graph() *Graph {
	return t.graph
}

// Computer exposes the configured similarity computer
func (t *Tracker) Computer() *similarity.Computer {
	return t.computer
}

// Thresholds exposes the configured classifier cutoffs
func (t *Tracker) Thresholds() Thresholds {
	return t.thresholds
}

// RegisterVersion validates content and records it as a new prompt version.
// With hash dedup enabled, resubmitting identical content returns the
// existing version instead of minting a new id.
func (t *Tracker) RegisterVersion(content string, metadata []MetadataEntry) (PromptVersion, error) {
	if content == "" {
		return PromptVersion{}, pkgerrors.NewInvalidInput("content", "must not be empty")
	}
	if len(content) > t.opts.MaxContentBytes {
		return PromptVersion{}, pkgerrors.NewInvalidInput("content", "exceeds maximum size")
	}

	hash := HashContent(content)
	if t.opts.DedupByHash {
		if existing, ok := t.graph.NodeByHash(hash); ok {
			return existing, nil
		}
	}

	version := PromptVersion{
		ID:          NodeID(uuid.NewString()),
		Content:     content,
		ContentHash: hash,
		CreatedAt:   t.nextTimestamp(),
		Metadata:    metadata,
	}
	if err := t.graph.InsertNode(version); err != nil {
		return PromptVersion{}, err
	}

	t.logger.Debug("Registered prompt version",
		zap.String("node_id", string(version.ID)),
		zap.String("content_hash", hash[:12]))
	return version, nil
}

// nextTimestamp returns a timestamp strictly after any previously issued
// one. Coarse clocks can hand out identical times for back-to-back calls,
// which would make a valid evolution look backward and leave replay order
// to id tie-breaks.
func (t *Tracker) nextTimestamp() time.Time {
	t.clockMu.Lock()
	defer t.clockMu.Unlock()
	now := time.Now().UTC()
	if !now.After(t.lastCreated) {
		now = t.lastCreated.Add(time.Nanosecond)
	}
	t.lastCreated = now
	return now
}

// RestoreVersion inserts a previously persisted version as-is. Used during
// cold-start rehydration from the backing store.
func (t *Tracker) RestoreVersion(version PromptVersion) error {
	return t.graph.InsertNode(version)
}

// RestoreEdge inserts a previously persisted edge as-is
func (t *Tracker) RestoreEdge(edge EvolutionEdge) error {
	return t.graph.InsertEdge(edge)
}

// TrackEvolution scores the relationship between two known versions,
// classifies it, inserts the edge and emits exactly one decision record
// before returning. A rejected invariant leaves the graph unchanged and
// emits nothing.
func (t *Tracker) TrackEvolution(ctx context.Context, parentID, childID NodeID, embParent, embChild []float32) (EvolutionEdge, error) {
	parent, ok := t.graph.Node(parentID)
	if !ok {
		return EvolutionEdge{}, pkgerrors.NewNodeNotFound(string(parentID))
	}
	child, ok := t.graph.Node(childID)
	if !ok {
		return EvolutionEdge{}, pkgerrors.NewNodeNotFound(string(childID))
	}

	signals, confidence := t.computer.Compute(parent.Content, child.Content, embParent, embChild)
	kind := Classify(signals, t.thresholds)

	edge := EvolutionEdge{
		ID:         EdgeID(uuid.NewString()),
		Source:     parentID,
		Target:     childID,
		Kind:       kind,
		Confidence: confidence,
		Signals:    signals,
		ComputedAt: t.nextTimestamp(),
	}

	if err := t.graph.InsertEdge(edge); err != nil {
		return EvolutionEdge{}, err
	}

	// Emission is awaited outside the graph lock. A failed emission rolls the
	// edge back so a failed call leaves neither a relationship nor a record.
	if t.emitter != nil {
		if err := t.emitter.EmitEvolution(ctx, edge, parent, child); err != nil {
			t.graph.removeEdge(edge.ID)
			t.logger.Error("Failed to emit decision record, rolled back edge",
				zap.String("edge_id", string(edge.ID)), zap.Error(err))
			return EvolutionEdge{}, err
		}
	}

	t.logger.Info("Tracked evolution",
		zap.String("edge_id", string(edge.ID)),
		zap.String("source", string(parentID)),
		zap.String("target", string(childID)),
		zap.String("kind", string(kind)),
		zap.Float64("confidence", confidence))
	return edge, nil
}

// Ancestors walks backward adjacency breadth-first from the node, bounded by
// maxDepth hops. Each reachable node appears exactly once, at the shallowest
// depth found, ordered nearest-to-farthest; same-depth ties order by
// ascending creation time, then by id.
func (t *Tracker) Ancestors(nodeID NodeID, maxDepth int) ([]NodeID, error) {
	return t.walk(nodeID, maxDepth, t.graph.NeighborsIn, func(edge EvolutionEdge) NodeID {
		return edge.Source
	})
}

// Descendants is the forward-adjacency mirror of Ancestors
func (t *Tracker) Descendants(nodeID NodeID, maxDepth int) ([]NodeID, error) {
	return t.walk(nodeID, maxDepth, t.graph.NeighborsOut, func(edge EvolutionEdge) NodeID {
		return edge.Target
	})
}

func (t *Tracker) walk(start NodeID, maxDepth int, neighbors func(NodeID) []EvolutionEdge, next func(EvolutionEdge) NodeID) ([]NodeID, error) {
	if !t.graph.HasNode(start) {
		return nil, pkgerrors.NewNodeNotFound(string(start))
	}
	if maxDepth <= 0 {
		return []NodeID{}, nil
	}

	// Visited set doubles as a cycle guard; the temporal invariant makes
	// true cycles structurally impossible.
	visited := map[NodeID]bool{start: true}
	frontier := []NodeID{start}
	result := []NodeID{}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		discovered := []PromptVersion{}
		for _, current := range frontier {
			for _, edge := range neighbors(current) {
				candidate := next(edge)
				if visited[candidate] {
					continue
				}
				visited[candidate] = true
				if version, ok := t.graph.Node(candidate); ok {
					discovered = append(discovered, version)
				}
			}
		}

		sort.Slice(discovered, func(i, j int) bool {
			if !discovered[i].CreatedAt.Equal(discovered[j].CreatedAt) {
				return discovered[i].CreatedAt.Before(discovered[j].CreatedAt)
			}
			return discovered[i].ID < discovered[j].ID
		})

		frontier = frontier[:0]
		for _, version := range discovered {
			result = append(result, version.ID)
			frontier = append(frontier, version.ID)
		}
	}

	return result, nil
}

// FindSimilar scores the query content against every candidate, keeps those
// at or above the threshold and returns them ranked by confidence. Ties
// order by most recent creation first, then by id, so the ranking is fully
// deterministic. An empty scope means every node in the graph.
func (t *Tracker) FindSimilar(ctx context.Context, queryContent string, scope []NodeID, threshold float64, queryEmb []float32) ([]SimilarityMatch, error) {
	var candidates []PromptVersion
	if len(scope) == 0 {
		candidates = t.graph.AllNodes()
	} else {
		for _, id := range scope {
			if version, ok := t.graph.Node(id); ok {
				candidates = append(candidates, version)
			}
		}
	}
	if len(candidates) == 0 {
		return []SimilarityMatch{}, nil
	}

	// Score candidates in parallel; results land in fixed slots so the
	// merge stays deterministic.
	confidences := make([]float64, len(candidates))
	group, _ := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for i := range candidates {
		i := i
		group.Go(func() error {
			_, confidences[i] = t.computer.Compute(queryContent, candidates[i].Content, queryEmb, nil)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	type scored struct {
		match     SimilarityMatch
		createdAt time.Time
	}
	kept := []scored{}
	for i, candidate := range candidates {
		if confidences[i] >= threshold {
			kept = append(kept, scored{
				match:     SimilarityMatch{NodeID: candidate.ID, Confidence: confidences[i]},
				createdAt: candidate.CreatedAt,
			})
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		if kept[i].match.Confidence != kept[j].match.Confidence {
			return kept[i].match.Confidence > kept[j].match.Confidence
		}
		if !kept[i].createdAt.Equal(kept[j].createdAt) {
			return kept[i].createdAt.After(kept[j].createdAt)
		}
		return kept[i].match.NodeID < kept[j].match.NodeID
	})

	matches := make([]SimilarityMatch, len(kept))
	for i, s := range kept {
		matches[i] = s.match
	}
	return matches, nil
}

// Replay reconstructs the ordered scoring decisions connected to a node.
// Operates on a point-in-time snapshot, so concurrent writes do not affect a
// replay in progress.
func (t *Tracker) Replay(nodeID NodeID, direction ReplayDirection) ([]ReplayStep, error) {
	snap := t.graph.Snapshot()
	return ReplayLineage(snap, nodeID, direction)
}
