package lineage

import (
	"sort"
	"time"

	"prompt-lineage/backend/internal/similarity"
	pkgerrors "prompt-lineage/backend/pkg/errors"
)

// ============================================================================
// Replay Engine
// ============================================================================

// ReplayDirection selects which side of the lineage to reconstruct
type ReplayDirection string

const (
	// DirectionAncestors replays the edges that led to the node
	DirectionAncestors ReplayDirection = "ancestors"
	// DirectionDescendants replays the edges that grew out of the node
	DirectionDescendants ReplayDirection = "descendants"
)

// ReplayStep re-emits one scoring decision: the inputs it saw, the signals
// it computed and the kind it chose, so an auditor can see why an edge was
// created without re-deriving it.
type ReplayStep struct {
	EdgeID        EdgeID             `json:"edge_id"`
	Source        NodeID             `json:"source"`
	Target        NodeID             `json:"target"`
	SourceContent string             `json:"source_content"`
	TargetContent string             `json:"target_content"`
	Signals       similarity.Signals `json:"signals"`
	Kind          EvolutionKind      `json:"kind"`
	Confidence    float64            `json:"confidence"`
	ComputedAt    time.Time          `json:"computed_at"`
}

// Snapshot is a consistent point-in-time view of the graph. Replay operates
// only on snapshots, never on the live structure.
type Snapshot struct {
	Nodes    map[NodeID]PromptVersion
	Edges    map[EdgeID]EvolutionEdge
	Outgoing map[NodeID][]EdgeID
	Incoming map[NodeID][]EdgeID
}

// ReplayLineage reconstructs, in computed_at order, the edge-creation events
// connected to the node in the given direction. Calling it twice on the same
// snapshot returns identical sequences.
func ReplayLineage(snap *Snapshot, nodeID NodeID, direction ReplayDirection) ([]ReplayStep, error) {
	if _, ok := snap.Nodes[nodeID]; !ok {
		return nil, pkgerrors.NewNodeNotFound(string(nodeID))
	}
	if direction != DirectionAncestors && direction != DirectionDescendants {
		return nil, pkgerrors.NewInvalidInput("direction", "must be ancestors or descendants")
	}

	edges := collectConnected(snap, nodeID, direction)

	sort.Slice(edges, func(i, j int) bool {
		if !edges[i].ComputedAt.Equal(edges[j].ComputedAt) {
			return edges[i].ComputedAt.Before(edges[j].ComputedAt)
		}
		return edges[i].ID < edges[j].ID
	})

	steps := make([]ReplayStep, 0, len(edges))
	for _, edge := range edges {
		steps = append(steps, ReplayStep{
			EdgeID:        edge.ID,
			Source:        edge.Source,
			Target:        edge.Target,
			SourceContent: snap.Nodes[edge.Source].Content,
			TargetContent: snap.Nodes[edge.Target].Content,
			Signals:       edge.Signals,
			Kind:          edge.Kind,
			Confidence:    edge.Confidence,
			ComputedAt:    edge.ComputedAt,
		})
	}
	return steps, nil
}

// collectConnected walks the snapshot from the node and gathers every edge
// on the chosen side, each exactly once
func collectConnected(snap *Snapshot, start NodeID, direction ReplayDirection) []EvolutionEdge {
	adjacency := snap.Incoming
	next := func(edge EvolutionEdge) NodeID { return edge.Source }
	if direction == DirectionDescendants {
		adjacency = snap.Outgoing
		next = func(edge EvolutionEdge) NodeID { return edge.Target }
	}

	seenNodes := map[NodeID]bool{start: true}
	seenEdges := map[EdgeID]bool{}
	frontier := []NodeID{start}
	var edges []EvolutionEdge

	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		for _, edgeID := range adjacency[current] {
			if seenEdges[edgeID] {
				continue
			}
			seenEdges[edgeID] = true
			edge := snap.Edges[edgeID]
			edges = append(edges, edge)
			neighbor := next(edge)
			if !seenNodes[neighbor] {
				seenNodes[neighbor] = true
				frontier = append(frontier, neighbor)
			}
		}
	}
	return edges
}
