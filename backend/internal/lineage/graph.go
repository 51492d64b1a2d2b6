package lineage

import (
	"sync"

	pkgerrors "prompt-lineage/backend/pkg/errors"
)

// ============================================================================
// Lineage Graph
// ============================================================================

// Graph holds all known prompt versions and their evolution edges, with
// forward and backward adjacency indices. It is owned by a single Tracker
// and guarded by a multiple-reader/single-writer lock: reads proceed
// concurrently, mutations are exclusive and atomic (an edge and both index
// updates land in one critical section).
//
// Invariants:
//   - every edge references nodes already present
//   - every edge points forward in time (target created after source)
//   - node and edge ids are never reused
//   - confidence is clamped to [0,1] before insertion
type Graph struct {
	mu       sync.RWMutex
	nodes    map[NodeID]PromptVersion
	edges    map[EdgeID]EvolutionEdge
	outgoing map[NodeID][]EdgeID // insertion-ordered
	incoming map[NodeID][]EdgeID
	byHash   map[string]NodeID // first node seen per content hash
}

// NewGraph creates an empty lineage graph
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[NodeID]PromptVersion),
		edges:    make(map[EdgeID]EvolutionEdge),
		outgoing: make(map[NodeID][]EdgeID),
		incoming: make(map[NodeID][]EdgeID),
		byHash:   make(map[string]NodeID),
	}
}

// InsertNode adds a version to the graph. Fails if the id is already in use.
func (g *Graph) InsertNode(version PromptVersion) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[version.ID]; exists {
		return pkgerrors.NewDuplicateNode(string(version.ID))
	}

	g.nodes[version.ID] = version
	if _, seen := g.byHash[version.ContentHash]; !seen {
		g.byHash[version.ContentHash] = version.ID
	}
	return nil
}

// InsertEdge adds an evolution edge and updates both adjacency indices in one
// indivisible step. A rejected edge leaves the graph untouched.
func (g *Graph) InsertEdge(edge EvolutionEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.edges[edge.ID]; exists {
		return pkgerrors.NewDuplicateEdge(string(edge.ID))
	}
	source, ok := g.nodes[edge.Source]
	if !ok {
		return pkgerrors.NewNodeNotFound(string(edge.Source))
	}
	target, ok := g.nodes[edge.Target]
	if !ok {
		return pkgerrors.NewNodeNotFound(string(edge.Target))
	}
	// Temporal DAG invariant: evolution never points backward in time
	if !target.CreatedAt.After(source.CreatedAt) {
		return pkgerrors.NewBackwardEdge(string(edge.Source), string(edge.Target),
			source.CreatedAt, target.CreatedAt)
	}

	if edge.Confidence < 0 {
		edge.Confidence = 0
	} else if edge.Confidence > 1 {
		edge.Confidence = 1
	}

	g.edges[edge.ID] = edge
	g.outgoing[edge.Source] = append(g.outgoing[edge.Source], edge.ID)
	g.incoming[edge.Target] = append(g.incoming[edge.Target], edge.ID)
	return nil
}

// Node returns a version by id
func (g *Graph) Node(id NodeID) (PromptVersion, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	version, ok := g.nodes[id]
	return version, ok
}

// HasNode reports whether the id is known
func (g *Graph) HasNode(id NodeID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// NodeByHash returns the first node recorded with the given content hash
func (g *Graph) NodeByHash(hash string) (PromptVersion, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.byHash[hash]
	if !ok {
		return PromptVersion{}, false
	}
	return g.nodes[id], true
}

// NeighborsOut returns the outgoing edges of a node in insertion order
func (g *Graph) NeighborsOut(id NodeID) []EvolutionEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collectEdges(g.outgoing[id])
}

// NeighborsIn returns the incoming edges of a node in insertion order
func (g *Graph) NeighborsIn(id NodeID) []EvolutionEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collectEdges(g.incoming[id])
}

// AllNodes returns a copy of every version in the graph
func (g *Graph) AllNodes() []PromptVersion {
	g.mu.RLock()
	defer g.mu.RUnlock()
	nodes := make([]PromptVersion, 0, len(g.nodes))
	for _, version := range g.nodes {
		nodes = append(nodes, version)
	}
	return nodes
}

// AllEdges returns a copy of every edge in the graph
func (g *Graph) AllEdges() []EvolutionEdge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edges := make([]EvolutionEdge, 0, len(g.edges))
	for _, edge := range g.edges {
		edges = append(edges, edge)
	}
	return edges
}

// NodeCount returns the number of versions in the graph
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// Snapshot returns an immutable point-in-time copy of the graph for replay.
// Concurrent writes after the snapshot is taken do not affect it.
func (g *Graph) Snapshot() *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := &Snapshot{
		Nodes:    make(map[NodeID]PromptVersion, len(g.nodes)),
		Edges:    make(map[EdgeID]EvolutionEdge, len(g.edges)),
		Outgoing: make(map[NodeID][]EdgeID, len(g.outgoing)),
		Incoming: make(map[NodeID][]EdgeID, len(g.incoming)),
	}
	for id, version := range g.nodes {
		snap.Nodes[id] = version
	}
	for id, edge := range g.edges {
		snap.Edges[id] = edge
	}
	for id, edgeIDs := range g.outgoing {
		snap.Outgoing[id] = append([]EdgeID(nil), edgeIDs...)
	}
	for id, edgeIDs := range g.incoming {
		snap.Incoming[id] = append([]EdgeID(nil), edgeIDs...)
	}
	return snap
}

// removeEdge unwinds a just-inserted edge. Compensation path only: the
// tracker uses it when audit emission fails so a failed call leaves the
// graph unchanged. Edges are otherwise immutable.
func (g *Graph) removeEdge(id EdgeID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	edge, ok := g.edges[id]
	if !ok {
		return
	}
	delete(g.edges, id)
	g.outgoing[edge.Source] = dropEdgeID(g.outgoing[edge.Source], id)
	g.incoming[edge.Target] = dropEdgeID(g.incoming[edge.Target], id)
}

func dropEdgeID(edgeIDs []EdgeID, id EdgeID) []EdgeID {
	for i, candidate := range edgeIDs {
		if candidate == id {
			return append(edgeIDs[:i], edgeIDs[i+1:]...)
		}
	}
	return edgeIDs
}

// collectEdges resolves edge ids to copies of the edges. Callers must hold
// at least the read lock.
func (g *Graph) collectEdges(edgeIDs []EdgeID) []EvolutionEdge {
	edges := make([]EvolutionEdge, 0, len(edgeIDs))
	for _, id := range edgeIDs {
		edges = append(edges, g.edges[id])
	}
	return edges
}
