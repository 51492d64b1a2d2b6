package lineage

import (
	"fmt"
	"testing"
	"time"

	pkgerrors "prompt-lineage/backend/pkg/errors"
)

var testEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testVersion(id string, offset time.Duration) PromptVersion {
	content := "prompt content for " + id
	return PromptVersion{
		ID:          NodeID(id),
		Content:     content,
		ContentHash: HashContent(content),
		CreatedAt:   testEpoch.Add(offset),
	}
}

func testEdge(id, source, target string) EvolutionEdge {
	return EvolutionEdge{
		ID:         EdgeID(id),
		Source:     NodeID(source),
		Target:     NodeID(target),
		Kind:       KindEvolves,
		Confidence: 0.7,
		ComputedAt: testEpoch.Add(time.Hour),
	}
}

func TestGraph_InsertNode(t *testing.T) {
	g := NewGraph()
	if err := g.InsertNode(testVersion("a", 0)); err != nil {
		t.Fatalf("InsertNode failed: %v", err)
	}
	if !g.HasNode("a") {
		t.Error("Node not found after insert")
	}
	if g.NodeCount() != 1 {
		t.Errorf("Expected 1 node, got %d", g.NodeCount())
	}
}

func TestGraph_InsertNode_Duplicate(t *testing.T) {
	g := NewGraph()
	if err := g.InsertNode(testVersion("a", 0)); err != nil {
		t.Fatalf("InsertNode failed: %v", err)
	}
	err := g.InsertNode(testVersion("a", time.Minute))
	if err == nil {
		t.Fatal("Expected duplicate node error")
	}
	if _, ok := err.(*pkgerrors.ErrDuplicateNode); !ok {
		t.Errorf("Expected ErrDuplicateNode, got %T", err)
	}
}

func TestGraph_InsertEdge(t *testing.T) {
	g := NewGraph()
	_ = g.InsertNode(testVersion("a", 0))
	_ = g.InsertNode(testVersion("b", time.Minute))

	if err := g.InsertEdge(testEdge("e1", "a", "b")); err != nil {
		t.Fatalf("InsertEdge failed: %v", err)
	}

	out := g.NeighborsOut("a")
	if len(out) != 1 || out[0].ID != "e1" {
		t.Errorf("Expected one outgoing edge e1, got %v", out)
	}
	in := g.NeighborsIn("b")
	if len(in) != 1 || in[0].ID != "e1" {
		t.Errorf("Expected one incoming edge e1, got %v", in)
	}
}

func TestGraph_InsertEdge_UnknownNode(t *testing.T) {
	g := NewGraph()
	_ = g.InsertNode(testVersion("a", 0))

	err := g.InsertEdge(testEdge("e1", "a", "missing"))
	if err == nil {
		t.Fatal("Expected unknown node error")
	}
	if _, ok := err.(*pkgerrors.ErrNodeNotFound); !ok {
		t.Errorf("Expected ErrNodeNotFound, got %T", err)
	}
	if g.EdgeCount() != 0 {
		t.Error("Graph mutated by rejected edge")
	}
}

func TestGraph_InsertEdge_Backward(t *testing.T) {
	g := NewGraph()
	_ = g.InsertNode(testVersion("earlier", 0))
	_ = g.InsertNode(testVersion("later", time.Minute))

	err := g.InsertEdge(testEdge("e1", "later", "earlier"))
	if err == nil {
		t.Fatal("Expected backward edge error")
	}
	backward, ok := err.(*pkgerrors.ErrBackwardEdge)
	if !ok {
		t.Fatalf("Expected ErrBackwardEdge, got %T", err)
	}
	if backward.SourceID != "later" || backward.TargetID != "earlier" {
		t.Errorf("Error missing offending ids: %+v", backward)
	}
	if g.EdgeCount() != 0 || len(g.NeighborsOut("later")) != 0 || len(g.NeighborsIn("earlier")) != 0 {
		t.Error("Graph mutated by rejected backward edge")
	}
}

func TestGraph_InsertEdge_EqualTimestampsRejected(t *testing.T) {
	g := NewGraph()
	_ = g.InsertNode(testVersion("a", 0))
	_ = g.InsertNode(testVersion("b", 0))

	if err := g.InsertEdge(testEdge("e1", "a", "b")); err == nil {
		t.Fatal("Expected backward edge error for equal timestamps")
	}
}

func TestGraph_InsertEdge_Duplicate(t *testing.T) {
	g := NewGraph()
	_ = g.InsertNode(testVersion("a", 0))
	_ = g.InsertNode(testVersion("b", time.Minute))
	_ = g.InsertEdge(testEdge("e1", "a", "b"))

	err := g.InsertEdge(testEdge("e1", "a", "b"))
	if err == nil {
		t.Fatal("Expected duplicate edge error")
	}
	if _, ok := err.(*pkgerrors.ErrDuplicateEdge); !ok {
		t.Errorf("Expected ErrDuplicateEdge, got %T", err)
	}
	if g.EdgeCount() != 1 || len(g.NeighborsOut("a")) != 1 {
		t.Error("Duplicate insert changed the graph")
	}
}

func TestGraph_InsertEdge_ClampsConfidence(t *testing.T) {
	g := NewGraph()
	_ = g.InsertNode(testVersion("a", 0))
	_ = g.InsertNode(testVersion("b", time.Minute))

	edge := testEdge("e1", "a", "b")
	edge.Confidence = 1.7
	if err := g.InsertEdge(edge); err != nil {
		t.Fatalf("InsertEdge failed: %v", err)
	}
	if got := g.NeighborsOut("a")[0].Confidence; got != 1.0 {
		t.Errorf("Expected confidence clamped to 1.0, got %f", got)
	}
}

func TestGraph_NeighborsOut_InsertionOrder(t *testing.T) {
	g := NewGraph()
	_ = g.InsertNode(testVersion("a", 0))
	for i := 1; i <= 3; i++ {
		_ = g.InsertNode(testVersion(fmt.Sprintf("child%d", i), time.Duration(i)*time.Minute))
	}
	_ = g.InsertEdge(testEdge("e2", "a", "child2"))
	_ = g.InsertEdge(testEdge("e1", "a", "child1"))
	_ = g.InsertEdge(testEdge("e3", "a", "child3"))

	out := g.NeighborsOut("a")
	want := []EdgeID{"e2", "e1", "e3"}
	for i, edge := range out {
		if edge.ID != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], edge.ID)
		}
	}
}

func TestGraph_NodeByHash(t *testing.T) {
	g := NewGraph()
	first := testVersion("a", 0)
	_ = g.InsertNode(first)

	// Same content under a different id: the first node keeps the hash slot
	second := first
	second.ID = "b"
	second.CreatedAt = first.CreatedAt.Add(time.Minute)
	_ = g.InsertNode(second)

	found, ok := g.NodeByHash(first.ContentHash)
	if !ok || found.ID != "a" {
		t.Errorf("Expected hash lookup to return first node, got %v (ok=%v)", found.ID, ok)
	}
}

func TestGraph_Snapshot_IsolatedFromWrites(t *testing.T) {
	g := NewGraph()
	_ = g.InsertNode(testVersion("a", 0))
	_ = g.InsertNode(testVersion("b", time.Minute))
	_ = g.InsertEdge(testEdge("e1", "a", "b"))

	snap := g.Snapshot()

	_ = g.InsertNode(testVersion("c", 2*time.Minute))
	_ = g.InsertEdge(testEdge("e2", "b", "c"))

	if len(snap.Nodes) != 2 {
		t.Errorf("Snapshot saw later node insert: %d nodes", len(snap.Nodes))
	}
	if len(snap.Edges) != 1 {
		t.Errorf("Snapshot saw later edge insert: %d edges", len(snap.Edges))
	}
	if len(snap.Outgoing["b"]) != 0 {
		t.Error("Snapshot adjacency mutated by later write")
	}
}

func TestGraph_RemoveEdge_Compensation(t *testing.T) {
	g := NewGraph()
	_ = g.InsertNode(testVersion("a", 0))
	_ = g.InsertNode(testVersion("b", time.Minute))
	_ = g.InsertEdge(testEdge("e1", "a", "b"))

	g.removeEdge("e1")

	if g.EdgeCount() != 0 {
		t.Error("Edge still present after removal")
	}
	if len(g.NeighborsOut("a")) != 0 || len(g.NeighborsIn("b")) != 0 {
		t.Error("Adjacency indices still reference removed edge")
	}
}
