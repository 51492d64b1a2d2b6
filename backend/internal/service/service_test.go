package service

import (
	"context"
	"testing"
	"time"

	"prompt-lineage/backend/internal/lineage"
	"prompt-lineage/backend/internal/store"
	pkgerrors "prompt-lineage/backend/pkg/errors"
)

func newTestService(mem *store.MemoryStore, opts Options) *Service {
	recorder := store.NewRecorder(mem, 3, time.Millisecond)
	return NewService(mem, recorder, nil, opts)
}

func TestService_TrackEmitsExactlyOneRecord(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := newTestService(mem, Options{})
	ctx := context.Background()

	root, err := svc.RegisterRoot(ctx, "write a haiku about rain", nil)
	if err != nil {
		t.Fatalf("RegisterRoot failed: %v", err)
	}

	result, err := svc.Track(ctx, TrackRequest{
		ParentID:  root.ID,
		Content:   "write a haiku about rain in spring",
		SessionID: "session-1",
	})
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	if result.Edge.Source != root.ID || result.Edge.Target != result.Version.ID {
		t.Errorf("Edge endpoints wrong: %+v", result.Edge)
	}
	if mem.StoreCalls != 1 {
		t.Errorf("Expected exactly one decision record, got %d", mem.StoreCalls)
	}

	records, err := mem.QueryDecisionEvents(ctx, store.Filter{SessionID: "session-1"})
	if err != nil {
		t.Fatalf("QueryDecisionEvents failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record for session, got %d", len(records))
	}
	if records[0].Kind != "track_evolution" {
		t.Errorf("Unexpected record kind: %s", records[0].Kind)
	}
	if records[0].DecisionID != string(result.Edge.ID) {
		t.Errorf("Record decision id %s does not match edge %s", records[0].DecisionID, result.Edge.ID)
	}
}

func TestService_TrackUnknownParent(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := newTestService(mem, Options{})

	_, err := svc.Track(context.Background(), TrackRequest{ParentID: "missing", Content: "anything"})
	if _, ok := err.(*pkgerrors.ErrNodeNotFound); !ok {
		t.Fatalf("Expected ErrNodeNotFound, got %T", err)
	}
	if mem.StoreCalls != 0 {
		t.Errorf("Failed track must emit nothing, got %d records", mem.StoreCalls)
	}
}

func TestService_TrackEmissionFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := newTestService(mem, Options{})
	ctx := context.Background()

	root, err := svc.RegisterRoot(ctx, "original prompt", nil)
	if err != nil {
		t.Fatalf("RegisterRoot failed: %v", err)
	}

	mem.FailNext = 10 // exhausts the recorder's retries
	_, err = svc.Track(ctx, TrackRequest{ParentID: root.ID, Content: "revised prompt"})
	if err == nil {
		t.Fatal("Expected track to fail when emission fails")
	}
	if got := svc.Tracker().Graph().EdgeCount(); got != 0 {
		t.Errorf("Failed track left %d edges in the graph", got)
	}
}

func TestService_InspectAndRetrieve(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := newTestService(mem, Options{})
	ctx := context.Background()

	root, _ := svc.RegisterRoot(ctx, "first version of the prompt", nil)
	child, err := svc.Track(ctx, TrackRequest{ParentID: root.ID, Content: "second version of the prompt"})
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}
	grandchild, err := svc.Track(ctx, TrackRequest{ParentID: child.Version.ID, Content: "third version of the prompt"})
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	inspected, err := svc.Inspect(ctx, child.Version.ID)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if len(inspected.Incoming) != 1 || len(inspected.Outgoing) != 1 {
		t.Errorf("Expected 1 incoming and 1 outgoing edge, got %d/%d",
			len(inspected.Incoming), len(inspected.Outgoing))
	}

	subgraph, err := svc.Retrieve(ctx, grandchild.Version.ID, 10)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(subgraph.Ancestors) != 2 {
		t.Errorf("Expected 2 ancestors, got %d", len(subgraph.Ancestors))
	}
	if subgraph.Ancestors[0].ID != child.Version.ID || subgraph.Ancestors[1].ID != root.ID {
		t.Errorf("Ancestors out of order: %v then %v", subgraph.Ancestors[0].ID, subgraph.Ancestors[1].ID)
	}
	if len(subgraph.Descendants) != 0 {
		t.Errorf("Expected no descendants, got %d", len(subgraph.Descendants))
	}
}

func TestService_CompareDoesNotInsertEdge(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := newTestService(mem, Options{})
	ctx := context.Background()

	first, _ := svc.RegisterRoot(ctx, "write a poem about the sea", nil)
	second, _ := svc.RegisterRoot(ctx, "write a poem about the sea at night", nil)

	result, err := svc.Compare(ctx, first.ID, second.ID, true)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if result.Suggested == "" {
		t.Error("Expected a suggested kind")
	}
	if result.Confidence <= 0 {
		t.Errorf("Expected positive confidence, got %f", result.Confidence)
	}
	if svc.Tracker().Graph().EdgeCount() != 0 {
		t.Error("Compare inserted an edge")
	}
	if mem.StoreCalls != 0 {
		t.Errorf("Compare emitted %d records with auditing off", mem.StoreCalls)
	}
}

func TestService_ReadAuditToggle(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := newTestService(mem, Options{AuditReads: true})
	ctx := context.Background()

	root, _ := svc.RegisterRoot(ctx, "audited prompt content", nil)

	if _, err := svc.Inspect(ctx, root.ID); err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if mem.StoreCalls != 1 {
		t.Errorf("Expected one audit record for the read, got %d", mem.StoreCalls)
	}

	if _, err := svc.Similar(ctx, "audited prompt content", 0.9); err != nil {
		t.Fatalf("Similar failed: %v", err)
	}
	if mem.StoreCalls != 2 {
		t.Errorf("Expected one record per read, got %d total", mem.StoreCalls)
	}
}

func TestService_SimilarExcludesQueryNode(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := newTestService(mem, Options{})
	ctx := context.Background()

	root, _ := svc.RegisterRoot(ctx, "summarize the meeting notes", nil)
	if _, err := svc.Track(ctx, TrackRequest{ParentID: root.ID, Content: "summarize the meeting notes briefly"}); err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	matches, err := svc.Similar(ctx, string(root.ID), 0.1)
	if err != nil {
		t.Fatalf("Similar failed: %v", err)
	}
	for _, match := range matches {
		if match.NodeID == root.ID {
			t.Error("Query node present in its own similarity results")
		}
	}
	if len(matches) != 1 {
		t.Errorf("Expected 1 match, got %d", len(matches))
	}
}

func TestService_RehydrateRoundTrip(t *testing.T) {
	mem := store.NewMemoryStore()
	first := newTestService(mem, Options{})
	ctx := context.Background()

	root, _ := first.RegisterRoot(ctx, "the original prompt", nil)
	child, err := first.Track(ctx, TrackRequest{ParentID: root.ID, Content: "the refined original prompt"})
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	// A fresh service over the same store sees the same lineage
	second := newTestService(mem, Options{})
	if err := second.Rehydrate(ctx); err != nil {
		t.Fatalf("Rehydrate failed: %v", err)
	}
	if got := second.Tracker().Graph().NodeCount(); got != 2 {
		t.Errorf("Expected 2 rehydrated nodes, got %d", got)
	}
	if got := second.Tracker().Graph().EdgeCount(); got != 1 {
		t.Errorf("Expected 1 rehydrated edge, got %d", got)
	}

	ancestors, err := second.Tracker().Ancestors(child.Version.ID, 5)
	if err != nil {
		t.Fatalf("Ancestors failed after rehydration: %v", err)
	}
	if len(ancestors) != 1 || ancestors[0] != root.ID {
		t.Errorf("Expected [%s], got %v", root.ID, ancestors)
	}
}

func TestService_ReplayVerboseToggle(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := newTestService(mem, Options{})
	ctx := context.Background()

	root, _ := svc.RegisterRoot(ctx, "the original prompt", nil)
	child, err := svc.Track(ctx, TrackRequest{ParentID: root.ID, Content: "the revised prompt"})
	if err != nil {
		t.Fatalf("Track failed: %v", err)
	}

	terse, err := svc.Replay(ctx, child.Version.ID, lineage.DirectionAncestors, false)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(terse) != 1 {
		t.Fatalf("Expected 1 step, got %d", len(terse))
	}
	if terse[0].SourceContent != "" || terse[0].TargetContent != "" {
		t.Error("Non-verbose replay should omit contents")
	}

	verbose, err := svc.Replay(ctx, child.Version.ID, lineage.DirectionAncestors, true)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if verbose[0].SourceContent != "the original prompt" {
		t.Errorf("Verbose replay missing content: %q", verbose[0].SourceContent)
	}
}

func TestService_Flush(t *testing.T) {
	mem := store.NewMemoryStore()
	svc := newTestService(mem, Options{})
	ctx := context.Background()

	// Restore versions directly into the tracker so the store starts empty
	epoch := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b"} {
		version := lineage.PromptVersion{
			ID:          lineage.NodeID(id),
			Content:     "content " + id,
			ContentHash: lineage.HashContent("content " + id),
			CreatedAt:   epoch.Add(time.Duration(i) * time.Minute),
		}
		if err := svc.Tracker().RestoreVersion(version); err != nil {
			t.Fatalf("RestoreVersion failed: %v", err)
		}
	}

	if err := svc.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	versions, err := mem.LoadVersions(ctx)
	if err != nil {
		t.Fatalf("LoadVersions failed: %v", err)
	}
	if len(versions) != 2 {
		t.Errorf("Expected 2 flushed versions, got %d", len(versions))
	}
}
