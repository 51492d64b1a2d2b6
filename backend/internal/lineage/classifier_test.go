package lineage

import (
	"testing"

	"prompt-lineage/backend/internal/similarity"
)

func TestClassify_Refines(t *testing.T) {
	signals := similarity.Signals{TokenOverlap: 0.85, Semantic: 0.9, EditSimilarity: 0.9}
	if kind := Classify(signals, DefaultThresholds()); kind != KindRefines {
		t.Errorf("Expected refines, got %s", kind)
	}
}

func TestClassify_RefinesAtBoundary(t *testing.T) {
	signals := similarity.Signals{TokenOverlap: 0.80, Semantic: 0.0}
	if kind := Classify(signals, DefaultThresholds()); kind != KindRefines {
		t.Errorf("Expected refines at exact threshold, got %s", kind)
	}
}

func TestClassify_Evolves(t *testing.T) {
	signals := similarity.Signals{TokenOverlap: 0.3, Semantic: 0.7, EditSimilarity: 0.2}
	if kind := Classify(signals, DefaultThresholds()); kind != KindEvolves {
		t.Errorf("Expected evolves, got %s", kind)
	}
}

func TestClassify_EvolvesAtBoundary(t *testing.T) {
	signals := similarity.Signals{TokenOverlap: 0.1, Semantic: 0.50}
	if kind := Classify(signals, DefaultThresholds()); kind != KindEvolves {
		t.Errorf("Expected evolves at exact threshold, got %s", kind)
	}
}

func TestClassify_Derives(t *testing.T) {
	signals := similarity.Signals{TokenOverlap: 0.1, Semantic: 0.2, EditSimilarity: 0.1}
	if kind := Classify(signals, DefaultThresholds()); kind != KindDerives {
		t.Errorf("Expected derives, got %s", kind)
	}
}

func TestClassify_RefinesWinsOverEvolves(t *testing.T) {
	// Both rules match; the higher-priority one wins
	signals := similarity.Signals{TokenOverlap: 0.95, Semantic: 0.95}
	if kind := Classify(signals, DefaultThresholds()); kind != KindRefines {
		t.Errorf("Expected refines to take priority, got %s", kind)
	}
}

func TestClassify_CustomThresholds(t *testing.T) {
	strict := Thresholds{RefineTokenOverlap: 0.95, EvolveSemantic: 0.9}
	signals := similarity.Signals{TokenOverlap: 0.85, Semantic: 0.7}
	if kind := Classify(signals, strict); kind != KindDerives {
		t.Errorf("Expected derives under strict thresholds, got %s", kind)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	signals := similarity.Signals{TokenOverlap: 0.5, Semantic: 0.5, EditSimilarity: 0.5}
	first := Classify(signals, DefaultThresholds())
	for i := 0; i < 10; i++ {
		if kind := Classify(signals, DefaultThresholds()); kind != first {
			t.Fatalf("Classify not deterministic: got %s then %s", first, kind)
		}
	}
}
