package extractor

import (
	"context"
	"testing"

	"github.com/graphbrain/kgqa/internal/domain"
	"github.com/graphbrain/kgqa/internal/embedder"
	"github.com/graphbrain/kgqa/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func testExtractor(t *testing.T) Extractor {
	t.Helper()
	return New(testLogger(t), embedder.New(testLogger(t), 32))
}

const sampleText = `The river flows through the valley and past the old mill.
The mill has powered the town for two centuries.
Trade along the river brought prosperity to the valley.
Modern engineers now study the mill as a heritage site.`

func TestExtractProducesNodesAndEdges(t *testing.T) {
	ex := testExtractor(t)
	result, err := ex.Extract(context.Background(), "brain-1", "source-1", sampleText)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(result.Nodes) == 0 {
		t.Fatalf("expected at least one node")
	}
	if len(result.Vectors) != len(result.Nodes) {
		t.Fatalf("expected one vector point per node, got %d nodes and %d vectors", len(result.Nodes), len(result.Vectors))
	}
	for _, n := range result.Nodes {
		if len(n.Descriptions) == 0 {
			t.Fatalf("node %q has no descriptions", n.Name)
		}
		if len(n.Descriptions) > maxDescriptionsPerNode {
			t.Fatalf("node %q exceeds the description cap: %d", n.Name, len(n.Descriptions))
		}
	}
	nodeNames := make(map[string]struct{}, len(result.Nodes))
	for _, n := range result.Nodes {
		nodeNames[n.Name] = struct{}{}
	}
	for _, e := range result.Edges {
		if _, ok := nodeNames[e.Source]; !ok {
			t.Fatalf("edge source %q has no corresponding node", e.Source)
		}
		if _, ok := nodeNames[e.Target]; !ok {
			t.Fatalf("edge target %q has no corresponding node", e.Target)
		}
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	ex := testExtractor(t)
	first, err := ex.Extract(context.Background(), "brain-1", "source-1", sampleText)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	second, err := ex.Extract(context.Background(), "brain-1", "source-1", sampleText)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	firstNames := sortKeywords(namesOf(first.Nodes))
	secondNames := sortKeywords(namesOf(second.Nodes))
	if len(firstNames) != len(secondNames) {
		t.Fatalf("expected stable node count, got %d then %d", len(firstNames), len(secondNames))
	}
	for i := range firstNames {
		if firstNames[i] != secondNames[i] {
			t.Fatalf("expected stable node names, got %v then %v", firstNames, secondNames)
		}
	}
}

func namesOf(nodes []domain.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Name)
	}
	return out
}

func TestExtractRejectsEmptyText(t *testing.T) {
	ex := testExtractor(t)
	if _, err := ex.Extract(context.Background(), "brain-1", "source-1", "   "); err == nil {
		t.Fatalf("expected an error for empty text")
	}
}

func TestSegmentSentencesSplitsOnPunctuationAndEnumeration(t *testing.T) {
	text := "Heading\nFirst point. Second point! Third point?\n1. Enumerated item one.\n2. Enumerated item two."
	got := segmentSentences(text)
	if len(got) == 0 {
		t.Fatalf("expected at least one sentence")
	}
	for _, s := range got {
		if len(s.Text) <= 1 {
			t.Fatalf("unexpected trivial fragment: %q", s.Text)
		}
	}
}

func TestGroupGreedyRespectsThreshold(t *testing.T) {
	vectors := [][]float64{
		{1, 0},
		{1, 0},
		{0, 1},
	}
	groups := groupGreedy(vectors, 0.99)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d: %v", len(groups), groups)
	}
}
