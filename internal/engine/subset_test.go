package engine

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shaiso/Weave/internal/domain"
)

// a → b → c,  d → c,  e (изолирован),  b → f
func subsetGraph() *domain.Graph {
	return &domain.Graph{
		Nodes: []domain.Node{textNode("a"), llmNode("b"), llmNode("c"), textNode("d"), textNode("e"), llmNode("f")},
		Edges: []domain.Edge{
			edge("a", "b"),
			portEdge("b", "c", "userMessage"),
			portEdge("d", "c", "systemPrompt"),
			edge("b", "f"),
		},
	}
}

func TestSubgraph(t *testing.T) {
	tests := []struct {
		name      string
		targets   []string
		wantNodes []string
		wantEdges int
	}{
		{"leaf with two branches", []string{"c"}, []string{"a", "b", "c", "d"}, 3},
		{"middle node", []string{"b"}, []string{"a", "b"}, 1},
		{"isolated", []string{"e"}, []string{"e"}, 0},
		{"several targets", []string{"f", "e"}, []string{"a", "b", "e", "f"}, 2},
		{"empty targets", nil, []string{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := Subgraph(subsetGraph(), tt.targets)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := sub.NodeIDs(); !reflect.DeepEqual(got, tt.wantNodes) {
				t.Errorf("expected nodes %v, got %v", tt.wantNodes, got)
			}
			if len(sub.Edges) != tt.wantEdges {
				t.Errorf("expected %d edges, got %d", tt.wantEdges, len(sub.Edges))
			}
		})
	}
}

func TestSubgraph_UnknownTarget(t *testing.T) {
	_, err := Subgraph(subsetGraph(), []string{"nope"})
	if !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("expected ErrUnknownTarget, got %v", err)
	}
}

func TestSubgraph_DoesNotMutateInput(t *testing.T) {
	g := subsetGraph()
	before := len(g.Nodes)

	if _, err := Subgraph(g, []string{"b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.Nodes) != before {
		t.Error("input graph must not be modified")
	}
}
