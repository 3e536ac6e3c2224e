package engine

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/shaiso/Weave/internal/domain"
)

func textNode(id string) domain.Node {
	return domain.Node{ID: id, Kind: domain.KindText, Config: domain.TextConfig{Value: id}}
}

func llmNode(id string) domain.Node {
	return domain.Node{ID: id, Kind: domain.KindLLM, Config: domain.DefaultConfig(domain.KindLLM)}
}

func edge(src, dst string) domain.Edge {
	return domain.Edge{Source: src, Target: dst}
}

func portEdge(src, dst, port string) domain.Edge {
	return domain.Edge{Source: src, Target: dst, TargetPort: port}
}

func orderIDs(t *testing.T, g *domain.Graph) []string {
	t.Helper()
	nodes, err := Order(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func TestBuildDAG_SimpleChain(t *testing.T) {
	g := &domain.Graph{
		Nodes: []domain.Node{textNode("A"), llmNode("B"), llmNode("C")},
		Edges: []domain.Edge{edge("A", "B"), edge("B", "C")},
	}

	dag, err := BuildDAG(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dag.Size() != 3 {
		t.Errorf("expected 3 nodes, got %d", dag.Size())
	}
	if len(dag.RootNodes) != 1 || dag.RootNodes[0].ID != "A" {
		t.Errorf("expected single root A, got %v", dag.RootNodes)
	}

	nodeC := dag.GetNode("C")
	if len(nodeC.DependsOn) != 1 || nodeC.DependsOn[0].ID != "B" {
		t.Error("node C should depend on B")
	}
}

func TestBuildDAG_Diamond(t *testing.T) {
	// A → B → D
	// A → C → D
	g := &domain.Graph{
		Nodes: []domain.Node{textNode("A"), llmNode("B"), llmNode("C"), llmNode("D")},
		Edges: []domain.Edge{
			edge("A", "B"),
			edge("A", "C"),
			portEdge("B", "D", "systemPrompt"),
			portEdge("C", "D", "userMessage"),
		},
	}

	dag, err := BuildDAG(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dag.GetNode("D").InDegree != 2 {
		t.Errorf("D should have inDegree 2, got %d", dag.GetNode("D").InDegree)
	}

	want := []string{"A", "B", "C", "D"}
	if got := orderIDs(t, g); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestBuildDAG_MultiplePortsSamePair(t *testing.T) {
	g := &domain.Graph{
		Nodes: []domain.Node{textNode("A"), llmNode("B")},
		Edges: []domain.Edge{
			portEdge("A", "B", "systemPrompt"),
			portEdge("A", "B", "userMessage"),
		},
	}

	dag, err := BuildDAG(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dag.GetNode("B").InDegree != 1 {
		t.Errorf("parallel edges should count once, got inDegree %d", dag.GetNode("B").InDegree)
	}
}

func TestBuildDAG_CyclicDependency(t *testing.T) {
	g := &domain.Graph{
		Nodes: []domain.Node{textNode("root"), llmNode("A"), llmNode("B"), llmNode("C")},
		Edges: []domain.Edge{edge("C", "A"), edge("A", "B"), edge("B", "C")},
	}

	dag, err := BuildDAG(g)
	if dag != nil {
		t.Error("dag should be nil on cycle")
	}
	if !errors.Is(err, ErrCyclicDependency) {
		t.Fatalf("expected ErrCyclicDependency, got %v", err)
	}

	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if want := []string{"A", "B", "C"}; !reflect.DeepEqual(cycle.Remaining, want) {
		t.Errorf("expected remaining %v, got %v", want, cycle.Remaining)
	}
	if !IsGraphError(err) {
		t.Error("cycle should be a graph error")
	}
}

func TestOrder_NoEdgesKeepsDeclarationOrder(t *testing.T) {
	g := &domain.Graph{
		Nodes: []domain.Node{textNode("z"), textNode("a"), textNode("m")},
	}

	want := []string{"z", "a", "m"}
	if got := orderIDs(t, g); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestOrder_IndependentChainsTieBreak(t *testing.T) {
	// Text1 → Llm1, Text2 → Llm2, объявлены вперемешку
	g := &domain.Graph{
		Nodes: []domain.Node{textNode("text1"), textNode("text2"), llmNode("llm1"), llmNode("llm2")},
		Edges: []domain.Edge{edge("text2", "llm2"), edge("text1", "llm1")},
	}

	want := []string{"text1", "text2", "llm1", "llm2"}
	for i := 0; i < 5; i++ {
		if got := orderIDs(t, g); !reflect.DeepEqual(got, want) {
			t.Fatalf("run %d: expected %v, got %v", i, want, got)
		}
	}
}

func TestOrder_EarlierDeclaredReleasedFirst(t *testing.T) {
	// b становится готовым позже c, но объявлен раньше
	g := &domain.Graph{
		Nodes: []domain.Node{textNode("a"), llmNode("b"), textNode("c"), textNode("d")},
		Edges: []domain.Edge{edge("a", "b")},
	}

	want := []string{"a", "b", "c", "d"}
	if got := orderIDs(t, g); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestOrder_RandomAcyclicGraphs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 50; iter++ {
		n := 2 + rng.Intn(12)
		g := &domain.Graph{}
		for i := 0; i < n; i++ {
			g.Nodes = append(g.Nodes, textNode(string(rune('a'+i))))
		}
		// рёбра только вперёд по случайной перестановке — граф ацикличен
		perm := rng.Perm(n)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if rng.Intn(3) == 0 {
					g.Edges = append(g.Edges, portEdge(g.Nodes[perm[i]].ID, g.Nodes[perm[j]].ID, "images"))
				}
			}
		}

		ids := orderIDs(t, g)
		if len(ids) != n {
			t.Fatalf("expected %d nodes, got %d", n, len(ids))
		}

		pos := make(map[string]int, n)
		for i, id := range ids {
			if _, dup := pos[id]; dup {
				t.Fatalf("node %s appears twice", id)
			}
			pos[id] = i
		}
		for _, e := range g.Edges {
			if pos[e.Source] >= pos[e.Target] {
				t.Fatalf("edge %s -> %s violated in order %v", e.Source, e.Target, ids)
			}
		}
	}
}

func TestOrder_EmptyGraph(t *testing.T) {
	if got := orderIDs(t, &domain.Graph{}); len(got) != 0 {
		t.Errorf("expected empty order, got %v", got)
	}
}
