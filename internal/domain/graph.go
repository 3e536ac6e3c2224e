package domain

// Edge — направленная зависимость по данным между двумя узлами.
//
// Порты различают несколько входов одного узла
// (например, systemPrompt и userMessage у LLM).
type Edge struct {
	// ID — идентификатор ребра на канвасе (опционально).
	ID string `json:"id,omitempty"`

	// Source — ID узла-источника.
	Source string `json:"source"`

	// Target — ID узла-приёмника.
	Target string `json:"target"`

	// SourcePort — выходной порт источника (опционально).
	SourcePort string `json:"sourceHandle,omitempty"`

	// TargetPort — входной порт приёмника (опционально).
	TargetPort string `json:"targetHandle,omitempty"`
}

// SameAs возвращает true, если рёбра совпадают по source, target и портам.
func (e Edge) SameAs(other Edge) bool {
	return e.Source == other.Source &&
		e.Target == other.Target &&
		e.SourcePort == other.SourcePort &&
		e.TargetPort == other.TargetPort
}

// Graph — неизменяемый снимок узлов и рёбер, передаваемый в один run.
//
// Движок никогда не модифицирует Graph.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node возвращает узел по ID.
func (g *Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NodeIDs возвращает ID узлов в порядке объявления.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// IncomingEdges возвращает рёбра, входящие в узел, в порядке объявления.
func (g *Graph) IncomingEdges(nodeID string) []Edge {
	edges := make([]Edge, 0)
	for _, e := range g.Edges {
		if e.Target == nodeID {
			edges = append(edges, e)
		}
	}
	return edges
}
