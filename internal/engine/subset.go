package engine

import (
	"fmt"

	"github.com/shaiso/Weave/internal/domain"
)

// UpstreamClosure возвращает множество узлов, от которых транзитивно
// зависят targets, включая сами targets.
//
// Обход идёт по рёбрам в обратном направлении. Неизвестный target
// даёт *ValidationError с ErrUnknownTarget.
func UpstreamClosure(g *domain.Graph, targets []string) (map[string]bool, error) {
	known := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		known[n.ID] = true
	}

	incoming := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		incoming[e.Target] = append(incoming[e.Target], e.Source)
	}

	closure := make(map[string]bool, len(targets))
	stack := make([]string, 0, len(targets))

	for _, id := range targets {
		if !known[id] {
			return nil, NewValidationError(id, "targets",
				fmt.Sprintf("target node %q not found in graph", id), ErrUnknownTarget)
		}
		if !closure[id] {
			closure[id] = true
			stack = append(stack, id)
		}
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, src := range incoming[id] {
			if !closure[src] {
				closure[src] = true
				stack = append(stack, src)
			}
		}
	}

	return closure, nil
}

// Restrict возвращает новый граф, содержащий только узлы из keep
// и рёбра между ними. Порядок объявления сохраняется.
func Restrict(g *domain.Graph, keep map[string]bool) *domain.Graph {
	out := &domain.Graph{
		Nodes: make([]domain.Node, 0, len(keep)),
		Edges: make([]domain.Edge, 0, len(g.Edges)),
	}

	for _, n := range g.Nodes {
		if keep[n.ID] {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range g.Edges {
		if keep[e.Source] && keep[e.Target] {
			out.Edges = append(out.Edges, e)
		}
	}

	return out
}

// Subgraph валидирует граф и возвращает его часть, нужную для
// выполнения targets.
func Subgraph(g *domain.Graph, targets []string) (*domain.Graph, error) {
	if err := Validate(g); err != nil {
		return nil, err
	}

	closure, err := UpstreamClosure(g, targets)
	if err != nil {
		return nil, err
	}

	return Restrict(g, closure), nil
}
