package engine

import (
	"fmt"

	"github.com/shaiso/Weave/internal/domain"
)

// Validate выполняет структурную валидацию графа.
//
// Проверяет:
// - Непустые и уникальные ID узлов
// - Что рёбра ссылаются на существующие узлы
// - Отсутствие петель (source == target)
// - Отсутствие дублирующихся рёбер
// - Что однозначный порт узла связан не более чем одним ребром
//
// Циклы проверяются при построении DAG.
func Validate(g *domain.Graph) error {
	if g == nil {
		return nil
	}

	nodeIDs := make(map[string]bool, len(g.Nodes))
	for i := range g.Nodes {
		if err := validateNode(&g.Nodes[i], nodeIDs); err != nil {
			return err
		}
	}

	return validateEdges(g.Edges, nodeIDs)
}

// validateNode проверяет ID узла.
// nodeIDs — уже встреченные ID (для проверки уникальности).
func validateNode(node *domain.Node, nodeIDs map[string]bool) error {
	if node.ID == "" {
		return NewValidationError("", "id", "node has empty ID", ErrEmptyNodeID)
	}

	if nodeIDs[node.ID] {
		return NewValidationError(node.ID, "id",
			fmt.Sprintf("duplicate node ID: %s", node.ID), ErrDuplicateNodeID)
	}
	nodeIDs[node.ID] = true

	return nil
}

// validateEdges проверяет рёбра графа.
func validateEdges(edges []domain.Edge, nodeIDs map[string]bool) error {
	bindings := make(map[string]bool, len(edges))

	for i, edge := range edges {
		if !nodeIDs[edge.Source] {
			return NewValidationError(edge.Target, "source",
				fmt.Sprintf("edge %d references unknown source node: %q", i, edge.Source), ErrMissingNode)
		}
		if !nodeIDs[edge.Target] {
			return NewValidationError(edge.Source, "target",
				fmt.Sprintf("edge %d references unknown target node: %q", i, edge.Target), ErrMissingNode)
		}

		if edge.Source == edge.Target {
			return NewValidationError(edge.Source, "target",
				"edge connects node to itself", ErrSelfLoop)
		}

		for j := 0; j < i; j++ {
			if edges[j].SameAs(edge) {
				return NewValidationError(edge.Target, "edges",
					fmt.Sprintf("duplicate edge %s -> %s", edge.Source, edge.Target), ErrDuplicateEdge)
			}
		}

		port := CanonicalPort(edge.TargetPort)
		if IsMultiPort(port) {
			continue
		}
		key := edge.Target + "\x00" + port
		if bindings[key] {
			return NewValidationError(edge.Target, "targetHandle",
				fmt.Sprintf("port %s is bound more than once", port), ErrDuplicateBinding)
		}
		bindings[key] = true
	}

	return nil
}
