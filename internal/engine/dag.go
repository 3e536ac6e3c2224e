package engine

import (
	"container/heap"

	"github.com/shaiso/Weave/internal/domain"
)

// Node — узел в DAG.
type Node struct {
	// Def — определение узла из графа.
	Def *domain.Node

	// ID — идентификатор узла.
	ID string

	// Index — позиция узла в списке объявления (для tie-break).
	Index int

	// InDegree — количество уникальных узлов-зависимостей.
	InDegree int

	// DependsOn — узлы, от которых зависит этот узел.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node
}

// DAG — направленный ациклический граф узлов workflow.
type DAG struct {
	// Nodes — все узлы графа (nodeID → Node).
	Nodes map[string]*Node

	// Declared — узлы в порядке объявления.
	Declared []*Node

	// RootNodes — узлы без зависимостей, в порядке объявления.
	RootNodes []*Node

	// Order — топологически отсортированный список узлов.
	Order []*Node
}

// BuildDAG валидирует граф и строит DAG.
//
// Возвращает *ValidationError для структурных ошибок
// и *CycleError, если граф содержит цикл.
func BuildDAG(g *domain.Graph) (*DAG, error) {
	if err := Validate(g); err != nil {
		return nil, err
	}

	dag := &DAG{
		Nodes:     make(map[string]*Node, len(g.Nodes)),
		Declared:  make([]*Node, 0, len(g.Nodes)),
		RootNodes: make([]*Node, 0),
	}

	// Первый проход: создаём все узлы
	for i := range g.Nodes {
		node := &Node{
			Def:        &g.Nodes[i],
			ID:         g.Nodes[i].ID,
			Index:      i,
			DependsOn:  make([]*Node, 0),
			Dependents: make([]*Node, 0),
		}
		dag.Nodes[node.ID] = node
		dag.Declared = append(dag.Declared, node)
	}

	// Второй проход: связываем узлы по рёбрам
	for _, edge := range g.Edges {
		dag.addEdge(dag.Nodes[edge.Source], dag.Nodes[edge.Target])
	}

	dag.findRootNodes()

	order, err := dag.topologicalSort()
	if err != nil {
		return nil, err
	}
	dag.Order = order

	return dag, nil
}

// Order возвращает узлы графа в порядке выполнения.
func Order(g *domain.Graph) ([]domain.Node, error) {
	dag, err := BuildDAG(g)
	if err != nil {
		return nil, err
	}
	return dag.OrderedNodes(), nil
}

// addEdge добавляет ребро между узлами.
// Несколько рёбер между одной парой (в разные порты) учитываются один раз.
func (d *DAG) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return // уже связаны
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// findRootNodes находит узлы без входящих рёбер.
func (d *DAG) findRootNodes() {
	d.RootNodes = make([]*Node, 0)
	for _, node := range d.Declared {
		if node.InDegree == 0 {
			d.RootNodes = append(d.RootNodes, node)
		}
	}
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
//
// Из нескольких готовых узлов первым выбирается объявленный раньше,
// поэтому порядок детерминирован.
func (d *DAG) topologicalSort() ([]*Node, error) {
	// Копируем inDegree, чтобы не модифицировать оригинал
	inDegree := make(map[string]int, len(d.Nodes))
	for id, node := range d.Nodes {
		inDegree[id] = node.InDegree
	}

	ready := &readyQueue{}
	for _, node := range d.RootNodes {
		heap.Push(ready, node)
	}

	order := make([]*Node, 0, len(d.Nodes))

	for ready.Len() > 0 {
		node := heap.Pop(ready).(*Node)
		order = append(order, node)

		// Уменьшаем inDegree у зависимых узлов
		for _, dependent := range node.Dependents {
			inDegree[dependent.ID]--
			if inDegree[dependent.ID] == 0 {
				heap.Push(ready, dependent)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(d.Nodes) {
		remaining := make([]string, 0, len(d.Nodes)-len(order))
		for _, node := range d.Declared {
			if inDegree[node.ID] > 0 {
				remaining = append(remaining, node.ID)
			}
		}
		return nil, &CycleError{Remaining: remaining}
	}

	return order, nil
}

// OrderedNodes возвращает определения узлов в топологическом порядке.
func (d *DAG) OrderedNodes() []domain.Node {
	nodes := make([]domain.Node, len(d.Order))
	for i, node := range d.Order {
		nodes[i] = *node.Def
	}
	return nodes
}

// GetNode возвращает узел по ID.
func (d *DAG) GetNode(id string) *Node {
	return d.Nodes[id]
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.Nodes)
}

// readyQueue — min-heap готовых узлов по индексу объявления.
type readyQueue []*Node

func (q readyQueue) Len() int           { return len(q) }
func (q readyQueue) Less(i, j int) bool { return q[i].Index < q[j].Index }
func (q readyQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *readyQueue) Push(x any) {
	*q = append(*q, x.(*Node))
}

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	node := old[n-1]
	*q = old[:n-1]
	return node
}
