package graph

import (
	"sort"

	"github.com/google/uuid"

	"github.com/vselutin/lineage/internal/domain"
)

// Node — узел в DAG зависимостей.
type Node struct {
	// Activity — записанное выполнение, которое представляет узел.
	Activity *domain.Activity

	// InDegree — количество входящих рёбер (поставщиков входов).
	InDegree int

	// DependsOn — узлы, породившие входы этого узла.
	DependsOn []*Node

	// Dependents — узлы, потребившие выходы этого узла.
	Dependents []*Node
}

// ID возвращает идентификатор activity узла.
func (n *Node) ID() uuid.UUID {
	return n.Activity.ID
}

// DAG — направленный ациклический граф записанных выполнений.
type DAG struct {
	// Nodes — все узлы графа (activity ID → Node).
	Nodes map[uuid.UUID]*Node

	// RootNodes — узлы без поставщиков (точки входа).
	RootNodes []*Node

	// Order — топологически отсортированный список узлов.
	// Порядок детерминирован: при равенстве — по времени старта,
	// затем по ID.
	Order []*Node
}

func newDAG() *DAG {
	return &DAG{
		Nodes:     make(map[uuid.UUID]*Node),
		RootNodes: make([]*Node, 0),
	}
}

// addNode добавляет узел для activity, если его ещё нет.
func (d *DAG) addNode(activity *domain.Activity) *Node {
	if node, ok := d.Nodes[activity.ID]; ok {
		return node
	}
	node := &Node{
		Activity:   activity,
		DependsOn:  make([]*Node, 0),
		Dependents: make([]*Node, 0),
	}
	d.Nodes[activity.ID] = node
	return node
}

// addEdge добавляет ребро from → to.
// Дубликаты игнорируются, чтобы не задваивать InDegree.
func (d *DAG) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.ID() == from.ID() {
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
	for _, node := range d.Nodes {
		if node.InDegree == 0 {
			d.RootNodes = append(d.RootNodes, node)
		}
	}
	sortNodes(d.RootNodes)
}

// topologicalSort выполняет топологическую сортировку (алгоритм Кана).
//
// Очередь держится отсортированной, чтобы порядок был детерминирован
// независимо от порядка обхода map.
func (d *DAG) topologicalSort() []*Node {
	inDegree := make(map[uuid.UUID]int, len(d.Nodes))
	for id, node := range d.Nodes {
		inDegree[id] = node.InDegree
	}

	queue := make([]*Node, len(d.RootNodes))
	copy(queue, d.RootNodes)

	order := make([]*Node, 0, len(d.Nodes))

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		ready := make([]*Node, 0)
		for _, dependent := range node.Dependents {
			inDegree[dependent.ID()]--
			if inDegree[dependent.ID()] == 0 {
				ready = append(ready, dependent)
			}
		}
		sortNodes(ready)
		queue = append(queue, ready...)
	}

	// Циклы среди activities невозможны по построению (рёбра идут
	// строго вперёд по времени старта), поэтому order всегда полон.
	return order
}

// sortNodes сортирует узлы по времени старта, затем по ID.
func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Activity.Before(nodes[j].Activity)
	})
}

// GetNode возвращает узел по ID activity.
func (d *DAG) GetNode(id uuid.UUID) *Node {
	return d.Nodes[id]
}

// Size возвращает количество узлов в DAG.
func (d *DAG) Size() int {
	return len(d.Nodes)
}

// LatestProducer возвращает узел, чья generation по данному пути
// не вытеснена более поздней, или nil.
func (d *DAG) LatestProducer(path string) *Node {
	var latest *Node
	for _, node := range d.Nodes {
		if !node.Activity.GeneratesPath(path) {
			continue
		}
		if latest == nil || latest.Activity.Before(node.Activity) {
			latest = node
		}
	}
	return latest
}

// Descendants возвращает множество ID всех узлов, транзитивно
// зависящих от указанного (сам узел не включается).
func (d *DAG) Descendants(id uuid.UUID) map[uuid.UUID]bool {
	result := make(map[uuid.UUID]bool)
	start, ok := d.Nodes[id]
	if !ok {
		return result
	}

	stack := append([]*Node(nil), start.Dependents...)
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if result[node.ID()] {
			continue
		}
		result[node.ID()] = true
		stack = append(stack, node.Dependents...)
	}
	return result
}

// Ancestors возвращает множество ID всех узлов, от которых
// транзитивно зависит указанный (сам узел не включается).
func (d *DAG) Ancestors(id uuid.UUID) map[uuid.UUID]bool {
	result := make(map[uuid.UUID]bool)
	start, ok := d.Nodes[id]
	if !ok {
		return result
	}

	stack := append([]*Node(nil), start.DependsOn...)
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if result[node.ID()] {
			continue
		}
		result[node.ID()] = true
		stack = append(stack, node.DependsOn...)
	}
	return result
}
