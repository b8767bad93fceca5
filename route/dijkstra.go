package route

import "container/heap"

// No priority-queue library appears anywhere in the retrieval pack (the
// original's dijkstra is hand-rolled over std::priority_queue); this is
// a direct stdlib stand-in for that, not a departure from ecosystem
// convention — there is nothing in the pack to prefer over container/heap
// for this.

type pqItem struct {
	priority uint32
	iface    int
	parent   int // index into the visited-node slice, -1 for none
}

type priorityQueue []pqItem

func (q priorityQueue) Len() int            { return len(q) }
func (q priorityQueue) Less(i, j int) bool  { return q[i].priority < q[j].priority }
func (q priorityQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x interface{}) { *q = append(*q, x.(pqItem)) }
func (q *priorityQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// dijkstra finds the cheapest path of graph edges (identified by an
// arbitrary int id, usually topology.InterfaceID) from start, expanding
// via edgesOf, routing each edge to its destination node via target,
// stopping at the first edge for which accept reports true, and never
// considering an edge for which filterOut reports true. It mirrors the
// generic dijkstra<Edge,Weight,Node,...> template of the original
// RouteConstruction.cpp: a min-priority-queue search over edges rather
// than nodes, with back-pointers reconstructing the winning path.
func dijkstra(start int, edgesOf func(node int) []int, target func(edge int) int, accept, filterOut func(edge int) bool, cost func(edge int) uint32) ([]int, bool) {
	var visited []pqItem
	q := &priorityQueue{}
	heap.Init(q)
	seen := map[int]bool{start: true}

	for _, e := range edgesOf(start) {
		if filterOut(e) {
			continue
		}
		heap.Push(q, pqItem{priority: 0, iface: e, parent: -1})
	}

	for q.Len() > 0 {
		item := heap.Pop(q).(pqItem)
		if accept(item.iface) {
			path := []int{item.iface}
			for p := item.parent; p != -1; p = visited[p].parent {
				path = append([]int{visited[p].iface}, path...)
			}
			return path, true
		}
		node := target(item.iface)
		if seen[node] {
			continue
		}
		seen[node] = true
		idx := len(visited)
		visited = append(visited, item)
		for _, e := range edgesOf(node) {
			if filterOut(e) || seen[target(e)] {
				continue
			}
			heap.Push(q, pqItem{priority: item.priority + cost(e), iface: e, parent: idx})
		}
	}
	return nil, false
}
