package core

import (
	"container/heap"
	"fmt"
	"sort"
	"sync"
	"time"
)

// UpLinkSource exposes the links currently carrying traffic.
type UpLinkSource interface {
	GetUpLinks() []*NetworkLink
}

// Route is one entry of a node's routing table.
type Route struct {
	Destination string
	NextHop     string
	Delay       time.Duration
	Hops        int
}

// ShortestDelayRouter builds global routing tables by running Dijkstra
// from every node over the up links, weighted by propagation delay.
type ShortestDelayRouter struct {
	src UpLinkSource

	mu         sync.RWMutex
	tables     map[string]map[string]Route
	generation int
	populated  bool
}

// NewShortestDelayRouter returns a router reading links from src.
func NewShortestDelayRouter(src UpLinkSource) *ShortestDelayRouter {
	return &ShortestDelayRouter{src: src, tables: map[string]map[string]Route{}}
}

// PopulateRoutingTables performs the initial table build.
func (r *ShortestDelayRouter) PopulateRoutingTables() error {
	if err := r.rebuild(); err != nil {
		return err
	}
	r.mu.Lock()
	r.populated = true
	r.mu.Unlock()
	return nil
}

// RecomputeRoutingTables rebuilds all tables from the current links.
func (r *ShortestDelayRouter) RecomputeRoutingTables() error {
	r.mu.RLock()
	populated := r.populated
	r.mu.RUnlock()
	if !populated {
		return fmt.Errorf("routing tables recomputed before being populated")
	}
	return r.rebuild()
}

// Generation counts table builds, including the initial populate.
func (r *ShortestDelayRouter) Generation() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Lookup returns the route from src to dst.
func (r *ShortestDelayRouter) Lookup(src, dst string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.tables[src][dst]
	return route, ok
}

// Table returns src's routes sorted by destination.
func (r *ShortestDelayRouter) Table(src string) []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Route, 0, len(r.tables[src]))
	for _, route := range r.tables[src] {
		out = append(out, route)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Destination < out[j].Destination })
	return out
}

type edge struct {
	to    string
	delay time.Duration
}

func (r *ShortestDelayRouter) rebuild() error {
	if r.src == nil {
		return fmt.Errorf("router has no link source")
	}

	adj := make(map[string][]edge)
	for _, l := range r.src.GetUpLinks() {
		adj[l.NodeA] = append(adj[l.NodeA], edge{to: l.NodeB, delay: l.Delay})
		adj[l.NodeB] = append(adj[l.NodeB], edge{to: l.NodeA, delay: l.Delay})
	}

	nodes := make([]string, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	tables := make(map[string]map[string]Route, len(nodes))
	for _, n := range nodes {
		tables[n] = dijkstra(adj, n)
	}

	r.mu.Lock()
	r.tables = tables
	r.generation++
	r.mu.Unlock()
	return nil
}

func dijkstra(adj map[string][]edge, src string) map[string]Route {
	best := map[string]Route{src: {Destination: src, NextHop: src}}
	pq := &routeQueue{{node: src}}

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(queued)
		if r, ok := best[cur.node]; ok && cur.delay > r.Delay {
			continue
		}
		for _, e := range adj[cur.node] {
			cand := cur.delay + e.delay
			if r, ok := best[e.to]; ok && r.Delay <= cand {
				continue
			}
			next := e.to
			if cur.node != src {
				next = best[cur.node].NextHop
			}
			best[e.to] = Route{Destination: e.to, NextHop: next, Delay: cand, Hops: cur.hops + 1}
			heap.Push(pq, queued{node: e.to, delay: cand, hops: cur.hops + 1})
		}
	}

	delete(best, src)
	return best
}

type queued struct {
	node  string
	delay time.Duration
	hops  int
}

type routeQueue []queued

func (q routeQueue) Len() int { return len(q) }
func (q routeQueue) Less(i, j int) bool {
	if q[i].delay == q[j].delay {
		return q[i].node < q[j].node
	}
	return q[i].delay < q[j].delay
}
func (q routeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *routeQueue) Push(x any)   { *q = append(*q, x.(queued)) }
func (q *routeQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
