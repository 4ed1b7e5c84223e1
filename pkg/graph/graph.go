// Package graph is a small workflow engine with declared channels,
// conditional fan-out, and reducer-based merge semantics. A graph is built
// once from a closed set of node identifiers, compiled with validation, and
// then run any number of times. Each run threads an immutable state value
// through the nodes: a node receives a snapshot and returns a partial
// update; the engine merges updates with the caller-supplied Apply.
package graph

import (
	"context"
	"fmt"

	"copilot/pkg/logx"
)

// NodeID names a node in a compiled graph. The set of valid IDs is closed
// at compile time; routers may only return declared IDs.
type NodeID string

// End is the terminal marker. Routing to End finishes that path of the run.
const End NodeID = "__end__"

// Node is one unit of work. It must not mutate the snapshot; all writes go
// through the returned update. Expected failures (a lookup missing, a tool
// timing out) are handled inside the node with a partial update; a returned
// error aborts the whole run.
type Node[S, U any] func(ctx context.Context, snapshot S) (U, error)

// Router decides the next targets from a conditional point. It must be pure
// and must return at least one declared target; the convergence target (a
// join or End) stands in for "nothing to do".
type Router[S any] func(snapshot S) []NodeID

// Config supplies the state semantics for a graph.
type Config[S, U any] struct {
	// Apply merges one update into the state and returns the new state.
	Apply func(S, U) S
	// Clone returns a deep copy handed to nodes as their snapshot. When
	// nil, the state value is passed as-is (fine for value types that
	// nodes treat as read-only).
	Clone func(S) S
	// Observer receives per-node timing events. Optional.
	Observer Observer
}

// Builder accumulates nodes and edges before Compile.
type Builder[S, U any] struct {
	cfg     Config[S, U]
	nodes   map[NodeID]Node[S, U]
	order   []NodeID
	edges   map[NodeID]NodeID
	routers map[NodeID]routerEntry[S]
	entry   NodeID
	errs    []error
}

type routerEntry[S any] struct {
	route   Router[S]
	targets map[NodeID]bool
}

// NewBuilder creates a graph builder. Apply is required.
func NewBuilder[S, U any](cfg Config[S, U]) *Builder[S, U] {
	return &Builder[S, U]{
		cfg:     cfg,
		nodes:   make(map[NodeID]Node[S, U]),
		edges:   make(map[NodeID]NodeID),
		routers: make(map[NodeID]routerEntry[S]),
	}
}

// AddNode registers a node under id.
func (b *Builder[S, U]) AddNode(id NodeID, fn Node[S, U]) *Builder[S, U] {
	if id == End {
		b.errs = append(b.errs, fmt.Errorf("node id %q is reserved", End))
		return b
	}
	if _, exists := b.nodes[id]; exists {
		b.errs = append(b.errs, fmt.Errorf("node %q registered twice", id))
		return b
	}
	if fn == nil {
		b.errs = append(b.errs, fmt.Errorf("node %q has nil function", id))
		return b
	}
	b.nodes[id] = fn
	b.order = append(b.order, id)
	return b
}

// AddEdge declares a static successor for from.
func (b *Builder[S, U]) AddEdge(from, to NodeID) *Builder[S, U] {
	if _, dup := b.edges[from]; dup {
		b.errs = append(b.errs, fmt.Errorf("node %q already has a static edge", from))
		return b
	}
	if _, dup := b.routers[from]; dup {
		b.errs = append(b.errs, fmt.Errorf("node %q already has conditional edges", from))
		return b
	}
	b.edges[from] = to
	return b
}

// AddConditionalEdges declares a router for from with its closed target set.
func (b *Builder[S, U]) AddConditionalEdges(from NodeID, route Router[S], targets []NodeID) *Builder[S, U] {
	if _, dup := b.edges[from]; dup {
		b.errs = append(b.errs, fmt.Errorf("node %q already has a static edge", from))
		return b
	}
	if _, dup := b.routers[from]; dup {
		b.errs = append(b.errs, fmt.Errorf("node %q already has conditional edges", from))
		return b
	}
	if route == nil || len(targets) == 0 {
		b.errs = append(b.errs, fmt.Errorf("node %q: conditional edges need a router and targets", from))
		return b
	}
	set := make(map[NodeID]bool, len(targets))
	for _, t := range targets {
		set[t] = true
	}
	b.routers[from] = routerEntry[S]{route: route, targets: set}
	return b
}

// SetEntry declares the run's entry node.
func (b *Builder[S, U]) SetEntry(id NodeID) *Builder[S, U] {
	b.entry = id
	return b
}

// Graph is a compiled, immutable graph ready to run.
type Graph[S, U any] struct {
	cfg     Config[S, U]
	nodes   map[NodeID]Node[S, U]
	order   []NodeID
	edges   map[NodeID]NodeID
	routers map[NodeID]routerEntry[S]
	entry   NodeID
	preds   map[NodeID]int
	reach   map[NodeID]map[NodeID]bool
	logger  *logx.Logger
}

// Compile validates the declared wiring and freezes the graph: every edge
// endpoint and router target must be a declared node or End, the entry must
// be set, and predecessor counts and static reachability are precomputed
// for join scheduling.
func (b *Builder[S, U]) Compile() (*Graph[S, U], error) {
	if len(b.errs) > 0 {
		return nil, execErrf("", "invalid graph: %v", b.errs[0])
	}
	if b.cfg.Apply == nil {
		return nil, execErrf("", "Apply function is required")
	}
	if b.entry == "" {
		return nil, execErrf("", "entry node not set")
	}
	if _, ok := b.nodes[b.entry]; !ok {
		return nil, execErrf(b.entry, "entry node not declared")
	}

	declared := func(id NodeID) bool {
		if id == End {
			return true
		}
		_, ok := b.nodes[id]
		return ok
	}

	preds := make(map[NodeID]int, len(b.nodes))
	succ := make(map[NodeID][]NodeID, len(b.nodes))
	for from, to := range b.edges {
		if !declared(from) || !declared(to) {
			return nil, execErrf(from, "edge %q -> %q references undeclared node", from, to)
		}
		preds[to]++
		succ[from] = append(succ[from], to)
	}
	for from, entry := range b.routers {
		if !declared(from) {
			return nil, execErrf(from, "conditional edges from undeclared node")
		}
		for t := range entry.targets {
			if !declared(t) {
				return nil, execErrf(from, "router target %q not declared", t)
			}
			preds[t]++
			succ[from] = append(succ[from], t)
		}
	}
	for id := range b.nodes {
		if _, hasEdge := b.edges[id]; hasEdge {
			continue
		}
		if _, hasRouter := b.routers[id]; hasRouter {
			continue
		}
		return nil, execErrf(id, "node has no outgoing edge")
	}

	// Transitive reachability over declared edges, used to defer joins
	// while any live node can still reach them.
	reach := make(map[NodeID]map[NodeID]bool, len(b.nodes))
	var visit func(from NodeID, seen map[NodeID]bool)
	visit = func(from NodeID, seen map[NodeID]bool) {
		for _, next := range succ[from] {
			if next == End || seen[next] {
				continue
			}
			seen[next] = true
			visit(next, seen)
		}
	}
	for id := range b.nodes {
		seen := make(map[NodeID]bool)
		visit(id, seen)
		reach[id] = seen
	}

	cfg := b.cfg
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}

	return &Graph[S, U]{
		cfg:     cfg,
		nodes:   b.nodes,
		order:   b.order,
		edges:   b.edges,
		routers: b.routers,
		entry:   b.entry,
		preds:   preds,
		reach:   reach,
		logger:  logx.NewLogger("graph"),
	}, nil
}

// isJoin reports whether id has more than one declared predecessor.
func (g *Graph[S, U]) isJoin(id NodeID) bool {
	return g.preds[id] > 1
}

// canReach reports whether from can reach to via any declared path.
func (g *Graph[S, U]) canReach(from, to NodeID) bool {
	return g.reach[from][to]
}
