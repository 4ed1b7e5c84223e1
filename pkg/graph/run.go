package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Observer receives per-node timing events during a run. Implementations
// must be safe for concurrent use; nodes in one fan-out group finish in
// arbitrary order.
type Observer interface {
	NodeStarted(generation string, node NodeID)
	NodeFinished(generation string, node NodeID, d time.Duration, err error)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) NodeStarted(string, NodeID)                        {}
func (NopObserver) NodeFinished(string, NodeID, time.Duration, error) {}

// TraceEvent records one node execution within a run.
type TraceEvent struct {
	Generation string
	Node       NodeID
	Start      time.Time
	Duration   time.Duration
}

// Run executes the graph from the entry node against initial and returns
// the final state plus the engine-level trace.
//
// Scheduling is superstep based: all nodes of the current frontier run
// concurrently against the same merged snapshot, then their updates are
// applied in the frontier's declared order, then routers are evaluated to
// form the next frontier. A join (a node with more than one declared
// predecessor) is held back while any live node can still reach it, so it
// runs exactly once per run with every activated predecessor merged.
//
// A node error or context cancellation aborts the run: in-flight siblings
// are cancelled and no partially merged state is returned.
func (g *Graph[S, U]) Run(ctx context.Context, initial S) (S, []TraceEvent, error) {
	var zero S

	generation := uuid.NewString()
	current := initial
	frontier := []NodeID{g.entry}
	pendingJoins := make(map[NodeID]bool)
	var trace []TraceEvent

	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return zero, nil, fmt.Errorf("run cancelled: %w", err)
		}
		g.logger.Debug("superstep generation=%s frontier=%v", generation, frontier)

		updates := make([]U, len(frontier))
		events := make([]TraceEvent, len(frontier))

		eg, stepCtx := errgroup.WithContext(ctx)
		for i, id := range frontier {
			fn := g.nodes[id]
			snapshot := current
			if g.cfg.Clone != nil {
				snapshot = g.cfg.Clone(current)
			}
			eg.Go(func() error {
				start := time.Now()
				g.cfg.Observer.NodeStarted(generation, id)
				u, err := fn(stepCtx, snapshot)
				d := time.Since(start)
				g.cfg.Observer.NodeFinished(generation, id, d, err)
				events[i] = TraceEvent{Generation: generation, Node: id, Start: start, Duration: d}
				if err != nil {
					return fmt.Errorf("node %q: %w", id, err)
				}
				updates[i] = u
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return zero, nil, err
		}
		if err := ctx.Err(); err != nil {
			return zero, nil, fmt.Errorf("run cancelled: %w", err)
		}

		// Merge in declared frontier order, never completion order.
		for i := range frontier {
			current = g.cfg.Apply(current, updates[i])
		}
		trace = append(trace, events...)

		next, err := g.successors(frontier, current, pendingJoins)
		if err != nil {
			return zero, nil, err
		}
		next = g.promoteJoins(next, pendingJoins)
		if len(next) == 0 && len(pendingJoins) > 0 {
			return zero, nil, execErrf("", "joins %v can never be satisfied", keysInOrder(pendingJoins, g.order))
		}
		frontier = next
	}

	return current, trace, nil
}

// successors evaluates routing for each completed frontier node. Join
// targets are parked in pendingJoins; everything else lands in the next
// frontier in declared order, deduplicated.
func (g *Graph[S, U]) successors(frontier []NodeID, current S, pendingJoins map[NodeID]bool) ([]NodeID, error) {
	var next []NodeID
	inNext := make(map[NodeID]bool)

	for _, id := range frontier {
		targets, err := g.targetsFor(id, current)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			if t == End {
				continue
			}
			if g.isJoin(t) {
				pendingJoins[t] = true
				continue
			}
			if !inNext[t] {
				inNext[t] = true
				next = append(next, t)
			}
		}
	}
	return next, nil
}

func (g *Graph[S, U]) targetsFor(id NodeID, current S) ([]NodeID, error) {
	if to, ok := g.edges[id]; ok {
		return []NodeID{to}, nil
	}
	entry, ok := g.routers[id]
	if !ok {
		return nil, execErrf(id, "node has no outgoing edge")
	}
	targets := entry.route(current)
	if len(targets) == 0 {
		return nil, execErrf(id, "router returned no targets")
	}
	for _, t := range targets {
		if !entry.targets[t] {
			return nil, execErrf(id, "router returned undeclared target %q", t)
		}
	}
	return targets, nil
}

// promoteJoins moves every pending join that no live node can still reach
// into the next frontier. Liveness is static: a join stays parked while a
// frontier node or another pending join has a declared path to it.
func (g *Graph[S, U]) promoteJoins(next []NodeID, pendingJoins map[NodeID]bool) []NodeID {
	for _, join := range keysInOrder(pendingJoins, g.order) {
		blocked := false
		for _, n := range next {
			if g.canReach(n, join) {
				blocked = true
				break
			}
		}
		if !blocked {
			for other := range pendingJoins {
				if other != join && g.canReach(other, join) {
					blocked = true
					break
				}
			}
		}
		if !blocked {
			delete(pendingJoins, join)
			next = append(next, join)
		}
	}
	return next
}

// keysInOrder returns the set's members in node registration order.
func keysInOrder(set map[NodeID]bool, order []NodeID) []NodeID {
	out := make([]NodeID, 0, len(set))
	for _, id := range order {
		if set[id] {
			out = append(out, id)
		}
	}
	return out
}
