package graph

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testState is a minimal two-channel document: an append-only log and a
// flag map read by routers.
type testState struct {
	Log   []string
	Flags map[string]bool
}

type testUpdate struct {
	Log []string
}

func testApply(s testState, u testUpdate) testState {
	out := s
	if len(u.Log) > 0 {
		merged := make([]string, 0, len(s.Log)+len(u.Log))
		merged = append(merged, s.Log...)
		merged = append(merged, u.Log...)
		out.Log = merged
	}
	return out
}

func testClone(s testState) testState {
	out := s
	out.Log = append([]string(nil), s.Log...)
	if s.Flags != nil {
		out.Flags = make(map[string]bool, len(s.Flags))
		for k, v := range s.Flags {
			out.Flags[k] = v
		}
	}
	return out
}

func logNode(name string) Node[testState, testUpdate] {
	return func(ctx context.Context, s testState) (testUpdate, error) {
		return testUpdate{Log: []string{name}}, nil
	}
}

// countingNode tracks invocations so tests can assert skipped branches
// never run and joins run exactly once.
func countingNode(name string, counts map[string]*int, mu *sync.Mutex) Node[testState, testUpdate] {
	return func(ctx context.Context, s testState) (testUpdate, error) {
		mu.Lock()
		*counts[name]++
		mu.Unlock()
		return testUpdate{Log: []string{name}}, nil
	}
}

// fanOutGraph builds entry -> dispatch -> {a, b, c} -> join -> tail -> End,
// where the dispatch router activates the branches whose flag is set and
// falls back to the join when none are.
func fanOutGraph(t *testing.T, counts map[string]*int, mu *sync.Mutex) *Graph[testState, testUpdate] {
	t.Helper()

	b := NewBuilder[testState, testUpdate](Config[testState, testUpdate]{
		Apply: testApply,
		Clone: testClone,
	})
	for _, name := range []string{"dispatch", "a", "b", "c", "join", "tail"} {
		b.AddNode(NodeID(name), countingNode(name, counts, mu))
	}
	b.SetEntry("dispatch")
	b.AddConditionalEdges("dispatch", func(s testState) []NodeID {
		var targets []NodeID
		for _, name := range []string{"a", "b", "c"} {
			if s.Flags[name] {
				targets = append(targets, NodeID(name))
			}
		}
		if len(targets) == 0 {
			return []NodeID{"join"}
		}
		return targets
	}, []NodeID{"a", "b", "c", "join"})
	b.AddEdge("a", "join")
	b.AddEdge("b", "join")
	b.AddEdge("c", "join")
	b.AddEdge("join", "tail")
	b.AddEdge("tail", End)

	g, err := b.Compile()
	require.NoError(t, err)
	return g
}

func newCounts(names ...string) (map[string]*int, *sync.Mutex) {
	counts := make(map[string]*int, len(names))
	for _, n := range names {
		v := 0
		counts[n] = &v
	}
	return counts, &sync.Mutex{}
}

func TestRunLinearOrder(t *testing.T) {
	b := NewBuilder[testState, testUpdate](Config[testState, testUpdate]{Apply: testApply})
	b.AddNode("one", logNode("one"))
	b.AddNode("two", logNode("two"))
	b.AddNode("three", logNode("three"))
	b.SetEntry("one")
	b.AddEdge("one", "two")
	b.AddEdge("two", "three")
	b.AddEdge("three", End)

	g, err := b.Compile()
	require.NoError(t, err)

	final, trace, err := g.Run(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, final.Log)
	require.Len(t, trace, 3)
	assert.Equal(t, NodeID("one"), trace[0].Node)
	assert.NotEmpty(t, trace[0].Generation)
}

func TestJoinRunsOnceForEachActivationCount(t *testing.T) {
	cases := []struct {
		name  string
		flags map[string]bool
	}{
		{"zero predecessors activated", map[string]bool{}},
		{"one predecessor activated", map[string]bool{"b": true}},
		{"all predecessors activated", map[string]bool{"a": true, "b": true, "c": true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			counts, mu := newCounts("dispatch", "a", "b", "c", "join", "tail")
			g := fanOutGraph(t, counts, mu)

			final, _, err := g.Run(context.Background(), testState{Flags: tc.flags})
			require.NoError(t, err)

			assert.Equal(t, 1, *counts["join"])
			assert.Equal(t, 1, *counts["tail"])
			for _, name := range []string{"a", "b", "c"} {
				want := 0
				if tc.flags[name] {
					want = 1
				}
				assert.Equal(t, want, *counts[name], name)
			}
			assert.Equal(t, "tail", final.Log[len(final.Log)-1])
		})
	}
}

func TestFanOutMergeFollowsDeclaredOrder(t *testing.T) {
	// Branch a sleeps so it finishes last; its update must still be
	// applied first because the router declared it first.
	b := NewBuilder[testState, testUpdate](Config[testState, testUpdate]{Apply: testApply, Clone: testClone})
	b.AddNode("dispatch", logNode("dispatch"))
	b.AddNode("a", func(ctx context.Context, s testState) (testUpdate, error) {
		time.Sleep(30 * time.Millisecond)
		return testUpdate{Log: []string{"a"}}, nil
	})
	b.AddNode("b", logNode("b"))
	b.AddNode("join", logNode("join"))
	b.SetEntry("dispatch")
	b.AddConditionalEdges("dispatch", func(testState) []NodeID {
		return []NodeID{"a", "b"}
	}, []NodeID{"a", "b", "join"})
	b.AddEdge("a", "join")
	b.AddEdge("b", "join")
	b.AddEdge("join", End)

	g, err := b.Compile()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		final, _, err := g.Run(context.Background(), testState{})
		require.NoError(t, err)
		assert.Equal(t, []string{"dispatch", "a", "b", "join"}, final.Log)
	}
}

func TestEmptyFanOutRoutesToJoinWithoutDeadlock(t *testing.T) {
	counts, mu := newCounts("dispatch", "a", "b", "c", "join", "tail")
	g := fanOutGraph(t, counts, mu)

	done := make(chan struct{})
	var final testState
	var runErr error
	go func() {
		final, _, runErr = g.Run(context.Background(), testState{Flags: nil})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run deadlocked on empty fan-out")
	}
	require.NoError(t, runErr)
	assert.Equal(t, []string{"dispatch", "join", "tail"}, final.Log)
}

func TestRouterReturningNothingIsExecutorError(t *testing.T) {
	b := NewBuilder[testState, testUpdate](Config[testState, testUpdate]{Apply: testApply})
	b.AddNode("start", logNode("start"))
	b.AddNode("next", logNode("next"))
	b.SetEntry("start")
	b.AddConditionalEdges("start", func(testState) []NodeID { return nil }, []NodeID{"next"})
	b.AddEdge("next", End)

	g, err := b.Compile()
	require.NoError(t, err)

	_, _, err = g.Run(context.Background(), testState{})
	require.Error(t, err)
	assert.True(t, IsExecutorError(err))
}

func TestRouterReturningUndeclaredTargetIsExecutorError(t *testing.T) {
	b := NewBuilder[testState, testUpdate](Config[testState, testUpdate]{Apply: testApply})
	b.AddNode("start", logNode("start"))
	b.AddNode("next", logNode("next"))
	b.SetEntry("start")
	b.AddConditionalEdges("start", func(testState) []NodeID {
		return []NodeID{"elsewhere"}
	}, []NodeID{"next"})
	b.AddEdge("next", End)

	g, err := b.Compile()
	require.NoError(t, err)

	_, _, err = g.Run(context.Background(), testState{})
	require.Error(t, err)
	assert.True(t, IsExecutorError(err))
	assert.Contains(t, err.Error(), "elsewhere")
}

func TestCompileRejectsBrokenWiring(t *testing.T) {
	t.Run("missing entry", func(t *testing.T) {
		b := NewBuilder[testState, testUpdate](Config[testState, testUpdate]{Apply: testApply})
		b.AddNode("a", logNode("a"))
		b.AddEdge("a", End)
		_, err := b.Compile()
		require.Error(t, err)
	})

	t.Run("edge to undeclared node", func(t *testing.T) {
		b := NewBuilder[testState, testUpdate](Config[testState, testUpdate]{Apply: testApply})
		b.AddNode("a", logNode("a"))
		b.SetEntry("a")
		b.AddEdge("a", "ghost")
		_, err := b.Compile()
		require.Error(t, err)
		assert.True(t, IsExecutorError(err))
	})

	t.Run("node without outgoing edge", func(t *testing.T) {
		b := NewBuilder[testState, testUpdate](Config[testState, testUpdate]{Apply: testApply})
		b.AddNode("a", logNode("a"))
		b.AddNode("b", logNode("b"))
		b.SetEntry("a")
		b.AddEdge("a", "b")
		_, err := b.Compile()
		require.Error(t, err)
	})
}

func TestNodeErrorAbortsRunWithoutPartialState(t *testing.T) {
	boom := errors.New("boom")
	b := NewBuilder[testState, testUpdate](Config[testState, testUpdate]{Apply: testApply, Clone: testClone})
	b.AddNode("dispatch", logNode("dispatch"))
	b.AddNode("ok", logNode("ok"))
	b.AddNode("bad", func(ctx context.Context, s testState) (testUpdate, error) {
		return testUpdate{}, boom
	})
	b.AddNode("join", logNode("join"))
	b.SetEntry("dispatch")
	b.AddConditionalEdges("dispatch", func(testState) []NodeID {
		return []NodeID{"ok", "bad"}
	}, []NodeID{"ok", "bad", "join"})
	b.AddEdge("ok", "join")
	b.AddEdge("bad", "join")
	b.AddEdge("join", End)

	g, err := b.Compile()
	require.NoError(t, err)

	final, trace, err := g.Run(context.Background(), testState{})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad")
	assert.Empty(t, final.Log)
	assert.Nil(t, trace)
}

func TestCancellationAbortsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	b := NewBuilder[testState, testUpdate](Config[testState, testUpdate]{Apply: testApply})
	b.AddNode("slow", func(ctx context.Context, s testState) (testUpdate, error) {
		cancel()
		select {
		case <-ctx.Done():
			return testUpdate{}, ctx.Err()
		case <-time.After(5 * time.Second):
			return testUpdate{Log: []string{"slow"}}, nil
		}
	})
	b.SetEntry("slow")
	b.AddEdge("slow", End)

	g, err := b.Compile()
	require.NoError(t, err)

	final, _, err := g.Run(ctx, testState{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, final.Log)
}

func TestSnapshotIsolation(t *testing.T) {
	// Two concurrent branches mutate their snapshot's map; neither write
	// may leak into the merged document.
	b := NewBuilder[testState, testUpdate](Config[testState, testUpdate]{Apply: testApply, Clone: testClone})
	b.AddNode("dispatch", logNode("dispatch"))
	mutator := func(name string) Node[testState, testUpdate] {
		return func(ctx context.Context, s testState) (testUpdate, error) {
			if s.Flags != nil {
				s.Flags[name] = true
			}
			return testUpdate{Log: []string{name}}, nil
		}
	}
	b.AddNode("a", mutator("a"))
	b.AddNode("b", mutator("b"))
	b.AddNode("join", logNode("join"))
	b.SetEntry("dispatch")
	b.AddConditionalEdges("dispatch", func(testState) []NodeID {
		return []NodeID{"a", "b"}
	}, []NodeID{"a", "b", "join"})
	b.AddEdge("a", "join")
	b.AddEdge("b", "join")
	b.AddEdge("join", End)

	g, err := b.Compile()
	require.NoError(t, err)

	final, _, err := g.Run(context.Background(), testState{Flags: map[string]bool{"seed": true}})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"seed": true}, final.Flags)
}
