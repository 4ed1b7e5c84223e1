package agents

import (
	"context"

	"copilot/pkg/graph"
	"copilot/pkg/state"
)

// Branch universes in declaration order. Dispatch reports skips against
// these; the routers return the matching subset.
//
//nolint:gochecknoglobals // fixed branch universes
var (
	AnalysisBranches = []graph.NodeID{NodeSales, NodeCompetitor, NodeInventory, NodeRAG}
	ActionBranches   = []graph.NodeID{NodeListing, NodePricing, NodeProfit}
)

func activeAnalysisBranches(q *state.QueryContext) map[graph.NodeID]bool {
	return map[graph.NodeID]bool{
		NodeSales:      q.Intent(state.IntentSales),
		NodeCompetitor: q.Intent(state.IntentCompetitor),
		NodeInventory:  q.Intent(state.IntentInventory),
		NodeRAG:        q.Intent(state.IntentRAG) || q.Intent(state.IntentCompliance),
	}
}

func activeActionBranches(q *state.QueryContext) map[graph.NodeID]bool {
	return map[graph.NodeID]bool{
		NodeListing: q.Intent(state.IntentListingSEO),
		NodePricing: q.Intent(state.IntentPricing),
		NodeProfit:  q.Intent(state.IntentProfit),
	}
}

func splitBranches(universe []graph.NodeID, active map[graph.NodeID]bool) (activeNames, skippedNames []string) {
	for _, b := range universe {
		if active[b] {
			activeNames = append(activeNames, string(b))
		} else {
			skippedNames = append(skippedNames, string(b))
		}
	}
	return activeNames, skippedNames
}

func (d *Deps) dispatchNode(node graph.NodeID, universe []graph.NodeID, activeFn func(*state.QueryContext) map[graph.NodeID]bool) graph.Node[state.SellerState, state.Update] {
	return func(_ context.Context, s state.SellerState) (state.Update, error) {
		if s.Query == nil {
			return state.Update{ExecutionTrace: recordStep(node)}, nil
		}

		active, skipped := splitBranches(universe, activeFn(s.Query))
		trace := recordStep(node)
		for _, branch := range skipped {
			trace = append(trace, recordSkip(branch, "intent_not_required"))
			d.recorder().IncBranchSkip(branch)
		}

		return state.Update{
			ActiveBranches:  active,
			SkippedBranches: skipped,
			ExecutionTrace:  trace,
		}, nil
	}
}

// analysisTargets routes the analysis fan-out; an empty active set falls
// through to the join so the run always converges.
func analysisTargets(s state.SellerState) []graph.NodeID {
	active := activeAnalysisBranches(s.Query)
	var targets []graph.NodeID
	for _, b := range AnalysisBranches {
		if active[b] {
			targets = append(targets, b)
		}
	}
	if len(targets) == 0 {
		return []graph.NodeID{NodeAnalysisJoin}
	}
	return targets
}

// ragTargets chains retrieval into compliance checking when requested.
func ragTargets(s state.SellerState) []graph.NodeID {
	if s.Query.Intent(state.IntentCompliance) {
		return []graph.NodeID{NodeCompliance}
	}
	return []graph.NodeID{NodeAnalysisJoin}
}

// actionTargets routes the action fan-out.
func actionTargets(s state.SellerState) []graph.NodeID {
	active := activeActionBranches(s.Query)
	var targets []graph.NodeID
	for _, b := range ActionBranches {
		if active[b] {
			targets = append(targets, b)
		}
	}
	if len(targets) == 0 {
		return []graph.NodeID{NodeActionJoin}
	}
	return targets
}

func (d *Deps) analysisJoinNode(_ context.Context, _ state.SellerState) (state.Update, error) {
	return state.Update{ExecutionTrace: recordStep(NodeAnalysisJoin)}, nil
}
