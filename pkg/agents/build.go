package agents

import (
	"copilot/pkg/graph"
	"copilot/pkg/metrics"
	"copilot/pkg/state"
)

// Build compiles the copilot workflow: router and warehouse aggregation up
// front, the conditional analysis fan-out converging on analysis_join, the
// planner, the conditional action fan-out converging on action_join, then
// critique, final answer, and the feedback container.
func Build(deps *Deps) (*graph.Graph[state.SellerState, state.Update], error) {
	builder := graph.NewBuilder(graph.Config[state.SellerState, state.Update]{
		Apply:    state.Apply,
		Clone:    state.SellerState.Clone,
		Observer: metrics.NewGraphObserver(deps.Recorder),
	})

	builder.
		AddNode(NodeRouter, deps.routerNode).
		AddNode(NodeSellerProfile, deps.sellerProfileNode).
		AddNode(NodeProductSelector, deps.productSelectorNode).
		AddNode(NodeAnalysisDispatch, deps.dispatchNode(NodeAnalysisDispatch, AnalysisBranches, activeAnalysisBranches)).
		AddNode(NodeSales, deps.salesNode).
		AddNode(NodeCompetitor, deps.competitorNode).
		AddNode(NodeInventory, deps.inventoryNode).
		AddNode(NodeRAG, deps.ragNode).
		AddNode(NodeCompliance, deps.complianceNode).
		AddNode(NodeAnalysisJoin, deps.analysisJoinNode).
		AddNode(NodePlanner, deps.plannerNode).
		AddNode(NodeActionDispatch, deps.dispatchNode(NodeActionDispatch, ActionBranches, activeActionBranches)).
		AddNode(NodeListing, deps.listingNode).
		AddNode(NodePricing, deps.pricingNode).
		AddNode(NodeProfit, deps.profitNode).
		AddNode(NodeActionJoin, deps.actionJoinNode).
		AddNode(NodeCritic, deps.criticNode).
		AddNode(NodeFinalAnswer, deps.finalAnswerNode).
		AddNode(NodeHITL, deps.hitlNode)

	builder.
		SetEntry(NodeRouter).
		AddEdge(NodeRouter, NodeSellerProfile).
		AddEdge(NodeSellerProfile, NodeProductSelector).
		AddEdge(NodeProductSelector, NodeAnalysisDispatch).
		AddConditionalEdges(NodeAnalysisDispatch, analysisTargets,
			[]graph.NodeID{NodeSales, NodeCompetitor, NodeInventory, NodeRAG, NodeAnalysisJoin}).
		AddEdge(NodeSales, NodeAnalysisJoin).
		AddEdge(NodeCompetitor, NodeAnalysisJoin).
		AddEdge(NodeInventory, NodeAnalysisJoin).
		AddConditionalEdges(NodeRAG, ragTargets, []graph.NodeID{NodeCompliance, NodeAnalysisJoin}).
		AddEdge(NodeCompliance, NodeAnalysisJoin).
		AddEdge(NodeAnalysisJoin, NodePlanner).
		AddEdge(NodePlanner, NodeActionDispatch).
		AddConditionalEdges(NodeActionDispatch, actionTargets,
			[]graph.NodeID{NodeListing, NodePricing, NodeProfit, NodeActionJoin}).
		AddEdge(NodeListing, NodeActionJoin).
		AddEdge(NodePricing, NodeActionJoin).
		AddEdge(NodeProfit, NodeActionJoin).
		AddEdge(NodeActionJoin, NodeCritic).
		AddEdge(NodeCritic, NodeFinalAnswer).
		AddEdge(NodeFinalAnswer, NodeHITL).
		AddEdge(NodeHITL, graph.End)

	return builder.Compile()
}
