// Package agents implements the copilot's workflow nodes: routing, warehouse
// analysis branches, retrieval, planning, and answer composition. Nodes are
// pure against their snapshot; every write goes through a state.Update.
package agents

import (
	"fmt"
	"strings"

	"copilot/pkg/graph"
	"copilot/pkg/llm"
	"copilot/pkg/logx"
	"copilot/pkg/metrics"
	"copilot/pkg/rag"
	"copilot/pkg/warehouse"
)

// Node identifiers. The branch node names double as branch labels in
// active/skipped reporting.
const (
	NodeRouter           graph.NodeID = "router"
	NodeSellerProfile    graph.NodeID = "seller_profile"
	NodeProductSelector  graph.NodeID = "product_selector"
	NodeAnalysisDispatch graph.NodeID = "analysis_dispatch"
	NodeSales            graph.NodeID = "sales"
	NodeCompetitor       graph.NodeID = "competitor"
	NodeInventory        graph.NodeID = "inventory"
	NodeRAG              graph.NodeID = "rag"
	NodeCompliance       graph.NodeID = "compliance"
	NodeAnalysisJoin     graph.NodeID = "analysis_join"
	NodePlanner          graph.NodeID = "planner"
	NodeActionDispatch   graph.NodeID = "action_dispatch"
	NodeListing          graph.NodeID = "listing"
	NodePricing          graph.NodeID = "pricing"
	NodeProfit           graph.NodeID = "profit"
	NodeActionJoin       graph.NodeID = "action_join"
	NodeCritic           graph.NodeID = "critic"
	NodeFinalAnswer      graph.NodeID = "final_answer"
	NodeHITL             graph.NodeID = "hitl"
)

// DefaultMarketplace scopes SEO and profit simulation when the query does
// not pin one.
const DefaultMarketplace = "amazon"

const maxAnalysisProducts = 10

// Deps are the collaborators the nodes work against.
type Deps struct {
	Repo      warehouse.Repository
	Tools     *warehouse.Tools
	Retriever rag.Retriever
	Gen       llm.Generator
	Recorder  metrics.Recorder

	logger *logx.Logger
}

func (d *Deps) log() *logx.Logger {
	if d.logger == nil {
		d.logger = logx.NewLogger("agents")
	}
	return d.logger
}

func (d *Deps) recorder() metrics.Recorder {
	if d.Recorder == nil {
		return metrics.NopRecorder{}
	}
	return d.Recorder
}

// recordStep formats the trace line for one executed node.
func recordStep(node graph.NodeID, tools ...string) []string {
	line := "agent=" + string(node)
	if len(tools) > 0 {
		line += " tools=" + strings.Join(tools, ",")
	}
	return []string{line}
}

// recordSkip formats the trace line for a branch skipped by routing.
func recordSkip(branch, reason string) string {
	return fmt.Sprintf("agent=%s skipped reason=%s", branch, reason)
}
