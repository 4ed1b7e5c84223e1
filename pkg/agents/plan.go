package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"copilot/pkg/llm"
	"copilot/pkg/state"
)

// plannerAction is the loosely-typed action shape the model returns.
type plannerAction struct {
	Area        string `json:"area"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
	Impact      string `json:"impact"`
	ProductID   string `json:"product_id"`
}

type plannerOutput struct {
	OverallSummary string          `json:"overall_summary"`
	Actions        []plannerAction `json:"actions"`
}

func toActionCategory(area string) state.ActionCategory {
	switch strings.ToLower(strings.TrimSpace(area)) {
	case "pricing":
		return state.CategoryPricing
	case "listing":
		return state.CategoryListing
	case "seo":
		return state.CategorySEO
	case "inventory":
		return state.CategoryInventory
	case "compliance":
		return state.CategoryCompliance
	case "profitability":
		return state.CategoryProfitability
	default:
		return state.CategoryOther
	}
}

func toActionPriority(priority string) state.ActionPriority {
	switch strings.ToLower(strings.TrimSpace(priority)) {
	case "low":
		return state.PriorityLow
	case "high":
		return state.PriorityHigh
	case "critical":
		return state.PriorityCritical
	default:
		return state.PriorityMedium
	}
}

func actionID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func normalizePlan(out plannerOutput, idPrefix string) *state.ActionPlan {
	plan := &state.ActionPlan{OverallSummary: out.OverallSummary, Actions: []state.ActionItem{}}
	for _, a := range out.Actions {
		plan.Actions = append(plan.Actions, state.ActionItem{
			ID:              actionID(idPrefix),
			ProductID:       a.ProductID,
			Title:           a.Title,
			Description:     a.Description,
			Category:        toActionCategory(a.Area),
			Priority:        toActionPriority(a.Priority),
			EstimatedImpact: a.Impact,
		})
	}
	return plan
}

const plannerSystemPrompt = `You are a planning assistant for an e-commerce seller copilot.
Given the seller's question and the analyses below, produce a prioritized action plan.
Respond with JSON only: {"overall_summary": string, "actions": [{"area": string, "title": string, "description": string, "priority": "low"|"medium"|"high"|"critical", "impact": string, "product_id": string}]}.
Valid areas: pricing, listing, seo, inventory, compliance, profitability.`

func plannerContext(s state.SellerState) string {
	var lines []string

	if s.Query != nil {
		lines = append(lines, "## User Query", s.Query.RawQuery, "")
	}
	if s.SellerProfile != nil {
		lines = append(lines, "## Seller Profile", s.SellerProfile.Summary, "")
	}
	if len(s.SalesAnalyses) > 0 {
		lines = append(lines, "## Sales")
		for _, a := range s.SalesAnalyses {
			lines = append(lines, fmt.Sprintf("- %s: %s", a.ProductID, a.Narrative))
		}
		lines = append(lines, "")
	}
	if len(s.CompetitorAnalyses) > 0 {
		lines = append(lines, "## Competitors")
		for _, a := range s.CompetitorAnalyses {
			lines = append(lines, fmt.Sprintf("- %s: %s", a.ProductID, a.PricePositioning))
		}
		lines = append(lines, "")
	}
	if len(s.InventoryAnalyses) > 0 {
		lines = append(lines, "## Inventory")
		for _, a := range s.InventoryAnalyses {
			lines = append(lines, fmt.Sprintf("- %s: %s", a.ProductID, a.Narrative))
		}
		lines = append(lines, "")
	}
	if len(s.ComplianceAnalyses) > 0 {
		lines = append(lines, "## Compliance")
		for _, a := range s.ComplianceAnalyses {
			label := a.ProductID
			if label == "" {
				label = "overall"
			}
			lines = append(lines, fmt.Sprintf("- %s: %s (%d issues)", label, a.Summary, len(a.Issues)))
		}
		lines = append(lines, "")
	}
	if s.RAGContext != nil && len(s.RAGContext.Chunks) > 0 {
		lines = append(lines, "## Policy Evidence")
		for _, c := range s.RAGContext.Chunks[:min(len(s.RAGContext.Chunks), 5)] {
			lines = append(lines, fmt.Sprintf("- [%s/%s] %s", orAny(c.Marketplace), c.Section, firstN(c.Text, 160)))
		}
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// fallbackPlan builds a deterministic plan from the analyses when no model
// is reachable. Mirrors the advisory heuristics of the branch agents so the
// copilot still produces something actionable offline.
func fallbackPlan(s state.SellerState) *state.ActionPlan {
	plan := &state.ActionPlan{Actions: []state.ActionItem{}}

	for _, inv := range s.InventoryAnalyses {
		if inv.RiskLevel != state.RiskHigh && inv.RiskLevel != state.RiskCritical {
			continue
		}
		priority := state.PriorityHigh
		if inv.RiskLevel == state.RiskCritical {
			priority = state.PriorityCritical
		}
		plan.Actions = append(plan.Actions, state.ActionItem{
			ID:          actionID("plan-restock"),
			ProductID:   inv.ProductID,
			Title:       fmt.Sprintf("Replenish stock for product %s", inv.ProductID),
			Description: inv.Narrative,
			Category:    state.CategoryInventory,
			Priority:    priority,
			Timeframe:   "this week",
		})
	}

	for _, sa := range s.SalesAnalyses {
		if sa.TotalPageViews == 0 || sa.ConversionRate >= 0.01 {
			continue
		}
		plan.Actions = append(plan.Actions, state.ActionItem{
			ID:          actionID("plan-conversion"),
			ProductID:   sa.ProductID,
			Title:       fmt.Sprintf("Improve conversion for product %s", sa.ProductID),
			Description: sa.Narrative,
			Category:    state.CategoryListing,
			Priority:    state.PriorityMedium,
		})
	}

	for _, ca := range s.ComplianceAnalyses {
		if len(ca.Issues) == 0 {
			continue
		}
		label := ca.ProductID
		if label == "" {
			label = "the catalog"
		}
		plan.Actions = append(plan.Actions, state.ActionItem{
			ID:          actionID("plan-compliance"),
			ProductID:   ca.ProductID,
			Title:       fmt.Sprintf("Review policy findings for %s", label),
			Description: ca.Summary,
			Category:    state.CategoryCompliance,
			Priority:    state.PriorityHigh,
		})
		break
	}

	if len(plan.Actions) == 0 {
		plan.Actions = append(plan.Actions, state.ActionItem{
			ID:          actionID("plan-review"),
			Title:       "Review weekly performance metrics",
			Description: "No urgent signals were detected. Review sales, margin, and stock trends for the top products.",
			Category:    state.CategoryOther,
			Priority:    state.PriorityLow,
		})
	}

	plan.OverallSummary = fmt.Sprintf(
		"Deterministic plan with %d action(s) derived from warehouse analyses.", len(plan.Actions),
	)
	return plan
}

// plannerNode turns the gathered analyses into the shared action plan. The
// model refines it when reachable; otherwise the deterministic fallback
// keeps the run going.
func (d *Deps) plannerNode(ctx context.Context, s state.SellerState) (state.Update, error) {
	var out plannerOutput
	err := d.Gen.Generate(ctx, llm.Request{
		System:      plannerSystemPrompt,
		Prompt:      plannerContext(s),
		Temperature: 0.2,
		MaxTokens:   1500,
	}, &out)

	var plan *state.ActionPlan
	if err != nil {
		d.log().Warn("planner: model unavailable, using deterministic plan: %v", err)
		plan = fallbackPlan(s)
	} else {
		plan = normalizePlan(out, "plan")
	}

	return state.Update{
		ActionPlan:     plan,
		ExecutionTrace: recordStep(NodePlanner, "llm"),
	}, nil
}
