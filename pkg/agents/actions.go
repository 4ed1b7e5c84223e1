package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"copilot/pkg/graph/reduce"
	"copilot/pkg/state"
	"copilot/pkg/warehouse"
)

// actionMarketplace scopes SEO evaluation and profit simulation to the
// query's first supported marketplace.
func actionMarketplace(s state.SellerState) string {
	if s.Query != nil {
		if m := primaryMarketplace(s.Query.Marketplaces); m != "" {
			return m
		}
	}
	return DefaultMarketplace
}

// branchProductIDs derives the products a branch action node works on from
// the sales analyses gathered upstream.
func branchProductIDs(s state.SellerState, maxProducts int) []string {
	ids := make([]string, 0, len(s.SalesAnalyses))
	for _, a := range s.SalesAnalyses {
		ids = append(ids, a.ProductID)
		if len(ids) == maxProducts {
			break
		}
	}
	return ids
}

func seoScoreFraction(hasIssue bool) float64 {
	if hasIssue {
		return 0.5
	}
	return 1.0
}

// listingNode evaluates listing quality for the analyzed products and emits
// improvement actions plus per-product SEO scores. Only the branch channel
// is written; the join folds the actions into the shared plan.
func (d *Deps) listingNode(ctx context.Context, s state.SellerState) (state.Update, error) {
	marketplace := actionMarketplace(s)
	productIDs := branchProductIDs(s, maxAnalysisProducts)
	if len(productIDs) == 0 {
		d.log().Debug("listing: no analyzed products, skipping")
		return state.Update{ExecutionTrace: recordStep(NodeListing, "seo_tool")}, nil
	}

	var actions []state.ActionItem
	var seoAnalyses []state.ListingSEOAnalysis
	for _, pid := range productIDs {
		product, err := d.Repo.GetProduct(ctx, pid)
		if err != nil {
			d.log().Warn("listing: no product %s: %v", pid, err)
			continue
		}

		// Bullets are derived from attributes until the warehouse stores
		// real listing copy.
		keys := make([]string, 0, len(product.Attributes))
		for k := range product.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		bullets := make([]string, 0, len(keys))
		for _, k := range keys {
			bullets = append(bullets, fmt.Sprintf("%s: %v", k, product.Attributes[k]))
		}

		result := warehouse.EvaluateSEO(pid, marketplace, product.Title, bullets, "")

		var suggestions []string
		for _, sg := range result.Suggestions {
			suggestions = append(suggestions, sg.Suggestion)
		}
		seoAnalyses = append(seoAnalyses, state.ListingSEOAnalysis{
			ProductID:             pid,
			TitleScore:            seoScoreFraction(hasIssueFor(result, "title")),
			BulletsScore:          seoScoreFraction(hasIssueFor(result, "bullet")),
			ImagesScore:           product.ImageQualityScore,
			KeywordsCoverageScore: result.Score / 100.0,
			Recommendations:       strings.Join(suggestions, " "),
		})

		if result.Score >= 80 && len(result.Issues) == 0 {
			continue
		}

		issuesText := "General improvement"
		if len(result.Issues) > 0 {
			issuesText = strings.Join(result.Issues, "; ")
		}
		actions = append(actions, state.ActionItem{
			ID:        actionID("listing-" + pid),
			ProductID: pid,
			Title:     fmt.Sprintf("Improve listing SEO for product %s", pid),
			Description: fmt.Sprintf(
				"SEO score is %.1f/100. Issues: %s. See individual suggestions for detailed improvements.",
				result.Score, issuesText,
			),
			Category:        state.CategoryListing,
			Priority:        state.PriorityMedium,
			EstimatedImpact: "medium",
		})
	}

	return state.Update{
		ListingBranchActions: actions,
		ListingSEOAnalyses:   seoAnalyses,
		ExecutionTrace:       recordStep(NodeListing, "seo_tool"),
	}, nil
}

func hasIssueFor(result warehouse.SEOEvaluation, field string) bool {
	for _, sg := range result.Suggestions {
		if strings.Contains(sg.Field, field) {
			return true
		}
	}
	return false
}

func avgSellingPrice(s state.SellerState, productID string) float64 {
	for _, a := range s.SalesAnalyses {
		if a.ProductID == productID {
			return a.AvgSellingPrice
		}
	}
	return 0
}

// priceAnchor prefers the competitor average as the reference price, then
// the seller's own average.
func priceAnchor(s state.SellerState, productID string) float64 {
	for _, c := range s.CompetitorAnalyses {
		if c.ProductID == productID && c.AvgCompetitorPrice > 0 {
			return c.AvgCompetitorPrice
		}
	}
	return avgSellingPrice(s, productID)
}

// recommendedPrice nudges toward the anchor: +5% when well below, -5% when
// well above, unchanged otherwise.
func recommendedPrice(current, anchor float64) float64 {
	if anchor <= 0 || current <= 0 {
		return current
	}
	if current < 0.9*anchor {
		return current * 1.05
	}
	if current > 1.1*anchor {
		return current * 0.95
	}
	return current
}

func (d *Deps) pricingNode(ctx context.Context, s state.SellerState) (state.Update, error) {
	marketplace := actionMarketplace(s)
	productIDs := branchProductIDs(s, maxAnalysisProducts)
	if len(productIDs) == 0 {
		d.log().Debug("pricing: no sales analyses, skipping")
		return state.Update{ExecutionTrace: recordStep(NodePricing, "profit_tool")}, nil
	}

	var actions []state.ActionItem
	var suggestions []state.PricingSuggestion
	for _, pid := range productIDs {
		current := avgSellingPrice(s, pid)
		if current <= 0 {
			continue
		}
		anchor := priceAnchor(s, pid)
		recommended := recommendedPrice(current, anchor)

		sim, err := d.Tools.SimulateProfit(ctx, pid, marketplace, recommended)
		if err != nil {
			d.log().Warn("pricing: simulation failed for %s: %v", pid, err)
			continue
		}

		rationale := fmt.Sprintf("Simulated margin at %.2f is %.2f%% per unit.", recommended, sim.MarginPercent)
		if anchor > 0 {
			rationale += fmt.Sprintf(" Competitor average price is %.2f.", anchor)
		}

		suggestions = append(suggestions, state.PricingSuggestion{
			ProductID:            pid,
			CurrentPrice:         current,
			SuggestedPrice:       recommended,
			ExpectedMarginChange: sim.MarginPercent,
			Rationale:            rationale,
		})
		actions = append(actions, state.ActionItem{
			ID:        actionID("pricing-" + pid),
			ProductID: pid,
			Title:     fmt.Sprintf("Adjust price for product %s", pid),
			Description: fmt.Sprintf(
				"Current avg selling price is ~%.2f. Recommended price: %.2f. %s",
				current, recommended, rationale,
			),
			Category:        state.CategoryPricing,
			Priority:        state.PriorityMedium,
			EstimatedImpact: "medium",
		})
	}

	return state.Update{
		PricingBranchActions: actions,
		PricingSuggestions:   suggestions,
		ExecutionTrace:       recordStep(NodePricing, "profit_tool"),
	}, nil
}

func (d *Deps) profitNode(ctx context.Context, s state.SellerState) (state.Update, error) {
	marketplace := actionMarketplace(s)
	if len(s.SalesAnalyses) == 0 {
		d.log().Debug("profit: no sales analyses, skipping")
		return state.Update{ExecutionTrace: recordStep(NodeProfit, "profit_tool")}, nil
	}

	totalRevenue := 0.0
	weightedProfit := 0.0
	var analyses []state.ProfitabilityAnalysis

	count := 0
	for _, a := range s.SalesAnalyses {
		if count == maxAnalysisProducts {
			break
		}
		count++
		if a.AvgSellingPrice <= 0 || a.TotalUnitsSold <= 0 {
			continue
		}
		sim, err := d.Tools.SimulateProfit(ctx, a.ProductID, marketplace, a.AvgSellingPrice)
		if err != nil {
			d.log().Warn("profit: simulation failed for %s: %v", a.ProductID, err)
			continue
		}

		revenue := float64(a.TotalUnitsSold) * a.AvgSellingPrice
		totalRevenue += revenue
		weightedProfit += revenue * sim.MarginPercent / 100.0

		analyses = append(analyses, state.ProfitabilityAnalysis{
			ProductID:                 a.ProductID,
			EstimatedNetMarginPercent: sim.MarginPercent,
			KeyDrivers: fmt.Sprintf(
				"Supplier cost %.2f and fees %.2f per unit at price %.2f.",
				sim.SupplierCost, sim.TotalFeesPerUnit, sim.CandidatePrice,
			),
		})
	}

	if totalRevenue <= 0 {
		d.log().Debug("profit: no meaningful revenue, skipping")
		return state.Update{ExecutionTrace: recordStep(NodeProfit, "profit_tool")}, nil
	}

	avgMargin := weightedProfit / totalRevenue * 100.0

	var action state.ActionItem
	if avgMargin < 10.0 {
		action = state.ActionItem{
			ID:    actionID("profit"),
			Title: "Improve overall profitability",
			Description: fmt.Sprintf(
				"Estimated average profit margin across key products is only ~%.1f%%. "+
					"Consider coordinated pricing, cost optimization, and ad efficiency changes.",
				avgMargin,
			),
			Category:        state.CategoryProfitability,
			Priority:        state.PriorityHigh,
			EstimatedImpact: "high",
		}
	} else {
		action = state.ActionItem{
			ID:    actionID("profit"),
			Title: "Monitor profitability trends",
			Description: fmt.Sprintf(
				"Estimated average profit margin across key products is ~%.1f%%. "+
					"Maintain current strategy but monitor margins over time.",
				avgMargin,
			),
			Category:        state.CategoryProfitability,
			Priority:        state.PriorityMedium,
			EstimatedImpact: "high",
		}
	}

	return state.Update{
		ProfitBranchActions:   []state.ActionItem{action},
		ProfitabilityAnalyses: analyses,
		ExecutionTrace:        recordStep(NodeProfit, "profit_tool"),
	}, nil
}

// actionJoinNode folds the branch action channels into the shared plan,
// deduplicating by action id with first occurrence winning.
func (d *Deps) actionJoinNode(_ context.Context, s state.SellerState) (state.Update, error) {
	plan := &state.ActionPlan{}
	if s.ActionPlan != nil {
		plan.OverallSummary = s.ActionPlan.OverallSummary
		plan.Actions = append(plan.Actions, s.ActionPlan.Actions...)
	}
	plan.Actions = append(plan.Actions, s.ListingBranchActions...)
	plan.Actions = append(plan.Actions, s.PricingBranchActions...)
	plan.Actions = append(plan.Actions, s.ProfitBranchActions...)
	plan.Actions = reduce.DedupeByKey(plan.Actions, state.ActionID)

	return state.Update{
		ActionPlan:     plan,
		ExecutionTrace: recordStep(NodeActionJoin),
	}, nil
}
