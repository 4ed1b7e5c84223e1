package agents

import (
	"context"
	"fmt"
	"strings"

	"copilot/pkg/state"
)

func salesNarrative(summary *state.SalesAnalysis) string {
	var bits []string
	bits = append(bits, fmt.Sprintf(
		"Total units sold: %d, gross revenue: %.2f, returns: %d.",
		summary.TotalUnitsSold, summary.TotalGrossRevenue, summary.TotalReturns,
	))
	if summary.TotalPageViews > 0 {
		bits = append(bits, fmt.Sprintf("Page views: %d.", summary.TotalPageViews))
	}
	if summary.AvgSellingPrice > 0 {
		bits = append(bits, fmt.Sprintf("Average selling price: %.2f.", summary.AvgSellingPrice))
	}
	if summary.TotalPageViews > 0 {
		bits = append(bits, fmt.Sprintf("Conversion rate (approx): %.4f.", summary.ConversionRate))
	}

	switch {
	case summary.TotalUnitsSold == 0:
		bits = append(bits, "The product has no recorded sales in the selected period.")
	case summary.TotalPageViews > 0 && summary.ConversionRate < 0.01:
		bits = append(bits, "Conversion rate is quite low; consider improving listing quality or pricing.")
	default:
		bits = append(bits, "Sales performance is non-zero; further analysis can refine this.")
	}
	return strings.Join(bits, " ")
}

func (d *Deps) salesNode(ctx context.Context, s state.SellerState) (state.Update, error) {
	productIDs, err := d.selectedProductIDs(ctx, s, maxAnalysisProducts)
	if err != nil {
		return state.Update{}, err
	}

	var analyses []state.SalesAnalysis
	for _, pid := range productIDs {
		overview, err := d.Tools.SalesOverview(ctx, pid)
		if err != nil {
			d.log().Warn("sales: no overview for %s: %v", pid, err)
			continue
		}
		analysis := state.SalesAnalysis{
			ProductID:         pid,
			TotalUnitsSold:    overview.Summary.TotalUnitsSold,
			TotalGrossRevenue: overview.Summary.TotalGrossRevenue,
			TotalReturns:      overview.Summary.TotalReturns,
			TotalPageViews:    overview.Summary.TotalPageViews,
			AvgSellingPrice:   overview.Summary.AvgSellingPrice,
			ConversionRate:    overview.Summary.ConversionRate,
		}
		analysis.Narrative = salesNarrative(&analysis)
		analyses = append(analyses, analysis)
	}

	return state.Update{
		SalesAnalyses:  analyses,
		ExecutionTrace: recordStep(NodeSales, "sales_tool"),
	}, nil
}

func competitorNarrative(numCompetitors int, avgCompPrice, sellerAvg float64) string {
	if numCompetitors == 0 {
		return "No competitors found for this product in the warehouse snapshot."
	}
	parts := []string{fmt.Sprintf(
		"There are %d competitors with average price %.2f.", numCompetitors, avgCompPrice,
	)}
	if sellerAvg <= 0 {
		parts = append(parts, "Seller average price could not be computed due to missing sales data.")
		return strings.Join(parts, " ")
	}
	parts = append(parts, fmt.Sprintf("Seller average price is %.2f.", sellerAvg))
	delta := avgCompPrice - sellerAvg
	switch {
	case delta > -0.01*sellerAvg && delta < 0.01*sellerAvg:
		parts = append(parts, "Seller price is roughly in line with competitor average.")
	case delta > 0:
		parts = append(parts, "Competitors are generally priced higher than the seller; there may be room to increase price while remaining competitive.")
	default:
		parts = append(parts, "Competitors are generally priced lower than the seller; seller may need to justify premium positioning or adjust price.")
	}
	return strings.Join(parts, " ")
}

func (d *Deps) competitorNode(ctx context.Context, s state.SellerState) (state.Update, error) {
	productIDs, err := d.selectedProductIDs(ctx, s, maxAnalysisProducts)
	if err != nil {
		return state.Update{}, err
	}

	var analyses []state.CompetitorAnalysis
	for _, pid := range productIDs {
		overview, err := d.Tools.CompetitorOverview(ctx, pid)
		if err != nil {
			d.log().Warn("competitor: no overview for %s: %v", pid, err)
			continue
		}

		avgCompPrice := 0.0
		if len(overview.Competitors) > 0 {
			total := 0.0
			for _, c := range overview.Competitors {
				total += c.Competitor.Price
			}
			avgCompPrice = total / float64(len(overview.Competitors))
		}

		analyses = append(analyses, state.CompetitorAnalysis{
			ProductID:          pid,
			NumCompetitors:     len(overview.Competitors),
			AvgCompetitorPrice: avgCompPrice,
			SellerAvgPrice:     overview.SellerAvgPrice,
			PricePositioning:   competitorNarrative(len(overview.Competitors), avgCompPrice, overview.SellerAvgPrice),
		})
	}

	return state.Update{
		CompetitorAnalyses: analyses,
		ExecutionTrace:     recordStep(NodeCompetitor, "competitor_tool"),
	}, nil
}

const (
	forecastHorizonDays = 14
	historyWindowDays   = 28
)

// daysOfCover approximates how long current stock covers forecast demand.
// Returns 0 when stock or demand signal is missing.
func daysOfCover(currentStock int, forecast []float64) float64 {
	if currentStock <= 0 || len(forecast) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range forecast {
		total += v
	}
	avgDaily := total / float64(len(forecast))
	if avgDaily <= 0 {
		return 0
	}
	return float64(currentStock) / avgDaily
}

func classifyInventoryRisk(cover float64, currentStock, reorderLevel int) state.RiskLevel {
	if cover <= 0 {
		if currentStock <= 0 {
			return state.RiskCritical
		}
		if currentStock <= reorderLevel {
			return state.RiskHigh
		}
		return state.RiskMedium
	}
	switch {
	case cover < 3:
		return state.RiskCritical
	case cover < 7:
		return state.RiskHigh
	case cover < 14:
		return state.RiskMedium
	default:
		return state.RiskLow
	}
}

func inventoryNarrative(cover float64, risk state.RiskLevel, currentStock, reorderLevel int) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("Current stock: %d, reorder level: %d.", currentStock, reorderLevel))
	if cover <= 0 {
		parts = append(parts, "Demand forecast is too uncertain to compute days of cover; risk is estimated primarily from stock vs reorder level.")
	} else {
		parts = append(parts, fmt.Sprintf("Estimated days of cover: %.1f.", cover))
	}
	switch risk {
	case state.RiskCritical:
		parts = append(parts, "Risk level is CRITICAL: immediate attention is required to avoid stockout.")
	case state.RiskHigh:
		parts = append(parts, "Risk level is HIGH: stock may run out soon; consider expediting replenishment.")
	case state.RiskMedium:
		parts = append(parts, "Risk level is MEDIUM: monitor stock and replenishment closely.")
	default:
		parts = append(parts, "Risk level is LOW: current stock appears sufficient for the near term.")
	}
	return strings.Join(parts, " ")
}

func (d *Deps) inventoryNode(ctx context.Context, s state.SellerState) (state.Update, error) {
	productIDs, err := d.selectedProductIDs(ctx, s, maxAnalysisProducts)
	if err != nil {
		return state.Update{}, err
	}

	var analyses []state.InventoryAnalysis
	for _, pid := range productIDs {
		inv, err := d.Repo.GetInventory(ctx, pid)
		if err != nil {
			d.log().Warn("inventory: no record for %s: %v", pid, err)
			continue
		}

		forecast, err := d.Tools.ForecastDemand(ctx, pid, forecastHorizonDays, historyWindowDays)
		if err != nil {
			return state.Update{}, err
		}
		expected := make([]float64, 0, len(forecast.Forecast))
		for _, pt := range forecast.Forecast {
			expected = append(expected, pt.ExpectedUnits)
		}

		cover := daysOfCover(inv.StockOnHand, expected)
		risk := classifyInventoryRisk(cover, inv.StockOnHand, inv.ReorderLevel)

		analyses = append(analyses, state.InventoryAnalysis{
			ProductID:            pid,
			CurrentStock:         inv.StockOnHand,
			ReorderLevel:         inv.ReorderLevel,
			ProjectedDaysOfCover: cover,
			RiskLevel:            risk,
			Narrative:            inventoryNarrative(cover, risk, inv.StockOnHand, inv.ReorderLevel),
		})
	}

	return state.Update{
		InventoryAnalyses: analyses,
		ExecutionTrace:    recordStep(NodeInventory, "demand_tool"),
	}, nil
}
