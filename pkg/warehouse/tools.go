package warehouse

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"copilot/pkg/logx"
)

// FeeConfig is the per-marketplace fee schedule used by profit simulation.
type FeeConfig struct {
	ReferralFeePercent       float64 `yaml:"referral_fee_percent"`
	ClosingFeeFlat           float64 `yaml:"closing_fee_flat"`
	FBAPickPackFee           float64 `yaml:"fba_pick_pack_fee"`
	StorageFeePerUnit        float64 `yaml:"storage_fee_per_unit"`
	ReturnHandlingFee        float64 `yaml:"return_handling_fee"`
	PaymentGatewayFeePercent float64 `yaml:"payment_gateway_fee_percent"`
}

// LoadFees reads a fee schedule YAML keyed by marketplace, each with a
// "default" tier. An empty path returns an empty schedule (zero fees).
func LoadFees(path string) (map[string]FeeConfig, error) {
	if path == "" {
		return map[string]FeeConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, logx.Wrap(err, "read fee schedule")
	}
	var raw map[string]map[string]FeeConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, logx.Wrap(err, "parse fee schedule")
	}
	out := make(map[string]FeeConfig, len(raw))
	for marketplace, tiers := range raw {
		out[marketplace] = tiers["default"]
	}
	return out, nil
}

// Tools bundles the derived analysis tools over a repository.
type Tools struct {
	repo   Repository
	fees   map[string]FeeConfig
	logger *logx.Logger
}

// NewTools creates the tool bundle. fees may be nil (zero fees).
func NewTools(repo Repository, fees map[string]FeeConfig) *Tools {
	return &Tools{repo: repo, fees: fees, logger: logx.NewLogger("tools")}
}

// SalesTimeSeriesPoint is one day of a product's sales series.
type SalesTimeSeriesPoint struct {
	Date         time.Time `json:"date"`
	UnitsSold    int       `json:"units_sold"`
	GrossRevenue float64   `json:"gross_revenue"`
	Returns      int       `json:"returns"`
	AdSpend      float64   `json:"ad_spend"`
	PageViews    int       `json:"page_views"`
}

// SalesSummary aggregates a product's sales over the full history.
type SalesSummary struct {
	TotalUnitsSold    int     `json:"total_units_sold"`
	TotalGrossRevenue float64 `json:"total_gross_revenue"`
	TotalReturns      int     `json:"total_returns"`
	TotalAdSpend      float64 `json:"total_ad_spend"`
	TotalPageViews    int     `json:"total_page_views"`
	AvgSellingPrice   float64 `json:"avg_selling_price,omitempty"`
	ConversionRate    float64 `json:"conversion_rate,omitempty"`
}

// SalesOverview combines product metadata, the aggregate summary, and the
// raw series.
type SalesOverview struct {
	Product    Product                `json:"product"`
	Summary    SalesSummary           `json:"summary"`
	Timeseries []SalesTimeSeriesPoint `json:"timeseries"`
}

// SalesOverview fetches product metadata plus sales history and computes
// the summary metrics.
func (t *Tools) SalesOverview(ctx context.Context, productID string) (*SalesOverview, error) {
	product, err := t.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	records, err := t.repo.ListSalesHistory(ctx, productID)
	if err != nil {
		return nil, err
	}

	var summary SalesSummary
	series := make([]SalesTimeSeriesPoint, 0, len(records))
	for _, r := range records {
		summary.TotalUnitsSold += r.UnitsSold
		summary.TotalGrossRevenue += r.GrossRevenue
		summary.TotalReturns += r.Returns
		summary.TotalAdSpend += r.AdSpend
		summary.TotalPageViews += r.PageViews
		series = append(series, SalesTimeSeriesPoint{
			Date: r.Date, UnitsSold: r.UnitsSold, GrossRevenue: r.GrossRevenue,
			Returns: r.Returns, AdSpend: r.AdSpend, PageViews: r.PageViews,
		})
	}
	if summary.TotalUnitsSold > 0 {
		summary.AvgSellingPrice = summary.TotalGrossRevenue / float64(summary.TotalUnitsSold)
	}
	if summary.TotalPageViews > 0 {
		summary.ConversionRate = float64(summary.TotalUnitsSold) / float64(summary.TotalPageViews)
	}

	return &SalesOverview{Product: *product, Summary: summary, Timeseries: series}, nil
}

// DemandForecastPoint is one forecast day.
type DemandForecastPoint struct {
	Date          time.Time `json:"date"`
	ExpectedUnits float64   `json:"expected_units"`
}

// DemandForecast is the moving-average forecast for a product.
type DemandForecast struct {
	ProductID         string                `json:"product_id"`
	HorizonDays       int                   `json:"horizon_days"`
	HistoryWindowDays int                   `json:"history_window_days"`
	Forecast          []DemandForecastPoint `json:"forecast"`
}

// ForecastDemand computes a moving-average forecast. "Today" is the latest
// date present in the sales history, so the forecast is stable for a fixed
// warehouse. Deterministic and explainable on purpose; agents interpret it,
// they do not recompute it.
func (t *Tools) ForecastDemand(ctx context.Context, productID string, horizonDays, historyWindowDays int) (*DemandForecast, error) {
	if horizonDays <= 0 {
		horizonDays = 14
	}
	if historyWindowDays <= 0 {
		historyWindowDays = 28
	}

	records, err := t.repo.ListSalesHistory(ctx, productID)
	if err != nil {
		return nil, err
	}
	out := &DemandForecast{
		ProductID:         productID,
		HorizonDays:       horizonDays,
		HistoryWindowDays: historyWindowDays,
	}
	if len(records) == 0 {
		return out, nil
	}

	latest := records[0].Date
	for _, r := range records {
		if r.Date.After(latest) {
			latest = r.Date
		}
	}
	windowStart := latest.AddDate(0, 0, -(historyWindowDays - 1))

	totalUnits := 0
	daysWithData := make(map[string]bool)
	for _, r := range records {
		if r.Date.Before(windowStart) || r.Date.After(latest) {
			continue
		}
		totalUnits += r.UnitsSold
		daysWithData[r.Date.Format(DateFormat)] = true
	}
	avgDaily := 0.0
	if len(daysWithData) > 0 {
		avgDaily = float64(totalUnits) / float64(len(daysWithData))
	}

	for i := 1; i <= horizonDays; i++ {
		out.Forecast = append(out.Forecast, DemandForecastPoint{
			Date:          latest.AddDate(0, 0, i),
			ExpectedUnits: avgDaily,
		})
	}
	return out, nil
}

// CompetitorWithDelta is a competitor record plus its price delta against
// the seller's observed average selling price.
type CompetitorWithDelta struct {
	Competitor CompetitorRecord `json:"competitor"`
	PriceDelta float64          `json:"price_delta"`
}

// CompetitorOverview is the product plus its enriched competitor set.
type CompetitorOverview struct {
	Product        Product               `json:"product"`
	SellerAvgPrice float64               `json:"seller_avg_price,omitempty"`
	Competitors    []CompetitorWithDelta `json:"competitors"`
}

// CompetitorOverview fetches competitors for a product and computes price
// deltas against the seller's revenue-weighted average price.
func (t *Tools) CompetitorOverview(ctx context.Context, productID string) (*CompetitorOverview, error) {
	product, err := t.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	competitors, err := t.repo.ListCompetitors(ctx, productID)
	if err != nil {
		return nil, err
	}
	records, err := t.repo.ListSalesHistory(ctx, productID)
	if err != nil {
		return nil, err
	}

	totalUnits := 0
	totalRevenue := 0.0
	for _, r := range records {
		totalUnits += r.UnitsSold
		totalRevenue += r.GrossRevenue
	}
	avgPrice := 0.0
	if totalUnits > 0 {
		avgPrice = totalRevenue / float64(totalUnits)
	}

	out := &CompetitorOverview{Product: *product, SellerAvgPrice: avgPrice}
	for _, c := range competitors {
		delta := 0.0
		if avgPrice > 0 {
			delta = c.Price - avgPrice
		}
		out.Competitors = append(out.Competitors, CompetitorWithDelta{Competitor: c, PriceDelta: delta})
	}
	return out, nil
}

// FeeComponent is one line of a profit simulation's fee breakdown.
type FeeComponent struct {
	Name          string  `json:"name"`
	AmountPerUnit float64 `json:"amount_per_unit"`
}

// ProfitSimulation is the per-unit economics of a candidate price.
type ProfitSimulation struct {
	ProductID        string         `json:"product_id"`
	Marketplace      string         `json:"marketplace"`
	CandidatePrice   float64        `json:"candidate_price"`
	SupplierCost     float64        `json:"supplier_cost"`
	TotalFeesPerUnit float64        `json:"total_fees_per_unit"`
	ProfitPerUnit    float64        `json:"profit_per_unit"`
	MarginPercent    float64        `json:"margin_percent"`
	FeeBreakdown     []FeeComponent `json:"fee_breakdown"`
}

// SimulateProfit computes per-unit profit and margin for a candidate price
// using supplier cost from inventory and the marketplace fee schedule.
// A missing inventory row or fee config degrades to zero cost/fees rather
// than failing.
func (t *Tools) SimulateProfit(ctx context.Context, productID, marketplace string, candidatePrice float64) (*ProfitSimulation, error) {
	if candidatePrice <= 0 {
		return nil, fmt.Errorf("candidate price must be positive, got %v", candidatePrice)
	}

	supplierCost := 0.0
	if inv, err := t.repo.GetInventory(ctx, productID); err == nil {
		supplierCost = inv.SupplierCost
	} else {
		t.logger.Warn("no inventory for %s, assuming zero supplier cost", productID)
	}

	fees, ok := t.fees[marketplace]
	if !ok {
		t.logger.Warn("no fee config for marketplace %s, assuming zero fees", marketplace)
	}

	breakdown := []FeeComponent{
		{Name: "referral_fee", AmountPerUnit: candidatePrice * fees.ReferralFeePercent / 100.0},
		{Name: "closing_fee", AmountPerUnit: fees.ClosingFeeFlat},
		{Name: "pick_pack_fee", AmountPerUnit: fees.FBAPickPackFee},
		{Name: "storage_fee", AmountPerUnit: fees.StorageFeePerUnit},
		{Name: "return_handling_fee", AmountPerUnit: fees.ReturnHandlingFee},
		{Name: "payment_gateway_fee", AmountPerUnit: candidatePrice * fees.PaymentGatewayFeePercent / 100.0},
	}
	totalFees := 0.0
	for _, c := range breakdown {
		totalFees += c.AmountPerUnit
	}
	profit := candidatePrice - supplierCost - totalFees

	return &ProfitSimulation{
		ProductID:        productID,
		Marketplace:      marketplace,
		CandidatePrice:   candidatePrice,
		SupplierCost:     supplierCost,
		TotalFeesPerUnit: totalFees,
		ProfitPerUnit:    profit,
		MarginPercent:    profit / candidatePrice * 100.0,
		FeeBreakdown:     breakdown,
	}, nil
}

// SEOSuggestion is one concrete listing improvement.
type SEOSuggestion struct {
	Field      string `json:"field"`
	Suggestion string `json:"suggestion"`
	Rationale  string `json:"rationale"`
}

// SEOEvaluation is the heuristic listing quality result. Score is 0-100.
type SEOEvaluation struct {
	ProductID   string          `json:"product_id"`
	Marketplace string          `json:"marketplace"`
	Score       float64         `json:"score"`
	Issues      []string        `json:"issues,omitempty"`
	Suggestions []SEOSuggestion `json:"suggestions,omitempty"`
}

// EvaluateSEO scores a listing with simple length/structure heuristics:
// title length, bullet count, description length.
func EvaluateSEO(productID, marketplace, title string, bullets []string, description string) SEOEvaluation {
	out := SEOEvaluation{ProductID: productID, Marketplace: marketplace, Score: 100.0}

	titleLen := len(title)
	switch {
	case titleLen < 30:
		out.Score -= 10
		out.Issues = append(out.Issues, "Title is too short.")
		out.Suggestions = append(out.Suggestions, SEOSuggestion{
			Field:      "title",
			Suggestion: "Add more descriptive keywords to the title.",
			Rationale:  "Short titles often miss important search terms.",
		})
	case titleLen > 150:
		out.Score -= 10
		out.Issues = append(out.Issues, "Title may be too long.")
		out.Suggestions = append(out.Suggestions, SEOSuggestion{
			Field:      "title",
			Suggestion: "Shorten the title while keeping key phrases.",
			Rationale:  "Very long titles can be truncated and may reduce clarity.",
		})
	}

	if len(bullets) < 3 {
		out.Score -= 10
		out.Issues = append(out.Issues, "Too few bullet points for features/benefits.")
		out.Suggestions = append(out.Suggestions, SEOSuggestion{
			Field:      "bullets",
			Suggestion: "Add at least 3-5 bullet points covering key features and benefits.",
			Rationale:  "Bullet points help buyers quickly scan product advantages.",
		})
	}

	if len(description) < 100 {
		out.Score -= 10
		out.Issues = append(out.Issues, "Description is very short.")
		out.Suggestions = append(out.Suggestions, SEOSuggestion{
			Field:      "description",
			Suggestion: "Expand the description to cover use cases, materials, sizing, and care.",
			Rationale:  "Richer descriptions can improve conversion and reduce returns.",
		})
	}

	if out.Score < 0 {
		out.Score = 0
	}
	return out
}
