// Package state defines the seller copilot's state document: one typed field
// per channel, a partial Update record, and the reducer-based Apply that is
// the only way the document evolves during a run.
package state

import "copilot/pkg/rag"

// QueryMode is the high-level intent mode for a copilot run.
type QueryMode string

const (
	ModeWeeklyPlan    QueryMode = "weekly_plan"
	ModePricing       QueryMode = "pricing"
	ModeListingSEO    QueryMode = "listing_seo"
	ModeInventory     QueryMode = "inventory"
	ModeCompliance    QueryMode = "compliance"
	ModeProfitability QueryMode = "profitability"
	ModeGeneralQA     QueryMode = "general_qa"
)

// Intent flag keys over the fixed capability universe.
const (
	IntentSales      = "need_sales"
	IntentCompetitor = "need_competitor"
	IntentInventory  = "need_inventory"
	IntentPricing    = "need_pricing"
	IntentProfit     = "need_profit"
	IntentListingSEO = "need_listing_seo"
	IntentCompliance = "need_compliance"
	IntentRAG        = "need_rag"
)

// IntentKeys lists every capability flag in declaration order.
//
//nolint:gochecknoglobals // fixed capability universe
var IntentKeys = []string{
	IntentSales,
	IntentCompetitor,
	IntentInventory,
	IntentPricing,
	IntentProfit,
	IntentListingSEO,
	IntentCompliance,
	IntentRAG,
}

// QueryContext carries the seller's query plus everything routing derived
// from it. The router node rewrites this channel once per run.
type QueryContext struct {
	RawQuery              string          `json:"raw_query"`
	Mode                  QueryMode       `json:"mode"`
	Marketplaces          []string        `json:"marketplaces"`
	Language              string          `json:"language"`
	SessionID             string          `json:"session_id,omitempty"`
	SellerID              string          `json:"seller_id,omitempty"`
	SellerName            string          `json:"seller_name,omitempty"`
	MemoryFacts           []string        `json:"memory_facts,omitempty"`
	RecentChatTurns       []string        `json:"recent_chat_turns,omitempty"`
	RequestedCapabilities []string        `json:"requested_capabilities,omitempty"`
	IntentFlags           map[string]bool `json:"intent_flags,omitempty"`
	RoutingConfidence     float64         `json:"routing_confidence"`
	FallbackOverrideFlag  string          `json:"fallback_override_flag,omitempty"`
}

// Intent reports whether a capability flag is set.
func (q *QueryContext) Intent(key string) bool {
	if q == nil || q.IntentFlags == nil {
		return false
	}
	return q.IntentFlags[key]
}

// SellerProfile is a compact view of the seller aggregated from the warehouse.
type SellerProfile struct {
	SellerID          string   `json:"seller_id,omitempty"`
	TotalProducts     int      `json:"total_products"`
	ActiveProducts    int      `json:"active_products"`
	Marketplaces      []string `json:"marketplaces,omitempty"`
	PrimaryCategories []string `json:"primary_categories,omitempty"`
	Summary           string   `json:"summary,omitempty"`
}

// ProductFilter narrows which products a run operates on.
type ProductFilter struct {
	ProductIDs  []string `json:"product_ids,omitempty"`
	Category    string   `json:"category,omitempty"`
	Marketplace string   `json:"marketplace,omitempty"`
}

// ProductSelection is the resolved set of in-scope products.
type ProductSelection struct {
	Filter             ProductFilter `json:"filter"`
	SelectedProductIDs []string      `json:"selected_product_ids"`
	Notes              string        `json:"notes,omitempty"`
}

// SalesAnalysis summarizes sales performance for one product.
type SalesAnalysis struct {
	ProductID         string  `json:"product_id"`
	TotalUnitsSold    int     `json:"total_units_sold"`
	TotalGrossRevenue float64 `json:"total_gross_revenue"`
	TotalReturns      int     `json:"total_returns"`
	TotalPageViews    int     `json:"total_page_views"`
	AvgSellingPrice   float64 `json:"avg_selling_price,omitempty"`
	ConversionRate    float64 `json:"conversion_rate,omitempty"`
	Narrative         string  `json:"narrative,omitempty"`
}

// CompetitorAnalysis summarizes the competitor landscape for one product.
type CompetitorAnalysis struct {
	ProductID          string  `json:"product_id"`
	NumCompetitors     int     `json:"num_competitors"`
	AvgCompetitorPrice float64 `json:"avg_competitor_price,omitempty"`
	SellerAvgPrice     float64 `json:"seller_avg_price,omitempty"`
	PricePositioning   string  `json:"price_positioning,omitempty"`
	Notes              string  `json:"notes,omitempty"`
}

// RiskLevel classifies inventory risk.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// InventoryAnalysis is the stock and demand risk view for one product.
type InventoryAnalysis struct {
	ProductID            string    `json:"product_id"`
	CurrentStock         int       `json:"current_stock"`
	ReorderLevel         int       `json:"reorder_level"`
	ProjectedDaysOfCover float64   `json:"projected_days_of_cover,omitempty"`
	RiskLevel            RiskLevel `json:"risk_level"`
	Narrative            string    `json:"narrative,omitempty"`
}

// IssueSeverity grades a compliance finding.
type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityBlocking IssueSeverity = "blocking"
)

// ComplianceIssue is one potential policy problem backed by retrieved evidence.
type ComplianceIssue struct {
	Code            string        `json:"code"`
	Severity        IssueSeverity `json:"severity"`
	Message         string        `json:"message"`
	Marketplace     string        `json:"marketplace,omitempty"`
	Section         string        `json:"section,omitempty"`
	CitationSources []string      `json:"citation_sources,omitempty"`
}

// ComplianceAnalysis aggregates compliance findings for one product.
type ComplianceAnalysis struct {
	ProductID string            `json:"product_id,omitempty"`
	Issues    []ComplianceIssue `json:"issues,omitempty"`
	Summary   string            `json:"summary,omitempty"`
}

// PricingSuggestion proposes a price change for one product.
type PricingSuggestion struct {
	ProductID            string  `json:"product_id"`
	CurrentPrice         float64 `json:"current_price,omitempty"`
	SuggestedPrice       float64 `json:"suggested_price,omitempty"`
	ExpectedMarginChange float64 `json:"expected_margin_change,omitempty"`
	Rationale            string  `json:"rationale,omitempty"`
}

// ProfitabilityAnalysis summarizes margin drivers for one product.
type ProfitabilityAnalysis struct {
	ProductID                 string  `json:"product_id,omitempty"`
	EstimatedNetMarginPercent float64 `json:"estimated_net_margin_percent,omitempty"`
	KeyDrivers                string  `json:"key_drivers,omitempty"`
}

// ListingSEOAnalysis scores listing quality for one product. Scores are in [0,1].
type ListingSEOAnalysis struct {
	ProductID             string  `json:"product_id"`
	TitleScore            float64 `json:"title_score,omitempty"`
	BulletsScore          float64 `json:"bullets_score,omitempty"`
	ImagesScore           float64 `json:"images_score,omitempty"`
	KeywordsCoverageScore float64 `json:"keywords_coverage_score,omitempty"`
	Recommendations       string  `json:"recommendations,omitempty"`
}

// RAGContext records the retrieval evidence actually fed into prompts.
type RAGContext struct {
	Query         string      `json:"query"`
	Marketplace   string      `json:"marketplace,omitempty"`
	Section       string      `json:"section,omitempty"`
	Backend       string      `json:"backend,omitempty"`
	RetrievalMode string      `json:"retrieval_mode,omitempty"`
	Chunks        []rag.Chunk `json:"chunks,omitempty"`
}

// ActionPriority orders actions within the plan.
type ActionPriority string

const (
	PriorityLow      ActionPriority = "low"
	PriorityMedium   ActionPriority = "medium"
	PriorityHigh     ActionPriority = "high"
	PriorityCritical ActionPriority = "critical"
)

// ActionCategory classifies a recommended action.
type ActionCategory string

const (
	CategoryPricing       ActionCategory = "pricing"
	CategoryListing       ActionCategory = "listing"
	CategorySEO           ActionCategory = "seo"
	CategoryInventory     ActionCategory = "inventory"
	CategoryCompliance    ActionCategory = "compliance"
	CategoryProfitability ActionCategory = "profitability"
	CategoryOther         ActionCategory = "other"
)

// ActionItem is one recommended action in the plan. IDs are unique per run.
type ActionItem struct {
	ID              string         `json:"id"`
	ProductID       string         `json:"product_id,omitempty"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Category        ActionCategory `json:"category"`
	Priority        ActionPriority `json:"priority"`
	Timeframe       string         `json:"timeframe,omitempty"`
	EstimatedImpact string         `json:"estimated_impact,omitempty"`
	Blocking        bool           `json:"blocking"`
}

// ActionPlan is the aggregate recommendation set for the seller.
type ActionPlan struct {
	OverallSummary string       `json:"overall_summary,omitempty"`
	Actions        []ActionItem `json:"actions"`
}

// Critique is the critic node's reflection on the current plan.
type Critique struct {
	Comments        string   `json:"comments,omitempty"`
	DetectedRisks   []string `json:"detected_risks,omitempty"`
	MissingElements []string `json:"missing_elements,omitempty"`
	Score           float64  `json:"score,omitempty"`
}

// FinalAnswer is the user-facing result of a run.
type FinalAnswer struct {
	AnswerMarkdown string      `json:"answer_markdown"`
	ActionPlan     *ActionPlan `json:"action_plan,omitempty"`
	Citations      []string    `json:"citations,omitempty"`
}

// HITLFeedback holds human feedback collected after a run.
type HITLFeedback struct {
	Rating             int      `json:"rating,omitempty"`
	Comments           string   `json:"comments,omitempty"`
	SelectedActionIDs  []string `json:"selected_action_ids,omitempty"`
	DiscardedActionIDs []string `json:"discarded_action_ids,omitempty"`
}
