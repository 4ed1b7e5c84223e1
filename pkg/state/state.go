package state

import (
	"fmt"

	"copilot/pkg/graph/reduce"
	"copilot/pkg/rag"
)

// SellerState is the state document threaded through a copilot run. Each
// field is a channel with a fixed reducer; nodes never write it directly,
// they return an Update and the executor calls Apply.
type SellerState struct {
	// Input / routing. Overwrite.
	Query            *QueryContext     `json:"query,omitempty"`
	SellerProfile    *SellerProfile    `json:"seller_profile,omitempty"`
	ProductSelection *ProductSelection `json:"product_selection,omitempty"`

	// Per-product analyses. MergeByKey(product id).
	SalesAnalyses         []SalesAnalysis         `json:"sales_analyses,omitempty"`
	CompetitorAnalyses    []CompetitorAnalysis    `json:"competitor_analyses,omitempty"`
	InventoryAnalyses     []InventoryAnalysis     `json:"inventory_analyses,omitempty"`
	ComplianceAnalyses    []ComplianceAnalysis    `json:"compliance_analyses,omitempty"`
	PricingSuggestions    []PricingSuggestion     `json:"pricing_suggestions,omitempty"`
	ProfitabilityAnalyses []ProfitabilityAnalysis `json:"profitability_analyses,omitempty"`
	ListingSEOAnalyses    []ListingSEOAnalysis    `json:"listing_seo_analyses,omitempty"`

	// Retrieval + planning. Overwrite for the shared plan; branch channels
	// are id-keyed first-writer-wins appends.
	RAGContext           *RAGContext  `json:"rag_context,omitempty"`
	ActionPlan           *ActionPlan  `json:"action_plan,omitempty"`
	ListingBranchActions []ActionItem `json:"listing_branch_actions,omitempty"`
	PricingBranchActions []ActionItem `json:"pricing_branch_actions,omitempty"`
	ProfitBranchActions  []ActionItem `json:"profit_branch_actions,omitempty"`

	// Terminal outputs. Overwrite.
	Critique     *Critique     `json:"critique,omitempty"`
	FinalAnswer  *FinalAnswer  `json:"final_answer,omitempty"`
	HITLFeedback *HITLFeedback `json:"hitl_feedback,omitempty"`

	// Observability / control.
	ExecutionTrace       []string           `json:"execution_trace,omitempty"`
	ActiveBranches       []string           `json:"active_branches,omitempty"`
	SkippedBranches      []string           `json:"skipped_branches,omitempty"`
	AnswerQualitySignals map[string]float64 `json:"answer_quality_signals,omitempty"`
}

// Update is a partial write against the document. Nil pointers and empty
// slices/maps mean "no write" for their channel.
type Update struct {
	Query            *QueryContext
	SellerProfile    *SellerProfile
	ProductSelection *ProductSelection

	SalesAnalyses         []SalesAnalysis
	CompetitorAnalyses    []CompetitorAnalysis
	InventoryAnalyses     []InventoryAnalysis
	ComplianceAnalyses    []ComplianceAnalysis
	PricingSuggestions    []PricingSuggestion
	ProfitabilityAnalyses []ProfitabilityAnalysis
	ListingSEOAnalyses    []ListingSEOAnalysis

	RAGContext           *RAGContext
	ActionPlan           *ActionPlan
	ListingBranchActions []ActionItem
	PricingBranchActions []ActionItem
	ProfitBranchActions  []ActionItem

	Critique     *Critique
	FinalAnswer  *FinalAnswer
	HITLFeedback *HITLFeedback

	ExecutionTrace       []string
	ActiveBranches       []string
	SkippedBranches      []string
	AnswerQualitySignals map[string]float64
}

func salesKey(a SalesAnalysis) string                 { return a.ProductID }
func competitorKey(a CompetitorAnalysis) string       { return a.ProductID }
func inventoryKey(a InventoryAnalysis) string         { return a.ProductID }
func complianceKey(a ComplianceAnalysis) string       { return a.ProductID }
func pricingKey(s PricingSuggestion) string           { return s.ProductID }
func profitabilityKey(a ProfitabilityAnalysis) string { return a.ProductID }
func listingSEOKey(a ListingSEOAnalysis) string       { return a.ProductID }

// ActionID keys branch action channels and join-time dedupe.
func ActionID(a ActionItem) string { return a.ID }

// Apply merges an update into the document using each channel's reducer and
// returns the new document. Neither input is mutated.
func Apply(doc SellerState, u Update) SellerState {
	out := doc

	out.Query = reduce.Overwrite(out.Query, u.Query)
	out.SellerProfile = reduce.Overwrite(out.SellerProfile, u.SellerProfile)
	out.ProductSelection = reduce.Overwrite(out.ProductSelection, u.ProductSelection)

	out.SalesAnalyses = reduce.MergeByKey(out.SalesAnalyses, u.SalesAnalyses, salesKey)
	out.CompetitorAnalyses = reduce.MergeByKey(out.CompetitorAnalyses, u.CompetitorAnalyses, competitorKey)
	out.InventoryAnalyses = reduce.MergeByKey(out.InventoryAnalyses, u.InventoryAnalyses, inventoryKey)
	out.ComplianceAnalyses = reduce.MergeByKey(out.ComplianceAnalyses, u.ComplianceAnalyses, complianceKey)
	out.PricingSuggestions = reduce.MergeByKey(out.PricingSuggestions, u.PricingSuggestions, pricingKey)
	out.ProfitabilityAnalyses = reduce.MergeByKey(out.ProfitabilityAnalyses, u.ProfitabilityAnalyses, profitabilityKey)
	out.ListingSEOAnalyses = reduce.MergeByKey(out.ListingSEOAnalyses, u.ListingSEOAnalyses, listingSEOKey)

	out.RAGContext = reduce.Overwrite(out.RAGContext, u.RAGContext)
	out.ActionPlan = reduce.Overwrite(out.ActionPlan, u.ActionPlan)
	out.ListingBranchActions = reduce.FirstWriterByKey(out.ListingBranchActions, u.ListingBranchActions, ActionID)
	out.PricingBranchActions = reduce.FirstWriterByKey(out.PricingBranchActions, u.PricingBranchActions, ActionID)
	out.ProfitBranchActions = reduce.FirstWriterByKey(out.ProfitBranchActions, u.ProfitBranchActions, ActionID)

	out.Critique = reduce.Overwrite(out.Critique, u.Critique)
	out.FinalAnswer = reduce.Overwrite(out.FinalAnswer, u.FinalAnswer)
	out.HITLFeedback = reduce.Overwrite(out.HITLFeedback, u.HITLFeedback)

	out.ExecutionTrace = reduce.Append(out.ExecutionTrace, u.ExecutionTrace)
	out.ActiveBranches = reduce.UnionStrings(out.ActiveBranches, u.ActiveBranches)
	out.SkippedBranches = reduce.UnionStrings(out.SkippedBranches, u.SkippedBranches)
	out.AnswerQualitySignals = reduce.MergeMap(out.AnswerQualitySignals, u.AnswerQualitySignals)

	return out
}

// Clone returns a deep copy of the document. Reducers never mutate existing
// values in place, but the fallback rerun and node snapshots still need a
// copy whose pointers and maps are independent of the original.
func (s SellerState) Clone() SellerState {
	out := s

	out.Query = cloneQuery(s.Query)
	out.SellerProfile = cloneProfile(s.SellerProfile)
	out.ProductSelection = cloneSelection(s.ProductSelection)

	out.SalesAnalyses = append([]SalesAnalysis(nil), s.SalesAnalyses...)
	out.CompetitorAnalyses = append([]CompetitorAnalysis(nil), s.CompetitorAnalyses...)
	out.InventoryAnalyses = append([]InventoryAnalysis(nil), s.InventoryAnalyses...)
	out.ComplianceAnalyses = cloneCompliance(s.ComplianceAnalyses)
	out.PricingSuggestions = append([]PricingSuggestion(nil), s.PricingSuggestions...)
	out.ProfitabilityAnalyses = append([]ProfitabilityAnalysis(nil), s.ProfitabilityAnalyses...)
	out.ListingSEOAnalyses = append([]ListingSEOAnalysis(nil), s.ListingSEOAnalyses...)

	out.RAGContext = cloneRAGContext(s.RAGContext)
	out.ActionPlan = cloneActionPlan(s.ActionPlan)
	out.ListingBranchActions = append([]ActionItem(nil), s.ListingBranchActions...)
	out.PricingBranchActions = append([]ActionItem(nil), s.PricingBranchActions...)
	out.ProfitBranchActions = append([]ActionItem(nil), s.ProfitBranchActions...)

	if s.Critique != nil {
		c := *s.Critique
		c.DetectedRisks = append([]string(nil), s.Critique.DetectedRisks...)
		c.MissingElements = append([]string(nil), s.Critique.MissingElements...)
		out.Critique = &c
	}
	if s.FinalAnswer != nil {
		fa := *s.FinalAnswer
		fa.ActionPlan = cloneActionPlan(s.FinalAnswer.ActionPlan)
		fa.Citations = append([]string(nil), s.FinalAnswer.Citations...)
		out.FinalAnswer = &fa
	}
	if s.HITLFeedback != nil {
		h := *s.HITLFeedback
		h.SelectedActionIDs = append([]string(nil), s.HITLFeedback.SelectedActionIDs...)
		h.DiscardedActionIDs = append([]string(nil), s.HITLFeedback.DiscardedActionIDs...)
		out.HITLFeedback = &h
	}

	out.ExecutionTrace = append([]string(nil), s.ExecutionTrace...)
	out.ActiveBranches = append([]string(nil), s.ActiveBranches...)
	out.SkippedBranches = append([]string(nil), s.SkippedBranches...)
	if s.AnswerQualitySignals != nil {
		out.AnswerQualitySignals = make(map[string]float64, len(s.AnswerQualitySignals))
		for k, v := range s.AnswerQualitySignals {
			out.AnswerQualitySignals[k] = v
		}
	}

	return out
}

func cloneQuery(q *QueryContext) *QueryContext {
	if q == nil {
		return nil
	}
	out := *q
	out.Marketplaces = append([]string(nil), q.Marketplaces...)
	out.MemoryFacts = append([]string(nil), q.MemoryFacts...)
	out.RecentChatTurns = append([]string(nil), q.RecentChatTurns...)
	out.RequestedCapabilities = append([]string(nil), q.RequestedCapabilities...)
	if q.IntentFlags != nil {
		out.IntentFlags = make(map[string]bool, len(q.IntentFlags))
		for k, v := range q.IntentFlags {
			out.IntentFlags[k] = v
		}
	}
	return &out
}

func cloneProfile(p *SellerProfile) *SellerProfile {
	if p == nil {
		return nil
	}
	out := *p
	out.Marketplaces = append([]string(nil), p.Marketplaces...)
	out.PrimaryCategories = append([]string(nil), p.PrimaryCategories...)
	return &out
}

func cloneSelection(p *ProductSelection) *ProductSelection {
	if p == nil {
		return nil
	}
	out := *p
	out.Filter.ProductIDs = append([]string(nil), p.Filter.ProductIDs...)
	out.SelectedProductIDs = append([]string(nil), p.SelectedProductIDs...)
	return &out
}

func cloneCompliance(in []ComplianceAnalysis) []ComplianceAnalysis {
	if in == nil {
		return nil
	}
	out := make([]ComplianceAnalysis, len(in))
	for i, a := range in {
		out[i] = a
		out[i].Issues = append([]ComplianceIssue(nil), a.Issues...)
	}
	return out
}

func cloneRAGContext(r *RAGContext) *RAGContext {
	if r == nil {
		return nil
	}
	out := *r
	out.Chunks = append([]rag.Chunk(nil), r.Chunks...)
	return &out
}

func cloneActionPlan(p *ActionPlan) *ActionPlan {
	if p == nil {
		return nil
	}
	out := *p
	out.Actions = append([]ActionItem(nil), p.Actions...)
	return &out
}

// Validate checks the document invariants that are cheap to verify at
// construction time.
func (s SellerState) Validate() error {
	if s.Query != nil {
		if s.Query.RoutingConfidence < 0 || s.Query.RoutingConfidence > 1 {
			return fmt.Errorf("routing confidence %v out of [0,1]", s.Query.RoutingConfidence)
		}
	}
	if s.ActionPlan != nil {
		seen := make(map[string]bool, len(s.ActionPlan.Actions))
		for _, a := range s.ActionPlan.Actions {
			if a.ID == "" {
				continue
			}
			if seen[a.ID] {
				return fmt.Errorf("duplicate action id %q in plan", a.ID)
			}
			seen[a.ID] = true
		}
	}
	return nil
}

// FallbackApplied reports whether the one-shot fallback signal is set.
func (s SellerState) FallbackApplied() bool {
	return s.AnswerQualitySignals["fallback_applied"] >= 1.0
}
