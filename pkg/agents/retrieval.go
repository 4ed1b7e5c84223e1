package agents

import (
	"context"
	"fmt"
	"strings"

	"copilot/pkg/rag"
	"copilot/pkg/state"
)

const (
	ragTopK        = 8
	complianceTopK = 20
	retrievalMode  = "lexical"
)

// primaryMarketplace picks the first supported marketplace from the query,
// or empty for cross-market retrieval.
func primaryMarketplace(marketplaces []string) string {
	for _, m := range marketplaces {
		for _, supported := range SupportedMarketplaces {
			if m == supported {
				return m
			}
		}
	}
	return ""
}

func (d *Deps) ragNode(ctx context.Context, s state.SellerState) (state.Update, error) {
	if s.Query == nil {
		return state.Update{}, fmt.Errorf("rag: state query is missing")
	}

	rawQuery := s.Query.RawQuery
	primary := primaryMarketplace(s.Query.Marketplaces)

	chunks, err := d.Retriever.Retrieve(ctx, rag.Query{
		Text:        rawQuery,
		Marketplace: primary,
		TopK:        ragTopK,
	})
	if err != nil {
		return state.Update{}, err
	}
	if len(chunks) == 0 {
		d.log().Debug("rag: no chunks for marketplace=%s", orAny(primary))
	}

	return state.Update{
		RAGContext: &state.RAGContext{
			Query:         rawQuery,
			Marketplace:   primary,
			Backend:       "index",
			RetrievalMode: retrievalMode,
			Chunks:        chunks,
		},
		ExecutionTrace: recordStep(NodeRAG, "rag_tool"),
	}, nil
}

func orAny(s string) string {
	if s == "" {
		return "any"
	}
	return s
}

// complianceQuery wraps the raw query with a consistent retrieval intent so
// the index surfaces policy and listing-rule material.
func complianceQuery(s state.SellerState) string {
	base := "You are retrieving marketplace policy and listing rules relevant to this seller. " +
		"Focus on listing guidelines, image requirements, restricted products, and SEO rules."
	if s.Query == nil {
		return base
	}
	return base + " The user query is: " + s.Query.RawQuery
}

// compliancePrimaryMarketplace scopes policy retrieval: query marketplaces
// first, then the seller profile, then cross-market.
func compliancePrimaryMarketplace(s state.SellerState) string {
	if s.Query != nil && len(s.Query.Marketplaces) > 0 {
		return s.Query.Marketplaces[0]
	}
	if s.SellerProfile != nil && len(s.SellerProfile.Marketplaces) > 0 {
		return s.SellerProfile.Marketplaces[0]
	}
	return ""
}

func complianceIssuesFromChunks(chunks []rag.Chunk) []state.ComplianceIssue {
	var issues []state.ComplianceIssue
	for _, chunk := range chunks {
		section := strings.ToLower(chunk.Section)
		text := strings.ToLower(chunk.Text)

		var code string
		var severity state.IssueSeverity
		switch {
		case strings.Contains(section, "restricted") || strings.Contains(text, "restricted"):
			code = "restricted_product_policy"
			severity = state.SeverityHigh
		case strings.Contains(section, "image") || strings.Contains(text, "image requirement"):
			code = "image_requirements"
			severity = state.SeverityMedium
		case strings.Contains(section, "title") || strings.Contains(section, "seo"):
			code = "title_seo_guidelines"
			severity = state.SeverityLow
		default:
			continue
		}

		issues = append(issues, state.ComplianceIssue{
			Code:            code,
			Severity:        severity,
			Message:         fmt.Sprintf("Retrieved policy material suggests reviewing listings against %s.", code),
			Marketplace:     chunk.Marketplace,
			Section:         chunk.Section,
			CitationSources: []string{chunk.Source},
		})
	}
	return issues
}

// complianceNode re-retrieves with a policy-focused query, overwrites the
// retrieval context, and emits per-product compliance analyses grounded in
// the retrieved chunks. Retrieval failure leaves the state unchanged.
func (d *Deps) complianceNode(ctx context.Context, s state.SellerState) (state.Update, error) {
	marketplace := compliancePrimaryMarketplace(s)
	queryText := complianceQuery(s)

	chunks, err := d.Retriever.Retrieve(ctx, rag.Query{
		Text:        queryText,
		Marketplace: marketplace,
		TopK:        complianceTopK,
	})
	if err != nil {
		d.log().Error("compliance: retrieval failed: %v", err)
		return state.Update{
			ExecutionTrace: recordStep(NodeCompliance, "rag_tool"),
		}, nil
	}

	issues := complianceIssuesFromChunks(chunks)

	var productIDs []string
	if s.ProductSelection != nil {
		productIDs = s.ProductSelection.SelectedProductIDs
	}
	if len(productIDs) == 0 {
		// Global analysis when no product scope exists.
		productIDs = []string{""}
	}

	scope := "Policies are not scoped to a single marketplace."
	if marketplace != "" {
		scope = fmt.Sprintf("Policies are scoped primarily to marketplace: %s.", marketplace)
	}
	summary := fmt.Sprintf(
		"Compliance review retrieved %d policy and guideline chunks and flagged %d potential issue(s). %s",
		len(chunks), len(issues), scope,
	)

	analyses := make([]state.ComplianceAnalysis, 0, len(productIDs))
	for _, pid := range productIDs {
		analyses = append(analyses, state.ComplianceAnalysis{
			ProductID: pid,
			Issues:    issues,
			Summary:   summary,
		})
	}

	return state.Update{
		RAGContext: &state.RAGContext{
			Query:         queryText,
			Marketplace:   marketplace,
			Backend:       "index",
			RetrievalMode: retrievalMode,
			Chunks:        chunks,
		},
		ComplianceAnalyses: analyses,
		ExecutionTrace:     recordStep(NodeCompliance, "rag_tool"),
	}, nil
}
