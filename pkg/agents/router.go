package agents

import (
	"context"
	"errors"
	"strings"

	"copilot/pkg/state"
)

// SupportedMarketplaces is the fixed marketplace universe the copilot knows.
//
//nolint:gochecknoglobals // fixed universe
var SupportedMarketplaces = []string{"amazon", "flipkart", "meesho", "myntra"}

var (
	complianceTerms = []string{"policy", "compliance", "restricted", "guideline", "image", "title", "seo", "citation"}
	pricingTerms    = []string{"margin", "price", "profit", "competitor"}
	inventoryTerms  = []string{"stock", "stockout", "reorder", "demand"}
)

// keyword buckets in tie-break order
var bucketOrder = []string{"compliance", "pricing", "inventory"}

const confidenceFloor = 0.6

func inferMarketplaces(text string) []string {
	lower := strings.ToLower(text)
	var markets []string
	for _, m := range SupportedMarketplaces {
		if strings.Contains(lower, m) {
			markets = append(markets, m)
		}
	}
	if len(markets) == 0 {
		markets = append(markets, SupportedMarketplaces...)
	}
	return markets
}

func keywordScores(rawQuery string) map[string]int {
	text := strings.ToLower(rawQuery)
	count := func(terms []string) int {
		n := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				n++
			}
		}
		return n
	}
	return map[string]int{
		"compliance": count(complianceTerms),
		"pricing":    count(pricingTerms),
		"inventory":  count(inventoryTerms),
	}
}

func applyModeDefaults(mode state.QueryMode, intents map[string]bool) {
	switch mode {
	case state.ModeWeeklyPlan:
		for _, k := range state.IntentKeys {
			intents[k] = true
		}
	case state.ModePricing:
		intents[state.IntentSales] = true
		intents[state.IntentCompetitor] = true
		intents[state.IntentPricing] = true
		intents[state.IntentProfit] = true
	case state.ModeListingSEO:
		intents[state.IntentListingSEO] = true
		intents[state.IntentCompliance] = true
		intents[state.IntentRAG] = true
	case state.ModeInventory:
		intents[state.IntentInventory] = true
		intents[state.IntentSales] = true
	case state.ModeCompliance:
		intents[state.IntentCompliance] = true
		intents[state.IntentRAG] = true
	case state.ModeProfitability:
		intents[state.IntentSales] = true
		intents[state.IntentPricing] = true
		intents[state.IntentProfit] = true
	default:
		// general_qa keeps a balanced default
		intents[state.IntentSales] = true
	}
}

func applyKeywordOverlays(intents map[string]bool, scores map[string]int) {
	if scores["compliance"] > 0 {
		intents[state.IntentCompliance] = true
		intents[state.IntentRAG] = true
		intents[state.IntentListingSEO] = true
	}
	if scores["pricing"] > 0 {
		intents[state.IntentSales] = true
		intents[state.IntentCompetitor] = true
		intents[state.IntentPricing] = true
		intents[state.IntentProfit] = true
	}
	if scores["inventory"] > 0 {
		intents[state.IntentInventory] = true
		intents[state.IntentSales] = true
	}
}

func routingConfidence(scores map[string]int) float64 {
	total := 0
	best := 0
	for _, b := range bucketOrder {
		total += scores[b]
		if scores[b] > best {
			best = scores[b]
		}
	}
	if total == 0 {
		return 0.5
	}
	return float64(best) / float64(total)
}

func strongestBucket(scores map[string]int) string {
	best := bucketOrder[0]
	for _, b := range bucketOrder[1:] {
		if scores[b] > scores[best] {
			best = b
		}
	}
	return best
}

// routerNode resolves the query into intent flags, marketplaces, and a
// routing confidence. Deterministic: mode defaults, keyword overlays, a
// balanced low-confidence widening, then the fallback override flag with its
// companion flags.
func (d *Deps) routerNode(_ context.Context, s state.SellerState) (state.Update, error) {
	if s.Query == nil {
		return state.Update{}, errors.New("router: state query is missing")
	}

	rawQuery := s.Query.RawQuery
	mode := s.Query.Mode
	if mode == "" {
		mode = state.ModeGeneralQA
	}

	marketplaces := s.Query.Marketplaces
	if len(marketplaces) == 0 {
		marketplaces = inferMarketplaces(rawQuery)
	}

	intents := make(map[string]bool, len(state.IntentKeys))
	for _, k := range state.IntentKeys {
		intents[k] = false
	}
	applyModeDefaults(mode, intents)
	scores := keywordScores(rawQuery)
	applyKeywordOverlays(intents, scores)
	confidence := routingConfidence(scores)

	// Low confidence keeps the core sales branch and widens into the
	// strongest keyword bucket, if any bucket matched at all.
	if confidence < confidenceFloor {
		intents[state.IntentSales] = true
		strongest := strongestBucket(scores)
		if scores[strongest] > 0 {
			switch strongest {
			case "compliance":
				intents[state.IntentRAG] = true
				intents[state.IntentCompliance] = true
			case "pricing":
				intents[state.IntentCompetitor] = true
				intents[state.IntentPricing] = true
				intents[state.IntentProfit] = true
			case "inventory":
				intents[state.IntentInventory] = true
			}
		}
	}

	override := s.Query.FallbackOverrideFlag
	if _, known := intents[override]; override != "" && known {
		intents[override] = true
		switch override {
		case state.IntentCompliance:
			intents[state.IntentRAG] = true
		case state.IntentPricing:
			intents[state.IntentSales] = true
			intents[state.IntentCompetitor] = true
			intents[state.IntentProfit] = true
		case state.IntentInventory:
			intents[state.IntentSales] = true
		}
	}

	var capabilities []string
	for _, k := range state.IntentKeys {
		if intents[k] {
			capabilities = append(capabilities, strings.TrimPrefix(k, "need_"))
		}
	}

	query := *s.Query
	query.RawQuery = rawQuery
	query.Mode = mode
	query.Marketplaces = marketplaces
	query.RequestedCapabilities = capabilities
	query.IntentFlags = intents
	query.RoutingConfidence = confidence

	d.log().Info("router resolved query mode=%s marketplaces=%s capabilities=%s confidence=%.2f",
		query.Mode, strings.Join(query.Marketplaces, ","),
		strings.Join(query.RequestedCapabilities, ","), confidence)

	return state.Update{
		Query:          &query,
		ExecutionTrace: recordStep(NodeRouter, "router_agent"),
	}, nil
}
