package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"copilot/pkg/state"
)

const profileCatalogLimit = 10000

// routerNode's successors: the profile and selector nodes aggregate the
// warehouse before any branch runs.

func (d *Deps) sellerProfileNode(ctx context.Context, s state.SellerState) (state.Update, error) {
	products, err := d.Repo.ListProducts(ctx, profileCatalogLimit, 0)
	if err != nil {
		return state.Update{}, err
	}

	total := len(products)
	active := 0
	marketSet := map[string]bool{}
	categoryCount := map[string]int{}
	for _, p := range products {
		if p.ListingStatus == "active" {
			active++
		}
		for _, m := range p.Marketplaces {
			marketSet[m] = true
		}
		if p.Category != "" {
			categoryCount[p.Category]++
		}
	}

	marketplaces := make([]string, 0, len(marketSet))
	for m := range marketSet {
		marketplaces = append(marketplaces, m)
	}
	sort.Strings(marketplaces)

	primary := topCategories(categoryCount, 5)

	sellerID := "seller-1"
	if s.Query != nil && s.Query.SellerID != "" {
		sellerID = s.Query.SellerID
	}

	profile := &state.SellerProfile{
		SellerID:          sellerID,
		TotalProducts:     total,
		ActiveProducts:    active,
		Marketplaces:      marketplaces,
		PrimaryCategories: primary,
		Summary: fmt.Sprintf(
			"Seller currently has %d products (%d active listings) across marketplaces: %s. Primary categories: %s.",
			total, active, orNone(strings.Join(marketplaces, ", ")),
			orNotAvailable(strings.Join(primary, ", ")),
		),
	}

	d.log().Debug("seller profile: %d products, %d active", total, active)

	return state.Update{
		SellerProfile:  profile,
		ExecutionTrace: recordStep(NodeSellerProfile, "seller_repository"),
	}, nil
}

func topCategories(counts map[string]int, topK int) []string {
	type entry struct {
		name  string
		count int
	}
	entries := make([]entry, 0, len(counts))
	for name, count := range counts {
		entries = append(entries, entry{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})
	if len(entries) > topK {
		entries = entries[:topK]
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.name)
	}
	return out
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

func orNotAvailable(s string) string {
	if s == "" {
		return "not available"
	}
	return s
}

const maxSelectedProducts = 20

// productSelectorNode picks the SKUs the analysis branches focus on: an
// existing non-empty selection is left untouched, otherwise top products by
// gross revenue.
func (d *Deps) productSelectorNode(ctx context.Context, s state.SellerState) (state.Update, error) {
	if s.ProductSelection != nil && len(s.ProductSelection.SelectedProductIDs) > 0 {
		d.log().Debug("product selector: keeping existing selection of %d", len(s.ProductSelection.SelectedProductIDs))
		return state.Update{
			ExecutionTrace: recordStep(NodeProductSelector, "seller_repository"),
		}, nil
	}

	top, err := d.Repo.TopProductsByRevenue(ctx, maxSelectedProducts)
	if err != nil {
		return state.Update{}, err
	}
	ids := make([]string, 0, len(top))
	for _, p := range top {
		ids = append(ids, p.ProductID)
	}

	selection := &state.ProductSelection{
		Filter:             state.ProductFilter{},
		SelectedProductIDs: ids,
		Notes:              "Selected top products by gross revenue from the warehouse.",
	}
	if len(ids) == 0 {
		selection.Notes = "No products found in warehouse."
	}

	return state.Update{
		ProductSelection: selection,
		ExecutionTrace:   recordStep(NodeProductSelector, "seller_repository"),
	}, nil
}

// selectedProductIDs is the shared branch policy for choosing products:
// explicit selection first, then a catalog slice.
func (d *Deps) selectedProductIDs(ctx context.Context, s state.SellerState, maxProducts int) ([]string, error) {
	if s.ProductSelection != nil && len(s.ProductSelection.SelectedProductIDs) > 0 {
		return s.ProductSelection.SelectedProductIDs, nil
	}
	products, err := d.Repo.ListProducts(ctx, maxProducts, 0)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ProductID)
	}
	return ids, nil
}
