package warehouse

import (
	"encoding/json"
	"time"

	"copilot/pkg/logx"
)

// SeedDemo loads a small deterministic demo catalog when the warehouse is
// empty: three products with competitors, inventory, reviews, and 28 days
// of sales history each. Safe to call repeatedly.
func (s *Store) SeedDemo() error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return logx.Wrap(err, "count products")
	}
	if count > 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return logx.Wrap(err, "begin seed tx")
	}
	defer func() { _ = tx.Rollback() }()

	products := []Product{
		{
			ProductID: "P-1001", Title: "TrailStride Men's Running Shoes, Breathable Mesh, UK 7-11",
			Brand: "TrailStride", Category: "shoes", Subcategory: "running",
			Marketplaces: []string{"amazon", "flipkart"},
			Attributes:   map[string]any{"gender": "men", "size_range": "UK7-11"},
			ImageQualityScore: 0.82, ListingStatus: "active",
		},
		{
			ProductID: "P-1002", Title: "AquaPure 1L Copper Water Bottle",
			Brand: "AquaPure", Category: "home", Subcategory: "drinkware",
			Marketplaces: []string{"amazon", "meesho"},
			Attributes:   map[string]any{"material": "copper", "capacity": "1L"},
			ImageQualityScore: 0.64, ListingStatus: "active",
		},
		{
			ProductID: "P-1003", Title: "ZenWeave Cotton Yoga Mat Towel",
			Brand: "ZenWeave", Category: "sports", Subcategory: "yoga",
			Marketplaces: []string{"myntra"},
			Attributes:   map[string]any{"material": "cotton"},
			ImageQualityScore: 0.45, ListingStatus: "paused",
		},
	}
	for _, p := range products {
		markets, _ := json.Marshal(p.Marketplaces)
		attrs, _ := json.Marshal(p.Attributes)
		if _, err := tx.Exec(`
			INSERT INTO products (product_id, title, brand, category, subcategory,
				marketplaces, attributes, image_quality_score, listing_status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ProductID, p.Title, p.Brand, p.Category, p.Subcategory,
			string(markets), string(attrs), p.ImageQualityScore, p.ListingStatus,
		); err != nil {
			return logx.Wrap(err, "seed product")
		}
	}

	competitors := []CompetitorRecord{
		{CompetitorSKU: "C-2001", ProductID: "P-1001", Platform: "amazon", Title: "SpeedFlex Runner", Price: 1899, Rating: 4.2, NumReviews: 812, FulfillmentType: "FBA"},
		{CompetitorSKU: "C-2002", ProductID: "P-1001", Platform: "amazon", Title: "AeroDash Trainer", Price: 2299, Rating: 4.5, NumReviews: 1320, FulfillmentType: "FBA"},
		{CompetitorSKU: "C-2003", ProductID: "P-1002", Platform: "amazon", Title: "PureVeda Copper Bottle", Price: 649, Rating: 4.1, NumReviews: 240, FulfillmentType: "seller"},
	}
	for _, c := range competitors {
		if _, err := tx.Exec(`
			INSERT INTO competitors (competitor_sku, product_id, platform, title, price,
				rating, num_reviews, main_features, fulfillment_type)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.CompetitorSKU, c.ProductID, c.Platform, c.Title, c.Price,
			c.Rating, c.NumReviews, c.MainFeatures, c.FulfillmentType,
		); err != nil {
			return logx.Wrap(err, "seed competitor")
		}
	}

	inventory := []InventoryRecord{
		{ProductID: "P-1001", StockOnHand: 42, ReorderLevel: 60, LeadTimeDays: 12, SupplierCost: 950},
		{ProductID: "P-1002", StockOnHand: 310, ReorderLevel: 80, LeadTimeDays: 7, SupplierCost: 260},
		{ProductID: "P-1003", StockOnHand: 12, ReorderLevel: 25, LeadTimeDays: 15, SupplierCost: 410},
	}
	for _, inv := range inventory {
		if _, err := tx.Exec(`
			INSERT INTO inventory (product_id, stock_on_hand, reorder_level, lead_time_days, supplier_cost)
			VALUES (?, ?, ?, ?, ?)`,
			inv.ProductID, inv.StockOnHand, inv.ReorderLevel, inv.LeadTimeDays, inv.SupplierCost,
		); err != nil {
			return logx.Wrap(err, "seed inventory")
		}
	}

	base := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	type salesSpec struct {
		productID   string
		marketplace string
		units       int
		price       float64
		views       int
	}
	specs := []salesSpec{
		{"P-1001", "amazon", 6, 2099, 180},
		{"P-1001", "flipkart", 3, 1999, 95},
		{"P-1002", "amazon", 14, 699, 260},
		{"P-1003", "myntra", 1, 899, 30},
	}
	for _, spec := range specs {
		for day := 0; day < 28; day++ {
			d := base.AddDate(0, 0, day)
			// small deterministic wobble so the series is not flat
			units := spec.units + (day % 3) - 1
			if units < 0 {
				units = 0
			}
			revenue := float64(units) * spec.price
			if _, err := tx.Exec(`
				INSERT INTO sales_history (date, product_id, marketplace, units_sold,
					gross_revenue, price, returns, ad_spend, page_views)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				d.Format(DateFormat), spec.productID, spec.marketplace, units,
				revenue, spec.price, day%5/4, 120.0, spec.views+day,
			); err != nil {
				return logx.Wrap(err, "seed sales history")
			}
		}
	}

	reviews := []struct {
		id, productID, text string
		rating              float64
		day                 int
	}{
		{"R-1", "P-1001", "Great grip and very light, sizing runs small.", 4.0, 3},
		{"R-2", "P-1001", "Sole wore out after two months.", 2.5, 10},
		{"R-3", "P-1002", "Keeps water cool, nice finish.", 4.5, 6},
		{"R-4", "P-1003", "Fabric is thin for the price.", 3.0, 8},
	}
	for _, r := range reviews {
		if _, err := tx.Exec(`
			INSERT INTO reviews (review_id, product_id, rating, review_text, date)
			VALUES (?, ?, ?, ?, ?)`,
			r.id, r.productID, r.rating, r.text, base.AddDate(0, 0, r.day).Format(DateFormat),
		); err != nil {
			return logx.Wrap(err, "seed review")
		}
	}

	if err := tx.Commit(); err != nil {
		return logx.Wrap(err, "commit seed tx")
	}
	s.logger.Info("seeded demo warehouse: %d products", len(products))
	return nil
}
