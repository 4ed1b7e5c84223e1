// Package warehouse is the read-mostly seller data warehouse: products,
// sales history, inventory, competitors, and reviews on SQLite, plus the
// derived analysis tools built on top of them.
package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"copilot/pkg/logx"
)

// ErrNotFound is returned when a lookup by id matches nothing.
var ErrNotFound = errors.New("not found")

// DateFormat is how dates are stored in the warehouse.
const DateFormat = "2006-01-02"

// Product is one catalog row.
type Product struct {
	ProductID         string         `json:"product_id"`
	Title             string         `json:"title"`
	Brand             string         `json:"brand,omitempty"`
	Category          string         `json:"category,omitempty"`
	Subcategory       string         `json:"subcategory,omitempty"`
	Marketplaces      []string       `json:"marketplaces"`
	Attributes        map[string]any `json:"attributes,omitempty"`
	ImageQualityScore float64        `json:"image_quality_score,omitempty"`
	ListingStatus     string         `json:"listing_status"`
}

// CompetitorRecord is one observed competitor listing for a product.
type CompetitorRecord struct {
	CompetitorSKU   string  `json:"competitor_sku"`
	ProductID       string  `json:"product_id"`
	Platform        string  `json:"platform"`
	Title           string  `json:"title"`
	Price           float64 `json:"price"`
	Rating          float64 `json:"rating,omitempty"`
	NumReviews      int     `json:"num_reviews,omitempty"`
	MainFeatures    string  `json:"main_features,omitempty"`
	FulfillmentType string  `json:"fulfillment_type,omitempty"`
}

// InventoryRecord is the stock position for a product.
type InventoryRecord struct {
	ProductID    string  `json:"product_id"`
	StockOnHand  int     `json:"stock_on_hand"`
	ReorderLevel int     `json:"reorder_level"`
	LeadTimeDays int     `json:"lead_time_days"`
	SupplierCost float64 `json:"supplier_cost"`
}

// ReviewRecord is one customer review.
type ReviewRecord struct {
	ReviewID   string    `json:"review_id"`
	ProductID  string    `json:"product_id"`
	Rating     float64   `json:"rating"`
	ReviewText string    `json:"review_text"`
	Date       time.Time `json:"date"`
}

// SalesRecord is one day of sales for a product on one marketplace.
type SalesRecord struct {
	Date         time.Time `json:"date"`
	ProductID    string    `json:"product_id"`
	Marketplace  string    `json:"marketplace"`
	UnitsSold    int       `json:"units_sold"`
	GrossRevenue float64   `json:"gross_revenue"`
	Price        float64   `json:"price"`
	Returns      int       `json:"returns"`
	AdSpend      float64   `json:"ad_spend"`
	PageViews    int       `json:"page_views"`
}

// Repository is the read-only warehouse surface the copilot consumes.
type Repository interface {
	ListProducts(ctx context.Context, limit, offset int) ([]Product, error)
	GetProduct(ctx context.Context, productID string) (*Product, error)
	TopProductsByRevenue(ctx context.Context, limit int) ([]Product, error)
	ListCompetitors(ctx context.Context, productID string) ([]CompetitorRecord, error)
	GetInventory(ctx context.Context, productID string) (*InventoryRecord, error)
	ListReviews(ctx context.Context, productID string, limit int) ([]ReviewRecord, error)
	ListSalesHistory(ctx context.Context, productID string) ([]SalesRecord, error)
}

// Store implements Repository on SQLite.
type Store struct {
	db     *sql.DB
	logger *logx.Logger
}

// Open opens (creating if needed) the warehouse database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_foreign_keys=ON&_journal_mode=WAL&_busy_timeout=5000",
		path,
	))
	if err != nil {
		return nil, logx.Wrap(err, "open warehouse db")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, logx.Wrap(err, "ping warehouse db")
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logx.NewLogger("warehouse")}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info("warehouse opened: %s", path)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		product_id          TEXT PRIMARY KEY,
		title               TEXT NOT NULL,
		brand               TEXT,
		category            TEXT,
		subcategory         TEXT,
		marketplaces        TEXT NOT NULL DEFAULT '[]',
		attributes          TEXT NOT NULL DEFAULT '{}',
		image_quality_score REAL,
		listing_status      TEXT NOT NULL DEFAULT 'active'
	);
	CREATE TABLE IF NOT EXISTS competitors (
		competitor_sku   TEXT NOT NULL,
		product_id       TEXT NOT NULL REFERENCES products(product_id),
		platform         TEXT NOT NULL,
		title            TEXT NOT NULL,
		price            REAL NOT NULL,
		rating           REAL,
		num_reviews      INTEGER,
		main_features    TEXT,
		fulfillment_type TEXT,
		PRIMARY KEY (competitor_sku, product_id)
	);
	CREATE TABLE IF NOT EXISTS inventory (
		product_id     TEXT PRIMARY KEY REFERENCES products(product_id),
		stock_on_hand  INTEGER NOT NULL,
		reorder_level  INTEGER NOT NULL,
		lead_time_days INTEGER NOT NULL,
		supplier_cost  REAL NOT NULL
	);
	CREATE TABLE IF NOT EXISTS reviews (
		review_id   TEXT PRIMARY KEY,
		product_id  TEXT NOT NULL REFERENCES products(product_id),
		rating      REAL NOT NULL,
		review_text TEXT NOT NULL,
		date        TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sales_history (
		date          TEXT NOT NULL,
		product_id    TEXT NOT NULL REFERENCES products(product_id),
		marketplace   TEXT NOT NULL,
		units_sold    INTEGER NOT NULL,
		gross_revenue REAL NOT NULL,
		price         REAL NOT NULL,
		returns       INTEGER NOT NULL,
		ad_spend      REAL NOT NULL,
		page_views    INTEGER NOT NULL,
		PRIMARY KEY (date, product_id, marketplace)
	);
	CREATE INDEX IF NOT EXISTS idx_sales_history_product ON sales_history(product_id, date);
	CREATE INDEX IF NOT EXISTS idx_reviews_product ON reviews(product_id, date);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return logx.Wrap(err, "init warehouse schema")
	}
	return nil
}

const productColumns = `product_id, title, COALESCE(brand,''), COALESCE(category,''),
	COALESCE(subcategory,''), marketplaces, attributes,
	COALESCE(image_quality_score, 0), listing_status`

func scanProduct(row interface{ Scan(...any) error }) (*Product, error) {
	var p Product
	var marketplacesJSON, attributesJSON string
	err := row.Scan(
		&p.ProductID, &p.Title, &p.Brand, &p.Category, &p.Subcategory,
		&marketplacesJSON, &attributesJSON, &p.ImageQualityScore, &p.ListingStatus,
	)
	if err != nil {
		return nil, err
	}
	p.Marketplaces = parseMarketplaces(marketplacesJSON)
	if attributesJSON != "" {
		_ = json.Unmarshal([]byte(attributesJSON), &p.Attributes)
	}
	return &p, nil
}

// parseMarketplaces accepts a JSON list or a comma-separated string; both
// appear in imported catalog data.
func parseMarketplaces(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var out []string
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out
		}
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ListProducts returns one page of the catalog.
func (s *Store) ListProducts(ctx context.Context, limit, offset int) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY product_id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, logx.Wrap(err, "list products")
	}
	defer func() { _ = rows.Close() }()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, logx.Wrap(err, "scan product")
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetProduct fetches one product or ErrNotFound.
func (s *Store) GetProduct(ctx context.Context, productID string) (*Product, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE product_id = ?`, productID)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", productID, ErrNotFound)
	}
	if err != nil {
		return nil, logx.Wrap(err, "get product")
	}
	return p, nil
}

// TopProductsByRevenue returns products ordered by total gross revenue,
// products without sales last.
func (s *Store) TopProductsByRevenue(ctx context.Context, limit int) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+strings.ReplaceAll(productColumns, "product_id", "p.product_id")+`
		FROM products p
		LEFT JOIN sales_history s ON p.product_id = s.product_id
		GROUP BY p.product_id
		ORDER BY COALESCE(SUM(s.gross_revenue), 0.0) DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, logx.Wrap(err, "top products by revenue")
	}
	defer func() { _ = rows.Close() }()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, logx.Wrap(err, "scan product")
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ListCompetitors returns all competitor records for a product.
func (s *Store) ListCompetitors(ctx context.Context, productID string) ([]CompetitorRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT competitor_sku, product_id, platform, title, price,
		       COALESCE(rating, 0), COALESCE(num_reviews, 0),
		       COALESCE(main_features, ''), COALESCE(fulfillment_type, '')
		FROM competitors WHERE product_id = ? ORDER BY competitor_sku`,
		productID,
	)
	if err != nil {
		return nil, logx.Wrap(err, "list competitors")
	}
	defer func() { _ = rows.Close() }()

	var out []CompetitorRecord
	for rows.Next() {
		var c CompetitorRecord
		if err := rows.Scan(
			&c.CompetitorSKU, &c.ProductID, &c.Platform, &c.Title, &c.Price,
			&c.Rating, &c.NumReviews, &c.MainFeatures, &c.FulfillmentType,
		); err != nil {
			return nil, logx.Wrap(err, "scan competitor")
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetInventory fetches the stock position for a product or ErrNotFound.
func (s *Store) GetInventory(ctx context.Context, productID string) (*InventoryRecord, error) {
	var inv InventoryRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT product_id, stock_on_hand, reorder_level, lead_time_days, supplier_cost
		FROM inventory WHERE product_id = ?`, productID,
	).Scan(&inv.ProductID, &inv.StockOnHand, &inv.ReorderLevel, &inv.LeadTimeDays, &inv.SupplierCost)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("inventory for %s: %w", productID, ErrNotFound)
	}
	if err != nil {
		return nil, logx.Wrap(err, "get inventory")
	}
	return &inv, nil
}

// ListReviews returns the most recent reviews for a product.
func (s *Store) ListReviews(ctx context.Context, productID string, limit int) ([]ReviewRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT review_id, product_id, rating, review_text, date
		FROM reviews WHERE product_id = ? ORDER BY date DESC LIMIT ?`,
		productID, limit,
	)
	if err != nil {
		return nil, logx.Wrap(err, "list reviews")
	}
	defer func() { _ = rows.Close() }()

	var out []ReviewRecord
	for rows.Next() {
		var r ReviewRecord
		var day string
		if err := rows.Scan(&r.ReviewID, &r.ProductID, &r.Rating, &r.ReviewText, &day); err != nil {
			return nil, logx.Wrap(err, "scan review")
		}
		r.Date, _ = time.Parse(DateFormat, day)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListSalesHistory returns all sales rows for a product in date order.
func (s *Store) ListSalesHistory(ctx context.Context, productID string) ([]SalesRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, product_id, marketplace, units_sold, gross_revenue,
		       price, returns, ad_spend, page_views
		FROM sales_history WHERE product_id = ? ORDER BY date, marketplace`,
		productID,
	)
	if err != nil {
		return nil, logx.Wrap(err, "list sales history")
	}
	defer func() { _ = rows.Close() }()

	var out []SalesRecord
	for rows.Next() {
		var r SalesRecord
		var day string
		if err := rows.Scan(
			&day, &r.ProductID, &r.Marketplace, &r.UnitsSold, &r.GrossRevenue,
			&r.Price, &r.Returns, &r.AdSpend, &r.PageViews,
		); err != nil {
			return nil, logx.Wrap(err, "scan sales record")
		}
		r.Date, _ = time.Parse(DateFormat, day)
		out = append(out, r)
	}
	return out, rows.Err()
}
