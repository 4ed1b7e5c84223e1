package warehouse

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSeeded(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "warehouse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.SeedDemo())
	// second seed is a no-op
	require.NoError(t, s.SeedDemo())
	return s
}

func TestStoreProducts(t *testing.T) {
	s := openSeeded(t)
	ctx := context.Background()

	products, err := s.ListProducts(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.Equal(t, "P-1001", products[0].ProductID)
	assert.Equal(t, []string{"amazon", "flipkart"}, products[0].Marketplaces)
	assert.Equal(t, "men", products[0].Attributes["gender"])

	page, err := s.ListProducts(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "P-1002", page[0].ProductID)

	p, err := s.GetProduct(ctx, "P-1002")
	require.NoError(t, err)
	assert.Equal(t, "AquaPure 1L Copper Water Bottle", p.Title)

	_, err = s.GetProduct(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTopProductsByRevenue(t *testing.T) {
	s := openSeeded(t)

	top, err := s.TopProductsByRevenue(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	// P-1001 sells ~9 units/day at ~2000 vs P-1002 at ~14x699
	assert.Equal(t, "P-1001", top[0].ProductID)
	assert.Equal(t, "P-1002", top[1].ProductID)
}

func TestInventoryAndCompetitors(t *testing.T) {
	s := openSeeded(t)
	ctx := context.Background()

	inv, err := s.GetInventory(ctx, "P-1001")
	require.NoError(t, err)
	assert.Equal(t, 42, inv.StockOnHand)
	assert.Equal(t, 950.0, inv.SupplierCost)

	comps, err := s.ListCompetitors(ctx, "P-1001")
	require.NoError(t, err)
	require.Len(t, comps, 2)
	assert.Equal(t, "C-2001", comps[0].CompetitorSKU)

	_, err = s.GetInventory(ctx, "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSalesHistoryOrderedByDate(t *testing.T) {
	s := openSeeded(t)

	records, err := s.ListSalesHistory(context.Background(), "P-1001")
	require.NoError(t, err)
	// 28 days x 2 marketplaces
	require.Len(t, records, 56)
	for i := 1; i < len(records); i++ {
		assert.False(t, records[i].Date.Before(records[i-1].Date))
	}
}

func TestSalesOverviewTool(t *testing.T) {
	s := openSeeded(t)
	tools := NewTools(s, nil)

	ov, err := tools.SalesOverview(context.Background(), "P-1001")
	require.NoError(t, err)
	assert.Equal(t, "P-1001", ov.Product.ProductID)
	assert.Positive(t, ov.Summary.TotalUnitsSold)
	assert.Positive(t, ov.Summary.AvgSellingPrice)
	assert.Positive(t, ov.Summary.ConversionRate)
	assert.Len(t, ov.Timeseries, 56)
}

func TestForecastDemandMovingAverage(t *testing.T) {
	s := openSeeded(t)
	tools := NewTools(s, nil)

	fc, err := tools.ForecastDemand(context.Background(), "P-1002", 7, 28)
	require.NoError(t, err)
	require.Len(t, fc.Forecast, 7)
	// Seed wobbles 13/14/15 across 28 days: ten 13s, nine 14s, nine 15s.
	assert.InDelta(t, 391.0/28.0, fc.Forecast[0].ExpectedUnits, 1e-9)
	// all points share the moving average
	assert.Equal(t, fc.Forecast[0].ExpectedUnits, fc.Forecast[6].ExpectedUnits)
}

func TestForecastDemandNoHistory(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "empty.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	tools := NewTools(s, nil)

	fc, err := tools.ForecastDemand(context.Background(), "ghost", 7, 28)
	require.NoError(t, err)
	assert.Empty(t, fc.Forecast)
}

func TestCompetitorOverviewTool(t *testing.T) {
	s := openSeeded(t)
	tools := NewTools(s, nil)

	ov, err := tools.CompetitorOverview(context.Background(), "P-1001")
	require.NoError(t, err)
	require.Len(t, ov.Competitors, 2)
	assert.Positive(t, ov.SellerAvgPrice)
	assert.InDelta(t, ov.Competitors[0].Competitor.Price-ov.SellerAvgPrice,
		ov.Competitors[0].PriceDelta, 0.001)
}

func TestSimulateProfit(t *testing.T) {
	s := openSeeded(t)
	fees := map[string]FeeConfig{
		"amazon": {
			ReferralFeePercent:       15,
			ClosingFeeFlat:           20,
			PaymentGatewayFeePercent: 2,
		},
	}
	tools := NewTools(s, fees)

	sim, err := tools.SimulateProfit(context.Background(), "P-1001", "amazon", 2000)
	require.NoError(t, err)
	assert.Equal(t, 950.0, sim.SupplierCost)
	// 15% referral + 2% gateway of 2000 plus flat 20 = 360
	assert.InDelta(t, 360.0, sim.TotalFeesPerUnit, 0.001)
	assert.InDelta(t, 2000-950-360, sim.ProfitPerUnit, 0.001)
	assert.InDelta(t, sim.ProfitPerUnit/2000*100, sim.MarginPercent, 0.001)

	// unknown marketplace degrades to zero fees
	sim, err = tools.SimulateProfit(context.Background(), "P-1001", "etsy", 2000)
	require.NoError(t, err)
	assert.Zero(t, sim.TotalFeesPerUnit)

	_, err = tools.SimulateProfit(context.Background(), "P-1001", "amazon", 0)
	assert.Error(t, err)
}

func TestEvaluateSEO(t *testing.T) {
	good := EvaluateSEO("P-1001", "amazon",
		"TrailStride Men's Running Shoes, Breathable Mesh, UK 7-11",
		[]string{"Light", "Breathable", "Durable"},
		"A long form description covering use cases, materials, sizing guidance, and care instructions for runners.",
	)
	assert.Equal(t, 100.0, good.Score)
	assert.Empty(t, good.Issues)

	bad := EvaluateSEO("P-1003", "myntra", "Yoga towel", nil, "Thin towel.")
	assert.Equal(t, 70.0, bad.Score)
	assert.Len(t, bad.Issues, 3)
}
