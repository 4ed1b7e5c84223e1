package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyOverwriteChannels(t *testing.T) {
	doc := SellerState{}

	doc = Apply(doc, Update{Query: &QueryContext{RawQuery: "first", Mode: ModeGeneralQA}})
	doc = Apply(doc, Update{Query: &QueryContext{RawQuery: "second", Mode: ModePricing}})
	doc = Apply(doc, Update{FinalAnswer: &FinalAnswer{AnswerMarkdown: "done"}})
	doc = Apply(doc, Update{})

	require.NotNil(t, doc.Query)
	assert.Equal(t, "second", doc.Query.RawQuery)
	assert.Equal(t, ModePricing, doc.Query.Mode)
	require.NotNil(t, doc.FinalAnswer)
	assert.Equal(t, "done", doc.FinalAnswer.AnswerMarkdown)
}

func TestApplyMergesAnalysesByProductID(t *testing.T) {
	doc := SellerState{}

	doc = Apply(doc, Update{SalesAnalyses: []SalesAnalysis{
		{ProductID: "p1", TotalUnitsSold: 10},
		{ProductID: "p2", TotalUnitsSold: 20},
	}})
	doc = Apply(doc, Update{SalesAnalyses: []SalesAnalysis{
		{ProductID: "p2", TotalUnitsSold: 25},
		{ProductID: "p3", TotalUnitsSold: 5},
	}})

	require.Len(t, doc.SalesAnalyses, 3)
	assert.Equal(t, "p1", doc.SalesAnalyses[0].ProductID)
	assert.Equal(t, 25, doc.SalesAnalyses[1].TotalUnitsSold)
	assert.Equal(t, "p3", doc.SalesAnalyses[2].ProductID)
}

func TestApplyBranchActionsFirstWriterWins(t *testing.T) {
	doc := SellerState{}

	doc = Apply(doc, Update{ListingBranchActions: []ActionItem{
		{ID: "X", Title: "from listing"},
	}})
	doc = Apply(doc, Update{ListingBranchActions: []ActionItem{
		{ID: "X", Title: "late duplicate"},
		{ID: "Y", Title: "new"},
	}})

	require.Len(t, doc.ListingBranchActions, 2)
	assert.Equal(t, "from listing", doc.ListingBranchActions[0].Title)
	assert.Equal(t, "Y", doc.ListingBranchActions[1].ID)
}

func TestApplyControlChannels(t *testing.T) {
	doc := SellerState{}

	doc = Apply(doc, Update{
		ExecutionTrace:  []string{"agent=router tools=router_agent"},
		ActiveBranches:  []string{"sales", "rag"},
		SkippedBranches: []string{"competitor"},
	})
	doc = Apply(doc, Update{
		ExecutionTrace:       []string{"agent=sales tools=sales_tool"},
		ActiveBranches:       []string{"rag", "inventory"},
		AnswerQualitySignals: map[string]float64{"fallback_applied": 1.0},
	})

	assert.Equal(t, []string{
		"agent=router tools=router_agent",
		"agent=sales tools=sales_tool",
	}, doc.ExecutionTrace)
	assert.Equal(t, []string{"sales", "rag", "inventory"}, doc.ActiveBranches)
	assert.Equal(t, []string{"competitor"}, doc.SkippedBranches)
	assert.True(t, doc.FallbackApplied())
}

func TestApplyDoesNotMutateInputs(t *testing.T) {
	base := SellerState{
		ExecutionTrace: []string{"agent=router"},
		SalesAnalyses:  []SalesAnalysis{{ProductID: "p1", TotalUnitsSold: 1}},
	}

	_ = Apply(base, Update{
		ExecutionTrace: []string{"agent=sales"},
		SalesAnalyses:  []SalesAnalysis{{ProductID: "p1", TotalUnitsSold: 99}},
	})

	assert.Equal(t, []string{"agent=router"}, base.ExecutionTrace)
	assert.Equal(t, 1, base.SalesAnalyses[0].TotalUnitsSold)
}

func TestCloneIsDeep(t *testing.T) {
	doc := SellerState{
		Query: &QueryContext{
			RawQuery:    "q",
			Mode:        ModeGeneralQA,
			IntentFlags: map[string]bool{IntentSales: true},
		},
		ActionPlan: &ActionPlan{
			Actions: []ActionItem{{ID: "a1", Title: "t"}},
		},
		AnswerQualitySignals: map[string]float64{"fallback_applied": 0},
	}

	clone := doc.Clone()
	clone.Query.IntentFlags[IntentPricing] = true
	clone.Query.RawQuery = "changed"
	clone.ActionPlan.Actions[0].Title = "changed"
	clone.AnswerQualitySignals["fallback_applied"] = 1

	assert.Equal(t, "q", doc.Query.RawQuery)
	assert.False(t, doc.Query.IntentFlags[IntentPricing])
	assert.Equal(t, "t", doc.ActionPlan.Actions[0].Title)
	assert.Equal(t, 0.0, doc.AnswerQualitySignals["fallback_applied"])
}

func TestValidate(t *testing.T) {
	ok := SellerState{
		Query:      &QueryContext{RawQuery: "q", Mode: ModeGeneralQA, RoutingConfidence: 0.5},
		ActionPlan: &ActionPlan{Actions: []ActionItem{{ID: "a"}, {ID: "b"}}},
	}
	assert.NoError(t, ok.Validate())

	badConfidence := SellerState{Query: &QueryContext{RoutingConfidence: 1.5}}
	assert.Error(t, badConfidence.Validate())

	dupIDs := SellerState{ActionPlan: &ActionPlan{Actions: []ActionItem{{ID: "a"}, {ID: "a"}}}}
	assert.Error(t, dupIDs.Validate())
}

func TestIntentDefaultsFalse(t *testing.T) {
	var q *QueryContext
	assert.False(t, q.Intent(IntentSales))

	q = &QueryContext{}
	assert.False(t, q.Intent(IntentSales))

	q.IntentFlags = map[string]bool{IntentSales: true}
	assert.True(t, q.Intent(IntentSales))
	assert.False(t, q.Intent(IntentPricing))
}
