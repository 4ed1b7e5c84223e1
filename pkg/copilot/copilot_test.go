package copilot

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"copilot/pkg/chat"
	"copilot/pkg/graph"
	"copilot/pkg/rag"
	"copilot/pkg/state"
)

type fakeRunner struct {
	mu      sync.Mutex
	inputs  []state.SellerState
	outputs []state.SellerState
}

func (f *fakeRunner) Run(_ context.Context, initial state.SellerState) (state.SellerState, []graph.TraceEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, initial.Clone())
	idx := len(f.inputs) - 1
	if idx >= len(f.outputs) {
		idx = len(f.outputs) - 1
	}
	return f.outputs[idx].Clone(), []graph.TraceEvent{{Node: "router"}}, nil
}

func (f *fakeRunner) runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

type countingRecorder struct {
	mu        sync.Mutex
	requests  int
	fallbacks int
}

func (c *countingRecorder) ObserveRequest(string, bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++
}
func (c *countingRecorder) ObserveNode(string, time.Duration, error) {}
func (c *countingRecorder) IncBranchSkip(string)                    {}
func (c *countingRecorder) IncFallback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallbacks++
}

func weakFinal(rawQuery string, flags map[string]bool) state.SellerState {
	return state.SellerState{
		Query: &state.QueryContext{
			RawQuery:          rawQuery,
			Mode:              state.ModeGeneralQA,
			RoutingConfidence: 0.5,
			IntentFlags:       flags,
		},
		ActionPlan:  &state.ActionPlan{Actions: []state.ActionItem{{ID: "a-1", Title: "one"}}},
		FinalAnswer: &state.FinalAnswer{AnswerMarkdown: "thin answer"},
	}
}

func strongFinal(rawQuery string) state.SellerState {
	s := weakFinal(rawQuery, map[string]bool{state.IntentSales: true, state.IntentPricing: true})
	s.Query.RoutingConfidence = 0.9
	s.ActionPlan.Actions = append(s.ActionPlan.Actions, state.ActionItem{ID: "a-2", Title: "two"})
	s.FinalAnswer.AnswerMarkdown = "full answer"
	return s
}

func TestAnalyzeRejectsEmptyQuery(t *testing.T) {
	svc := NewService(&fakeRunner{outputs: []state.SellerState{{}}}, nil, nil)
	_, err := svc.Analyze(context.Background(), Request{Query: "   "})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "query", verr.Field)
}

func TestAnalyzeFallbackRerunsOnce(t *testing.T) {
	runner := &fakeRunner{outputs: []state.SellerState{
		weakFinal("what is my profit margin?", map[string]bool{state.IntentSales: true}),
		strongFinal("what is my profit margin?"),
	}}
	rec := &countingRecorder{}
	svc := NewService(runner, nil, rec)

	resp, err := svc.Analyze(context.Background(), Request{Query: "what is my profit margin?"})
	require.NoError(t, err)

	assert.Equal(t, 2, runner.runs())
	assert.Equal(t, 1, rec.fallbacks)

	rerunInput := runner.inputs[1]
	assert.Equal(t, state.IntentPricing, rerunInput.Query.FallbackOverrideFlag)
	assert.True(t, rerunInput.FallbackApplied())

	assert.True(t, resp.RoutingDebug.FallbackApplied)
	assert.Equal(t, state.IntentPricing, resp.RoutingDebug.FallbackBranch)
	assert.Equal(t, "full answer", resp.FinalAnswer.AnswerMarkdown)
	assert.NotEmpty(t, resp.RequestID)
}

func TestAnalyzeFallbackIsSingleShot(t *testing.T) {
	already := weakFinal("margin question again", map[string]bool{state.IntentSales: true})
	already.AnswerQualitySignals = map[string]float64{"fallback_applied": 1.0}

	runner := &fakeRunner{outputs: []state.SellerState{already}}
	rec := &countingRecorder{}
	svc := NewService(runner, nil, rec)

	resp, err := svc.Analyze(context.Background(), Request{Query: "margin question again"})
	require.NoError(t, err)

	assert.Equal(t, 1, runner.runs())
	assert.Equal(t, 0, rec.fallbacks)
	assert.True(t, resp.RoutingDebug.FallbackApplied)
	assert.Empty(t, resp.RoutingDebug.FallbackBranch)
}

func TestAnalyzeNoFallbackWhenConfident(t *testing.T) {
	runner := &fakeRunner{outputs: []state.SellerState{strongFinal("how are sales?")}}
	svc := NewService(runner, nil, nil)

	resp, err := svc.Analyze(context.Background(), Request{Query: "how are sales?"})
	require.NoError(t, err)
	assert.Equal(t, 1, runner.runs())
	assert.False(t, resp.RoutingDebug.FallbackApplied)
}

func TestFallbackFlagBucketOrder(t *testing.T) {
	svc := NewService(&fakeRunner{outputs: []state.SellerState{{}}}, nil, nil)

	cases := []struct {
		name  string
		query string
		flags map[string]bool
		want  string
	}{
		{"compliance terms win", "is this listing against policy and price rules?", nil, state.IntentCompliance},
		{"pricing terms", "my price looks wrong", nil, state.IntentPricing},
		{"inventory terms", "will I hit a stockout?", nil, state.IntentInventory},
		{"citation counts as compliance", "please cite the rules", nil, state.IntentCompliance},
		{
			"no bucket falls to first unset",
			"help me somehow",
			map[string]bool{state.IntentCompliance: true},
			state.IntentPricing,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			final := weakFinal(tc.query, tc.flags)
			flag, ok := svc.fallbackFlag(final)
			require.True(t, ok)
			assert.Equal(t, tc.want, flag)
		})
	}
}

func TestFallbackFlagRespectsExistingIntent(t *testing.T) {
	svc := NewService(&fakeRunner{outputs: []state.SellerState{{}}}, nil, nil)

	// Pricing terms but pricing already ran: the plan is thin for another
	// reason, so the next unset bucket is forced instead.
	final := weakFinal("my price looks wrong", map[string]bool{state.IntentPricing: true})
	flag, ok := svc.fallbackFlag(final)
	require.True(t, ok)
	assert.Equal(t, state.IntentCompliance, flag)
}

func TestFallbackFlagMissingCitationEvidence(t *testing.T) {
	svc := NewService(&fakeRunner{outputs: []state.SellerState{{}}}, nil, nil)

	final := weakFinal("cite the image policy", nil)
	// Plan is healthy but the requested citations have no evidence.
	final.ActionPlan.Actions = append(final.ActionPlan.Actions, state.ActionItem{ID: "a-2"})
	flag, ok := svc.fallbackFlag(final)
	require.True(t, ok)
	assert.Equal(t, state.IntentCompliance, flag)

	// With retrieved chunks present the same state needs no rerun.
	final.RAGContext = &state.RAGContext{Chunks: []rag.Chunk{{ID: "c1"}}}
	_, ok = svc.fallbackFlag(final)
	assert.False(t, ok)
}

func TestUsedToolsParsing(t *testing.T) {
	trace := []string{
		"agent=router tools=router_agent",
		"agent=sales tools=sales_tool",
		"agent=rag tools=rag_tool",
		"agent=compliance tools=rag_tool",
		"agent=planner tools=llm",
		"agent=analysis_join",
		"agent=competitor skipped reason=intent_not_required",
	}
	assert.Equal(t,
		[]string{"llm", "rag_tool", "router_agent", "sales_tool"},
		UsedTools(trace))
	assert.Empty(t, UsedTools(nil))
}

func TestUsedRAGEvidenceDedupesAndCaps(t *testing.T) {
	chunks := make([]rag.Chunk, 0, 14)
	for i := 0; i < 12; i++ {
		chunks = append(chunks, rag.Chunk{
			Marketplace: "amazon",
			Section:     "sec-" + string(rune('a'+i)),
			Source:      "doc.md",
		})
	}
	chunks = append(chunks, rag.Chunk{Marketplace: "amazon", Section: "sec-a", Source: "doc.md"})
	chunks = append(chunks, rag.Chunk{})

	s := state.SellerState{RAGContext: &state.RAGContext{Chunks: chunks}}
	evidence := UsedRAGEvidence(s)
	assert.Len(t, evidence, 10)
	assert.Equal(t, "amazon:sec-a:doc.md", evidence[0])

	short := state.SellerState{RAGContext: &state.RAGContext{Chunks: []rag.Chunk{{}}}}
	assert.Equal(t, []string{"any:unknown_section:unknown_source"}, UsedRAGEvidence(short))
	assert.Nil(t, UsedRAGEvidence(state.SellerState{}))
}

func TestExtractSellerName(t *testing.T) {
	assert.Equal(t, "Asha Rao", ExtractSellerName("Hi, my name is Asha Rao. I sell shoes"))
	assert.Equal(t, "Dev", ExtractSellerName("I'm Dev, how are my sales?"))
	assert.Empty(t, ExtractSellerName("how are my sales?"))
}

func openTestStore(t *testing.T) *chat.Store {
	t.Helper()
	store, err := chat.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestAnalyzePersistsSessionAndTurns(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	runner := &fakeRunner{outputs: []state.SellerState{strongFinal("how are my sales?")}}
	svc := NewService(runner, store, nil)

	resp, err := svc.Analyze(ctx, Request{
		Query:    "My name is Asha. How are my sales?",
		SellerID: "seller-1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.SessionID)

	sess, err := store.GetSession(ctx, resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "seller-1", sess.SellerID)

	facts, err := store.MemoryFacts(ctx, resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Asha", facts["seller_name"])

	messages, err := store.ListMessages(ctx, resp.SessionID, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "assistant", messages[1].Role)
	assert.Equal(t, resp.RequestID, messages[0].RequestID)
	assert.Equal(t, "full answer", messages[1].Content)

	// A follow-up on the same session carries memory and history into the run.
	_, err = svc.Analyze(ctx, Request{Query: "and what about pricing?", SessionID: resp.SessionID})
	require.NoError(t, err)
	require.Equal(t, 2, runner.runs())

	followUp := runner.inputs[1]
	assert.Contains(t, followUp.Query.MemoryFacts, "seller_name=Asha")
	assert.NotEmpty(t, followUp.Query.RecentChatTurns)
	assert.Equal(t, resp.SessionID, followUp.Query.SessionID)
}

func TestSubmitFeedback(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	svc := NewService(&fakeRunner{outputs: []state.SellerState{{}}}, store, nil)

	id, err := svc.SubmitFeedback(ctx, FeedbackRequest{
		RequestID: "req-1",
		Rating:    4,
		Comment:   "helpful",
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	items, err := store.ListFeedback(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].Rating)

	_, err = svc.SubmitFeedback(ctx, FeedbackRequest{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}
