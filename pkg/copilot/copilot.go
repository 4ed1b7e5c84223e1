// Package copilot is the service layer in front of the agent graph: it
// resolves chat sessions, runs the workflow, applies the single-shot routing
// fallback, and assembles the user-facing response.
package copilot

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"copilot/pkg/chat"
	"copilot/pkg/graph"
	"copilot/pkg/logx"
	"copilot/pkg/metrics"
	"copilot/pkg/state"
)

// ValidationError reports a rejected request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Runner executes the agent workflow. *graph.Graph satisfies it.
type Runner interface {
	Run(ctx context.Context, initial state.SellerState) (state.SellerState, []graph.TraceEvent, error)
}

// Request is one analyze call.
type Request struct {
	Query        string   `json:"query"`
	Mode         string   `json:"mode,omitempty"`
	Marketplaces []string `json:"marketplaces,omitempty"`
	Language     string   `json:"language,omitempty"`
	SessionID    string   `json:"session_id,omitempty"`
	SellerID     string   `json:"seller_id,omitempty"`
	SellerName   string   `json:"seller_name,omitempty"`
}

// RoutingDebug exposes how the run was routed, for clients and logs.
type RoutingDebug struct {
	Mode                  string          `json:"mode"`
	RequestedCapabilities []string        `json:"requested_capabilities,omitempty"`
	IntentFlags           map[string]bool `json:"intent_flags,omitempty"`
	RoutingConfidence     float64         `json:"routing_confidence"`
	ActiveBranches        []string        `json:"active_branches,omitempty"`
	SkippedBranches       []string        `json:"skipped_branches,omitempty"`
	FallbackApplied       bool            `json:"fallback_applied"`
	FallbackBranch        string          `json:"fallback_branch,omitempty"`
}

// Response is the result of one analyze call.
type Response struct {
	RequestID       string              `json:"request_id"`
	SessionID       string              `json:"session_id,omitempty"`
	FinalAnswer     *state.FinalAnswer  `json:"final_answer,omitempty"`
	Critique        *state.Critique     `json:"critique,omitempty"`
	HITLFeedback    *state.HITLFeedback `json:"hitl_feedback,omitempty"`
	ExecutionTrace  []string            `json:"execution_trace,omitempty"`
	UsedTools       []string            `json:"used_tools,omitempty"`
	UsedRAGEvidence []string            `json:"used_rag_evidence,omitempty"`
	RoutingDebug    RoutingDebug        `json:"routing_debug"`
	State           *state.SellerState  `json:"state,omitempty"`
}

// FeedbackRequest records human feedback on a previous response.
type FeedbackRequest struct {
	RequestID string         `json:"request_id"`
	SessionID string         `json:"session_id,omitempty"`
	Rating    int            `json:"rating,omitempty"`
	Comment   string         `json:"comment,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Service ties the workflow to session storage and metrics. Store may be nil
// for stateless use.
type Service struct {
	runner   Runner
	store    *chat.Store
	recorder metrics.Recorder
	logger   *logx.Logger
}

// NewService creates the service. recorder may be nil.
func NewService(runner Runner, store *chat.Store, recorder metrics.Recorder) *Service {
	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}
	return &Service{
		runner:   runner,
		store:    store,
		recorder: recorder,
		logger:   logx.NewLogger("copilot"),
	}
}

const (
	confidenceFloor   = 0.6
	maxEvidenceItems  = 10
	maxSellerNameLen  = 64
	recentTurnPairs   = 3
	fallbackSignalKey = "fallback_applied"
)

var sellerNameRe = regexp.MustCompile(`(?i)\b(?:my name is|i am|i'm)\s+([A-Za-z][A-Za-z\s'-]{1,60})\b`)

// ExtractSellerName pulls a self-introduced name out of the query text.
func ExtractSellerName(query string) string {
	m := sellerNameRe.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	name := strings.TrimSpace(m[1])
	if len(name) > maxSellerNameLen {
		name = name[:maxSellerNameLen]
	}
	return name
}

// Analyze runs the full workflow for one seller question.
func (s *Service) Analyze(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, &ValidationError{Field: "query", Message: "query must not be empty"}
	}

	requestID := uuid.NewString()
	start := time.Now()
	mode := req.Mode
	success := false
	defer func() {
		s.recorder.ObserveRequest(mode, success, time.Since(start))
	}()

	query := &state.QueryContext{
		RawQuery:     req.Query,
		Mode:         state.QueryMode(req.Mode),
		Marketplaces: req.Marketplaces,
		Language:     req.Language,
		SellerID:     req.SellerID,
		SellerName:   req.SellerName,
	}

	sessionID, err := s.prepareSession(ctx, req, requestID, query)
	if err != nil {
		return nil, err
	}
	query.SessionID = sessionID

	initial := state.SellerState{
		Query:                query,
		AnswerQualitySignals: map[string]float64{},
	}

	final, _, err := s.runner.Run(ctx, initial)
	if err != nil {
		return nil, logx.Wrap(err, "workflow run")
	}

	fallbackBranch := ""
	if flag, ok := s.fallbackFlag(final); ok {
		s.logger.Info("request=%s low-quality answer, rerunning with %s forced", requestID, flag)
		s.recorder.IncFallback()
		fallbackBranch = flag

		rerun := final.Clone()
		rerun.Query.FallbackOverrideFlag = flag
		if rerun.AnswerQualitySignals == nil {
			rerun.AnswerQualitySignals = map[string]float64{}
		}
		rerun.AnswerQualitySignals[fallbackSignalKey] = 1.0

		final, _, err = s.runner.Run(ctx, rerun)
		if err != nil {
			return nil, logx.Wrap(err, "fallback rerun")
		}
		if final.AnswerQualitySignals == nil {
			final.AnswerQualitySignals = map[string]float64{}
		}
		final.AnswerQualitySignals[fallbackSignalKey] = 1.0
	}

	if final.Query != nil {
		mode = string(final.Query.Mode)
	}

	resp := s.assembleResponse(requestID, sessionID, fallbackBranch, final)
	s.persistTurn(ctx, sessionID, requestID, req.Query, resp)

	success = true
	return resp, nil
}

// prepareSession resolves the chat session and enriches the query context
// with remembered facts and recent turns. Without a store the request's
// session id passes through untouched.
func (s *Service) prepareSession(ctx context.Context, req Request, requestID string, query *state.QueryContext) (string, error) {
	if s.store == nil {
		return req.SessionID, nil
	}

	name := req.SellerName
	if extracted := ExtractSellerName(req.Query); extracted != "" {
		name = extracted
	}

	var sess *chat.Session
	var err error
	if req.SessionID != "" {
		sess, err = s.store.EnsureSession(ctx, req.SessionID, req.SellerID, name)
	} else {
		sess, err = s.store.CreateSession(ctx, req.SellerID, name, "")
	}
	if err != nil {
		return "", logx.Wrap(err, "resolve session")
	}

	if name != "" {
		if err := s.store.UpsertMemoryFact(ctx, sess.SessionID, "seller_name", name); err != nil {
			return "", err
		}
	}

	facts, err := s.store.MemoryFacts(ctx, sess.SessionID)
	if err != nil {
		return "", err
	}
	keys := make([]string, 0, len(facts))
	for k := range facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		query.MemoryFacts = append(query.MemoryFacts, k+"="+facts[k])
	}

	turns, err := s.store.RecentTurns(ctx, sess.SessionID, recentTurnPairs)
	if err != nil {
		return "", err
	}
	query.RecentChatTurns = turns
	if query.SellerName == "" {
		query.SellerName = sess.SellerName
	}

	if _, err := s.store.AddMessage(ctx, sess.SessionID, "user", req.Query, requestID, nil); err != nil {
		return "", err
	}
	return sess.SessionID, nil
}

// Fallback keyword buckets, checked in this order.
var (
	fallbackComplianceTerms = []string{"policy", "compliance", "restricted", "guideline", "image", "title", "seo", "citation", "cite"}
	fallbackPricingTerms    = []string{"margin", "price", "profit", "competitor"}
	fallbackInventoryTerms  = []string{"stock", "stockout", "reorder", "demand"}
)

func mentionsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

// fallbackFlag decides whether the answer is weak enough to warrant one
// rerun with a forced capability, and which capability to force. The rerun
// happens at most once per request.
func (s *Service) fallbackFlag(final state.SellerState) (string, bool) {
	if final.FallbackApplied() {
		return "", false
	}
	q := final.Query
	if q == nil || q.RoutingConfidence >= confidenceFloor {
		return "", false
	}

	thinPlan := final.ActionPlan == nil || len(final.ActionPlan.Actions) < 2
	text := strings.ToLower(q.RawQuery)
	wantsCitation := strings.Contains(text, "citation") || strings.Contains(text, "cite")
	missingEvidence := wantsCitation && (final.RAGContext == nil || len(final.RAGContext.Chunks) == 0)
	if !thinPlan && !missingEvidence {
		return "", false
	}

	switch {
	case mentionsAny(text, fallbackComplianceTerms) && !q.Intent(state.IntentCompliance):
		return state.IntentCompliance, true
	case mentionsAny(text, fallbackPricingTerms) && !q.Intent(state.IntentPricing):
		return state.IntentPricing, true
	case mentionsAny(text, fallbackInventoryTerms) && !q.Intent(state.IntentInventory):
		return state.IntentInventory, true
	}
	for _, flag := range []string{state.IntentCompliance, state.IntentPricing, state.IntentInventory} {
		if !q.Intent(flag) {
			return flag, true
		}
	}
	return "", false
}

// UsedTools parses the distinct tool labels out of the execution trace.
func UsedTools(trace []string) []string {
	seen := map[string]bool{}
	for _, line := range trace {
		idx := strings.Index(line, "tools=")
		if idx < 0 {
			continue
		}
		for _, tool := range strings.Split(line[idx+len("tools="):], ",") {
			tool = strings.TrimSpace(tool)
			if tool != "" {
				seen[tool] = true
			}
		}
	}
	tools := make([]string, 0, len(seen))
	for tool := range seen {
		tools = append(tools, tool)
	}
	sort.Strings(tools)
	return tools
}

// UsedRAGEvidence renders the retrieved chunks as deduplicated
// marketplace:section:source identifiers, capped at ten.
func UsedRAGEvidence(s state.SellerState) []string {
	if s.RAGContext == nil {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	for _, chunk := range s.RAGContext.Chunks {
		marketplace := chunk.Marketplace
		if marketplace == "" {
			marketplace = "any"
		}
		section := chunk.Section
		if section == "" {
			section = "unknown_section"
		}
		source := chunk.Source
		if source == "" {
			source = "unknown_source"
		}
		id := fmt.Sprintf("%s:%s:%s", marketplace, section, source)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		if len(out) == maxEvidenceItems {
			break
		}
	}
	return out
}

func (s *Service) assembleResponse(requestID, sessionID, fallbackBranch string, final state.SellerState) *Response {
	debug := RoutingDebug{
		ActiveBranches:  final.ActiveBranches,
		SkippedBranches: final.SkippedBranches,
		FallbackApplied: final.FallbackApplied(),
		FallbackBranch:  fallbackBranch,
	}
	if final.Query != nil {
		debug.Mode = string(final.Query.Mode)
		debug.RequestedCapabilities = final.Query.RequestedCapabilities
		debug.IntentFlags = final.Query.IntentFlags
		debug.RoutingConfidence = final.Query.RoutingConfidence
	}

	finalCopy := final.Clone()
	return &Response{
		RequestID:       requestID,
		SessionID:       sessionID,
		FinalAnswer:     final.FinalAnswer,
		Critique:        final.Critique,
		HITLFeedback:    final.HITLFeedback,
		ExecutionTrace:  final.ExecutionTrace,
		UsedTools:       UsedTools(final.ExecutionTrace),
		UsedRAGEvidence: UsedRAGEvidence(final),
		RoutingDebug:    debug,
		State:           &finalCopy,
	}
}

// persistTurn records the assistant's reply; storage failures only log.
func (s *Service) persistTurn(ctx context.Context, sessionID, requestID, userQuery string, resp *Response) {
	if s.store == nil || sessionID == "" {
		return
	}
	content := ""
	if resp.FinalAnswer != nil {
		content = resp.FinalAnswer.AnswerMarkdown
	}
	if content == "" {
		content = "No answer was produced for: " + userQuery
	}
	meta := map[string]any{
		"mode":             resp.RoutingDebug.Mode,
		"fallback_applied": resp.RoutingDebug.FallbackApplied,
	}
	if _, err := s.store.AddMessage(ctx, sessionID, "assistant", content, requestID, meta); err != nil {
		s.logger.Warn("request=%s could not persist assistant turn: %v", requestID, err)
	}
}

// SubmitFeedback persists human feedback for an earlier response.
func (s *Service) SubmitFeedback(ctx context.Context, req FeedbackRequest) (int64, error) {
	if req.RequestID == "" {
		return 0, &ValidationError{Field: "request_id", Message: "request id is required"}
	}
	if s.store == nil {
		return 0, &ValidationError{Field: "store", Message: "feedback storage is not configured"}
	}
	return s.store.AddFeedback(ctx, chat.Feedback{
		SessionID: req.SessionID,
		RequestID: req.RequestID,
		Rating:    req.Rating,
		Comment:   req.Comment,
		Metadata:  req.Metadata,
	})
}
