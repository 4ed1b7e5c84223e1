package agents

import (
	"context"
	"fmt"
	"strings"

	"copilot/pkg/llm"
	"copilot/pkg/state"
)

type criticOutput struct {
	OverallComment string   `json:"overall_comment"`
	Strengths      []string `json:"strengths"`
	Weaknesses     []string `json:"weaknesses"`
	MissingAreas   []string `json:"missing_areas"`
}

const criticSystemPrompt = `You review action plans produced for e-commerce sellers.
Judge the plan's coverage and prioritization against the seller's question.
Respond with JSON only: {"overall_comment": string, "strengths": [string], "weaknesses": [string], "missing_areas": [string]}.`

func criticContext(s state.SellerState) string {
	var lines []string
	if s.Query != nil {
		lines = append(lines, "## User Query", s.Query.RawQuery, "")
	}
	if s.ActionPlan != nil {
		lines = append(lines, "## Action Plan", s.ActionPlan.OverallSummary, "", "### Actions")
		for i, a := range s.ActionPlan.Actions {
			lines = append(lines, fmt.Sprintf(
				"%d. [%s] %s (priority=%s, impact=%s)",
				i+1, a.Category, a.Title, a.Priority, orNA(a.EstimatedImpact),
			))
		}
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

// criticNode asks the model to reflect on the plan. A model failure leaves
// the critique channel unwritten; the critique is advisory.
func (d *Deps) criticNode(ctx context.Context, s state.SellerState) (state.Update, error) {
	var out criticOutput
	err := d.Gen.Generate(ctx, llm.Request{
		System:      criticSystemPrompt,
		Prompt:      criticContext(s),
		Temperature: 0.2,
		MaxTokens:   800,
	}, &out)
	if err != nil {
		d.log().Warn("critic: model unavailable, leaving critique empty: %v", err)
		return state.Update{ExecutionTrace: recordStep(NodeCritic, "llm")}, nil
	}

	return state.Update{
		Critique: &state.Critique{
			Comments:        out.OverallComment,
			DetectedRisks:   out.Weaknesses,
			MissingElements: out.MissingAreas,
		},
		ExecutionTrace: recordStep(NodeCritic, "llm"),
	}, nil
}

type finalAnswerOutput struct {
	AnswerMarkdown    string         `json:"answer_markdown"`
	RefinedActionPlan *plannerOutput `json:"refined_action_plan"`
	Citations         []string       `json:"citations"`
}

const finalAnswerSystemPrompt = `You write the final markdown answer for an e-commerce seller copilot.
Explain what was found and what to do, grounded in the analyses and plan below.
Respond with JSON only: {"answer_markdown": string, "refined_action_plan": {"overall_summary": string, "actions": [...]} or null, "citations": [string]}.`

// citationSeeds renders up to five retrieved chunks as
// marketplace:section:source identifiers.
func citationSeeds(s state.SellerState) []string {
	if s.RAGContext == nil {
		return nil
	}
	var seeds []string
	for _, chunk := range s.RAGContext.Chunks {
		if len(seeds) == 5 {
			break
		}
		marketplace := orAny(chunk.Marketplace)
		section := chunk.Section
		if section == "" {
			section = "unknown_section"
		}
		source := chunk.Source
		if source == "" {
			source = "unknown_source"
		}
		seeds = append(seeds, fmt.Sprintf("%s:%s:%s", marketplace, section, source))
	}
	return seeds
}

func finalContext(s state.SellerState) string {
	var lines []string

	if s.Query != nil {
		lines = append(lines, "## User Query", s.Query.RawQuery, "")
		if s.Query.SellerName != "" {
			lines = append(lines, fmt.Sprintf("- Seller name: %s", s.Query.SellerName))
		}
		if len(s.Query.MemoryFacts) > 0 {
			lines = append(lines, "## Memory Facts")
			for _, fact := range s.Query.MemoryFacts {
				lines = append(lines, "- "+fact)
			}
			lines = append(lines, "")
		}
		if len(s.Query.RecentChatTurns) > 0 {
			lines = append(lines, "## Recent Conversation")
			for _, turn := range s.Query.RecentChatTurns {
				lines = append(lines, "- "+turn)
			}
			lines = append(lines, "")
		}
	}

	if s.ActionPlan != nil {
		lines = append(lines, "## Action Plan (Structured)", "Overall summary: "+s.ActionPlan.OverallSummary)
		for i, a := range s.ActionPlan.Actions {
			if i == 10 {
				break
			}
			lines = append(lines, fmt.Sprintf(
				"%d. [%s] %s (priority=%s, impact=%s)",
				i+1, a.Category, a.Title, a.Priority, orNA(a.EstimatedImpact),
			))
		}
		lines = append(lines, "")
	}

	if len(s.SalesAnalyses) > 0 {
		lines = append(lines, "## Sales Highlights")
		for i, a := range s.SalesAnalyses {
			if i == 3 {
				break
			}
			lines = append(lines, fmt.Sprintf(
				"- Product %s: units=%d, revenue=%.2f, returns=%d",
				a.ProductID, a.TotalUnitsSold, a.TotalGrossRevenue, a.TotalReturns,
			))
		}
		lines = append(lines, "")
	}
	if len(s.InventoryAnalyses) > 0 {
		lines = append(lines, "## Inventory & Risk")
		for i, a := range s.InventoryAnalyses {
			if i == 3 {
				break
			}
			lines = append(lines, fmt.Sprintf(
				"- Product %s: stock=%d, risk=%s, days_of_cover=%.1f",
				a.ProductID, a.CurrentStock, a.RiskLevel, a.ProjectedDaysOfCover,
			))
		}
		lines = append(lines, "")
	}
	if s.RAGContext != nil {
		lines = append(lines, "## Retrieval Context", fmt.Sprintf(
			"- Marketplace: %s; chunks=%d", orAny(s.RAGContext.Marketplace), len(s.RAGContext.Chunks),
		), "")
	}

	return strings.Join(lines, "\n")
}

// composedAnswer is the deterministic markdown fallback when no model is
// reachable.
func composedAnswer(s state.SellerState) string {
	var sections []string

	if s.Query != nil {
		sections = append(sections, fmt.Sprintf("### Query\n\n%s\n", s.Query.RawQuery))
	}
	if s.SellerProfile != nil {
		sections = append(sections, "### Seller Profile (Overview)\n", s.SellerProfile.Summary)
	}
	if len(s.SalesAnalyses) > 0 {
		lines := []string{"### Sales Snapshot\n"}
		for i, a := range s.SalesAnalyses {
			if i == 5 {
				break
			}
			lines = append(lines, fmt.Sprintf("- **Product** `%s`: %s", a.ProductID, a.Narrative))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	if len(s.CompetitorAnalyses) > 0 {
		lines := []string{"### Competitor Snapshot\n"}
		for i, c := range s.CompetitorAnalyses {
			if i == 5 {
				break
			}
			lines = append(lines, fmt.Sprintf("- **Product** `%s`: %s", c.ProductID, c.PricePositioning))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	if len(s.InventoryAnalyses) > 0 {
		lines := []string{"### Inventory & Stock Risk\n"}
		for i, inv := range s.InventoryAnalyses {
			if i == 5 {
				break
			}
			lines = append(lines, fmt.Sprintf("- **Product** `%s`: %s", inv.ProductID, inv.Narrative))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	if s.ActionPlan != nil {
		lines := []string{"### Action Plan\n", s.ActionPlan.OverallSummary}
		for _, a := range s.ActionPlan.Actions {
			lines = append(lines, fmt.Sprintf("- **%s** (%s/%s): %s", a.Title, a.Category, a.Priority, a.Description))
		}
		sections = append(sections, strings.Join(lines, "\n"))
	} else {
		sections = append(sections, "### Action Plan\n\nNo action plan is available yet.")
	}

	return strings.Join(sections, "\n\n")
}

// finalAnswerNode composes the user-facing markdown answer, optionally
// letting the model refine the structured plan and citations.
func (d *Deps) finalAnswerNode(ctx context.Context, s state.SellerState) (state.Update, error) {
	seeds := citationSeeds(s)

	prompt := finalContext(s)
	if len(seeds) > 0 {
		prompt += "\n## Citation Seeds\n"
		for _, seed := range seeds {
			prompt += "- " + seed + "\n"
		}
	}

	var out finalAnswerOutput
	err := d.Gen.Generate(ctx, llm.Request{
		System:      finalAnswerSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.3,
		MaxTokens:   2000,
	}, &out)
	if err != nil {
		d.log().Warn("final answer: model unavailable, composing deterministic answer: %v", err)
		return state.Update{
			FinalAnswer: &state.FinalAnswer{
				AnswerMarkdown: composedAnswer(s),
				ActionPlan:     s.ActionPlan,
				Citations:      seeds,
			},
			ExecutionTrace: recordStep(NodeFinalAnswer, "llm"),
		}, nil
	}

	plan := s.ActionPlan
	if out.RefinedActionPlan != nil {
		plan = normalizePlan(*out.RefinedActionPlan, "final")
	}
	citations := out.Citations
	if len(citations) == 0 {
		citations = seeds
	}

	return state.Update{
		FinalAnswer: &state.FinalAnswer{
			AnswerMarkdown: out.AnswerMarkdown,
			ActionPlan:     plan,
			Citations:      citations,
		},
		ExecutionTrace: recordStep(NodeFinalAnswer, "llm"),
	}, nil
}

// hitlNode ensures the human-feedback container exists so a later feedback
// submission has a place to land.
func (d *Deps) hitlNode(_ context.Context, s state.SellerState) (state.Update, error) {
	update := state.Update{ExecutionTrace: recordStep(NodeHITL)}
	if s.HITLFeedback == nil {
		update.HITLFeedback = &state.HITLFeedback{}
	}
	return update, nil
}
