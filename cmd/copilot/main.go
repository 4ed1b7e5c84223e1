// Command copilot runs one seller-copilot analysis from the command line:
// it routes the query through the agent graph against the local warehouse,
// chat store, and policy corpus, then prints the final markdown answer.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"copilot/internal/healthserver"
	"copilot/pkg/agents"
	"copilot/pkg/chat"
	"copilot/pkg/config"
	"copilot/pkg/copilot"
	"copilot/pkg/llm"
	"copilot/pkg/logx"
	"copilot/pkg/metrics"
	"copilot/pkg/rag"
	"copilot/pkg/warehouse"
)

type options struct {
	configPath   string
	query        string
	mode         string
	marketplaces string
	sessionID    string
	sellerID     string
	sellerName   string
	feedbackReq  string
	rating       int
	comment      string
	asJSON       bool
	showTrace    bool
	debug        bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to YAML config (empty = built-in defaults)")
	flag.StringVar(&opts.query, "query", "", "seller question to analyze")
	flag.StringVar(&opts.mode, "mode", "", "query mode (weekly_plan, pricing, listing_seo, inventory, compliance, profitability, general_qa)")
	flag.StringVar(&opts.marketplaces, "marketplaces", "", "comma-separated marketplace filter")
	flag.StringVar(&opts.sessionID, "session", "", "chat session id to continue")
	flag.StringVar(&opts.sellerID, "seller", "", "seller id")
	flag.StringVar(&opts.sellerName, "seller-name", "", "seller display name")
	flag.StringVar(&opts.feedbackReq, "feedback-request", "", "submit feedback for this request id instead of analyzing")
	flag.IntVar(&opts.rating, "rating", 0, "feedback rating 1-5")
	flag.StringVar(&opts.comment, "comment", "", "feedback comment")
	flag.BoolVar(&opts.asJSON, "json", false, "print the full response as JSON")
	flag.BoolVar(&opts.showTrace, "trace", false, "print the execution trace")
	flag.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "copilot: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	if opts.debug {
		logx.SetDebug(true, nil)
	}
	logger := logx.NewLogger("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	store, err := warehouse.Open(cfg.Warehouse.Path)
	if err != nil {
		return err
	}
	defer store.Close()
	if cfg.Warehouse.SeedDemo {
		if err := store.SeedDemo(); err != nil {
			return err
		}
	}

	fees, err := warehouse.LoadFees(cfg.Warehouse.FeesPath)
	if err != nil {
		return err
	}
	tools := warehouse.NewTools(store, fees)

	chatStore, err := chat.Open(cfg.Chat.Path)
	if err != nil {
		return err
	}
	defer chatStore.Close()

	var retriever rag.Retriever
	if cfg.RAG.CorpusPath != "" {
		index, err := rag.LoadIndex(cfg.RAG.CorpusPath, cfg.RAG.DefaultTopK, cfg.RAG.MaxTopK)
		if err != nil {
			return err
		}
		retriever = index
	} else {
		logger.Warn("no policy corpus configured, retrieval will return nothing")
		retriever = rag.NewIndex(nil, cfg.RAG.DefaultTopK, cfg.RAG.MaxTopK)
	}

	gen, err := llm.NewChainFromConfig(cfg.LLM)
	if err != nil {
		return err
	}

	recorder := metrics.NewPrometheusRecorder()
	if cfg.Server.MetricsAddr != "" {
		health := healthserver.New(cfg.Server.MetricsAddr)
		go func() {
			if err := health.Start(); err != nil {
				logger.Error("health server: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = health.Shutdown(shutdownCtx)
		}()
	}

	g, err := agents.Build(&agents.Deps{
		Repo:      store,
		Tools:     tools,
		Retriever: retriever,
		Gen:       gen,
		Recorder:  recorder,
	})
	if err != nil {
		return err
	}
	svc := copilot.NewService(g, chatStore, recorder)

	if opts.feedbackReq != "" {
		id, err := svc.SubmitFeedback(ctx, copilot.FeedbackRequest{
			RequestID: opts.feedbackReq,
			SessionID: opts.sessionID,
			Rating:    opts.rating,
			Comment:   opts.comment,
		})
		if err != nil {
			return err
		}
		fmt.Printf("feedback recorded (id=%d)\n", id)
		return nil
	}

	if strings.TrimSpace(opts.query) == "" {
		return fmt.Errorf("a -query is required (or -feedback-request to submit feedback)")
	}

	counter := llm.NewTokenCounter()
	logger.Debug("query tokens=%d", counter.Count(opts.query))

	var marketplaces []string
	for _, m := range strings.Split(opts.marketplaces, ",") {
		if m = strings.TrimSpace(m); m != "" {
			marketplaces = append(marketplaces, m)
		}
	}

	resp, err := svc.Analyze(ctx, copilot.Request{
		Query:        opts.query,
		Mode:         opts.mode,
		Marketplaces: marketplaces,
		SessionID:    opts.sessionID,
		SellerID:     opts.sellerID,
		SellerName:   opts.sellerName,
	})
	if err != nil {
		return err
	}

	if opts.asJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if resp.FinalAnswer != nil {
		fmt.Println(resp.FinalAnswer.AnswerMarkdown)
	}
	fmt.Printf("\n---\nrequest: %s\nsession: %s\nmode: %s (confidence %.2f)\n",
		resp.RequestID, resp.SessionID, resp.RoutingDebug.Mode, resp.RoutingDebug.RoutingConfidence)
	if len(resp.UsedTools) > 0 {
		fmt.Printf("tools: %s\n", strings.Join(resp.UsedTools, ", "))
	}
	if len(resp.UsedRAGEvidence) > 0 {
		fmt.Printf("evidence: %s\n", strings.Join(resp.UsedRAGEvidence, ", "))
	}
	if resp.RoutingDebug.FallbackApplied {
		fmt.Printf("fallback: %s\n", resp.RoutingDebug.FallbackBranch)
	}
	if opts.showTrace {
		fmt.Println("trace:")
		for _, line := range resp.ExecutionTrace {
			fmt.Println("  " + line)
		}
	}
	return nil
}
