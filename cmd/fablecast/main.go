// Command fablecast runs the story generation control plane: an HTTP API
// over the narrative machine, the scoring gate and the command registry,
// backed by SQLite or Postgres.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fablecast/fablecast/pkg/adapters/embedding"
	_ "github.com/fablecast/fablecast/pkg/adapters/embedding/gemini"
	_ "github.com/fablecast/fablecast/pkg/adapters/embedding/openai"
	"github.com/fablecast/fablecast/pkg/adapters/llm"
	_ "github.com/fablecast/fablecast/pkg/adapters/llm/gemini"
	_ "github.com/fablecast/fablecast/pkg/adapters/llm/openai"
	vsmem "github.com/fablecast/fablecast/pkg/adapters/vectorstore/memory"
	"github.com/fablecast/fablecast/pkg/command"
	"github.com/fablecast/fablecast/pkg/config"
	"github.com/fablecast/fablecast/pkg/ident"
	"github.com/fablecast/fablecast/pkg/narrative"
	narrmem "github.com/fablecast/fablecast/pkg/narrative/memory"
	"github.com/fablecast/fablecast/pkg/orchestrator"
	otelinit "github.com/fablecast/fablecast/pkg/otel"
	"github.com/fablecast/fablecast/pkg/policy"
	"github.com/fablecast/fablecast/pkg/scoring"
	"github.com/fablecast/fablecast/pkg/store"
	"github.com/fablecast/fablecast/pkg/store/sqlstore"
	"github.com/fablecast/fablecast/pkg/validation"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	var showVersion bool
	var cfgPath, addr string

	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.StringVar(&cfgPath, "config", getEnv("FABLECAST_CONFIG", ""), "path to TOML config file")
	flag.StringVar(&addr, "addr", "", "http listen address (overrides config)")
	flag.Parse()

	if showVersion {
		fmt.Printf("fablecast %s (commit=%s, date=%s)\n", version, commit, date)
		return
	}

	if err := run(context.Background(), cfgPath, addr); err != nil {
		fmt.Fprintf(os.Stderr, "fablecast: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath, addr string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.HTTPAddr = addr
	}

	shutdown, err := otelinit.Init(ctx, otelinit.Config{
		ServiceName:    "fablecast",
		ServiceVersion: version,
		UseStdout:      os.Getenv("FABLECAST_TRACE_STDOUT") != "",
	})
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	dsn := cfg.DSN
	if dsn == "" {
		dsn = "sqlite:file:fablecast.db?cache=shared&_pragma=busy_timeout(5000)"
	}
	db, err := sqlstore.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	alloc := ident.New(db)
	if err := alloc.Initialize(ctx); err != nil {
		return err
	}

	app, err := buildApp(ctx, cfg, db, alloc)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(app.mux(), "fablecast"),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// buildApp wires the pipeline from configuration: provider, policies,
// validation engine, role orchestrator, narrative machine, scoring gate and
// the command registry.
func buildApp(ctx context.Context, cfg config.Config, db *sqlstore.Store, alloc *ident.Allocator) (*app, error) {
	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pcfg, err := cfg.PolicyConfig()
	if err != nil {
		return nil, err
	}
	policies, err := policy.NewStore(pcfg, nil)
	if err != nil {
		return nil, err
	}

	journal := &logJournal{db: db}

	engine := validation.New(provider, policies,
		validation.WithChecker(validation.NewLLMChecker(provider, cfg.CheckerModel)),
		validation.WithFallbackModel(cfg.FallbackModel),
		validation.WithJournal(journal),
	)
	orch := orchestrator.New(engine, policies,
		orchestrator.WithExplainer(orchestrator.NewLLMExplainer(provider, cfg.CheckerModel)),
		orchestrator.WithJournal(journal),
	)

	opts := []narrative.Option{}
	if f, ok := embedding.Resolve(cfg.Provider); ok {
		emb, err := f(ctx, map[string]any{"api_key": cfg.APIKey, "base_url": cfg.BaseURL})
		if err == nil {
			bank := narrmem.New(emb, vsmem.New())
			opts = append(opts, narrative.WithMemory(bank.Recall), narrative.WithChapterHook(bank.Remember))
		}
	}
	machine := narrative.New(orch, db, opts...)

	gate := scoring.New(
		scoring.NewLLMEvaluator(provider, "coherence", "Judge plot coherence, continuity and pacing.", cfg.Scoring.Model),
		scoring.NewLLMEvaluator(provider, "craft", "Judge prose quality, narrative voice and dialogue.", cfg.Scoring.Model),
		scoring.WithThreshold(cfg.Scoring.Threshold),
		scoring.WithAcceptEqual(cfg.Scoring.AcceptEqual),
		scoring.WithEvaluationStore(db),
	)

	summarize := command.SummarizerFunc(func(ctx context.Context, text string) (string, error) {
		res, err := orch.Run(ctx, validation.Request{
			Operation: "summarize_story",
			Role:      policy.RoleEpisodes,
			Messages: []llm.Message{{
				Role:    "user",
				Content: "Summarize the following story text. Keep every plot-relevant fact; stay compact.\n\n" + text,
			}},
		})
		if err != nil {
			return "", err
		}
		return res.Text, nil
	})

	registry := command.NewRegistry(nil)
	for _, c := range []command.Command{
		command.SummarizeCommand{S: summarize},
		command.SummarizeBatchCommand{S: summarize},
		command.ResetThreadIDsCommand{Allocator: alloc},
		command.GetMaxStoryIDCommand{Stories: db},
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &app{
		db:       db,
		alloc:    alloc,
		machine:  machine,
		gate:     gate,
		registry: registry,
	}, nil
}

func buildProvider(ctx context.Context, cfg config.Config) (llm.Provider, error) {
	f, ok := llm.Resolve(cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
	return f(ctx, map[string]any{
		"api_key":  cfg.APIKey,
		"model":    cfg.Model,
		"base_url": cfg.BaseURL,
	})
}

// logJournal appends generation log records best effort.
type logJournal struct {
	db store.LogStore
}

func (j *logJournal) Log(ctx context.Context, rec store.LogRecord) {
	_, _ = j.db.AppendLog(ctx, rec)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
