package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	fakellm "github.com/fablecast/fablecast/pkg/adapters/llm/fake"
	"github.com/fablecast/fablecast/pkg/command"
	"github.com/fablecast/fablecast/pkg/ident"
	"github.com/fablecast/fablecast/pkg/narrative"
	"github.com/fablecast/fablecast/pkg/orchestrator"
	"github.com/fablecast/fablecast/pkg/policy"
	"github.com/fablecast/fablecast/pkg/scoring"
	"github.com/fablecast/fablecast/pkg/store/sqlstore"
	"github.com/fablecast/fablecast/pkg/validation"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("FOO", "bar")
	if got := getEnv("FOO", "default"); got != "bar" {
		t.Fatalf("getEnv returned %q, want %q", got, "bar")
	}
	if got := getEnv("MISSING", "default"); got != "default" {
		t.Fatalf("getEnv returned %q, want %q", got, "default")
	}
}

// newTestApp wires the pipeline over an in-memory store and a scripted
// provider: a two-chapter outline, chapter and summary texts, and a fixed
// evaluator score of 8.
func newTestApp(t *testing.T) *app {
	t.Helper()
	ctx := t.Context()

	dsn := fmt.Sprintf("sqlite:file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlstore.Open(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		t.Fatal(err)
	}

	alloc := ident.New(db)
	if err := alloc.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	provider := fakellm.New().
		Script(policy.RoleBible, fakellm.Response{Text: "1. The lamp is lit\n2. The fog rolls in"}).
		Script(policy.RoleEpisodes,
			fakellm.Response{Text: "Chapter one prose."},
			fakellm.Response{Text: "Summary after one."},
			fakellm.Response{Text: "Chapter two prose."},
			fakellm.Response{Text: "Summary after two."},
		).
		Script("evaluator", fakellm.Response{Text: `{"score": 8, "reason": "solid"}`})

	policies, err := policy.NewStore(policy.Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	journal := &logJournal{db: db}
	engine := validation.New(provider, policies, validation.WithJournal(journal))
	orch := orchestrator.New(engine, policies, orchestrator.WithJournal(journal))
	machine := narrative.New(orch, db)

	gate := scoring.New(
		scoring.NewLLMEvaluator(provider, "coherence", "coherence", ""),
		scoring.NewLLMEvaluator(provider, "craft", "craft", ""),
		scoring.WithEvaluationStore(db),
	)

	registry := command.NewRegistry(nil)
	for _, c := range []command.Command{
		command.ResetThreadIDsCommand{Allocator: alloc},
		command.GetMaxStoryIDCommand{Stories: db},
	} {
		if err := registry.Register(c); err != nil {
			t.Fatal(err)
		}
	}

	return &app{db: db, alloc: alloc, machine: machine, gate: gate, registry: registry}
}

func TestControlPlane_StoryLifecycle(t *testing.T) {
	srv := httptest.NewServer(newTestApp(t).mux())
	defer srv.Close()

	body := bytes.NewBufferString(`{"story_key":"night-train","premise":"a lighthouse mystery","chapters":2}`)
	res, err := http.Post(srv.URL+"/api/stories", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create status=%d", res.StatusCode)
	}
	var created createStoryResponse
	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.Phase != narrative.PhaseComplete {
		t.Fatalf("phase=%q want complete", created.Phase)
	}
	if created.Chapters != 2 {
		t.Fatalf("chapters=%d want 2", created.Chapters)
	}
	if created.StoryID != 1 || created.ThreadID != 1 {
		t.Fatalf("ids=(%d,%d) want (1,1)", created.StoryID, created.ThreadID)
	}
	if !created.Accepted || created.Average != 8 {
		t.Fatalf("accepted=%v average=%v want accepted with average 8", created.Accepted, created.Average)
	}

	// durable state is readable back
	res2, err := http.Get(srv.URL + "/api/stories/night-train")
	if err != nil {
		t.Fatal(err)
	}
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("get status=%d", res2.StatusCode)
	}
	var st narrative.State
	if err := json.NewDecoder(res2.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	_ = res2.Body.Close()
	if st.Phase != narrative.PhaseComplete || len(st.Chapters) != 2 {
		t.Fatalf("stored state: phase=%q chapters=%d", st.Phase, len(st.Chapters))
	}

	// unknown story key is a 404
	res3, err := http.Get(srv.URL + "/api/stories/missing")
	if err != nil {
		t.Fatal(err)
	}
	_ = res3.Body.Close()
	if res3.StatusCode != http.StatusNotFound {
		t.Fatalf("missing story status=%d want 404", res3.StatusCode)
	}
}

func TestControlPlane_CommandsAndLogs(t *testing.T) {
	srv := httptest.NewServer(newTestApp(t).mux())
	defer srv.Close()

	body := bytes.NewBufferString(`{"story_key":"night-train","premise":"a lighthouse mystery","chapters":2}`)
	res, err := http.Post(srv.URL+"/api/stories", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create status=%d", res.StatusCode)
	}

	// commands resolve through the alias table
	res2, err := http.Post(srv.URL+"/api/commands/get_max_story_id", "application/json", bytes.NewBufferString(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("command status=%d", res2.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(res2.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if got, _ := out["max_story_id"].(float64); got != 1 {
		t.Fatalf("max_story_id=%v want 1", out["max_story_id"])
	}

	res3, err := http.Post(srv.URL+"/api/commands/no_such_command", "application/json", bytes.NewBufferString(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	_ = res3.Body.Close()
	if res3.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown command status=%d want 404", res3.StatusCode)
	}

	// the run left journal records under thread 1
	res4, err := http.Get(srv.URL + "/api/logs?thread=1")
	if err != nil {
		t.Fatal(err)
	}
	defer res4.Body.Close()
	if res4.StatusCode != http.StatusOK {
		t.Fatalf("logs status=%d", res4.StatusCode)
	}
	var logs []map[string]any
	if err := json.NewDecoder(res4.Body).Decode(&logs); err != nil {
		t.Fatal(err)
	}
	if len(logs) == 0 {
		t.Fatalf("expected journal records for thread 1")
	}

	// evaluations persisted for story 1
	res5, err := http.Get(srv.URL + "/api/evaluations?story=1")
	if err != nil {
		t.Fatal(err)
	}
	defer res5.Body.Close()
	if res5.StatusCode != http.StatusOK {
		t.Fatalf("evaluations status=%d", res5.StatusCode)
	}
	var evals []map[string]any
	if err := json.NewDecoder(res5.Body).Decode(&evals); err != nil {
		t.Fatal(err)
	}
	if len(evals) != 2 {
		t.Fatalf("expected 2 evaluation records, got %d", len(evals))
	}
}
