// Package scoring implements the dual-evaluator acceptance gate: two
// independent rubric scores in 1..10, averaged against a threshold.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fablecast/fablecast/pkg/adapters/llm"
	"github.com/fablecast/fablecast/pkg/errmodel"
	"github.com/fablecast/fablecast/pkg/store"
)

// DefaultThreshold is the acceptance bar for the score average.
const DefaultThreshold = 7.0

// Score is one evaluator's verdict.
type Score struct {
	Evaluator string
	Model     string
	Value     int
	Reason    string
	Raw       json.RawMessage
}

// Regenerate names the caller-decided reaction to a rejection.
type Regenerate int

const (
	RegenerateNone Regenerate = iota
	RegenerateStory
	RegenerateWeakestChapter
)

// RegenerationPolicy decides what a rejection regenerates. The gate never
// fixes this itself.
type RegenerationPolicy func(d Decision) Regenerate

// Decision is the gate's outcome for one story.
type Decision struct {
	Accepted bool
	Average  float64
	Scores   []Score
	// Action is the regeneration policy's answer on rejection,
	// RegenerateNone on acceptance.
	Action Regenerate
}

// Evaluator produces one rubric score for a story draft.
type Evaluator interface {
	Name() string
	Score(ctx context.Context, story string) (Score, error)
}

// Option configures the Gate.
type Option func(*Gate)

// WithThreshold overrides the acceptance bar.
func WithThreshold(v float64) Option { return func(g *Gate) { g.threshold = v } }

// WithAcceptEqual accepts an average exactly on the bar.
func WithAcceptEqual(b bool) Option { return func(g *Gate) { g.acceptEqual = b } }

// WithEvaluationStore persists every score; appends are best-effort.
func WithEvaluationStore(s store.EvaluationStore) Option { return func(g *Gate) { g.db = s } }

// WithRegenerationPolicy sets the rejection reaction.
func WithRegenerationPolicy(p RegenerationPolicy) Option { return func(g *Gate) { g.regen = p } }

// Gate runs the evaluators and applies the threshold.
type Gate struct {
	evaluators  []Evaluator
	threshold   float64
	acceptEqual bool
	db          store.EvaluationStore
	regen       RegenerationPolicy
}

// New constructs a Gate over two evaluators.
func New(first, second Evaluator, opts ...Option) *Gate {
	g := &Gate{evaluators: []Evaluator{first, second}, threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate scores the story with both evaluators and decides acceptance.
// An evaluator failure is a checker-category error; no partial decision is
// produced.
func (g *Gate) Evaluate(ctx context.Context, storyID int64, story string) (Decision, error) {
	tr := otel.Tracer("scoring")
	ctx, span := tr.Start(ctx, "Gate.Evaluate", trace.WithAttributes(
		attribute.Int64("story.id", storyID),
	))
	defer span.End()

	var d Decision
	sum := 0
	for _, ev := range g.evaluators {
		sc, err := ev.Score(ctx, story)
		if err != nil {
			span.RecordError(err)
			cerr := errmodel.New(errmodel.CategoryChecker, "evaluator_failed",
				fmt.Sprintf("evaluator %s failed", ev.Name()),
				map[string]any{"story_id": storyID}, err)
			cerr.Retryable = true
			return Decision{}, cerr
		}
		if sc.Value < 1 || sc.Value > 10 {
			return Decision{}, errmodel.Checker("bad_score",
				fmt.Sprintf("evaluator %s returned score %d outside 1..10", ev.Name(), sc.Value), nil)
		}
		g.persist(ctx, storyID, sc)
		d.Scores = append(d.Scores, sc)
		sum += sc.Value
	}

	d.Average = float64(sum) / float64(len(g.evaluators))
	d.Accepted = d.Average > g.threshold || (g.acceptEqual && d.Average == g.threshold)
	if !d.Accepted && g.regen != nil {
		d.Action = g.regen(d)
	}
	span.SetAttributes(
		attribute.Float64("score.average", d.Average),
		attribute.Bool("accepted", d.Accepted),
	)
	return d, nil
}

func (g *Gate) persist(ctx context.Context, storyID int64, sc Score) {
	if g.db == nil {
		return
	}
	raw := sc.Raw
	if len(raw) == 0 {
		raw, _ = json.Marshal(map[string]any{"score": sc.Value, "reason": sc.Reason})
	}
	_, _ = g.db.AppendEvaluation(ctx, store.EvaluationRecord{
		EvalID:      uuid.NewString(),
		StoryID:     storyID,
		EvaluatorID: sc.Evaluator,
		Model:       sc.Model,
		RawJSON:     raw,
		CreatedAt:   time.Now().UTC(),
	})
}

// scoreSchema constrains what an evaluator model may answer.
const scoreSchema = `{
	"type": "object",
	"required": ["score"],
	"properties": {
		"score": {"type": "integer", "minimum": 1, "maximum": 10},
		"reason": {"type": "string"}
	},
	"additionalProperties": false
}`

var (
	scoreOnce     sync.Once
	scoreCompiled *jsonschema.Schema
	scoreErr      error
)

func compiledScoreSchema() (*jsonschema.Schema, error) {
	scoreOnce.Do(func() {
		c := jsonschema.NewCompiler()
		var doc any
		if scoreErr = json.Unmarshal([]byte(scoreSchema), &doc); scoreErr != nil {
			return
		}
		if scoreErr = c.AddResource("mem://score.json", doc); scoreErr != nil {
			return
		}
		scoreCompiled, scoreErr = c.Compile("mem://score.json")
	})
	return scoreCompiled, scoreErr
}

// LLMEvaluator scores a story against one rubric via a model call.
type LLMEvaluator struct {
	provider llm.Provider
	name     string
	rubric   string
	model    string
}

// NewLLMEvaluator constructs an evaluator. name identifies the rubric in
// persisted records; rubric is the scoring instruction text.
func NewLLMEvaluator(provider llm.Provider, name, rubric, model string) *LLMEvaluator {
	return &LLMEvaluator{provider: provider, name: name, rubric: rubric, model: model}
}

func (e *LLMEvaluator) Name() string { return e.name }

func (e *LLMEvaluator) Score(ctx context.Context, story string) (Score, error) {
	var b strings.Builder
	b.WriteString("Score the story from 1 to 10 against this rubric. ")
	b.WriteString("Answer with JSON only: {\"score\": int, \"reason\": string}.\n\nRubric: ")
	b.WriteString(e.rubric)
	b.WriteString("\n\nStory:\n")
	b.WriteString(story)

	res, err := e.provider.Generate(ctx, llm.Request{
		Role:     "evaluator",
		Messages: []llm.Message{{Role: "user", Content: b.String()}},
		Model:    e.model,
	})
	if err != nil {
		return Score{}, err
	}
	return parseScore(e.name, res.Model, res.Text)
}

func parseScore(evaluator, model, text string) (Score, error) {
	raw := extractObject(text)
	if raw == "" {
		return Score{}, errmodel.Checker("bad_score", "evaluator answer contains no JSON object", map[string]any{"text": text})
	}
	sch, err := compiledScoreSchema()
	if err != nil {
		return Score{}, errmodel.System("schema_compile", "score schema invalid", nil, err)
	}
	var generic any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return Score{}, errmodel.Checker("bad_score", "evaluator answer is not valid JSON", map[string]any{"text": raw})
	}
	if err := sch.Validate(generic); err != nil {
		return Score{}, errmodel.Checker("bad_score", "evaluator answer does not match score schema", map[string]any{"error": err.Error()})
	}
	var v struct {
		Score  int    `json:"score"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Score{}, errmodel.Checker("bad_score", "evaluator answer cannot be decoded", map[string]any{"text": raw})
	}
	return Score{Evaluator: evaluator, Model: model, Value: v.Score, Reason: v.Reason, Raw: json.RawMessage(raw)}, nil
}

// extractObject returns the first top-level JSON object in text.
func extractObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth, inStr, esc := 0, false, false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case ch == '\\':
				esc = true
			case ch == '"':
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
