// Package orchestrator wraps the validation retry engine with per-role
// settings: attempt budget, inter-attempt delay, per-call timeout, and an
// early diagnosis trigger.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fablecast/fablecast/pkg/adapters/llm"
	"github.com/fablecast/fablecast/pkg/errmodel"
	"github.com/fablecast/fablecast/pkg/policy"
	"github.com/fablecast/fablecast/pkg/store"
	"github.com/fablecast/fablecast/pkg/validation"
)

// Caller executes one policy-driven generation sequence. Satisfied by
// *validation.Engine.
type Caller interface {
	Execute(ctx context.Context, req validation.Request) (validation.Result, error)
}

// Explainer produces a plain-language explanation for a stalled role.
type Explainer interface {
	Explain(ctx context.Context, req validation.Request, cause error) (string, error)
}

// Result is the terminal outcome of a role-level attempt sequence.
type Result struct {
	validation.Result
	// RoleAttempts counts engine invocations made by the orchestrator;
	// each invocation may itself contain several model calls.
	RoleAttempts int
	// Explanation is the diagnosis requested by the early trigger, if any.
	Explanation string
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithExplainer sets the diagnosis capability for the early trigger.
func WithExplainer(e Explainer) Option { return func(o *Orchestrator) { o.explainer = e } }

// WithJournal sets the best-effort log sink.
func WithJournal(j validation.Journal) Option { return func(o *Orchestrator) { o.journal = j } }

// Orchestrator applies role-level orchestration settings around a Caller.
type Orchestrator struct {
	caller    Caller
	policies  *policy.Store
	explainer Explainer
	journal   validation.Journal
}

// New constructs an Orchestrator.
func New(caller Caller, policies *policy.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{caller: caller, policies: policies}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes req under the role's configuration. A role without
// configuration gets a single attempt with no delay or timeout.
func (o *Orchestrator) Run(ctx context.Context, req validation.Request) (Result, error) {
	tr := otel.Tracer("orchestrator")
	ctx, span := tr.Start(ctx, "Orchestrator.Run", trace.WithAttributes(
		attribute.String("role", req.Role),
		attribute.String("operation", req.Operation),
	))
	defer span.End()

	rc, _ := o.policies.Role(req.Role)
	attempts := rc.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	span.SetAttributes(attribute.Int("role.max_attempts", attempts))

	var (
		out     Result
		lastErr error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		call := req
		if call.CallTimeout == 0 {
			call.CallTimeout = rc.Timeout
		}
		res, err := o.caller.Execute(ctx, call)
		out.RoleAttempts = attempt
		out.Result = res
		if err == nil {
			return out, nil
		}
		lastErr = err
		span.RecordError(err)
		o.log(ctx, req, "retrying", fmt.Sprintf("role attempt %d/%d failed: %v", attempt, attempts, err))

		if !errmodel.IsRetryable(err) {
			return out, err
		}
		if attempt == rc.ExplainAfterAttempt && o.explainer != nil && out.Explanation == "" {
			if exp, eerr := o.explainer.Explain(ctx, req, err); eerr == nil {
				out.Explanation = exp
				o.log(ctx, req, "explained", exp)
			} else {
				o.log(ctx, req, "explain_failed", eerr.Error())
			}
		}
		if attempt < attempts {
			if err := sleep(ctx, rc.Delay); err != nil {
				return out, err
			}
		}
	}

	if out.Explanation != "" && out.Diagnosis == "" {
		out.Diagnosis = out.Explanation
	}
	return out, errmodel.System("role_exhausted",
		fmt.Sprintf("role %s exhausted %d attempts", req.Role, attempts),
		map[string]any{"operation": req.Operation, "diagnosis": out.Diagnosis},
		lastErr)
}

func (o *Orchestrator) log(ctx context.Context, req validation.Request, result, message string) {
	if o.journal == nil {
		return
	}
	o.journal.Log(ctx, store.LogRecord{
		ThreadID: req.ThreadID,
		StoryID:  req.StoryID,
		Category: "RoleOrchestration",
		Role:     req.Role,
		Model:    req.Model,
		Result:   result,
		Message:  message,
	})
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LLMExplainer asks a model why a role keeps failing.
type LLMExplainer struct {
	provider llm.Provider
	model    string
}

// NewLLMExplainer constructs an explainer; model may be empty for the
// provider default.
func NewLLMExplainer(provider llm.Provider, model string) *LLMExplainer {
	return &LLMExplainer{provider: provider, model: model}
}

func (e *LLMExplainer) Explain(ctx context.Context, req validation.Request, cause error) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Generation for role %q keeps failing with: %v\n", req.Role, cause)
	b.WriteString("Explain briefly the most likely reason and how the request should change.\n")
	for _, m := range req.Messages {
		if m.Role == "user" {
			fmt.Fprintf(&b, "Original request:\n%s\n", m.Content)
			break
		}
	}
	res, err := e.provider.Generate(ctx, llm.Request{
		Role:     req.Role,
		Messages: []llm.Message{{Role: "user", Content: b.String()}},
		Model:    e.model,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Text), nil
}
