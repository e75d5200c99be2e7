// Package validation implements the policy-driven retry engine around one
// generation call: execute, validate through the checker capability, retry
// within the configured budget, ask for a diagnosis on final failure, and
// escalate once to a fallback model.
package validation

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
)

// AttemptState names the engine's observable states; they appear in spans
// and log records.
type AttemptState string

const (
	StateExecuting  AttemptState = "executing"
	StateValidating AttemptState = "validating"
	StateAccepted   AttemptState = "accepted"
	StateRetrying   AttemptState = "retrying"
	StateDiagnosing AttemptState = "diagnosing_failure"
	StateFallback   AttemptState = "fallback_model"
	StateFailed     AttemptState = "failed"
)

// Verdict is the checker's decision for one candidate output.
type Verdict struct {
	Valid         bool   `json:"is_valid"`
	ViolatedRules []int  `json:"violated_rules,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Checker inspects candidate output against the active rule subset.
type Checker interface {
	Check(ctx context.Context, candidate string, rules []policy.Rule) (Verdict, error)
}

// Journal receives best-effort log records; appends never fail the pipeline.
type Journal interface {
	Log(ctx context.Context, rec store.LogRecord)
}

// Request is one validated generation request.
type Request struct {
	Operation string
	Role      string
	Messages  []llm.Message
	// Model overrides the provider default for primary attempts.
	Model string
	// CallTimeout bounds each provider call; a timeout is a validation
	// failure consuming one retry. Zero disables the bound.
	CallTimeout time.Duration
	// ThreadID and StoryID tag journal records.
	ThreadID int64
	StoryID  int64
}

// Result is the terminal outcome of an attempt sequence.
type Result struct {
	Text         string
	Model        string
	Attempts     int
	FallbackUsed bool
	Diagnosis    string
	State        AttemptState
}

// Option configures the Engine.
type Option func(*Engine)

// WithChecker sets the checker capability.
func WithChecker(c Checker) Option { return func(e *Engine) { e.checker = c } }

// WithFallbackModel sets the model used after the primary is exhausted.
func WithFallbackModel(model string) Option { return func(e *Engine) { e.fallback = model } }

// WithJournal sets the best-effort log sink.
func WithJournal(j Journal) Option { return func(e *Engine) { e.journal = j } }

// Engine executes generation requests under the resolved operation policy.
type Engine struct {
	provider llm.Provider
	policies *policy.Store
	checker  Checker
	fallback string
	journal  Journal
}

// New constructs an Engine.
func New(provider llm.Provider, policies *policy.Store, opts ...Option) *Engine {
	e := &Engine{provider: provider, policies: policies}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the attempt sequence for req and returns the accepted output
// or a terminal failure carrying the last diagnosis.
func (e *Engine) Execute(ctx context.Context, req Request) (Result, error) {
	tr := otel.Tracer("validation/engine")
	ctx, span := tr.Start(ctx, "Engine.Execute", trace.WithAttributes(
		attribute.String("operation", req.Operation),
		attribute.String("role", req.Role),
	))
	defer span.End()

	pol, key := e.policies.Resolve(req.Operation)
	if key != "" {
		span.SetAttributes(attribute.String("policy.key", key))
	}
	skip := e.policies.SkipsValidation(req.Role)

	res, lastVerdict, lastErr, ok := e.attemptLoop(ctx, req, pol, req.Model, skip)
	if ok {
		res.State = StateAccepted
		e.log(ctx, req, string(StateAccepted), fmt.Sprintf("accepted on attempt %d", res.Attempts))
		return res, nil
	}
	if lastErr != nil && !errmodel.IsRetryable(lastErr) {
		// Permanent provider failure; retry and fallback cannot help.
		span.RecordError(lastErr)
		res.State = StateFailed
		return res, lastErr
	}

	var diagnosis string
	if pol.AskFailureReasonOnFinalFailure {
		diagnosis = e.diagnose(ctx, req, lastVerdict, lastErr)
	}

	if pol.EnableFallback && e.fallback != "" && e.fallback != req.Model {
		e.log(ctx, req, string(StateFallback), fmt.Sprintf("escalating to fallback model %s", e.fallback))
		span.AddEvent("fallback", trace.WithAttributes(attribute.String("model", e.fallback)))
		fres, fVerdict, fErr, fok := e.attemptLoop(ctx, req, pol, e.fallback, skip)
		fres.Attempts += res.Attempts
		fres.FallbackUsed = true
		if fok {
			fres.State = StateAccepted
			e.log(ctx, req, string(StateAccepted), fmt.Sprintf("accepted on fallback after %d attempts", fres.Attempts))
			return fres, nil
		}
		res = fres
		lastVerdict, lastErr = fVerdict, fErr
	}

	res.State = StateFailed
	res.Diagnosis = diagnosis
	err := errmodel.Validation("retries_exhausted", "generation rejected after all attempts", map[string]any{
		"operation": req.Operation,
		"role":      req.Role,
		"attempts":  res.Attempts,
		"diagnosis": diagnosis,
		"violated":  lastVerdict.ViolatedRules,
	})
	if lastErr != nil {
		err.Causes = append(err.Causes, *errmodel.From(lastErr))
	}
	span.RecordError(err)
	return res, err
}

// attemptLoop runs MaxRetries+1 attempts against one model. It returns the
// last result, the last checker verdict, the last error, and acceptance.
func (e *Engine) attemptLoop(ctx context.Context, req Request, pol policy.OperationPolicy, model string, skip bool) (Result, Verdict, error, bool) {
	tr := otel.Tracer("validation/engine")
	retries := pol.MaxRetries
	if retries < 0 {
		retries = 0
	}
	var (
		res     Result
		verdict Verdict
		lastErr error
	)
	for attempt := 1; attempt <= retries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return res, verdict, err, false
		}
		actx, span := tr.Start(ctx, "Engine.attempt", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("model", model),
			attribute.String("state", string(StateExecuting)),
		))

		out, err := e.generate(actx, req, model)
		res.Attempts++
		res.Model = model
		if err != nil {
			span.RecordError(err)
			span.End()
			lastErr = err
			if !errmodel.IsRetryable(err) {
				return res, verdict, err, false
			}
			e.log(ctx, req, string(StateRetrying), fmt.Sprintf("attempt %d failed: %v", attempt, err))
			continue
		}
		res.Text = out
		lastErr = nil

		if skip || !pol.UseChecker || e.checker == nil {
			span.End()
			return res, verdict, nil, true
		}

		span.SetAttributes(attribute.String("state", string(StateValidating)))
		verdict, err = e.checker.Check(actx, out, e.policies.RulesFor(pol))
		span.End()
		if err != nil {
			lastErr = err
			e.log(ctx, req, string(StateRetrying), fmt.Sprintf("checker failed on attempt %d: %v", attempt, err))
			if !errmodel.IsRetryable(err) {
				return res, verdict, err, false
			}
			continue
		}
		if verdict.Valid {
			return res, verdict, nil, true
		}
		e.log(ctx, req, string(StateRetrying), fmt.Sprintf("attempt %d rejected, violated rules %v: %s",
			attempt, verdict.ViolatedRules, verdict.Reason))
	}
	return res, verdict, lastErr, false
}

func (e *Engine) generate(ctx context.Context, req Request, model string) (string, error) {
	if req.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.CallTimeout)
		defer cancel()
	}
	res, err := e.provider.Generate(ctx, llm.Request{
		Role:     req.Role,
		Messages: req.Messages,
		Model:    model,
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", errmodel.Transient(errmodel.New(errmodel.CategoryNetwork, "call_timeout",
				"generation call timed out", map[string]any{"operation": req.Operation}))
		}
		return "", err
	}
	if strings.TrimSpace(res.Text) == "" {
		return "", errmodel.Validation("empty_output", "provider returned empty output", map[string]any{
			"operation": req.Operation,
		})
	}
	return res.Text, nil
}

// diagnose asks the provider why the operation keeps failing. Failure of
// the diagnosis call itself is non-fatal and only logged.
func (e *Engine) diagnose(ctx context.Context, req Request, verdict Verdict, lastErr error) string {
	e.log(ctx, req, string(StateDiagnosing), "requesting failure diagnosis")

	var b strings.Builder
	b.WriteString("The following generation request kept failing validation. ")
	b.WriteString("Explain briefly, in plain language, the most likely reason.\n")
	if len(verdict.ViolatedRules) > 0 {
		fmt.Fprintf(&b, "Violated rule numbers: %v\n", verdict.ViolatedRules)
	}
	if verdict.Reason != "" {
		fmt.Fprintf(&b, "Checker reason: %s\n", verdict.Reason)
	}
	if lastErr != nil {
		fmt.Fprintf(&b, "Last error: %v\n", lastErr)
	}
	for _, m := range req.Messages {
		if m.Role == "user" {
			fmt.Fprintf(&b, "Original request:\n%s\n", m.Content)
			break
		}
	}

	res, err := e.provider.Generate(ctx, llm.Request{
		Role:     req.Role,
		Messages: []llm.Message{{Role: "user", Content: b.String()}},
		Model:    req.Model,
	})
	if err != nil {
		e.log(ctx, req, string(StateDiagnosing), fmt.Sprintf("diagnosis call failed: %v", err))
		return ""
	}
	return strings.TrimSpace(res.Text)
}

func (e *Engine) log(ctx context.Context, req Request, result, message string) {
	if e.journal == nil {
		return
	}
	e.journal.Log(ctx, store.LogRecord{
		ThreadID: req.ThreadID,
		StoryID:  req.StoryID,
		Category: "ResponseValidation",
		Role:     req.Role,
		Model:    req.Model,
		Result:   result,
		Message:  message,
	})
}
