package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/fablecast/fablecast/pkg/adapters/llm"
	"github.com/fablecast/fablecast/pkg/errmodel"
	"github.com/fablecast/fablecast/pkg/policy"
)

// verdictSchema constrains what the checker model may answer.
const verdictSchema = `{
	"type": "object",
	"required": ["is_valid"],
	"properties": {
		"is_valid": {"type": "boolean"},
		"violated_rules": {"type": "array", "items": {"type": "integer", "minimum": 1}},
		"reason": {"type": "string"}
	},
	"additionalProperties": false
}`

var (
	verdictOnce     sync.Once
	verdictCompiled *jsonschema.Schema
	verdictErr      error
)

func compiledVerdictSchema() (*jsonschema.Schema, error) {
	verdictOnce.Do(func() {
		c := jsonschema.NewCompiler()
		var doc any
		if verdictErr = json.Unmarshal([]byte(verdictSchema), &doc); verdictErr != nil {
			return
		}
		if verdictErr = c.AddResource("mem://verdict.json", doc); verdictErr != nil {
			return
		}
		verdictCompiled, verdictErr = c.Compile("mem://verdict.json")
	})
	return verdictCompiled, verdictErr
}

// LLMChecker implements Checker by asking a model to judge the candidate
// against the numbered rules and answer with a JSON verdict.
type LLMChecker struct {
	provider llm.Provider
	model    string
}

// NewLLMChecker constructs a checker; model may be empty for the provider
// default.
func NewLLMChecker(provider llm.Provider, model string) *LLMChecker {
	return &LLMChecker{provider: provider, model: model}
}

// Check sends the candidate and active rules to the checker model.
func (c *LLMChecker) Check(ctx context.Context, candidate string, rules []policy.Rule) (Verdict, error) {
	var b strings.Builder
	b.WriteString("You are a response checker. Judge the candidate output against the numbered rules.\n")
	b.WriteString("Answer with JSON only: {\"is_valid\": bool, \"violated_rules\": [rule numbers], \"reason\": string}.\n\nRules:\n")
	for _, r := range rules {
		fmt.Fprintf(&b, "%d. %s\n", r.ID, r.Text)
	}
	b.WriteString("\nCandidate output:\n")
	b.WriteString(candidate)

	res, err := c.provider.Generate(ctx, llm.Request{
		Role:     "checker",
		Messages: []llm.Message{{Role: "user", Content: b.String()}},
		Model:    c.model,
	})
	if err != nil {
		return Verdict{}, err
	}
	return ParseVerdict(res.Text)
}

// ParseVerdict extracts and validates a JSON verdict from model output,
// tolerating surrounding prose and markdown fences.
func ParseVerdict(text string) (Verdict, error) {
	raw := extractJSON(text)
	if raw == "" {
		return Verdict{}, errmodel.Checker("bad_verdict", "checker answer contains no JSON object", map[string]any{"text": text})
	}
	sch, err := compiledVerdictSchema()
	if err != nil {
		return Verdict{}, errmodel.System("schema_compile", "verdict schema invalid", nil, err)
	}
	var generic any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return Verdict{}, errmodel.Checker("bad_verdict", "checker answer is not valid JSON", map[string]any{"text": raw})
	}
	if err := sch.Validate(generic); err != nil {
		return Verdict{}, errmodel.Checker("bad_verdict", "checker answer does not match verdict schema", map[string]any{"error": err.Error()})
	}
	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Verdict{}, errmodel.Checker("bad_verdict", "checker answer cannot be decoded", map[string]any{"text": raw})
	}
	return v, nil
}

// extractJSON returns the first top-level JSON object in text.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inStr := false
	esc := false
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
