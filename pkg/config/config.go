// Package config loads the pipeline configuration: a TOML file for roles,
// policies, rules, scoring and model endpoints, with environment variables
// overlaid for deployment-specific values. Loaded once; immutable for the
// run's lifetime.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/fablecast/fablecast/pkg/policy"
)

// Config is the full configuration surface.
type Config struct {
	DSN      string `toml:"dsn" env:"FABLECAST_DSN"`
	HTTPAddr string `toml:"http_addr" env:"FABLECAST_HTTP_ADDR"`

	Provider      string `toml:"provider" env:"FABLECAST_PROVIDER"`
	APIKey        string `toml:"-" env:"FABLECAST_API_KEY"`
	BaseURL       string `toml:"base_url" env:"FABLECAST_BASE_URL"`
	Model         string `toml:"model" env:"FABLECAST_MODEL"`
	FallbackModel string `toml:"fallback_model" env:"FABLECAST_FALLBACK_MODEL"`
	CheckerModel  string `toml:"checker_model" env:"FABLECAST_CHECKER_MODEL"`

	Scoring    Scoring           `toml:"scoring"`
	Validation Validation        `toml:"validation"`
	Roles      map[string]Role   `toml:"roles"`
	Rules      []Rule            `toml:"rules"`
	Overrides  map[string]Policy `toml:"operations"`
}

// Scoring configures the acceptance gate.
type Scoring struct {
	Threshold   float64 `toml:"threshold" env:"FABLECAST_SCORE_THRESHOLD"`
	AcceptEqual bool    `toml:"accept_equal" env:"FABLECAST_SCORE_ACCEPT_EQUAL"`
	Model       string  `toml:"model" env:"FABLECAST_EVALUATOR_MODEL"`
}

// Validation holds the global policy defaults and the role skip list.
type Validation struct {
	Default   Policy   `toml:"default"`
	SkipRoles []string `toml:"skip_roles"`
}

// Policy mirrors one operation policy in the file.
type Policy struct {
	UseChecker                     bool  `toml:"use_checker"`
	MaxRetries                     int   `toml:"max_retries"`
	AskFailureReasonOnFinalFailure bool  `toml:"ask_failure_reason"`
	EnableFallback                 bool  `toml:"enable_fallback"`
	RuleIDs                        []int `toml:"rule_ids"`
}

// Role mirrors one role's orchestration settings. Durations are strings
// ("30s", "2m"), parsed on conversion.
type Role struct {
	MaxAttempts         int    `toml:"max_attempts"`
	Delay               string `toml:"delay"`
	Timeout             string `toml:"timeout"`
	ExplainAfterAttempt int    `toml:"explain_after_attempt"`
}

// Rule is one numbered validation rule.
type Rule struct {
	ID   int    `toml:"id"`
	Text string `toml:"text"`
}

// Load reads the TOML file at path (skipped when path is empty), then
// overlays environment variables.
func Load(path string) (Config, error) {
	cfg := Config{
		HTTPAddr: ":8080",
		Provider: "openai",
		Scoring:  Scoring{Threshold: 7},
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: environment overlay: %w", err)
	}
	return cfg, nil
}

// PolicyConfig converts the file form into the policy store's input.
func (c Config) PolicyConfig() (policy.Config, error) {
	out := policy.Config{
		Default:   c.Validation.Default.toPolicy(),
		SkipRoles: c.Validation.SkipRoles,
	}
	if len(c.Overrides) > 0 {
		out.Overrides = make(map[string]policy.OperationPolicy, len(c.Overrides))
		for name, p := range c.Overrides {
			out.Overrides[name] = p.toPolicy()
		}
	}
	if len(c.Roles) > 0 {
		out.Roles = make(map[string]policy.RoleConfig, len(c.Roles))
		for name, r := range c.Roles {
			rc, err := r.toRoleConfig()
			if err != nil {
				return policy.Config{}, fmt.Errorf("config: role %s: %w", name, err)
			}
			out.Roles[name] = rc
		}
	}
	for _, r := range c.Rules {
		out.Rules = append(out.Rules, policy.Rule{ID: r.ID, Text: r.Text})
	}
	return out, nil
}

func (p Policy) toPolicy() policy.OperationPolicy {
	return policy.OperationPolicy{
		UseChecker:                     p.UseChecker,
		MaxRetries:                     p.MaxRetries,
		AskFailureReasonOnFinalFailure: p.AskFailureReasonOnFinalFailure,
		EnableFallback:                 p.EnableFallback,
		RuleIDs:                        p.RuleIDs,
	}
}

func (r Role) toRoleConfig() (policy.RoleConfig, error) {
	rc := policy.RoleConfig{
		MaxAttempts:         r.MaxAttempts,
		ExplainAfterAttempt: r.ExplainAfterAttempt,
	}
	var err error
	if r.Delay != "" {
		if rc.Delay, err = time.ParseDuration(r.Delay); err != nil {
			return policy.RoleConfig{}, fmt.Errorf("delay: %w", err)
		}
	}
	if r.Timeout != "" {
		if rc.Timeout, err = time.ParseDuration(r.Timeout); err != nil {
			return policy.RoleConfig{}, fmt.Errorf("timeout: %w", err)
		}
	}
	return rc, nil
}
