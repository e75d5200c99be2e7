// Package policy holds the immutable per-operation validation policy, the
// numbered rule set the checker cites, and per-role orchestration settings.
// Everything here is loaded once at startup and never mutated afterwards.
package policy

import (
	"fmt"
	"sort"
	"time"

	"github.com/fablecast/fablecast/pkg/opkey"
)

// Generation roles wrapped by the role orchestrator.
const (
	RoleBible      = "bible"
	RoleCharacters = "characters"
	RoleEpisodes   = "episodes"
	RoleValidator  = "validator"
)

// Rule is one numbered validation rule. The checker must cite the violated
// rule number on rejection.
type Rule struct {
	ID   int
	Text string
}

// RuleSet is an immutable collection of rules indexed by id.
type RuleSet struct {
	rules []Rule
	byID  map[int]Rule
}

// NewRuleSet builds a RuleSet; duplicate ids are rejected.
func NewRuleSet(rules []Rule) (RuleSet, error) {
	rs := RuleSet{byID: make(map[int]Rule, len(rules))}
	for _, r := range rules {
		if r.ID <= 0 {
			return RuleSet{}, fmt.Errorf("policy: rule id %d must be positive", r.ID)
		}
		if _, dup := rs.byID[r.ID]; dup {
			return RuleSet{}, fmt.Errorf("policy: duplicate rule id %d", r.ID)
		}
		rs.byID[r.ID] = r
		rs.rules = append(rs.rules, r)
	}
	sort.Slice(rs.rules, func(i, j int) bool { return rs.rules[i].ID < rs.rules[j].ID })
	return rs, nil
}

// All returns every rule in id order.
func (rs RuleSet) All() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Subset returns the rules matching ids, in id order; unknown ids are
// silently skipped.
func (rs RuleSet) Subset(ids []int) []Rule {
	if len(ids) == 0 {
		return rs.All()
	}
	out := make([]Rule, 0, len(ids))
	for _, id := range ids {
		if r, ok := rs.byID[id]; ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns one rule by id.
func (rs RuleSet) Get(id int) (Rule, bool) {
	r, ok := rs.byID[id]
	return r, ok
}

// OperationPolicy configures the retry engine for one canonical operation.
type OperationPolicy struct {
	// UseChecker gates validation through the checker capability.
	UseChecker bool
	// MaxRetries bounds retries; total primary attempts = MaxRetries + 1.
	MaxRetries int
	// AskFailureReasonOnFinalFailure triggers a best-effort diagnosis call
	// once the retry budget is exhausted.
	AskFailureReasonOnFinalFailure bool
	// EnableFallback escalates to the fallback model after the primary
	// model is exhausted.
	EnableFallback bool
	// RuleIDs restricts the checker to a rule subset; empty means all rules.
	RuleIDs []int
}

// RoleConfig is the orchestration envelope for one generation role.
type RoleConfig struct {
	MaxAttempts int
	Delay       time.Duration
	Timeout     time.Duration
	// ExplainAfterAttempt requests a diagnosis once this attempt count is
	// reached without success; 0 disables the trigger.
	ExplainAfterAttempt int
}

// Config is the raw material for a Store.
type Config struct {
	Default   OperationPolicy
	Overrides map[string]OperationPolicy
	Roles     map[string]RoleConfig
	SkipRoles []string
	Rules     []Rule
}

// Store resolves operation names to policies through the opkey resolver.
// Immutable after construction.
type Store struct {
	def      OperationPolicy
	byKey    map[string]OperationPolicy
	roles    map[string]RoleConfig
	skip     map[string]bool
	rules    RuleSet
	resolver *opkey.Resolver
}

// NewStore builds a Store. Override keys are normalized on the way in so
// the config file may use any spelling. A nil resolver gets the default
// alias table.
func NewStore(cfg Config, resolver *opkey.Resolver) (*Store, error) {
	if resolver == nil {
		resolver = opkey.NewDefaultResolver()
	}
	rules, err := NewRuleSet(cfg.Rules)
	if err != nil {
		return nil, err
	}
	s := &Store{
		def:      cfg.Default,
		byKey:    make(map[string]OperationPolicy, len(cfg.Overrides)),
		roles:    make(map[string]RoleConfig, len(cfg.Roles)),
		skip:     make(map[string]bool, len(cfg.SkipRoles)),
		rules:    rules,
		resolver: resolver,
	}
	for k, p := range cfg.Overrides {
		s.byKey[opkey.Normalize(k)] = p
	}
	for k, rc := range cfg.Roles {
		s.roles[opkey.Normalize(k)] = rc
	}
	for _, r := range cfg.SkipRoles {
		s.skip[opkey.Normalize(r)] = true
	}
	return s, nil
}

// Resolve returns the policy for an operation name, trying every lookup key
// the resolver produces before falling back to the default. The second
// return is the key that matched ("" for the default).
func (s *Store) Resolve(name string) (OperationPolicy, string) {
	for _, k := range s.resolver.LookupKeys(name) {
		if p, ok := s.byKey[k]; ok {
			return p, k
		}
	}
	return s.def, ""
}

// Role returns the orchestration settings for a generation role.
func (s *Store) Role(name string) (RoleConfig, bool) {
	rc, ok := s.roles[opkey.Normalize(name)]
	return rc, ok
}

// SkipsValidation reports whether the role bypasses the checker entirely.
func (s *Store) SkipsValidation(role string) bool {
	return s.skip[opkey.Normalize(role)]
}

// Rules returns the full rule set.
func (s *Store) Rules() RuleSet { return s.rules }

// RulesFor returns the rules visible to the checker under p.
func (s *Store) RulesFor(p OperationPolicy) []Rule {
	return s.rules.Subset(p.RuleIDs)
}
