// Package assembler builds the per-chapter prompt context deterministically:
// pinned sections first, duplicates removed, token budget never exceeded.
package assembler

import (
	"sort"
	"strings"
)

// Section kinds used by the narrative machine.
const (
	KindOutline = "outline"
	KindSummary = "summary"
	KindChapter = "chapter"
	KindMemory  = "memory"
	KindPremise = "premise"
)

// Section is one retrievable piece of chapter context. Identity for
// ordering and dedup is (Kind, ID).
type Section struct {
	Kind string
	ID   string
	Text string
}

// Pin marks a section that is considered before everything else.
type Pin struct {
	Kind string
	ID   string
}

// Report summarizes one build decision.
type Report struct {
	Tokens  int // tokens of included sections
	Dropped int // sections excluded by the budget (duplicates not counted)
}

// TokenEstimator estimates token usage of text.
type TokenEstimator func(text string) int

// Builder assembles chapter context under a token budget.
type Builder struct {
	estimate TokenEstimator
	budget   int
}

// Option configures the Builder.
type Option func(*Builder)

// WithTokenEstimator sets the estimator. Defaults to rune count.
func WithTokenEstimator(est TokenEstimator) Option {
	return func(b *Builder) {
		if est != nil {
			b.estimate = est
		}
	}
}

// WithBudget sets the maximum token budget.
func WithBudget(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.budget = n
		}
	}
}

// New creates a Builder. Without options the budget is effectively
// unbounded and tokens are counted as runes.
func New(opts ...Option) *Builder {
	b := &Builder{
		estimate: func(s string) int { return len([]rune(s)) },
		budget:   1_000_000_000,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build selects sections deterministically. Pinned sections are taken
// first, then the rest, both in (Kind, ID) order; a section that would
// exceed the remaining budget is dropped, never truncated.
func (b *Builder) Build(sections []Section, pins []Pin) ([]Section, Report) {
	type key struct{ kind, id string }
	seen := make(map[key]Section, len(sections))
	for _, s := range sections {
		k := key{s.Kind, s.ID}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = s
	}
	pinned := make(map[key]bool, len(pins))
	for _, p := range pins {
		pinned[key{p.Kind, p.ID}] = true
	}

	var first, rest []Section
	for k, s := range seen {
		if pinned[k] {
			first = append(first, s)
		} else {
			rest = append(rest, s)
		}
	}
	less := func(a, b Section) bool {
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.ID < b.ID
	}
	sort.Slice(first, func(i, j int) bool { return less(first[i], first[j]) })
	sort.Slice(rest, func(i, j int) bool { return less(rest[i], rest[j]) })

	var (
		out  []Section
		rep  Report
		left = b.budget
	)
	take := func(s Section) {
		cost := b.estimate(s.Text)
		if cost > left {
			rep.Dropped++
			return
		}
		left -= cost
		rep.Tokens += cost
		out = append(out, s)
	}
	for _, s := range first {
		take(s)
	}
	for _, s := range rest {
		take(s)
	}
	return out, rep
}

// Render concatenates sections into one prompt block, each prefixed with
// its kind header.
func Render(sections []Section) string {
	var sb strings.Builder
	for i, s := range sections {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("[" + s.Kind + "] ")
		sb.WriteString(s.Text)
	}
	return sb.String()
}
