// Package prompt holds the versioned role prompt templates the pipeline
// renders for planning, chapter writing, summarizing, checking, and
// scoring. Templates are linted on save and queryable by version.
package prompt

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// Template is one versioned prompt template for a generation role.
type Template struct {
	Name    string
	Role    string
	Version int
	Body    string
	Meta    map[string]string
}

// Issue describes a lint finding.
type Issue struct {
	Rule    string
	Message string
}

// ErrLintFailed is returned by Save when linting rejects the template.
var ErrLintFailed = errors.New("prompt failed lint checks")

// Lint checks a template before it is stored: name and body must be
// present, placeholder braces must balance, and the body must not embed
// secret-like content.
func Lint(t Template) []Issue {
	var issues []Issue
	if t.Name == "" {
		issues = append(issues, Issue{Rule: "name.required", Message: "name is required"})
	}
	if strings.TrimSpace(t.Body) == "" {
		issues = append(issues, Issue{Rule: "body.required", Message: "body is empty"})
	}
	if strings.Count(t.Body, "{{") != strings.Count(t.Body, "}}") {
		issues = append(issues, Issue{Rule: "body.placeholders", Message: "unbalanced template braces"})
	}
	if containsSecretLike(t.Body) {
		issues = append(issues, Issue{Rule: "security.secrets", Message: "body appears to contain secret-like content"})
	}
	return issues
}

func containsSecretLike(s string) bool {
	l := strings.ToLower(s)
	for _, needle := range []string{"aws_secret_access_key", "begin private key", "sk-"} {
		if strings.Contains(l, needle) {
			return true
		}
	}
	return false
}

// Store is an in-memory versioned template store, immutable history.
type Store struct {
	mu   sync.RWMutex
	data map[string][]Template // name -> versions, ascending
}

// NewStore returns an empty Store.
func NewStore() *Store { return &Store{data: make(map[string][]Template)} }

// Save lints and stores a new version: 1 for a new name, last+1 otherwise.
func (s *Store) Save(t Template) (Template, []Issue, error) {
	issues := Lint(t)
	if len(issues) > 0 {
		return Template{}, issues, ErrLintFailed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	versions := s.data[t.Name]
	next := 1
	if len(versions) > 0 {
		next = versions[len(versions)-1].Version + 1
	}
	nt := Template{Name: t.Name, Role: t.Role, Version: next, Body: t.Body, Meta: t.Meta}
	s.data[t.Name] = append(versions, nt)
	return nt, nil, nil
}

// Get retrieves one version; version 0 means latest.
func (s *Store) Get(name string, version int) (Template, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.data[name]
	if len(versions) == 0 {
		return Template{}, false
	}
	if version <= 0 {
		return versions[len(versions)-1], true
	}
	i := sort.Search(len(versions), func(i int) bool { return versions[i].Version >= version })
	if i < len(versions) && versions[i].Version == version {
		return versions[i], true
	}
	return Template{}, false
}

// List returns every version of a name in ascending order.
func (s *Store) List(name string) []Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Template(nil), s.data[name]...)
}

// Names returns every stored template name, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for n := range s.data {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
