// Package opkey canonicalizes free-form operation names into stable policy
// lookup keys. Callers refer to the same operation under several spellings
// ("GetMaxStoryId", "get_max_story_id", "instruction_score/modelA"); all of
// them must resolve to the same policy entry.
package opkey

import (
	"strings"
	"unicode"
)

// Normalize converts an operation or command name to its canonical lower
// snake form. Names carrying a scope separator ("/") are lowered verbatim so
// the scoped suffix (typically a model name) survives; everything else gets
// mixed/Pascal case converted by inserting a separator before an uppercase
// letter that follows a lowercase letter or digit, with runs of
// non-alphanumeric characters collapsed into a single separator.
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.Contains(name, "/") {
		return strings.ToLower(name)
	}

	var b strings.Builder
	b.Grow(len(name) + 4)
	pending := false // a separator is owed before the next alphanumeric
	var prev rune
	for _, r := range name {
		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 && (pending || unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			pending = false
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			pending = false
		default:
			pending = true
		}
		prev = r
	}
	return b.String()
}

// Resolver expands a name into every key under which its policy may be
// registered. It holds a bidirectional alias table built once at startup.
type Resolver struct {
	canonical map[string][]string // canonical -> aliases
	aliasOf   map[string]string   // alias -> canonical
}

// NewResolver builds a Resolver from a canonical-to-aliases table. Alias
// names are normalized on the way in so the table may use any spelling.
func NewResolver(table map[string][]string) *Resolver {
	r := &Resolver{
		canonical: make(map[string][]string, len(table)),
		aliasOf:   make(map[string]string),
	}
	for canon, aliases := range table {
		ck := Normalize(canon)
		norm := make([]string, 0, len(aliases))
		for _, a := range aliases {
			ak := Normalize(a)
			if ak == "" || ak == ck {
				continue
			}
			norm = append(norm, ak)
			r.aliasOf[ak] = ck
		}
		r.canonical[ck] = norm
	}
	return r
}

// LookupKeys returns the set of keys a policy lookup should try for name:
// the trimmed raw input, its normalized form, the normalized form's scope
// prefix, the canonical name if the input is a known alias, and all aliases
// if the input is itself canonical. Order is stable; duplicates removed.
func (r *Resolver) LookupKeys(name string) []string {
	raw := strings.TrimSpace(name)
	norm := Normalize(raw)

	keys := make([]string, 0, 6)
	seen := make(map[string]bool, 6)
	add := func(k string) {
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		keys = append(keys, k)
	}

	add(raw)
	add(norm)
	if i := strings.IndexByte(norm, '/'); i > 0 {
		add(norm[:i])
	}
	// Alias expansion works on the unscoped form.
	base := norm
	if i := strings.IndexByte(base, '/'); i > 0 {
		base = base[:i]
	}
	if canon, ok := r.aliasOf[base]; ok {
		add(canon)
	}
	if aliases, ok := r.canonical[base]; ok {
		for _, a := range aliases {
			add(a)
		}
	}
	return keys
}

// Canonical returns the canonical key for name: the canonical side of the
// alias table when the normalized, unscoped form is a known alias, the
// normalized form otherwise.
func (r *Resolver) Canonical(name string) string {
	base := Normalize(strings.TrimSpace(name))
	if i := strings.IndexByte(base, '/'); i > 0 {
		base = base[:i]
	}
	if canon, ok := r.aliasOf[base]; ok {
		return canon
	}
	return base
}

// DefaultTable maps the pipeline's canonical operation names to the
// synonyms callers historically used for them.
func DefaultTable() map[string][]string {
	return map[string][]string{
		"generate_story":          {"story", "write_story"},
		"generate_series_episode": {"series_episode", "episode"},
		"generate_bible":          {"bible", "series_bible", "generate_story_plan"},
		"generate_characters":     {"characters"},
		"instruction_score":       {"score_instructions"},
		"evaluate_story":          {"eval", "evaluation"},
		"summarize":               {"summarize_story", "summary"},
		"validate_response":       {"response_check", "checker"},
		"get_max_story_id":        {"max_story_id"},
		"reset_thread_ids":        {"reset_threads"},
	}
}

// NewDefaultResolver builds a Resolver over DefaultTable.
func NewDefaultResolver() *Resolver { return NewResolver(DefaultTable()) }
