package opkey

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"GetMaxStoryId", "get_max_story_id"},
		{"generate_story", "generate_story"},
		{"Generate Story!", "generate_story"},
		{"  SummarizeStory  ", "summarize_story"},
		{"HTTPFetch", "httpfetch"},
		{"chapter2Draft", "chapter2_draft"},
		{"--weird--name--", "weird_name"},
		{"instruction_score/modelA", "instruction_score/modela"},
		{"Instruction_Score/ModelA", "instruction_score/modela"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Fatalf("Normalize(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func contains(keys []string, want string) bool {
	for _, k := range keys {
		if k == want {
			return true
		}
	}
	return false
}

func TestLookupKeys_AliasToCanonical(t *testing.T) {
	r := NewDefaultResolver()
	keys := r.LookupKeys("series_episode")
	if !contains(keys, "generate_series_episode") {
		t.Fatalf("keys %v missing canonical generate_series_episode", keys)
	}
	if !contains(keys, "series_episode") {
		t.Fatalf("keys %v missing raw input", keys)
	}
}

func TestLookupKeys_CanonicalToAliases(t *testing.T) {
	r := NewDefaultResolver()
	keys := r.LookupKeys("GenerateSeriesEpisode")
	if !contains(keys, "series_episode") || !contains(keys, "episode") {
		t.Fatalf("keys %v missing aliases", keys)
	}
}

func TestLookupKeys_ScopedName(t *testing.T) {
	r := NewDefaultResolver()
	keys := r.LookupKeys("instruction_score/modelA")
	if !contains(keys, "instruction_score") {
		t.Fatalf("keys %v missing scope prefix", keys)
	}
	if !contains(keys, "instruction_score/modela") {
		t.Fatalf("keys %v missing normalized scoped form", keys)
	}
	if !contains(keys, "instruction_score/modelA") {
		t.Fatalf("keys %v missing raw input", keys)
	}
}

func TestLookupKeys_NoDuplicates(t *testing.T) {
	r := NewDefaultResolver()
	keys := r.LookupKeys("generate_story")
	seen := map[string]int{}
	for _, k := range keys {
		seen[k]++
		if seen[k] > 1 {
			t.Fatalf("duplicate key %q in %v", k, keys)
		}
	}
}

func TestCanonical(t *testing.T) {
	r := NewDefaultResolver()
	for in, want := range map[string]string{
		"summarize_story":      "summarize",
		"Summary":              "summarize",
		"summarize":            "summarize",
		"summarize/gpt-4o":     "summarize",
		"GetMaxStoryId":        "get_max_story_id",
		"never_seen_operation": "never_seen_operation",
	} {
		if got := r.Canonical(in); got != want {
			t.Fatalf("Canonical(%q) = %q, want %q", in, got, want)
		}
	}
}
