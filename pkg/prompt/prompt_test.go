package prompt

import (
	"strings"
	"testing"
)

func TestStoreVersioningAndLint(t *testing.T) {
	s := NewStore()

	if _, issues, err := s.Save(Template{Name: "", Body: "hello"}); err == nil {
		t.Fatal("expected lint failure for missing name")
	} else if len(issues) == 0 {
		t.Fatal("expected issues")
	}

	v1, issues, err := s.Save(Template{Name: "write_chapter", Role: "episodes", Body: "Write {{.beat}}"})
	if err != nil {
		t.Fatalf("save v1: %v (%v)", err, issues)
	}
	if v1.Version != 1 {
		t.Fatalf("v1 version=%d", v1.Version)
	}

	v2, _, err := s.Save(Template{Name: "write_chapter", Role: "episodes", Body: "Write vividly: {{.beat}}"})
	if err != nil {
		t.Fatal(err)
	}
	if v2.Version != 2 {
		t.Fatalf("v2 version=%d", v2.Version)
	}

	got, ok := s.Get("write_chapter", 0)
	if !ok || got.Version != 2 {
		t.Fatalf("get latest=%+v ok=%v", got, ok)
	}
	got1, ok := s.Get("write_chapter", 1)
	if !ok || got1.Version != 1 {
		t.Fatalf("get v1=%+v ok=%v", got1, ok)
	}
	if all := s.List("write_chapter"); len(all) != 2 {
		t.Fatalf("list=%+v", all)
	}
}

func TestLintRejectsUnbalancedBracesAndSecrets(t *testing.T) {
	if issues := Lint(Template{Name: "x", Body: "Hello {{.name}"}); len(issues) == 0 {
		t.Fatal("unbalanced braces must be flagged")
	}
	if issues := Lint(Template{Name: "x", Body: "key is sk-abc123"}); len(issues) == 0 {
		t.Fatal("secret-like body must be flagged")
	}
}

func TestDiff(t *testing.T) {
	s := NewStore()
	if _, _, err := s.Save(Template{Name: "p", Body: "line one\nline two"}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Save(Template{Name: "p", Body: "line one\nline 2"}); err != nil {
		t.Fatal(err)
	}
	d := s.Diff("p", 1, 2)
	if !strings.Contains(d, "-line two") || !strings.Contains(d, "+line 2") {
		t.Fatalf("unexpected diff:\n%s", d)
	}
	if s.Diff("p", 1, 1) != "" {
		t.Fatal("identical versions must diff empty")
	}
}

func TestDefaultStoreCarriesRoleTemplates(t *testing.T) {
	s := NewDefaultStore()
	names := s.Names()
	for _, want := range []string{"plan_story", "write_chapter", "summarize_story", "check_response", "score_story"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("builtin %q missing from %v", want, names)
		}
	}
	tpl, ok := s.Get("write_chapter", 0)
	if !ok || tpl.Role != "episodes" || !strings.Contains(tpl.Body, "{{.beat}}") {
		t.Fatalf("unexpected builtin: %+v", tpl)
	}
}
