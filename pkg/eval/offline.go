// Package eval runs offline checks over the role prompt templates:
// fixtures render a template with sample variables and assert on the
// output, without any model call.
package eval

import (
	"encoding/json"
	"io/fs"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/fablecast/fablecast/pkg/prompt"
)

// Fixture is one offline evaluation case. Template names a stored role
// template; Body is used instead when Template is empty.
type Fixture struct {
	Name     string         `json:"name"`
	Template string         `json:"template,omitempty"`
	Body     string         `json:"body,omitempty"`
	Vars     map[string]any `json:"vars"`
	Expect   Expectation    `json:"expect"`
}

// Expectation asserts on rendered output.
type Expectation struct {
	Contains    []string `json:"contains,omitempty"`
	NotContains []string `json:"not_contains,omitempty"`
}

// Report summarizes one fixture run.
type Report struct {
	Total   int
	Passed  int
	Details []string
}

// Score is Passed/Total, 1 for an empty fixture set.
func (r Report) Score() float64 {
	if r.Total == 0 {
		return 1
	}
	return float64(r.Passed) / float64(r.Total)
}

// Run loads fixtures from a directory of JSON files and evaluates them.
// Fixtures naming a template resolve it from store (latest version).
func Run(fsys fs.FS, dir string, store *prompt.Store) (Report, error) {
	fixtures, err := loadFixtures(fsys, dir)
	if err != nil {
		return Report{}, err
	}
	var rep Report
	rep.Total = len(fixtures)
	for _, fx := range fixtures {
		body := fx.Body
		if fx.Template != "" {
			tpl, ok := store.Get(fx.Template, 0)
			if !ok {
				rep.Details = append(rep.Details, fx.Name+": unknown template "+fx.Template)
				continue
			}
			body = tpl.Body
		}
		out, rerr := Render(body, fx.Vars)
		if rerr != nil {
			rep.Details = append(rep.Details, fx.Name+": render error: "+rerr.Error())
			continue
		}
		ok := true
		for _, s := range fx.Expect.Contains {
			if !strings.Contains(out, s) {
				ok = false
				rep.Details = append(rep.Details, fx.Name+": missing contains: "+s)
			}
		}
		for _, s := range fx.Expect.NotContains {
			if strings.Contains(out, s) {
				ok = false
				rep.Details = append(rep.Details, fx.Name+": unexpected contains: "+s)
			}
		}
		if ok {
			rep.Passed++
		}
	}
	return rep, nil
}

// Render executes a template body with vars; missing variables error.
func Render(body string, vars map[string]any) (string, error) {
	t, err := template.New("p").Option("missingkey=error").Parse(body)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := t.Execute(&b, vars); err != nil {
		return "", err
	}
	return b.String(), nil
}

func loadFixtures(fsys fs.FS, dir string) ([]Fixture, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}
	var out []Fixture
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		b, err := fs.ReadFile(fsys, filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		var fx Fixture
		if err := json.Unmarshal(b, &fx); err != nil {
			return nil, err
		}
		out = append(out, fx)
	}
	return out, nil
}
