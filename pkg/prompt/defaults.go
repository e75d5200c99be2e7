package prompt

// Built-in role prompt templates. Bodies use text/template syntax; the
// offline evaluation fixtures exercise them with sample variables.
var builtins = []Template{
	{
		Name: "plan_story",
		Role: "bible",
		Body: "Plan a story as a numbered outline of exactly {{.chapters}} chapters, one line per chapter.\n" +
			"Premise: {{.premise}}\nSetting: {{.setting}}\nStyle: {{.style}}\n",
	},
	{
		Name: "write_chapter",
		Role: "episodes",
		Body: "Write chapter {{.chapter}} of {{.total}} as narrated prose.\n" +
			"This chapter must cover: {{.beat}}\n\n{{.context}}",
	},
	{
		Name: "summarize_story",
		Role: "episodes",
		Body: "Update the cumulative story summary. Keep every plot-relevant fact; stay compact.\n\n" +
			"Summary so far:\n{{.summary}}\n\nChapter {{.chapter}} text:\n{{.text}}\n",
	},
	{
		Name: "check_response",
		Role: "validator",
		Body: "You are a response checker. Judge the candidate output against the numbered rules.\n" +
			"Answer with JSON only.\n\nRules:\n{{.rules}}\n\nCandidate output:\n{{.candidate}}",
	},
	{
		Name: "score_story",
		Role: "validator",
		Body: "Score the story from 1 to 10 against this rubric. Answer with JSON only.\n\n" +
			"Rubric: {{.rubric}}\n\nStory:\n{{.story}}",
	},
}

// NewDefaultStore returns a Store seeded with the built-in templates at
// version 1.
func NewDefaultStore() *Store {
	s := NewStore()
	for _, t := range builtins {
		// builtins always pass lint
		_, _, _ = s.Save(t)
	}
	return s
}
