// Package narrative drives multi-pass story construction: plan a fixed
// chapter outline, then write chapter by chapter, compressing each finished
// chapter into a running summary that feeds the next one. State is durable
// at every phase boundary so a crashed run resumes without rewriting
// completed chapters.
package narrative

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/fablecast/fablecast/pkg/adapters/llm"
	"github.com/fablecast/fablecast/pkg/errmodel"
	"github.com/fablecast/fablecast/pkg/narrative/assembler"
	"github.com/fablecast/fablecast/pkg/orchestrator"
	"github.com/fablecast/fablecast/pkg/policy"
	"github.com/fablecast/fablecast/pkg/store"
	"github.com/fablecast/fablecast/pkg/validation"
)

// Phase names the machine's durable states.
type Phase string

const (
	PhasePlanning    Phase = "planning"
	PhaseWriting     Phase = "writing_chapter"
	PhaseSummarizing Phase = "summarizing"
	PhaseComplete    Phase = "complete"
)

// Premise is the immutable story seed.
type Premise struct {
	Premise  string `json:"premise"`
	Setting  string `json:"setting,omitempty"`
	Style    string `json:"style,omitempty"`
	Chapters int    `json:"chapters"`
}

// State is the durable narrative state, serialized as JSON into the store.
type State struct {
	StoryKey string   `json:"story_key"`
	Premise  Premise  `json:"premise"`
	Outline  []string `json:"outline,omitempty"`
	Chapters []string `json:"chapters,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	Phase    Phase    `json:"phase"`
	// Chapter is the 1-based index currently being written or summarized.
	Chapter int `json:"chapter,omitempty"`
}

// Runner executes one role-orchestrated generation. Satisfied by
// *orchestrator.Orchestrator.
type Runner interface {
	Run(ctx context.Context, req validation.Request) (orchestrator.Result, error)
}

// Request identifies one story run.
type Request struct {
	StoryKey string
	Premise  Premise
	// ThreadID and StoryID tag the request's log records.
	ThreadID int64
	StoryID  int64
}

// Option configures the Machine.
type Option func(*Machine)

// WithBuilder sets the context builder used for chapter prompts.
func WithBuilder(b *assembler.Builder) Option { return func(m *Machine) { m.builder = b } }

// WithMemory adds extra retrieval sections to every chapter context.
func WithMemory(fn MemoryFunc) Option { return func(m *Machine) { m.memory = fn } }

// MemoryFunc returns supplemental context sections for chapter n.
type MemoryFunc func(ctx context.Context, st State, chapter int) []assembler.Section

// WithChapterHook runs fn after each chapter is written. Hook errors do
// not fail the run.
func WithChapterHook(fn ChapterHook) Option { return func(m *Machine) { m.onChapter = fn } }

// ChapterHook observes a finished chapter.
type ChapterHook func(ctx context.Context, storyKey string, chapter int, text string) error

// Machine is the narrative state machine.
type Machine struct {
	runner    Runner
	db        store.NarrativeStore
	builder   *assembler.Builder
	memory    MemoryFunc
	onChapter ChapterHook
}

// New constructs a Machine.
func New(runner Runner, db store.NarrativeStore, opts ...Option) *Machine {
	m := &Machine{runner: runner, db: db, builder: assembler.New()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run drives the story to completion, resuming any durable state found
// under req.StoryKey. Cancellation is honored at phase boundaries; the
// last completed phase stays durable.
func (m *Machine) Run(ctx context.Context, req Request) (State, error) {
	tr := otel.Tracer("narrative")
	ctx, span := tr.Start(ctx, "Machine.Run", trace.WithAttributes(
		attribute.String("story.key", req.StoryKey),
	))
	defer span.End()

	if req.Premise.Chapters <= 0 {
		return State{}, errmodel.Validation("bad_premise", "chapter count must be positive", nil)
	}

	st, err := m.load(ctx, req)
	if err != nil {
		return State{}, err
	}

	for st.Phase != PhaseComplete {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return st, err
		}
		span.AddEvent("phase", trace.WithAttributes(
			attribute.String("phase", string(st.Phase)),
			attribute.Int("chapter", st.Chapter),
		))
		switch st.Phase {
		case PhasePlanning:
			err = m.plan(ctx, &st, req)
		case PhaseWriting:
			err = m.writeChapter(ctx, &st, req)
		case PhaseSummarizing:
			err = m.summarize(ctx, &st, req)
		default:
			err = errmodel.System("bad_phase", fmt.Sprintf("unknown narrative phase %q", st.Phase), nil, nil)
		}
		if err != nil {
			span.RecordError(err)
			return st, err
		}
		if err := m.save(ctx, st); err != nil {
			span.RecordError(err)
			return st, err
		}
	}
	return st, nil
}

// Load returns the durable state for a story, if any.
func (m *Machine) Load(ctx context.Context, storyKey string) (State, bool, error) {
	rec, ok, err := m.db.LoadNarrative(ctx, storyKey)
	if err != nil || !ok {
		return State{}, false, err
	}
	var st State
	if err := json.Unmarshal(rec.State, &st); err != nil {
		return State{}, false, errmodel.System("bad_state", "stored narrative state is not decodable", map[string]any{"story_key": storyKey}, err)
	}
	return st, true, nil
}

func (m *Machine) load(ctx context.Context, req Request) (State, error) {
	st, ok, err := m.Load(ctx, req.StoryKey)
	if err != nil {
		return State{}, err
	}
	if ok {
		return st, nil
	}
	return State{StoryKey: req.StoryKey, Premise: req.Premise, Phase: PhasePlanning}, nil
}

func (m *Machine) save(ctx context.Context, st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return errmodel.System("bad_state", "narrative state is not encodable", nil, err)
	}
	return m.db.SaveNarrative(ctx, store.NarrativeRecord{
		StoryKey:  st.StoryKey,
		State:     raw,
		UpdatedAt: time.Now().UTC(),
	})
}

// plan produces the fixed-length outline, persisted once.
func (m *Machine) plan(ctx context.Context, st *State, req Request) error {
	n := st.Premise.Chapters
	var b strings.Builder
	fmt.Fprintf(&b, "Plan a story as a numbered outline of exactly %d chapters, one line per chapter.\n", n)
	fmt.Fprintf(&b, "Premise: %s\n", st.Premise.Premise)
	if st.Premise.Setting != "" {
		fmt.Fprintf(&b, "Setting: %s\n", st.Premise.Setting)
	}
	if st.Premise.Style != "" {
		fmt.Fprintf(&b, "Style: %s\n", st.Premise.Style)
	}

	res, err := m.runner.Run(ctx, validation.Request{
		Operation: "generate_story_plan",
		Role:      policy.RoleBible,
		Messages:  []llm.Message{{Role: "user", Content: b.String()}},
		ThreadID:  req.ThreadID,
		StoryID:   req.StoryID,
	})
	if err != nil {
		return err
	}
	outline, err := ParseOutline(res.Text, n)
	if err != nil {
		return err
	}
	st.Outline = outline
	st.Phase = PhaseWriting
	st.Chapter = 1
	return nil
}

// writeChapter produces chapter st.Chapter from the outline, the running
// summary, and the previous chapter's full text.
func (m *Machine) writeChapter(ctx context.Context, st *State, req Request) error {
	n := st.Chapter
	sections := []assembler.Section{
		{Kind: assembler.KindPremise, ID: "premise", Text: st.Premise.Premise},
		{Kind: assembler.KindOutline, ID: "outline", Text: strings.Join(st.Outline, "\n")},
	}
	if st.Summary != "" {
		sections = append(sections, assembler.Section{Kind: assembler.KindSummary, ID: "running", Text: st.Summary})
	}
	if n > 1 {
		sections = append(sections, assembler.Section{
			Kind: assembler.KindChapter,
			ID:   fmt.Sprintf("%04d", n-1),
			Text: st.Chapters[n-2],
		})
	}
	if m.memory != nil {
		sections = append(sections, m.memory(ctx, *st, n)...)
	}
	picked, _ := m.builder.Build(sections, []assembler.Pin{{Kind: assembler.KindOutline, ID: "outline"}})

	var b strings.Builder
	fmt.Fprintf(&b, "Write chapter %d of %d as narrated prose.\n", n, st.Premise.Chapters)
	fmt.Fprintf(&b, "This chapter must cover: %s\n\n", st.Outline[n-1])
	b.WriteString(assembler.Render(picked))

	res, err := m.runner.Run(ctx, validation.Request{
		Operation: "generate_series_episode",
		Role:      policy.RoleEpisodes,
		Messages:  []llm.Message{{Role: "user", Content: b.String()}},
		ThreadID:  req.ThreadID,
		StoryID:   req.StoryID,
	})
	if err != nil {
		return err
	}
	st.Chapters = append(st.Chapters, res.Text)
	if m.onChapter != nil {
		_ = m.onChapter(ctx, st.StoryKey, n, res.Text)
	}
	st.Phase = PhaseSummarizing
	return nil
}

// summarize folds chapter st.Chapter into the cumulative summary and either
// advances to the next chapter or completes the story.
func (m *Machine) summarize(ctx context.Context, st *State, req Request) error {
	n := st.Chapter
	var b strings.Builder
	b.WriteString("Update the cumulative story summary. Keep every plot-relevant fact; stay compact.\n")
	if st.Summary != "" {
		fmt.Fprintf(&b, "\nSummary so far:\n%s\n", st.Summary)
	}
	fmt.Fprintf(&b, "\nChapter %d text:\n%s\n", n, st.Chapters[n-1])

	res, err := m.runner.Run(ctx, validation.Request{
		Operation: "summarize_story",
		Role:      policy.RoleEpisodes,
		Messages:  []llm.Message{{Role: "user", Content: b.String()}},
		ThreadID:  req.ThreadID,
		StoryID:   req.StoryID,
	})
	if err != nil {
		return err
	}
	st.Summary = res.Text
	if n < st.Premise.Chapters {
		st.Chapter = n + 1
		st.Phase = PhaseWriting
	} else {
		st.Phase = PhaseComplete
	}
	return nil
}

// ParseOutline extracts exactly want chapter lines from model output,
// stripping list markers. Extra trailing lines are dropped; too few lines
// reject the outline.
func ParseOutline(text string, want int) ([]string, error) {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• \t")
		line = strings.TrimLeft(line, "0123456789")
		line = strings.TrimLeft(line, ".) \t")
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == want {
			break
		}
	}
	if len(out) < want {
		return nil, errmodel.Validation("bad_outline",
			fmt.Sprintf("outline has %d chapters, want %d", len(out), want),
			map[string]any{"text": text})
	}
	return out, nil
}

// Text concatenates the completed chapters into the full narrated story.
func (st State) Text() string {
	return strings.Join(st.Chapters, "\n\n")
}
