package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fablecast/fablecast/pkg/command"
	"github.com/fablecast/fablecast/pkg/errmodel"
	"github.com/fablecast/fablecast/pkg/ident"
	"github.com/fablecast/fablecast/pkg/narrative"
	"github.com/fablecast/fablecast/pkg/scoring"
	"github.com/fablecast/fablecast/pkg/store/sqlstore"
)

// app holds the wired pipeline behind the HTTP API.
type app struct {
	db       *sqlstore.Store
	alloc    *ident.Allocator
	machine  *narrative.Machine
	gate     *scoring.Gate
	registry *command.Registry
}

// commandPermissions grants the HTTP surface every builtin capability.
// Remote MCP callers get their own allow set.
var commandPermissions = map[string]bool{
	"model:generate": true,
	"store:read":     true,
	"store:write":    true,
}

func (a *app) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /api/stories", a.handleCreateStory)
	mux.HandleFunc("GET /api/stories/{key}", a.handleGetStory)
	mux.HandleFunc("POST /api/commands/{name}", a.handleCommand)
	mux.HandleFunc("GET /api/logs", a.handleLogs)
	mux.HandleFunc("GET /api/evaluations", a.handleEvaluations)
	return mux
}

type createStoryRequest struct {
	StoryKey string `json:"story_key"`
	Premise  string `json:"premise"`
	Setting  string `json:"setting,omitempty"`
	Style    string `json:"style,omitempty"`
	Chapters int    `json:"chapters"`
}

type createStoryResponse struct {
	StoryKey string          `json:"story_key"`
	StoryID  int64           `json:"story_id"`
	ThreadID int64           `json:"thread_id"`
	Phase    narrative.Phase `json:"phase"`
	Chapters int             `json:"chapters"`
	Text     string          `json:"text"`
	Accepted bool            `json:"accepted"`
	Average  float64         `json:"average"`
	Scores   []scoring.Score `json:"scores"`
}

// handleCreateStory runs a story to completion and scores the result.
// Re-posting an existing story key resumes it.
func (a *app) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createStoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errmodel.WriteHTTP(w, r, errmodel.Validation("bad_request", "request body is not valid JSON", nil))
		return
	}
	if req.StoryKey == "" {
		errmodel.WriteHTTP(w, r, errmodel.Validation("bad_request", "story_key is required", nil))
		return
	}

	storyID, err := a.alloc.EnsureStoryID(ctx, req.StoryKey)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	threadID, err := a.alloc.NextThreadID(ctx)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}

	st, err := a.machine.Run(ctx, narrative.Request{
		StoryKey: req.StoryKey,
		Premise: narrative.Premise{
			Premise:  req.Premise,
			Setting:  req.Setting,
			Style:    req.Style,
			Chapters: req.Chapters,
		},
		ThreadID: threadID,
		StoryID:  storyID,
	})
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}

	decision, err := a.gate.Evaluate(ctx, storyID, st.Text())
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}

	writeJSON(w, createStoryResponse{
		StoryKey: st.StoryKey,
		StoryID:  storyID,
		ThreadID: threadID,
		Phase:    st.Phase,
		Chapters: len(st.Chapters),
		Text:     st.Text(),
		Accepted: decision.Accepted,
		Average:  decision.Average,
		Scores:   decision.Scores,
	})
}

func (a *app) handleGetStory(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	st, ok, err := a.machine.Load(r.Context(), key)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	if !ok {
		errmodel.WriteHTTP(w, r, errmodel.Validation("not_found", "story not found", map[string]any{"story_key": key}))
		return
	}
	writeJSON(w, st)
}

func (a *app) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	args := map[string]any{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			errmodel.WriteHTTP(w, r, errmodel.Validation("bad_request", "request body is not valid JSON", nil))
			return
		}
	}
	out, err := a.registry.SafeInvoke(r.Context(), name, args, commandPermissions)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, out)
}

func (a *app) handleLogs(w http.ResponseWriter, r *http.Request) {
	threadID, err := strconv.ParseInt(r.URL.Query().Get("thread"), 10, 64)
	if err != nil {
		errmodel.WriteHTTP(w, r, errmodel.Validation("bad_request", "thread query parameter must be an integer", nil))
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			errmodel.WriteHTTP(w, r, errmodel.Validation("bad_request", "limit must be a positive integer", nil))
			return
		}
	}
	recs, err := a.db.ListLogByThread(r.Context(), threadID, limit)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, recs)
}

func (a *app) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	storyID, err := strconv.ParseInt(r.URL.Query().Get("story"), 10, 64)
	if err != nil {
		errmodel.WriteHTTP(w, r, errmodel.Validation("bad_request", "story query parameter must be an integer", nil))
		return
	}
	recs, err := a.db.ListEvaluations(r.Context(), storyID)
	if err != nil {
		errmodel.WriteHTTP(w, r, err)
		return
	}
	writeJSON(w, recs)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
