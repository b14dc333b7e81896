package main

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/d-o-hub/memcore/internal/logging"
	"github.com/d-o-hub/memcore/internal/memcore"
	"github.com/d-o-hub/memcore/internal/orchestrator"
	"github.com/d-o-hub/memcore/internal/retrieval"
)

// newMux builds the HTTP surface the memory service exposes to its
// callers: episode lifecycle, retrieval, relationships, pattern
// maintenance, and sandboxed execution, plus a health check.
func newMux(orch *orchestrator.Orchestrator, log logging.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/v1/episodes", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handleCreateEpisode(orch, log, w, r)
		case http.MethodGet:
			handleListEpisodes(orch, log, w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/v1/episodes/", func(w http.ResponseWriter, r *http.Request) {
		id, rest := shiftPath(r.URL.Path, "/v1/episodes/")
		if id == "" {
			http.Error(w, "episode id required", http.StatusBadRequest)
			return
		}
		switch {
		case rest == "" && r.Method == http.MethodGet:
			handleGetEpisode(orch, log, w, r, id)
		case rest == "steps" && r.Method == http.MethodPost:
			handleAppendStep(orch, log, w, r, id)
		case rest == "complete" && r.Method == http.MethodPost:
			handleCompleteEpisode(orch, log, w, r, id)
		case rest == "related" && r.Method == http.MethodGet:
			handleGetRelated(orch, w, r, id)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	})

	mux.HandleFunc("/v1/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleQuery(orch, log, w, r)
	})

	mux.HandleFunc("/v1/relationships", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handleAddRelationship(orch, log, w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/v1/relationships/", func(w http.ResponseWriter, r *http.Request) {
		id, _ := shiftPath(r.URL.Path, "/v1/relationships/")
		if id == "" || r.Method != http.MethodDelete {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := orch.RemoveRelationship(r.Context(), id); err != nil {
			writeErr(log, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/v1/sandbox/execute", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		handleExecuteCode(orch, log, w, r)
	})

	mux.HandleFunc("/v1/patterns/extract", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		patterns, err := orch.ExtractPatterns(r.Context())
		if err != nil {
			writeErr(log, w, err)
			return
		}
		writeJSON(w, http.StatusOK, patterns)
	})

	mux.HandleFunc("/v1/patterns/decay", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := orch.DecayPatterns(r.Context()); err != nil {
			writeErr(log, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

type createEpisodeRequest struct {
	TaskType        memcore.TaskType       `json:"task_type"`
	TaskDescription string                 `json:"task_description"`
	Context         memcore.EpisodeContext `json:"context"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
}

func handleCreateEpisode(orch *orchestrator.Orchestrator, log logging.Logger, w http.ResponseWriter, r *http.Request) {
	var req createEpisodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	e, err := orch.CreateEpisode(r.Context(), req.TaskType, req.TaskDescription, req.Context, req.Metadata)
	if err != nil {
		writeErr(log, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func handleListEpisodes(orch *orchestrator.Orchestrator, log logging.Logger, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := memcore.EpisodeFilter{
		Domain:   q.Get("domain"),
		TaskType: memcore.TaskType(q.Get("task_type")),
		Language: q.Get("language"),
		Tag:      q.Get("tag"),
		Limit:    queryInt(q, "limit", 100),
		Offset:   queryInt(q, "offset", 0),
	}
	episodes, err := orch.ListEpisodes(r.Context(), filter)
	if err != nil {
		writeErr(log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, episodes)
}

func handleGetEpisode(orch *orchestrator.Orchestrator, log logging.Logger, w http.ResponseWriter, r *http.Request, id string) {
	e, err := orch.GetEpisode(r.Context(), id)
	if err != nil {
		writeErr(log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func handleAppendStep(orch *orchestrator.Orchestrator, log logging.Logger, w http.ResponseWriter, r *http.Request, id string) {
	var step memcore.ExecutionStep
	if err := json.NewDecoder(r.Body).Decode(&step); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := orch.AppendStep(r.Context(), id, step); err != nil {
		writeErr(log, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type completeEpisodeRequest struct {
	Outcome    *memcore.TaskOutcome `json:"outcome"`
	Reflection string               `json:"reflection,omitempty"`
}

func handleCompleteEpisode(orch *orchestrator.Orchestrator, log logging.Logger, w http.ResponseWriter, r *http.Request, id string) {
	var req completeEpisodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	e, err := orch.CompleteEpisode(r.Context(), id, req.Outcome, req.Reflection)
	if err != nil {
		writeErr(log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func handleGetRelated(orch *orchestrator.Orchestrator, w http.ResponseWriter, r *http.Request, id string) {
	q := r.URL.Query()
	dir := memcore.Direction(q.Get("direction"))
	if dir == "" {
		dir = memcore.DirectionBoth
	}
	typ := memcore.RelationshipType(q.Get("type"))
	writeJSON(w, http.StatusOK, orch.GetRelated(id, dir, typ))
}

func handleAddRelationship(orch *orchestrator.Orchestrator, log logging.Logger, w http.ResponseWriter, r *http.Request) {
	var rel memcore.EpisodeRelationship
	if err := json.NewDecoder(r.Body).Decode(&rel); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := orch.AddRelationship(r.Context(), &rel); err != nil {
		writeErr(log, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rel)
}

func handleQuery(orch *orchestrator.Orchestrator, log logging.Logger, w http.ResponseWriter, r *http.Request) {
	var q retrieval.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	episodes, err := orch.QueryEpisodes(r.Context(), q)
	if err != nil {
		writeErr(log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, episodes)
}

type executeCodeRequest struct {
	Code string `json:"code"`
}

func handleExecuteCode(orch *orchestrator.Orchestrator, log logging.Logger, w http.ResponseWriter, r *http.Request) {
	var req executeCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	result, err := orch.ExecuteCode(r.Context(), req.Code)
	if err != nil {
		writeErr(log, w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// shiftPath splits a "/prefix/<id>/<rest>" URL path into id and rest,
// given the known prefix.
func shiftPath(path, prefix string) (id, rest string) {
	trimmed := path[len(prefix):]
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] == '/' {
			return trimmed[:i], trimmed[i+1:]
		}
	}
	return trimmed, ""
}

func queryInt(q url.Values, key string, def int) int {
	v := q.Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps the module's error taxonomy onto HTTP status codes. Any
// error lacking a recognized *memcore.Error kind is treated as an
// unexpected internal failure.
func writeErr(log logging.Logger, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case memcore.IsKind(err, memcore.KindNotFound):
		status = http.StatusNotFound
	case memcore.IsKind(err, memcore.KindValidation):
		status = http.StatusBadRequest
	case memcore.IsKind(err, memcore.KindAlreadyCompleted):
		status = http.StatusConflict
	case memcore.IsKind(err, memcore.KindResourceLimit):
		status = http.StatusUnprocessableEntity
	case memcore.IsKind(err, memcore.KindSecurityViolation):
		status = http.StatusForbidden
	case memcore.IsKind(err, memcore.KindTimeout):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		log.Errorw("unhandled request error", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
