package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/usemanusai/tce/internal/definition"
	"github.com/usemanusai/tce/internal/engine"
	"github.com/usemanusai/tce/model"
)

// taskRequest is the wire form of a task. TimeoutMs and MaxRetries are
// pointers so absent fields get engine defaults while an explicit zero
// survives decoding.
type taskRequest struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Executor     string         `json:"executor"`
	Dependencies []string       `json:"dependencies"`
	Inputs       map[string]any `json:"inputs"`
	Priority     string         `json:"priority"`
	TimeoutMs    *int64         `json:"timeout_ms"`
	MaxRetries   *int           `json:"max_retries"`
}

// workflowRequest is the wire form of a workflow submission.
type workflowRequest struct {
	Name    string         `json:"name"`
	Mode    string         `json:"mode"`
	Context map[string]any `json:"context"`
	Tasks   []taskRequest  `json:"tasks"`
}

func (req workflowRequest) spec() model.WorkflowSpec {
	tasks := make([]model.Task, len(req.Tasks))
	for i, tr := range req.Tasks {
		task := model.Task{
			ID:           tr.ID,
			Name:         tr.Name,
			Description:  tr.Description,
			Executor:     tr.Executor,
			Dependencies: tr.Dependencies,
			Inputs:       tr.Inputs,
			Priority:     model.Priority(tr.Priority),
			MaxRetries:   model.DefaultMaxRetries,
		}
		if tr.TimeoutMs != nil {
			task.Timeout = time.Duration(*tr.TimeoutMs) * time.Millisecond
		}
		if tr.MaxRetries != nil {
			task.MaxRetries = *tr.MaxRetries
		}
		tasks[i] = task
	}
	return model.WorkflowSpec{
		Name:    req.Name,
		Mode:    model.Mode(req.Mode),
		Context: req.Context,
		Tasks:   tasks,
	}
}

func handleWorkflowCreate(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req workflowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		id, err := eng.CreateWorkflow(r.Context(), req.spec())
		if err != nil {
			WriteError(w, err)
			return
		}

		wf, err := eng.GetWorkflowStatus(r.Context(), id)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, wf)
	}
}

func handleWorkflowCreateFromTemplate(eng *engine.Engine, defs *definition.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		templateID := chi.URLParam(r, "definitionID")
		tpl, ok := defs.Get(templateID)
		if !ok {
			WriteNotFound(w, "template "+templateID+" not found")
			return
		}

		var body struct {
			Context map[string]any `json:"context"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		id, err := eng.CreateWorkflow(r.Context(), tpl.Instantiate(body.Context))
		if err != nil {
			WriteError(w, err)
			return
		}

		wf, err := eng.GetWorkflowStatus(r.Context(), id)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, wf)
	}
}

func handleWorkflowExecute(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "workflowID")

		if r.URL.Query().Get("async") == "true" {
			if err := eng.ExecuteWorkflowAsync(r.Context(), id); err != nil {
				WriteError(w, err)
				return
			}
			WriteJSON(w, http.StatusAccepted, map[string]string{
				"workflow_id": id,
				"status":      model.WorkflowStatusRunning,
			})
			return
		}

		result, err := eng.ExecuteWorkflow(r.Context(), id)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

func handleWorkflowGet(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wf, err := eng.GetWorkflowStatus(r.Context(), chi.URLParam(r, "workflowID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, wf)
	}
}

func handleWorkflowEvents(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := eng.GetWorkflowEvents(r.Context(), chi.URLParam(r, "workflowID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"events": events})
	}
}

func handleWorkflowCancel(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "workflowID")
		if err := eng.CancelWorkflow(r.Context(), id); err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{
			"workflow_id": id,
			"status":      model.WorkflowStatusCancelled,
		})
	}
}

func handleWorkflowDelete(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "workflowID")
		if err := eng.DeleteWorkflow(r.Context(), id); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleWorkflowList(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters := engine.ListFilters{
			Status: r.URL.Query().Get("status"),
			Mode:   model.Mode(r.URL.Query().Get("mode")),
			Limit:  queryInt(r, "limit", 20),
			Offset: queryInt(r, "offset", 0),
		}

		workflows, err := eng.ListWorkflows(r.Context(), filters)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":   workflows,
			"limit":  filters.Limit,
			"offset": filters.Offset,
		})
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
