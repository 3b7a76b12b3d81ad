package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chorusnet/chorus/pkg/coordinator"
	"github.com/chorusnet/chorus/pkg/types"
)

// maxMultipartMemory bounds how much of an upload stays in memory before
// spilling to a temp file.
const maxMultipartMemory = 32 << 20

// submitResponse is returned by every task submission route.
type submitResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// taskSnapshot is the client view of a task.
type taskSnapshot struct {
	TaskID       string                `json:"task_id"`
	Kind         types.TaskKind        `json:"task_type"`
	Status       types.TaskStatus      `json:"status"`
	Priority     types.TaskPriority    `json:"priority"`
	Assignments  int                   `json:"assignment_count"`
	Responses    int                   `json:"response_count"`
	RetryCount   int                   `json:"retry_count"`
	FailReason   string                `json:"fail_reason,omitempty"`
	BestResponse *types.WorkerResponse `json:"best_response,omitempty"`
	CreatedAt    string                `json:"created_at"`
}

func snapshotOf(t *types.Task) taskSnapshot {
	s := taskSnapshot{
		TaskID:      t.TaskID,
		Kind:        t.Kind,
		Status:      t.Status,
		Priority:    t.Priority,
		Assignments: len(t.Assignments),
		Responses:   len(t.WorkerResponses),
		RetryCount:  t.RetryCount,
		FailReason:  t.FailReason,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
	}
	if best := bestResponse(t); best != nil {
		s.BestResponse = best
	}
	return s
}

// bestResponse picks the earliest non-broken response, falling back to the
// earliest response of any kind.
func bestResponse(t *types.Task) *types.WorkerResponse {
	var fallback *types.WorkerResponse
	for i := range t.WorkerResponses {
		r := &t.WorkerResponses[i]
		if fallback == nil {
			fallback = r
		}
		if !r.OutputRef.Broken && r.OutputRef.Error == "" {
			return r
		}
	}
	return fallback
}

// handleSubmitTask accepts multipart (file kinds) or form submissions and
// creates a Pending task.
func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	kind := types.TaskKind(chi.URLParam(r, "kind"))

	req := &coordinator.SubmitRequest{Kind: kind}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed multipart body"})
			return
		}
		if data, ok := formFile(r); ok {
			req.Data = data
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed form body"})
			return
		}
	}

	req.Text = r.FormValue("text")
	req.SourceLanguage = r.FormValue("source_language")
	req.TargetLanguage = r.FormValue("target_language")
	req.Priority = types.TaskPriority(r.FormValue("priority"))
	req.RequiredWorkerCount = formInt(r, "required_worker_count")
	req.MinWorkerCount = formInt(r, "min_worker_count")
	req.MaxWorkerCount = formInt(r, "max_worker_count")

	taskID, err := s.coord.SubmitTask(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{TaskID: taskID, Status: string(types.TaskStatusPending)})
}

// formFile reads the first uploaded file under any of the accepted field
// names.
func formFile(r *http.Request) ([]byte, bool) {
	for _, field := range []string{"file", "audio", "document", "video"} {
		f, _, err := r.FormFile(field)
		if err != nil {
			continue
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, false
		}
		return data, true
	}
	return nil, false
}

func formInt(r *http.Request, field string) int {
	v, err := strconv.Atoi(r.FormValue(field))
	if err != nil {
		return 0
	}
	return v
}

func queryLimit(r *http.Request, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.coord.GetTask(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotOf(task))
}

func (s *Server) handleCompletedTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.coord.ListCompletedTasks(queryLimit(r, 100))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.coord.CancelTask(taskID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID, "status": string(types.TaskStatusCancelled)})
}
