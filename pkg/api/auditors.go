package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chorusnet/chorus/pkg/types"
)

// workerStatusRequest is the body of POST /auditors/worker-status.
type workerStatusRequest struct {
	AuditorID string                 `json:"auditor_id"`
	Statuses  []types.ReportedStatus `json:"worker_status"`
	Epoch     uint64                 `json:"epoch"`
}

// evaluationRequest is the body of POST /auditors/evaluation.
type evaluationRequest struct {
	TaskID    string                       `json:"task_id"`
	AuditorID string                       `json:"auditor_id"`
	Scores    map[string]types.WorkerScore `json:"worker_scores"`
}

func (s *Server) handleWorkerStatusReport(w http.ResponseWriter, r *http.Request) {
	var req workerStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed report body"})
		return
	}
	if req.AuditorID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "auditor_id is required"})
		return
	}

	if err := s.coord.ReceiveAuditorReport(req.AuditorID, req.Statuses, req.Epoch); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"auditor_id": req.AuditorID,
		"accepted":   len(req.Statuses),
	})
}

func (s *Server) handleAuditedTasks(w http.ResponseWriter, r *http.Request) {
	auditorID := chi.URLParam(r, "auditorID")
	ids, err := s.coord.AuditedTaskIDs(auditorID)
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"auditor_id": auditorID, "task_ids": ids})
}

func (s *Server) handleEvaluation(w http.ResponseWriter, r *http.Request) {
	var req evaluationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed evaluation body"})
		return
	}

	ev := &types.AuditEvaluation{
		TaskID:      req.TaskID,
		AuditorID:   req.AuditorID,
		EvaluatedAt: time.Now().UTC(),
		Scores:      req.Scores,
	}
	if err := s.coord.RecordEvaluation(ev); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"task_id": req.TaskID,
		"status":  string(types.TaskStatusDone),
	})
}
