package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chorusnet/chorus/pkg/types"
)

// responseRequest is the JSON form of POST /workers/response. The same route
// also accepts multipart forms for responses carrying binary payloads.
type responseRequest struct {
	TaskID         string  `json:"task_id"`
	WorkerID       string  `json:"worker_id"`
	Transcript     string  `json:"transcript,omitempty"`
	Summary        string  `json:"summary,omitempty"`
	Translated     string  `json:"translated_text,omitempty"`
	AudioBlobID    string  `json:"audio_blob_id,omitempty"`
	Broken         bool    `json:"broken_file,omitempty"`
	Error          string  `json:"error,omitempty"`
	ProcessingTime float64 `json:"processing_time"`
	Accuracy       float64 `json:"accuracy"`
	Speed          float64 `json:"speed"`
}

func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	var info types.WorkerInfo
	if err := decodeJSON(r, &info); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed worker record"})
		return
	}
	if info.WorkerID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "worker_id is required"})
		return
	}
	if err := s.coord.RegisterWorker(&info); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"worker_id": info.WorkerID, "status": "registered"})
}

// handleWorkerTasks is the assignment pull endpoint. Only status=assigned is
// supported; the parameter exists so clients state what they expect.
func (s *Server) handleWorkerTasks(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerID")
	if status := r.URL.Query().Get("status"); status != "" && status != string(types.TaskStatusAssigned) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "only status=assigned is supported"})
		return
	}

	tasks, err := s.coord.TasksForWorker(workerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleWorkerResponse(w http.ResponseWriter, r *http.Request) {
	var req responseRequest
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed multipart body"})
			return
		}
		req.TaskID = r.FormValue("task_id")
		req.WorkerID = r.FormValue("worker_id")
		req.Transcript = r.FormValue("transcript")
		req.Summary = r.FormValue("summary")
		req.Translated = r.FormValue("translated_text")
		req.AudioBlobID = r.FormValue("audio_blob_id")
		req.Broken = r.FormValue("broken_file") == "true"
		req.Error = r.FormValue("error")
		req.ProcessingTime = formFloat(r, "processing_time")
		req.Accuracy = formFloat(r, "accuracy")
		req.Speed = formFloat(r, "speed")

		// An attached audio file becomes a blob referenced by the response.
		if data, ok := formFile(r); ok && req.AudioBlobID == "" {
			blobID, err := s.coord.Blobs().Put(data, "audio/wav")
			if err != nil {
				writeError(w, err)
				return
			}
			req.AudioBlobID = blobID
		}
	} else {
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed response body"})
			return
		}
	}

	if req.TaskID == "" || req.WorkerID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "task_id and worker_id are required"})
		return
	}

	resp := types.WorkerResponse{
		WorkerID: req.WorkerID,
		OutputRef: types.OutputRef{
			Transcript: req.Transcript,
			Summary:    req.Summary,
			Translated: req.Translated,
			AudioBlob:  req.AudioBlobID,
			Broken:     req.Broken,
			Error:      req.Error,
		},
		ProcessingTime: req.ProcessingTime,
		Accuracy:       req.Accuracy,
		Speed:          req.Speed,
		SubmittedAt:    time.Now().UTC(),
	}

	status, err := s.coord.RecordWorkerResponse(req.TaskID, req.WorkerID, resp)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_id": req.TaskID, "status": string(status)})
}

// handleTTSUpload stores a synthesized audio payload and returns its blob ID
// for the worker to reference in its response.
func (s *Server) handleTTSUpload(w http.ResponseWriter, r *http.Request) {
	var data []byte
	var contentType string

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed multipart body"})
			return
		}
		d, ok := formFile(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "audio file is required"})
			return
		}
		data = d
		contentType = "audio/wav"
	} else {
		d, err := io.ReadAll(r.Body)
		r.Body.Close()
		if err != nil || len(d) == 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "audio payload is required"})
			return
		}
		data = d
		contentType = r.Header.Get("Content-Type")
	}

	blobID, err := s.coord.Blobs().Put(data, contentType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"blob_id": blobID})
}

// handleRegisteredWorkers serves the raw registry snapshot. Auditors use it
// as the default observation source for status reports.
func (s *Server) handleRegisteredWorkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"workers": s.coord.RegisteredWorkers()})
}

// handleWorkersStatus serves the consensus view, paged with page/page_size.
func (s *Server) handleWorkersStatus(w http.ResponseWriter, r *http.Request) {
	records, err := s.coord.ConsensusView()
	if err != nil {
		writeError(w, err)
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 50)
	start := (page - 1) * pageSize
	if start > len(records) {
		start = len(records)
	}
	end := start + pageSize
	if end > len(records) {
		end = len(records)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"workers":   records[start:end],
		"page":      page,
		"page_size": pageSize,
		"total":     len(records),
	})
}

func formFloat(r *http.Request, field string) float64 {
	v, err := strconv.ParseFloat(r.FormValue(field), 64)
	if err != nil {
		return 0
	}
	return v
}

func queryInt(r *http.Request, field string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(field))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
