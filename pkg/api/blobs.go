package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/chorusnet/chorus/pkg/metrics"
)

// handlePutBlob stores the request body as a new blob.
func (s *Server) handlePutBlob(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read body"})
		return
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty blob"})
		return
	}

	blobID, err := s.coord.Blobs().Put(data, r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"blob_id": blobID})
}

func (s *Server) handleGetBlob(w http.ResponseWriter, r *http.Request) {
	data, info, err := s.coord.Blobs().Fetch(chi.URLParam(r, "blobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleHeadBlob(w http.ResponseWriter, r *http.Request) {
	info, err := s.coord.Blobs().Stat(chi.URLParam(r, "blobID"))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	w.WriteHeader(http.StatusOK)
}

// handleHealth reports liveness with per-component detail.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := metrics.GetHealth()
	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// handleReady reports readiness of the critical components.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := metrics.GetReadiness()
	status := http.StatusOK
	if ready.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, ready)
}
