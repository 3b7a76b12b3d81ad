package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chorusnet/chorus/pkg/coordinator"
	"github.com/chorusnet/chorus/pkg/log"
	"github.com/chorusnet/chorus/pkg/metrics"
)

// Server serves the coordinator HTTP API.
type Server struct {
	coord  *coordinator.Coordinator
	router chi.Router
	http   *http.Server
}

// NewServer creates an API server over the given coordinator.
func NewServer(coord *coordinator.Coordinator) *Server {
	s := &Server{coord: coord}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Use(requestMetrics)

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/{kind}", s.handleSubmitTask)
		r.Get("/completed", s.handleCompletedTasks)
		r.Get("/{taskID}", s.handleGetTask)
		r.Post("/{taskID}/cancel", s.handleCancelTask)
	})

	r.Route("/workers", func(r chi.Router) {
		r.Post("/register", s.handleRegisterWorker)
		r.Get("/registered", s.handleRegisteredWorkers)
		r.Get("/status", s.handleWorkersStatus)
		r.Post("/response", s.handleWorkerResponse)
		r.Post("/tts/upload-audio", s.handleTTSUpload)
		r.Get("/{workerID}/tasks", s.handleWorkerTasks)
	})

	r.Route("/auditors", func(r chi.Router) {
		r.Post("/worker-status", s.handleWorkerStatusReport)
		r.Post("/evaluation", s.handleEvaluation)
		r.Get("/{auditorID}/audited_tasks", s.handleAuditedTasks)
	})

	r.Route("/blobs", func(r chi.Router) {
		r.Put("/", s.handlePutBlob)
		r.Get("/{blobID}", s.handleGetBlob)
		r.Head("/{blobID}", s.handleHeadBlob)
	})

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// Handler exposes the router, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving on addr and blocks until the listener fails or the
// server is stopped.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.WithComponent("api").Info().Str("addr", addr).Msg("HTTP API listening")
	metrics.UpdateComponent("api", true, "")

	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	metrics.UpdateComponent("api", false, "shutting down")
	return s.http.Shutdown(ctx)
}
