package storage

import (
	"errors"
	"time"

	"github.com/chorusnet/chorus/pkg/types"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when a unique constraint would be violated.
	ErrDuplicate = errors.New("record already exists")
)

// Store defines the interface for coordinator state storage.
type Store interface {
	// Tasks
	CreateTask(task *types.Task) error
	GetTask(id string) (*types.Task, error)
	UpdateTask(task *types.Task) error
	ListTasksByStatus(status types.TaskStatus, limit int) ([]*types.Task, error)
	// ListPendingTasks returns Pending tasks ordered by priority descending,
	// then created_at ascending.
	ListPendingTasks(limit int) ([]*types.Task, error)
	// ListAssignedBefore returns Assigned tasks whose last update is older
	// than cutoff. Used by the janitor to fail stuck assignments.
	ListAssignedBefore(cutoff time.Time) ([]*types.Task, error)
	ListFailedTasks(limit int) ([]*types.Task, error)
	CountTasksByStatus() (map[types.TaskStatus]int, error)

	// Worker status
	UpsertWorker(w *types.WorkerInfo) error
	GetWorker(id string) (*types.WorkerInfo, error)
	ListWorkers() ([]*types.WorkerInfo, error)

	// Auditor reports. Saving replaces any earlier report from the same
	// auditor for the same worker.
	SaveAuditorReport(r *types.AuditorReport) error
	ListReportsSince(workerID string, since time.Time) ([]*types.AuditorReport, error)
	PruneReportsBefore(cutoff time.Time) (int, error)

	// Consensus
	SaveConsensus(rec *types.ConsensusRecord) error
	GetConsensus(workerID string) (*types.ConsensusRecord, error)
	ListConsensus() ([]*types.ConsensusRecord, error)

	// Audit evaluations. SaveEvaluation is idempotent per (task, auditor):
	// a second save for the same pair returns ErrDuplicate without writing.
	SaveEvaluation(ev *types.AuditEvaluation) error
	GetEvaluation(taskID, auditorID string) (*types.AuditEvaluation, error)
	ListAuditedTaskIDs(auditorID string) ([]string, error)
	CountEvaluations(taskID string) (int, error)

	// Utility
	Close() error
}
