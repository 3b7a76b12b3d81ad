package types

import (
	"time"
)

// TaskKind identifies the inference pipeline a task requires.
type TaskKind string

const (
	TaskKindTranscription      TaskKind = "transcription"
	TaskKindTTS                TaskKind = "tts"
	TaskKindSummarization      TaskKind = "summarization"
	TaskKindTextTranslation    TaskKind = "text_translation"
	TaskKindDocTranslation     TaskKind = "document_translation"
	TaskKindVideoTranscription TaskKind = "video_transcription"
)

// ValidTaskKind reports whether k is a known task kind.
func ValidTaskKind(k TaskKind) bool {
	switch k {
	case TaskKindTranscription, TaskKindTTS, TaskKindSummarization,
		TaskKindTextTranslation, TaskKindDocTranslation, TaskKindVideoTranscription:
		return true
	default:
		return false
	}
}

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusAssigned   TaskStatus = "assigned"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions
// (Failed may still be redistributed, so it is not terminal).
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusCancelled
}

// TaskPriority orders tasks for distribution.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityNormal TaskPriority = "normal"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

// Rank maps a priority to a sortable integer; higher is more urgent.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	case PriorityLow:
		return 0
	default:
		return 1
	}
}

// ValidPriority reports whether p is a known priority level.
func ValidPriority(p TaskPriority) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// AssignmentStatus tracks the state of a single worker assignment.
type AssignmentStatus string

const (
	AssignmentPending   AssignmentStatus = "pending"
	AssignmentResponded AssignmentStatus = "responded"
	AssignmentFailed    AssignmentStatus = "failed"

	// AssignmentExpired marks assignees whose task moved on (completed or
	// cancelled) before they responded. A late response is still accepted
	// while the task allows it.
	AssignmentExpired AssignmentStatus = "expired"
)

// InputRef points at a task's input: either inline text or a blob.
// Exactly one of Text or BlobID is set.
type InputRef struct {
	Text   string `json:"text,omitempty"`
	BlobID string `json:"blob_id,omitempty"`
}

// Inline reports whether the input is carried inline rather than in a blob.
func (r InputRef) Inline() bool { return r.BlobID == "" }

// Assignment records a single (task, worker) pairing.
type Assignment struct {
	AssignmentID string           `json:"assignment_id"`
	WorkerID     string           `json:"worker_id"`
	AssignedAt   time.Time        `json:"assigned_at"`
	Status       AssignmentStatus `json:"status"`
}

// WorkerResponse is one worker's submitted result for a task.
type WorkerResponse struct {
	WorkerID       string    `json:"worker_id"`
	OutputRef      OutputRef `json:"output_ref"`
	ProcessingTime float64   `json:"processing_time"`
	Accuracy       float64   `json:"accuracy"` // self-reported
	Speed          float64   `json:"speed"`    // self-reported
	SubmittedAt    time.Time `json:"submitted_at"`
}

// OutputRef carries a worker's output fields. Text-producing kinds fill the
// named fields; binary outputs (TTS audio) go through a blob.
type OutputRef struct {
	Transcript string `json:"transcript,omitempty"`
	Summary    string `json:"summary,omitempty"`
	Translated string `json:"translated_text,omitempty"`
	AudioBlob  string `json:"audio_blob_id,omitempty"`
	Broken     bool   `json:"broken_file,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Task is the central work record owned by the coordinator.
type Task struct {
	TaskID   string       `json:"task_id"`
	Kind     TaskKind     `json:"task_type"`
	Status   TaskStatus   `json:"status"`
	Priority TaskPriority `json:"priority"`

	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language,omitempty"`

	Input InputRef `json:"input"`

	RequiredWorkerCount int `json:"required_worker_count"`
	MinWorkerCount      int `json:"min_worker_count"`
	MaxWorkerCount      int `json:"max_worker_count"`

	AssignedWorkers []string         `json:"assigned_workers"`
	Assignments     []Assignment     `json:"assignments"`
	WorkerResponses []WorkerResponse `json:"worker_responses"`

	RetryCount int    `json:"retry_count"`
	FailReason string `json:"fail_reason,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	DistributedAt *time.Time `json:"distributed_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasWorker reports whether workerID is in the task's assigned set.
func (t *Task) HasWorker(workerID string) bool {
	for _, w := range t.AssignedWorkers {
		if w == workerID {
			return true
		}
	}
	return false
}

// ResponseFrom returns the stored response from workerID, if any.
func (t *Task) ResponseFrom(workerID string) (WorkerResponse, bool) {
	for _, r := range t.WorkerResponses {
		if r.WorkerID == workerID {
			return r, true
		}
	}
	return WorkerResponse{}, false
}

// SpecializationStats summarizes a worker's history with one task kind.
type SpecializationStats struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	AvgTime     float64 `json:"avg_time"`
	SuccessRate float64 `json:"success_rate"`
}

// WorkerInfo is a worker record as held by the registry or reported by an
// auditor. Fields may be partially populated in auditor reports; report
// confidence accounts for missing fields.
type WorkerInfo struct {
	WorkerID string  `json:"worker_id"`
	Hotkey   string  `json:"hotkey"`
	Stake    float64 `json:"stake"`

	IsServing   bool `json:"is_serving"`
	CurrentLoad int  `json:"current_load"`
	MaxCapacity int  `json:"max_capacity"`

	PerformanceScore float64                          `json:"performance_score"`
	Specialization   map[TaskKind]SpecializationStats `json:"task_type_specialization,omitempty"`

	LastSeen time.Time `json:"last_seen"`
}

// Available reports whether the worker can accept another task.
func (w *WorkerInfo) Available() bool {
	return w.IsServing && w.CurrentLoad < w.MaxCapacity
}

// Handles reports whether the worker advertises experience with kind.
func (w *WorkerInfo) Handles(kind TaskKind) bool {
	if w.Specialization == nil {
		return false
	}
	_, ok := w.Specialization[kind]
	return ok
}

// ReportedStatus is a worker snapshot as observed by a single auditor.
// Pointer fields distinguish "not observed" from zero values; report
// confidence and field reconciliation both depend on that distinction.
type ReportedStatus struct {
	WorkerID string `json:"worker_id"`

	Hotkey    *string  `json:"hotkey,omitempty"`
	Stake     *float64 `json:"stake,omitempty"`
	IsServing *bool    `json:"is_serving,omitempty"`

	CurrentLoad      *int     `json:"current_load,omitempty"`
	MaxCapacity      *int     `json:"max_capacity,omitempty"`
	PerformanceScore *float64 `json:"performance_score,omitempty"`

	Specialization map[TaskKind]SpecializationStats `json:"task_type_specialization,omitempty"`
	LastSeen       *time.Time                       `json:"last_seen,omitempty"`
}

// Report converts a full worker record into a fully populated status report.
func (w *WorkerInfo) Report() ReportedStatus {
	hotkey, stake, serving := w.Hotkey, w.Stake, w.IsServing
	load, capacity, score := w.CurrentLoad, w.MaxCapacity, w.PerformanceScore
	r := ReportedStatus{
		WorkerID:         w.WorkerID,
		Hotkey:           &hotkey,
		Stake:            &stake,
		IsServing:        &serving,
		CurrentLoad:      &load,
		MaxCapacity:      &capacity,
		PerformanceScore: &score,
		Specialization:   w.Specialization,
	}
	if !w.LastSeen.IsZero() {
		seen := w.LastSeen
		r.LastSeen = &seen
	}
	return r
}

// AuditorReport is one auditor's observation of one worker.
type AuditorReport struct {
	AuditorID  string         `json:"auditor_id"`
	WorkerID   string         `json:"worker_id"`
	Epoch      uint64         `json:"epoch"`
	Timestamp  time.Time      `json:"timestamp"`
	Status     ReportedStatus `json:"reported_status"`
	Confidence float64        `json:"confidence"`
}

// FieldConflict records a consensus disagreement on a single field.
type FieldConflict struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ConsensusRecord is the reconciled view of a single worker built from
// reports by independent auditors.
type ConsensusRecord struct {
	WorkerID             string          `json:"worker_id"`
	Status               WorkerInfo      `json:"consensus_status"`
	Confidence           float64         `json:"consensus_confidence"`
	ContributingAuditors []string        `json:"contributing_auditors"`
	LastConsensusAt      time.Time       `json:"last_consensus_at"`
	Conflicts            []FieldConflict `json:"detected_conflicts,omitempty"`
}

// WorkerScore is one worker's scored performance on one audited task.
type WorkerScore struct {
	Accuracy float64 `json:"accuracy"`
	Speed    float64 `json:"speed"`
	Quality  float64 `json:"quality"`
	Combined float64 `json:"combined"`
	Final    float64 `json:"final"` // combined scaled to [0,500]
}

// AuditEvaluation records one auditor's scoring of one completed task.
// At most one evaluation exists per (task, auditor) pair.
type AuditEvaluation struct {
	TaskID      string                 `json:"task_id"`
	AuditorID   string                 `json:"auditor_id"`
	EvaluatedAt time.Time              `json:"evaluated_at"`
	Scores      map[string]WorkerScore `json:"worker_scores"` // keyed by worker ID
}

// BlobInfo describes a stored blob.
type BlobInfo struct {
	BlobID      string    `json:"blob_id"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
