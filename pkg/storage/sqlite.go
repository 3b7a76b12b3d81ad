package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/chorusnet/chorus/pkg/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const timeLayout = time.RFC3339Nano

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the coordinator database under
// dataDir and applies pending migrations.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "chorus.db")

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; let database/sql serialize access.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := msqlite.WithInstance(db, &msqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to init migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for the migration CLI.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

// --- Tasks ---

const taskColumns = `task_id, task_type, status, priority, source_language, target_language,
	input_text, input_blob_id, required_worker_count, min_worker_count, max_worker_count,
	assigned_workers, assignments, worker_responses, retry_count, fail_reason,
	created_at, distributed_at, completed_at, updated_at`

func (s *SQLiteStore) CreateTask(task *types.Task) error {
	_, err := s.db.Exec(`INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.TaskID, string(task.Kind), string(task.Status), string(task.Priority),
		task.SourceLanguage, task.TargetLanguage,
		task.Input.Text, task.Input.BlobID,
		task.RequiredWorkerCount, task.MinWorkerCount, task.MaxWorkerCount,
		marshalJSON(task.AssignedWorkers), marshalJSON(task.Assignments), marshalJSON(task.WorkerResponses),
		task.RetryCount, task.FailReason,
		fmtTime(task.CreatedAt), fmtTimePtr(task.DistributedAt), fmtTimePtr(task.CompletedAt), fmtTime(task.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("task %s: %w", task.TaskID, ErrDuplicate)
		}
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

func scanTask(scanner interface{ Scan(...any) error }) (*types.Task, error) {
	var (
		task                            types.Task
		kind, status, priority          string
		createdAt, updatedAt            string
		distributedAt, completedAt      sql.NullString
		workers, assignments, responses string
	)
	err := scanner.Scan(
		&task.TaskID, &kind, &status, &priority,
		&task.SourceLanguage, &task.TargetLanguage,
		&task.Input.Text, &task.Input.BlobID,
		&task.RequiredWorkerCount, &task.MinWorkerCount, &task.MaxWorkerCount,
		&workers, &assignments, &responses,
		&task.RetryCount, &task.FailReason,
		&createdAt, &distributedAt, &completedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	task.Kind = types.TaskKind(kind)
	task.Status = types.TaskStatus(status)
	task.Priority = types.TaskPriority(priority)
	task.CreatedAt = parseTime(createdAt)
	task.UpdatedAt = parseTime(updatedAt)
	task.DistributedAt = parseTimePtr(distributedAt)
	task.CompletedAt = parseTimePtr(completedAt)
	if err := json.Unmarshal([]byte(workers), &task.AssignedWorkers); err != nil {
		return nil, fmt.Errorf("corrupt assigned_workers for task %s: %w", task.TaskID, err)
	}
	if err := json.Unmarshal([]byte(assignments), &task.Assignments); err != nil {
		return nil, fmt.Errorf("corrupt assignments for task %s: %w", task.TaskID, err)
	}
	if err := json.Unmarshal([]byte(responses), &task.WorkerResponses); err != nil {
		return nil, fmt.Errorf("corrupt worker_responses for task %s: %w", task.TaskID, err)
	}
	return &task, nil
}

func (s *SQLiteStore) GetTask(id string) (*types.Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE task_id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

func (s *SQLiteStore) UpdateTask(task *types.Task) error {
	res, err := s.db.Exec(`UPDATE tasks SET
		status = ?, priority = ?,
		assigned_workers = ?, assignments = ?, worker_responses = ?,
		retry_count = ?, fail_reason = ?,
		distributed_at = ?, completed_at = ?, updated_at = ?
		WHERE task_id = ?`,
		string(task.Status), string(task.Priority),
		marshalJSON(task.AssignedWorkers), marshalJSON(task.Assignments), marshalJSON(task.WorkerResponses),
		task.RetryCount, task.FailReason,
		fmtTimePtr(task.DistributedAt), fmtTimePtr(task.CompletedAt), fmtTime(task.UpdatedAt),
		task.TaskID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("task %s: %w", task.TaskID, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) queryTasks(query string, args ...any) ([]*types.Task, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (s *SQLiteStore) ListTasksByStatus(status types.TaskStatus, limit int) ([]*types.Task, error) {
	return s.queryTasks(`SELECT `+taskColumns+` FROM tasks WHERE status = ?
		ORDER BY created_at ASC LIMIT ?`, string(status), limit)
}

func (s *SQLiteStore) ListPendingTasks(limit int) ([]*types.Task, error) {
	// Priority is stored as a label; rank it in SQL so ordering matches
	// TaskPriority.Rank.
	return s.queryTasks(`SELECT `+taskColumns+` FROM tasks WHERE status = ?
		ORDER BY CASE priority
			WHEN 'urgent' THEN 3 WHEN 'high' THEN 2 WHEN 'normal' THEN 1 ELSE 0
		END DESC, created_at ASC LIMIT ?`, string(types.TaskStatusPending), limit)
}

func (s *SQLiteStore) ListAssignedBefore(cutoff time.Time) ([]*types.Task, error) {
	return s.queryTasks(`SELECT `+taskColumns+` FROM tasks WHERE status = ? AND updated_at < ?
		ORDER BY updated_at ASC`, string(types.TaskStatusAssigned), fmtTime(cutoff))
}

func (s *SQLiteStore) ListFailedTasks(limit int) ([]*types.Task, error) {
	return s.queryTasks(`SELECT `+taskColumns+` FROM tasks WHERE status = ?
		ORDER BY updated_at ASC LIMIT ?`, string(types.TaskStatusFailed), limit)
}

func (s *SQLiteStore) CountTasksByStatus() (map[types.TaskStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.TaskStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan task count: %w", err)
		}
		counts[types.TaskStatus(status)] = n
	}
	return counts, rows.Err()
}

// --- Worker status ---

func (s *SQLiteStore) UpsertWorker(w *types.WorkerInfo) error {
	now := fmtTime(time.Now())
	_, err := s.db.Exec(`INSERT INTO worker_status
		(worker_id, hotkey, stake, is_serving, current_load, max_capacity,
		 performance_score, specialization, last_seen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_id) DO UPDATE SET
			hotkey = excluded.hotkey, stake = excluded.stake,
			is_serving = excluded.is_serving, current_load = excluded.current_load,
			max_capacity = excluded.max_capacity, performance_score = excluded.performance_score,
			specialization = excluded.specialization, last_seen = excluded.last_seen,
			updated_at = excluded.updated_at`,
		w.WorkerID, w.Hotkey, w.Stake, boolToInt(w.IsServing), w.CurrentLoad, w.MaxCapacity,
		w.PerformanceScore, marshalJSON(w.Specialization), fmtTime(w.LastSeen), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert worker: %w", err)
	}
	return nil
}

func scanWorker(scanner interface{ Scan(...any) error }) (*types.WorkerInfo, error) {
	var (
		w              types.WorkerInfo
		serving        int
		specialization string
		lastSeen       sql.NullString
	)
	err := scanner.Scan(&w.WorkerID, &w.Hotkey, &w.Stake, &serving, &w.CurrentLoad,
		&w.MaxCapacity, &w.PerformanceScore, &specialization, &lastSeen)
	if err != nil {
		return nil, err
	}
	w.IsServing = serving != 0
	if lastSeen.Valid {
		w.LastSeen = parseTime(lastSeen.String)
	}
	if err := json.Unmarshal([]byte(specialization), &w.Specialization); err != nil {
		return nil, fmt.Errorf("corrupt specialization for worker %s: %w", w.WorkerID, err)
	}
	return &w, nil
}

const workerColumns = `worker_id, hotkey, stake, is_serving, current_load, max_capacity,
	performance_score, specialization, last_seen`

func (s *SQLiteStore) GetWorker(id string) (*types.WorkerInfo, error) {
	row := s.db.QueryRow(`SELECT `+workerColumns+` FROM worker_status WHERE worker_id = ?`, id)
	w, err := scanWorker(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("worker %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get worker: %w", err)
	}
	return w, nil
}

func (s *SQLiteStore) ListWorkers() ([]*types.WorkerInfo, error) {
	rows, err := s.db.Query(`SELECT ` + workerColumns + ` FROM worker_status ORDER BY worker_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	defer rows.Close()

	var workers []*types.WorkerInfo
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker: %w", err)
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

// --- Auditor reports ---

func (s *SQLiteStore) SaveAuditorReport(r *types.AuditorReport) error {
	now := fmtTime(time.Now())
	_, err := s.db.Exec(`INSERT INTO auditor_reports
		(auditor_id, worker_id, epoch, reported_at, worker_status, confidence, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(auditor_id, worker_id) DO UPDATE SET
			epoch = excluded.epoch, reported_at = excluded.reported_at,
			worker_status = excluded.worker_status, confidence = excluded.confidence,
			updated_at = excluded.updated_at`,
		r.AuditorID, r.WorkerID, r.Epoch, fmtTime(r.Timestamp),
		marshalJSON(r.Status), r.Confidence, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save auditor report: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListReportsSince(workerID string, since time.Time) ([]*types.AuditorReport, error) {
	rows, err := s.db.Query(`SELECT auditor_id, worker_id, epoch, reported_at, worker_status, confidence
		FROM auditor_reports WHERE worker_id = ? AND reported_at >= ?
		ORDER BY reported_at ASC`, workerID, fmtTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []*types.AuditorReport
	for rows.Next() {
		var (
			r          types.AuditorReport
			reportedAt string
			status     string
		)
		if err := rows.Scan(&r.AuditorID, &r.WorkerID, &r.Epoch, &reportedAt, &status, &r.Confidence); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		r.Timestamp = parseTime(reportedAt)
		if err := json.Unmarshal([]byte(status), &r.Status); err != nil {
			return nil, fmt.Errorf("corrupt worker_status in report from %s: %w", r.AuditorID, err)
		}
		reports = append(reports, &r)
	}
	return reports, rows.Err()
}

func (s *SQLiteStore) PruneReportsBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM auditor_reports WHERE reported_at < ?`, fmtTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune reports: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// --- Consensus ---

func (s *SQLiteStore) SaveConsensus(rec *types.ConsensusRecord) error {
	now := fmtTime(time.Now())
	_, err := s.db.Exec(`INSERT INTO worker_consensus
		(worker_id, consensus_status, consensus_confidence, contributing_auditors,
		 detected_conflicts, last_consensus_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_id) DO UPDATE SET
			consensus_status = excluded.consensus_status,
			consensus_confidence = excluded.consensus_confidence,
			contributing_auditors = excluded.contributing_auditors,
			detected_conflicts = excluded.detected_conflicts,
			last_consensus_at = excluded.last_consensus_at,
			updated_at = excluded.updated_at`,
		rec.WorkerID, marshalJSON(rec.Status), rec.Confidence,
		marshalJSON(rec.ContributingAuditors), marshalJSON(rec.Conflicts),
		fmtTime(rec.LastConsensusAt), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save consensus: %w", err)
	}
	return nil
}

func scanConsensus(scanner interface{ Scan(...any) error }) (*types.ConsensusRecord, error) {
	var (
		rec                 types.ConsensusRecord
		status              string
		auditors, conflicts string
		lastAt              string
	)
	err := scanner.Scan(&rec.WorkerID, &status, &rec.Confidence, &auditors, &conflicts, &lastAt)
	if err != nil {
		return nil, err
	}
	rec.LastConsensusAt = parseTime(lastAt)
	if err := json.Unmarshal([]byte(status), &rec.Status); err != nil {
		return nil, fmt.Errorf("corrupt consensus_status for %s: %w", rec.WorkerID, err)
	}
	if err := json.Unmarshal([]byte(auditors), &rec.ContributingAuditors); err != nil {
		return nil, fmt.Errorf("corrupt contributing_auditors for %s: %w", rec.WorkerID, err)
	}
	if err := json.Unmarshal([]byte(conflicts), &rec.Conflicts); err != nil {
		return nil, fmt.Errorf("corrupt detected_conflicts for %s: %w", rec.WorkerID, err)
	}
	return &rec, nil
}

const consensusColumns = `worker_id, consensus_status, consensus_confidence,
	contributing_auditors, detected_conflicts, last_consensus_at`

func (s *SQLiteStore) GetConsensus(workerID string) (*types.ConsensusRecord, error) {
	row := s.db.QueryRow(`SELECT `+consensusColumns+` FROM worker_consensus WHERE worker_id = ?`, workerID)
	rec, err := scanConsensus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consensus for %s: %w", workerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consensus: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListConsensus() ([]*types.ConsensusRecord, error) {
	rows, err := s.db.Query(`SELECT ` + consensusColumns + ` FROM worker_consensus ORDER BY worker_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list consensus: %w", err)
	}
	defer rows.Close()

	var records []*types.ConsensusRecord
	for rows.Next() {
		rec, err := scanConsensus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consensus: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// --- Audit evaluations ---

func (s *SQLiteStore) SaveEvaluation(ev *types.AuditEvaluation) error {
	now := fmtTime(time.Now())
	// INSERT OR IGNORE keeps the first evaluation authoritative; re-audits
	// from the same auditor must not overwrite or double-count.
	res, err := s.db.Exec(`INSERT OR IGNORE INTO audit_evaluations
		(task_id, auditor_id, evaluated_at, worker_scores, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.TaskID, ev.AuditorID, fmtTime(ev.EvaluatedAt), marshalJSON(ev.Scores), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save evaluation: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("evaluation for task %s by %s: %w", ev.TaskID, ev.AuditorID, ErrDuplicate)
	}
	return nil
}

func (s *SQLiteStore) GetEvaluation(taskID, auditorID string) (*types.AuditEvaluation, error) {
	var (
		ev          types.AuditEvaluation
		evaluatedAt string
		scores      string
	)
	err := s.db.QueryRow(`SELECT task_id, auditor_id, evaluated_at, worker_scores
		FROM audit_evaluations WHERE task_id = ? AND auditor_id = ?`, taskID, auditorID).
		Scan(&ev.TaskID, &ev.AuditorID, &evaluatedAt, &scores)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("evaluation for task %s by %s: %w", taskID, auditorID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluation: %w", err)
	}
	ev.EvaluatedAt = parseTime(evaluatedAt)
	if err := json.Unmarshal([]byte(scores), &ev.Scores); err != nil {
		return nil, fmt.Errorf("corrupt worker_scores for task %s: %w", taskID, err)
	}
	return &ev, nil
}

func (s *SQLiteStore) ListAuditedTaskIDs(auditorID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT task_id FROM audit_evaluations WHERE auditor_id = ?`, auditorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audited tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) CountEvaluations(taskID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM audit_evaluations WHERE task_id = ?`, taskID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count evaluations: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
