// Package client is the HTTP client for the coordinator API, used by the
// worker and auditor processes.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chorusnet/chorus/pkg/types"
)

const (
	// DefaultTimeout covers registry and status calls.
	DefaultTimeout = 10 * time.Second

	// BlobTimeout covers blob transfers, which may carry large audio or
	// document payloads.
	BlobTimeout = 30 * time.Second
)

// Client talks to one coordinator.
type Client struct {
	baseURL string
	http    *http.Client
	blobs   *http.Client
}

// New creates a client for the coordinator at baseURL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: DefaultTimeout},
		blobs:   &http.Client{Timeout: BlobTimeout},
	}
}

// apiError is the coordinator's JSON error body.
type apiError struct {
	Error string `json:"error"`
}

func (c *Client) url(path string) string {
	return c.baseURL + path
}

// doJSON issues a request with an optional JSON body and decodes the JSON
// response into out (when non-nil). Non-2xx statuses become errors carrying
// the server's message.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var ae apiError
		if json.NewDecoder(resp.Body).Decode(&ae) == nil && ae.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, ae.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// RegisterWorker self-registers a worker with the coordinator.
func (c *Client) RegisterWorker(ctx context.Context, info *types.WorkerInfo) error {
	return c.doJSON(ctx, http.MethodPost, "/workers/register", info, nil)
}

// TasksForWorker pulls the worker's unanswered assignments.
func (c *Client) TasksForWorker(ctx context.Context, workerID string) ([]*types.Task, error) {
	var out struct {
		Tasks []*types.Task `json:"tasks"`
	}
	path := fmt.Sprintf("/workers/%s/tasks?status=assigned", workerID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// SubmitResponse posts one worker response.
func (c *Client) SubmitResponse(ctx context.Context, taskID, workerID string, output types.OutputRef, processingTime, accuracy, speed float64) error {
	body := map[string]any{
		"task_id":         taskID,
		"worker_id":       workerID,
		"transcript":      output.Transcript,
		"summary":         output.Summary,
		"translated_text": output.Translated,
		"audio_blob_id":   output.AudioBlob,
		"broken_file":     output.Broken,
		"error":           output.Error,
		"processing_time": processingTime,
		"accuracy":        accuracy,
		"speed":           speed,
	}
	return c.doJSON(ctx, http.MethodPost, "/workers/response", body, nil)
}

// GetTask fetches a task snapshot.
func (c *Client) GetTask(ctx context.Context, taskID string) (map[string]any, error) {
	var out map[string]any
	if err := c.doJSON(ctx, http.MethodGet, "/tasks/"+taskID, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CompletedTasks lists tasks awaiting audit.
func (c *Client) CompletedTasks(ctx context.Context, limit int) ([]*types.Task, error) {
	var out struct {
		Tasks []*types.Task `json:"tasks"`
	}
	path := fmt.Sprintf("/tasks/completed?limit=%d", limit)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// ReportWorkerStatus submits one auditor's worker-status batch.
func (c *Client) ReportWorkerStatus(ctx context.Context, auditorID string, statuses []types.ReportedStatus, epoch uint64) error {
	body := map[string]any{
		"auditor_id":    auditorID,
		"worker_status": statuses,
		"epoch":         epoch,
	}
	return c.doJSON(ctx, http.MethodPost, "/auditors/worker-status", body, nil)
}

// AuditedTasks fetches the auditor's server-side dedup set.
func (c *Client) AuditedTasks(ctx context.Context, auditorID string) ([]string, error) {
	var out struct {
		TaskIDs []string `json:"task_ids"`
	}
	path := fmt.Sprintf("/auditors/%s/audited_tasks", auditorID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.TaskIDs, nil
}

// SubmitEvaluation records one audit evaluation.
func (c *Client) SubmitEvaluation(ctx context.Context, taskID, auditorID string, scores map[string]types.WorkerScore) error {
	body := map[string]any{
		"task_id":       taskID,
		"auditor_id":    auditorID,
		"worker_scores": scores,
	}
	return c.doJSON(ctx, http.MethodPost, "/auditors/evaluation", body, nil)
}

// RegisteredWorkers fetches the coordinator's raw registry snapshot.
func (c *Client) RegisteredWorkers(ctx context.Context) ([]*types.WorkerInfo, error) {
	var out struct {
		Workers []*types.WorkerInfo `json:"workers"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/workers/registered", nil, &out); err != nil {
		return nil, err
	}
	return out.Workers, nil
}

// WorkersStatus fetches one page of the consensus view.
func (c *Client) WorkersStatus(ctx context.Context, page, pageSize int) ([]*types.ConsensusRecord, error) {
	var out struct {
		Workers []*types.ConsensusRecord `json:"workers"`
	}
	path := fmt.Sprintf("/workers/status?page=%d&page_size=%d", page, pageSize)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Workers, nil
}

// PutBlob uploads a blob and returns its ID.
func (c *Client) PutBlob(ctx context.Context, data []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url("/blobs/"), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.blobs.Do(req)
	if err != nil {
		return "", fmt.Errorf("blob upload failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("blob upload: status %d", resp.StatusCode)
	}

	var out struct {
		BlobID string `json:"blob_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	return out.BlobID, nil
}

// GetBlob downloads a blob's content.
func (c *Client) GetBlob(ctx context.Context, blobID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/blobs/"+blobID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.blobs.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blob download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("blob %s: status %d", blobID, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// UploadTTSAudio stores synthesized audio through the TTS upload route.
func (c *Client) UploadTTSAudio(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/workers/tts/upload-audio"), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := c.blobs.Do(req)
	if err != nil {
		return "", fmt.Errorf("audio upload failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("audio upload: status %d", resp.StatusCode)
	}

	var out struct {
		BlobID string `json:"blob_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	return out.BlobID, nil
}
