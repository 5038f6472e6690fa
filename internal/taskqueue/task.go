package taskqueue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"phase-viewer/internal/raster"
)

// TaskStatus represents the current status of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Finished reports whether the status is terminal
func (s TaskStatus) Finished() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// TaskProgress represents detailed progress information
type TaskProgress struct {
	CurrentPhase string `json:"currentPhase"` // "encoding", "storing"
	Percent      int    `json:"percent"`
}

// RegionInfo records the export region
type RegionInfo struct {
	CenterLon    float64 `json:"centerLon"`
	CenterLat    float64 `json:"centerLat"`
	RadiusMeters float64 `json:"radiusMeters"`
}

// ExportTask represents a single accepted export job
type ExportTask struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Date        string     `json:"date"`
	Status      TaskStatus `json:"status"`
	CreatedAt   string     `json:"createdAt"` // RFC 3339
	StartedAt   string     `json:"startedAt,omitempty"`
	CompletedAt string     `json:"completedAt,omitempty"`

	// Export settings
	Scale     float64           `json:"scale"`
	MaxPixels int64             `json:"maxPixels"`
	Region    RegionInfo        `json:"region"`
	Image     *raster.BandImage `json:"image"`

	// Progress tracking
	Progress TaskProgress `json:"progress"`

	// Error message if failed
	Error string `json:"error,omitempty"`

	// Output locations for completed exports
	OutputPath string   `json:"outputPath,omitempty"`
	Outputs    []string `json:"outputs,omitempty"`
}

// NewExportTask creates a pending task
func NewExportTask(name, date string, img *raster.BandImage, scale float64, maxPixels int64, region RegionInfo) *ExportTask {
	return &ExportTask{
		ID:        generateTaskID(),
		Name:      name,
		Date:      date,
		Status:    TaskStatusPending,
		CreatedAt: time.Now().Format(time.RFC3339),
		Scale:     scale,
		MaxPixels: maxPixels,
		Region:    region,
		Image:     img,
	}
}

// generateTaskID creates a unique task ID
func generateTaskID() string {
	return "task_" + uuid.NewString()
}

// SaveToFile persists the task to a JSON file
func (t *ExportTask) SaveToFile(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create task directory: %w", err)
	}

	path := filepath.Join(dir, t.ID+".json")
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write task file: %w", err)
	}

	return nil
}

// LoadFromFile loads a task from a JSON file
func LoadFromFile(path string) (*ExportTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	var task ExportTask
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}

	return &task, nil
}

// DeleteFile removes the task file from disk
func (t *ExportTask) DeleteFile(dir string) error {
	path := filepath.Join(dir, t.ID+".json")
	return os.Remove(path)
}

// UpdateProgress updates the task's progress
func (t *ExportTask) UpdateProgress(phase string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	t.Progress.CurrentPhase = phase
	t.Progress.Percent = percent
}

// MarkStarted marks the task as started
func (t *ExportTask) MarkStarted() {
	t.StartedAt = time.Now().Format(time.RFC3339)
	t.Status = TaskStatusRunning
}

// MarkCompleted marks the task as completed
func (t *ExportTask) MarkCompleted(outputs []string) {
	t.CompletedAt = time.Now().Format(time.RFC3339)
	t.Status = TaskStatusCompleted
	t.Outputs = outputs
	if len(outputs) > 0 {
		t.OutputPath = outputs[0]
	}
	t.Progress.Percent = 100
}

// MarkFailed marks the task as failed with an error
func (t *ExportTask) MarkFailed(err error) {
	t.CompletedAt = time.Now().Format(time.RFC3339)
	t.Status = TaskStatusFailed
	if err != nil {
		t.Error = err.Error()
	}
}

// MarkCancelled marks the task as cancelled
func (t *ExportTask) MarkCancelled() {
	t.CompletedAt = time.Now().Format(time.RFC3339)
	t.Status = TaskStatusCancelled
}

// clone returns a copy safe to hand to callers
func (t *ExportTask) clone() *ExportTask {
	c := *t
	c.Outputs = append([]string(nil), t.Outputs...)
	return &c
}
