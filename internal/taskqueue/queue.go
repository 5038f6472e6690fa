package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"phase-viewer/internal/export"
)

var log = logrus.WithField("component", "taskqueue")

// QueueState represents the persistent queue state
type QueueState struct {
	TaskOrder []string `json:"taskOrder"` // Ordered list of task IDs
}

// QueueStatus represents the current queue status for events
type QueueStatus struct {
	IsRunning      bool     `json:"isRunning"`
	RunningTaskIDs []string `json:"runningTaskIDs"`
	TotalTasks     int      `json:"totalTasks"`
	CompletedTasks int      `json:"completedTasks"`
	FailedTasks    int      `json:"failedTasks"`
	PendingTasks   int      `json:"pendingTasks"`
}

// TaskExecutor runs one export task and returns the stored locations
type TaskExecutor interface {
	ExecuteExportTask(ctx context.Context, task *ExportTask, progressChan chan<- TaskProgress) ([]string, error)
}

// QueueManager manages the export task queue. It implements export.Submitter:
// Submit only persists and enqueues the job, workers run it later.
type QueueManager struct {
	tasks       map[string]*ExportTask
	taskOrder   []string // maintains queue order
	done        map[string]chan struct{}
	mu          sync.RWMutex
	storagePath string // ~/.walkthru-earth/phase-viewer/queue/

	// State
	isRunning     bool
	activeWorkers int
	running       map[string]context.CancelFunc

	// Executor
	executor  TaskExecutor
	autoStart bool

	// Event emission callback
	onQueueUpdate  func(status QueueStatus)
	onTaskProgress func(taskID string, progress TaskProgress)
	onTaskComplete func(task *ExportTask)

	// Concurrency
	maxConcurrent int
	workerWg      sync.WaitGroup
}

// NewQueueManager creates a new queue manager
func NewQueueManager(storagePath string, maxConcurrent int) *QueueManager {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if maxConcurrent > 5 {
		maxConcurrent = 5
	}

	qm := &QueueManager{
		tasks:         make(map[string]*ExportTask),
		taskOrder:     make([]string, 0),
		done:          make(map[string]chan struct{}),
		running:       make(map[string]context.CancelFunc),
		storagePath:   storagePath,
		maxConcurrent: maxConcurrent,
		autoStart:     true,
	}

	// Load persisted state
	if err := qm.loadState(); err != nil {
		log.WithError(err).Warn("failed to load queue state")
	}

	return qm
}

// SetExecutor sets the task executor
func (qm *QueueManager) SetExecutor(executor TaskExecutor) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	qm.executor = executor
}

// SetAutoStart controls whether Submit starts the workers
func (qm *QueueManager) SetAutoStart(enabled bool) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	qm.autoStart = enabled
}

// SetCallbacks sets event callbacks
func (qm *QueueManager) SetCallbacks(
	onQueueUpdate func(QueueStatus),
	onTaskProgress func(string, TaskProgress),
	onTaskComplete func(*ExportTask),
) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	qm.onQueueUpdate = onQueueUpdate
	qm.onTaskProgress = onTaskProgress
	qm.onTaskComplete = onTaskComplete
}

// getStoragePaths returns paths for queue storage
func (qm *QueueManager) getStoragePaths() (queueFile, tasksDir string) {
	queueFile = filepath.Join(qm.storagePath, "queue.json")
	tasksDir = filepath.Join(qm.storagePath, "tasks")
	return
}

// loadState loads the queue state from disk
func (qm *QueueManager) loadState() error {
	queueFile, tasksDir := qm.getStoragePaths()

	if data, err := os.ReadFile(queueFile); err == nil {
		var state QueueState
		if err := json.Unmarshal(data, &state); err == nil {
			qm.taskOrder = state.TaskOrder
		}
	}

	entries, err := os.ReadDir(tasksDir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read task directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		task, err := LoadFromFile(filepath.Join(tasksDir, entry.Name()))
		if err != nil {
			log.WithError(err).WithField("file", entry.Name()).Warn("failed to load task")
			continue
		}
		// A task that was running when the app exited starts over
		if task.Status == TaskStatusRunning {
			task.Status = TaskStatusPending
			task.StartedAt = ""
			task.Progress = TaskProgress{}
		}
		qm.tasks[task.ID] = task
		ch := make(chan struct{})
		if task.Status.Finished() {
			close(ch)
		}
		qm.done[task.ID] = ch
	}

	// Drop IDs without a task file, then append tasks missing from the order
	validOrder := make([]string, 0, len(qm.tasks))
	seen := make(map[string]bool, len(qm.tasks))
	for _, id := range qm.taskOrder {
		if _, exists := qm.tasks[id]; exists && !seen[id] {
			validOrder = append(validOrder, id)
			seen[id] = true
		}
	}
	for id := range qm.tasks {
		if !seen[id] {
			validOrder = append(validOrder, id)
		}
	}
	qm.taskOrder = validOrder

	log.WithField("tasks", len(qm.tasks)).Info("loaded tasks from disk")
	return nil
}

// saveState saves the queue state to disk. Callers hold mu.
func (qm *QueueManager) saveState() error {
	queueFile, _ := qm.getStoragePaths()

	if err := os.MkdirAll(filepath.Dir(queueFile), 0755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	data, err := json.MarshalIndent(QueueState{TaskOrder: qm.taskOrder}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal queue state: %w", err)
	}

	if err := os.WriteFile(queueFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write queue state: %w", err)
	}

	return nil
}

// saveTask saves a single task to disk. Callers hold mu.
func (qm *QueueManager) saveTask(task *ExportTask) {
	_, tasksDir := qm.getStoragePaths()
	if err := task.SaveToFile(tasksDir); err != nil {
		log.WithError(err).WithField("task", task.ID).Warn("failed to persist task")
	}
}

// Submit accepts an export job. Acceptance means the job is persisted and
// queued; completion is reported through the callbacks.
func (qm *QueueManager) Submit(ctx context.Context, job export.Job) (export.Acceptance, error) {
	if err := ctx.Err(); err != nil {
		return export.Acceptance{}, err
	}
	if job.Name == "" {
		return export.Acceptance{}, fmt.Errorf("export job has no name")
	}
	if job.Image == nil {
		return export.Acceptance{}, fmt.Errorf("export job %s has no image", job.Name)
	}

	center := job.Region.Center()
	task := NewExportTask(job.Name, job.Date, job.Image, job.Scale, job.MaxPixels, RegionInfo{
		CenterLon:    center.Lon(),
		CenterLat:    center.Lat(),
		RadiusMeters: job.Region.Radius(),
	})
	if err := qm.AddTask(task); err != nil {
		return export.Acceptance{}, err
	}

	qm.mu.RLock()
	autoStart := qm.autoStart
	qm.mu.RUnlock()
	if autoStart {
		qm.StartQueue()
	}

	return export.Acceptance{JobID: task.ID, Name: task.Name}, nil
}

// AddTask adds a new task to the queue
func (qm *QueueManager) AddTask(task *ExportTask) error {
	qm.mu.Lock()
	if task.ID == "" {
		task.ID = generateTaskID()
	}
	if _, exists := qm.tasks[task.ID]; exists {
		qm.mu.Unlock()
		return fmt.Errorf("task already queued: %s", task.ID)
	}

	_, tasksDir := qm.getStoragePaths()
	if err := task.SaveToFile(tasksDir); err != nil {
		qm.mu.Unlock()
		return err
	}
	qm.tasks[task.ID] = task
	qm.taskOrder = append(qm.taskOrder, task.ID)
	qm.done[task.ID] = make(chan struct{})
	err := qm.saveState()
	qm.mu.Unlock()

	qm.emitQueueUpdate()
	log.WithFields(logrus.Fields{"name": task.Name, "task": task.ID}).Info("added task")
	return err
}

// GetTask returns a copy of a task by ID
func (qm *QueueManager) GetTask(id string) (*ExportTask, error) {
	qm.mu.RLock()
	defer qm.mu.RUnlock()

	task, exists := qm.tasks[id]
	if !exists {
		return nil, fmt.Errorf("task not found: %s", id)
	}

	return task.clone(), nil
}

// GetAllTasks returns copies of all tasks in order
func (qm *QueueManager) GetAllTasks() []*ExportTask {
	qm.mu.RLock()
	defer qm.mu.RUnlock()

	result := make([]*ExportTask, 0, len(qm.taskOrder))
	for _, id := range qm.taskOrder {
		if task, exists := qm.tasks[id]; exists {
			result = append(result, task.clone())
		}
	}

	return result
}

// Wait blocks until the task finishes or ctx is done
func (qm *QueueManager) Wait(ctx context.Context, id string) (*ExportTask, error) {
	qm.mu.RLock()
	ch, exists := qm.done[id]
	qm.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("task not found: %s", id)
	}

	select {
	case <-ch:
		return qm.GetTask(id)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DeleteTask removes a finished or pending task from the queue
func (qm *QueueManager) DeleteTask(id string) error {
	qm.mu.Lock()
	task, exists := qm.tasks[id]
	if !exists {
		qm.mu.Unlock()
		return fmt.Errorf("task not found: %s", id)
	}
	if task.Status == TaskStatusRunning {
		qm.mu.Unlock()
		return fmt.Errorf("cannot delete running task - cancel it first")
	}

	qm.removeLocked(task)
	if err := qm.saveState(); err != nil {
		log.WithError(err).WithField("task", id).Warn("failed to persist queue state")
	}
	qm.mu.Unlock()

	qm.emitQueueUpdate()
	log.WithField("task", id).Info("deleted task")
	return nil
}

func (qm *QueueManager) removeLocked(task *ExportTask) {
	newOrder := make([]string, 0, len(qm.taskOrder))
	for _, id := range qm.taskOrder {
		if id != task.ID {
			newOrder = append(newOrder, id)
		}
	}
	qm.taskOrder = newOrder

	if ch, ok := qm.done[task.ID]; ok && !task.Status.Finished() {
		close(ch)
	}
	delete(qm.done, task.ID)
	delete(qm.tasks, task.ID)

	_, tasksDir := qm.getStoragePaths()
	if err := task.DeleteFile(tasksDir); err != nil && !os.IsNotExist(err) {
		log.WithError(err).WithField("task", task.ID).Warn("failed to delete task file")
	}
}

// CancelTask cancels a running or pending task
func (qm *QueueManager) CancelTask(id string) error {
	qm.mu.Lock()
	task, exists := qm.tasks[id]
	if !exists {
		qm.mu.Unlock()
		return fmt.Errorf("task not found: %s", id)
	}
	if task.Status.Finished() {
		qm.mu.Unlock()
		return fmt.Errorf("task already finished")
	}

	if cancel, ok := qm.running[id]; ok {
		// The worker marks the task once the executor returns
		cancel()
		qm.mu.Unlock()
		log.WithField("task", id).Info("cancelling running task")
		return nil
	}

	task.MarkCancelled()
	qm.saveTask(task)
	close(qm.done[id])
	qm.mu.Unlock()

	qm.emitQueueUpdate()
	log.WithField("task", id).Info("cancelled task")
	return nil
}

// StartQueue begins processing tasks. It is a no-op while workers run.
func (qm *QueueManager) StartQueue() {
	qm.mu.Lock()
	if qm.isRunning {
		qm.mu.Unlock()
		return
	}
	qm.isRunning = true

	workers := qm.maxConcurrent
	qm.activeWorkers += workers
	qm.workerWg.Add(workers)
	qm.mu.Unlock()

	for i := 0; i < workers; i++ {
		go qm.worker(i)
	}

	qm.emitQueueUpdate()
	log.WithField("workers", workers).Info("queue started")
}

// StopQueue stops the workers and cancels running tasks
func (qm *QueueManager) StopQueue() {
	qm.mu.Lock()
	qm.isRunning = false
	for _, cancel := range qm.running {
		cancel()
	}
	qm.mu.Unlock()

	qm.emitQueueUpdate()
	log.Info("queue stopped")
}

// GetStatus returns the current queue status
func (qm *QueueManager) GetStatus() QueueStatus {
	qm.mu.RLock()
	defer qm.mu.RUnlock()

	status := QueueStatus{
		IsRunning:      qm.isRunning,
		RunningTaskIDs: make([]string, 0, len(qm.running)),
		TotalTasks:     len(qm.tasks),
	}
	for _, id := range qm.taskOrder {
		task := qm.tasks[id]
		switch task.Status {
		case TaskStatusCompleted:
			status.CompletedTasks++
		case TaskStatusFailed:
			status.FailedTasks++
		case TaskStatusPending:
			status.PendingTasks++
		case TaskStatusRunning:
			status.RunningTaskIDs = append(status.RunningTaskIDs, id)
		}
	}
	return status
}

// nextPendingLocked claims the oldest pending task. Callers hold mu.
func (qm *QueueManager) nextPendingLocked() *ExportTask {
	for _, id := range qm.taskOrder {
		if task := qm.tasks[id]; task.Status == TaskStatusPending {
			return task
		}
	}
	return nil
}

// worker processes tasks in the background
func (qm *QueueManager) worker(n int) {
	defer qm.workerWg.Done()
	wlog := log.WithField("worker", n)
	wlog.Debug("worker started")
	defer wlog.Debug("worker stopped")

	for {
		qm.mu.Lock()
		var task *ExportTask
		if qm.isRunning {
			task = qm.nextPendingLocked()
		}
		if task == nil {
			qm.activeWorkers--
			if qm.activeWorkers == 0 {
				qm.isRunning = false
			}
			qm.mu.Unlock()
			qm.emitQueueUpdate()
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		qm.running[task.ID] = cancel
		task.MarkStarted()
		qm.saveTask(task)
		executor := qm.executor
		onProgress := qm.onTaskProgress
		qm.mu.Unlock()

		qm.emitQueueUpdate()
		wlog.WithFields(logrus.Fields{"name": task.Name, "task": task.ID}).Info("executing task")

		progressChan := make(chan TaskProgress, 10)
		progressDone := make(chan struct{})
		go func() {
			defer close(progressDone)
			for progress := range progressChan {
				qm.mu.Lock()
				task.Progress = progress
				qm.mu.Unlock()

				if onProgress != nil {
					onProgress(task.ID, progress)
				}
			}
		}()

		var outputs []string
		var execErr error
		if executor != nil {
			outputs, execErr = executor.ExecuteExportTask(ctx, task, progressChan)
		} else {
			execErr = fmt.Errorf("no executor configured")
		}
		close(progressChan)
		<-progressDone

		qm.mu.Lock()
		switch {
		case execErr == nil:
			task.MarkCompleted(outputs)
			wlog.WithFields(logrus.Fields{"task": task.ID, "output": task.OutputPath}).Info("task completed")
		case ctx.Err() != nil:
			task.MarkCancelled()
			wlog.WithField("task", task.ID).Info("task cancelled")
		default:
			task.MarkFailed(execErr)
			wlog.WithError(execErr).WithField("task", task.ID).Warn("task failed")
		}
		cancel()
		delete(qm.running, task.ID)
		qm.saveTask(task)
		if ch, ok := qm.done[task.ID]; ok {
			close(ch)
		}
		finished := task.clone()
		onComplete := qm.onTaskComplete
		qm.mu.Unlock()

		if onComplete != nil {
			onComplete(finished)
		}
		qm.emitQueueUpdate()
	}
}

// emitQueueUpdate emits a queue update event. Callers must not hold mu.
func (qm *QueueManager) emitQueueUpdate() {
	qm.mu.RLock()
	cb := qm.onQueueUpdate
	qm.mu.RUnlock()
	if cb != nil {
		cb(qm.GetStatus())
	}
}

// ClearCompleted removes all finished tasks
func (qm *QueueManager) ClearCompleted() {
	qm.mu.Lock()
	for _, id := range append([]string(nil), qm.taskOrder...) {
		if task := qm.tasks[id]; task.Status.Finished() {
			qm.removeLocked(task)
		}
	}
	if err := qm.saveState(); err != nil {
		log.WithError(err).Warn("failed to persist queue state")
	}
	qm.mu.Unlock()

	qm.emitQueueUpdate()
	log.Info("cleared finished tasks")
}

// Close shuts down the queue manager
func (qm *QueueManager) Close() {
	qm.StopQueue()
	qm.workerWg.Wait()
}
