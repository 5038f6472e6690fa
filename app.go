package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	goruntime "runtime"
	"sync"

	"github.com/sirupsen/logrus"
	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"phase-viewer/internal/analytics"
	"phase-viewer/internal/catalog"
	"phase-viewer/internal/config"
	"phase-viewer/internal/export"
	"phase-viewer/internal/handlers/layerserver"
	"phase-viewer/internal/session"
	"phase-viewer/internal/taskqueue"
	"phase-viewer/internal/viewer"
	"phase-viewer/internal/viewstate"
)

// Linker flags
var (
	PostHogKey  string
	PostHogHost string
	AppVersion  string = "0.0.0-dev"
)

// maxMessages bounds the message history kept for late subscribers
const maxMessages = 500

var log = logrus.WithField("component", "app")

// App struct
type App struct {
	ctx      context.Context
	cancel   context.CancelFunc
	settings *config.UserSettings
	session  *session.Session
	tracker  *analytics.Tracker
	mu       sync.Mutex
	devMode  bool // Enable verbose logging in dev mode only

	messages []string
	ready    chan struct{} // closed once the session started (or failed to)
	startErr error

	layers http.Handler // layer router, built once the session opens
}

// NewApp creates a new App application struct
func NewApp() *App {
	config.LoadEnvFile()

	// Load user settings
	settings, err := config.LoadSettings()
	if err != nil {
		log.WithError(err).Warn("failed to load settings, using defaults")
		settings = config.DefaultSettings()
	}
	if err := settings.ApplyEnv(); err != nil {
		log.WithError(err).Warn("ignoring invalid environment override")
	}
	if settings.PostHogKey == "" {
		settings.PostHogKey = PostHogKey
	}
	if PostHogHost != "" && os.Getenv("POSTHOG_HOST") == "" {
		settings.PostHogHost = PostHogHost
	}
	log.WithField("path", config.GetSettingsPath()).Info("settings loaded")

	return &App{settings: settings, ready: make(chan struct{})}
}

// startup is called when the app starts
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	if a.devMode {
		logrus.SetLevel(logrus.DebugLevel)
	}

	distinctID, err := analytics.InstallID(config.GetDataDir())
	if err != nil {
		log.WithError(err).Warn("failed to read install id")
		distinctID = "anonymous"
	}
	tracker, err := analytics.New(a.settings.PostHogKey, a.settings.PostHogHost, distinctID)
	if err != nil {
		log.WithError(err).Warn("analytics disabled")
		tracker = &analytics.Tracker{}
	}
	a.tracker = tracker

	sess, err := session.Open(ctx, session.Options{
		Settings: a.settings,
		Sink:     viewstate.SinkFunc(a.emitMessage),
		Tracker:  tracker,
		OnLayersChanged: func() {
			wailsRuntime.EventsEmit(ctx, "layers-changed")
		},
		OnQueueUpdate: func(status taskqueue.QueueStatus) {
			wailsRuntime.EventsEmit(ctx, "task-queue-update", status)
		},
		OnTaskProgress: func(taskID string, progress taskqueue.TaskProgress) {
			wailsRuntime.EventsEmit(ctx, "task-progress", map[string]interface{}{
				"taskId":   taskID,
				"progress": progress,
			})
		},
	})
	if err != nil {
		wailsRuntime.LogError(ctx, fmt.Sprintf("Failed to open viewer: %v", err))
		a.startErr = err
		close(a.ready)
		return
	}
	a.session = sess
	a.mu.Lock()
	a.layers = sess.Layers.Handler()
	a.mu.Unlock()

	// Build the catalog and the first date's layers without blocking the window
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	go func() {
		defer close(a.ready)
		if err := sess.Start(runCtx); err != nil {
			wailsRuntime.LogError(ctx, fmt.Sprintf("Failed to start viewer: %v", err))
			a.emitMessage(fmt.Sprintf("failed to start viewer: %v", err))
			a.startErr = err
			return
		}
		wailsRuntime.EventsEmit(ctx, "viewer-ready", sess.Viewer.Panel())
	}()

	// Track app start
	a.tracker.TrackEvent(analytics.EventAppStarted, map[string]interface{}{
		"version": a.GetAppVersion(),
		"os":      goruntime.GOOS,
		"arch":    goruntime.GOARCH,
	})
}

// Shutdown cleans up resources
func (a *App) Shutdown(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	if a.session != nil {
		if err := a.session.Close(); err != nil {
			log.WithError(err).Warn("failed to close session")
		}
	}
	if a.tracker != nil {
		a.tracker.Close()
	}
}

// ServeHTTP serves the layer endpoints through the Wails asset server
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	layers := a.layers
	a.mu.Unlock()

	if layers == nil {
		http.Error(w, "viewer not ready", http.StatusServiceUnavailable)
		return
	}
	layers.ServeHTTP(w, r)
}

// emitMessage records a viewer message and forwards it to the frontend
func (a *App) emitMessage(text string) {
	a.mu.Lock()
	a.messages = append(a.messages, text)
	if len(a.messages) > maxMessages {
		a.messages = a.messages[len(a.messages)-maxMessages:]
	}
	a.mu.Unlock()

	log.Debug(text)
	if a.ctx != nil {
		wailsRuntime.EventsEmit(a.ctx, "viewer-message", text)
	}
}

// viewer waits for startup and returns the running viewer
func (a *App) viewer() (*viewer.Viewer, error) {
	<-a.ready
	if a.startErr != nil {
		return nil, a.startErr
	}
	if a.session == nil {
		return nil, errors.New("viewer not started")
	}
	return a.session.Viewer, nil
}

// GetAppVersion returns the current application version
func (a *App) GetAppVersion() string {
	return AppVersion
}

// GetMessages returns the message history
func (a *App) GetMessages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.messages...)
}

// GetPanel returns the control panel content
func (a *App) GetPanel() (viewer.Panel, error) {
	v, err := a.viewer()
	if err != nil {
		return viewer.Panel{}, err
	}
	return v.Panel(), nil
}

// GetDates returns the selectable acquisition dates
func (a *App) GetDates() ([]catalog.AcquisitionDate, error) {
	v, err := a.viewer()
	if err != nil {
		return nil, err
	}
	return v.Catalog().Dates(), nil
}

// SelectDate handles the date selector's onChange. A null value is a no-op.
func (a *App) SelectDate(value *string) error {
	v, err := a.viewer()
	if err != nil {
		return err
	}
	return v.SelectDate(a.ctx, selectorValue(value))
}

// selectorValue maps the selector's JSON value to a string; null becomes ""
// which the viewer ignores
func selectorValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// GetSelectedDate returns the selected day, or "" when nothing is selected
func (a *App) GetSelectedDate() (string, error) {
	v, err := a.viewer()
	if err != nil {
		return "", err
	}
	day, _, err := v.Selected(a.ctx)
	return day, err
}

// Export handles the export button's onClick
func (a *App) Export() (export.Acceptance, error) {
	v, err := a.viewer()
	if err != nil {
		return export.Acceptance{}, err
	}
	return v.Export(a.ctx)
}

// GetLayers returns the attached layers in drawing order
func (a *App) GetLayers() []layerserver.LayerInfo {
	if a.session == nil {
		return []layerserver.LayerInfo{}
	}
	layers := a.session.Surface.Layers()
	out := make([]layerserver.LayerInfo, 0, len(layers))
	for _, l := range layers {
		out = append(out, layerserver.Describe(l))
	}
	return out
}

// GetTaskQueue returns all export tasks
func (a *App) GetTaskQueue() []*taskqueue.ExportTask {
	if a.session == nil {
		return []*taskqueue.ExportTask{}
	}
	tasks := a.session.Queue.GetAllTasks()
	// The band buffers stay on the Go side
	for _, t := range tasks {
		t.Image = nil
	}
	return tasks
}

// GetTaskQueueStatus returns the export queue status
func (a *App) GetTaskQueueStatus() taskqueue.QueueStatus {
	if a.session == nil {
		return taskqueue.QueueStatus{}
	}
	return a.session.Queue.GetStatus()
}

// CancelTask cancels a pending or running export
func (a *App) CancelTask(id string) error {
	if a.session == nil {
		return errors.New("viewer not started")
	}
	return a.session.Queue.CancelTask(id)
}

// ClearCompletedTasks removes finished exports from the queue
func (a *App) ClearCompletedTasks() {
	if a.session != nil {
		a.session.Queue.ClearCompleted()
	}
}

// OpenExportFolder opens the export folder in the OS file explorer
func (a *App) OpenExportFolder() error {
	return a.OpenFolder(a.settings.ExportDir)
}

// OpenFolder opens a specific folder in the OS file explorer
func (a *App) OpenFolder(path string) error {
	// Verify the path exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("folder does not exist: %s", path)
	}

	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default: // Linux and others
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}
