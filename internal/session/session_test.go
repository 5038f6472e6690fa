package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phase-viewer/internal/catalog"
	"phase-viewer/internal/config"
	"phase-viewer/internal/taskqueue"
)

type recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *recorder) Message(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
}

func (r *recorder) contains(text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m == text {
			return true
		}
	}
	return false
}

func testSettings(t *testing.T) *config.UserSettings {
	t.Helper()
	dir := t.TempDir()
	s := config.DefaultSettings()
	s.ScenesDir = filepath.Join(dir, "scenes")
	s.ExportDir = filepath.Join(dir, "exports")
	s.QueueDir = filepath.Join(dir, "queue")

	for _, day := range []string{"2023-01-05", "2023-01-09"} {
		scene, err := catalog.Synthetic(s.CollectionID, day, 3.2, orb.Point{s.SiteLon, s.SiteLat}, 120)
		require.NoError(t, err)
		require.NoError(t, catalog.SaveScene(s.ScenesDir, scene))
	}
	return s
}

func TestSession_SelectAndExport(t *testing.T) {
	settings := testSettings(t)
	sink := &recorder{}

	var mu sync.Mutex
	layerChanges := 0
	s, err := Open(context.Background(), Options{
		Settings: settings,
		Sink:     sink,
		OnLayersChanged: func() {
			mu.Lock()
			layerChanges++
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	require.NoError(t, s.Viewer.SelectDate(ctx, "2023-01-09T00:00"))
	acc, err := s.Viewer.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Gaziantep_Castle_PHASE_20230109", acc.Name)

	waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Second)
	defer waitCancel()
	task, err := s.Queue.Wait(waitCtx, acc.JobID)
	require.NoError(t, err)
	require.Equal(t, taskqueue.TaskStatusCompleted, task.Status, task.Error)

	path := filepath.Join(settings.ExportDir, "Gaziantep_Castle_PHASE_20230109.tif")
	assert.Equal(t, path, task.OutputPath)
	_, err = os.Stat(path)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return sink.contains("Export completed: Gaziantep_Castle_PHASE_20230109 -> " + path)
	}, 5*time.Second, 10*time.Millisecond)

	entry, err := s.Cache.Get(s.Surface.Layers()[3].ID)
	require.NoError(t, err)
	assert.Equal(t, "image/png", entry.ContentType)

	mu.Lock()
	assert.Greater(t, layerChanges, 0)
	mu.Unlock()
}

func TestSession_MissingSceneDir(t *testing.T) {
	settings := testSettings(t)
	settings.ScenesDir = filepath.Join(t.TempDir(), "missing")
	sink := &recorder{}

	s, err := Open(context.Background(), Options{Settings: settings, Sink: sink})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	assert.True(t, sink.contains("NO IMAGES"))
}

func TestOpen_InvalidSettings(t *testing.T) {
	settings := testSettings(t)
	settings.SiteName = ""
	_, err := Open(context.Background(), Options{Settings: settings, Sink: &recorder{}})
	assert.Error(t, err)
}
