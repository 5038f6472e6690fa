// Package session assembles a complete viewer from settings: the scene
// catalog, the map surface and its layer cache and server, the export queue
// with its sinks, and the viewer itself.
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"phase-viewer/internal/analytics"
	"phase-viewer/internal/cache"
	"phase-viewer/internal/catalog"
	"phase-viewer/internal/config"
	"phase-viewer/internal/exportsink"
	"phase-viewer/internal/handlers/layerserver"
	"phase-viewer/internal/taskqueue"
	"phase-viewer/internal/viewer"
	"phase-viewer/internal/viewstate"
)

var log = logrus.WithField("component", "session")

// notifyTimeout bounds how long a finished job waits for the event loop
const notifyTimeout = 5 * time.Second

// Options configures Open
type Options struct {
	Settings *config.UserSettings
	Sink     viewstate.Sink
	Tracker  *analytics.Tracker

	// Service overrides the scene directory catalog
	Service catalog.Service

	// Optional UI hooks
	OnLayersChanged func()
	OnQueueUpdate   func(taskqueue.QueueStatus)
	OnTaskProgress  func(taskID string, progress taskqueue.TaskProgress)
}

// Session owns every long-lived component of a viewer
type Session struct {
	Settings *config.UserSettings
	Surface  *viewstate.MapSurface
	Cache    *cache.LayerCache
	Layers   *layerserver.Server
	Queue    *taskqueue.QueueManager
	Viewer   *viewer.Viewer

	gcs *storage.Client
}

// Open builds a session. Nothing runs until Start.
func Open(ctx context.Context, opts Options) (*Session, error) {
	settings := opts.Settings
	if settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	service := opts.Service
	if service == nil {
		mem, err := loadScenes(settings.ScenesDir)
		if err != nil {
			return nil, err
		}
		service = mem
	}

	s := &Session{Settings: settings, Surface: viewstate.NewMapSurface()}

	layerCache, err := cache.NewLayerCache(settings.LayerCacheSize, s.Surface)
	if err != nil {
		return nil, err
	}
	s.Cache = layerCache
	s.Surface.SetCallbacks(
		func(l viewstate.Layer) {
			layerCache.Warm(l)
			if opts.OnLayersChanged != nil {
				opts.OnLayersChanged()
			}
		},
		func(id viewstate.LayerID) {
			layerCache.Evict(id)
			if opts.OnLayersChanged != nil {
				opts.OnLayersChanged()
			}
		},
	)
	s.Layers = layerserver.NewServer(s.Surface, layerCache)

	sinks := exportsink.Multi{exportsink.DirSink{Dir: settings.ExportDir}}
	if settings.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		s.gcs = client
		center := orb.Point{settings.SiteLon, settings.SiteLat}
		sinks = append(sinks, exportsink.NewGCSSink(client, settings.GCSBucket, settings.GCSPrefix, settings.SiteName, center))
		log.WithField("bucket", settings.GCSBucket).Info("exports will be uploaded to Cloud Storage")
	}

	s.Queue = taskqueue.NewQueueManager(settings.QueueDir, settings.MaxConcurrentJobs)
	s.Queue.SetExecutor(&taskqueue.GeoTIFFExecutor{Sinks: sinks})

	v, err := viewer.New(viewer.Options{
		Settings:  settings,
		Service:   service,
		Surface:   s.Surface,
		Sink:      opts.Sink,
		Submitter: s.Queue,
		Tracker:   opts.Tracker,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Viewer = v

	s.Queue.SetCallbacks(opts.OnQueueUpdate, opts.OnTaskProgress, func(task *taskqueue.ExportTask) {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		err := v.ExportFinished(ctx, viewer.ExportFinished{
			JobID:   task.ID,
			Name:    task.Name,
			Outputs: task.Outputs,
			Err:     task.Error,
		})
		if err != nil {
			log.WithError(err).WithField("task", task.ID).Debug("export outcome not reported")
		}
	})

	return s, nil
}

// Start runs the viewer and resumes any persisted pending exports. The event
// loop stops when ctx is done.
func (s *Session) Start(ctx context.Context) error {
	if err := s.Viewer.Start(ctx); err != nil {
		return err
	}
	if s.Queue.GetStatus().PendingTasks > 0 {
		s.Queue.StartQueue()
	}
	return nil
}

// Close stops the export workers and releases the storage client
func (s *Session) Close() error {
	var errs []error
	if s.Queue != nil {
		s.Queue.Close()
	}
	if s.gcs != nil {
		errs = append(errs, s.gcs.Close())
	}
	return errors.Join(errs...)
}

// loadScenes reads the scene directory. A missing directory yields an empty
// catalog so the viewer still opens.
func loadScenes(dir string) (*catalog.Memory, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.WithField("dir", dir).Warn("scene directory does not exist")
		return catalog.NewMemory(), nil
	}
	return catalog.LoadDir(dir)
}
