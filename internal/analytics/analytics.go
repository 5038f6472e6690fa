// Package analytics sends anonymous usage events to PostHog. Without an API
// key every call is a no-op.
package analytics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	"github.com/sirupsen/logrus"
)

// Event names
const (
	EventAppStarted      = "app_started"
	EventDateSelected    = "date_selected"
	EventExportSubmitted = "export_submitted"
	EventExportFinished  = "export_finished"
)

type client interface {
	Enqueue(posthog.Message) error
	Close() error
}

// Tracker enqueues events for one install. The zero value and nil are valid
// and drop every event.
type Tracker struct {
	client     client
	distinctID string
}

// New creates a tracker. An empty key returns a disabled tracker.
func New(key, host, distinctID string) (*Tracker, error) {
	if key == "" {
		return &Tracker{}, nil
	}
	c, err := posthog.NewWithConfig(key, posthog.Config{Endpoint: host})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostHog: %w", err)
	}
	return &Tracker{client: c, distinctID: distinctID}, nil
}

// Enabled reports whether events are sent
func (t *Tracker) Enabled() bool {
	return t != nil && t.client != nil
}

// TrackEvent sends an event to PostHog
func (t *Tracker) TrackEvent(event string, props map[string]interface{}) {
	if !t.Enabled() {
		return
	}
	properties := posthog.NewProperties()
	for k, v := range props {
		properties.Set(k, v)
	}
	err := t.client.Enqueue(posthog.Capture{
		DistinctId: t.distinctID,
		Event:      event,
		Properties: properties,
	})
	if err != nil {
		logrus.WithField("component", "analytics").WithError(err).Debug("failed to enqueue event")
	}
}

// Close flushes pending events
func (t *Tracker) Close() error {
	if !t.Enabled() {
		return nil
	}
	return t.client.Close()
}

// InstallID returns the anonymous id stored in dir, creating it on first use
func InstallID(dir string) (string, error) {
	path := filepath.Join(dir, "install_id")
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0644); err != nil {
		return "", fmt.Errorf("failed to write install id: %w", err)
	}
	return id, nil
}
