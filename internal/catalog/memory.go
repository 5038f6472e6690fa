package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"phase-viewer/internal/common"
	"phase-viewer/internal/raster"
)

// Scene is one catalog image with its metadata
type Scene struct {
	ID                    string            `json:"id"`
	Collection            string            `json:"collection"`
	TimeStart             time.Time         `json:"timeStart"`
	CloudyPixelPercentage float64           `json:"cloudyPixelPercentage"`
	Image                 *raster.BandImage `json:"image"`
}

// Validate checks the scene record
func (s *Scene) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("scene id is required")
	}
	if s.Collection == "" {
		return fmt.Errorf("scene %s: collection is required", s.ID)
	}
	if s.TimeStart.IsZero() {
		return fmt.Errorf("scene %s: timeStart is required", s.ID)
	}
	if s.Image == nil {
		return fmt.Errorf("scene %s: image is required", s.ID)
	}
	if err := s.Image.Validate(); err != nil {
		return fmt.Errorf("scene %s: %w", s.ID, err)
	}
	return nil
}

// Day returns the scene's UTC calendar day
func (s *Scene) Day() string {
	return common.FormatISO8601(s.TimeStart.UTC())
}

// Memory is a local Service over an in-memory scene list
type Memory struct {
	mu     sync.RWMutex
	scenes []*Scene
}

// NewMemory creates a Memory service holding scenes
func NewMemory(scenes ...*Scene) *Memory {
	m := &Memory{}
	m.Add(scenes...)
	return m
}

// Add appends scenes
func (m *Memory) Add(scenes ...*Scene) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes = append(m.scenes, scenes...)
}

// LoadDir reads every *.json scene file in dir
func LoadDir(dir string) (*Memory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene directory: %w", err)
	}

	m := NewMemory()
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		scene, err := LoadScene(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		m.Add(scene)
	}

	logrus.WithFields(logrus.Fields{
		"component": "catalog",
		"dir":       dir,
		"scenes":    len(m.scenes),
	}).Info("loaded scenes")
	return m, nil
}

// LoadScene reads one scene file
func LoadScene(path string) (*Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}
	var scene Scene
	if err := json.Unmarshal(data, &scene); err != nil {
		return nil, fmt.Errorf("failed to parse scene %s: %w", filepath.Base(path), err)
	}
	if err := scene.Validate(); err != nil {
		return nil, err
	}
	return &scene, nil
}

// SaveScene writes a scene file into dir as {id}.json
func SaveScene(dir string, scene *Scene) error {
	if err := scene.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create scene directory: %w", err)
	}
	data, err := json.Marshal(scene)
	if err != nil {
		return fmt.Errorf("failed to marshal scene: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, scene.ID+".json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write scene file: %w", err)
	}
	return nil
}

// matching returns scenes passing q, sorted by acquisition time
func (m *Memory) matching(q Query) ([]*Scene, error) {
	start, err := common.ParseISO8601(q.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid start date: %w", err)
	}
	end, err := common.ParseISO8601(q.End)
	if err != nil {
		return nil, fmt.Errorf("invalid end date: %w", err)
	}

	m.mu.RLock()
	scenes := lo.Filter(m.scenes, func(s *Scene, _ int) bool {
		t := s.TimeStart.UTC()
		return s.Collection == q.CollectionID &&
			!t.Before(start) && t.Before(end) &&
			s.Image.Bound().Contains(q.Point) &&
			s.CloudyPixelPercentage < q.MaxCloudCover
	})
	m.mu.RUnlock()

	sort.SliceStable(scenes, func(i, j int) bool {
		return scenes[i].TimeStart.Before(scenes[j].TimeStart)
	})
	return scenes, nil
}

// CountImages returns the number of matching scenes
func (m *Memory) CountImages(ctx context.Context, q Query) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	scenes, err := m.matching(q)
	if err != nil {
		return 0, err
	}
	return len(scenes), nil
}

// QueryImages filters by collection, date window, point and cloud ceiling
// and returns the first scene of every day
func (m *Memory) QueryImages(ctx context.Context, q Query) ([]AcquisitionDate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scenes, err := m.matching(q)
	if err != nil {
		return nil, err
	}

	firstPerDay := lo.UniqBy(scenes, func(s *Scene) string { return s.Day() })
	return lo.Map(firstPerDay, func(s *Scene, _ int) AcquisitionDate {
		return AcquisitionDate{Date: s.Day(), CloudCover: s.CloudyPixelPercentage}
	}), nil
}

// FetchImage returns the first matching scene of day, restricted to q.Bands
// when set
func (m *Memory) FetchImage(ctx context.Context, q Query, day string) (*raster.BandImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := common.ParseISO8601(day); err != nil {
		return nil, fmt.Errorf("invalid day %q: %w", day, err)
	}

	// narrow the window to [day, day+1) inside the query window
	next, _ := common.NextDay(day)
	window := q
	if day > window.Start {
		window.Start = day
	}
	if next < window.End {
		window.End = next
	}
	if window.Start >= window.End {
		return nil, fmt.Errorf("%w: no image for %s", common.ErrMissingData, day)
	}

	scenes, err := m.matching(window)
	if err != nil {
		return nil, err
	}
	if len(scenes) == 0 {
		return nil, fmt.Errorf("%w: no image for %s", common.ErrMissingData, day)
	}

	img := scenes[0].Image
	if len(q.Bands) > 0 {
		return img.Select(q.Bands...)
	}
	return img, nil
}
