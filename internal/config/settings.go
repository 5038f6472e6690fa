package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"phase-viewer/internal/common"
)

// UserSettings represents persistent viewer settings
type UserSettings struct {
	// Site
	SiteName         string  `json:"siteName"`
	Title            string  `json:"title"`
	SiteLon          float64 `json:"siteLon"`
	SiteLat          float64 `json:"siteLat"`
	ClipBufferMeters float64 `json:"clipBufferMeters"`

	// Catalog query
	CollectionID  string  `json:"collectionId"`
	StartDate     string  `json:"startDate"` // inclusive, YYYY-MM-DD
	EndDate       string  `json:"endDate"`   // exclusive, YYYY-MM-DD
	MaxCloudCover float64 `json:"maxCloudCover"`

	// Reduction and export
	Scale          float64 `json:"scale"` // metres per pixel
	MaxPixels      int64   `json:"maxPixels"`
	LowPercentile  float64 `json:"lowPercentile"`
	HighPercentile float64 `json:"highPercentile"`

	// Local collaborators
	ScenesDir         string `json:"scenesDir"`
	ExportDir         string `json:"exportDir"`
	QueueDir          string `json:"queueDir"`
	MaxConcurrentJobs int    `json:"maxConcurrentJobs"`
	LayerCacheSize    int    `json:"layerCacheSize"`

	// Optional Cloud Storage upload
	GCSBucket string `json:"gcsBucket,omitempty"`
	GCSPrefix string `json:"gcsPrefix,omitempty"`

	// Analytics
	PostHogKey  string `json:"posthogKey,omitempty"`
	PostHogHost string `json:"posthogHost,omitempty"`
}

// GetDataDir returns the base directory for viewer data
func GetDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".walkthru-earth", "phase-viewer")
}

// DefaultSettings returns default viewer settings
func DefaultSettings() *UserSettings {
	dataDir := GetDataDir()
	homeDir, _ := os.UserHomeDir()

	return &UserSettings{
		SiteName:          "Gaziantep_Castle",
		Title:             "Sentinel-2 PHASE Viewer: Gaziantep Castle",
		SiteLon:           37.383202,
		SiteLat:           37.066427,
		ClipBufferMeters:  500,
		CollectionID:      common.CollectionS2Harmonized,
		StartDate:         "2023-01-01",
		EndDate:           "2023-02-05",
		MaxCloudCover:     20,
		Scale:             10,
		MaxPixels:         1e9,
		LowPercentile:     2,
		HighPercentile:    98,
		ScenesDir:         filepath.Join(dataDir, "scenes"),
		ExportDir:         filepath.Join(homeDir, "Downloads", "phase-exports"),
		QueueDir:          filepath.Join(dataDir, "queue"),
		MaxConcurrentJobs: 1,
		LayerCacheSize:    32,
		PostHogHost:       "https://eu.i.posthog.com",
	}
}

// GetSettingsPath returns the OS-specific settings file path
func GetSettingsPath() string {
	// Unified directory structure: ~/.walkthru-earth/phase-viewer/settings/
	return filepath.Join(GetDataDir(), "settings", "settings.json")
}

// LoadSettings loads settings from the default path
func LoadSettings() (*UserSettings, error) {
	return LoadSettingsFrom(GetSettingsPath())
}

// LoadSettingsFrom loads settings from path, merged with defaults. A missing
// file yields the defaults.
func LoadSettingsFrom(path string) (*UserSettings, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultSettings(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings UserSettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings: %w", err)
	}

	settings.mergeDefaults(DefaultSettings())
	return &settings, nil
}

// mergeDefaults fills zero-valued fields
func (s *UserSettings) mergeDefaults(d *UserSettings) {
	setString := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	setFloat := func(dst *float64, v float64) {
		if *dst == 0 {
			*dst = v
		}
	}

	setString(&s.SiteName, d.SiteName)
	setString(&s.Title, d.Title)
	setString(&s.CollectionID, d.CollectionID)
	setString(&s.StartDate, d.StartDate)
	setString(&s.EndDate, d.EndDate)
	setString(&s.ScenesDir, d.ScenesDir)
	setString(&s.ExportDir, d.ExportDir)
	setString(&s.QueueDir, d.QueueDir)
	setString(&s.PostHogHost, d.PostHogHost)

	// An unset site falls back to the default site as a whole
	if s.SiteLon == 0 && s.SiteLat == 0 {
		s.SiteLon, s.SiteLat = d.SiteLon, d.SiteLat
	}
	setFloat(&s.ClipBufferMeters, d.ClipBufferMeters)
	setFloat(&s.MaxCloudCover, d.MaxCloudCover)
	setFloat(&s.Scale, d.Scale)
	setFloat(&s.LowPercentile, d.LowPercentile)
	setFloat(&s.HighPercentile, d.HighPercentile)

	if s.MaxPixels == 0 {
		s.MaxPixels = d.MaxPixels
	}
	if s.MaxConcurrentJobs == 0 {
		s.MaxConcurrentJobs = d.MaxConcurrentJobs
	}
	if s.LayerCacheSize == 0 {
		s.LayerCacheSize = d.LayerCacheSize
	}
}

// SaveSettings saves settings to the default path
func SaveSettings(settings *UserSettings) error {
	return SaveSettingsTo(GetSettingsPath(), settings)
}

// SaveSettingsTo saves settings to path
func SaveSettingsTo(path string, settings *UserSettings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}

// LoadEnvFile loads variables from .env files into the environment. Missing
// files are ignored; existing variables are never overwritten.
func LoadEnvFile(paths ...string) {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		_ = godotenv.Load(p) // ignore missing file
	}
}

// ApplyEnv overrides settings from PHASE_* and POSTHOG_* variables
func (s *UserSettings) ApplyEnv() error {
	if v := strings.TrimSpace(os.Getenv("PHASE_SCENES_DIR")); v != "" {
		s.ScenesDir = v
	}
	if v := strings.TrimSpace(os.Getenv("PHASE_EXPORT_DIR")); v != "" {
		s.ExportDir = v
	}
	if v := strings.TrimSpace(os.Getenv("PHASE_GCS_BUCKET")); v != "" {
		s.GCSBucket = v
	}
	if v := strings.TrimSpace(os.Getenv("PHASE_GCS_PREFIX")); v != "" {
		s.GCSPrefix = v
	}
	if v := strings.TrimSpace(os.Getenv("PHASE_MAX_CLOUD")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid PHASE_MAX_CLOUD %q: %w", v, err)
		}
		s.MaxCloudCover = f
	}
	if v := strings.TrimSpace(os.Getenv("POSTHOG_KEY")); v != "" {
		s.PostHogKey = v
	}
	if v := strings.TrimSpace(os.Getenv("POSTHOG_HOST")); v != "" {
		s.PostHogHost = v
	}
	return nil
}

// Validate checks that the settings describe a usable session
func (s *UserSettings) Validate() error {
	if s.SiteName == "" {
		return fmt.Errorf("site name cannot be empty")
	}
	if s.SiteLon < -180 || s.SiteLon > 180 || s.SiteLat < -90 || s.SiteLat > 90 {
		return fmt.Errorf("site coordinates out of range: lon=%f lat=%f", s.SiteLon, s.SiteLat)
	}
	if s.ClipBufferMeters <= 0 {
		return fmt.Errorf("clip buffer must be positive")
	}
	if s.CollectionID == "" {
		return fmt.Errorf("collection id cannot be empty")
	}
	start, err := common.ParseISO8601(s.StartDate)
	if err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	end, err := common.ParseISO8601(s.EndDate)
	if err != nil {
		return fmt.Errorf("invalid end date: %w", err)
	}
	if !end.After(start) {
		return fmt.Errorf("end date %s must be after start date %s", s.EndDate, s.StartDate)
	}
	if s.MaxCloudCover <= 0 || s.MaxCloudCover > 100 {
		return fmt.Errorf("cloud cover ceiling must be in (0, 100], got %g", s.MaxCloudCover)
	}
	if s.Scale <= 0 {
		return fmt.Errorf("scale must be positive")
	}
	if s.MaxPixels <= 0 {
		return fmt.Errorf("max pixels must be positive")
	}
	if !(s.LowPercentile >= 0 && s.LowPercentile < s.HighPercentile && s.HighPercentile <= 100) {
		return fmt.Errorf("invalid percentiles %g/%g", s.LowPercentile, s.HighPercentile)
	}
	if s.ScenesDir == "" {
		return fmt.Errorf("scenes directory cannot be empty")
	}
	if s.ExportDir == "" {
		return fmt.Errorf("export directory cannot be empty")
	}
	if s.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("max concurrent jobs must be positive")
	}
	if s.LayerCacheSize <= 0 {
		return fmt.Errorf("layer cache size must be positive")
	}
	return nil
}
