package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings_Valid(t *testing.T) {
	s := DefaultSettings()
	require.NoError(t, s.Validate())
	assert.Equal(t, "Gaziantep_Castle", s.SiteName)
	assert.Equal(t, 37.383202, s.SiteLon)
	assert.Equal(t, 37.066427, s.SiteLat)
	assert.Equal(t, 500.0, s.ClipBufferMeters)
	assert.Equal(t, "2023-01-01", s.StartDate)
	assert.Equal(t, "2023-02-05", s.EndDate)
	assert.Equal(t, 20.0, s.MaxCloudCover)
	assert.Equal(t, int64(1e9), s.MaxPixels)
}

func TestLoadSettingsFrom_Missing(t *testing.T) {
	s, err := LoadSettingsFrom(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), s)
}

func TestLoadSettingsFrom_MergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"siteName":"Zeugma","maxCloudCover":35}`), 0644))

	s, err := LoadSettingsFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "Zeugma", s.SiteName)
	assert.Equal(t, 35.0, s.MaxCloudCover)
	assert.Equal(t, 10.0, s.Scale)
	assert.Equal(t, 37.383202, s.SiteLon)
	assert.Equal(t, 1, s.MaxConcurrentJobs)
}

func TestLoadSettingsFrom_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0644))

	_, err := LoadSettingsFrom(path)
	assert.Error(t, err)
}

func TestSaveSettingsTo_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	s := DefaultSettings()
	s.GCSBucket = "phase-exports"
	require.NoError(t, SaveSettingsTo(path, s))

	loaded, err := LoadSettingsFrom(path)
	require.NoError(t, err)
	assert.Equal(t, s, loaded)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("PHASE_SCENES_DIR", "/data/scenes")
	t.Setenv("PHASE_EXPORT_DIR", " /data/exports ")
	t.Setenv("PHASE_GCS_BUCKET", "phase-exports")
	t.Setenv("PHASE_MAX_CLOUD", "12.5")
	t.Setenv("POSTHOG_KEY", "phc_test")

	s := DefaultSettings()
	require.NoError(t, s.ApplyEnv())
	assert.Equal(t, "/data/scenes", s.ScenesDir)
	assert.Equal(t, "/data/exports", s.ExportDir)
	assert.Equal(t, "phase-exports", s.GCSBucket)
	assert.Equal(t, 12.5, s.MaxCloudCover)
	assert.Equal(t, "phc_test", s.PostHogKey)
}

func TestApplyEnv_InvalidCloud(t *testing.T) {
	t.Setenv("PHASE_MAX_CLOUD", "lots")
	assert.Error(t, DefaultSettings().ApplyEnv())
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("PHASE_GCS_PREFIX=viewer\n"), 0644))
	t.Setenv("PHASE_GCS_PREFIX", "")
	os.Unsetenv("PHASE_GCS_PREFIX")

	LoadEnvFile(path, filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, "viewer", os.Getenv("PHASE_GCS_PREFIX"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*UserSettings)
	}{
		{"empty site", func(s *UserSettings) { s.SiteName = "" }},
		{"bad lat", func(s *UserSettings) { s.SiteLat = 91 }},
		{"zero buffer", func(s *UserSettings) { s.ClipBufferMeters = 0 }},
		{"bad start", func(s *UserSettings) { s.StartDate = "2023/01/01" }},
		{"end before start", func(s *UserSettings) { s.EndDate = "2022-12-31" }},
		{"cloud over 100", func(s *UserSettings) { s.MaxCloudCover = 101 }},
		{"zero scale", func(s *UserSettings) { s.Scale = 0 }},
		{"percentiles swapped", func(s *UserSettings) { s.LowPercentile, s.HighPercentile = 98, 2 }},
		{"no export dir", func(s *UserSettings) { s.ExportDir = "" }},
		{"no workers", func(s *UserSettings) { s.MaxConcurrentJobs = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.modify(s)
			assert.Error(t, s.Validate())
		})
	}
}
