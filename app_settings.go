package main

import (
	"fmt"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"phase-viewer/internal/config"
)

// ===================
// Settings Management
// ===================

// GetSettings returns current user settings
func (a *App) GetSettings() (*config.UserSettings, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Return a copy to prevent external modifications
	settingsCopy := *a.settings
	return &settingsCopy, nil
}

// SaveSettings validates and saves user settings. The running session keeps
// its site, query and stretch parameters; they apply on next restart.
func (a *App) SaveSettings(settings *config.UserSettings) error {
	if settings == nil {
		return fmt.Errorf("settings cannot be empty")
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := config.SaveSettings(settings); err != nil {
		return err
	}

	saved := *settings
	a.settings = &saved

	log.WithField("path", config.GetSettingsPath()).Info("settings saved, session settings apply on next restart")
	return nil
}

// ResetSettings restores and saves the default settings
func (a *App) ResetSettings() (*config.UserSettings, error) {
	defaults := config.DefaultSettings()
	if err := a.SaveSettings(defaults); err != nil {
		return nil, err
	}
	return a.GetSettings()
}

// GetSettingsPath returns the OS-specific settings file path
func (a *App) GetSettingsPath() string {
	return config.GetSettingsPath()
}

// SelectExportFolder opens a directory picker for the export folder
func (a *App) SelectExportFolder() (string, error) {
	a.mu.Lock()
	current := a.settings.ExportDir
	a.mu.Unlock()

	dir, err := wailsRuntime.OpenDirectoryDialog(a.ctx, wailsRuntime.OpenDialogOptions{
		Title:            "Select Export Folder",
		DefaultDirectory: current,
	})
	if err != nil {
		return "", err
	}
	if dir == "" {
		return current, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings.ExportDir = dir
	if err := config.SaveSettings(a.settings); err != nil {
		return "", err
	}
	log.WithField("dir", dir).Info("export folder changed, takes effect on next restart")
	return dir, nil
}
