// Command phasectl runs the PHASE viewer without a window: it lists the
// available acquisition dates, renders a date's layers to PNG files, exports
// a date as a GeoTIFF and serves the layers over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"phase-viewer/internal/config"
	"phase-viewer/internal/session"
	"phase-viewer/internal/viewstate"
)

var (
	settingsPath string
	scenesDir    string
	exportDir    string
	maxCloud     float64
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "phasectl",
	Short: "Sentinel-2 PHASE viewer from the command line",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logrus.SetLevel(logrus.DebugLevel)
		} else {
			logrus.SetLevel(logrus.WarnLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "settings file (default "+config.GetSettingsPath()+")")
	rootCmd.PersistentFlags().StringVar(&scenesDir, "scenes", "", "scene directory")
	rootCmd.PersistentFlags().StringVar(&exportDir, "export-dir", "", "export folder")
	rootCmd.PersistentFlags().Float64Var(&maxCloud, "max-cloud", 0, "cloud cover ceiling in percent")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")
	rootCmd.AddCommand(datesCmd, viewCmd, exportCmd, serveCmd, synthCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadSettings reads the settings file and applies .env, environment and flag
// overrides, in that order
func loadSettings() (*config.UserSettings, error) {
	config.LoadEnvFile()

	var settings *config.UserSettings
	var err error
	if settingsPath != "" {
		settings, err = config.LoadSettingsFrom(settingsPath)
	} else {
		settings, err = config.LoadSettings()
	}
	if err != nil {
		return nil, err
	}
	if err := settings.ApplyEnv(); err != nil {
		return nil, err
	}

	if scenesDir != "" {
		settings.ScenesDir = scenesDir
	}
	if exportDir != "" {
		settings.ExportDir = exportDir
	}
	if maxCloud != 0 {
		settings.MaxCloudCover = maxCloud
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return settings, nil
}

// printSink writes viewer messages to stdout
func printSink(cmd *cobra.Command) viewstate.Sink {
	out := cmd.OutOrStdout()
	return viewstate.SinkFunc(func(text string) {
		fmt.Fprintln(out, text)
	})
}

// startSession opens and starts a session whose event loop lives as long as
// the command's context
func startSession(cmd *cobra.Command, sink viewstate.Sink) (*session.Session, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	sess, err := session.Open(ctx, session.Options{Settings: settings, Sink: sink})
	if err != nil {
		return nil, err
	}
	if err := sess.Start(ctx); err != nil {
		sess.Close()
		return nil, err
	}
	return sess, nil
}
