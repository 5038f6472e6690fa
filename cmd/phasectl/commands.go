package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"phase-viewer/internal/catalog"
	"phase-viewer/internal/taskqueue"
)

var (
	outDir    string
	synthDays []string
	synthSize int
	synthCld  float64
)

func init() {
	viewCmd.Flags().StringVar(&outDir, "out", ".", "folder the layer PNGs are written to")

	synthCmd.Flags().StringSliceVar(&synthDays, "days", []string{"2023-01-05", "2023-01-09", "2023-01-29", "2023-02-08", "2023-02-13"}, "acquisition days")
	synthCmd.Flags().IntVar(&synthSize, "size", 120, "scene width and height in 10m pixels")
	synthCmd.Flags().Float64Var(&synthCld, "cloud", 3.5, "cloudy pixel percentage")
}

var datesCmd = &cobra.Command{
	Use:   "dates",
	Short: "list the acquisition dates matching the query",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		mem, err := catalog.LoadDir(settings.ScenesDir)
		if err != nil {
			return err
		}
		q := catalog.Query{
			CollectionID:  settings.CollectionID,
			Start:         settings.StartDate,
			End:           settings.EndDate,
			Point:         orb.Point{settings.SiteLon, settings.SiteLat},
			MaxCloudCover: settings.MaxCloudCover,
		}
		cat, err := catalog.Build(cmd.Context(), mem, q)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if cat.Empty() {
			fmt.Fprintln(out, "no images found in date range.")
			return nil
		}
		fmt.Fprintf(out, "%d images on %d dates\n", cat.TotalImages(), cat.Len())
		for _, label := range cat.Labels() {
			fmt.Fprintln(out, label)
		}
		return nil
	},
}

var viewCmd = &cobra.Command{
	Use:   "view <date>",
	Short: "select a date and write its Standard, Enhanced and False Color layers as PNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := startSession(cmd, printSink(cmd))
		if err != nil {
			return err
		}
		defer sess.Close()

		ctx := cmd.Context()
		if err := sess.Viewer.SelectDate(ctx, args[0]); err != nil {
			return err
		}
		day, ok, err := sess.Viewer.Selected(ctx)
		if err != nil {
			return err
		}
		if !ok || !strings.HasPrefix(args[0], day) {
			return fmt.Errorf("%q is not a date", args[0])
		}

		if err := os.MkdirAll(outDir, 0755); err != nil {
			return fmt.Errorf("failed to create output folder: %w", err)
		}
		out := cmd.OutOrStdout()
		for _, l := range sess.Surface.Layers() {
			if !l.ID.Kind.DateBound() {
				fmt.Fprintf(out, "%-28s visible=%t\n", l.Name, l.Visible)
				continue
			}
			entry, err := sess.Cache.Get(l.ID)
			if err != nil {
				return fmt.Errorf("failed to render %s: %w", l.Name, err)
			}
			path := filepath.Join(outDir, l.ID.Slug()+".png")
			if err := os.WriteFile(path, entry.Data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			fmt.Fprintf(out, "%-28s visible=%t -> %s\n", l.Name, l.Visible, path)
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <date>",
	Short: "select a date, export its clipped RGB bands and wait for the job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := startSession(cmd, printSink(cmd))
		if err != nil {
			return err
		}
		defer sess.Close()

		ctx := cmd.Context()
		if err := sess.Viewer.SelectDate(ctx, args[0]); err != nil {
			return err
		}
		acc, err := sess.Viewer.Export(ctx)
		if err != nil {
			return err
		}

		task, err := sess.Queue.Wait(ctx, acc.JobID)
		if err != nil {
			return err
		}
		if task.Status != taskqueue.TaskStatusCompleted {
			return fmt.Errorf("export %s %s: %s", task.Name, task.Status, task.Error)
		}
		for _, output := range task.Outputs {
			fmt.Fprintln(cmd.OutOrStdout(), output)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve the attached layers over HTTP until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := startSession(cmd, printSink(cmd))
		if err != nil {
			return err
		}
		defer sess.Close()

		if err := sess.Layers.Start(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "serving layers at %s/layers\n", sess.Layers.URL())

		<-cmd.Context().Done()

		ctx, cancel := newShutdownContext()
		defer cancel()
		return sess.Layers.Shutdown(ctx)
	},
}

var synthCmd = &cobra.Command{
	Use:   "synth",
	Short: "write synthetic scenes around the site into the scene directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		center := orb.Point{settings.SiteLon, settings.SiteLat}
		for _, day := range synthDays {
			scene, err := catalog.Synthetic(settings.CollectionID, day, synthCld, center, synthSize)
			if err != nil {
				return fmt.Errorf("day %s: %w", day, err)
			}
			if err := catalog.SaveScene(settings.ScenesDir, scene); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(settings.ScenesDir, scene.ID+".json"))
		}
		return nil
	},
}

const shutdownTimeout = 5 * time.Second

func newShutdownContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), shutdownTimeout)
}
