// Package exportsink stores finished export files: always in a local folder,
// and in a Google Cloud Storage bucket when one is configured.
package exportsink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"phase-viewer/internal/utils/naming"
)

// Sink stores one encoded export and returns where it went
type Sink interface {
	Store(ctx context.Context, name string, data []byte) (string, error)
}

// writeFile is swapped in tests to simulate a failed write
var writeFile = os.WriteFile

// DirSink writes exports into a local folder
type DirSink struct {
	Dir string
}

// Store writes {Dir}/{name}.tif
func (d DirSink) Store(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(d.Dir, naming.GeoTIFFFilename(name))
	tmp := path + ".part"
	if err := writeFile(tmp, data, 0644); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to finalize export: %w", err)
	}
	return path, nil
}

type openFunc func(ctx context.Context, bucket, object string) io.WriteCloser

// GCSSink uploads exports to a bucket under
// {prefix}/{site}/{lat}_{lon}/{name}.tif
type GCSSink struct {
	Bucket string
	Prefix string
	Site   string
	Center orb.Point

	open openFunc
}

// NewGCSSink creates a sink writing through client
func NewGCSSink(client *storage.Client, bucket, prefix, site string, center orb.Point) *GCSSink {
	return &GCSSink{
		Bucket: bucket,
		Prefix: prefix,
		Site:   site,
		Center: center,
		open: func(ctx context.Context, bucket, object string) io.WriteCloser {
			w := client.Bucket(bucket).Object(object).NewWriter(ctx)
			w.ContentType = "image/tiff"
			return w
		},
	}
}

// Key returns the object name used for an export
func (g *GCSSink) Key(name string) string {
	return naming.ObjectKey(g.Prefix, g.Site, g.Center.Lon(), g.Center.Lat(), name)
}

// Store uploads the export and returns its gs:// URI
func (g *GCSSink) Store(ctx context.Context, name string, data []byte) (string, error) {
	key := g.Key(name)
	w := g.open(ctx, g.Bucket, key)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to upload gs://%s/%s: %w", g.Bucket, key, err)
	}
	// The object is only committed on Close
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to upload gs://%s/%s: %w", g.Bucket, key, err)
	}

	logrus.WithFields(logrus.Fields{
		"component": "exportsink",
		"bucket":    g.Bucket,
		"object":    key,
		"bytes":     len(data),
	}).Info("export uploaded")
	return fmt.Sprintf("gs://%s/%s", g.Bucket, key), nil
}

// Multi stores into every sink in order and returns all locations. The first
// failure stops the chain.
type Multi []Sink

// Store implements Sink for the first location only; use StoreAll for the rest
func (m Multi) Store(ctx context.Context, name string, data []byte) (string, error) {
	locs, err := m.StoreAll(ctx, name, data)
	if err != nil {
		return "", err
	}
	if len(locs) == 0 {
		return "", fmt.Errorf("no export sink configured")
	}
	return locs[0], nil
}

// StoreAll stores into every sink
func (m Multi) StoreAll(ctx context.Context, name string, data []byte) ([]string, error) {
	locs := make([]string, 0, len(m))
	for _, s := range m {
		loc, err := s.Store(ctx, name, data)
		if err != nil {
			return locs, err
		}
		locs = append(locs, loc)
	}
	return locs, nil
}
