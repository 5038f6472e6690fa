// Package export builds export job descriptors for the selected date and
// hands them to the job system.
package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"phase-viewer/internal/common"
	"phase-viewer/internal/geo"
	"phase-viewer/internal/raster"
	"phase-viewer/internal/utils/naming"
)

// Job is the export job descriptor
type Job struct {
	Date      string            `json:"date"`
	Image     *raster.BandImage `json:"image"`
	Name      string            `json:"name"`
	Scale     float64           `json:"scale"` // metres per pixel
	Region    geo.Region        `json:"-"`
	MaxPixels int64             `json:"maxPixels"`
}

// Acceptance confirms the job system took the job. It says nothing about
// completion.
type Acceptance struct {
	JobID string `json:"jobId"`
	Name  string `json:"name"`
}

// Submitter is the export job collaborator
type Submitter interface {
	Submit(ctx context.Context, job Job) (Acceptance, error)
}

// ImageSource fetches the single image of a calendar day
type ImageSource interface {
	FetchImage(ctx context.Context, day string) (*raster.BandImage, error)
}

// Selection exposes the currently selected day
type Selection interface {
	Selected() (string, bool)
}

// Sink receives user-visible messages
type Sink interface {
	Message(text string)
}

// Requester builds and submits export jobs
type Requester struct {
	Site      string
	Region    geo.Region
	Scale     float64
	MaxPixels int64
	Source    ImageSource
	Submitter Submitter
	Sink      Sink
}

// Build creates the job descriptor for the selected day. It fails with
// common.ErrUserInputRequired when nothing is selected and with
// common.ErrResourceLimitExceeded when the region exceeds the pixel budget.
func (r *Requester) Build(ctx context.Context, sel Selection) (Job, error) {
	day, ok := sel.Selected()
	if !ok {
		return Job{}, fmt.Errorf("%w: choose a date", common.ErrUserInputRequired)
	}

	if n := r.Region.PixelCount(r.Scale); n > r.MaxPixels {
		return Job{}, fmt.Errorf("%w: export needs %d pixels, budget is %d", common.ErrResourceLimitExceeded, n, r.MaxPixels)
	}

	img, err := r.Source.FetchImage(ctx, day)
	if err != nil {
		return Job{}, err
	}
	rgb, err := img.Select(common.TrueColorBands...)
	if err != nil {
		return Job{}, fmt.Errorf("%w: %v", common.ErrMissingData, err)
	}

	return Job{
		Date:      day,
		Image:     rgb.Clip(r.Region),
		Name:      naming.ExportName(r.Site, day),
		Scale:     r.Scale,
		Region:    r.Region,
		MaxPixels: r.MaxPixels,
	}, nil
}

// Request builds the job for the current selection and submits it. Every
// failure is reported to the sink; nothing is submitted unless the descriptor
// was built.
func (r *Requester) Request(ctx context.Context, sel Selection) (Acceptance, error) {
	log := logrus.WithField("component", "export")

	job, err := r.Build(ctx, sel)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrUserInputRequired):
			r.Sink.Message("choose a date")
		case errors.Is(err, common.ErrResourceLimitExceeded):
			r.Sink.Message("export exceeds the pixel budget")
		default:
			r.Sink.Message(fmt.Sprintf("export failed: %v", err))
		}
		log.WithError(err).Warn("export not submitted")
		return Acceptance{}, err
	}

	acc, err := r.Submitter.Submit(ctx, job)
	if err != nil {
		r.Sink.Message(fmt.Sprintf("export rejected: %v", err))
		log.WithError(err).WithField("name", job.Name).Warn("export rejected")
		return Acceptance{}, fmt.Errorf("failed to submit export: %w", err)
	}

	r.Sink.Message("Export started: " + job.Name)
	log.WithFields(logrus.Fields{"name": job.Name, "job": acc.JobID}).Info("export submitted")
	return acc, nil
}
