package taskqueue

import (
	"bytes"
	"context"
	"fmt"

	"phase-viewer/internal/common"
	"phase-viewer/internal/exportsink"
)

// GeoTIFFExecutor encodes an export task as a GeoTIFF and stores it in every
// configured sink
type GeoTIFFExecutor struct {
	Sinks exportsink.Multi
}

// ExecuteExportTask implements TaskExecutor
func (e *GeoTIFFExecutor) ExecuteExportTask(ctx context.Context, task *ExportTask, progressChan chan<- TaskProgress) ([]string, error) {
	if task.Image == nil {
		return nil, fmt.Errorf("%w: task %s has no image", common.ErrMissingData, task.ID)
	}
	if n := int64(task.Image.Width) * int64(task.Image.Height); task.MaxPixels > 0 && n > task.MaxPixels {
		return nil, fmt.Errorf("%w: image has %d pixels, budget is %d", common.ErrResourceLimitExceeded, n, task.MaxPixels)
	}
	if len(e.Sinks) == 0 {
		return nil, fmt.Errorf("no export sink configured")
	}

	progressChan <- TaskProgress{CurrentPhase: "encoding", Percent: 10}

	var buf bytes.Buffer
	description := fmt.Sprintf("%s (%s, %gm)", task.Name, task.Date, task.Scale)
	if err := exportsink.EncodeGeoTIFF(&buf, task.Image, description); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	progressChan <- TaskProgress{CurrentPhase: "storing", Percent: 50}

	outputs, err := e.Sinks.StoreAll(ctx, task.Name, buf.Bytes())
	if err != nil {
		return outputs, fmt.Errorf("failed to store export: %w", err)
	}

	progressChan <- TaskProgress{CurrentPhase: "storing", Percent: 100}
	return outputs, nil
}
