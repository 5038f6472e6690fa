package export

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phase-viewer/internal/catalog"
	"phase-viewer/internal/common"
	"phase-viewer/internal/geo"
	"phase-viewer/internal/raster"
)

var castle = orb.Point{37.383202, 37.066427}

type selection string

func (s selection) Selected() (string, bool) { return string(s), s != "" }

type fakeSource map[string]*raster.BandImage

func (f fakeSource) FetchImage(_ context.Context, day string) (*raster.BandImage, error) {
	img, ok := f[day]
	if !ok {
		return nil, fmt.Errorf("%w: no image for %s", common.ErrMissingData, day)
	}
	return img, nil
}

type fakeSubmitter struct {
	jobs []Job
	err  error
}

func (f *fakeSubmitter) Submit(_ context.Context, job Job) (Acceptance, error) {
	if f.err != nil {
		return Acceptance{}, f.err
	}
	f.jobs = append(f.jobs, job)
	return Acceptance{JobID: fmt.Sprintf("job-%d", len(f.jobs)), Name: job.Name}, nil
}

type recorder struct{ messages []string }

func (r *recorder) Message(text string) { r.messages = append(r.messages, text) }

func newRequester(t *testing.T) (*Requester, *fakeSubmitter, *recorder) {
	t.Helper()
	region, err := geo.NewBufferedPoint(castle.Lon(), castle.Lat(), 500)
	require.NoError(t, err)

	scene, err := catalog.Synthetic(common.CollectionS2Harmonized, "2023-01-09", 3, castle, 120)
	require.NoError(t, err)

	sub := &fakeSubmitter{}
	rec := &recorder{}
	return &Requester{
		Site:      "Gaziantep_Castle",
		Region:    region,
		Scale:     10,
		MaxPixels: 1e9,
		Source:    fakeSource{"2023-01-09": scene.Image},
		Submitter: sub,
		Sink:      rec,
	}, sub, rec
}

func TestRequest_NoSelection(t *testing.T) {
	req, sub, rec := newRequester(t)

	_, err := req.Request(context.Background(), selection(""))
	assert.True(t, errors.Is(err, common.ErrUserInputRequired))
	assert.Empty(t, sub.jobs)
	assert.Equal(t, []string{"choose a date"}, rec.messages)
}

func TestRequest_Submits(t *testing.T) {
	req, sub, rec := newRequester(t)

	acc, err := req.Request(context.Background(), selection("2023-01-09"))
	require.NoError(t, err)
	assert.Equal(t, "job-1", acc.JobID)

	require.Len(t, sub.jobs, 1)
	job := sub.jobs[0]
	assert.Equal(t, "Gaziantep_Castle_PHASE_20230109", job.Name)
	assert.Equal(t, 10.0, job.Scale)
	assert.Equal(t, int64(1e9), job.MaxPixels)
	assert.Equal(t, "2023-01-09", job.Date)
	assert.Equal(t, []string{"B4", "B3", "B2"}, job.Image.BandNames())
	assert.Less(t, job.Image.ValidCount(), job.Image.Width*job.Image.Height, "image is clipped")
	assert.Equal(t, castle, job.Region.Center())
	assert.Contains(t, rec.messages, "Export started: Gaziantep_Castle_PHASE_20230109")
}

func TestRequest_PixelBudget(t *testing.T) {
	req, sub, rec := newRequester(t)
	req.MaxPixels = 1000

	_, err := req.Request(context.Background(), selection("2023-01-09"))
	assert.True(t, errors.Is(err, common.ErrResourceLimitExceeded))
	assert.Empty(t, sub.jobs)
	assert.Equal(t, []string{"export exceeds the pixel budget"}, rec.messages)
}

func TestRequest_MissingImage(t *testing.T) {
	req, sub, _ := newRequester(t)

	_, err := req.Request(context.Background(), selection("2023-01-05"))
	assert.True(t, errors.Is(err, common.ErrMissingData))
	assert.Empty(t, sub.jobs)
}

func TestRequest_Rejected(t *testing.T) {
	req, sub, rec := newRequester(t)
	sub.err = errors.New("queue closed")

	_, err := req.Request(context.Background(), selection("2023-01-09"))
	assert.Error(t, err)
	assert.Contains(t, rec.messages[len(rec.messages)-1], "export rejected")
}
