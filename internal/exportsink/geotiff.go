package exportsink

import (
	"fmt"
	"io"
	"math"

	"phase-viewer/internal/raster"
	"phase-viewer/pkg/geotiff"
)

// NoData is the sample value written for masked pixels
const NoData = 0

// EncodeGeoTIFF writes img as a 16-bit GeoTIFF. Samples are rounded and
// clamped to [1, 65535] so valid pixels never collide with NoData.
func EncodeGeoTIFF(w io.Writer, img *raster.BandImage, description string) error {
	if err := img.Validate(); err != nil {
		return fmt.Errorf("failed to encode geotiff: %w", err)
	}
	samples := len(img.Bands)
	if samples != 1 && samples != 3 {
		return fmt.Errorf("failed to encode geotiff: need 1 or 3 bands, got %d", samples)
	}

	out := geotiff.NewImage(img.Width, img.Height, samples)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			if !img.Valid(x, y) {
				continue
			}
			i := y*img.Width + x
			for s, b := range img.Bands {
				out.Set(x, y, s, toUint16(b.Values[i]))
			}
		}
	}

	nodata := float64(NoData)
	tags := geotiff.GeoTags(geotiff.Georeference{
		OriginLon:   img.Transform.OriginLon,
		OriginLat:   img.Transform.OriginLat,
		PixelWidth:  img.Transform.PixelWidth,
		PixelHeight: img.Transform.PixelHeight,
	}, &nodata)
	if description != "" {
		tags[geotiff.TagType_ImageDescription] = description
	}

	return geotiff.Encode(w, out, tags)
}

func toUint16(v float64) uint16 {
	if math.IsNaN(v) {
		return NoData
	}
	v = math.Round(v)
	if v < 1 {
		return 1
	}
	if v > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}
