// Package geotiff writes uncompressed 16-bit GeoTIFFs in geographic
// (EPSG:4326) coordinates.
package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
)

const (
	DataType_Byte     = 1
	DataType_ASCII    = 2
	DataType_Short    = 3
	DataType_Long     = 4
	DataType_Rational = 5
	DataType_Double   = 12

	TagType_ImageWidth                = 256
	TagType_ImageLength               = 257
	TagType_BitsPerSample             = 258
	TagType_Compression               = 259
	TagType_PhotometricInterpretation = 262
	TagType_ImageDescription          = 270
	TagType_StripOffsets              = 273
	TagType_SamplesPerPixel           = 277
	TagType_RowsPerStrip              = 278
	TagType_StripByteCounts           = 279
	TagType_XResolution               = 282
	TagType_YResolution               = 283
	TagType_PlanarConfiguration       = 284
	TagType_ResolutionUnit            = 296
	TagType_SampleFormat              = 339

	// GeoTIFF Tags
	TagType_ModelPixelScaleTag = 33550
	TagType_ModelTiepointTag   = 33922
	TagType_GeoKeyDirectoryTag = 34735
	TagType_GeoDoubleParamsTag = 34736
	TagType_GeoAsciiParamsTag  = 34737

	// GDAL extension
	TagType_GDALNoData = 42113
)

var enc = binary.LittleEndian

// Image is an interleaved 16-bit raster with one (gray) or three (RGB)
// samples per pixel
type Image struct {
	Width   int
	Height  int
	Samples int
	Pix     []uint16
}

// NewImage allocates a zeroed image
func NewImage(width, height, samples int) *Image {
	return &Image{Width: width, Height: height, Samples: samples, Pix: make([]uint16, width*height*samples)}
}

// Set stores sample s of pixel (x, y)
func (m *Image) Set(x, y, s int, v uint16) {
	m.Pix[(y*m.Width+x)*m.Samples+s] = v
}

// At returns sample s of pixel (x, y)
func (m *Image) At(x, y, s int) uint16 {
	return m.Pix[(y*m.Width+x)*m.Samples+s]
}

func (m *Image) validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", m.Width, m.Height)
	}
	if m.Samples != 1 && m.Samples != 3 {
		return fmt.Errorf("unsupported samples per pixel: %d (must be 1 or 3)", m.Samples)
	}
	if len(m.Pix) != m.Width*m.Height*m.Samples {
		return fmt.Errorf("pixel buffer has %d samples, want %d", len(m.Pix), m.Width*m.Height*m.Samples)
	}
	return nil
}

// Georeference places the image in EPSG:4326. Origin is the north-west corner
// of the top-left pixel; pixel sizes are in degrees.
type Georeference struct {
	OriginLon   float64
	OriginLat   float64
	PixelWidth  float64
	PixelHeight float64
}

// GeoTags returns the ModelPixelScale, ModelTiepoint and GeoKeyDirectory tags
// for ref, plus a GDAL nodata tag when noData is non-nil
func GeoTags(ref Georeference, noData *float64) map[uint16]interface{} {
	tags := map[uint16]interface{}{
		TagType_ModelPixelScaleTag: []float64{ref.PixelWidth, ref.PixelHeight, 0},
		TagType_ModelTiepointTag:   []float64{0, 0, 0, ref.OriginLon, ref.OriginLat, 0},
		TagType_GeoKeyDirectoryTag: []uint16{
			1, 1, 0, 3,       // version 1.1.0, 3 keys
			1024, 0, 1, 2,    // GTModelType = Geographic
			1025, 0, 1, 1,    // GTRasterType = PixelIsArea
			2048, 0, 1, 4326, // GeographicType = WGS 84
		},
	}
	if noData != nil {
		tags[TagType_GDALNoData] = strconv.FormatFloat(*noData, 'f', -1, 64)
	}
	return tags
}

type ifdEntry struct {
	tag      uint16
	datatype uint16
	count    uint32
	data     []byte
}

type byTag []ifdEntry

func (d byTag) Len() int           { return len(d) }
func (d byTag) Less(i, j int) bool { return d[i].tag < d[j].tag }
func (d byTag) Swap(i, j int)      { d[i], d[j] = d[j], d[i] }

// Encode writes m to w as an uncompressed little-endian 16-bit TIFF.
// extraTags is a map of TagID -> value.
// Supported value types: []uint16 (SHORT), []float64 (DOUBLE), string (ASCII).
func Encode(w io.Writer, m *Image, extraTags map[uint16]interface{}) error {
	if err := m.validate(); err != nil {
		return err
	}

	// Header: II, 42, first IFD at offset 8
	header := []byte{'I', 'I', 0x2A, 0x00, 0x08, 0x00, 0x00, 0x00}
	if _, err := w.Write(header); err != nil {
		return err
	}

	pixels := make([]byte, 2*len(m.Pix))
	for i, v := range m.Pix {
		enc.PutUint16(pixels[i*2:], v)
	}
	imageLen := uint32(len(pixels))

	var entries []ifdEntry
	addEntry := func(tag uint16, datatype uint16, count uint32, data []byte) {
		entries = append(entries, ifdEntry{tag, datatype, count, data})
	}

	bits := make([]uint16, m.Samples)
	formats := make([]uint16, m.Samples)
	for i := range bits {
		bits[i] = 16
		formats[i] = 1 // unsigned integer
	}
	photometric := uint16(1) // BlackIsZero
	if m.Samples == 3 {
		photometric = 2 // RGB
	}

	addEntry(TagType_ImageWidth, DataType_Long, 1, enc32(uint32(m.Width)))
	addEntry(TagType_ImageLength, DataType_Long, 1, enc32(uint32(m.Height)))
	addEntry(TagType_BitsPerSample, DataType_Short, uint32(m.Samples), enc16s(bits))
	addEntry(TagType_Compression, DataType_Short, 1, enc16(1)) // None
	addEntry(TagType_PhotometricInterpretation, DataType_Short, 1, enc16(photometric))
	addEntry(TagType_SamplesPerPixel, DataType_Short, 1, enc16(uint16(m.Samples)))
	addEntry(TagType_RowsPerStrip, DataType_Long, 1, enc32(uint32(m.Height)))
	addEntry(TagType_XResolution, DataType_Rational, 1, encRational(72, 1))
	addEntry(TagType_YResolution, DataType_Rational, 1, encRational(72, 1))
	addEntry(TagType_PlanarConfiguration, DataType_Short, 1, enc16(1)) // Chunky
	addEntry(TagType_ResolutionUnit, DataType_Short, 1, enc16(2))      // Inch
	addEntry(TagType_SampleFormat, DataType_Short, uint32(m.Samples), enc16s(formats))

	// Single strip; offsets are patched once the layout is known
	addEntry(TagType_StripOffsets, DataType_Long, 1, make([]byte, 4))
	addEntry(TagType_StripByteCounts, DataType_Long, 1, enc32(imageLen))

	for tag, val := range extraTags {
		switch v := val.(type) {
		case []uint16:
			addEntry(tag, DataType_Short, uint32(len(v)), enc16s(v))
		case []float64:
			addEntry(tag, DataType_Double, uint32(len(v)), encDoubles(v))
		case string:
			// ASCII needs null terminator
			b := append([]byte(v), 0)
			addEntry(tag, DataType_ASCII, uint32(len(b)), b)
		default:
			return fmt.Errorf("unsupported tag value type for tag %d", tag)
		}
	}

	sort.Sort(byTag(entries))

	// Layout: header (8) | IFD (2 + 12*N + 4) | large values | pixels
	ifdSize := 2 + 12*len(entries) + 4
	valueDataOffset := 8 + ifdSize

	// Values longer than 4 bytes move to the data area; the entry keeps the offset
	var largeDataBuf bytes.Buffer
	for i := range entries {
		e := &entries[i]
		if len(e.data) > 4 {
			currentOffset := uint32(valueDataOffset + largeDataBuf.Len())
			largeDataBuf.Write(e.data)
			// keep word alignment for the next value
			if largeDataBuf.Len()%2 == 1 {
				largeDataBuf.WriteByte(0)
			}
			e.data = enc32(currentOffset)
		}
	}

	pixelsOffset := uint32(valueDataOffset + largeDataBuf.Len())
	for i := range entries {
		if entries[i].tag == TagType_StripOffsets {
			entries[i].data = enc32(pixelsOffset)
		}
	}

	if err := binary.Write(w, enc, uint16(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := binary.Write(w, enc, e.tag); err != nil {
			return err
		}
		if err := binary.Write(w, enc, e.datatype); err != nil {
			return err
		}
		if err := binary.Write(w, enc, e.count); err != nil {
			return err
		}
		// Value/offset field is always 4 bytes, left-aligned
		var val [4]byte
		copy(val[:], e.data)
		if _, err := w.Write(val[:]); err != nil {
			return err
		}
	}

	// Next IFD offset (none)
	if err := binary.Write(w, enc, uint32(0)); err != nil {
		return err
	}
	if _, err := largeDataBuf.WriteTo(w); err != nil {
		return err
	}
	if _, err := w.Write(pixels); err != nil {
		return err
	}
	return nil
}

// Helpers

func enc16(v uint16) []byte {
	b := make([]byte, 2)
	enc.PutUint16(b, v)
	return b
}

func enc32(v uint32) []byte {
	b := make([]byte, 4)
	enc.PutUint32(b, v)
	return b
}

func enc16s(vs []uint16) []byte {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		enc.PutUint16(b[i*2:], v)
	}
	return b
}

func encDoubles(vs []float64) []byte {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		enc.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return b
}

func encRational(num, den uint32) []byte {
	b := make([]byte, 8)
	enc.PutUint32(b[:4], num)
	enc.PutUint32(b[4:], den)
	return b
}
