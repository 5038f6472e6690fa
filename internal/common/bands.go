package common

// Sentinel-2 band names used by the viewer
const (
	BandBlue  = "B2"
	BandGreen = "B3"
	BandRed   = "B4"
	BandNIR   = "B8"
	BandSWIR1 = "B11"
	BandSWIR2 = "B12"
)

// CollectionS2Harmonized is the surface-reflectance collection the viewer queries
const CollectionS2Harmonized = "COPERNICUS/S2_SR_HARMONIZED"

var (
	// SourceBands is the band subset kept from every catalog image
	SourceBands = []string{BandBlue, BandGreen, BandRed, BandNIR, BandSWIR1, BandSWIR2}

	// TrueColorBands is the display triple for Standard and Enhanced layers
	TrueColorBands = []string{BandRed, BandGreen, BandBlue}

	// FalseColorBands is the NIR-R-G display triple
	FalseColorBands = []string{BandNIR, BandRed, BandGreen}
)
