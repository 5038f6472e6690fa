package naming

import (
	"fmt"
	"strings"

	"phase-viewer/internal/common"
)

// ExportName builds the human-readable job name
// Format: {site}_PHASE_{yyyymmdd}
func ExportName(site, day string) string {
	return fmt.Sprintf("%s_PHASE_%s", site, common.CompactDay(day))
}

// GeoTIFFFilename returns the file name an export job writes
// Format: {name}.tif
func GeoTIFFFilename(name string) string {
	return sanitizeName(name) + ".tif"
}

// ObjectKey builds the storage key for an export
// Format: {prefix}/{site}/{lat}_{lon}/{name}.tif
func ObjectKey(prefix, site string, lon, lat float64, name string) string {
	parts := []string{}
	if p := strings.Trim(prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts,
		sanitizeName(site),
		SanitizeCoordinate(lat, true)+"_"+SanitizeCoordinate(lon, false),
		GeoTIFFFilename(name))
	return strings.Join(parts, "/")
}

// sanitizeName replaces characters that are unsafe in file names
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, name)
}
