package naming

import (
	"fmt"
	"math"
	"strings"
)

// SanitizeCoordinate formats a coordinate for use in file names and object
// keys (no minus sign, N/S/E/W suffix, 'p' instead of the decimal point)
func SanitizeCoordinate(coord float64, isLat bool) string {
	var dir string
	if isLat {
		if coord < 0 {
			dir = "S"
		} else {
			dir = "N"
		}
	} else {
		if coord < 0 {
			dir = "W"
		} else {
			dir = "E"
		}
	}
	coordStr := fmt.Sprintf("%.4f", math.Abs(coord))
	coordStr = strings.Replace(coordStr, ".", "p", 1)
	return coordStr + dir
}
