// Package geo holds the one great-circle distance function used across
// the engine, so the matcher's ordering and the arrival precondition can
// never disagree on what "distance" means.
package geo

import (
	"math"

	"taskhive/internal/models"
)

const earthRadiusM = 6371000.0

// DistanceM returns the haversine great-circle distance between two
// points in meters.
func DistanceM(a, b models.Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(h))
}

// WithinM reports whether two points are within radiusM meters of each other.
func WithinM(a, b models.Point, radiusM float64) bool {
	return DistanceM(a, b) <= radiusM
}
