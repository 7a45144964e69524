// Package geo provides great-circle distance and unit helpers shared by the
// motion and proximity loops.
package geo

import (
	"math"
	"time"
)

const (
	earthRadiusMeters = 6371000

	metersPerMile = 1609.344
	metersPerFoot = 0.3048
)

// Coordinate is a WGS84 latitude/longitude pair in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Distance returns the haversine great-circle distance between a and b in
// meters. It is symmetric and Distance(a, a) == 0.
func Distance(a, b Coordinate) float64 {
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	// Clamp rounding noise so antipodal points never produce NaN.
	h = math.Min(1, math.Max(0, h))
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Speed returns meters per second for a displacement over elapsed.
// Non-positive elapsed yields 0.
func Speed(meters float64, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return meters / elapsed.Seconds()
}

// MPHToMPS converts miles per hour to meters per second.
func MPHToMPS(mph float64) float64 {
	return mph * metersPerMile / 3600
}

// FeetToMeters converts feet to meters.
func FeetToMeters(ft float64) float64 {
	return ft * metersPerFoot
}

// Valid reports whether c lies within the WGS84 coordinate ranges.
func (c Coordinate) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
