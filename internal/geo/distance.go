// Package geo provides great-circle distance and nearest-site search for store matching.
package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

// EarthRadiusKM is the mean Earth radius used by DistanceKM.
const EarthRadiusKM = 6371.0

// SRID is the spatial reference used when points are persisted (WGS84).
const SRID = 4326

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Valid reports whether p is a finite coordinate inside the WGS84 range.
// The zero point (0, 0) is treated as missing: source exports use it as a
// placeholder when the device did not report a fix.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return false
	}
	return p.Lat != 0 || p.Lon != 0
}

// Geom returns p as a go-geom point (x=lon, y=lat) tagged with SRID 4326.
func (p Point) Geom() *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat}).SetSRID(SRID)
}

// FromGeom converts a go-geom XY point back into a Point.
func FromGeom(g *geom.Point) Point {
	if g == nil || g.Empty() {
		return Point{}
	}
	return Point{Lat: g.Y(), Lon: g.X()}
}

// DistanceKM returns the Haversine distance between a and b in kilometers.
func DistanceKM(a, b Point) float64 {
	lat1 := degToRad(a.Lat)
	lat2 := degToRad(b.Lat)
	dLat := lat2 - lat1
	dLon := degToRad(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKM * c
}

func degToRad(d float64) float64 {
	return d * math.Pi / 180
}
