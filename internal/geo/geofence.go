// Package geo provides geofence breach evaluation.
package geo

import "math"

// FenceType identifies the geometry of a geofence.
type FenceType string

const (
	FenceCircle  FenceType = "circle"
	FencePolygon FenceType = "polygon"
)

// meanEarthRadiusM is the mean Earth radius used for great-circle distance.
const meanEarthRadiusM = 6371000.0

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Geofence is a named circular or polygonal boundary.
// Circle fences use Center and RadiusM; polygon fences use Vertices,
// whose order defines the edges with an implicit closing edge from the
// last vertex back to the first. Convexity is not assumed.
type Geofence struct {
	ID       string    `json:"id" yaml:"id"`
	Name     string    `json:"name,omitempty" yaml:"name,omitempty"`
	Type     FenceType `json:"type" yaml:"type"`
	Center   Point     `json:"center,omitempty" yaml:"center,omitempty"`
	RadiusM  float64   `json:"radius_m,omitempty" yaml:"radius_m,omitempty"`
	Vertices []Point   `json:"vertices,omitempty" yaml:"vertices,omitempty"`
}

// Distance returns the great-circle distance in meters between two points
// using the haversine formula.
func Distance(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * meanEarthRadiusM * math.Asin(math.Sqrt(h))
}

// Contains reports whether the point lies inside the fence.
// Behavior for points exactly on a circle radius or polygon edge is
// left to floating point.
func (g *Geofence) Contains(p Point) bool {
	switch g.Type {
	case FenceCircle:
		return Distance(g.Center, p) <= g.RadiusM
	case FencePolygon:
		return pointInPolygon(p, g.Vertices)
	default:
		return true
	}
}

// Breach reports whether the point lies outside the fence.
func (g *Geofence) Breach(p Point) bool {
	return !g.Contains(p)
}

// pointInPolygon implements the standard ray-casting test over the
// ordered vertex list.
func pointInPolygon(p Point, vs []Point) bool {
	if len(vs) < 3 {
		return false
	}
	inside := false
	j := len(vs) - 1
	for i := 0; i < len(vs); i++ {
		vi, vj := vs[i], vs[j]
		if (vi.Lat > p.Lat) != (vj.Lat > p.Lat) &&
			p.Lon < (vj.Lon-vi.Lon)*(p.Lat-vi.Lat)/(vj.Lat-vi.Lat)+vi.Lon {
			inside = !inside
		}
		j = i
	}
	return inside
}
