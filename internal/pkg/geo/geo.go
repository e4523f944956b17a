// Package geo holds the small amount of spherical math the marketplace needs:
// great-circle distances and bounding boxes used to prefilter rows by lat/lng.
package geo

import "math"

const EarthRadiusKm = 6371.0088

type Point struct {
	Lat float64
	Lng float64
}

func (p Point) Valid() bool {
	if p.Lat == 0 && p.Lng == 0 {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// DistanceKm is the haversine great-circle distance between a and b.
func DistanceKm(a, b Point) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := lat2 - lat1
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

type BBox struct {
	South float64
	West  float64
	North float64
	East  float64
}

func (b BBox) Valid() bool {
	return b.South < b.North && b.South >= -90 && b.North <= 90 && b.West >= -180 && b.East <= 180 && b.West != b.East
}

// CrossesAntimeridian is true when West > East.
func (b BBox) CrossesAntimeridian() bool {
	return b.West > b.East
}

func (b BBox) Contains(p Point) bool {
	if p.Lat < b.South || p.Lat > b.North {
		return false
	}
	if b.CrossesAntimeridian() {
		return p.Lng >= b.West || p.Lng <= b.East
	}
	return p.Lng >= b.West && p.Lng <= b.East
}

// Around returns a box that encloses every point within radiusKm of center.
// The longitude half-width is the widest reach of the circle,
// asin(sin(d)/cos(lat)), which lies poleward of center.Lat. Near the poles
// the longitude span collapses to the full range.
func Around(center Point, radiusKm float64) BBox {
	d := radiusKm / EarthRadiusKm
	dLat := d * 180 / math.Pi
	south := math.Max(center.Lat-dLat, -90)
	north := math.Min(center.Lat+dLat, 90)
	cosLat := math.Cos(toRad(center.Lat))
	if d >= math.Pi/2 || cosLat < 1e-6 || north >= 90 || south <= -90 {
		return BBox{South: south, West: -180, North: north, East: 180}
	}
	ratio := math.Sin(d) / cosLat
	if ratio >= 1 {
		return BBox{South: south, West: -180, North: north, East: 180}
	}
	dLng := math.Asin(ratio) * 180 / math.Pi
	west := center.Lng - dLng
	east := center.Lng + dLng
	if west < -180 {
		west += 360
	}
	if east > 180 {
		east -= 360
	}
	return BBox{South: south, West: west, North: north, East: east}
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }
