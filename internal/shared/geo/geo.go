package geo

import (
	"math"
	"time"
)

const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate pair. The zero value means "position unknown":
// backend records default to (0,0) before a party ever reports, and that point
// must never be treated as a real location.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Known reports whether p carries a usable coordinate pair.
func (p Point) Known() bool {
	return p.Valid() && !(p.Lat == 0 && p.Lng == 0)
}

// Valid reports whether both coordinates are finite and in range.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsInf(p.Lat, 0) || math.IsNaN(p.Lng) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func rad(deg float64) float64 {
	return deg * math.Pi / 180
}

// ETAMinutes estimates travel time between two points as great-circle distance
// at the given average speed, rounded up and never below one minute.
func ETAMinutes(from, to Point, speedKmh float64) int {
	if speedKmh <= 0 {
		speedKmh = 1
	}
	hours := HaversineKm(from.Lat, from.Lng, to.Lat, to.Lng) / speedKmh
	min := int(math.Ceil(hours * 60))
	if min < 1 {
		min = 1
	}
	return min
}

// ETADuration is ETAMinutes expressed as a time.Duration.
func ETADuration(from, to Point, speedKmh float64) time.Duration {
	return time.Duration(ETAMinutes(from, to, speedKmh)) * time.Minute
}

// Bounds is a rectangular viewport in coordinate space.
type Bounds struct {
	SouthWest Point
	NorthEast Point
}

// BoundsAround returns a square viewport centered on p, spanning roughly
// spanKm kilometres in each direction.
func BoundsAround(p Point, spanKm float64) Bounds {
	dLat := spanKm / 111.0
	dLng := spanKm / (111.0 * math.Max(math.Cos(rad(p.Lat)), 0.01))
	return Bounds{
		SouthWest: Point{Lat: p.Lat - dLat, Lng: p.Lng - dLng},
		NorthEast: Point{Lat: p.Lat + dLat, Lng: p.Lng + dLng},
	}
}

// BoundsOf returns the smallest bounds containing every given point.
func BoundsOf(points ...Point) Bounds {
	b := Bounds{
		SouthWest: Point{Lat: math.MaxFloat64, Lng: math.MaxFloat64},
		NorthEast: Point{Lat: -math.MaxFloat64, Lng: -math.MaxFloat64},
	}
	for _, p := range points {
		b.SouthWest.Lat = math.Min(b.SouthWest.Lat, p.Lat)
		b.SouthWest.Lng = math.Min(b.SouthWest.Lng, p.Lng)
		b.NorthEast.Lat = math.Max(b.NorthEast.Lat, p.Lat)
		b.NorthEast.Lng = math.Max(b.NorthEast.Lng, p.Lng)
	}
	return b
}

func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.SouthWest.Lat && p.Lat <= b.NorthEast.Lat &&
		p.Lng >= b.SouthWest.Lng && p.Lng <= b.NorthEast.Lng
}

// Pad grows the bounds by the given fraction of its own span on every side.
func (b Bounds) Pad(fraction float64) Bounds {
	dLat := (b.NorthEast.Lat - b.SouthWest.Lat) * fraction
	dLng := (b.NorthEast.Lng - b.SouthWest.Lng) * fraction
	return Bounds{
		SouthWest: Point{Lat: b.SouthWest.Lat - dLat, Lng: b.SouthWest.Lng - dLng},
		NorthEast: Point{Lat: b.NorthEast.Lat + dLat, Lng: b.NorthEast.Lng + dLng},
	}
}

func (b Bounds) Center() Point {
	return Point{
		Lat: (b.SouthWest.Lat + b.NorthEast.Lat) / 2,
		Lng: (b.SouthWest.Lng + b.NorthEast.Lng) / 2,
	}
}
