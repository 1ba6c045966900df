package geo

import (
	"math"
	"math/rand"

	"github.com/example/ridehail/internal/models"
)

// Haversine distance in meters
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	const R = 6371000.0
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}

// Distance is Haversine over a Location pair.
func Distance(a, b models.Location) float64 {
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Jitter offsets loc by up to maxDeg in each axis. Used to seed a driver
// position "near pickup" when a ride is accepted; planar approximation is
// fine at this scale.
func Jitter(loc models.Location, maxDeg float64, rng *rand.Rand) models.Location {
	return models.Location{
		Lat: loc.Lat + (rng.Float64()*2-1)*maxDeg,
		Lng: loc.Lng + (rng.Float64()*2-1)*maxDeg,
	}
}
