package loyalty

import (
	"fmt"
	"math"
)

const earthRadiusMeters = 6371000.0

// Coordinates is a validated latitude/longitude pair in degrees.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// NewCoordinates rejects missing or out-of-range geolocation.
func NewCoordinates(latitude float64, longitude float64) (Coordinates, error) {
	if math.IsNaN(latitude) || math.IsNaN(longitude) || math.IsInf(latitude, 0) || math.IsInf(longitude, 0) {
		return Coordinates{}, fmt.Errorf("%w: not a number", ErrInvalidCoordinates)
	}
	if latitude < -90 || latitude > 90 {
		return Coordinates{}, fmt.Errorf("%w: latitude %f out of range", ErrInvalidCoordinates, latitude)
	}
	if longitude < -180 || longitude > 180 {
		return Coordinates{}, fmt.Errorf("%w: longitude %f out of range", ErrInvalidCoordinates, longitude)
	}
	return Coordinates{Latitude: latitude, Longitude: longitude}, nil
}

// DistanceTo returns the great-circle distance to another point in meters.
func (coordinates Coordinates) DistanceTo(other Coordinates) float64 {
	return DistanceMeters(coordinates.Latitude, coordinates.Longitude, other.Latitude, other.Longitude)
}

// DistanceMeters computes the haversine distance between two points.
func DistanceMeters(latitude1, longitude1, latitude2, longitude2 float64) float64 {
	latitude1Rad := toRadians(latitude1)
	latitude2Rad := toRadians(latitude2)
	deltaLatitude := toRadians(latitude2 - latitude1)
	deltaLongitude := toRadians(longitude2 - longitude1)

	a := math.Sin(deltaLatitude/2)*math.Sin(deltaLatitude/2) +
		math.Cos(latitude1Rad)*math.Cos(latitude2Rad)*math.Sin(deltaLongitude/2)*math.Sin(deltaLongitude/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
