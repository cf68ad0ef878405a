package loyalty

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultLocationID is the QR identifier of the flagship restaurant.
const DefaultLocationID = "tokyo-main"

// LocationID is the identifier encoded in an in-store QR code.
type LocationID struct {
	value string
}

// NewLocationID normalizes a QR identifier to lower case.
func NewLocationID(raw string) (LocationID, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return LocationID{}, fmt.Errorf("%w: empty value", ErrInvalidLocationID)
	}
	return LocationID{value: normalized}, nil
}

// String returns the normalized identifier.
func (id LocationID) String() string {
	return id.value
}

// Location is a geofenced restaurant.
type Location struct {
	LocationID   LocationID
	Name         string
	Coordinates  Coordinates
	RadiusMeters float64
}

// Contains reports whether a point lies inside the geofence, with the measured distance.
func (location Location) Contains(point Coordinates) (bool, float64) {
	distance := location.Coordinates.DistanceTo(point)
	return distance <= location.RadiusMeters, distance
}

// LocationRegistry maps QR identifiers to geofenced locations. It is read-only
// after construction.
type LocationRegistry struct {
	locations map[LocationID]Location
}

// NewLocationRegistry validates and indexes the given locations.
func NewLocationRegistry(locations ...Location) (*LocationRegistry, error) {
	indexed := make(map[LocationID]Location, len(locations))
	for _, location := range locations {
		if location.LocationID.String() == "" {
			return nil, fmt.Errorf("%w: empty value", ErrInvalidLocationID)
		}
		if _, err := NewCoordinates(location.Coordinates.Latitude, location.Coordinates.Longitude); err != nil {
			return nil, fmt.Errorf("location %s: %w", location.LocationID.String(), err)
		}
		if location.RadiusMeters <= 0 {
			location.RadiusMeters = DefaultGeofenceRadiusMeters
		}
		if _, exists := indexed[location.LocationID]; exists {
			return nil, fmt.Errorf("%w: duplicate location %s", ErrInvalidLocationID, location.LocationID.String())
		}
		indexed[location.LocationID] = location
	}
	return &LocationRegistry{locations: indexed}, nil
}

// DefaultLocationRegistry returns the compiled-in location table.
func DefaultLocationRegistry() *LocationRegistry {
	return &LocationRegistry{locations: map[LocationID]Location{
		{value: DefaultLocationID}: {
			LocationID:   LocationID{value: DefaultLocationID},
			Name:         "Tokyo Main",
			Coordinates:  Coordinates{Latitude: 35.6812, Longitude: 139.6314},
			RadiusMeters: DefaultGeofenceRadiusMeters,
		},
	}}
}

// Lookup resolves a raw QR identifier.
func (registry *LocationRegistry) Lookup(raw string) (Location, bool) {
	if registry == nil {
		return Location{}, false
	}
	locationID, err := NewLocationID(raw)
	if err != nil {
		return Location{}, false
	}
	location, ok := registry.locations[locationID]
	return location, ok
}

// Locations lists the registry ordered by identifier.
func (registry *LocationRegistry) Locations() []Location {
	if registry == nil {
		return nil
	}
	locations := make([]Location, 0, len(registry.locations))
	for _, location := range registry.locations {
		locations = append(locations, location)
	}
	sort.Slice(locations, func(left, right int) bool {
		return locations[left].LocationID.String() < locations[right].LocationID.String()
	})
	return locations
}
