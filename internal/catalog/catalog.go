// Package catalog reads restaurant locations and reward definitions from YAML.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/MarkoPoloResearchLab/loyalty/pkg/loyalty"
	"gopkg.in/yaml.v3"
)

// ErrInvalidCatalog reports a catalog document that cannot be used.
var ErrInvalidCatalog = errors.New("invalid catalog")

// Catalog is the parsed content of a catalog file.
type Catalog struct {
	Locations *loyalty.LocationRegistry
	Rewards   []loyalty.Reward
}

type document struct {
	Locations []locationDocument `yaml:"locations"`
	Rewards   []rewardDocument   `yaml:"rewards"`
}

type locationDocument struct {
	ID           string  `yaml:"id"`
	Name         string  `yaml:"name"`
	Latitude     float64 `yaml:"latitude"`
	Longitude    float64 `yaml:"longitude"`
	RadiusMeters float64 `yaml:"radius_meters"`
}

type localizedDocument struct {
	Japanese string `yaml:"ja"`
	English  string `yaml:"en"`
}

type rewardDocument struct {
	ID          string            `yaml:"id"`
	PointsCost  int64             `yaml:"points_cost"`
	Category    string            `yaml:"category"`
	Active      *bool             `yaml:"active"`
	Name        localizedDocument `yaml:"name"`
	Description localizedDocument `yaml:"description"`
}

// Load reads and parses the catalog at path.
func Load(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a catalog document. An empty locations list leaves
// Locations nil so callers keep the compiled-in registry.
func Parse(data []byte) (Catalog, error) {
	var raw document
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Catalog{}, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	var catalog Catalog
	if len(raw.Locations) > 0 {
		locations := make([]loyalty.Location, 0, len(raw.Locations))
		for index, entry := range raw.Locations {
			location, err := entry.toLocation()
			if err != nil {
				return Catalog{}, fmt.Errorf("%w: locations[%d]: %v", ErrInvalidCatalog, index, err)
			}
			locations = append(locations, location)
		}
		registry, err := loyalty.NewLocationRegistry(locations...)
		if err != nil {
			return Catalog{}, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
		}
		catalog.Locations = registry
	}

	seen := make(map[string]struct{}, len(raw.Rewards))
	for index, entry := range raw.Rewards {
		reward, err := entry.toReward()
		if err != nil {
			return Catalog{}, fmt.Errorf("%w: rewards[%d]: %v", ErrInvalidCatalog, index, err)
		}
		if _, duplicate := seen[reward.RewardID.String()]; duplicate {
			return Catalog{}, fmt.Errorf("%w: duplicate reward %s", ErrInvalidCatalog, reward.RewardID.String())
		}
		seen[reward.RewardID.String()] = struct{}{}
		catalog.Rewards = append(catalog.Rewards, reward)
	}
	return catalog, nil
}

func (entry locationDocument) toLocation() (loyalty.Location, error) {
	locationID, err := loyalty.NewLocationID(entry.ID)
	if err != nil {
		return loyalty.Location{}, err
	}
	coordinates, err := loyalty.NewCoordinates(entry.Latitude, entry.Longitude)
	if err != nil {
		return loyalty.Location{}, err
	}
	if entry.RadiusMeters < 0 {
		return loyalty.Location{}, fmt.Errorf("negative radius %v", entry.RadiusMeters)
	}
	return loyalty.Location{
		LocationID:   locationID,
		Name:         strings.TrimSpace(entry.Name),
		Coordinates:  coordinates,
		RadiusMeters: entry.RadiusMeters,
	}, nil
}

func (entry rewardDocument) toReward() (loyalty.Reward, error) {
	rewardID, err := loyalty.NewRewardID(entry.ID)
	if err != nil {
		return loyalty.Reward{}, err
	}
	cost, err := loyalty.NewPositivePoints(entry.PointsCost)
	if err != nil {
		return loyalty.Reward{}, err
	}
	category, err := loyalty.ParseRewardCategory(entry.Category)
	if err != nil {
		return loyalty.Reward{}, err
	}
	active := true
	if entry.Active != nil {
		active = *entry.Active
	}
	return loyalty.Reward{
		RewardID:    rewardID,
		PointsCost:  cost,
		Category:    category,
		Name:        loyalty.LocalizedText{Japanese: entry.Name.Japanese, English: entry.Name.English},
		Description: loyalty.LocalizedText{Japanese: entry.Description.Japanese, English: entry.Description.English},
		Active:      active,
	}, nil
}
