// Package safety decides whether weather and distance permit a flight.
package safety

import (
	"errors"
	"fmt"

	"droneDispatchService/internal/geo"
	"droneDispatchService/internal/weather"
)

// Rules holds the operational thresholds. They come from configuration.
type Rules struct {
	MaxRangeKm         float64 `koanf:"max_range_km"`
	MaxWindSpeed       float64 `koanf:"max_wind_speed"`
	MinTemperature     float64 `koanf:"min_temperature"`
	StormCodeThreshold int     `koanf:"storm_code_threshold"`
}

// DefaultRules returns the stock thresholds.
func DefaultRules() Rules {
	return Rules{
		MaxRangeKm:         100,
		MaxWindSpeed:       30,
		MinTemperature:     -10,
		StormCodeThreshold: 50,
	}
}

// Validate rejects thresholds that would make every flight impossible.
func (r Rules) Validate() error {
	if r.MaxRangeKm <= 0 {
		return fmt.Errorf("max_range_km must be positive, got %v", r.MaxRangeKm)
	}
	if r.MaxWindSpeed <= 0 {
		return errors.New("max_wind_speed must be positive")
	}
	return nil
}

// IsUnsafe reports whether s forbids takeoff. A missing snapshot is unsafe.
func (r Rules) IsUnsafe(s *weather.Snapshot) bool {
	if s == nil {
		return true
	}
	return s.WindSpeed >= r.MaxWindSpeed ||
		s.Temperature <= r.MinTemperature ||
		s.WeatherCode >= r.StormCodeThreshold
}

// Distance returns the great-circle distance between two snapshots in km.
func Distance(origin, dest *weather.Snapshot) float64 {
	return geo.HaversineKm(origin.Latitude, origin.Longitude, dest.Latitude, dest.Longitude)
}

// ExceedsRange reports whether km is beyond the configured maximum range.
func (r Rules) ExceedsRange(km float64) bool {
	return km > r.MaxRangeKm
}
