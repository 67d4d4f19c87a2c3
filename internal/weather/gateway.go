// Package weather looks up current conditions for a named location from the
// upstream weather service.
package weather

import (
	"context"
	"errors"

	"droneDispatchService/models"
)

var (
	// ErrLocationNotFound is returned when the upstream rejects the location (HTTP 4xx).
	ErrLocationNotFound = errors.New("weather data not found for location")
	// ErrUnavailable is returned when the upstream is down, times out, or answers garbage.
	ErrUnavailable = errors.New("weather service is currently unavailable")
)

// Snapshot is the current weather at a location.
type Snapshot struct {
	Location    string
	Temperature float64 // °C
	WindSpeed   float64 // km/h
	WeatherCode int
	Latitude    float64
	Longitude   float64
}

// Conditions returns the archived subset of the snapshot.
func (s *Snapshot) Conditions() *models.WeatherConditions {
	if s == nil {
		return nil
	}
	return &models.WeatherConditions{
		Temperature: s.Temperature,
		WindSpeed:   s.WindSpeed,
		WeatherCode: s.WeatherCode,
	}
}

// Gateway returns current weather for a location name.
type Gateway interface {
	GetWeather(ctx context.Context, location string) (*Snapshot, error)
}
