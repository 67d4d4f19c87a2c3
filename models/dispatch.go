package models

import "time"

// DispatchOutcome is the decision reached for a dispatch attempt.
type DispatchOutcome string

const (
	DispatchOutcomeApproved DispatchOutcome = "APPROVED"
	DispatchOutcomeRejected DispatchOutcome = "REJECTED"
)

// Valid reports whether o is a known outcome.
func (o DispatchOutcome) Valid() bool {
	switch o {
	case DispatchOutcomeApproved, DispatchOutcomeRejected:
		return true
	default:
		return false
	}
}

func (o DispatchOutcome) String() string { return string(o) }

// WeatherConditions is the part of a weather reading archived with a dispatch record.
type WeatherConditions struct {
	Temperature float64 `json:"temperature"`
	WindSpeed   float64 `json:"wind_speed"`
	WeatherCode int     `json:"weather_code"`
}

// DispatchRecord is the immutable audit entry written once per dispatch attempt.
// Weather and distance are nil when the attempt was rejected before they were known.
type DispatchRecord struct {
	ID            int64              `db:"id" json:"id"`
	AttemptID     string             `db:"attempt_id" json:"attempt_id"`
	DroneID       string             `db:"drone_id" json:"drone_id"`
	Origin        string             `db:"origin" json:"origin"`
	Destination   string             `db:"destination" json:"destination"`
	Outcome       DispatchOutcome    `db:"outcome" json:"outcome"`
	Reason        string             `db:"reason" json:"reason"`
	OriginWeather *WeatherConditions `json:"origin_weather,omitempty"`
	DestWeather   *WeatherConditions `json:"dest_weather,omitempty"`
	DistanceKm    *float64           `db:"distance_km" json:"distance_km,omitempty"`
	Timestamp     time.Time          `db:"created_at" json:"timestamp"`
}
