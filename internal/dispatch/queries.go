package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"droneDispatchService/models"
	"droneDispatchService/repository"
)

// DroneView is the fleet-status projection of a drone.
type DroneView struct {
	ID               string  `json:"id"`
	Model            string  `json:"model"`
	ModelDescription string  `json:"model_description"`
	MaxPayloadKg     float64 `json:"max_payload_kg"`
	Battery          float64 `json:"battery"`
	State            string  `json:"state"`
	Location         string  `json:"location"`
}

// HistoryView is the dispatch-history projection of a record.
type HistoryView struct {
	ID          int64     `json:"id"`
	DroneID     string    `json:"drone_id"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Outcome     string    `json:"outcome"`
	Reason      string    `json:"reason"`
	OriginTemp  *float64  `json:"origin_temp,omitempty"`
	DestTemp    *float64  `json:"dest_temp,omitempty"`
	DistanceKm  *float64  `json:"distance_km,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// HistoryFilter narrows History.
type HistoryFilter struct {
	Outcome  string
	PageSize int
	BeforeID int64
}

// Fleet returns the status of every drone.
func (e *Engine) Fleet(ctx context.Context) ([]DroneView, error) {
	drones, err := e.drones.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list drones: %w", err)
	}
	out := make([]DroneView, 0, len(drones))
	for _, d := range drones {
		out = append(out, toDroneView(d))
	}
	return out, nil
}

// History returns dispatch records, newest first.
func (e *Engine) History(ctx context.Context, f HistoryFilter) ([]HistoryView, error) {
	p := repository.ListDispatchParams{PageSize: f.PageSize, BeforeID: f.BeforeID}
	if f.Outcome != "" {
		o := models.DispatchOutcome(strings.ToUpper(strings.TrimSpace(f.Outcome)))
		if !o.Valid() {
			return nil, fmt.Errorf("%w: unknown outcome %q", ErrInvalidRequest, f.Outcome)
		}
		p.Outcome = &o
	}
	recs, err := e.history.List(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("list dispatch history: %w", err)
	}
	return toHistoryViews(recs), nil
}

// DroneHistory returns the records of one drone, newest first. An unknown
// drone simply has no history.
func (e *Engine) DroneHistory(ctx context.Context, droneID string) ([]HistoryView, error) {
	droneID = strings.TrimSpace(droneID)
	if droneID == "" {
		return nil, fmt.Errorf("%w: drone_id must not be blank", ErrInvalidRequest)
	}
	recs, err := e.history.ListByDrone(ctx, droneID)
	if err != nil {
		return nil, fmt.Errorf("list history for %s: %w", droneID, err)
	}
	return toHistoryViews(recs), nil
}

func toDroneView(d *models.Drone) DroneView {
	return DroneView{
		ID:               d.ID,
		Model:            d.Model.String(),
		ModelDescription: d.Model.Description(),
		MaxPayloadKg:     d.Model.MaxPayloadKg(),
		Battery:          d.Battery,
		State:            d.State.String(),
		Location:         d.Location,
	}
}

func toHistoryViews(recs []models.DispatchRecord) []HistoryView {
	out := make([]HistoryView, 0, len(recs))
	for _, r := range recs {
		v := HistoryView{
			ID:          r.ID,
			DroneID:     r.DroneID,
			Origin:      r.Origin,
			Destination: r.Destination,
			Outcome:     r.Outcome.String(),
			Reason:      r.Reason,
			DistanceKm:  r.DistanceKm,
			Timestamp:   r.Timestamp,
		}
		if r.OriginWeather != nil {
			t := r.OriginWeather.Temperature
			v.OriginTemp = &t
		}
		if r.DestWeather != nil {
			t := r.DestWeather.Temperature
			v.DestTemp = &t
		}
		out = append(out, v)
	}
	return out
}
