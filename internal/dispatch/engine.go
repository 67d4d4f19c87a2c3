// Package dispatch decides whether a drone may fly a requested leg and
// records every decided attempt.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"droneDispatchService/internal/events"
	"droneDispatchService/internal/metrics"
	"droneDispatchService/internal/safety"
	"droneDispatchService/internal/weather"
	"droneDispatchService/models"
	"droneDispatchService/repository"
)

var (
	// ErrDroneNotFound aborts an attempt before anything is recorded.
	ErrDroneNotFound = errors.New("drone not found")
	// ErrInvalidRequest is returned for blank request fields.
	ErrInvalidRequest = errors.New("invalid dispatch request")
)

// ReasonApproved is the reason stored with every approval.
const ReasonApproved = "Flight approved. Conditions optimal."

// Request asks for droneID to fly from Origin to Destination.
type Request struct {
	DroneID     string
	Origin      string
	Destination string
}

func (r Request) normalized() Request {
	return Request{
		DroneID:     strings.TrimSpace(r.DroneID),
		Origin:      strings.TrimSpace(r.Origin),
		Destination: strings.TrimSpace(r.Destination),
	}
}

// Validate reports every blank field.
func (r Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.DroneID) == "" {
		missing = append(missing, "drone_id")
	}
	if strings.TrimSpace(r.Origin) == "" {
		missing = append(missing, "origin")
	}
	if strings.TrimSpace(r.Destination) == "" {
		missing = append(missing, "destination")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s must not be blank", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// Decision is the result of a decided attempt. Rejections are decisions, not errors.
type Decision struct {
	DroneID string
	Outcome models.DispatchOutcome
	Reason  string
	Record  *models.DispatchRecord
}

// Approved reports whether the flight was approved.
func (d *Decision) Approved() bool { return d.Outcome == models.DispatchOutcomeApproved }

// Engine is the dispatch decision engine.
type Engine struct {
	drones  repository.DroneRepositoryI
	history repository.DispatchRepositoryI
	tx      repository.TxRunner
	weather weather.Gateway
	rules   safety.Rules

	log     zerolog.Logger
	metrics metrics.Recorder
	events  events.Publisher
	now     func() time.Time
	newID   func() string
}

// Option customizes an Engine.
type Option func(*Engine)

func WithLogger(l zerolog.Logger) Option { return func(e *Engine) { e.log = l } }

func WithMetrics(m metrics.Recorder) Option { return func(e *Engine) { e.metrics = m } }

func WithEvents(p events.Publisher) Option { return func(e *Engine) { e.events = p } }

// WithClock overrides the timestamp source for dispatch records.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithIDGenerator overrides attempt id generation.
func WithIDGenerator(f func() string) Option { return func(e *Engine) { e.newID = f } }

// NewEngine wires an engine. tx must run units of work over the same data as
// drones and history.
func NewEngine(drones repository.DroneRepositoryI, history repository.DispatchRepositoryI, tx repository.TxRunner, gw weather.Gateway, rules safety.Rules, opts ...Option) *Engine {
	e := &Engine{
		drones:  drones,
		history: history,
		tx:      tx,
		weather: gw,
		rules:   rules,
		log:     zerolog.Nop(),
		metrics: metrics.Nop{},
		events:  events.Nop{},
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the thresholds the engine decides with.
func (e *Engine) Rules() safety.Rules { return e.rules }

// Dispatch evaluates req, cheapest checks first, and records the decision.
// It returns an error without recording anything when the drone is unknown,
// the weather service fails, or the drone changed concurrently.
func (e *Engine) Dispatch(ctx context.Context, req Request) (*Decision, error) {
	req = req.normalized()
	if err := req.Validate(); err != nil {
		e.metrics.DispatchFailed("invalid_request")
		return nil, err
	}
	attemptID := e.newID()
	log := e.log.With().Str("attempt_id", attemptID).Str("drone_id", req.DroneID).Logger()
	log.Info().Str("origin", req.Origin).Str("destination", req.Destination).Msg("processing dispatch request")

	drone, err := e.drones.GetByID(ctx, req.DroneID)
	if err != nil {
		e.metrics.DispatchFailed("internal")
		return nil, fmt.Errorf("load drone %s: %w", req.DroneID, err)
	}
	if drone == nil {
		e.metrics.DispatchFailed("drone_not_found")
		return nil, fmt.Errorf("%w: %s", ErrDroneNotFound, req.DroneID)
	}

	att := &attempt{id: attemptID, req: req, log: log}

	if !strings.EqualFold(drone.Location, req.Origin) {
		return e.reject(ctx, att, fmt.Sprintf("Drone is at %s, not %s", drone.Location, req.Origin))
	}
	if drone.State != models.DroneStateIdle {
		return e.reject(ctx, att, fmt.Sprintf("Drone %s is currently %s", drone.ID, drone.State))
	}

	if att.origin, err = e.lookup(ctx, req.Origin); err != nil {
		return nil, e.weatherFailure(log, err)
	}
	if att.dest, err = e.lookup(ctx, req.Destination); err != nil {
		return nil, e.weatherFailure(log, err)
	}

	distance := safety.Distance(att.origin, att.dest)
	att.distance = &distance
	if e.rules.ExceedsRange(distance) {
		return e.reject(ctx, att, fmt.Sprintf("Destination too far (%.2f km). Max range is %.0fkm.", distance, e.rules.MaxRangeKm))
	}
	if e.rules.IsUnsafe(att.origin) {
		return e.reject(ctx, att, "Unsafe takeoff conditions in Origin Data.")
	}
	if e.rules.IsUnsafe(att.dest) {
		return e.reject(ctx, att, "Unsafe takeoff conditions in Destination Data.")
	}
	return e.approve(ctx, att, drone)
}

// attempt carries what is known about one dispatch attempt so far.
type attempt struct {
	id       string
	req      Request
	log      zerolog.Logger
	origin   *weather.Snapshot
	dest     *weather.Snapshot
	distance *float64
}

func (e *Engine) record(a *attempt, outcome models.DispatchOutcome, reason string) *models.DispatchRecord {
	return &models.DispatchRecord{
		AttemptID:     a.id,
		DroneID:       a.req.DroneID,
		Origin:        a.req.Origin,
		Destination:   a.req.Destination,
		Outcome:       outcome,
		Reason:        reason,
		OriginWeather: a.origin.Conditions(),
		DestWeather:   a.dest.Conditions(),
		DistanceKm:    a.distance,
		Timestamp:     e.now().UTC(),
	}
}

func (e *Engine) reject(ctx context.Context, a *attempt, reason string) (*Decision, error) {
	saved, err := e.history.Append(ctx, e.record(a, models.DispatchOutcomeRejected, reason))
	if err != nil {
		e.metrics.DispatchFailed("internal")
		return nil, fmt.Errorf("record rejection: %w", err)
	}
	return e.decided(ctx, a, saved), nil
}

func (e *Engine) approve(ctx context.Context, a *attempt, drone *models.Drone) (*Decision, error) {
	var saved *models.DispatchRecord
	err := e.tx.WithinTx(ctx, func(ctx context.Context, drones repository.DroneRepositoryI, dispatches repository.DispatchRepositoryI) error {
		next := *drone
		next.State = models.DroneStateInFlight
		next.Location = a.req.Destination
		if err := drones.Save(ctx, &next); err != nil {
			return err
		}
		var err error
		saved, err = dispatches.Append(ctx, e.record(a, models.DispatchOutcomeApproved, ReasonApproved))
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			e.metrics.DispatchFailed("conflict")
			a.log.Warn().Err(err).Msg("drone changed during dispatch")
			return nil, err
		}
		e.metrics.DispatchFailed("internal")
		return nil, fmt.Errorf("commit approval: %w", err)
	}
	return e.decided(ctx, a, saved), nil
}

func (e *Engine) decided(ctx context.Context, a *attempt, rec *models.DispatchRecord) *Decision {
	a.log.Info().Str("outcome", rec.Outcome.String()).Str("reason", rec.Reason).Msg("dispatch decision")
	e.metrics.DispatchDecided(rec.Outcome.String())
	e.events.DecisionMade(ctx, events.DecisionEvent{
		AttemptID:   rec.AttemptID,
		DroneID:     rec.DroneID,
		Origin:      rec.Origin,
		Destination: rec.Destination,
		Outcome:     rec.Outcome.String(),
		Reason:      rec.Reason,
		Timestamp:   rec.Timestamp,
	})
	return &Decision{DroneID: rec.DroneID, Outcome: rec.Outcome, Reason: rec.Reason, Record: rec}
}

func (e *Engine) lookup(ctx context.Context, location string) (*weather.Snapshot, error) {
	start := time.Now()
	s, err := e.weather.GetWeather(ctx, location)
	e.metrics.WeatherLookup(time.Since(start), err)
	return s, err
}

func (e *Engine) weatherFailure(log zerolog.Logger, err error) error {
	switch {
	case errors.Is(err, weather.ErrLocationNotFound):
		e.metrics.DispatchFailed("weather_not_found")
	case errors.Is(err, weather.ErrUnavailable):
		e.metrics.DispatchFailed("weather_unavailable")
	default:
		e.metrics.DispatchFailed("internal")
	}
	log.Error().Err(err).Msg("weather lookup failed, attempt aborted")
	return fmt.Errorf("weather lookup: %w", err)
}
