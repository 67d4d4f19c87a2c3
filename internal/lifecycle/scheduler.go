package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"droneDispatchService/internal/events"
	"droneDispatchService/internal/metrics"
	"droneDispatchService/models"
	"droneDispatchService/repository"
)

// DefaultInterval is the sweep period when none is configured.
const DefaultInterval = 30 * time.Second

// TickResult summarizes one sweep.
type TickResult struct {
	Drones      int
	Transitions int
	Conflicts   int
	Failures    int
}

// Scheduler sweeps the fleet on a fixed interval.
type Scheduler struct {
	drones   repository.DroneRepositoryI
	interval time.Duration
	log      zerolog.Logger
	metrics  metrics.Recorder
	events   events.Publisher
	now      func() time.Time

	// mu keeps scheduled and manual sweeps from interleaving.
	mu sync.Mutex
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

func WithLogger(l zerolog.Logger) Option { return func(s *Scheduler) { s.log = l } }

func WithMetrics(m metrics.Recorder) Option { return func(s *Scheduler) { s.metrics = m } }

func WithEvents(p events.Publisher) Option { return func(s *Scheduler) { s.events = p } }

func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// NewScheduler returns a scheduler over drones. A non-positive interval uses DefaultInterval.
func NewScheduler(drones repository.DroneRepositoryI, interval time.Duration, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		drones:   drones,
		interval: interval,
		log:      zerolog.Nop(),
		metrics:  metrics.Nop{},
		events:   events.Nop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the sweep period.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Start runs Tick every interval until ctx is cancelled. A sweep still
// running when the next one is due causes that one to be skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log})))
	_, err := c.AddFunc("@every "+s.interval.String(), func() {
		if _, err := s.Tick(ctx); err != nil {
			s.log.Error().Err(err).Msg("scheduled sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("add sweep job: %w", err)
	}
	s.log.Info().Dur("interval", s.interval).Msg("lifecycle scheduler started")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info().Msg("lifecycle scheduler stopped")
	return ctx.Err()
}

// Tick advances every drone by one step. Drones are handled independently:
// a conflict or save failure on one is logged and the sweep moves on.
//
// Cancelling ctx stops the sweep between drones and returns ctx.Err() without
// recording tick metrics. Every saved step is already durable, and drones not
// reached are advanced by the next tick.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	var res TickResult
	drones, err := s.drones.List(ctx)
	if err != nil {
		return res, fmt.Errorf("list drones: %w", err)
	}
	res.Drones = len(drones)

	byState := map[string]int{}
	for _, d := range drones {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		steps, err := Advance(d, func(step Step) error {
			if err := s.drones.Save(ctx, d); err != nil {
				return err
			}
			s.applied(ctx, d, step)
			return nil
		})
		res.Transitions += len(steps)
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				res.Conflicts++
				s.log.Warn().Err(err).Str("drone_id", d.ID).Msg("drone changed during sweep, skipping until next tick")
			} else {
				res.Failures++
				s.log.Error().Err(err).Str("drone_id", d.ID).Msg("failed to persist drone transition")
			}
			// d holds the unsaved mutation; count what is stored.
			if cur, gerr := s.drones.GetByID(ctx, d.ID); gerr == nil && cur != nil {
				d = cur
			}
		}
		byState[d.State.String()]++
	}

	s.metrics.TickCompleted(time.Since(start), byState)
	s.log.Debug().Int("drones", res.Drones).Int("transitions", res.Transitions).
		Int("conflicts", res.Conflicts).Msg("sweep complete")
	return res, nil
}

func (s *Scheduler) applied(ctx context.Context, d *models.Drone, step Step) {
	ev := s.log.Info()
	if step.Transition == TransitionLowBattery {
		ev = s.log.Warn()
	}
	ev.Str("drone_id", d.ID).
		Str("transition", step.Transition.String()).
		Str("from", step.From.String()).
		Str("to", step.To.String()).
		Float64("battery", step.BatteryAfter).
		Str("location", d.Location).
		Msg("drone transition")
	s.metrics.DroneTransitioned(step.Transition.String())
	s.events.DroneTransitioned(ctx, events.TransitionEvent{
		DroneID:    d.ID,
		Transition: step.Transition.String(),
		From:       step.From.String(),
		To:         step.To.String(),
		Battery:    step.BatteryAfter,
		Location:   d.Location,
		Timestamp:  s.now().UTC(),
	})
}

// cronLogger routes cron's own messages into zerolog.
type cronLogger struct{ log zerolog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
