// Package metrics exposes Prometheus instrumentation for dispatch and the
// lifecycle scheduler.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder records dispatch and lifecycle observations.
type Recorder interface {
	DispatchDecided(outcome string)
	DispatchFailed(reason string)
	WeatherLookup(d time.Duration, err error)
	DroneTransitioned(transition string)
	TickCompleted(d time.Duration, fleetByState map[string]int)
}

// Nop discards everything.
type Nop struct{}

func (Nop) DispatchDecided(string) {}
func (Nop) DispatchFailed(string) {}
func (Nop) WeatherLookup(time.Duration, error) {}
func (Nop) DroneTransitioned(string) {}
func (Nop) TickCompleted(time.Duration, map[string]int) {}

// Prom records into Prometheus collectors.
type Prom struct {
	decisions   *prometheus.CounterVec
	failures    *prometheus.CounterVec
	weather     *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	tick        prometheus.Histogram
	fleet       *prometheus.GaugeVec
}

// NewProm registers the collectors on reg. A nil registerer defaults to the
// global Prometheus registerer. Collectors that already exist are reused.
func NewProm(reg prometheus.Registerer) (*Prom, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prom{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_decisions_total",
			Help: "Dispatch attempts that reached a decision, by outcome",
		}, []string{"outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_failures_total",
			Help: "Dispatch attempts aborted without a decision, by reason",
		}, []string{"reason"}),
		weather: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weather_lookup_seconds",
			Help:    "Latency of weather service calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "drone_transitions_total",
			Help: "Lifecycle transitions applied by the scheduler",
		}, []string{"transition"}),
		tick: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduler_tick_seconds",
			Help:    "Duration of lifecycle sweeps",
			Buckets: prometheus.DefBuckets,
		}),
		fleet: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fleet_drones",
			Help: "Drones per lifecycle state after the last sweep",
		}, []string{"state"}),
	}

	var err error
	if p.decisions, err = register(reg, p.decisions); err != nil {
		return nil, err
	}
	if p.failures, err = register(reg, p.failures); err != nil {
		return nil, err
	}
	if p.weather, err = register(reg, p.weather); err != nil {
		return nil, err
	}
	if p.transitions, err = register(reg, p.transitions); err != nil {
		return nil, err
	}
	if p.tick, err = register(reg, p.tick); err != nil {
		return nil, err
	}
	if p.fleet, err = register(reg, p.fleet); err != nil {
		return nil, err
	}
	return p, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (p *Prom) DispatchDecided(outcome string) { p.decisions.WithLabelValues(outcome).Inc() }

func (p *Prom) DispatchFailed(reason string) { p.failures.WithLabelValues(reason).Inc() }

func (p *Prom) WeatherLookup(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.weather.WithLabelValues(result).Observe(d.Seconds())
}

func (p *Prom) DroneTransitioned(transition string) { p.transitions.WithLabelValues(transition).Inc() }

// TickCompleted replaces the fleet gauge, so states absent from fleetByState read zero.
func (p *Prom) TickCompleted(d time.Duration, fleetByState map[string]int) {
	p.tick.Observe(d.Seconds())
	p.fleet.Reset()
	for state, n := range fleetByState {
		p.fleet.WithLabelValues(state).Set(float64(n))
	}
}

// Serve exposes the gatherer on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
