// Package app wires the dispatch service together from configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"droneDispatchService/internal/config"
	"droneDispatchService/internal/db"
	"droneDispatchService/internal/dispatch"
	"droneDispatchService/internal/events"
	grpcserver "droneDispatchService/internal/grpc"
	"droneDispatchService/internal/lifecycle"
	"droneDispatchService/internal/logging"
	"droneDispatchService/internal/metrics"
	"droneDispatchService/internal/seed"
	"droneDispatchService/internal/weather"
	"droneDispatchService/models"
	"droneDispatchService/repository"
)

// App owns every long-lived component of the service.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	DB        *sql.DB
	Store     *repository.Store
	Engine    *dispatch.Engine
	Scheduler *lifecycle.Scheduler
	Registry  *prometheus.Registry

	closers []func() error
}

// New opens the database, seeds an empty fleet, connects the event bus and
// builds the engine and scheduler. Close releases what New acquired.
func New(cfg *config.Config) (a *App, err error) {
	if err := logging.SetLevel(cfg.Logging.Level); err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	a = &App{cfg: cfg, log: logging.New("app")}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	a.DB, err = db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	a.closers = append(a.closers, a.DB.Close)
	a.Store = repository.NewStore(a.DB)

	a.Registry = prometheus.NewRegistry()
	rec, err := metrics.NewProm(a.Registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	pub, err := a.connectEvents()
	if err != nil {
		return nil, err
	}

	if cfg.Seed.Enabled {
		if _, err := SeedFleet(context.Background(), a.Store.Drones, cfg.Seed.File, logging.New("seed")); err != nil {
			return nil, err
		}
	}

	gw := weather.NewClient(cfg.Weather.BaseURL, cfg.Weather.Timeout, logging.New("weather"))
	a.Engine = dispatch.NewEngine(a.Store.Drones, a.Store.Dispatches, a.Store, gw, cfg.Rules,
		dispatch.WithLogger(logging.New("dispatch")),
		dispatch.WithMetrics(rec),
		dispatch.WithEvents(pub),
	)
	a.Scheduler = lifecycle.NewScheduler(a.Store.Drones, cfg.Scheduler.Interval,
		lifecycle.WithLogger(logging.New("lifecycle")),
		lifecycle.WithMetrics(rec),
		lifecycle.WithEvents(pub),
	)
	return a, nil
}

func (a *App) connectEvents() (events.Publisher, error) {
	url := a.cfg.Events.NATSURL
	if a.cfg.Events.Embedded {
		ns, err := events.StartEmbedded("127.0.0.1", a.cfg.Events.EmbeddedPort, logging.New("nats"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { ns.Shutdown(); return nil })
		url = ns.ClientURL()
	}
	if url == "" {
		a.log.Info().Msg("no event bus configured, events are dropped")
		return events.Nop{}, nil
	}
	pub, err := events.Connect(url, a.cfg.Events.SubjectPrefix, logging.New("events"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pub.Close)
	return pub, nil
}

// SeedFleet loads the fleet from file, or the built-in fleet when file is
// empty, into an empty store.
func SeedFleet(ctx context.Context, drones repository.DroneRepositoryI, file string, log zerolog.Logger) (int, error) {
	var (
		fleet []*models.Drone
		err   error
	)
	if file != "" {
		fleet, err = seed.LoadFile(file)
	} else {
		fleet, err = seed.DefaultFleet()
	}
	if err != nil {
		return 0, fmt.Errorf("load fleet: %w", err)
	}
	n, err := seed.Seed(ctx, drones, fleet, log)
	if err != nil {
		return 0, fmt.Errorf("seed fleet: %w", err)
	}
	return n, nil
}

// Run serves gRPC, metrics and the scheduler until ctx is cancelled or a
// component fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdown, err := grpcserver.StartGRPC(a.cfg, &grpcserver.Server{
		Engine:    a.Engine,
		Scheduler: a.Scheduler,
		Log:       logging.New("grpc"),
	})
	if err != nil {
		return fmt.Errorf("start grpc: %w", err)
	}
	a.log.Info().Str("address", a.cfg.GRPC.Address).Msg("gRPC server listening")

	errc := make(chan error, 2)
	running := 0
	if a.cfg.Metrics.Address != "" {
		running++
		go func() {
			a.log.Info().Str("address", a.cfg.Metrics.Address).Msg("metrics endpoint listening")
			errc <- metrics.Serve(ctx, a.cfg.Metrics.Address, a.Registry)
		}()
	}
	if a.cfg.Scheduler.Enabled {
		running++
		go func() {
			if err := a.Scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- err
				return
			}
			errc <- nil
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
		running--
		cancel()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("grpc shutdown")
	}
	for ; running > 0; running-- {
		if err := <-errc; err != nil && runErr == nil {
			runErr = err
		}
	}
	return runErr
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
