package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"droneDispatchService/internal/config"
	"droneDispatchService/internal/dispatch"
	"droneDispatchService/internal/testutil"
	"droneDispatchService/models"
)

func testConfig(t *testing.T, weatherURL string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(t.TempDir(), "dispatch.db")
	cfg.GRPC.Address = "127.0.0.1:0"
	cfg.Auth.JWTSecret = "app-test"
	cfg.Weather.BaseURL = weatherURL
	cfg.Scheduler.Interval = time.Second
	return cfg
}

func TestNew_SeedsAndDispatches(t *testing.T) {
	ws := testutil.NewWeatherServer(t, map[string]testutil.City{
		"Berlin":    {Latitude: 52.52, Longitude: 13.405, Temperature: 18, WindSpeed: 10},
		"Grunewald": {Latitude: 52.48, Longitude: 13.26, Temperature: 17, WindSpeed: 12},
	})
	cfg := testConfig(t, ws.URL)
	cfg.Events.Embedded = true

	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx := context.Background()
	n, err := a.Store.Drones.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	dec, err := a.Engine.Dispatch(ctx, dispatch.Request{DroneID: "D-002", Origin: "Berlin", Destination: "Grunewald"})
	require.NoError(t, err)
	assert.True(t, dec.Approved())

	res, err := a.Scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, res.Drones)

	d, err := a.Store.Drones.GetByID(ctx, "D-002")
	require.NoError(t, err)
	assert.Equal(t, models.DroneStateIdle, d.State)
	assert.Equal(t, 65.0, d.Battery)

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNew_SeedDisabled(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Seed.Enabled = false

	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	n, err := a.Store.Drones.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNew_BadSeedFileFails(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Seed.File = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestNew_BadLogLevelFails(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Logging.Level = "loud"

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSeedFleet_FromFile(t *testing.T) {
	store := testutil.NewStore(t, "app_seed_file")
	path := filepath.Join(t.TempDir(), "fleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("drones:\n  - {id: X-1, model: LIGHTWEIGHT, battery: 80, state: IDLE, location: Oslo}\n"), 0o600))

	n, err := SeedFleet(context.Background(), store.Drones, path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
