package testutil

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	jwt "github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"

	"droneDispatchService/internal/db"
	"droneDispatchService/models"
	"droneDispatchService/repository"
)

// OpenInMemoryDB opens an in-memory SQLite database and applies migrations.
// Caller is responsible for closing the DB, typically via t.Cleanup.
func OpenInMemoryDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	// We use a shared cache memory database so that multiple connections share the same DB if needed.
	d, err := db.Open("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// NewStore returns a store over a fresh in-memory database holding drones.
func NewStore(t *testing.T, name string, drones ...*models.Drone) *repository.Store {
	t.Helper()
	s := repository.NewStore(OpenInMemoryDB(t, name))
	for _, d := range drones {
		if err := s.Drones.Save(context.Background(), d); err != nil {
			t.Fatalf("seed drone %s: %v", d.ID, err)
		}
	}
	return s
}

// IdleDrone returns an idle lightweight drone at location with a full battery.
func IdleDrone(id, location string) *models.Drone {
	return &models.Drone{
		ID:       id,
		Model:    models.DroneModelLightweight,
		Battery:  models.BatteryMax,
		State:    models.DroneStateIdle,
		Location: location,
	}
}

// GenerateJWTHS256 returns a signed JWT string with minimal claims used by the app.
func GenerateJWTHS256(t *testing.T, secret, name, kind string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"name": name,
		"kind": kind,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// CtxWithBearer returns a context containing gRPC metadata Authorization header with the given token.
func CtxWithBearer(ctx context.Context, token string) context.Context {
	md := metadata.Pairs("authorization", "Bearer "+token)
	return metadata.NewIncomingContext(ctx, md)
}

// OutgoingBearer attaches token to an outgoing client call.
func OutgoingBearer(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

// City is a canned answer of the fake weather service.
type City struct {
	Latitude    float64
	Longitude   float64
	Temperature float64
	WindSpeed   float64
	WeatherCode int
}

// WeatherServer fakes the upstream weather service. Unknown cities answer 404.
type WeatherServer struct {
	*httptest.Server

	mu     sync.Mutex
	cities map[string]City
	calls  map[string]int
}

// NewWeatherServer starts a fake weather service that is closed on cleanup.
func NewWeatherServer(t *testing.T, cities map[string]City) *WeatherServer {
	t.Helper()
	ws := &WeatherServer{cities: map[string]City{}, calls: map[string]int{}}
	for name, c := range cities {
		ws.cities[name] = c
	}
	ws.Server = httptest.NewServer(http.HandlerFunc(ws.serve))
	t.Cleanup(ws.Close)
	return ws
}

// Set replaces the conditions reported for name.
func (ws *WeatherServer) Set(name string, c City) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.cities[name] = c
}

// Calls returns how many lookups name received.
func (ws *WeatherServer) Calls(name string) int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.calls[name]
}

// TotalCalls returns the number of lookups across all cities.
func (ws *WeatherServer) TotalCalls() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	n := 0
	for _, c := range ws.calls {
		n += c
	}
	return n
}

func (ws *WeatherServer) serve(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutPrefix(r.URL.Path, "/weather/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	ws.mu.Lock()
	ws.calls[name]++
	c, found := ws.cities[name]
	ws.mu.Unlock()
	if !found {
		http.Error(w, "unknown city", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"latitude":  c.Latitude,
		"longitude": c.Longitude,
		"current_weather": map[string]any{
			"temperature": c.Temperature,
			"windspeed":   c.WindSpeed,
			"weathercode": c.WeatherCode,
		},
	})
}
