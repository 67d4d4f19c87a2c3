package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_GetWeather_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/weather/Berlin", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"latitude":52.52,"longitude":13.41,"current_weather":{"temperature":20.5,"windspeed":5.2,"weathercode":3}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second, zerolog.Nop())
	snap, err := c.GetWeather(context.Background(), "Berlin")
	require.NoError(t, err)
	assert.Equal(t, "Berlin", snap.Location)
	assert.Equal(t, 20.5, snap.Temperature)
	assert.Equal(t, 5.2, snap.WindSpeed)
	assert.Equal(t, 3, snap.WeatherCode)
	assert.Equal(t, 52.52, snap.Latitude)
	assert.Equal(t, 13.41, snap.Longitude)

	cond := snap.Conditions()
	require.NotNil(t, cond)
	assert.Equal(t, 3, cond.WeatherCode)
}

func TestClient_GetWeather_EscapesLocation(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{"latitude":1,"longitude":2,"current_weather":{"temperature":1,"windspeed":1,"weathercode":0}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second, zerolog.Nop()).GetWeather(context.Background(), "New York")
	require.NoError(t, err)
	assert.Equal(t, "/weather/New%20York", gotPath)
}

func TestClient_GetWeather_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{name: "bad request", status: http.StatusBadRequest, wantErr: ErrLocationNotFound},
		{name: "not found", status: http.StatusNotFound, wantErr: ErrLocationNotFound},
		{name: "server error", status: http.StatusInternalServerError, wantErr: ErrUnavailable},
		{name: "bad gateway", status: http.StatusBadGateway, wantErr: ErrUnavailable},
		{name: "garbage body", status: http.StatusOK, body: "not json", wantErr: ErrUnavailable},
		{name: "missing current weather", status: http.StatusOK, body: `{"latitude":1,"longitude":2}`, wantErr: ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, time.Second, zerolog.Nop()).GetWeather(context.Background(), "Atlantis")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestClient_GetWeather_TimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 50*time.Millisecond, zerolog.Nop()).GetWeather(context.Background(), "Berlin")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_GetWeather_UnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := NewClient(addr, time.Second, zerolog.Nop()).GetWeather(context.Background(), "Berlin")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestClient_GetWeather_BadBaseURLIsUnavailable(t *testing.T) {
	_, err := NewClient("http://weather\x7f.invalid", time.Second, zerolog.Nop()).GetWeather(context.Background(), "Berlin")
	require.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrLocationNotFound)
}
