package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single upstream call.
const DefaultTimeout = 5 * time.Second

// Client calls the upstream weather service over HTTP:
//
//	GET {baseURL}/weather/{location}
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// apiResponse is the upstream payload.
type apiResponse struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	CurrentWeather *struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"`
		WeatherCode int     `json:"weathercode"`
	} `json:"current_weather"`
}

// NewClient returns a Client for baseURL. A non-positive timeout uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// GetWeather fetches current conditions for location. Failures wrap
// ErrLocationNotFound or ErrUnavailable; nothing is retried.
func (c *Client) GetWeather(ctx context.Context, location string) (*Snapshot, error) {
	endpoint := c.baseURL + "/weather/" + url.PathEscape(location)
	c.log.Debug().Str("location", location).Str("url", endpoint).Msg("calling weather service")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		c.log.Error().Err(err).Str("url", endpoint).Msg("weather service url is invalid")
		return nil, fmt.Errorf("build weather request for %q: %w: %v", location, ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.log.Error().Err(err).Str("location", location).Msg("weather service unreachable")
		return nil, fmt.Errorf("fetch weather for %q: %w: %v", location, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		c.log.Error().Int("status", resp.StatusCode).Msg("weather service is down")
		return nil, fmt.Errorf("weather service returned status %d: %w", resp.StatusCode, ErrUnavailable)
	case resp.StatusCode >= 400:
		c.log.Warn().Int("status", resp.StatusCode).Str("location", location).Msg("location not found or bad request")
		return nil, fmt.Errorf("%w: %s", ErrLocationNotFound, location)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("weather service returned status %d: %w", resp.StatusCode, ErrUnavailable)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode weather response for %q: %w: %v", location, ErrUnavailable, err)
	}
	if body.CurrentWeather == nil {
		return nil, fmt.Errorf("weather response for %q has no current_weather: %w", location, ErrUnavailable)
	}
	return &Snapshot{
		Location:    location,
		Temperature: body.CurrentWeather.Temperature,
		WindSpeed:   body.CurrentWeather.WindSpeed,
		WeatherCode: body.CurrentWeather.WeatherCode,
		Latitude:    body.Latitude,
		Longitude:   body.Longitude,
	}, nil
}
