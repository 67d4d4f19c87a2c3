// Package seed loads the starting fleet into an empty drone store.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"droneDispatchService/models"
	"droneDispatchService/repository"
)

//go:embed fleet.yaml
var defaultFleet []byte

type fleetFile struct {
	Drones []droneEntry `yaml:"drones"`
}

type droneEntry struct {
	ID       string  `yaml:"id"`
	Model    string  `yaml:"model"`
	Battery  float64 `yaml:"battery"`
	State    string  `yaml:"state"`
	Location string  `yaml:"location"`
}

// DefaultFleet returns the built-in ten-drone fleet.
func DefaultFleet() ([]*models.Drone, error) {
	return Parse(defaultFleet)
}

// LoadFile reads a fleet from a YAML file.
func LoadFile(path string) ([]*models.Drone, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fleet file: %w", err)
	}
	return Parse(b)
}

// Parse decodes and validates a fleet document.
func Parse(b []byte) ([]*models.Drone, error) {
	var f fleetFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode fleet: %w", err)
	}
	seen := map[string]bool{}
	out := make([]*models.Drone, 0, len(f.Drones))
	for i, e := range f.Drones {
		d := &models.Drone{
			ID:       strings.TrimSpace(e.ID),
			Model:    models.DroneModel(strings.ToUpper(e.Model)),
			Battery:  e.Battery,
			State:    models.DroneState(strings.ToUpper(e.State)),
			Location: strings.TrimSpace(e.Location),
		}
		switch {
		case d.ID == "":
			return nil, fmt.Errorf("drone #%d: id is required", i+1)
		case seen[d.ID]:
			return nil, fmt.Errorf("drone %s: duplicate id", d.ID)
		case !d.Model.Valid():
			return nil, fmt.Errorf("drone %s: unknown model %q", d.ID, e.Model)
		case !d.State.Valid():
			return nil, fmt.Errorf("drone %s: unknown state %q", d.ID, e.State)
		case d.Location == "":
			return nil, fmt.Errorf("drone %s: location is required", d.ID)
		}
		seen[d.ID] = true
		d.SetBattery(d.Battery)
		out = append(out, d)
	}
	return out, nil
}

// Seed saves fleet into drones only when the store holds no drones.
// It returns how many drones were inserted.
func Seed(ctx context.Context, drones repository.DroneRepositoryI, fleet []*models.Drone, log zerolog.Logger) (int, error) {
	n, err := drones.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count drones: %w", err)
	}
	if n > 0 {
		log.Debug().Int("existing", n).Msg("fleet already present, skipping seed")
		return 0, nil
	}
	for _, d := range fleet {
		d.Version = 0
		if err := drones.Save(ctx, d); err != nil {
			return 0, fmt.Errorf("seed drone %s: %w", d.ID, err)
		}
	}
	log.Info().Int("drones", len(fleet)).Msg("seeded fleet")
	return len(fleet), nil
}
