package models

import "time"

// DroneState is the lifecycle state of a drone.
type DroneState string

const (
	// DroneStateIdle drones are available for dispatch.
	DroneStateIdle DroneState = "IDLE"
	// DroneStateInFlight drones are airborne and unavailable.
	DroneStateInFlight DroneState = "IN_FLIGHT"
	// DroneStateMaintenance covers both out-of-service and recharging drones.
	DroneStateMaintenance DroneState = "MAINTENANCE"
)

// Valid reports whether s is one of the known lifecycle states.
func (s DroneState) Valid() bool {
	switch s {
	case DroneStateIdle, DroneStateInFlight, DroneStateMaintenance:
		return true
	default:
		return false
	}
}

func (s DroneState) String() string { return string(s) }

// DroneModel is the airframe variant of a drone. It is informational only;
// dispatch decisions do not depend on it.
type DroneModel string

const (
	DroneModelLightweight   DroneModel = "LIGHTWEIGHT"
	DroneModelMiddleweight  DroneModel = "MIDDLEWEIGHT"
	DroneModelCruiserweight DroneModel = "CRUISERWEIGHT"
	DroneModelHeavyweight   DroneModel = "HEAVYWEIGHT"
)

// Valid reports whether m is one of the known models.
func (m DroneModel) Valid() bool {
	switch m {
	case DroneModelLightweight, DroneModelMiddleweight, DroneModelCruiserweight, DroneModelHeavyweight:
		return true
	default:
		return false
	}
}

// Description returns the human-readable cargo class of the model.
func (m DroneModel) Description() string {
	switch m {
	case DroneModelLightweight:
		return "Light Cargo"
	case DroneModelMiddleweight:
		return "Medium Cargo"
	case DroneModelCruiserweight:
		return "Heavy Cargo"
	case DroneModelHeavyweight:
		return "Industrial"
	default:
		return "Unknown"
	}
}

// MaxPayloadKg returns the rated payload of the model in kilograms.
func (m DroneModel) MaxPayloadKg() float64 {
	switch m {
	case DroneModelLightweight:
		return 5
	case DroneModelMiddleweight:
		return 10
	case DroneModelCruiserweight:
		return 20
	case DroneModelHeavyweight:
		return 50
	default:
		return 0
	}
}

func (m DroneModel) String() string { return string(m) }

const (
	// BatteryMin and BatteryMax bound every battery level.
	BatteryMin = 0.0
	BatteryMax = 100.0
)

// Drone represents a delivery drone.
// Location is where the drone is while idle or in maintenance, and the
// destination it is flying to once a flight has been approved.
// Version is owned by the repository and guards concurrent writers.
type Drone struct {
	ID        string     `db:"id" json:"id"`
	Model     DroneModel `db:"model" json:"model"`
	Battery   float64    `db:"battery" json:"battery"`
	State     DroneState `db:"state" json:"state"`
	Location  string     `db:"location" json:"location"`
	Version   int64      `db:"version" json:"-"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// ClampBattery limits a battery level to [BatteryMin, BatteryMax].
func ClampBattery(level float64) float64 {
	if level < BatteryMin {
		return BatteryMin
	}
	if level > BatteryMax {
		return BatteryMax
	}
	return level
}

// SetBattery stores level on d, clamped to the valid range.
func (d *Drone) SetBattery(level float64) {
	d.Battery = ClampBattery(level)
}
