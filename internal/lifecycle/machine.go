// Package lifecycle simulates drone operations: flights land, drained
// batteries are sent to recharge, charged drones return to service.
package lifecycle

import "droneDispatchService/models"

// Transition names one step of the per-tick state machine.
type Transition string

const (
	TransitionArrival    Transition = "arrival"
	TransitionLowBattery Transition = "low_battery"
	TransitionRecharge   Transition = "recharge"
	TransitionRelease    Transition = "release"
)

func (t Transition) String() string { return string(t) }

// Simulation constants.
const (
	FlightDrain      = 20.0
	LowBatteryBelow  = 25.0
	ChargePerTick    = 25.0
	ReleaseThreshold = 95.0
)

// Step is one applied transition.
type Step struct {
	Transition    Transition
	From          models.DroneState
	To            models.DroneState
	BatteryBefore float64
	BatteryAfter  float64
}

type rule func(d *models.Drone) (Transition, bool)

// rules run in order; a later rule sees the result of an earlier one.
var rules = []rule{arrive, lowBattery, recharge}

func arrive(d *models.Drone) (Transition, bool) {
	if d.State != models.DroneStateInFlight {
		return "", false
	}
	d.SetBattery(d.Battery - FlightDrain)
	d.State = models.DroneStateIdle
	return TransitionArrival, true
}

func lowBattery(d *models.Drone) (Transition, bool) {
	if d.State != models.DroneStateIdle || d.Battery >= LowBatteryBelow {
		return "", false
	}
	d.State = models.DroneStateMaintenance
	return TransitionLowBattery, true
}

// recharge only releases a drone it actually charged this tick.
func recharge(d *models.Drone) (Transition, bool) {
	if d.State != models.DroneStateMaintenance || d.Battery >= models.BatteryMax {
		return "", false
	}
	d.SetBattery(d.Battery + ChargePerTick)
	if d.Battery >= ReleaseThreshold {
		d.State = models.DroneStateIdle
		return TransitionRelease, true
	}
	return TransitionRecharge, true
}

// Advance moves d forward by one tick. after, when non-nil, runs once per
// applied step with d already mutated; an error from it stops the tick for d
// and the failed step is left out of the result.
func Advance(d *models.Drone, after func(Step) error) ([]Step, error) {
	var steps []Step
	for _, r := range rules {
		from, before := d.State, d.Battery
		t, ok := r(d)
		if !ok {
			continue
		}
		s := Step{Transition: t, From: from, To: d.State, BatteryBefore: before, BatteryAfter: d.Battery}
		if after != nil {
			if err := after(s); err != nil {
				return steps, err
			}
		}
		steps = append(steps, s)
	}
	return steps, nil
}
