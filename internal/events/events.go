// Package events publishes dispatch decisions and lifecycle transitions to NATS.
// Publishing is best-effort: failures are logged and never fail the caller.
package events

import (
	"context"
	"fmt"
	"time"
)

// Subject templates. The first verb is the configured prefix, the second the drone id.
const (
	DefaultSubjectPrefix = "fleet"

	SubjectDispatchDecision = "%s.dispatch.%s"
	SubjectDroneState       = "%s.drones.%s.state"
)

// DispatchDecisionSubject returns the subject for decisions about droneID.
func DispatchDecisionSubject(prefix, droneID string) string {
	return fmt.Sprintf(SubjectDispatchDecision, prefix, droneID)
}

// DroneStateSubject returns the subject for lifecycle changes of droneID.
func DroneStateSubject(prefix, droneID string) string {
	return fmt.Sprintf(SubjectDroneState, prefix, droneID)
}

// DecisionEvent is emitted once per decided dispatch attempt.
type DecisionEvent struct {
	EventID     string    `json:"event_id"`
	AttemptID   string    `json:"attempt_id"`
	DroneID     string    `json:"drone_id"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Outcome     string    `json:"outcome"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

// TransitionEvent is emitted for every persisted lifecycle transition.
type TransitionEvent struct {
	EventID    string    `json:"event_id"`
	DroneID    string    `json:"drone_id"`
	Transition string    `json:"transition"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Battery    float64   `json:"battery"`
	Location   string    `json:"location"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher receives domain events.
type Publisher interface {
	DecisionMade(ctx context.Context, ev DecisionEvent)
	DroneTransitioned(ctx context.Context, ev TransitionEvent)
}

// Nop drops every event.
type Nop struct{}

func (Nop) DecisionMade(context.Context, DecisionEvent) {}

func (Nop) DroneTransitioned(context.Context, TransitionEvent) {}
