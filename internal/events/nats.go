package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NATSPublisher publishes JSON events on a NATS connection.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	log    zerolog.Logger
}

// Connect dials url and returns a publisher using prefix for subjects.
func Connect(url, prefix string, log zerolog.Logger) (*NATSPublisher, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	nc, err := nats.Connect(url,
		nats.Name("drone-dispatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc, prefix: prefix, log: log}, nil
}

func (p *NATSPublisher) DecisionMade(_ context.Context, ev DecisionEvent) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	p.publish(DispatchDecisionSubject(p.prefix, ev.DroneID), ev)
}

func (p *NATSPublisher) DroneTransitioned(_ context.Context, ev TransitionEvent) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	p.publish(DroneStateSubject(p.prefix, ev.DroneID), ev)
}

func (p *NATSPublisher) publish(subject string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		p.log.Error().Err(err).Str("subject", subject).Msg("marshal event")
		return
	}
	if err := p.nc.Publish(subject, payload); err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("publish event")
	}
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if p == nil || p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
