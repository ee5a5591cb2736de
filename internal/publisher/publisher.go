package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/tradingview-adapter/internal/metrics"
	"github.com/Checker-Finance/tradingview-adapter/pkg/logger"
	"github.com/Checker-Finance/tradingview-adapter/pkg/model"
)

// SubjectSignalAccepted is the bus subject accepted signals are mirrored to.
const SubjectSignalAccepted = "evt.signal.accepted.v1.TRADINGVIEW"

// Publisher wraps a NATS connection and publishes canonical signal events.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	service string
}

// New creates a new Publisher with JetStream enabled if available.
func New(nc *nats.Conn, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		service: service,
	}, nil
}

// PublishSignalAccepted emits a canonical envelope for an accepted signal.
func (p *Publisher) PublishSignalAccepted(ctx context.Context, event model.SignalEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Topic:         SubjectSignalAccepted,
		EventType:     "signal.accepted",
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
		Payload:       payload,
	}

	return p.publishEnvelope(SubjectSignalAccepted, env)
}

func (p *Publisher) publishEnvelope(subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncError("publisher", "marshal_failed")
		return err
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
		},
	}

	start := time.Now()
	_, err = p.js.PublishMsg(msg)
	metrics.ObserveDuration(metrics.NATSMessageLatency, start, subject)

	if err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		metrics.IncNATSMessage(subject, "error")
		return err
	}

	metrics.IncNATSMessage(subject, "ok")
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
