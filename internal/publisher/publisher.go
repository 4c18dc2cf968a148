package publisher

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/etherlinkx/bridge-engine/internal/lifecycle"
	"github.com/etherlinkx/bridge-engine/internal/metrics"
	"github.com/etherlinkx/bridge-engine/pkg/logger"
	"github.com/etherlinkx/bridge-engine/pkg/model"
)

// Publisher wraps a NATS connection and publishes canonical bridge events.
type Publisher struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
	service string
}

// New creates a new Publisher with JetStream enabled.
func New(nc *nats.Conn, subject, service string) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		nc:      nc,
		js:      js,
		subject: subject,
		service: service,
	}, nil
}

// PublishEnvelope serializes and publishes a canonical event envelope.
func (p *Publisher) PublishEnvelope(ctx context.Context, subject string, env *model.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		logger.S().Errorw("publisher.marshal_failed",
			"subject", subject,
			"event_type", env.EventType,
			"error", err,
		)
		return err
	}

	if subject == "" {
		subject = p.subject
	}

	msg := &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{env.EventType},
			"correlation_id": []string{env.CorrelationID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
			"transaction_id": []string{env.TransactionID},
		},
	}

	if _, err := p.js.PublishMsg(msg); err != nil {
		logger.S().Errorw("publisher.publish_failed",
			"subject", subject,
			"event_type", env.EventType,
			"transaction_id", env.TransactionID,
			"error", err,
		)
		metrics.NATSPublishErrors.WithLabelValues(subject).Inc()
		return err
	}

	logger.S().Debugw("publisher.publish_success",
		"subject", subject,
		"event_type", env.EventType,
		"transaction_id", env.TransactionID,
	)
	return nil
}

// PublishTransition emits canonical bridge.transaction.<status> events for
// every lifecycle transition.
func (p *Publisher) PublishTransition(ctx context.Context, ev lifecycle.TransitionEvent) error {
	eventType := "bridge.transaction." + string(ev.To)
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		TransactionID: ev.Transaction.ID,
		Account:       ev.Transaction.Account,
		Topic:         p.subject,
		EventType:     eventType,
		Version:       "1.0.0",
		Timestamp:     ev.At,
	}

	data, err := json.Marshal(model.TransactionStatusEvent{
		TransactionID: ev.Transaction.ID,
		Account:       ev.Transaction.Account,
		Provider:      ev.Transaction.Quote.Provider,
		FromStatus:    string(ev.From),
		ToStatus:      string(ev.To),
		Transaction:   ev.Transaction,
		Timestamp:     ev.At,
	})
	if err != nil {
		return err
	}
	env.Payload = data

	return p.PublishEnvelope(ctx, p.subject, env)
}

// PublishQuoteSelected emits an event when a quote is accepted.
func (p *Publisher) PublishQuoteSelected(ctx context.Context, quote model.Quote, account string) error {
	env := &model.Envelope{
		ID:            uuid.New(),
		CorrelationID: uuid.New(),
		Account:       account,
		Topic:         p.subject,
		EventType:     "bridge.quote.selected",
		Version:       "1.0.0",
		Timestamp:     time.Now().UTC(),
	}

	data, err := json.Marshal(quote)
	if err != nil {
		return err
	}
	env.Payload = data

	return p.PublishEnvelope(ctx, p.subject, env)
}

func (p *Publisher) Close() {
	if p.nc != nil && p.nc.IsConnected() {
		p.nc.Close()
	}
}
