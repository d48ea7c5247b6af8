package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Publisher delivers encoded events to a subject.
type Publisher interface {
	Publish(subject string, payload interface{}) error
	Close()
}

// NatsPublisher publishes JSON events to NATS.
type NatsPublisher struct {
	conn   *nats.Conn
	logger *zap.Logger
}

// NewNatsPublisher connects to the NATS server at url.
func NewNatsPublisher(url string, logger *zap.Logger) (*NatsPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := nats.Connect(url,
		nats.Name("fitclass-api"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NatsPublisher{conn: conn, logger: logger}, nil
}

// Publish marshals payload and publishes it on subject.
func (p *NatsPublisher) Publish(subject string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event for %s: %w", subject, err)
	}
	if err := p.conn.Publish(subject, body); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.logger.Debug("event published", zap.String("subject", subject))
	return nil
}

// Close drains the connection.
func (p *NatsPublisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("nats drain failed", zap.Error(err))
	}
}

// LogPublisher is used when no broker is configured; events are only logged.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher builds a publisher that writes events to the logger.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the subject and payload.
func (p *LogPublisher) Publish(subject string, payload interface{}) error {
	p.logger.Info("event dropped (no broker configured)", zap.String("subject", subject), zap.Any("payload", payload))
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() {}
