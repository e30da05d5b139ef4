package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"waveq/internal/config"
	"waveq/internal/event"
)

// Connect opens a NATS connection using the configured URL and reconnect
// policy. Callers own the connection and must Close it.
func Connect(cfg *config.Config) (*nats.Conn, error) {
	conn, err := nats.Connect(cfg.NATS.URL,
		nats.Name(cfg.NATS.Name),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(time.Duration(cfg.NATS.ReconnectWait)*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", cfg.NATS.URL, err)
	}
	return conn, nil
}

// JetStream wraps the connection in a JetStream handle.
func JetStream(conn *nats.Conn) (jetstream.JetStream, error) {
	js, err := jetstream.New(conn)
	if err != nil {
		return nil, fmt.Errorf("jetstream handle: %w", err)
	}
	return js, nil
}

// NATSPublisher emits status and result events on per-request core NATS
// subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

// NewPublisher returns a publisher bound to the connection.
func NewPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn}
}

func (p *NATSPublisher) PublishStatus(_ context.Context, ev event.StatusEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode status event: %w", err)
	}
	if err := p.conn.Publish(event.StatusSubject(ev.RequestID), data); err != nil {
		return fmt.Errorf("publish status for %s: %w", ev.RequestID, err)
	}
	return nil
}

func (p *NATSPublisher) PublishResult(_ context.Context, ev event.ResultEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode result event: %w", err)
	}
	if err := p.conn.Publish(event.ResultSubject(ev.RequestID), data); err != nil {
		return fmt.Errorf("publish result for %s: %w", ev.RequestID, err)
	}
	return nil
}
