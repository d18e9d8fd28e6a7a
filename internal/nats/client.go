package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/obelisk-core/obelisk/internal/config"
)

// streams are created or updated on connect.
var streams = []jetstream.StreamConfig{
	{
		Name:        StreamRetry,
		Description: "interactions whose inline write failed",
		Subjects:    []string{SubjectInteractionRetry},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      24 * time.Hour,
	},
	{
		Name:        StreamEvents,
		Description: "evolution cycle transitions",
		Subjects:    []string{SubjectCycleEvent},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
	},
}

// Client owns the NATS connection used for the retry queue and cycle events.
type Client struct {
	conn *nats.Conn
	js   jetstream.JetStream
}

// NewClient connects, creates the JetStream context and ensures the streams.
func NewClient(ctx context.Context, cfg config.NATSConfig) (*Client, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("obelisk"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	for _, sc := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, sc); err != nil {
			nc.Close()
			return nil, fmt.Errorf("ensuring stream %s: %w", sc.Name, err)
		}
	}

	slog.Info("nats ready", "url", nc.ConnectedUrlRedacted(), "streams", len(streams))
	return &Client{conn: nc, js: js}, nil
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Check reports an error unless the connection is up and the server answers
// a round trip before ctx expires.
func (c *Client) Check(ctx context.Context) error {
	if !c.conn.IsConnected() {
		return errors.New("not connected")
	}
	return c.conn.FlushWithContext(ctx)
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if err := c.conn.Drain(); err != nil {
		slog.Warn("draining nats connection", "error", err)
	}
}
