package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"newsdigest/internal/digest"
)

// NATS publishes the digest JSON to a JetStream subject, creating the stream
// on first use. The run ID is the message ID, so a re-send of the same digest
// is deduplicated by the server.
type NATS struct {
	url     string
	stream  string
	subject string
}

// NewNATS constructs a JetStream publisher.
func NewNATS(url, stream, subject string) *NATS {
	return &NATS{url: url, stream: stream, subject: subject}
}

// Name identifies the deliverer.
func (n *NATS) Name() string { return "nats" }

// Deliver connects, publishes d and drains the connection.
func (n *NATS) Deliver(ctx context.Context, d digest.Digest) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode digest: %w", err)
	}
	conn, err := nats.Connect(n.url, nats.Name("newsdigest"))
	if err != nil {
		return fmt.Errorf("connect %s: %w", n.url, err)
	}
	defer conn.Drain()

	js, err := jetstream.New(conn)
	if err != nil {
		return fmt.Errorf("jetstream: %w", err)
	}
	if _, err := js.Stream(ctx, n.stream); err != nil {
		if !errors.Is(err, jetstream.ErrStreamNotFound) {
			return fmt.Errorf("lookup stream %s: %w", n.stream, err)
		}
		if _, err := js.CreateStream(ctx, jetstream.StreamConfig{
			Name:     n.stream,
			Subjects: []string{n.subject},
		}); err != nil {
			return fmt.Errorf("create stream %s: %w", n.stream, err)
		}
	}
	if _, err := js.Publish(ctx, n.subject, payload, jetstream.WithMsgID(d.RunID)); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	return nil
}
