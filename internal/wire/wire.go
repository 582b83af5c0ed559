// Package wire is the tunnel's thin binding onto the remote mesh transport.
// It wraps a NATS connection and a JetStream key-value bucket: subjects
// carry payload/event traffic, and the KV bucket carries service-details
// descriptors so a late-joining querier gets the last announced value for
// free.
package wire

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// OriginHeader carries the announcing tunnel instance's id on every message
// this tunnel publishes, so a connector can recognize and drop its own
// traffic on the way back in (wire-side loopback suppression).
const OriginHeader = "Tunnel-Origin"

// Config configures the connection to the wire.
type Config struct {
	URL         string
	InstanceID  uuid.UUID
	ConnectName string
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.InstanceID == uuid.Nil {
		c.InstanceID = uuid.New()
	}
	if c.ConnectName == "" {
		c.ConnectName = "tunnel"
	}
	return c
}

// Conn is an established wire connection plus the details KV bucket.
type Conn struct {
	nc       *nats.Conn
	js       jetstream.JetStream
	details  jetstream.KeyValue
	instance uuid.UUID
}

// Connect dials the wire and provisions (or attaches to) the details bucket.
func Connect(ctx context.Context, cfg Config, bucket string) (*Conn, error) {
	cfg = cfg.withDefaults()

	nc, err := nats.Connect(cfg.URL, nats.Name(cfg.ConnectName), nats.RetryOnFailedConnect(true))
	if err != nil {
		return nil, fmt.Errorf("wire: connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("wire: jetstream: %w", err)
	}

	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("wire: provision details bucket %q: %w", bucket, err)
		}
	}

	return &Conn{nc: nc, js: js, details: kv, instance: cfg.InstanceID}, nil
}

// InstanceID is this tunnel's identity, stamped on every message it
// publishes for loopback suppression.
func (c *Conn) InstanceID() uuid.UUID { return c.instance }

// Raw exposes the underlying *nats.Conn for components that need to
// publish/subscribe subjects directly.
func (c *Conn) Raw() *nats.Conn { return c.nc }

// Details exposes the JetStream KV bucket backing AnnouncementPort and
// RemoteDiscoveryPort.
func (c *Conn) Details() jetstream.KeyValue { return c.details }

// Close drains and closes the connection.
func (c *Conn) Close() error {
	if c.nc == nil {
		return nil
	}
	return c.nc.Drain()
}

// StampOrigin sets the origin header on a message this tunnel is about to
// publish.
func (c *Conn) StampOrigin(msg *nats.Msg) {
	if msg.Header == nil {
		msg.Header = nats.Header{}
	}
	msg.Header.Set(OriginHeader, c.instance.String())
}

// IsOwnOrigin reports whether msg carries this tunnel's own origin header,
// i.e. it is a loopback of something this tunnel itself published.
func (c *Conn) IsOwnOrigin(msg *nats.Msg) bool {
	if msg.Header == nil {
		return false
	}
	return msg.Header.Get(OriginHeader) == c.instance.String()
}
