// Package eventconnector bridges one event service between the local bus
// and the wire. Local-bus consolidation (the fabric's edge-triggered
// "try_wait_all" semantics) already reduces a local drain to a distinct set
// of event ids; the wire leg never re-consolidates what it receives, since
// the local fabric is the only side that defines consolidation.
package eventconnector

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	log "github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"go.tunnelbridge/internal/discovery"
	"go.tunnelbridge/internal/localbus"
	"go.tunnelbridge/internal/servicekey"
	"go.tunnelbridge/internal/wire"
)

// Connector bridges a single event service's notifications in both directions.
type Connector struct {
	fp localbus.Fingerprint

	localNotifier localbus.Notifier
	localListener localbus.Listener

	wireConn *wire.Conn
	wireSub  *nats.Subscription
	subject  string

	maxDrainPerCycle int
	logger           *log.Logger
	failureCount     atomic.Uint64
}

// New creates local notify/listen endpoints for fp and subscribes to its
// wire subject. logger may be nil, in which case per-event failures are
// counted but not logged.
func New(bus localbus.Bus, wireConn *wire.Conn, fp localbus.Fingerprint, maxDrainPerCycle int, logger *log.Logger) (*Connector, error) {
	notifier, err := bus.CreateNotifier(fp)
	if err != nil {
		return nil, fmt.Errorf("eventconnector: create local notifier: %w", err)
	}
	listener, err := bus.CreateListener(fp)
	if err != nil {
		notifier.Close()
		return nil, fmt.Errorf("eventconnector: create local listener: %w", err)
	}

	subject := servicekey.Event(fp)
	wireSub, err := wireConn.Raw().SubscribeSync(subject)
	if err != nil {
		notifier.Close()
		listener.Close()
		return nil, fmt.Errorf("eventconnector: subscribe %s: %w", subject, &discovery.Error{Kind: discovery.ErrWireSessionFailure, Err: err})
	}

	if maxDrainPerCycle <= 0 {
		maxDrainPerCycle = 256
	}

	return &Connector{
		fp:               fp,
		localNotifier:    notifier,
		localListener:    listener,
		wireConn:         wireConn,
		wireSub:          wireSub,
		subject:          subject,
		maxDrainPerCycle: maxDrainPerCycle,
		logger:           logger,
	}, nil
}

// Propagate drains queued notifications in both directions without blocking.
// A single notification's relay failure is logged and counted, not
// returned — it must not abort the rest of this cycle's drain in either
// direction.
func (c *Connector) Propagate() error {
	c.localToWire()
	c.wireToLocal()
	return nil
}

// FailureCount returns the cumulative number of per-event relay failures
// since the connector was created.
func (c *Connector) FailureCount() uint64 {
	return c.failureCount.Load()
}

func (c *Connector) recordFailure(direction string, err error) {
	c.failureCount.Add(1)
	if c.logger != nil {
		c.logger.Warn("propagation step failed",
			"fingerprint", c.fp, "direction", direction,
			"error", &discovery.Error{Kind: discovery.ErrPropagationStep, Err: err})
	}
}

func (c *Connector) localToWire() {
	ids, origin, err := c.localListener.DrainDistinct()
	if err != nil {
		c.recordFailure("local->wire", err)
		return
	}

	n := 0
	for id := range ids {
		if n >= c.maxDrainPerCycle {
			return
		}
		// An id whose origin is this connector's own notifier was raised by
		// the wire->local leg relaying an incoming notification; forwarding
		// it back out would bounce it across the bridge forever.
		if origin[id] == c.localNotifier.ID() {
			continue
		}

		msg := &nats.Msg{Subject: c.subject, Data: encodeEventID(id)}
		c.wireConn.StampOrigin(msg)
		if err := c.wireConn.Raw().PublishMsg(msg); err != nil {
			c.recordFailure("local->wire", err)
			n++
			continue
		}
		n++
	}
}

func (c *Connector) wireToLocal() {
	for i := 0; i < c.maxDrainPerCycle; i++ {
		msg, err := c.wireSub.NextMsg(0)
		if err != nil {
			if err == nats.ErrTimeout {
				return
			}
			c.recordFailure("wire->local", err)
			continue
		}
		if c.wireConn.IsOwnOrigin(msg) {
			continue
		}
		id, ok := decodeEventID(msg.Data)
		if !ok {
			continue
		}
		if err := c.localNotifier.Notify(id); err != nil {
			c.recordFailure("wire->local", err)
			continue
		}
	}
}

func encodeEventID(id localbus.EventID) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func decodeEventID(data []byte) (localbus.EventID, bool) {
	if len(data) != 8 {
		return 0, false
	}
	return localbus.EventID(binary.BigEndian.Uint64(data)), true
}

// Close releases the connector's local ports and wire subscription.
func (c *Connector) Close() error {
	c.wireSub.Unsubscribe()
	err1 := c.localNotifier.Close()
	err2 := c.localListener.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
