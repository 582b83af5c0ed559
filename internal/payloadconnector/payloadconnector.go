// Package payloadconnector bridges one pub/sub service between the local
// bus and the wire. It owns one local publisher (wire -> local) and one
// local subscriber (local -> wire) for the service's fingerprint, plus a
// raw subject on the wire, and drains both directions without blocking.
package payloadconnector

import (
	"fmt"
	"sync/atomic"

	log "github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"go.tunnelbridge/internal/discovery"
	"go.tunnelbridge/internal/localbus"
	"go.tunnelbridge/internal/servicekey"
	"go.tunnelbridge/internal/wire"
)

// Connector bridges a single pub/sub service's traffic in both directions.
type Connector struct {
	desc localbus.ServiceDescriptor

	localPub localbus.Publisher
	localSub localbus.Subscriber

	wireConn *wire.Conn
	wireSub  *nats.Subscription
	subject  string

	maxDrainPerCycle int
	logger           *log.Logger
	failureCount     atomic.Uint64
}

// New creates local publish/subscribe endpoints for desc and subscribes to
// its wire subject. maxDrainPerCycle bounds how many samples one Propagate
// call forwards per direction, so a single saturated service cannot starve
// the others sharing a facade's propagation cycle. logger may be nil, in
// which case per-sample failures are counted but not logged.
func New(bus localbus.Bus, wireConn *wire.Conn, desc localbus.ServiceDescriptor, maxDrainPerCycle int, logger *log.Logger) (*Connector, error) {
	localPub, err := bus.CreatePublisher(desc.Fingerprint, desc.Shape, desc.Element.Size, desc.Params.InitialSliceLen)
	if err != nil {
		return nil, fmt.Errorf("payloadconnector: create local publisher: %w", err)
	}
	localSub, err := bus.CreateSubscriber(desc.Fingerprint)
	if err != nil {
		localPub.Close()
		return nil, fmt.Errorf("payloadconnector: create local subscriber: %w", err)
	}

	subject := servicekey.Payload(desc.Fingerprint)
	wireSub, err := wireConn.Raw().SubscribeSync(subject)
	if err != nil {
		localPub.Close()
		localSub.Close()
		return nil, fmt.Errorf("payloadconnector: subscribe %s: %w", subject, &discovery.Error{Kind: discovery.ErrWireSessionFailure, Err: err})
	}

	if maxDrainPerCycle <= 0 {
		maxDrainPerCycle = 256
	}

	return &Connector{
		desc:             desc,
		localPub:         localPub,
		localSub:         localSub,
		wireConn:         wireConn,
		wireSub:          wireSub,
		subject:          subject,
		maxDrainPerCycle: maxDrainPerCycle,
		logger:           logger,
	}, nil
}

// Propagate drains queued traffic in both directions, up to maxDrainPerCycle
// samples each way. It never blocks: both the local subscriber and the wire
// subscription are polled non-blockingly. A single sample's relay failure is
// logged and counted, not returned — it must not abort the rest of this
// cycle's drain in either direction.
func (c *Connector) Propagate() error {
	c.localToWire()
	c.wireToLocal()
	return nil
}

// FailureCount returns the cumulative number of per-sample relay failures
// since the connector was created.
func (c *Connector) FailureCount() uint64 {
	return c.failureCount.Load()
}

func (c *Connector) recordFailure(direction string, err error) {
	c.failureCount.Add(1)
	if c.logger != nil {
		c.logger.Warn("propagation step failed",
			"fingerprint", c.desc.Fingerprint, "direction", direction,
			"error", &discovery.Error{Kind: discovery.ErrPropagationStep, Err: err})
	}
}

func (c *Connector) localToWire() {
	for i := 0; i < c.maxDrainPerCycle; i++ {
		sample, ok, err := c.localSub.Receive()
		if err != nil {
			c.recordFailure("local->wire", err)
			continue
		}
		if !ok {
			return
		}
		// A sample originating from this connector's own local publisher is
		// the wire->local leg's own write coming back around; forwarding it
		// would create an infinite loop between the two buses.
		if sample.Origin == c.localPub.ID() {
			continue
		}

		msg := &nats.Msg{Subject: c.subject, Data: sample.Bytes}
		c.wireConn.StampOrigin(msg)
		if err := c.wireConn.Raw().PublishMsg(msg); err != nil {
			c.recordFailure("local->wire", err)
			continue
		}
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
		if err := c.writeLocal(msg.Data); err != nil {
			c.recordFailure("wire->local", err)
			continue
		}
	}
}

func (c *Connector) writeLocal(data []byte) error {
	var slot localbus.Slot
	var err error
	if c.desc.Shape == localbus.ShapeSlice {
		n := 1
		if c.desc.Element.Size > 0 {
			n = len(data) / int(c.desc.Element.Size)
			if n == 0 {
				n = 1
			}
		}
		slot, err = c.localPub.LoanSlice(n)
	} else {
		slot, err = c.localPub.LoanFixed()
	}
	if err != nil {
		return err
	}
	slot.Write(data)
	return slot.Send()
}

// Close releases the connector's local ports and wire subscription.
func (c *Connector) Close() error {
	c.wireSub.Unsubscribe()
	err1 := c.localPub.Close()
	err2 := c.localSub.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
