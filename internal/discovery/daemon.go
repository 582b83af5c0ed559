package discovery

import (
	"fmt"

	"go.tunnelbridge/internal/localbus"
)

// Daemon subscribes to the well-known local topic an external discovery
// service publishes descriptor events on. Each received descriptor triggers
// the callback once; a full delivery buffer (missed events) is surfaced as a
// Processing error rather than silently dropped.
type Daemon struct {
	sub localbus.DescriptorSubscriber
}

// NewDaemon subscribes bus to topic and returns a ready-to-poll Daemon.
func NewDaemon(bus localbus.Bus, topic string) (*Daemon, error) {
	sub, err := bus.SubscribeDescriptors(topic)
	if err != nil {
		return nil, fmt.Errorf("discovery: subscribe %q: %w", topic, err)
	}
	return &Daemon{sub: sub}, nil
}

// Poll implements Port.
func (d *Daemon) Poll(cb Callback) error {
	if missed := d.sub.Overflowed(); missed > 0 {
		return &Error{Kind: ErrProcessing, Err: fmt.Errorf("discovery daemon subscription dropped %d event(s)", missed)}
	}

	for {
		desc, ok, err := d.sub.Receive()
		if err != nil {
			return &Error{Kind: ErrTrackerSynchronization, Err: err}
		}
		if !ok {
			return nil
		}
		if err := cb(desc); err != nil {
			return &Error{Kind: ErrProcessing, Err: fmt.Errorf("service %s: %w", desc.Fingerprint, err)}
		}
	}
}

// Close releases the underlying subscription.
func (d *Daemon) Close() error {
	return d.sub.Close()
}
