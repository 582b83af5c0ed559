// Package discovery implements the two local-bus discovery sources: a
// polling tracker that diffs the local bus registry, and a subscription to
// an external discovery daemon's event stream. Both are level-triggered:
// re-polling a stable world yields no callbacks.
package discovery

import (
	"fmt"

	"go.tunnelbridge/internal/localbus"
)

// ErrorKind classifies a tunnel bridge failure. It spans more than this
// package's own Poll return value: construction and connectors reuse it so
// every layer logs/wraps failures under the same taxonomy.
type ErrorKind int

const (
	// ErrTrackerSynchronization means the local registry snapshot failed.
	ErrTrackerSynchronization ErrorKind = iota
	// ErrProcessing means the callback invoked during discovery returned an error.
	ErrProcessing
	// ErrEndpointConstruction means creating a local publisher/subscriber/
	// notifier/listener for a newly discovered service failed. The facade
	// logs and counts this; it never aborts the rest of the discovered
	// batch.
	ErrEndpointConstruction
	// ErrWireSessionFailure means the underlying wire transport refused a
	// publish/subscribe/query at session-establishment time.
	ErrWireSessionFailure
	// ErrPropagationStep means a single sample or event failed to relay
	// during Propagate. It is logged and counted on the connector, never
	// returned from Propagate itself.
	ErrPropagationStep
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTrackerSynchronization:
		return "TrackerSynchronization"
	case ErrProcessing:
		return "Processing"
	case ErrEndpointConstruction:
		return "EndpointConstruction"
	case ErrWireSessionFailure:
		return "WireSessionFailure"
	case ErrPropagationStep:
		return "PropagationStep"
	default:
		return "Unknown"
	}
}

// Error is the typed error value used across discovery, endpoint
// construction, and propagation for a classified failure.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("discovery: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Callback is invoked once per service that has newly appeared since the
// previous Poll.
type Callback func(localbus.ServiceDescriptor) error

// Port is the shared contract of the Tracker and Daemon variants.
type Port interface {
	Poll(cb Callback) error
}

// WellKnownTopic is the local topic an external discovery-service daemon
// publishes descriptor events on.
const WellKnownTopic = "iox2://discovery/services/"
