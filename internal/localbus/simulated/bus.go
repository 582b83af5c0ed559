// Package simulated provides an in-process, channel-backed implementation of
// localbus.Bus. It stands in for the real shared-memory fabric (out of
// scope for this repository, and reachable from Go only through a cgo
// binding) so that the tunnel's connectors and discovery ports have a
// concrete, dependency-free fabric to run against in tests and in the
// cmd/tunnel demo binary.
package simulated

import (
	"sync"
	"sync/atomic"

	"go.tunnelbridge/internal/localbus"
)

// Bus is a minimal, single-process local bus.
type Bus struct {
	mu       sync.Mutex
	services map[localbus.Fingerprint]localbus.ServiceDescriptor

	pubsub map[localbus.Fingerprint]*pubsubTopic
	events map[localbus.Fingerprint]*eventTopic
	topics map[string]*descriptorTopic

	nextPort atomic.Uint64
}

// New returns an empty simulated bus.
func New() *Bus {
	return &Bus{
		services: make(map[localbus.Fingerprint]localbus.ServiceDescriptor),
		pubsub:   make(map[localbus.Fingerprint]*pubsubTopic),
		events:   make(map[localbus.Fingerprint]*eventTopic),
		topics:   make(map[string]*descriptorTopic),
	}
}

func (b *Bus) allocPortID() localbus.PortID {
	return localbus.PortID(b.nextPort.Add(1))
}

// RegisterService adds (or replaces) a service in the registry, as if a
// local producer had just created it. Tests use this to simulate local
// services appearing.
func (b *Bus) RegisterService(desc localbus.ServiceDescriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.services[desc.Fingerprint] = desc
}

// RemoveService removes a service from the registry, as if its sole
// producer had terminated.
func (b *Bus) RemoveService(fp localbus.Fingerprint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.services, fp)
}

// Snapshot implements localbus.Registry.
func (b *Bus) Snapshot() (map[localbus.Fingerprint]localbus.ServiceDescriptor, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[localbus.Fingerprint]localbus.ServiceDescriptor, len(b.services))
	for k, v := range b.services {
		out[k] = v
	}
	return out, nil
}

// PublishDiscoveryEvent implements localbus.Bus by delivering a descriptor to
// every current subscriber of topic, simulating an external discovery daemon
// announcing a service.
func (b *Bus) PublishDiscoveryEvent(topic string, desc localbus.ServiceDescriptor) error {
	t := b.descriptorTopicFor(topic)
	t.publish(desc)
	return nil
}

// Close releases all resources. Simulated ports hold no OS resources, so
// this is a no-op kept to satisfy localbus.Bus.
func (b *Bus) Close() error { return nil }
