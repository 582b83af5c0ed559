// Package remotediscovery implements RemoteDiscoveryPort: the wire-side
// counterpart of the local discovery.Port, surfacing services announced by
// other tunnel instances. It rides a single JetStream key-value watcher
// covering every details key: the watcher replays every currently stored
// descriptor first, then streams live updates, so a tunnel that starts
// after a service was announced still finds it without any separate sweep.
package remotediscovery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"go.tunnelbridge/internal/discovery"
	"go.tunnelbridge/internal/localbus"
	"go.tunnelbridge/internal/servicekey"
)

// Port polls the wire for services announced by other tunnel instances.
type Port struct {
	watcher jetstream.KeyWatcher
	seen    map[localbus.Fingerprint]struct{}
}

// New starts a watch over every key in the details bucket.
func New(kv jetstream.KeyValue) (*Port, error) {
	watcher, err := kv.Watch(context.Background(), servicekey.DetailsWildcard)
	if err != nil {
		return nil, fmt.Errorf("remotediscovery: watch %s: %w", servicekey.DetailsWildcard, &discovery.Error{Kind: discovery.ErrWireSessionFailure, Err: err})
	}
	return &Port{watcher: watcher, seen: make(map[localbus.Fingerprint]struct{})}, nil
}

// Drain delivers every not-yet-seen remote descriptor currently buffered by
// the watcher to cb, exactly once per fingerprint, without blocking for
// more to arrive.
func (p *Port) Drain(cb func(localbus.ServiceDescriptor) error) error {
	for {
		select {
		case entry, ok := <-p.watcher.Updates():
			if !ok {
				return nil
			}
			// A nil entry marks the end of the watcher's initial replay of
			// already-stored keys; there is nothing to deliver for it.
			if entry == nil {
				continue
			}
			if entry.Operation() != jetstream.KeyValuePut {
				continue
			}
			if err := p.deliver(entry.Value(), cb); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (p *Port) deliver(payload []byte, cb func(localbus.ServiceDescriptor) error) error {
	var desc localbus.ServiceDescriptor
	if err := json.Unmarshal(payload, &desc); err != nil {
		return fmt.Errorf("remotediscovery: decode descriptor: %w", err)
	}
	if _, ok := p.seen[desc.Fingerprint]; ok {
		return nil
	}
	p.seen[desc.Fingerprint] = struct{}{}
	if err := cb(desc); err != nil {
		return fmt.Errorf("remotediscovery: service %s: %w", desc.Fingerprint, err)
	}
	return nil
}

// Close stops the watcher.
func (p *Port) Close() error {
	if p.watcher == nil {
		return nil
	}
	return p.watcher.Stop()
}
