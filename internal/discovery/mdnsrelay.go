package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/grandcat/zeroconf"

	"go.tunnelbridge/internal/localbus"
)

// mDNS TXT-record conventions used to carry a self-describing
// ServiceDescriptor alongside the usual instance/address metadata — kept
// under a single "descriptor" key rather than flattened across many TXT
// entries, so the JSON round-trips exactly.
const (
	mdnsServiceType    = "_iox2-tunnel._tcp"
	mdnsDomain         = "local."
	mdnsDescriptorKey  = "descriptor"
	mdnsDescriptorSize = 1 << 16
)

// MDNSRelay bridges services advertised by OTHER tunnel instances over mDNS
// into this process's local-bus discovery topic, playing the role of an
// external discovery-service daemon for deployments that have no other
// discovery daemon available. It is optional plumbing, not a core tunnel
// component.
type MDNSRelay struct {
	bus   localbus.Bus
	topic string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMDNSRelay constructs a relay that will publish onto topic via bus once
// Start is called.
func NewMDNSRelay(bus localbus.Bus, topic string) *MDNSRelay {
	return &MDNSRelay{bus: bus, topic: topic}
}

// Start launches the mDNS browse loop. Safe to call once.
func (r *MDNSRelay) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		cancel()
		return fmt.Errorf("mdns relay: create resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.consume(ctx, entries)
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_ = resolver.Browse(ctx, mdnsServiceType, mdnsDomain, entries)
		close(entries)
	}()

	return nil
}

// Stop terminates the relay and waits for its goroutines to exit.
func (r *MDNSRelay) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *MDNSRelay) consume(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if entry != nil {
				r.relay(entry)
			}
		}
	}
}

func (r *MDNSRelay) relay(entry *zeroconf.ServiceEntry) {
	desc, ok := decodeDescriptorTXT(entry.Text)
	if !ok {
		return
	}
	_ = r.bus.PublishDiscoveryEvent(r.topic, desc)
}

func decodeDescriptorTXT(txt []string) (localbus.ServiceDescriptor, bool) {
	for _, kv := range txt {
		key, value, ok := splitTXTRecord(kv)
		if !ok || key != mdnsDescriptorKey {
			continue
		}
		if len(value) > mdnsDescriptorSize {
			return localbus.ServiceDescriptor{}, false
		}
		var desc localbus.ServiceDescriptor
		if err := json.Unmarshal([]byte(value), &desc); err != nil {
			return localbus.ServiceDescriptor{}, false
		}
		return desc, true
	}
	return localbus.ServiceDescriptor{}, false
}

func splitTXTRecord(txt string) (key, value string, ok bool) {
	for i := 0; i < len(txt); i++ {
		if txt[i] == '=' {
			return txt[:i], txt[i+1:], true
		}
	}
	return "", "", false
}

// MDNSAnnouncer publishes this tunnel's own known-service descriptors over
// mDNS, the counterpart another tunnel's MDNSRelay observes. It is kept
// separate from AnnouncementPort (the wire-side announcer): this one targets
// a LAN discovery mechanism, not the mesh transport.
type MDNSAnnouncer struct {
	server *zeroconf.Server
	once   sync.Once
}

// AnnounceMDNS publishes desc for a locally known service over mDNS.
func AnnounceMDNS(instance string, port int, desc localbus.ServiceDescriptor) (*MDNSAnnouncer, error) {
	if port <= 0 {
		return nil, fmt.Errorf("mdns announce: invalid port %d", port)
	}
	if instance == "" {
		if hostname, err := os.Hostname(); err == nil && hostname != "" {
			instance = hostname
		} else {
			instance = "tunnel"
		}
	}

	payload, err := json.Marshal(desc)
	if err != nil {
		return nil, fmt.Errorf("mdns announce: encode descriptor: %w", err)
	}

	server, err := zeroconf.Register(instance, mdnsServiceType, mdnsDomain, port,
		[]string{fmt.Sprintf("%s=%s", mdnsDescriptorKey, string(payload))}, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns announce: register: %w", err)
	}
	return &MDNSAnnouncer{server: server}, nil
}

// Stop removes the advertisement.
func (a *MDNSAnnouncer) Stop() {
	a.once.Do(func() {
		if a.server != nil {
			a.server.Shutdown()
		}
	})
}

