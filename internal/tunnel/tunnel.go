// Package tunnel implements the Tunnel Facade: the single-threaded
// coordinator that ties the local-bus discovery ports, the wire-side
// discovery and announcement ports, and per-service connectors together
// into the two verbs a host loop drives — Discover and Propagate. Neither
// verb blocks or suspends; all state here is held in plain struct fields,
// safe because the facade is never called concurrently with itself.
package tunnel

import (
	"context"
	"fmt"
	"sync/atomic"

	log "github.com/charmbracelet/log"

	"go.tunnelbridge/internal/announce"
	"go.tunnelbridge/internal/discovery"
	"go.tunnelbridge/internal/eventconnector"
	"go.tunnelbridge/internal/localbus"
	"go.tunnelbridge/internal/logging"
	"go.tunnelbridge/internal/payloadconnector"
	"go.tunnelbridge/internal/remotediscovery"
	"go.tunnelbridge/internal/tunneltable"
	"go.tunnelbridge/internal/wire"
)

// Scope selects which discovery plane(s) a Discover call consults.
type Scope int

const (
	ScopeLocal Scope = 1 << iota
	ScopeWire
	ScopeBoth = ScopeLocal | ScopeWire
)

// Config configures a Tunnel's behavior, independent of the bus/wire
// connections it is given.
type Config struct {
	// MaxDrainPerCycle bounds how many samples/notifications one Propagate
	// call forwards per direction per service, so one saturated service
	// cannot starve the others sharing a cycle.
	MaxDrainPerCycle int
	Logger           *log.Logger
}

// Tunnel is the facade bridging one local bus to one wire connection.
type Tunnel struct {
	bus      localbus.Bus
	wireConn *wire.Conn
	logger   *log.Logger

	localDiscovery  discovery.Port
	remoteDiscovery *remotediscovery.Port
	announcer       *announce.Port

	table            *tunneltable.Table
	maxDrainPerCycle int

	discoveryFailureCount atomic.Uint64
}

// New constructs a Tunnel. localDiscovery is the Tracker or Daemon variant
// to poll for newly appeared local services; pass nil to disable the local
// discovery plane (e.g. a wire-only relay).
func New(bus localbus.Bus, wireConn *wire.Conn, localDiscovery discovery.Port, cfg Config) (*Tunnel, error) {
	remoteDiscovery, err := remotediscovery.New(wireConn.Details())
	if err != nil {
		return nil, fmt.Errorf("tunnel: init remote discovery: %w", err)
	}

	maxDrain := cfg.MaxDrainPerCycle
	if maxDrain <= 0 {
		maxDrain = 256
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.New(logging.Config{Prefix: "[tunnel]"})
	}

	return &Tunnel{
		bus:              bus,
		wireConn:         wireConn,
		logger:           logger,
		localDiscovery:   localDiscovery,
		remoteDiscovery:  remoteDiscovery,
		announcer:        announce.New(wireConn.Details()),
		table:            tunneltable.New(),
		maxDrainPerCycle: maxDrain,
	}, nil
}

// Discover polls the requested discovery plane(s) once, each newly found
// service gaining a connector bridging it. It never blocks.
func (t *Tunnel) Discover(ctx context.Context, scope Scope) error {
	if scope&ScopeLocal != 0 && t.localDiscovery != nil {
		if err := t.localDiscovery.Poll(t.onLocalDiscovered(ctx)); err != nil {
			return fmt.Errorf("tunnel: local discovery: %w", err)
		}
	}
	if scope&ScopeWire != 0 {
		if err := t.remoteDiscovery.Drain(t.onRemoteDiscovered); err != nil {
			return fmt.Errorf("tunnel: wire discovery: %w", err)
		}
	}
	return nil
}

func (t *Tunnel) onLocalDiscovered(ctx context.Context) discovery.Callback {
	return func(desc localbus.ServiceDescriptor) error {
		if err := t.announcer.Announce(ctx, desc); err != nil {
			return fmt.Errorf("announce %s: %w", desc.Fingerprint, err)
		}
		return t.registerService(desc)
	}
}

func (t *Tunnel) onRemoteDiscovered(desc localbus.ServiceDescriptor) error {
	return t.registerService(desc)
}

// registerService creates a connector for desc's fingerprint if one does not
// already exist. Registration is idempotent regardless of which discovery
// plane observed the service first.
//
// A connector-construction (EndpointConstruction) failure is logged and
// counted here, not returned: the fingerprint is simply left untunneled (it
// may succeed on a future rediscovery), and the discovery port's Poll loop
// continues on to the rest of this cycle's discovered batch rather than
// aborting it.
func (t *Tunnel) registerService(desc localbus.ServiceDescriptor) error {
	if t.table.Contains(desc.Fingerprint) {
		return nil
	}

	var connector tunneltable.Connector
	var err error
	switch desc.Pattern {
	case localbus.PatternEvent:
		connector, err = eventconnector.New(t.bus, t.wireConn, desc.Fingerprint, t.maxDrainPerCycle, t.logger)
	default:
		connector, err = payloadconnector.New(t.bus, t.wireConn, desc, t.maxDrainPerCycle, t.logger)
	}
	if err != nil {
		t.discoveryFailureCount.Add(1)
		t.logger.Warn("endpoint construction failed",
			"fingerprint", desc.Fingerprint, "name", desc.Name,
			"error", &discovery.Error{Kind: discovery.ErrEndpointConstruction, Err: err})
		return nil
	}

	t.table.Insert(desc.Fingerprint, tunneltable.Entry{Descriptor: desc, Connector: connector})
	t.logger.Info("service tunneled", "fingerprint", desc.Fingerprint, "name", desc.Name, "pattern", desc.Pattern)
	return nil
}

// Propagate drains every tunneled service's connector once, in both
// directions. Per-item relay failures are handled (logged/counted) inside
// each connector; a Propagate call returning an error here would mean
// something more fundamental than a single sample failed, so it is logged
// at a higher severity but still does not halt the rest of the table.
func (t *Tunnel) Propagate() {
	t.table.Each(func(fp localbus.Fingerprint, entry tunneltable.Entry) {
		if err := entry.Connector.Propagate(); err != nil {
			t.logger.Error("propagate call failed unexpectedly", "fingerprint", fp, "error", err)
		}
	})
}

// FailureCount returns the cumulative number of per-sample/event relay
// failures across every tunneled service's connector.
func (t *Tunnel) FailureCount() uint64 {
	var total uint64
	t.table.Each(func(_ localbus.Fingerprint, entry tunneltable.Entry) {
		total += entry.Connector.FailureCount()
	})
	return total
}

// DiscoveryFailureCount returns the cumulative number of endpoint
// construction failures encountered while registering newly discovered
// services.
func (t *Tunnel) DiscoveryFailureCount() uint64 {
	return t.discoveryFailureCount.Load()
}

// TunneledServices returns the fingerprints of every service currently
// bridged.
func (t *Tunnel) TunneledServices() []localbus.Fingerprint {
	return t.table.Fingerprints()
}

// Close tears down every connector and the wire connection.
func (t *Tunnel) Close() error {
	tableErr := t.table.CloseAll()
	discErr := t.remoteDiscovery.Close()
	wireErr := t.wireConn.Close()
	if tableErr != nil {
		return tableErr
	}
	if discErr != nil {
		return discErr
	}
	return wireErr
}
