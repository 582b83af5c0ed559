package discovery

import (
	"fmt"

	"go.tunnelbridge/internal/localbus"
)

// Tracker synchronizes a snapshot of the local bus's service registry and
// reports the set difference (added) since the previous poll. The removed
// set is observed but not acted upon — see DESIGN.md's "Removed services"
// decision.
//
// Tracker holds its previously observed set behind a plain struct field: the
// facade that owns this port is single-threaded, so no lock is required.
type Tracker struct {
	registry localbus.Registry
	known    map[localbus.Fingerprint]localbus.ServiceDescriptor
}

// NewTracker returns a Tracker that diffs against registry.
func NewTracker(registry localbus.Registry) *Tracker {
	return &Tracker{
		registry: registry,
		known:    make(map[localbus.Fingerprint]localbus.ServiceDescriptor),
	}
}

// Poll implements Port.
func (t *Tracker) Poll(cb Callback) error {
	current, err := t.registry.Snapshot()
	if err != nil {
		return &Error{Kind: ErrTrackerSynchronization, Err: fmt.Errorf("snapshot registry: %w", err)}
	}

	var added []localbus.ServiceDescriptor
	for fp, desc := range current {
		if _, ok := t.known[fp]; !ok {
			added = append(added, desc)
		}
	}

	var removed []localbus.Fingerprint
	for fp := range t.known {
		if _, ok := current[fp]; !ok {
			removed = append(removed, fp)
		}
	}
	_ = removed // observed, intentionally not acted upon; see DESIGN.md

	// Record the new snapshot before invoking callbacks, so a callback
	// failure partway through does not re-surface already-processed
	// fingerprints on the next poll — mirrors the Rust tracker's
	// sync-then-iterate order. Removed fingerprints stay recorded, so a
	// service that disappears and comes back is not reported again.
	for fp, desc := range current {
		t.known[fp] = desc
	}

	for _, desc := range added {
		if err := cb(desc); err != nil {
			return &Error{Kind: ErrProcessing, Err: fmt.Errorf("service %s: %w", desc.Fingerprint, err)}
		}
	}
	return nil
}
