// Package tunneltable holds the TunneledServiceTable: the facade's record of
// which services currently have a live connector bridging them. It does no
// locking of its own, matching the single-threaded-cell design of the
// facade that owns it.
package tunneltable

import "go.tunnelbridge/internal/localbus"

// Connector is the lifecycle a payload or event connector exposes to the
// facade: a non-blocking drain-both-directions step, a running count of
// per-item relay failures, and teardown.
type Connector interface {
	Propagate() error
	FailureCount() uint64
	Close() error
}

// Entry is one tunneled service's descriptor and live connector.
type Entry struct {
	Descriptor localbus.ServiceDescriptor
	Connector  Connector
}

// Table maps fingerprints to their tunneled entry.
type Table struct {
	entries map[localbus.Fingerprint]Entry
}

// New returns an empty table.
func New() *Table {
	return &Table{entries: make(map[localbus.Fingerprint]Entry)}
}

// Insert adds fp's entry if absent. It reports whether the entry was newly
// inserted; an existing entry is left untouched.
func (t *Table) Insert(fp localbus.Fingerprint, entry Entry) bool {
	if _, exists := t.entries[fp]; exists {
		return false
	}
	t.entries[fp] = entry
	return true
}

// Contains reports whether fp already has a tunneled entry.
func (t *Table) Contains(fp localbus.Fingerprint) bool {
	_, ok := t.entries[fp]
	return ok
}

// Get returns fp's entry, if any.
func (t *Table) Get(fp localbus.Fingerprint) (Entry, bool) {
	e, ok := t.entries[fp]
	return e, ok
}

// Fingerprints returns every tunneled fingerprint, in no particular order.
func (t *Table) Fingerprints() []localbus.Fingerprint {
	out := make([]localbus.Fingerprint, 0, len(t.entries))
	for fp := range t.entries {
		out = append(out, fp)
	}
	return out
}

// Each calls fn once per entry. fn must not mutate the table.
func (t *Table) Each(fn func(localbus.Fingerprint, Entry)) {
	for fp, e := range t.entries {
		fn(fp, e)
	}
}

// Len returns the number of tunneled services.
func (t *Table) Len() int { return len(t.entries) }

// CloseAll closes every entry's connector, returning the first error
// encountered (if any) after attempting all of them.
func (t *Table) CloseAll() error {
	var first error
	for _, e := range t.entries {
		if e.Connector == nil {
			continue
		}
		if err := e.Connector.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
