// Package servicekey maps a service fingerprint to the wire keys the tunnel
// uses for payload, event, and service-details traffic. The mapping is pure
// and injective: distinct (fingerprint, kind) pairs never collide, and it
// carries no state of its own. The exact string form is a stable external
// contract — peers with divergent schemes will not interoperate.
package servicekey

import (
	"fmt"

	"go.tunnelbridge/internal/localbus"
)

// Kind identifies which of a service's three wire channels a key addresses.
type Kind string

const (
	KindPayload Kind = "payload"
	KindEvent   Kind = "event"
	KindDetails Kind = "details"
)

const keyPrefix = "tunnel"

// Key returns the NATS subject (and, for KindDetails, the JetStream KV key)
// for a given fingerprint and channel kind.
func Key(fp localbus.Fingerprint, kind Kind) string {
	return fmt.Sprintf("%s.%s.%s", keyPrefix, fp.String(), kind)
}

// Payload is shorthand for Key(fp, KindPayload).
func Payload(fp localbus.Fingerprint) string { return Key(fp, KindPayload) }

// Event is shorthand for Key(fp, KindEvent).
func Event(fp localbus.Fingerprint) string { return Key(fp, KindEvent) }

// Details is shorthand for Key(fp, KindDetails).
func Details(fp localbus.Fingerprint) string { return Key(fp, KindDetails) }

// DetailsWildcard is the key pattern RemoteDiscoveryPort watches in the
// details KV bucket in order to observe every service's details
// announcements.
const DetailsWildcard = keyPrefix + ".*." + string(KindDetails)

// DetailsKVBucket is the JetStream key-value bucket holding the last
// announced descriptor per fingerprint, keyed by Details(fp).
const DetailsKVBucket = "tunnel_details"
