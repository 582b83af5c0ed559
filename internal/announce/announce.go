// Package announce implements AnnouncementPort: publishing a locally
// discovered service's descriptor onto the wire so remote peers can find it,
// and looking up a fingerprint's descriptor on demand. Retention of the last
// announced value for late-joining queriers is delegated entirely to the
// JetStream key-value bucket backing it — there is no bespoke republish
// logic here.
package announce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"go.tunnelbridge/internal/localbus"
	"go.tunnelbridge/internal/servicekey"
)

// Port announces locally discovered services onto the wire.
type Port struct {
	kv jetstream.KeyValue
}

// New returns a Port backed by the given details bucket.
func New(kv jetstream.KeyValue) *Port {
	return &Port{kv: kv}
}

// Announce publishes desc under its fingerprint's details key, replacing any
// previously announced value. Calling it twice for the same fingerprint with
// identical content is harmless.
func (p *Port) Announce(ctx context.Context, desc localbus.ServiceDescriptor) error {
	payload, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("announce: encode %s: %w", desc.Fingerprint, err)
	}
	key := servicekey.Details(desc.Fingerprint)
	if _, err := p.kv.Put(ctx, key, payload); err != nil {
		return fmt.Errorf("announce: put %s: %w", key, err)
	}
	return nil
}

// Lookup retrieves the last announced descriptor for fp, if any.
func (p *Port) Lookup(ctx context.Context, fp localbus.Fingerprint) (localbus.ServiceDescriptor, bool, error) {
	entry, err := p.kv.Get(ctx, servicekey.Details(fp))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return localbus.ServiceDescriptor{}, false, nil
		}
		return localbus.ServiceDescriptor{}, false, fmt.Errorf("announce: lookup %s: %w", fp, err)
	}
	var desc localbus.ServiceDescriptor
	if err := json.Unmarshal(entry.Value(), &desc); err != nil {
		return localbus.ServiceDescriptor{}, false, fmt.Errorf("announce: decode %s: %w", fp, err)
	}
	return desc, true, nil
}
