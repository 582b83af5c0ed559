package remotediscovery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"go.tunnelbridge/internal/localbus"
	"go.tunnelbridge/internal/servicekey"
	"go.tunnelbridge/internal/testutil"
	"go.tunnelbridge/internal/wire"
)

func newTestWire(t *testing.T) *wire.Conn {
	t.Helper()
	url := testutil.StartEmbeddedNATS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := wire.Connect(ctx, wire.Config{URL: url, InstanceID: uuid.New()}, servicekey.DetailsKVBucket)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestSweepFindsExistingAnnouncement(t *testing.T) {
	conn := newTestWire(t)
	ctx := context.Background()

	desc := localbus.ServiceDescriptor{Name: "preexisting"}.WithFingerprint()
	payload, err := json.Marshal(desc)
	require.NoError(t, err)
	_, err = conn.Details().Put(ctx, servicekey.Details(desc.Fingerprint), payload)
	require.NoError(t, err)

	port, err := New(conn.Details())
	require.NoError(t, err)
	defer port.Close()

	var found []localbus.ServiceDescriptor
	require.Eventually(t, func() bool {
		_ = port.Drain(func(d localbus.ServiceDescriptor) error {
			found = append(found, d)
			return nil
		})
		return len(found) == 1
	}, 2*time.Second, 20*time.Millisecond)
	require.Equal(t, desc.Fingerprint, found[0].Fingerprint)

	found = nil
	require.NoError(t, port.Drain(func(d localbus.ServiceDescriptor) error {
		found = append(found, d)
		return nil
	}))
	require.Empty(t, found, "a fingerprint already delivered must not be redelivered")
}

func TestLiveAnnouncementDeliveredOnce(t *testing.T) {
	conn := newTestWire(t)
	ctx := context.Background()

	port, err := New(conn.Details())
	require.NoError(t, err)
	defer port.Close()

	require.NoError(t, port.Drain(func(localbus.ServiceDescriptor) error { return nil }))

	desc := localbus.ServiceDescriptor{Name: "live"}.WithFingerprint()
	payload, err := json.Marshal(desc)
	require.NoError(t, err)
	_, err = conn.Details().Put(ctx, servicekey.Details(desc.Fingerprint), payload)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		var found bool
		_ = port.Drain(func(d localbus.ServiceDescriptor) error {
			if d.Fingerprint == desc.Fingerprint {
				found = true
			}
			return nil
		})
		return found
	}, 2*time.Second, 20*time.Millisecond)
}
