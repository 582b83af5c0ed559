package announce

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"go.tunnelbridge/internal/localbus"
	"go.tunnelbridge/internal/servicekey"
	"go.tunnelbridge/internal/testutil"
	"go.tunnelbridge/internal/wire"
)

func newConn(t *testing.T) *wire.Conn {
	t.Helper()
	url := testutil.StartEmbeddedNATS(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := wire.Connect(ctx, wire.Config{URL: url, InstanceID: uuid.New()}, servicekey.DetailsKVBucket)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestAnnounceThenLookup(t *testing.T) {
	conn := newConn(t)
	port := New(conn.Details())

	desc := localbus.ServiceDescriptor{Name: "widget", Pattern: localbus.PatternPubSub}.WithFingerprint()
	ctx := context.Background()

	require.NoError(t, port.Announce(ctx, desc))

	got, ok, err := port.Lookup(ctx, desc.Fingerprint)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, desc.Fingerprint, got.Fingerprint)
	require.Equal(t, desc.Name, got.Name)
}

func TestLookupMissingFingerprint(t *testing.T) {
	conn := newConn(t)
	port := New(conn.Details())

	_, ok, err := port.Lookup(context.Background(), localbus.Fingerprint{9})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReannounceReplacesValue(t *testing.T) {
	conn := newConn(t)
	port := New(conn.Details())
	ctx := context.Background()

	desc := localbus.ServiceDescriptor{Name: "v1", Pattern: localbus.PatternEvent}.WithFingerprint()
	require.NoError(t, port.Announce(ctx, desc))

	desc.Name = "v2"
	require.NoError(t, port.Announce(ctx, desc))

	got, ok, err := port.Lookup(ctx, desc.Fingerprint)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", got.Name)
}
