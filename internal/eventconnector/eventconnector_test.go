package eventconnector

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"go.tunnelbridge/internal/localbus"
	"go.tunnelbridge/internal/localbus/simulated"
	"go.tunnelbridge/internal/servicekey"
	"go.tunnelbridge/internal/testutil"
	"go.tunnelbridge/internal/wire"
)

func connectWire(t *testing.T, url string) *wire.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := wire.Connect(ctx, wire.Config{URL: url, InstanceID: uuid.New()}, servicekey.DetailsKVBucket)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEventCrossesToRemoteBusConsolidated(t *testing.T) {
	url := testutil.StartEmbeddedNATS(t)
	fp := localbus.ComputeFingerprint(localbus.PatternEvent, localbus.ShapeFixed, localbus.ElementType{}, localbus.Params{})

	busA := simulated.New()
	connA := connectWire(t, url)
	connectorA, err := New(busA, connA, fp, 16, nil)
	require.NoError(t, err)
	t.Cleanup(func() { connectorA.Close() })

	busB := simulated.New()
	connB := connectWire(t, url)
	connectorB, err := New(busB, connB, fp, 16, nil)
	require.NoError(t, err)
	t.Cleanup(func() { connectorB.Close() })

	notifier, err := busA.CreateNotifier(fp)
	require.NoError(t, err)
	require.NoError(t, notifier.Notify(5))
	require.NoError(t, notifier.Notify(5))
	require.NoError(t, notifier.Notify(5))
	require.NoError(t, notifier.Notify(6))

	remoteListener, err := busB.CreateListener(fp)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		require.NoError(t, connectorA.Propagate())
		require.NoError(t, connectorB.Propagate())
		ids, _, err := remoteListener.DrainDistinct()
		require.NoError(t, err)
		return len(ids) == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestEventLoopbackIsSuppressed(t *testing.T) {
	url := testutil.StartEmbeddedNATS(t)
	fp := localbus.ComputeFingerprint(localbus.PatternEvent, localbus.ShapeFixed, localbus.ElementType{}, localbus.Params{})

	bus := simulated.New()
	conn := connectWire(t, url)
	connector, err := New(bus, conn, fp, 16, nil)
	require.NoError(t, err)
	t.Cleanup(func() { connector.Close() })

	listener, err := bus.CreateListener(fp)
	require.NoError(t, err)

	require.NoError(t, conn.Raw().Publish(servicekey.Event(fp), encodeEventID(42)))

	require.Eventually(t, func() bool {
		require.NoError(t, connector.Propagate())
		ids, _, err := listener.DrainDistinct()
		require.NoError(t, err)
		return len(ids) == 1
	}, 2*time.Second, 20*time.Millisecond)

	observer, err := conn.Raw().SubscribeSync(servicekey.Event(fp))
	require.NoError(t, err)
	defer observer.Unsubscribe()

	for i := 0; i < 5; i++ {
		require.NoError(t, connector.Propagate())
	}
	_, err = observer.NextMsg(200 * time.Millisecond)
	require.ErrorIs(t, err, nats.ErrTimeout, "local loopback must not be republished onto the wire")
}
