package wire

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"go.tunnelbridge/internal/testutil"
)

func connectForTest(t *testing.T, url string, instance uuid.UUID) *Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := Connect(ctx, Config{URL: url, InstanceID: instance}, "tunnel_details_test")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConnectProvisionsDetailsBucket(t *testing.T) {
	url := testutil.StartEmbeddedNATS(t)
	conn := connectForTest(t, url, uuid.New())
	require.NotNil(t, conn.Details())
	require.NotEqual(t, uuid.Nil, conn.InstanceID())
}

func TestStampAndDetectOwnOrigin(t *testing.T) {
	url := testutil.StartEmbeddedNATS(t)
	mine := connectForTest(t, url, uuid.New())
	msg := &nats.Msg{Subject: "x"}
	mine.StampOrigin(msg)
	require.True(t, mine.IsOwnOrigin(msg))

	other := connectForTest(t, url, uuid.New())
	require.False(t, other.IsOwnOrigin(msg))
}

func TestIsOwnOriginFalseForUnstampedMessage(t *testing.T) {
	url := testutil.StartEmbeddedNATS(t)
	conn := connectForTest(t, url, uuid.New())
	require.False(t, conn.IsOwnOrigin(&nats.Msg{Subject: "x"}))
}
