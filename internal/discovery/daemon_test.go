package discovery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"go.tunnelbridge/internal/localbus"
	"go.tunnelbridge/internal/localbus/simulated"
)

func TestDaemonDeliversPublishedDescriptors(t *testing.T) {
	bus := simulated.New()
	daemon, err := NewDaemon(bus, WellKnownTopic)
	require.NoError(t, err)
	defer daemon.Close()

	desc := localbus.ServiceDescriptor{Name: "remote"}.WithFingerprint()
	require.NoError(t, bus.PublishDiscoveryEvent(WellKnownTopic, desc))

	var got []localbus.ServiceDescriptor
	require.NoError(t, daemon.Poll(func(d localbus.ServiceDescriptor) error {
		got = append(got, d)
		return nil
	}))
	require.Len(t, got, 1)
	require.Equal(t, desc.Fingerprint, got[0].Fingerprint)
}

func TestDaemonSurfacesOverflowBeforeDraining(t *testing.T) {
	bus := simulated.New()
	daemon, err := NewDaemon(bus, WellKnownTopic)
	require.NoError(t, err)
	defer daemon.Close()

	for i := 0; i < 128; i++ {
		require.NoError(t, bus.PublishDiscoveryEvent(WellKnownTopic, localbus.ServiceDescriptor{Name: "x"}))
	}

	err = daemon.Poll(func(localbus.ServiceDescriptor) error { return nil })
	var discErr *Error
	require.ErrorAs(t, err, &discErr)
	require.Equal(t, ErrProcessing, discErr.Kind)
}
