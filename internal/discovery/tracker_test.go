package discovery

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"go.tunnelbridge/internal/localbus"
	"go.tunnelbridge/internal/localbus/simulated"
)

func TestTrackerReportsAppearedExactlyOnce(t *testing.T) {
	bus := simulated.New()
	desc := localbus.ServiceDescriptor{Name: "svc", Pattern: localbus.PatternPubSub}.WithFingerprint()
	bus.RegisterService(desc)

	tracker := NewTracker(bus)

	var seen []localbus.ServiceDescriptor
	require.NoError(t, tracker.Poll(func(d localbus.ServiceDescriptor) error {
		seen = append(seen, d)
		return nil
	}))
	require.Len(t, seen, 1)
	require.Equal(t, desc.Fingerprint, seen[0].Fingerprint)

	seen = nil
	require.NoError(t, tracker.Poll(func(d localbus.ServiceDescriptor) error {
		seen = append(seen, d)
		return nil
	}))
	require.Empty(t, seen, "a stable world must not re-report an already-known service")
}

func TestTrackerIgnoresRemoval(t *testing.T) {
	bus := simulated.New()
	desc := localbus.ServiceDescriptor{Name: "svc", Pattern: localbus.PatternEvent}.WithFingerprint()
	bus.RegisterService(desc)

	tracker := NewTracker(bus)
	require.NoError(t, tracker.Poll(func(localbus.ServiceDescriptor) error { return nil }))

	bus.RemoveService(desc.Fingerprint)
	var called bool
	require.NoError(t, tracker.Poll(func(localbus.ServiceDescriptor) error {
		called = true
		return nil
	}))
	require.False(t, called, "removal must not trigger a callback")

	bus.RegisterService(desc)
	called = false
	require.NoError(t, tracker.Poll(func(localbus.ServiceDescriptor) error {
		called = true
		return nil
	}))
	require.False(t, called, "re-adding a fingerprint already marked known must not re-report it")
}

func TestTrackerWrapsCallbackError(t *testing.T) {
	bus := simulated.New()
	desc := localbus.ServiceDescriptor{Name: "svc"}.WithFingerprint()
	bus.RegisterService(desc)

	tracker := NewTracker(bus)
	boom := errors.New("boom")
	err := tracker.Poll(func(localbus.ServiceDescriptor) error { return boom })

	var discErr *Error
	require.ErrorAs(t, err, &discErr)
	require.Equal(t, ErrProcessing, discErr.Kind)
	require.ErrorIs(t, err, boom)
}
