package servicekey

import (
	"testing"

	"github.com/stretchr/testify/require"

	"go.tunnelbridge/internal/localbus"
)

func TestKeyFormat(t *testing.T) {
	fp := localbus.ComputeFingerprint(localbus.PatternPubSub, localbus.ShapeFixed, localbus.ElementType{}, localbus.Params{})

	require.Equal(t, "tunnel."+fp.String()+".payload", Payload(fp))
	require.Equal(t, "tunnel."+fp.String()+".event", Event(fp))
	require.Equal(t, "tunnel."+fp.String()+".details", Details(fp))
}

func TestKeysAreDistinctAcrossKinds(t *testing.T) {
	fp := localbus.ComputeFingerprint(localbus.PatternEvent, localbus.ShapeFixed, localbus.ElementType{}, localbus.Params{})

	keys := map[string]bool{
		Payload(fp): true,
		Event(fp):   true,
		Details(fp): true,
	}
	require.Len(t, keys, 3)
}

func TestDetailsWildcardMatchesDetailsKeys(t *testing.T) {
	require.Equal(t, "tunnel.*.details", DetailsWildcard)
}
