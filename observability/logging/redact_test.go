package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSensitiveKeysAreNeverAllowlisted(t *testing.T) {
	for key := range sensitiveKeys {
		require.False(t, IsAllowlisted(key), "key %q is both sensitive and allowlisted", key)
	}
}

func TestMaskFieldRedactsPrincipals(t *testing.T) {
	attr := MaskField("caller", "2vxsx-fae")
	require.Equal(t, RedactedValue, attr.Value.String())

	// Allowlisted protocol fields pass through untouched.
	attr = MaskField("withdrawal_id", "7")
	require.Equal(t, "7", attr.Value.String())

	// Empty values stay empty rather than becoming placeholder noise.
	attr = MaskField("caller", "")
	require.Equal(t, "", attr.Value.String())
}

func TestIsSensitiveNormalizesKeys(t *testing.T) {
	require.True(t, IsSensitive(" Caller "))
	require.True(t, IsSensitive("SUBACCOUNT"))
	require.False(t, IsSensitive("tag"))
}
