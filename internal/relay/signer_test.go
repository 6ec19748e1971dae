package relay_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/zibal-relay/internal/relay"
)

func TestSignFixedVector(t *testing.T) {
	// HMAC-SHA256("k", "T123:1:1") — regression anchor for the canonical
	// message format. Backends recompute this exact digest.
	signer := relay.Signer{Secret: "k"}
	require.Equal(t,
		"9744affe3275d9588f19d28a0997efaef4dd04ee1a30a0934270d42593029e4a",
		signer.Sign("T123", 1, 1),
	)
}

func TestSignDeterministic(t *testing.T) {
	signer := relay.Signer{Secret: "test-secret"}
	first := signer.Sign("8734562190", 1, 2)
	second := signer.Sign("8734562190", 1, 2)
	require.Equal(t, first, second)
	require.Len(t, first, 64)
	require.Regexp(t, "^[0-9a-f]{64}$", first)
}

func TestSignDistinguishesInputs(t *testing.T) {
	signer := relay.Signer{Secret: "test-secret"}
	base := signer.Sign("T123", 1, 1)

	require.NotEqual(t, base, signer.Sign("T124", 1, 1))
	require.NotEqual(t, base, signer.Sign("T123", 0, 1))
	require.NotEqual(t, base, signer.Sign("T123", 1, 2))
	require.NotEqual(t, base, relay.Signer{Secret: "other-secret"}.Sign("T123", 1, 1))
}

func TestSignFieldsAreDelimited(t *testing.T) {
	// "T1" + success 23 must not collide with "T12" + success 3.
	signer := relay.Signer{Secret: "test-secret"}
	require.NotEqual(t, signer.Sign("T1", 23, 1), signer.Sign("T12", 3, 1))
}

func TestVerifySignature(t *testing.T) {
	signer := relay.Signer{Secret: "test-secret"}
	sig := signer.Sign("T123", 1, 2)

	require.True(t, signer.VerifySignature("T123", 1, 2, sig))
	require.False(t, signer.VerifySignature("T123", 0, 2, sig))
	require.False(t, signer.VerifySignature("T123", 1, 2, sig[:63]+"0"))
	require.False(t, signer.VerifySignature("T123", 1, 2, ""))
}
