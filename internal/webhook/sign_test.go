package webhook

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignIsDeterministicAndHex(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	s1 := sign("secret", body)
	s2 := sign("secret", body)
	require.Equal(t, s1, s2)
	require.Len(t, s1, 64) // hex-encoded SHA-256
}

func TestVerifyAcceptsBareHexAndPrefixed(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	sig := sign("secret", body)

	require.True(t, verify("secret", sig, body))
	require.True(t, verify("secret", "sha256="+sig, body))
}

func TestVerifyRejectsWrongSecretOrTamperedBody(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	sig := sign("secret", body)

	require.False(t, verify("wrong-secret", sig, body))
	require.False(t, verify("secret", sig, []byte(`{"hello":"tampered"}`)))
}
