package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedHeadersDeterministic(t *testing.T) {
	auth := &HMACAuth{Key: "key-1", Secret: "topsecret"}

	a := auth.SignedHeadersAt("POST", "/v1/pools", `{"symbol":"AGX"}`, 1700000000)
	b := auth.SignedHeadersAt("POST", "/v1/pools", `{"symbol":"AGX"}`, 1700000000)
	assert.Equal(t, a, b)

	assert.Equal(t, "key-1", a["X-LP-API-KEY"])
	assert.Equal(t, "1700000000", a["X-LP-TIMESTAMP"])
	assert.NotEmpty(t, a["X-LP-SIGNATURE"])

	// Any change to the signed message changes the signature.
	c := auth.SignedHeadersAt("POST", "/v1/pools", `{"symbol":"AGY"}`, 1700000000)
	assert.NotEqual(t, a["X-LP-SIGNATURE"], c["X-LP-SIGNATURE"])
}

func TestHMACAuthStringRedacts(t *testing.T) {
	auth := &HMACAuth{Key: "key-123456", Secret: "verysecret"}
	s := auth.String()
	assert.NotContains(t, s, "verysecret")
	assert.Contains(t, s, "key-****")
}

func TestEncryptDecryptSecretRoundTrip(t *testing.T) {
	blob, err := EncryptSecret("api-secret-value", "hunter2")
	require.NoError(t, err)

	got, err := DecryptSecret(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "api-secret-value", got)

	_, err = DecryptSecret(blob, "wrong-password")
	assert.Error(t, err)
}

func TestEncryptSecretRejectsEmptyInputs(t *testing.T) {
	_, err := EncryptSecret("", "hunter2")
	assert.Error(t, err)

	_, err = EncryptSecret("secret", "")
	assert.Error(t, err)
}

func TestLoadSecretResolutionOrder(t *testing.T) {
	// Raw secret wins.
	got, err := LoadSecret(SecretConfig{RawSecret: "raw"})
	require.NoError(t, err)
	assert.Equal(t, "raw", got)

	// Encrypted file path.
	blob, err := EncryptSecret("from-file", "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "secret.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadSecret(SecretConfig{EncryptedSecretPath: path, SecretPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	// Nothing configured.
	_, err = LoadSecret(SecretConfig{})
	assert.Error(t, err)
}
