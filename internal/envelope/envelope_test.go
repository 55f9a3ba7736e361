package envelope

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"io"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRSAKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, base64.StdEncoding.EncodeToString(der)
}

func TestSeal_RSARoundTrip(t *testing.T) {
	key, publicKey := newRSAKey(t)
	s := New()
	s.now = func() time.Time { return time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC) }

	env, err := s.Seal("123456", publicKey)
	require.NoError(t, err)

	assert.Equal(t, 1, env.Version)
	assert.Equal(t, AlgorithmRSAOAEP256, env.Algorithm)
	assert.Equal(t, "2026-10-16T09:30:00Z", env.ProducedAt)
	require.NotEmpty(t, env.Ciphertext)

	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	require.NoError(t, err)
	plaintext, err := rsa.DecryptOAEP(sha256.New(), nil, key, ciphertext, nil)
	require.NoError(t, err)
	assert.Equal(t, "123456", string(plaintext))
}

func TestSeal_FreshCiphertextPerCall(t *testing.T) {
	_, publicKey := newRSAKey(t)
	s := New()

	first, err := s.Seal("123456", publicKey)
	require.NoError(t, err)
	second, err := s.Seal("123456", publicKey)
	require.NoError(t, err)

	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)
}

func TestSeal_PEMArmoredKey(t *testing.T) {
	key, _ := newRSAKey(t)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	armored := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	env, err := New().Seal("654321", string(armored))
	require.NoError(t, err)
	assert.Equal(t, AlgorithmRSAOAEP256, env.Algorithm)
}

func TestSeal_AgeRoundTrip(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	env, err := New().Seal("G7K2QX", identity.Recipient().String())
	require.NoError(t, err)
	assert.Equal(t, AlgorithmAgeX25519, env.Algorithm)

	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	require.NoError(t, err)
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	require.NoError(t, err)
	plaintext, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "G7K2QX", string(plaintext))
}

func TestSeal_MalformedKeys(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	ecDER, err := x509.MarshalPKIXPublicKey(&ecKey.PublicKey)
	require.NoError(t, err)
	ecdsaSPKI := base64.StdEncoding.EncodeToString(ecDER)

	tests := map[string]string{
		"not base64":     "%%%not-base64%%%",
		"not spki":       base64.StdEncoding.EncodeToString([]byte("definitely not a key")),
		"non rsa key":    ecdsaSPKI,
		"bad age string": "age1notarealrecipient",
		"empty":          "",
	}

	for name, key := range tests {
		t.Run(name, func(t *testing.T) {
			env, err := New().Seal("123456", key)
			assert.Nil(t, env)
			assert.ErrorIs(t, err, ErrEncryption)
			assert.ErrorIs(t, ValidatePublicKey(key), ErrEncryption)
		})
	}
}
