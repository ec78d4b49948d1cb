package keypair

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
)

// rsaTestKey returns a 2048 bit key shared by the whole package.
func rsaTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()

	testKeyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})

	return testKey
}

func pkcs1PEM(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
}

func pkcs8PEM(t *testing.T, key any) []byte {
	t.Helper()

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func parsePublicKeyPEM(t *testing.T, publicKeyPEM string) *rsa.PublicKey {
	t.Helper()

	block, rest := pem.Decode([]byte(publicKeyPEM))
	require.NotNil(t, block)
	require.Empty(t, rest)
	require.Equal(t, "PUBLIC KEY", block.Type)

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)

	publicKey, ok := key.(*rsa.PublicKey)
	require.True(t, ok, "expected *rsa.PublicKey, got %T", key)

	return publicKey
}

func TestDerivePublicKey(t *testing.T) {
	key := rsaTestKey(t)

	cases := []struct {
		name  string
		input []byte
	}{
		{name: "pkcs1", input: pkcs1PEM(key)},
		{name: "pkcs8", input: pkcs8PEM(t, key)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			publicKeyPEM, err := DerivePublicKey(tc.input)
			require.NoError(t, err)

			assert.Contains(t, publicKeyPEM, "-----BEGIN PUBLIC KEY-----")
			assert.Contains(t, publicKeyPEM, "-----END PUBLIC KEY-----")

			publicKey := parsePublicKeyPEM(t, publicKeyPEM)
			assert.Equal(t, 0, key.N.Cmp(publicKey.N))
			assert.Equal(t, key.E, publicKey.E)
		})
	}
}

func TestDerivePublicKeyIsDeterministic(t *testing.T) {
	key := rsaTestKey(t)

	first, err := DerivePublicKey(pkcs1PEM(key))
	require.NoError(t, err)

	second, err := DerivePublicKey(pkcs1PEM(key))
	require.NoError(t, err)

	fromPKCS8, err := DerivePublicKey(pkcs8PEM(t, key))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, fromPKCS8)
}

func TestDerivePublicKeyErrors(t *testing.T) {
	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	encrypted := pem.EncodeToMemory(&pem.Block{
		Type: "RSA PRIVATE KEY",
		Headers: map[string]string{
			"Proc-Type": "4,ENCRYPTED",
			"DEK-Info":  "AES-256-CBC,00112233445566778899AABBCCDDEEFF",
		},
		Bytes: []byte("ciphertext"),
	})

	cases := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{
			name:    "empty",
			input:   nil,
			wantErr: ErrNoPEMBlock,
		},
		{
			name:    "not pem",
			input:   []byte("definitely not a key"),
			wantErr: ErrNoPEMBlock,
		},
		{
			name:    "legacy encrypted",
			input:   encrypted,
			wantErr: ErrEncryptedKey,
		},
		{
			name:    "pkcs8 encrypted",
			input:   pem.EncodeToMemory(&pem.Block{Type: "ENCRYPTED PRIVATE KEY", Bytes: []byte{0x30}}),
			wantErr: ErrEncryptedKey,
		},
		{
			name:    "ec key",
			input:   pkcs8PEM(t, ecKey),
			wantErr: ErrUnsupportedKey,
		},
		{
			name:    "certificate",
			input:   pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{0x30}}),
			wantErr: ErrUnsupportedKey,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			publicKeyPEM, err := DerivePublicKey(tc.input)
			assert.Empty(t, publicKeyPEM)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestDerivePublicKeyCorruptDER(t *testing.T) {
	corrupt := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: []byte("garbage")})

	_, err := DerivePublicKey(corrupt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse PKCS#1 private key")
}
