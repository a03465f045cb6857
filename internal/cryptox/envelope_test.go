package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
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

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		k, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = k
	})
	return testKey
}

func spkiPEM(t *testing.T, pub *rsa.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func pkcs1PEM(pub *rsa.PublicKey) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(pub)}))
}

func TestGenerateKey(t *testing.T) {
	for _, n := range []int{16, 24, 32} {
		k, err := GenerateKey(n)
		require.NoError(t, err)
		assert.Len(t, k, n)
	}

	a, err := GenerateKey(DefaultDEKSize)
	require.NoError(t, err)
	b, err := GenerateKey(DefaultDEKSize)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	for _, n := range []int{0, 8, 31, 64} {
		_, err := GenerateKey(n)
		require.ErrorIs(t, err, ErrInvalidKeySize)
	}
}

func TestWrapKey_RoundTripSPKI(t *testing.T) {
	priv := rsaKey(t)
	dek, err := GenerateKey(32)
	require.NoError(t, err)

	wrapped, err := WrapKey(spkiPEM(t, &priv.PublicKey), dek)
	require.NoError(t, err)

	// 2048-bit modulus -> 256 byte ciphertext -> 344 base64 chars.
	assert.Len(t, wrapped, 344)
	raw, err := base64.StdEncoding.DecodeString(wrapped)
	require.NoError(t, err)
	assert.Len(t, raw, 256)

	got, err := UnwrapKey(priv, wrapped)
	require.NoError(t, err)
	assert.Equal(t, dek, got)
}

func TestWrapKey_PKCS1AndNonDeterministic(t *testing.T) {
	priv := rsaKey(t)
	dek, err := GenerateKey(16)
	require.NoError(t, err)

	w1, err := WrapKey(pkcs1PEM(&priv.PublicKey), dek)
	require.NoError(t, err)
	w2, err := WrapKey(pkcs1PEM(&priv.PublicKey), dek)
	require.NoError(t, err)
	assert.NotEqual(t, w1, w2)

	for _, w := range []string{w1, w2} {
		got, err := UnwrapKey(priv, w)
		require.NoError(t, err)
		assert.Equal(t, dek, got)
	}
}

func TestWrapKey_MalformedPEM(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"garbage":      "not a pem",
		"wrong block":  "-----BEGIN CERTIFICATE-----\nAAAA\n-----END CERTIFICATE-----\n",
		"broken pkix":  "-----BEGIN PUBLIC KEY-----\nAAAA\n-----END PUBLIC KEY-----\n",
		"broken pkcs1": "-----BEGIN RSA PUBLIC KEY-----\nAAAA\n-----END RSA PUBLIC KEY-----\n",
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := WrapKey(p, []byte("0123456789abcdef"))
			require.ErrorIs(t, err, ErrMalformedKey)

			var ke *KeyError
			require.ErrorAs(t, err, &ke)
			assert.NotEmpty(t, ke.Reason)
		})
	}
}

func TestUnwrapKey_Failures(t *testing.T) {
	priv := rsaKey(t)

	_, err := UnwrapKey(priv, "%%%not-base64")
	require.ErrorIs(t, err, ErrUnwrapFailed)

	_, err = UnwrapKey(priv, base64.StdEncoding.EncodeToString([]byte("short")))
	require.ErrorIs(t, err, ErrUnwrapFailed)

	wrapped, err := WrapKeyWith(&priv.PublicKey, []byte("seven!!"))
	require.NoError(t, err)
	_, err = UnwrapKey(priv, wrapped)
	require.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = WrapKeyWith(&priv.PublicKey, nil)
	require.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestUnwrapKey_OnlyMatchingKeypair(t *testing.T) {
	owner := rsaKey(t)
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	for _, size := range []int{16, 24, 32} {
		dek, err := GenerateKey(size)
		require.NoError(t, err)
		wrapped, err := WrapKey(spkiPEM(t, &owner.PublicKey), dek)
		require.NoError(t, err)

		tests := []struct {
			name string
			priv *rsa.PrivateKey
			ok   bool
		}{
			{name: "matching", priv: owner, ok: true},
			{name: "other keypair", priv: other},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := UnwrapKey(tt.priv, wrapped)
				if !tt.ok {
					require.ErrorIs(t, err, ErrUnwrapFailed)
					assert.Nil(t, got)
					return
				}
				require.NoError(t, err)
				assert.Equal(t, dek, got)
			})
		}
	}
}
