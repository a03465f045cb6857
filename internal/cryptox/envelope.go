package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// DefaultDEKSize is the content key length used for new receipts (AES-256).
const DefaultDEKSize = 32

var (
	ErrInvalidKeySize = errors.New("invalid content key size")
	ErrWrapFailed     = errors.New("key wrap failed")
	ErrUnwrapFailed   = errors.New("key unwrap failed")
)

// ValidDEKSize reports whether n is a content key length the service accepts.
func ValidDEKSize(n int) bool {
	return n == 16 || n == 24 || n == 32
}

// GenerateKey returns size bytes of fresh key material from crypto/rand.
func GenerateKey(size int) ([]byte, error) {
	if !ValidDEKSize(size) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKeySize, size)
	}
	key := make([]byte, size)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// WrapKey encrypts key for the holder of the private half of publicKeyPEM
// using RSA-OAEP with SHA-256 (hash and MGF1) and an empty label. The result
// is standard base64 and differs on every call.
func WrapKey(publicKeyPEM string, key []byte) (string, error) {
	pub, err := ParseRSAPublicKeyPEM(publicKeyPEM)
	if err != nil {
		return "", err
	}
	return WrapKeyWith(pub, key)
}

// WrapKeyWith is WrapKey for an already parsed public key.
func WrapKeyWith(pub *rsa.PublicKey, key []byte) (string, error) {
	if len(key) == 0 {
		return "", fmt.Errorf("%w: %d", ErrInvalidKeySize, 0)
	}
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrWrapFailed, err)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// UnwrapKey reverses WrapKey and enforces the content key length policy.
func UnwrapKey(priv *rsa.PrivateKey, wrapped string) ([]byte, error) {
	ct, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnwrapFailed, err)
	}
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnwrapFailed, err)
	}
	if !ValidDEKSize(len(key)) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKeySize, len(key))
	}
	return key, nil
}
