// Package cryptox holds the client's cryptographic primitives: envelope key
// generation and RSA-OAEP wrapping for the receipt service, and the AES-GCM
// sealing used to protect the secure credential tier at rest.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"

	"github.com/dmitrijs2005/financekit/internal/common"
	"golang.org/x/crypto/argon2"
)

// SealSaltSize is the length of the random salt fed to DeriveMasterKey.
const SealSaltSize = 16

// ErrSealedDataTooShort is returned by Open when the input cannot even hold a nonce.
var ErrSealedDataTooShort = errors.New("sealed data too short")

// DeriveMasterKey stretches secret into a 256-bit AES key with argon2id.
func DeriveMasterKey(secret []byte, salt []byte) []byte {
	return argon2.IDKey(secret, salt, 1, 64*1024, 4, 32)
}

// MakeVerifier returns a value that proves knowledge of masterKey without
// revealing it. It is stored next to the salt to reject a wrong secret.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// Seal encrypts plaintext with AES-GCM under key. A fresh random nonce is
// generated for every call and prepended to the returned ciphertext.
func Seal(key, plaintext []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())
	return aesgcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal. Any tampering with nonce or ciphertext makes it fail.
func Open(key, sealed []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	ns := aesgcm.NonceSize()
	if len(sealed) < ns {
		return nil, ErrSealedDataTooShort
	}

	return aesgcm.Open(nil, sealed[:ns], sealed[ns:], nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
