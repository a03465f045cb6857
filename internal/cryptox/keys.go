package cryptox

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedKey is the root of every public key parsing failure.
var ErrMalformedKey = errors.New("malformed key")

// KeyError describes why key material could not be used.
type KeyError struct {
	Reason string
	Err    error
}

func (e *KeyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrMalformedKey, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedKey, e.Reason)
}

// Unwrap lets errors.Is match both ErrMalformedKey and the underlying cause.
func (e *KeyError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedKey, e.Err}
	}
	return []error{ErrMalformedKey}
}

func malformed(reason string, err error) error {
	return &KeyError{Reason: reason, Err: err}
}

// ParseRSAPublicKeyPEM parses a PEM encoded RSA public key. Both SPKI
// ("PUBLIC KEY") and PKCS#1 ("RSA PUBLIC KEY") blocks are accepted.
func ParseRSAPublicKeyPEM(s string) (*rsa.PublicKey, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, malformed("empty pem", nil)
	}

	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, malformed("no pem block", nil)
	}

	switch block.Type {
	case "RSA PUBLIC KEY":
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, malformed("pkcs1", err)
		}
		return pub, nil
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, malformed("pkix", err)
		}
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, malformed(fmt.Sprintf("unsupported key type %T", key), nil)
		}
		return pub, nil
	default:
		return nil, malformed(fmt.Sprintf("unexpected pem block %q", block.Type), nil)
	}
}
