// Package grant mints and verifies the short-lived capability tokens a device
// presents to the receipt service. A grant is a compact JWS signed with the
// device's Ed25519 key: header {alg:"EdDSA", typ:"JWT", kid:<device id>}.
package grant

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MaxTTL bounds the lifetime of any minted grant.
const MaxTTL = 5 * time.Minute

var (
	ErrInvalidClaims    = errors.New("invalid grant claims")
	ErrInvalidSigner    = errors.New("invalid grant signer")
	ErrScopeMissing     = errors.New("grant scope missing")
	ErrTargetNotAllowed = errors.New("grant does not cover target")
)

// Claims is the grant payload.
//
// Issuer, Subject, ID (jti), IssuedAt, NotBefore and ExpiresAt come from the
// embedded registered claims; Issuer is optional.
type Claims struct {
	Scope   []string `json:"scope"`
	Targets []int64  `json:"targets,omitempty"`
	jwt.RegisteredClaims
}

// NewClaims fills a claim set for subject valid from now-skew until now+ttl
// with a fresh random jti.
func NewClaims(subject string, scope []string, targets []int64, now time.Time, ttl, skew time.Duration) Claims {
	return Claims{
		Scope:   scope,
		Targets: targets,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-skew)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

// HasScope reports whether the grant carries scope s.
func (c Claims) HasScope(s string) bool {
	return slices.Contains(c.Scope, s)
}

// Covers reports whether every id in ids is listed in Targets. Grants without
// targets are not restricted to specific resources.
func (c Claims) Covers(ids ...int64) bool {
	if len(c.Targets) == 0 {
		return true
	}
	for _, id := range ids {
		if !slices.Contains(c.Targets, id) {
			return false
		}
	}
	return true
}

func (c Claims) validateForMint() error {
	switch {
	case c.Subject == "":
		return fmt.Errorf("%w: empty subject", ErrInvalidClaims)
	case len(c.Scope) == 0:
		return fmt.Errorf("%w: empty scope", ErrInvalidClaims)
	case c.ID == "":
		return fmt.Errorf("%w: empty jti", ErrInvalidClaims)
	case c.IssuedAt == nil || c.NotBefore == nil || c.ExpiresAt == nil:
		return fmt.Errorf("%w: iat, nbf and exp are required", ErrInvalidClaims)
	case !c.ExpiresAt.After(c.NotBefore.Time):
		return fmt.Errorf("%w: exp must be after nbf", ErrInvalidClaims)
	case c.ExpiresAt.Sub(c.IssuedAt.Time) > MaxTTL:
		return fmt.Errorf("%w: lifetime exceeds %s", ErrInvalidClaims, MaxTTL)
	}
	return nil
}

// Mint signs claims with the device key and tags the header with deviceID.
func Mint(deviceID string, key ed25519.PrivateKey, claims Claims) (string, error) {
	if deviceID == "" {
		return "", fmt.Errorf("%w: empty device id", ErrInvalidSigner)
	}
	if len(key) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("%w: bad private key length %d", ErrInvalidSigner, len(key))
	}
	if err := claims.validateForMint(); err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = deviceID

	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign grant: %w", err)
	}
	return signed, nil
}
