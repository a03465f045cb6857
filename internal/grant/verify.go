package grant

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VerifyOption customises Verify.
type VerifyOption func(*verifyOptions)

type verifyOptions struct {
	now     func() time.Time
	scope   string
	targets []int64
}

// WithClock overrides the time source used for exp/nbf checks.
func WithClock(now func() time.Time) VerifyOption {
	return func(o *verifyOptions) { o.now = now }
}

// RequireScope rejects grants that do not carry scope.
func RequireScope(scope string) VerifyOption {
	return func(o *verifyOptions) { o.scope = scope }
}

// RequireTargets rejects grants whose targets do not include every id.
func RequireTargets(ids ...int64) VerifyOption {
	return func(o *verifyOptions) { o.targets = ids }
}

// Verify checks the signature against pub and validates the claims: exp must
// be in the future, nbf must not be, jti must be present. It is the check a
// conforming receiver runs; replay tracking of jti is the receiver's job.
func Verify(tokenString string, pub ed25519.PublicKey, opts ...VerifyOption) (*Claims, error) {
	o := verifyOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) { return pub, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithTimeFunc(o.now),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		return nil, err
	}

	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidClaims)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidClaims)
	}
	if o.scope != "" && !claims.HasScope(o.scope) {
		return nil, fmt.Errorf("%w: %s", ErrScopeMissing, o.scope)
	}
	if len(o.targets) > 0 && !claims.Covers(o.targets...) {
		return nil, ErrTargetNotAllowed
	}
	return claims, nil
}

// KeyID returns the kid header of tokenString without verifying it, so a
// receiver can pick the device key to verify with.
func KeyID(tokenString string) (string, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return "", err
	}
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return "", fmt.Errorf("%w: missing kid", ErrInvalidClaims)
	}
	return kid, nil
}
