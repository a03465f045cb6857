package storage

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/financekit/internal/common"
	"github.com/dmitrijs2005/financekit/internal/cryptox"
)

// Reserved keys, stored unsealed. SaltKey holds the key-derivation salt and
// VerifierKey a verifier of the derived key; neither is secret.
const (
	SaltKey     = "__seal_salt"
	VerifierKey = "__seal_verifier"
)

var (
	ErrEmptySecret = errors.New("empty sealing secret")
	// ErrWrongSecret means the secret does not match the one the store was
	// created with. Nothing is read or written in that case.
	ErrWrongSecret = errors.New("wrong sealing secret")
)

func reserved(key string) bool { return key == SaltKey || key == VerifierKey }

// SealedRepository encrypts every value with AES-GCM before it reaches the
// inner repository. The sealing key is derived from a caller-supplied secret
// and a per-database random salt.
type SealedRepository struct {
	inner Repository
	key   []byte
}

// NewSealedRepository loads (or on first use creates) the salt and verifier
// in inner and derives the sealing key from secret. It fails with
// ErrWrongSecret when secret does not match the stored verifier.
func NewSealedRepository(ctx context.Context, inner Repository, secret []byte) (*SealedRepository, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	salt, err := inner.Get(ctx, SaltKey)
	if err != nil {
		return nil, fmt.Errorf("load seal salt: %w", err)
	}
	if len(salt) == 0 {
		salt = common.GenerateRandByteArray(cryptox.SealSaltSize)
		key := cryptox.DeriveMasterKey(secret, salt)
		err := batch(ctx, inner, func(ctx context.Context, r Repository) error {
			if err := r.Set(ctx, SaltKey, salt); err != nil {
				return err
			}
			return r.Set(ctx, VerifierKey, cryptox.MakeVerifier(key))
		})
		if err != nil {
			return nil, fmt.Errorf("store seal salt: %w", err)
		}
		return &SealedRepository{inner: inner, key: key}, nil
	}

	key := cryptox.DeriveMasterKey(secret, salt)
	saved, err := inner.Get(ctx, VerifierKey)
	if err != nil {
		return nil, fmt.Errorf("load seal verifier: %w", err)
	}
	if len(saved) == 0 {
		// Stores created before verifiers existed: prove the key against a
		// sealed value, then record the verifier.
		if err := checkKey(ctx, inner, key); err != nil {
			return nil, err
		}
		if err := inner.Set(ctx, VerifierKey, cryptox.MakeVerifier(key)); err != nil {
			return nil, fmt.Errorf("store seal verifier: %w", err)
		}
	} else if subtle.ConstantTimeCompare(saved, cryptox.MakeVerifier(key)) == 0 {
		return nil, ErrWrongSecret
	}

	return &SealedRepository{inner: inner, key: key}, nil
}

func checkKey(ctx context.Context, inner Repository, key []byte) error {
	all, err := inner.List(ctx)
	if err != nil {
		return fmt.Errorf("check seal key: %w", err)
	}
	for k, sealed := range all {
		if reserved(k) {
			continue
		}
		if _, err := cryptox.Open(key, sealed); err != nil {
			return ErrWrongSecret
		}
		return nil
	}
	return nil
}

func (r *SealedRepository) view(inner Repository) *SealedRepository {
	return &SealedRepository{inner: inner, key: r.key}
}

func (r *SealedRepository) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := r.inner.Get(ctx, key)
	if err != nil || sealed == nil {
		return nil, err
	}
	plain, err := cryptox.Open(r.key, sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to open kv[%s]: %w", key, err)
	}
	return plain, nil
}

func (r *SealedRepository) Set(ctx context.Context, key string, value []byte) error {
	if reserved(key) {
		return fmt.Errorf("kv[%s] is reserved", key)
	}
	sealed, err := cryptox.Seal(r.key, value)
	if err != nil {
		return fmt.Errorf("failed to seal kv[%s]: %w", key, err)
	}
	return r.inner.Set(ctx, key, sealed)
}

func (r *SealedRepository) Delete(ctx context.Context, key string) error {
	if reserved(key) {
		return nil
	}
	return r.inner.Delete(ctx, key)
}

func (r *SealedRepository) List(ctx context.Context) (map[string][]byte, error) {
	all, err := r.inner.List(ctx)
	if err != nil {
		return nil, err
	}
	delete(all, SaltKey)
	delete(all, VerifierKey)

	result := make(map[string][]byte, len(all))
	for k, sealed := range all {
		plain, err := cryptox.Open(r.key, sealed)
		if err != nil {
			return nil, fmt.Errorf("failed to open kv[%s]: %w", k, err)
		}
		result[k] = plain
	}
	return result, nil
}

// Clear drops every sealed value but keeps the salt and verifier, so the
// derived key stays valid.
func (r *SealedRepository) Clear(ctx context.Context) error {
	return batch(ctx, r.inner, func(ctx context.Context, inner Repository) error {
		all, err := inner.List(ctx)
		if err != nil {
			return err
		}
		for k := range all {
			if reserved(k) {
				continue
			}
			if err := inner.Delete(ctx, k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SealedRepository) Batch(ctx context.Context, fn func(ctx context.Context, r Repository) error) error {
	return batch(ctx, r.inner, func(ctx context.Context, inner Repository) error {
		return fn(ctx, r.view(inner))
	})
}
