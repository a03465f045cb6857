package storage

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/dmitrijs2005/financekit/internal/logging"
)

// Store is the error-free storage boundary used by the client core.
//
// Get reports absence with ok == false. Set and Remove report success. No
// method returns an error or panics on storage failure; failures are logged.
// SetMany and RemoveMany are all-or-nothing where the backing repository
// supports transactions. Read is for callers that must tell a missing key
// from an unreadable one before acting on absence.
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Read(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) bool
	Remove(ctx context.Context, key string) bool
	SetMany(ctx context.Context, values map[string]string) bool
	RemoveMany(ctx context.Context, keys ...string) bool
	Keys(ctx context.Context) []string
}

// SafeStore adapts a Repository to Store.
type SafeStore struct {
	repo Repository
	log  logging.Logger
	tier string
}

// NewSafeStore wraps repo; tier names the store in log records.
func NewSafeStore(repo Repository, log logging.Logger, tier string) *SafeStore {
	return &SafeStore{repo: repo, log: log.With("tier", tier), tier: tier}
}

func (s *SafeStore) Get(ctx context.Context, key string) (string, bool) {
	v, ok, err := s.Read(ctx, key)
	if err != nil {
		s.log.Warn(ctx, "store read failed", "key", key, "error", err)
		return "", false
	}
	return v, ok
}

func (s *SafeStore) Read(ctx context.Context, key string) (string, bool, error) {
	v, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return string(v), true, nil
}

func (s *SafeStore) Set(ctx context.Context, key, value string) bool {
	if err := s.repo.Set(ctx, key, []byte(value)); err != nil {
		s.log.Warn(ctx, "store write failed", "key", key, "error", err)
		return false
	}
	return true
}

func (s *SafeStore) Remove(ctx context.Context, key string) bool {
	if err := s.repo.Delete(ctx, key); err != nil {
		s.log.Warn(ctx, "store remove failed", "key", key, "error", err)
		return false
	}
	return true
}

func (s *SafeStore) SetMany(ctx context.Context, values map[string]string) bool {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	err := batch(ctx, s.repo, func(ctx context.Context, r Repository) error {
		for _, k := range keys {
			if err := r.Set(ctx, k, []byte(values[k])); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Warn(ctx, "store batch write failed", "keys", keys, "error", err)
		return false
	}
	return true
}

func (s *SafeStore) RemoveMany(ctx context.Context, keys ...string) bool {
	err := batch(ctx, s.repo, func(ctx context.Context, r Repository) error {
		for _, k := range keys {
			if err := r.Delete(ctx, k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Warn(ctx, "store batch remove failed", "keys", keys, "error", err)
		return false
	}
	return true
}

// Keys lists stored keys in sorted order; on failure it returns nil.
func (s *SafeStore) Keys(ctx context.Context) []string {
	all, err := s.repo.List(ctx)
	if err != nil {
		s.log.Warn(ctx, "store list failed", "error", err)
		return nil
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetJSON decodes the value under key into a T. Absent keys and undecodable
// values yield def; the latter is logged.
func GetJSON[T any](ctx context.Context, s Store, log logging.Logger, key string, def T) T {
	raw, ok := s.Get(ctx, key)
	if !ok || raw == "" {
		return def
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		log.Warn(ctx, "stored value is not valid json, using default", "key", key, "error", err)
		return def
	}
	return v
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, log logging.Logger, key string, v any) bool {
	b, err := json.Marshal(v)
	if err != nil {
		log.Warn(ctx, "value cannot be encoded", "key", key, "error", err)
		return false
	}
	return s.Set(ctx, key, string(b))
}
