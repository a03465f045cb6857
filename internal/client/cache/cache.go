// Package cache is the per-user offline store: decrypted receipts, wrapped
// content keys, the pending-delete outbox and category budgets. Everything is
// persisted to the bulk tier under keys scoped by the active user, and only
// one user's data is ever held on the device.
package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dmitrijs2005/financekit/internal/client/models"
	"github.com/dmitrijs2005/financekit/internal/client/storage"
	"github.com/dmitrijs2005/financekit/internal/common"
	"github.com/dmitrijs2005/financekit/internal/logging"
)

// Bulk-tier keys. Per-user keys are suffixed with ":<username>".
const (
	KeyActiveUser       = "active_user"
	KeyMigrationVersion = "storage_migration_version"

	prefixResources = "receipts_cache:"
	prefixWraps     = "dek_wraps:"
	prefixOutbox    = "delete_outbox:"
	prefixBudgets   = "budgets:"
)

// Status tells what the device knows about a receipt.
type Status int

const (
	StatusAbsent Status = iota
	StatusCached
	// StatusEncrypted means a wrapped key exists but the receipt body has not
	// been fetched or decrypted yet.
	StatusEncrypted
)

func (s Status) String() string {
	switch s {
	case StatusCached:
		return "cached"
	case StatusEncrypted:
		return "encrypted"
	default:
		return "absent"
	}
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the timestamp source for cache entries.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

type Cache struct {
	bulk   storage.Store
	secure storage.Store
	log    logging.Logger
	now    func() time.Time

	mu        sync.RWMutex
	user      string
	hydrated  bool
	resources map[models.ResourceID]models.CachedReceipt
	wraps     map[models.ResourceID]string
	outbox    []models.ResourceID
	budgets   map[string]models.Amount
}

// New builds a cache over the bulk tier. secure is only read by Migrate.
func New(bulk, secure storage.Store, log logging.Logger, opts ...Option) *Cache {
	c := &Cache{
		bulk:   bulk,
		secure: secure,
		log:    log.With("component", "cache"),
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.reset("")
	return c
}

func userKey(prefix, user string) string { return prefix + user }

func userKeys(user string) []string {
	return []string{
		userKey(prefixResources, user),
		userKey(prefixWraps, user),
		userKey(prefixOutbox, user),
		userKey(prefixBudgets, user),
	}
}

func (c *Cache) reset(user string) {
	c.user = user
	c.resources = make(map[models.ResourceID]models.CachedReceipt)
	c.wraps = make(map[models.ResourceID]string)
	c.outbox = nil
	c.budgets = make(map[string]models.Amount)
}

// Hydrate loads user's data, clearing any other user's data first. An empty
// user leaves the cache empty, and the bulk tier untouched, but marks it
// hydrated.
func (c *Cache) Hydrate(ctx context.Context, user string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.switchUser(ctx, user)
	c.hydrated = true
}

func (c *Cache) Hydrated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hydrated
}

// ActiveUser returns the user whose data is loaded.
func (c *Cache) ActiveUser() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user
}

// SetActiveUser switches the cache to user and reports whether the device
// changed hands, i.e. user differs from the last stored user. When it did,
// the previous user's keys are removed from the bulk tier before the new
// user's data is loaded. An empty user only unloads the in-memory data.
func (c *Cache) SetActiveUser(ctx context.Context, user string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.switchUser(ctx, user)
}

func (c *Cache) switchUser(ctx context.Context, user string) bool {
	if user == "" {
		c.reset("")
		return false
	}

	prev, _ := c.bulk.Get(ctx, KeyActiveUser)
	if prev == "" {
		prev = c.user
	}

	if prev != "" && prev != user {
		c.bulk.RemoveMany(ctx, userKeys(prev)...)
		c.log.Info(ctx, "cleared previous user's cache", "user", prev)
	}

	c.reset(user)
	c.bulk.Set(ctx, KeyActiveUser, user)
	c.load(ctx)
	return prev != user
}

// Unload drops the in-memory data without touching the bulk tier. The data
// is reloaded by the next Hydrate or SetActiveUser for the same user.
func (c *Cache) Unload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset("")
}

// ClearUser removes the active user's data from memory and the bulk tier.
func (c *Cache) ClearUser(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	user := c.user
	if user == "" {
		user, _ = c.bulk.Get(ctx, KeyActiveUser)
	}
	if user != "" {
		keys := append(userKeys(user), KeyActiveUser)
		c.bulk.RemoveMany(ctx, keys...)
	}
	c.reset("")
}

func (c *Cache) load(ctx context.Context) {
	u := c.user
	c.resources = c.loadResources(ctx, userKey(prefixResources, u))
	c.wraps = storage.GetJSON(ctx, c.bulk, c.log, userKey(prefixWraps, u), map[models.ResourceID]string{})
	c.outbox = storage.GetJSON(ctx, c.bulk, c.log, userKey(prefixOutbox, u), []models.ResourceID(nil))
	c.budgets = storage.GetJSON(ctx, c.bulk, c.log, userKey(prefixBudgets, u), map[string]models.Amount{})
}

// loadResources decodes entries one by one so a single malformed record does
// not discard the whole cache.
func (c *Cache) loadResources(ctx context.Context, key string) map[models.ResourceID]models.CachedReceipt {
	out := make(map[models.ResourceID]models.CachedReceipt)
	raw := storage.GetJSON(ctx, c.bulk, c.log, key, map[string]json.RawMessage{})
	for k, v := range raw {
		id, err := models.ParseResourceID(k)
		if err != nil {
			c.log.Warn(ctx, "skipping cache entry with bad id", "key", k)
			continue
		}
		var r models.CachedReceipt
		if err := json.Unmarshal(v, &r); err != nil {
			c.log.Warn(ctx, "skipping malformed cache entry", "id", k, "error", err)
			continue
		}
		r.ID = id
		out[id] = r
	}
	return out
}

func (c *Cache) requireUser() error {
	if c.user == "" {
		return common.ErrNoActiveUser
	}
	return nil
}

func (c *Cache) persistResources(ctx context.Context) {
	storage.SetJSON(ctx, c.bulk, c.log, userKey(prefixResources, c.user), c.resources)
}

func (c *Cache) persistWraps(ctx context.Context) {
	storage.SetJSON(ctx, c.bulk, c.log, userKey(prefixWraps, c.user), c.wraps)
}

func (c *Cache) persistOutbox(ctx context.Context) {
	storage.SetJSON(ctx, c.bulk, c.log, userKey(prefixOutbox, c.user), c.outbox)
}
