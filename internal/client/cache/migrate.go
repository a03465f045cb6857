package cache

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/financekit/internal/common"
)

// MigrationVersion is the layout version written once Migrate has moved the
// legacy collections out of the secure tier.
const MigrationVersion = 1

// Legacy secure-tier keys.
const (
	legacyUsernameKey = "username"
	legacyWrapsKey    = "dekWraps"
	legacyCacheKey    = "receiptsCache"
	legacyBudgetsKey  = "budgets"
)

// Migrate copies the large JSON collections that older releases kept in the
// secure tier into the bulk tier under the stored username, then removes
// them from the secure tier and records the version flag.
//
// Existing bulk data is never overwritten. Every step is repeatable, so an
// interrupted run completes on the next start. Without a stored username the
// migration is deferred and the flag is left unset.
func (c *Cache) Migrate(ctx context.Context) error {
	if v, ok := c.bulk.Get(ctx, KeyMigrationVersion); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= MigrationVersion {
			return nil
		}
	}

	user, ok := c.secure.Get(ctx, legacyUsernameKey)
	if !ok || user == "" {
		c.log.Info(ctx, "storage migration deferred: no stored username")
		return nil
	}

	moves := []struct{ from, to string }{
		{legacyWrapsKey, userKey(prefixWraps, user)},
		{legacyCacheKey, userKey(prefixResources, user)},
		{legacyBudgetsKey, userKey(prefixBudgets, user)},
	}
	moved := 0
	for _, m := range moves {
		v, ok := c.secure.Get(ctx, m.from)
		if !ok {
			continue
		}
		if _, exists := c.bulk.Get(ctx, m.to); !exists {
			if !c.bulk.Set(ctx, m.to, v) {
				return fmt.Errorf("migrate %s: %w", m.from, common.ErrorInternal)
			}
		}
		c.secure.Remove(ctx, m.from)
		moved++
	}

	if _, ok := c.bulk.Get(ctx, KeyActiveUser); !ok && moved > 0 {
		c.bulk.Set(ctx, KeyActiveUser, user)
	}
	if !c.bulk.Set(ctx, KeyMigrationVersion, strconv.Itoa(MigrationVersion)) {
		return fmt.Errorf("write migration version: %w", common.ErrorInternal)
	}
	c.log.Info(ctx, "storage migration complete", "version", MigrationVersion, "moved", moved)
	return nil
}
