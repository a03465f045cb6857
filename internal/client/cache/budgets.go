package cache

import (
	"context"
	"maps"
	"strings"

	"github.com/dmitrijs2005/financekit/internal/client/models"
	"github.com/dmitrijs2005/financekit/internal/client/storage"
)

// SetBudget sets the monthly limit for a category. A non-positive limit
// removes the budget.
func (c *Cache) SetBudget(ctx context.Context, category string, limit models.Amount) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireUser(); err != nil {
		return err
	}

	category = strings.TrimSpace(category)
	if limit <= 0 {
		delete(c.budgets, category)
	} else {
		c.budgets[category] = limit
	}
	storage.SetJSON(ctx, c.bulk, c.log, userKey(prefixBudgets, c.user), c.budgets)
	return nil
}

// Budgets returns a copy of the category budgets.
func (c *Cache) Budgets() map[string]models.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.budgets)
}

// Receipts returns a snapshot of the cached receipts.
func (c *Cache) Receipts() []models.CachedReceipt {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.CachedReceipt, 0, len(c.resources))
	for _, r := range c.resources {
		out = append(out, r)
	}
	return out
}
