package cache

import (
	"context"
	"sort"

	"github.com/dmitrijs2005/financekit/internal/client/models"
)

// SetResource upserts a cache entry with a fresh timestamp. Nil data or
// summary keep the previously cached value.
func (c *Cache) SetResource(ctx context.Context, id models.ResourceID, data *models.ReceiptData, summary *models.ReceiptSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireUser(); err != nil {
		return err
	}

	r := c.resources[id]
	r.ID = id
	if data != nil {
		r.Data = data
	}
	if summary != nil {
		r.Derived = summary
	}
	r.UpdatedAt = c.now().UTC()
	c.resources[id] = r
	c.persistResources(ctx)
	return nil
}

// Resource returns the cached receipt, if any.
func (c *Cache) Resource(id models.ResourceID) (models.CachedReceipt, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.resources[id]
	return r, ok
}

// Lookup reports what is known about id. A wrapped key without a cache entry
// is StatusEncrypted, not StatusAbsent.
func (c *Cache) Lookup(id models.ResourceID) (models.CachedReceipt, Status) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if r, ok := c.resources[id]; ok {
		return r, StatusCached
	}
	if _, ok := c.wraps[id]; ok {
		return models.CachedReceipt{ID: id}, StatusEncrypted
	}
	return models.CachedReceipt{}, StatusAbsent
}

// RemoveResource deletes the cached receipt and its wrapped key.
func (c *Cache) RemoveResource(ctx context.Context, id models.ResourceID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireUser(); err != nil {
		return err
	}

	_, hadResource := c.resources[id]
	_, hadWrap := c.wraps[id]
	delete(c.resources, id)
	delete(c.wraps, id)
	if hadResource {
		c.persistResources(ctx)
	}
	if hadWrap {
		c.persistWraps(ctx)
	}
	return nil
}

func (c *Cache) SetWrappedKey(ctx context.Context, id models.ResourceID, wrapped string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireUser(); err != nil {
		return err
	}
	c.wraps[id] = wrapped
	c.persistWraps(ctx)
	return nil
}

func (c *Cache) WrappedKey(id models.ResourceID) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	w, ok := c.wraps[id]
	return w, ok
}

// List returns every known receipt except those pending deletion, newest
// first. Receipts known only by their wrapped key are marked Encrypted.
func (c *Cache) List() []models.ReceiptListItem {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hidden := make(map[models.ResourceID]struct{}, len(c.outbox))
	for _, id := range c.outbox {
		hidden[id] = struct{}{}
	}

	items := make([]models.ReceiptListItem, 0, len(c.resources)+len(c.wraps))
	for id, r := range c.resources {
		if _, ok := hidden[id]; ok {
			continue
		}
		item := models.ReceiptListItem{
			ID:          id,
			Merchant:    r.Merchant(),
			Total:       r.Total(),
			PurchasedAt: r.PurchasedAt(),
			Offline:     true,
		}
		if r.Derived != nil {
			item.Category = r.Derived.Category
		}
		items = append(items, item)
	}
	for id := range c.wraps {
		if _, ok := c.resources[id]; ok {
			continue
		}
		if _, ok := hidden[id]; ok {
			continue
		}
		items = append(items, models.ReceiptListItem{ID: id, Merchant: "Encrypted receipt", Encrypted: true, Offline: true})
	}

	SortItems(items)
	return items
}

// SortItems orders receipts by purchase date, then id, newest first.
func SortItems(items []models.ReceiptListItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].PurchasedAt != items[j].PurchasedAt {
			return items[i].PurchasedAt > items[j].PurchasedAt
		}
		return items[i].ID > items[j].ID
	})
}
