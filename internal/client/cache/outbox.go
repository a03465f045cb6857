package cache

import (
	"context"
	"slices"

	"github.com/dmitrijs2005/financekit/internal/client/models"
)

// QueueDelete adds id to the outbox. Queueing an id twice is a no-op.
func (c *Cache) QueueDelete(ctx context.Context, id models.ResourceID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireUser(); err != nil {
		return err
	}
	if slices.Contains(c.outbox, id) {
		return nil
	}
	c.outbox = append(c.outbox, id)
	c.persistOutbox(ctx)
	return nil
}

// DequeueDelete removes id from the outbox, if present.
func (c *Cache) DequeueDelete(ctx context.Context, id models.ResourceID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireUser(); err != nil {
		return err
	}
	i := slices.Index(c.outbox, id)
	if i < 0 {
		return nil
	}
	c.outbox = slices.Delete(c.outbox, i, i+1)
	c.persistOutbox(ctx)
	return nil
}

func (c *Cache) IsQueued(id models.ResourceID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.outbox, id)
}

// Outbox returns a copy of the queued ids in queue order.
func (c *Cache) Outbox() []models.ResourceID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.outbox)
}
