package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/financekit/internal/client/models"
)

func TestSummary_GroupsByCategoryWithBudgets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	set := func(id models.ResourceID, date, cat string, total float64) {
		require.NoError(t, f.cache.SetResource(ctx, id, nil, &models.ReceiptSummary{DateStr: date, Category: cat, Total: models.Amount(total)}))
	}
	set(1, "2025-03-02", "food", 30)
	set(2, "2025-03-10", "food", 80)
	set(3, "2025-03-11", "", 5)
	set(4, "2025-02-27", "food", 1000)
	set(5, "2025-03-12", "fun", 40)
	require.NoError(t, f.cache.QueueDelete(ctx, 5))
	require.NoError(t, f.svc.SetBudget(ctx, "food", 100))
	require.NoError(t, f.svc.SetBudget(ctx, "travel", 500))

	s := f.svc.Summary("2025-03")
	assert.Equal(t, models.Amount(115), s.Total)
	require.Len(t, s.Categories, 3)

	assert.Equal(t, "food", s.Categories[0].Category)
	assert.Equal(t, models.Amount(110), s.Categories[0].Spent)
	assert.True(t, s.Categories[0].Over())

	assert.Equal(t, DefaultCategory, s.Categories[1].Category)
	assert.Equal(t, "travel", s.Categories[2].Category)
	assert.False(t, s.Categories[2].Over())
}
