package services

import (
	"sort"
	"strings"

	"github.com/dmitrijs2005/financekit/internal/client/models"
)

// CategorySpend is one category's total for a month.
type CategorySpend struct {
	Category string
	Spent    models.Amount
	Budget   models.Amount
}

// Over reports whether a budget is set and exceeded.
func (c CategorySpend) Over() bool {
	return c.Budget > 0 && c.Spent > c.Budget
}

// Summary is the spending breakdown of one month ("2006-01").
type Summary struct {
	Month      string
	Total      models.Amount
	Categories []CategorySpend
}

// Summary totals cached receipts for month by category. Receipts pending
// deletion are excluded. An empty month means the current one.
func (s *receiptService) Summary(month string) Summary {
	if month == "" {
		month = s.opts.Now().Format("2006-01")
	}

	budgets := s.cache.Budgets()
	byCat := make(map[string]*CategorySpend)
	for cat, b := range budgets {
		byCat[cat] = &CategorySpend{Category: cat, Budget: b}
	}

	sum := Summary{Month: month}
	for _, r := range s.cache.Receipts() {
		if s.cache.IsQueued(r.ID) || receiptMonth(r) != month {
			continue
		}
		cat := DefaultCategory
		if r.Derived != nil && r.Derived.Category != "" {
			cat = r.Derived.Category
		}
		cs, ok := byCat[cat]
		if !ok {
			cs = &CategorySpend{Category: cat}
			byCat[cat] = cs
		}
		cs.Spent += r.Total()
		sum.Total += r.Total()
	}

	for _, cs := range byCat {
		sum.Categories = append(sum.Categories, *cs)
	}
	sort.Slice(sum.Categories, func(i, j int) bool {
		if sum.Categories[i].Spent != sum.Categories[j].Spent {
			return sum.Categories[i].Spent > sum.Categories[j].Spent
		}
		return sum.Categories[i].Category < sum.Categories[j].Category
	})
	return sum
}

func receiptMonth(r models.CachedReceipt) string {
	if d := r.PurchasedAt(); len(d) >= 7 && strings.Count(d[:7], "-") == 1 {
		return d[:7]
	}
	if r.UpdatedAt.IsZero() {
		return ""
	}
	return r.UpdatedAt.Format("2006-01")
}
