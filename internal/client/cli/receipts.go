package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/financekit/internal/client/cache"
	"github.com/dmitrijs2005/financekit/internal/client/models"
	"github.com/dmitrijs2005/financekit/internal/client/services"
)

func parseIDs(args []string) ([]models.ResourceID, error) {
	if len(args) == 0 {
		return nil, errors.New("receipt id is required")
	}
	ids := make([]models.ResourceID, 0, len(args))
	for _, a := range args {
		id, err := models.ParseResourceID(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Ingest uploads an image: ingest <path> [category].
func (a *App) Ingest(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: ingest <path> [category]")
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	meta := services.IngestMeta{ImageName: filepath.Base(args[0])}
	if len(args) > 1 {
		meta.Category = strings.Join(args[1:], " ")
	}

	r, err := a.backend.Receipts().Ingest(ctx, f, meta)
	if err != nil {
		return err
	}
	printlnFn(fmt.Sprintf("Ingested #%s • %s • %s", r.ID, r.Merchant(), r.Total()))
	return nil
}

func (a *App) Decrypt(ctx context.Context, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	out, err := a.backend.Receipts().Decrypt(ctx, ids...)
	for _, r := range out {
		printReceipt(r)
	}
	return err
}

func (a *App) List(ctx context.Context) error {
	res, err := a.backend.Receipts().List(ctx)
	if err != nil {
		return err
	}
	if res.Offline {
		a.setMode(ctx, ModeOffline)
		printlnFn("(offline, showing cached receipts)")
	}
	if len(res.Items) == 0 {
		printlnFn("No receipts yet")
		return nil
	}
	for _, it := range res.Items {
		line := fmt.Sprintf("#%-6s %-12s %-24s %10s", it.ID, it.PurchasedAt, it.Merchant, it.Total)
		if it.Encrypted {
			line += "  [encrypted]"
		}
		printlnFn(line)
	}
	return nil
}

func (a *App) Show(ctx context.Context, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	r, st, err := a.backend.Receipts().Show(ctx, ids[0])
	if err != nil {
		return err
	}
	switch st {
	case cache.StatusAbsent:
		printlnFn("Receipt not found on this device")
	case cache.StatusEncrypted:
		printlnFn("Receipt is encrypted and has not been fetched yet")
	default:
		printReceipt(r)
	}
	return nil
}

func printReceipt(r models.CachedReceipt) {
	printlnFn(fmt.Sprintf("Receipt #%s: %s", r.ID, r.Merchant()))
	if d := r.PurchasedAt(); d != "" {
		printlnFn("  Date: " + d)
	}
	cur := "USD"
	if r.Data != nil && r.Data.Currency != "" {
		cur = r.Data.Currency
	}
	printlnFn(fmt.Sprintf("  Total: %s %s", cur, r.Total()))
	if r.Data != nil {
		for _, it := range r.Data.Items {
			printlnFn(fmt.Sprintf("  - %s x%g %s", it.Desc, it.Qty, it.Price))
		}
	}
}

func (a *App) Delete(ctx context.Context, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := a.backend.Receipts().ScheduleDelete(ctx, id); err != nil {
			return err
		}
		printlnFn(fmt.Sprintf("Receipt #%s deleted. Type 'undo %s' to restore it.", id, id))
	}
	return nil
}

func (a *App) Undo(ctx context.Context, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := a.backend.Receipts().UndoDelete(ctx, id); err != nil {
			return err
		}
		printlnFn(fmt.Sprintf("Receipt #%s restored", id))
	}
	return nil
}

func (a *App) Flush(ctx context.Context) error {
	n, err := a.backend.Receipts().FlushOutbox(ctx)
	printlnFn(fmt.Sprintf("%d pending deletion(s) completed", n))
	return err
}

// Summary prints spending by category: summary [YYYY-MM].
func (a *App) Summary(ctx context.Context, args []string) error {
	month := ""
	if len(args) > 0 {
		month = args[0]
	}
	s := a.backend.Receipts().Summary(month)
	printlnFn(fmt.Sprintf("Spending %s: %s", s.Month, s.Total))
	for _, c := range s.Categories {
		line := fmt.Sprintf("  %-20s %10s", c.Category, c.Spent)
		if c.Budget > 0 {
			line += fmt.Sprintf(" / %s", c.Budget)
			if c.Over() {
				line += "  OVER BUDGET"
			}
		}
		printlnFn(line)
	}
	return nil
}

// Budget sets a monthly category limit: budget <category> <amount>. An
// amount of 0 removes it.
func (a *App) Budget(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: budget <category> <amount>")
	}
	limit, err := strconv.ParseFloat(args[len(args)-1], 64)
	if err != nil || limit < 0 {
		return fmt.Errorf("invalid amount %q", args[len(args)-1])
	}
	category := strings.Join(args[:len(args)-1], " ")
	if err := a.backend.Receipts().SetBudget(ctx, category, models.Amount(limit)); err != nil {
		return err
	}
	printlnFn("Budget saved")
	return nil
}
