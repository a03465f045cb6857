// Package services contains the client's application services. This file
// defines the receipt service: envelope-encrypted ingest, grant-authorized
// decryption, offline-aware listing and undo-able deletion backed by the
// outbox.
package services

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/financekit/internal/client/api"
	"github.com/dmitrijs2005/financekit/internal/client/cache"
	"github.com/dmitrijs2005/financekit/internal/client/models"
	"github.com/dmitrijs2005/financekit/internal/common"
	"github.com/dmitrijs2005/financekit/internal/cryptox"
	"github.com/dmitrijs2005/financekit/internal/grant"
	"github.com/dmitrijs2005/financekit/internal/logging"
)

// ReceiptService defines receipt operations for the CLI.
//
// Contract:
//   - Ingest: wrap a fresh content key for the server, upload the image under
//     an ingest grant and cache the result.
//   - Decrypt: ask the server to decrypt receipts this device holds wrapped
//     keys for, under a decrypt grant limited to those ids.
//   - Show: return a receipt from the cache, decrypting it first if only its
//     wrapped key is known.
//   - List: server list, or the offline cache when the server is unreachable.
//     Receipts pending deletion are hidden either way.
//   - ScheduleDelete/UndoDelete: optimistic delete finalized after the undo
//     window unless undone.
//   - FlushOutbox: retry deletions queued while offline.
//
// All methods must honor context cancellation/timeouts.
type ReceiptService interface {
	Ingest(ctx context.Context, image io.Reader, meta IngestMeta) (models.CachedReceipt, error)
	Decrypt(ctx context.Context, ids ...models.ResourceID) ([]models.CachedReceipt, error)
	Show(ctx context.Context, id models.ResourceID) (models.CachedReceipt, cache.Status, error)
	List(ctx context.Context) (ListResult, error)
	ScheduleDelete(ctx context.Context, id models.ResourceID) error
	UndoDelete(ctx context.Context, id models.ResourceID) error
	FlushOutbox(ctx context.Context) (int, error)
	Summary(month string) Summary
	SetBudget(ctx context.Context, category string, limit models.Amount) error
	Close()
}

// ReceiptAPI is the part of the REST client the service calls.
type ReceiptAPI interface {
	IngestReceipt(ctx context.Context, in api.IngestRequest) (*api.IngestResponse, error)
	DecryptProcess(ctx context.Context, token, wrappedKey string, targets []models.ResourceID) (*api.DecryptResponse, error)
	DeleteReceipt(ctx context.Context, id models.ResourceID) error
	ListReceipts(ctx context.Context) ([]models.ReceiptListItem, error)
}

// Device supplies the grant signing key and the server's wrapping key.
type Device interface {
	Signer(ctx context.Context) (string, ed25519.PrivateKey, error)
	ServerKey(ctx context.Context) (string, bool)
}

// IngestMeta describes an upload. Zero Year/Month default to the current
// month; an empty Category defaults to DefaultCategory.
type IngestMeta struct {
	Year      int
	Month     int
	Category  string
	ImageName string
}

const DefaultCategory = "Uncategorized"

// ListResult is a receipt list and where it came from.
type ListResult struct {
	Items   []models.ReceiptListItem
	Offline bool
}

// DeleteResult reports how a scheduled deletion ended.
type DeleteResult struct {
	ID  models.ResourceID
	Err error
}

// ReceiptOptions tunes grants, key size and the undo window.
type ReceiptOptions struct {
	GrantTTL   time.Duration
	GrantSkew  time.Duration
	UndoWindow time.Duration
	DEKSize    int
	Now        func() time.Time
	// OnDeleted, if set, is called after each scheduled deletion finishes.
	OnDeleted func(DeleteResult)
}

func (o *ReceiptOptions) withDefaults() {
	if o.GrantTTL <= 0 {
		o.GrantTTL = 120 * time.Second
	}
	if o.GrantSkew <= 0 {
		o.GrantSkew = 5 * time.Second
	}
	if o.UndoWindow <= 0 {
		o.UndoWindow = 5 * time.Second
	}
	if o.DEKSize == 0 {
		o.DEKSize = cryptox.DefaultDEKSize
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type receiptService struct {
	api     ReceiptAPI
	device  Device
	cache   *cache.Cache
	subject func() string
	log     logging.Logger
	opts    ReceiptOptions

	mu      sync.Mutex
	pending map[models.ResourceID]*time.Timer
}

// NewReceiptService builds the service. subject names the grant subject,
// typically the signed-in username.
func NewReceiptService(client ReceiptAPI, device Device, c *cache.Cache, subject func() string, log logging.Logger, opts ReceiptOptions) ReceiptService {
	opts.withDefaults()
	return &receiptService{
		api:     client,
		device:  device,
		cache:   c,
		subject: subject,
		log:     log.With("component", "receipts"),
		opts:    opts,
		pending: make(map[models.ResourceID]*time.Timer),
	}
}

func (s *receiptService) mint(ctx context.Context, scope string, targets []models.ResourceID) (string, error) {
	deviceID, key, err := s.device.Signer(ctx)
	if err != nil {
		return "", err
	}

	sub := s.subject()
	if sub == "" {
		sub = deviceID
	}

	var ids []int64
	for _, id := range targets {
		ids = append(ids, int64(id))
	}

	claims := grant.NewClaims(sub, []string{scope}, ids, s.opts.Now(), s.opts.GrantTTL, s.opts.GrantSkew)
	return grant.Mint(deviceID, key, claims)
}

func (s *receiptService) Ingest(ctx context.Context, image io.Reader, meta IngestMeta) (models.CachedReceipt, error) {
	pem, ok := s.device.ServerKey(ctx)
	if !ok {
		return models.CachedReceipt{}, common.ErrServerKeyMissing
	}

	dek, err := cryptox.GenerateKey(s.opts.DEKSize)
	if err != nil {
		return models.CachedReceipt{}, err
	}
	defer common.WipeByteArray(dek)

	wrapped, err := cryptox.WrapKey(pem, dek)
	if err != nil {
		return models.CachedReceipt{}, err
	}

	token, err := s.mint(ctx, common.ScopeReceiptIngest, nil)
	if err != nil {
		return models.CachedReceipt{}, fmt.Errorf("mint ingest grant: %w", err)
	}

	now := s.opts.Now()
	if meta.Year == 0 {
		meta.Year = now.Year()
	}
	if meta.Month == 0 {
		meta.Month = int(now.Month())
	}
	if meta.Category == "" {
		meta.Category = DefaultCategory
	}
	if meta.ImageName == "" {
		meta.ImageName = "receipt.jpg"
	}

	resp, err := s.api.IngestReceipt(ctx, api.IngestRequest{
		Token:      token,
		WrappedKey: wrapped,
		Year:       meta.Year,
		Month:      meta.Month,
		Category:   meta.Category,
		ImageName:  meta.ImageName,
		Image:      image,
	})
	if err != nil {
		return models.CachedReceipt{}, fmt.Errorf("ingest: %w", err)
	}

	if err := s.cache.SetWrappedKey(ctx, resp.ReceiptID, wrapped); err != nil {
		return models.CachedReceipt{}, err
	}
	if resp.Data != nil || resp.Derived != nil {
		if err := s.cache.SetResource(ctx, resp.ReceiptID, resp.Data, resp.Derived); err != nil {
			return models.CachedReceipt{}, err
		}
	}

	s.log.Info(ctx, "receipt ingested", "id", resp.ReceiptID)
	r, _ := s.cache.Lookup(resp.ReceiptID)
	return r, nil
}

func (s *receiptService) Decrypt(ctx context.Context, ids ...models.ResourceID) ([]models.CachedReceipt, error) {
	var (
		out  []models.CachedReceipt
		errs []error
	)
	for _, id := range ids {
		r, err := s.decryptOne(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("receipt %s: %w", id, err))
			continue
		}
		out = append(out, r)
	}
	return out, errors.Join(errs...)
}

// ErrNoWrappedKey means this device never held the receipt's content key.
var ErrNoWrappedKey = errors.New("no wrapped key for receipt")

func (s *receiptService) decryptOne(ctx context.Context, id models.ResourceID) (models.CachedReceipt, error) {
	wrapped, ok := s.cache.WrappedKey(id)
	if !ok {
		return models.CachedReceipt{}, ErrNoWrappedKey
	}

	token, err := s.mint(ctx, common.ScopeReceiptDecrypt, []models.ResourceID{id})
	if err != nil {
		return models.CachedReceipt{}, fmt.Errorf("mint decrypt grant: %w", err)
	}

	resp, err := s.api.DecryptProcess(ctx, token, wrapped, []models.ResourceID{id})
	if err != nil {
		return models.CachedReceipt{}, err
	}

	for _, d := range resp.Data {
		if d.ID != id {
			continue
		}
		data, err := d.Receipt()
		if err != nil {
			return models.CachedReceipt{}, fmt.Errorf("decode plaintext: %w", err)
		}
		if err := s.cache.SetResource(ctx, id, data, nil); err != nil {
			return models.CachedReceipt{}, err
		}
		r, _ := s.cache.Resource(id)
		return r, nil
	}
	return models.CachedReceipt{}, fmt.Errorf("receipt missing from decrypt response: %w", common.ErrorNotFound)
}

func (s *receiptService) Show(ctx context.Context, id models.ResourceID) (models.CachedReceipt, cache.Status, error) {
	r, st := s.cache.Lookup(id)
	if st != cache.StatusEncrypted {
		return r, st, nil
	}
	d, err := s.decryptOne(ctx, id)
	if err != nil {
		return r, st, err
	}
	return d, cache.StatusCached, nil
}

func (s *receiptService) List(ctx context.Context) (ListResult, error) {
	items, err := s.api.ListReceipts(ctx)
	if err != nil {
		if api.IsProtocolError(err) {
			return ListResult{}, err
		}
		s.log.Warn(ctx, "server unreachable, listing from cache", "error", err)
		return ListResult{Items: s.cache.List(), Offline: true}, nil
	}

	out := make([]models.ReceiptListItem, 0, len(items))
	for _, it := range items {
		if s.cache.IsQueued(it.ID) {
			continue
		}
		if r, st := s.cache.Lookup(it.ID); st == cache.StatusCached {
			if it.Merchant == "" {
				it.Merchant = r.Merchant()
			}
			if it.PurchasedAt == "" {
				it.PurchasedAt = r.PurchasedAt()
			}
		}
		out = append(out, it)
	}
	cache.SortItems(out)
	return ListResult{Items: out}, nil
}

func (s *receiptService) ScheduleDelete(ctx context.Context, id models.ResourceID) error {
	if err := s.cache.QueueDelete(ctx, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[id]; ok {
		return nil
	}

	bg := context.WithoutCancel(ctx)
	s.pending[id] = time.AfterFunc(s.opts.UndoWindow, func() {
		s.mu.Lock()
		_, still := s.pending[id]
		delete(s.pending, id)
		s.mu.Unlock()
		if !still {
			return
		}
		err := s.finalize(bg, id)
		if s.opts.OnDeleted != nil {
			s.opts.OnDeleted(DeleteResult{ID: id, Err: err})
		}
	})
	s.log.Debug(ctx, "delete scheduled", "id", id, "undo_window", s.opts.UndoWindow)
	return nil
}

func (s *receiptService) UndoDelete(ctx context.Context, id models.ResourceID) error {
	s.mu.Lock()
	if t, ok := s.pending[id]; ok {
		t.Stop()
		delete(s.pending, id)
	}
	s.mu.Unlock()
	return s.cache.DequeueDelete(ctx, id)
}

// finalize deletes id on the server. Success (or an already missing receipt)
// removes it locally. A server rejection restores it; an unreachable server
// leaves it queued for FlushOutbox.
func (s *receiptService) finalize(ctx context.Context, id models.ResourceID) error {
	err := s.api.DeleteReceipt(ctx, id)
	switch {
	case err == nil, errors.Is(err, api.ErrNotFound):
		if rmErr := s.cache.RemoveResource(ctx, id); rmErr != nil {
			return rmErr
		}
		s.log.Info(ctx, "receipt deleted", "id", id)
		return s.cache.DequeueDelete(ctx, id)
	case api.IsProtocolError(err):
		s.log.Warn(ctx, "delete rejected, restoring receipt", "id", id, "error", err)
		if dqErr := s.cache.DequeueDelete(ctx, id); dqErr != nil {
			return errors.Join(err, dqErr)
		}
		return err
	default:
		s.log.Warn(ctx, "delete deferred, server unreachable", "id", id, "error", err)
		return err
	}
}

func (s *receiptService) FlushOutbox(ctx context.Context) (int, error) {
	done := 0
	var errs []error
	for _, id := range s.cache.Outbox() {
		s.mu.Lock()
		_, waiting := s.pending[id]
		s.mu.Unlock()
		if waiting {
			continue
		}

		err := s.finalize(ctx, id)
		switch {
		case err == nil:
			done++
		case api.IsProtocolError(err):
			errs = append(errs, err)
		default:
			// still offline, the rest would fail the same way
			return done, errors.Join(append(errs, err)...)
		}
	}
	return done, errors.Join(errs...)
}

func (s *receiptService) SetBudget(ctx context.Context, category string, limit models.Amount) error {
	return s.cache.SetBudget(ctx, category, limit)
}

// Close stops pending deletion timers. Their ids stay queued in the outbox.
func (s *receiptService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
}
