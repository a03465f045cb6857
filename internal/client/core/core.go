// Package core wires the client together: both storage tiers, the session,
// device identity, the offline cache and the receipt service. It is the only
// place that knows how the components depend on each other.
package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/dmitrijs2005/financekit/internal/client/api"
	"github.com/dmitrijs2005/financekit/internal/client/cache"
	"github.com/dmitrijs2005/financekit/internal/client/config"
	"github.com/dmitrijs2005/financekit/internal/client/identity"
	"github.com/dmitrijs2005/financekit/internal/client/services"
	"github.com/dmitrijs2005/financekit/internal/client/session"
	"github.com/dmitrijs2005/financekit/internal/client/storage"
	"github.com/dmitrijs2005/financekit/internal/filex"
	"github.com/dmitrijs2005/financekit/internal/logging"
)

// Core owns every long-lived client component.
type Core struct {
	Session  *session.Manager
	Identity *identity.Service
	Cache    *cache.Cache
	Receipts services.ReceiptService
	API      *api.Client

	tokens *api.Client
	log    logging.Logger
	dbs    []*sql.DB

	ready     chan struct{}
	readyOnce sync.Once
}

// Option tweaks how New builds the core.
type Option func(*options)

type options struct {
	transport api.Doer
	onDeleted func(services.DeleteResult)
}

// WithTransport replaces the HTTP client used for every request.
func WithTransport(d api.Doer) Option {
	return func(o *options) { o.transport = d }
}

// WithDeleteNotifier receives the outcome of every scheduled deletion.
func WithDeleteNotifier(fn func(services.DeleteResult)) Option {
	return func(o *options) { o.onDeleted = fn }
}

// New opens the secure and bulk databases under cfg.DataDir and builds the
// component graph. The secure tier is sealed with cfg.SecureStoreSecret.
func New(ctx context.Context, cfg *config.Config, log logging.Logger, opts ...Option) (*Core, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.transport == nil {
		o.transport = &http.Client{Timeout: cfg.RequestTimeout}
	}

	if _, err := filex.EnsurePrivateDir(cfg.DataDir); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	c := &Core{log: log, ready: make(chan struct{})}

	secureDB, err := storage.InitDatabase(ctx, cfg.SecurePath())
	if err != nil {
		return nil, fmt.Errorf("open secure store: %w", err)
	}
	c.dbs = append(c.dbs, secureDB)

	sealed, err := storage.NewSealedRepository(ctx, storage.NewSQLiteRepository(secureDB), []byte(cfg.SecureStoreSecret))
	if err != nil {
		c.closeDBs()
		return nil, fmt.Errorf("unlock secure store: %w", err)
	}

	bulkDB, err := storage.InitDatabase(ctx, cfg.CachePath())
	if err != nil {
		c.closeDBs()
		return nil, fmt.Errorf("open cache: %w", err)
	}
	c.dbs = append(c.dbs, bulkDB)

	secure := storage.NewSafeStore(sealed, log, "secure")
	bulk := storage.NewSafeStore(storage.NewSQLiteRepository(bulkDB), log, "bulk")

	// Token endpoints must bypass the session transport.
	c.tokens = api.NewClient(cfg.ServerBaseURL, cfg.APIPrefix, o.transport)
	c.Session = session.New(secure, bulk, c.tokens, o.transport, log, session.WithRefreshSkew(cfg.RefreshSkew))
	c.API = api.NewClient(cfg.ServerBaseURL, cfg.APIPrefix, c.Session)

	c.Identity = identity.NewService(secure, c.API, log, cfg.DeviceID)
	c.Cache = cache.New(bulk, secure, log)
	c.Receipts = services.NewReceiptService(c.API, c.Identity, c.Cache, c.Session.Username, log, services.ReceiptOptions{
		GrantTTL:   cfg.GrantTTL,
		GrantSkew:  cfg.GrantNotBeforeSkew,
		UndoWindow: cfg.UndoWindow,
		DEKSize:    cfg.DEKSize,
		OnDeleted:  o.onDeleted,
	})

	// A lost session hides the user's data and requires the device to
	// register again under the next session. Unlike an explicit SignOut the
	// cache and outbox stay on disk, so the same user gets them back (and
	// pending deletions still go out) after signing in again; a different
	// user's sign-in removes them.
	c.Session.OnLogout(func(ctx context.Context) {
		c.Cache.Unload()
		c.Identity.MarkRegistered(ctx, false)
	})

	return c, nil
}

// Hydrate restores persisted state: storage migration, then the session,
// then the cache of the signed-in user. Ready is closed when it returns.
func (c *Core) Hydrate(ctx context.Context) session.State {
	defer c.readyOnce.Do(func() { close(c.ready) })

	if err := c.Cache.Migrate(ctx); err != nil {
		c.log.Warn(ctx, "storage migration failed, will retry on next start", "error", err)
	}
	st := c.Session.Hydrate(ctx)
	// Credentials outlive an expired session, so the offline data of the
	// last user stays readable until someone else signs in.
	c.Cache.Hydrate(ctx, c.Session.Username())
	return st
}

// Ready is closed once Hydrate has finished.
func (c *Core) Ready() <-chan struct{} { return c.ready }

// Login signs in and switches the cache to username.
func (c *Core) Login(ctx context.Context, username, password string) error {
	c.stopPreviousUser(username)
	if err := c.Session.Login(ctx, username, password); err != nil {
		return err
	}
	c.switchUser(ctx, username)
	return nil
}

// stopPreviousUser cancels delete timers of another signed-in user before
// the session changes hands; they would otherwise fire under the new
// user's token. Their ids stay in that user's outbox.
func (c *Core) stopPreviousUser(username string) {
	if prev := c.Session.Username(); prev != "" && prev != username {
		c.Receipts.Close()
	}
}

// switchUser points the cache at username. The service keeps device
// registrations per user, so a new user must register the device again.
func (c *Core) switchUser(ctx context.Context, username string) {
	if c.Cache.SetActiveUser(ctx, username) {
		c.Identity.MarkRegistered(ctx, false)
	}
}

// SignUp creates an account, then behaves like Login.
func (c *Core) SignUp(ctx context.Context, username, password, email string) error {
	c.stopPreviousUser(username)
	tp, err := c.tokens.SignUp(ctx, username, password, email)
	if err != nil {
		return fmt.Errorf("sign up: %w", err)
	}
	c.Session.SetCredentials(ctx, username, password)
	if err := c.Session.SetTokens(ctx, tp.Access, tp.Refresh); err != nil {
		return err
	}
	c.switchUser(ctx, username)
	return nil
}

// SignOut forgets the user entirely: cached data, device keypair,
// credentials and tokens.
func (c *Core) SignOut(ctx context.Context) {
	c.Receipts.Close()
	c.Cache.ClearUser(ctx)
	c.Identity.Destroy(ctx)
	c.Session.SignOut(ctx)
}

// Ping reports whether the service is reachable.
func (c *Core) Ping(ctx context.Context) error {
	return c.tokens.Ping(ctx)
}

// Close stops pending timers and closes both databases.
func (c *Core) Close() error {
	c.Receipts.Close()
	return c.closeDBs()
}

func (c *Core) closeDBs() error {
	var errs []error
	for _, db := range c.dbs {
		errs = append(errs, db.Close())
	}
	c.dbs = nil
	return errors.Join(errs...)
}
