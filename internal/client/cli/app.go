package cli

import (
	"bufio"
	"context"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/financekit/internal/client/core"
	"github.com/dmitrijs2005/financekit/internal/client/services"
	"github.com/dmitrijs2005/financekit/internal/client/session"
	"github.com/dmitrijs2005/financekit/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// Backend is what the CLI needs from the client core.
type Backend interface {
	Login(ctx context.Context, username, password string) error
	SignUp(ctx context.Context, username, password, email string) error
	SignOut(ctx context.Context)
	Setup(ctx context.Context) error
	Ping(ctx context.Context) error
	Username() string
	LoggedIn() bool
	Events() (<-chan session.Event, func())
	Receipts() services.ReceiptService
}

type App struct {
	backend       Backend
	log           logging.Logger
	checkInterval time.Duration
	reader        *bufio.Reader

	mu   sync.Mutex
	mode Mode
}

// NewApp builds the CLI on top of an already hydrated core.
func NewApp(c *core.Core, log logging.Logger, checkInterval time.Duration) *App {
	return newApp(coreBackend{c}, log, checkInterval)
}

func newApp(b Backend, log logging.Logger, checkInterval time.Duration) *App {
	return &App{
		backend:       b,
		log:           log,
		checkInterval: checkInterval,
		reader:        bufio.NewReader(os.Stdin),
		mode:          ModeOnline,
	}
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// setMode reports whether the mode changed.
func (a *App) setMode(ctx context.Context, mode Mode) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode == mode {
		return false
	}
	a.mode = mode
	a.log.Info(ctx, "connectivity changed", "mode", string(mode))
	return true
}

func (a *App) isLoggedIn() bool {
	return a.backend.LoggedIn()
}

func (a *App) getStatus() string {
	s := ""
	if u := a.backend.Username(); u != "" && a.isLoggedIn() {
		s = u + " "
	}
	return "(" + s + string(a.Mode()) + ")"
}

// Run starts the background watchers and blocks in the REPL until the user
// exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	printlnFn("Welcome to FinanceKit CLI (type 'help' for commands)")

	go a.StartOnlineStatusWatcher(ctx, a.checkInterval)
	go a.watchSession(ctx)

	runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
}

// StartOnlineStatusWatcher probes the service every interval and flushes the
// delete outbox whenever connectivity comes back.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := a.backend.Ping(pctx)
	cancel()

	if err != nil {
		a.setMode(ctx, ModeOffline)
		return
	}
	if a.setMode(ctx, ModeOnline) && a.isLoggedIn() {
		n, err := a.backend.Receipts().FlushOutbox(ctx)
		if err != nil {
			a.log.Warn(ctx, "outbox flush failed", "error", err)
		}
		if n > 0 {
			printlnFn("Back online:", n, "pending deletion(s) completed")
		}
	}
}

// watchSession prints a re-login prompt when the session is lost.
func (a *App) watchSession(ctx context.Context) {
	events, unsubscribe := a.backend.Events()
	defer unsubscribe()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind == session.EventAuthFailed {
				printlnFn("Your session has expired. Type 'login' to sign in again.")
			}
		case <-ctx.Done():
			return
		}
	}
}

// coreBackend adapts *core.Core to Backend.
type coreBackend struct{ c *core.Core }

func (b coreBackend) Login(ctx context.Context, u, p string) error { return b.c.Login(ctx, u, p) }
func (b coreBackend) SignUp(ctx context.Context, u, p, e string) error {
	return b.c.SignUp(ctx, u, p, e)
}
func (b coreBackend) SignOut(ctx context.Context)            { b.c.SignOut(ctx) }
func (b coreBackend) Ping(ctx context.Context) error         { return b.c.Ping(ctx) }
func (b coreBackend) Username() string                       { return b.c.Session.Username() }
func (b coreBackend) Receipts() services.ReceiptService      { return b.c.Receipts }
func (b coreBackend) Events() (<-chan session.Event, func()) { return b.c.Session.Subscribe() }

func (b coreBackend) LoggedIn() bool {
	return b.c.Session.State() != session.StateUnauthenticated
}

func (b coreBackend) Setup(ctx context.Context) error {
	_, err := b.c.Identity.EnsureReady(ctx)
	return err
}
