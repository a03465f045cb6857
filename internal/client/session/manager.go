package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/dmitrijs2005/financekit/internal/client/api"
	"github.com/dmitrijs2005/financekit/internal/client/storage"
	"github.com/dmitrijs2005/financekit/internal/common"
	"github.com/dmitrijs2005/financekit/internal/logging"
)

// Keys used in both persistence tiers.
const (
	KeyUsername     = "username"
	KeyPassword     = "password"
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
)

// DefaultRefreshSkew is how close to expiry an access token may get before
// hydration refreshes it.
const DefaultRefreshSkew = 60 * time.Second

var (
	ErrPartialTokenPair = errors.New("access and refresh tokens must be set together")
	ErrNoRefreshToken   = errors.New("no refresh token")
)

type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}

// TokenService is the subset of the REST client dealing with tokens.
type TokenService interface {
	ObtainToken(ctx context.Context, username, password string) (api.TokenPair, error)
	RefreshToken(ctx context.Context, refresh string) (api.TokenPair, error)
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithRefreshSkew(d time.Duration) Option {
	return func(m *Manager) { m.refreshSkew = d }
}

type Manager struct {
	secure    storage.Store
	fallback  storage.Store
	tokens    TokenService
	transport api.Doer
	log       logging.Logger

	now         func() time.Time
	refreshSkew time.Duration

	mu       sync.RWMutex
	username string
	password string
	access   string
	refresh  string
	state    State

	flight singleflight.Group

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
	hooks   []LogoutHook
}

// New builds a Manager. transport executes the actual HTTP requests passed
// to Do; tokens talks to the token endpoints and must not route through the
// Manager itself.
func New(secure, fallback storage.Store, tokens TokenService, transport api.Doer, log logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		secure:      secure,
		fallback:    fallback,
		tokens:      tokens,
		transport:   transport,
		log:         log.With("component", "session"),
		now:         time.Now,
		refreshSkew: DefaultRefreshSkew,
		subs:        make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Manager) Username() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.username
}

// Tokens returns the current pair; both are empty when signed out.
func (m *Manager) Tokens() (access, refresh string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access, m.refresh
}

// AuthHeader returns the Authorization header value: Bearer with the access
// token when one is held, Basic from the stored credentials otherwise. ok is
// false when neither is available.
func (m *Manager) AuthHeader() (value string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.authHeaderLocked()
}

func (m *Manager) authHeaderLocked() (string, bool) {
	if m.access != "" {
		return common.SchemeBearer + " " + m.access, true
	}
	if m.username != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(m.username + ":" + m.password))
		return common.SchemeBasic + " " + cred, true
	}
	return "", false
}

// Hydrate restores credentials and tokens from storage. A token pair missing
// from the secure tier is recovered from the fallback tier. When the access
// token expires within the refresh skew one refresh is attempted; if it
// fails both tokens are dropped and the user has to sign in again.
func (m *Manager) Hydrate(ctx context.Context) State {
	username, _ := m.secure.Get(ctx, KeyUsername)
	password, _ := m.secure.Get(ctx, KeyPassword)

	access, refresh, ok := m.loadPair(ctx, m.secure)
	if !ok {
		access, refresh, ok = m.loadPair(ctx, m.fallback)
		if ok {
			m.log.Info(ctx, "token pair recovered from fallback tier")
			m.secure.SetMany(ctx, pairValues(access, refresh))
		}
	}

	m.mu.Lock()
	m.username, m.password = username, password
	m.access, m.refresh = access, refresh
	m.state = StateUnauthenticated
	if ok {
		m.state = StateAuthenticated
	}
	m.mu.Unlock()

	if !ok {
		return StateUnauthenticated
	}

	exp, known := AccessExpiry(access)
	if !known || exp.Sub(m.now()) > m.refreshSkew {
		return StateAuthenticated
	}

	m.log.Info(ctx, "access token near expiry, refreshing", "expires_at", exp)
	if _, err := m.Refresh(ctx); err != nil {
		m.log.Warn(ctx, "proactive refresh failed, dropping tokens", "error", err)
		m.clearTokens(ctx)
	}
	return m.State()
}

// loadPair reads a complete token pair from s. A half pair is discarded.
func (m *Manager) loadPair(ctx context.Context, s storage.Store) (string, string, bool) {
	access, _ := s.Get(ctx, KeyAccessToken)
	refresh, _ := s.Get(ctx, KeyRefreshToken)

	switch {
	case access != "" && refresh != "":
		return access, refresh, true
	case access != "" || refresh != "":
		m.log.Warn(ctx, "discarding partial token pair")
		s.RemoveMany(ctx, KeyAccessToken, KeyRefreshToken)
	}
	return "", "", false
}

func pairValues(access, refresh string) map[string]string {
	return map[string]string{KeyAccessToken: access, KeyRefreshToken: refresh}
}

// SetTokens replaces the token pair in memory and in both tiers. Both
// values must be set, or both empty to clear the pair.
func (m *Manager) SetTokens(ctx context.Context, access, refresh string) error {
	if (access == "") != (refresh == "") {
		return ErrPartialTokenPair
	}
	if access == "" {
		m.clearTokens(ctx)
		return nil
	}

	m.mu.Lock()
	m.access, m.refresh = access, refresh
	m.state = StateAuthenticated
	m.mu.Unlock()

	values := pairValues(access, refresh)
	if !m.secure.SetMany(ctx, values) {
		m.log.Warn(ctx, "token pair not persisted to secure tier")
	}
	if !m.fallback.SetMany(ctx, values) {
		m.log.Warn(ctx, "token pair not persisted to fallback tier")
	}
	return nil
}

func (m *Manager) clearTokens(ctx context.Context) {
	m.mu.Lock()
	m.access, m.refresh = "", ""
	m.state = StateUnauthenticated
	m.mu.Unlock()

	m.secure.RemoveMany(ctx, KeyAccessToken, KeyRefreshToken)
	m.fallback.RemoveMany(ctx, KeyAccessToken, KeyRefreshToken)
}

// SetCredentials stores the Basic-auth fallback credentials.
func (m *Manager) SetCredentials(ctx context.Context, username, password string) {
	m.mu.Lock()
	m.username, m.password = username, password
	m.mu.Unlock()

	m.secure.SetMany(ctx, map[string]string{KeyUsername: username, KeyPassword: password})
}

// Login exchanges credentials for a token pair and stores both.
func (m *Manager) Login(ctx context.Context, username, password string) error {
	tp, err := m.tokens.ObtainToken(ctx, username, password)
	if err != nil {
		return fmt.Errorf("obtain token: %w", err)
	}
	m.SetCredentials(ctx, username, password)
	if err := m.SetTokens(ctx, tp.Access, tp.Refresh); err != nil {
		return err
	}
	m.log.Info(ctx, "signed in", "user", username)
	return nil
}

// Refresh exchanges the refresh token for a new access token. Concurrent
// callers share one in-flight call. A response without a new refresh token
// keeps the current one.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	v, err, _ := m.flight.Do("refresh", func() (any, error) {
		return m.doRefresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) doRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	refresh := m.refresh
	prev := m.state
	if refresh != "" {
		m.state = StateRefreshing
	}
	m.mu.Unlock()

	if refresh == "" {
		return "", ErrNoRefreshToken
	}

	tp, err := m.tokens.RefreshToken(ctx, refresh)
	if err != nil {
		m.mu.Lock()
		if m.state == StateRefreshing {
			m.state = prev
		}
		m.mu.Unlock()
		return "", fmt.Errorf("refresh token: %w", err)
	}

	if tp.Refresh == "" {
		tp.Refresh = refresh
	}
	if err := m.SetTokens(ctx, tp.Access, tp.Refresh); err != nil {
		return "", err
	}

	m.log.Debug(ctx, "tokens refreshed")
	m.publish(ctx, EventTokensRefreshed)
	return tp.Access, nil
}

// refreshOrLogout refreshes and, if that fails, logs out. Concurrent callers
// share the outcome so logout runs once. sentAccess is the bearer the failed
// request carried; if the session has moved past it, the current token is
// returned without another refresh.
func (m *Manager) refreshOrLogout(ctx context.Context, sentAccess string) (string, error) {
	v, err, _ := m.flight.Do("refresh-or-logout", func() (any, error) {
		ctx := context.WithoutCancel(ctx)

		access, refresh := m.Tokens()
		if refresh == "" {
			return "", ErrNoRefreshToken
		}
		if sentAccess != "" && access != sentAccess {
			return access, nil
		}

		access, err := m.Refresh(ctx)
		if err != nil {
			m.log.Warn(ctx, "refresh failed, logging out", "error", err)
			m.Logout(ctx)
			return "", err
		}
		return access, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Logout drops the token pair, runs logout hooks and publishes
// EventAuthFailed. Stored credentials are kept for the Basic fallback.
func (m *Manager) Logout(ctx context.Context) {
	m.logout(ctx)
	m.publish(ctx, EventAuthFailed)
}

// SignOut is an explicit user sign-out: Logout plus forgetting the stored
// credentials.
func (m *Manager) SignOut(ctx context.Context) {
	m.logout(ctx)

	m.mu.Lock()
	m.username, m.password = "", ""
	m.mu.Unlock()
	m.secure.RemoveMany(ctx, KeyUsername, KeyPassword)

	m.publish(ctx, EventSignedOut)
}

func (m *Manager) logout(ctx context.Context) {
	m.clearTokens(ctx)
	for _, h := range m.logoutHooks() {
		h(ctx)
	}
	m.log.Info(ctx, "logged out")
}

// AccessExpiry decodes the exp claim of an access token without verifying
// it. ok is false for tokens that are not JWTs or carry no exp.
func AccessExpiry(access string) (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err != nil {
		return time.Time{}, false
	}
	nd, err := claims.GetExpirationTime()
	if err != nil || nd == nil {
		return time.Time{}, false
	}
	return nd.Time, true
}
