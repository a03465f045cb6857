package session

import (
	"context"
	"time"
)

type EventKind int

const (
	// EventAuthFailed means the session could not be recovered and the user
	// has to sign in again.
	EventAuthFailed EventKind = iota + 1
	// EventSignedOut follows an explicit sign-out.
	EventSignedOut
	// EventTokensRefreshed follows every successful refresh.
	EventTokensRefreshed
)

func (k EventKind) String() string {
	switch k {
	case EventAuthFailed:
		return "auth_failed"
	case EventSignedOut:
		return "signed_out"
	case EventTokensRefreshed:
		return "tokens_refreshed"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind EventKind
	At   time.Time
}

// LogoutHook runs during logout, after tokens are cleared and before the
// event is published. Hooks clear per-user state owned by other components.
type LogoutHook func(ctx context.Context)

const subscriberBuffer = 8

// Subscribe returns a channel receiving session events and a function that
// cancels the subscription. Slow subscribers miss events rather than block
// the session.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Event, subscriberBuffer)
	m.subs[id] = ch

	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// OnLogout registers a hook run on every logout.
func (m *Manager) OnLogout(h LogoutHook) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.hooks = append(m.hooks, h)
}

func (m *Manager) publish(ctx context.Context, kind EventKind) {
	ev := Event{Kind: kind, At: m.now()}

	m.subMu.Lock()
	defer m.subMu.Unlock()
	for id, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			m.log.Warn(ctx, "session event dropped", "event", kind.String(), "subscriber", id)
		}
	}
}

func (m *Manager) logoutHooks() []LogoutHook {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	return append([]LogoutHook(nil), m.hooks...)
}
