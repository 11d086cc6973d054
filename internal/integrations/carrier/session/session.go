package session

import (
	"context"
	"sync"
	"time"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
	"golang.org/x/sync/singleflight"
)

type State int

const (
	NoSession State = iota
	Refreshing
	Valid
)

func (s State) String() string {
	switch s {
	case Refreshing:
		return "refreshing"
	case Valid:
		return "valid"
	default:
		return "no_session"
	}
}

// LoginFunc obtains a fresh carrier token.
type LoginFunc func(ctx context.Context) (string, error)

// Manager caches the carrier token for all callers of one client. There is
// no expiry timer: a stale token is detected by a 401 and dropped through
// Invalidate, and the next Token call logs in again.
type Manager struct {
	login LoginFunc
	now   func() time.Time

	mu         sync.Mutex
	state      State
	token      string
	acquiredAt time.Time

	sf singleflight.Group
}

func New(login LoginFunc) *Manager {
	return &Manager{login: login, now: time.Now}
}

// Token returns the cached token, logging in when there is none. Concurrent
// callers share a single in-flight login.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.state == Valid {
		t := m.token
		m.mu.Unlock()
		return t, nil
	}
	m.state = Refreshing
	m.mu.Unlock()

	ch := m.sf.DoChan("login", func() (any, error) {
		m.mu.Lock()
		if m.state == Valid {
			t := m.token
			m.mu.Unlock()
			return t, nil
		}
		m.mu.Unlock()

		tok, err := m.login(context.WithoutCancel(ctx))
		m.mu.Lock()
		defer m.mu.Unlock()
		if err != nil {
			m.state = NoSession
			return "", err
		}
		m.state = Valid
		m.token = tok
		m.acquiredAt = m.now().UTC()
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if carrier.IsAuth(res.Err) {
				return "", res.Err
			}
			return "", &carrier.AuthError{Err: res.Err}
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token if it is still the one the caller saw
// rejected. A token refreshed in the meantime by another caller is kept.
func (m *Manager) Invalidate(stale string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Valid && m.token == stale {
		m.state = NoSession
		m.token = ""
		m.acquiredAt = time.Time{}
	}
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// AcquiredAt is zero when there is no valid session.
func (m *Manager) AcquiredAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquiredAt
}
