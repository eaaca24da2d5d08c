package roomclient

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Session is the viewer's room-participation identity: the anonymous id and
// display name used on the event channel, the moderator flag carried at
// join time, and the bearer token for REST calls. It is created once at
// room entry and passed to the client explicitly; nothing reads it from
// ambient global state.
type Session struct {
	UserId    string
	Username  string
	Moderator bool
	Token     string
}

func (s Session) Role() string {
	if s.Moderator {
		return "moderator"
	}
	return "user"
}

// SessionStore persists the session across room visits until an explicit
// leave. The browser client keeps this in local storage; here it is an
// interface so hosts decide.
type SessionStore interface {
	Load() (Session, bool)
	Save(Session) error
	Clear() error
}

// MemorySessionStore is the in-process store used by tests and short-lived
// CLI hosts.
type MemorySessionStore struct {
	mu      sync.Mutex
	session Session
	present bool
}

func (m *MemorySessionStore) Load() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, m.present
}

func (m *MemorySessionStore) Save(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
	m.present = true
	return nil
}

func (m *MemorySessionStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = Session{}
	m.present = false
	return nil
}

// NewAnonymousSession generates a fresh anonymous identity: a random id and
// a generated display name.
func NewAnonymousSession() Session {
	id := uuid.NewString()
	return Session{
		UserId:   id,
		Username: fmt.Sprintf("Guest-%s", id[:8]),
	}
}
