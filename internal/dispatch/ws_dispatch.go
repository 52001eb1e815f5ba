package dispatch

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// WSSession represents a connected customer session
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

func (s *WSSession) Close() error { return s.conn.Close() }

// WSRegistry holds one session per customer; a new connection replaces the
// previous one.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

func (r *WSRegistry) Add(customerID string, conn *websocket.Conn) *WSSession {
	s := &WSSession{conn: conn}
	r.mu.Lock()
	old := r.sessions[customerID]
	r.sessions[customerID] = s
	r.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	return s
}

// Remove drops the session if it is still the registered one.
func (r *WSRegistry) Remove(customerID string, s *WSSession) {
	r.mu.Lock()
	if cur, ok := r.sessions[customerID]; ok && cur == s {
		delete(r.sessions, customerID)
	}
	r.mu.Unlock()
}

func (r *WSRegistry) Send(customerID string, v any) error {
	r.mu.RLock()
	s, ok := r.sessions[customerID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.Send(v); err != nil {
		r.Remove(customerID, s)
		_ = s.Close()
		return err
	}
	return nil
}

func (r *WSRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

var ErrNoSession = &NoSessionError{}

type NoSessionError struct{}

func (n *NoSessionError) Error() string { return "no ws session" }
