package ws

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionInfo is the admin view of a live session.
type SessionInfo struct {
	ID         string `json:"id"`
	RemoteAddr string `json:"remoteAddr"`
}

// SessionManager maintains the registry of all connected sessions.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(logger *zap.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Register adds a session. A previous session with the same id is closed
// first.
func (sm *SessionManager) Register(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if old, ok := sm.sessions[s.ID]; ok && old != s {
		_ = old.Close()
		sm.logger.Info("duplicate session displaced", zap.String("session", s.ID))
	}
	sm.sessions[s.ID] = s
	sm.logger.Info("session registered",
		zap.String("session", s.ID), zap.String("remote", s.RemoteAddr))
}

// Unregister removes s if it is still the registered session for its id.
func (sm *SessionManager) Unregister(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if cur, ok := sm.sessions[s.ID]; ok && cur == s {
		delete(sm.sessions, s.ID)
	}
	sm.logger.Info("session unregistered", zap.String("session", s.ID))
}

// Get returns the session for id, or nil.
func (sm *SessionManager) Get(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// Count returns the number of connected sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// All returns a snapshot of the live sessions ordered by id.
func (sm *SessionManager) All() []SessionInfo {
	sm.mu.RLock()
	out := make([]SessionInfo, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, SessionInfo{ID: s.ID, RemoteAddr: s.RemoteAddr})
	}
	sm.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Kick closes the session with id. It reports whether one was found.
func (sm *SessionManager) Kick(id string) bool {
	s := sm.Get(id)
	if s == nil {
		return false
	}
	_ = s.Close()
	sm.logger.Info("session kicked", zap.String("session", id))
	return true
}

// CloseAll closes every session and waits up to maxWait for their handlers
// to unregister them.
func (sm *SessionManager) CloseAll(maxWait time.Duration) {
	sm.mu.RLock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	sm.mu.RUnlock()

	sm.logger.Info("closing all sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		_ = s.Close()
	}

	deadline := time.Now().Add(maxWait)
	for time.Now().Before(deadline) {
		if sm.Count() == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	sm.logger.Warn("sessions still open after close", zap.Int("count", sm.Count()))
}
