// Package session holds the in-memory registry of active call sessions.
package session

import (
	"errors"
	"sort"
	"sync"

	"github.com/Matsukatm/callcenter/internal/types"
)

var (
	ErrDuplicateSession = errors.New("session already exists")
	ErrChannelInUse     = errors.New("channel already has a live session")
)

// Store is the registry of active sessions keyed by session id. A channel id
// maps to at most one live session at a time; after that session is removed
// the channel id may be reused by a new session.
type Store struct {
	sessions  map[string]*types.CallSession // sessionID -> session
	byChannel map[string]string             // channelID -> live sessionID
	mu        sync.RWMutex
}

// NewStore creates an empty session store
func NewStore() *Store {
	return &Store{
		sessions:  make(map[string]*types.CallSession),
		byChannel: make(map[string]string),
	}
}

// Add registers a new session
func (s *Store) Add(sess *types.CallSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.SessionID]; exists {
		return ErrDuplicateSession
	}
	if _, busy := s.byChannel[sess.ChannelID]; busy {
		return ErrChannelInUse
	}

	s.sessions[sess.SessionID] = sess.Clone()
	s.byChannel[sess.ChannelID] = sess.SessionID
	return nil
}

// Get returns a copy of the session
func (s *Store) Get(sessionID string) (*types.CallSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// ByChannel returns a copy of the live session for a channel
func (s *Store) ByChannel(channelID string) (*types.CallSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byChannel[channelID]
	if !ok {
		return nil, false
	}
	return s.sessions[id].Clone(), true
}

// Update applies fn to the stored session and returns a copy of the result.
// Ended sessions are frozen: fn is not called and ok is false.
func (s *Store) Update(sessionID string, fn func(*types.CallSession)) (*types.CallSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok || sess.IsEnded() {
		return nil, false
	}
	fn(sess)
	return sess.Clone(), true
}

// Remove deletes a session and frees its channel id
func (s *Store) Remove(sessionID string) (*types.CallSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	delete(s.sessions, sessionID)
	if s.byChannel[sess.ChannelID] == sessionID {
		delete(s.byChannel, sess.ChannelID)
	}
	return sess.Clone(), true
}

// List returns copies of all sessions ordered by creation time
func (s *Store) List() []*types.CallSession {
	s.mu.RLock()
	result := make([]*types.CallSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		result = append(result, sess.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamps.Created.Before(result[j].Timestamps.Created)
	})
	return result
}

// Count returns the number of live sessions
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ActiveAgents returns the number of distinct agents owning at least one session
func (s *Store) ActiveAgents() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agents := make(map[string]struct{})
	for _, sess := range s.sessions {
		if sess.AgentID != "" {
			agents[sess.AgentID] = struct{}{}
		}
	}
	return len(agents)
}
