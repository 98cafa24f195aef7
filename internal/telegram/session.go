package telegram

import (
	"sync"

	"filegate-bot/internal/db"
)

// SessionState tracks where a user is inside a multi-step flow.
type SessionState string

const (
	StateIdle            SessionState = "idle"
	StateAwaitChannelRef SessionState = "await_channel_ref"
	StateAwaitMode       SessionState = "await_mode"
	StateAwaitRangeStart SessionState = "await_range_start"
	StateAwaitRangeEnd   SessionState = "await_range_end"
	StateCollectingBatch SessionState = "collecting_batch"
)

func (s SessionState) String() string {
	return string(s)
}

// Session is the per-user flow scratchpad. It lives in memory only; a
// restart drops every flow back to idle.
type Session struct {
	State SessionState

	// forcech flow
	Channel *db.ForceChannel

	// custombatch flow
	RangeChannelID int64
	RangeStart     int

	// batch flow
	FileIDs []uint
}

type Sessions struct {
	mu sync.Mutex
	m  map[int64]*Session
}

func NewSessions() *Sessions {
	return &Sessions{m: make(map[int64]*Session)}
}

// Get returns the user's session, creating an idle one if none exists.
func (s *Sessions) Get(userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.m[userID]
	if !ok {
		sess = &Session{State: StateIdle}
		s.m[userID] = sess
	}
	return sess
}

func (s *Sessions) Set(userID int64, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID] = sess
}

// Reset drops the user back to idle, discarding any flow state.
func (s *Sessions) Reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
}

// State returns the user's current state without creating a session.
func (s *Sessions) State(userID int64) SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.m[userID]; ok {
		return sess.State
	}
	return StateIdle
}
