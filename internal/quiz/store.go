package quiz

import (
	"errors"
	"sync"
	"time"
)

// ErrSessionNotFound is returned when a user has no session or it expired.
// Callers translate it into the "quiz expired, please restart" message.
var ErrSessionNotFound = errors.New("quiz session not found")

// Session is the per-user quiz progress record.
type Session struct {
	UserID      string    `json:"user_id"`
	QuestionIdx int       `json:"question_idx"`
	Score       int       `json:"score"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionStore keeps at most one session per user. Implementations must
// treat a session older than the TTL as absent on every read and evict it.
type SessionStore interface {
	Start(userID string, startIdx int) (Session, error)
	Get(userID string) (Session, bool)
	Update(userID string, mutate func(*Session)) (Session, error)
	Clear(userID string)
}

// MemoryStore is an in-memory SessionStore with lazy TTL eviction.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an in-memory session store with the given TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemoryStore) Start(userID string, startIdx int) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Replaces any prior session for the user, no merge.
	sess := Session{
		UserID:      userID,
		QuestionIdx: startIdx,
		Score:       0,
		CreatedAt:   s.now(),
	}
	s.sessions[userID] = sess
	return sess, nil
}

func (s *MemoryStore) Get(userID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validLocked(userID)
}

func (s *MemoryStore) Update(userID string, mutate func(*Session)) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.validLocked(userID)
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	mutate(&sess)
	s.sessions[userID] = sess
	return sess, nil
}

func (s *MemoryStore) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// validLocked returns the session only while its age is within the TTL;
// expired entries are evicted on the spot. Caller must hold s.mu.
func (s *MemoryStore) validLocked(userID string) (Session, bool) {
	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	if s.now().Sub(sess.CreatedAt) > s.ttl {
		delete(s.sessions, userID)
		return Session{}, false
	}
	return sess, true
}
