// Package session holds per-run state: transcript, human-visible log,
// status, pending question, and generated artifacts, keyed by session id.
//
// Concurrency contract: one writer per session. A writer claims the
// session with BeginAdvance and releases it with EndAdvance; a second
// claim while the first is active fails with ErrBusy. Readers get
// copied snapshots at any time.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"devteam/pkg/logx"
	"devteam/pkg/metrics"
	"devteam/pkg/proto"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrBusy is returned when a session is already being advanced.
	ErrBusy = errors.New("session is already advancing")
	// ErrInvalidState is returned when an operation does not apply to the
	// session's current status.
	ErrInvalidState = errors.New("operation not valid in current session state")
	// ErrEmptyPrompt is returned when a run is started without a prompt.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")
	// ErrEmptyResponse is returned when a resume carries no response text.
	ErrEmptyResponse = errors.New("response cannot be empty")
)

// Session is the mutable per-run state. Fields are only written by the
// goroutine holding the advance claim.
type Session struct {
	ID         string
	Status     proto.Status
	Node       string // graph node the run is parked at
	Question   string // pending question while waiting_for_human
	Transcript []proto.Message
	Log        []string
	Artifacts  map[string]string // path -> content, later writes win
	Rework     int               // QA rejection count
	CreatedAt  time.Time
	UpdatedAt  time.Time

	advancing bool
}

// Snapshot is an immutable copy of the externally visible session state.
type Snapshot struct {
	ID        string
	Status    proto.Status
	Node      string
	Question  string
	Log       []string
	Artifacts map[string]string
	Rework    int
	UpdatedAt time.Time
}

// Store is the session persistence contract. Implementations must honor
// the single-writer-per-key rule enforced through BeginAdvance.
type Store interface {
	Create(initialPrompt string) (string, error)
	Get(id string) (Snapshot, error)
	// BeginAdvance claims exclusive write access to the session.
	BeginAdvance(id string) error
	EndAdvance(id string)
	// Update runs fn against the live session under the store lock. The
	// caller must hold the advance claim.
	Update(id string, fn func(*Session)) error
	Delete(id string)
	Len() int
	// EvictIdle removes sessions idle longer than ttl. Sessions holding
	// an advance claim are never evicted. ttl <= 0 disables eviction.
	EvictIdle(ttl time.Duration) int
}

// MemoryStore is the in-process Store implementation.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *logx.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
		logger:   logx.NewLogger("session-store"),
	}
}

// Create allocates a new session seeded with the client's prompt. The
// session starts running at the pm node.
func (s *MemoryStore) Create(initialPrompt string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &Session{
		ID:         id,
		Status:     proto.StatusRunning,
		Node:       "pm",
		Transcript: []proto.Message{proto.NewHumanMessage(initialPrompt)},
		Log:        []string{proto.HumanLogLine(initialPrompt)},
		Artifacts:  make(map[string]string),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	s.logger.Info("created session %s", id)
	return id, nil
}

// Get returns a copied snapshot of the session.
func (s *MemoryStore) Get(id string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return snapshotOf(sess), nil
}

func snapshotOf(sess *Session) Snapshot {
	logCopy := make([]string, len(sess.Log))
	copy(logCopy, sess.Log)
	artifacts := make(map[string]string, len(sess.Artifacts))
	for k, v := range sess.Artifacts {
		artifacts[k] = v
	}
	return Snapshot{
		ID:        sess.ID,
		Status:    sess.Status,
		Node:      sess.Node,
		Question:  sess.Question,
		Log:       logCopy,
		Artifacts: artifacts,
		Rework:    sess.Rework,
		UpdatedAt: sess.UpdatedAt,
	}
}

// BeginAdvance claims the session for writing.
func (s *MemoryStore) BeginAdvance(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if sess.advancing {
		return ErrBusy
	}
	sess.advancing = true
	return nil
}

// EndAdvance releases the write claim.
func (s *MemoryStore) EndAdvance(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.advancing = false
	}
}

// Update applies fn to the live session. Log and transcript are
// append-only by convention; fn must not truncate them.
func (s *MemoryStore) Update(id string, fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	fn(sess)
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes a session.
func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
}

// Len returns the number of stored sessions.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictIdle removes sessions whose last update is older than ttl and that
// are not mid-advance. Returns the number evicted.
func (s *MemoryStore) EvictIdle(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	cutoff := time.Now().UTC().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, sess := range s.sessions {
		if !sess.advancing && sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
		s.logger.Info("evicted %d idle sessions", evicted)
	}
	return evicted
}
