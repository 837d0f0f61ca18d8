package session

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// handlePrefix starts every verification handle.
const handlePrefix = "ver_"

// Store maps verification handles to sessions. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
	newID    func() string

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithJanitorInterval sets how often expired sessions are swept.
func WithJanitorInterval(d time.Duration) Option {
	return func(s *Store) { s.interval = d }
}

// WithIDGenerator overrides handle generation.
func WithIDGenerator(f func() string) Option {
	return func(s *Store) { s.newID = f }
}

// NewStore creates a Store. When ttl > 0, a background goroutine evicts
// pending sessions older than ttl and closes their pages; call Close to stop
// it.
func NewStore(ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		interval: 5 * time.Minute,
		now:      time.Now,
		newID:    newHandle,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.ttl > 0 && s.interval > 0 {
		s.wg.Add(1)
		go s.janitor()
	}
	return s
}

// newHandle returns "ver_" followed by 12 hex characters.
func newHandle() string {
	return handlePrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Create registers a pending session that owns page.
func (s *Store) Create(code, expectedID string, page Page) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 0; attempt < 3; attempt++ {
		id := s.newID()
		if _, taken := s.sessions[id]; taken {
			continue
		}
		sess := &Session{
			ID:            id,
			CreatedAt:     s.now(),
			SubmittedCode: code,
			ExpectedID:    expectedID,
			status:        StatusPending,
			page:          page,
		}
		s.sessions[id] = sess
		return sess, nil
	}
	return nil, fmt.Errorf("session: could not allocate a unique handle")
}

// Get looks up a session by handle.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Len returns the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops the janitor and closes every page still open.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()

		s.mu.Lock()
		all := make([]*Session, 0, len(s.sessions))
		for _, sess := range s.sessions {
			all = append(all, sess)
		}
		s.mu.Unlock()

		for _, sess := range all {
			sess.release()
		}
	})
}

// EvictExpired removes pending sessions created more than ttl ago and closes
// their pages. Decided sessions keep their result and audit trail. It returns
// the number removed.
func (s *Store) EvictExpired() int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.ttl)

	s.mu.RLock()
	var stale []*Session
	for _, sess := range s.sessions {
		if sess.CreatedAt.Before(cutoff) {
			stale = append(stale, sess)
		}
	}
	s.mu.RUnlock()

	// Page work in progress holds the session lock; wait for it outside the
	// store lock.
	var expired []string
	for _, sess := range stale {
		if sess.expire() {
			expired = append(expired, sess.ID)
		}
	}

	s.mu.Lock()
	for _, id := range expired {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	return len(expired)
}

func (s *Store) janitor() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if n := s.EvictExpired(); n > 0 {
				slog.Info("evicted expired pending verification sessions", "count", n)
			}
		}
	}
}
