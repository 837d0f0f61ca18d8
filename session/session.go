// Package session holds verification sessions in process memory.
//
// A session owns one browser page. Every operation on that page runs while
// holding the session lock, and the session moves from pending to a terminal
// status at most once.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/use-agent/certcheck/parser"
)

// ErrNotFound is returned when no session exists for a handle.
var ErrNotFound = errors.New("session: not found")

// Status is the verification state of a session.
type Status string

const (
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusDenied      Status = "denied"
	StatusNeedsReview Status = "needs_review"
)

// Terminal reports whether no further polling can change the status.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDenied || s == StatusNeedsReview
}

// Page is the live browser page behind a session. Reads report absence with
// ok=false instead of an error: callers degrade to "nothing recognized".
type Page interface {
	// Text returns the rendered plain text of the page body.
	Text(ctx context.Context) (text string, ok bool)

	// HTML returns the current serialized DOM.
	HTML(ctx context.Context) (html string, ok bool)

	// Screenshot captures the full page as PNG.
	Screenshot(ctx context.Context) (png []byte, ok bool)

	// Close releases the page and its browser context.
	Close() error
}

// AuditEntry is evidence captured when a session reached a decision.
type AuditEntry struct {
	Timestamp time.Time `json:"timestamp"`

	// Screenshot is nil when the capture failed.
	Screenshot []byte `json:"screenshot,omitempty"`

	// LayoutFingerprint is a SimHash of the page's tag structure, 0 when the
	// DOM could not be read.
	LayoutFingerprint uint64 `json:"layout_fingerprint,omitempty"`

	// Transcript is a Markdown rendering of the page.
	Transcript string `json:"transcript,omitempty"`
}

// Decision is what a page inspection settled on.
type Decision struct {
	Status Status
	Result parser.Result
	Audit  AuditEntry
}

// Session is one browser-backed attempt to validate a submitted code
// against the expected identifier.
type Session struct {
	ID            string
	CreatedAt     time.Time
	SubmittedCode string
	ExpectedID    string

	mu     sync.Mutex
	status Status
	result *parser.Result
	audit  []AuditEntry
	page   Page
}

// Snapshot is a copy of a session's state, safe to hand to other goroutines.
type Snapshot struct {
	ID            string         `json:"verification_id"`
	CreatedAt     time.Time      `json:"created_at"`
	SubmittedCode string         `json:"submitted_code"`
	ExpectedID    string         `json:"-"`
	Status        Status         `json:"status"`
	Result        *parser.Result `json:"result,omitempty"`
	Audit         []AuditEntry   `json:"audit,omitempty"`
	PageOpen      bool           `json:"page_open"`
}

// Snapshot returns the current state. It waits for any page work in progress.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	audit := make([]AuditEntry, len(s.audit))
	copy(audit, s.audit)
	return Snapshot{
		ID:            s.ID,
		CreatedAt:     s.CreatedAt,
		SubmittedCode: s.SubmittedCode,
		ExpectedID:    s.ExpectedID,
		Status:        s.status,
		Result:        s.result,
		Audit:         audit,
		PageOpen:      s.page != nil,
	}
}

// Attempt runs inspect against the session's page under the session lock.
//
// inspect is skipped when the session is already terminal or has no page.
// A nil return leaves the session untouched and the page open. A non-nil
// Decision is recorded exactly once: status and result are set, the audit
// entry is appended and the page is detached and closed. The close runs even
// if inspect could not capture evidence.
//
// decided is true only for the call that recorded the decision.
func (s *Session) Attempt(inspect func(Page) *Decision) (snap Snapshot, decided bool) {
	s.mu.Lock()
	var release Page
	defer func() {
		s.mu.Unlock()
		closePage(s.ID, release)
	}()

	if s.status.Terminal() || s.page == nil {
		return s.snapshotLocked(), false
	}

	d := inspect(s.page)
	if d == nil {
		return s.snapshotLocked(), false
	}

	result := d.Result
	s.status = d.Status
	s.result = &result
	s.audit = append(s.audit, d.Audit)
	release, s.page = s.page, nil

	return s.snapshotLocked(), true
}

// release detaches and closes the page without recording a decision.
func (s *Session) release() {
	s.mu.Lock()
	p := s.page
	s.page = nil
	s.mu.Unlock()
	closePage(s.ID, p)
}

// expire releases the page of a session that never reached a decision and
// reports whether it did. Decided sessions are left alone.
func (s *Session) expire() bool {
	s.mu.Lock()
	if s.status.Terminal() {
		s.mu.Unlock()
		return false
	}
	p := s.page
	s.page = nil
	s.mu.Unlock()
	closePage(s.ID, p)
	return true
}

func closePage(id string, p Page) {
	if p == nil {
		return
	}
	if err := p.Close(); err != nil {
		slog.Warn("failed to close session page",
			"verification_id", id,
			"error", err,
		)
	}
}
