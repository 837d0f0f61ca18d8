package verify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/use-agent/certcheck/identity"
	"github.com/use-agent/certcheck/metrics"
	"github.com/use-agent/certcheck/parser"
	"github.com/use-agent/certcheck/session"
	"github.com/use-agent/certcheck/simhash"
	"github.com/use-agent/certcheck/webhook"
)

// ErrEmptyCode is returned by Start for a blank verification code.
var ErrEmptyCode = errors.New("verify: verification code is empty")

// Opener opens a fresh browser context on the portal's verification form.
type Opener interface {
	Open(ctx context.Context) (session.Page, error)
}

// FormFiller writes the verification code into the portal form reachable
// from scope, reporting whether a field accepted it.
type FormFiller interface {
	FillCode(ctx context.Context, scope session.Page, code string) bool
}

// Notifier is told about every terminal decision.
type Notifier interface {
	DeliverAsync(event *webhook.Event)
}

// Transcriber renders page HTML into an audit transcript.
type Transcriber interface {
	Transcript(rawHTML, sourceURL string) string
}

// Config holds the verification parameters of a deployment.
type Config struct {
	// ExpectedID is the reference identifier every result is checked against.
	ExpectedID string

	// PortalURL is used to resolve links in transcripts.
	PortalURL string

	// ReferenceLayout is the layout fingerprint of a known-good result page.
	// Zero disables drift detection.
	ReferenceLayout uint64

	// LayoutTolerance is the largest fingerprint distance not reported as
	// drift.
	LayoutTolerance int
}

// Verifier starts sessions and classifies them on poll. It is safe for
// concurrent use.
type Verifier struct {
	store  *session.Store
	opener Opener
	filler FormFiller
	cfg    Config

	transcriber Transcriber
	notifier    Notifier
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time

	polls singleflight.Group
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option { return func(v *Verifier) { v.logger = l } }

// WithMetrics records verification metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(v *Verifier) { v.metrics = m } }

// WithNotifier sends decisions to n.
func WithNotifier(n Notifier) Option { return func(v *Verifier) { v.notifier = n } }

// WithTranscriber attaches a Markdown transcript to audit entries.
func WithTranscriber(t Transcriber) Option { return func(v *Verifier) { v.transcriber = t } }

// WithClock overrides the audit timestamp source.
func WithClock(now func() time.Time) Option { return func(v *Verifier) { v.now = now } }

// New creates a Verifier.
func New(store *session.Store, opener Opener, filler FormFiller, cfg Config, opts ...Option) *Verifier {
	v := &Verifier{
		store:  store,
		opener: opener,
		filler: filler,
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// MaskedExpectedID is the display form of the reference identifier.
func (v *Verifier) MaskedExpectedID() string {
	return identity.MaskForDisplay(v.cfg.ExpectedID)
}

// Started describes a freshly opened session.
type Started struct {
	Session    session.Snapshot
	CodeFilled bool
}

// Start opens a portal page, fills in code on a best-effort basis and
// registers a pending session for it. A field that cannot be found is
// logged, not returned: the user can still type the code into the page.
func (v *Verifier) Start(ctx context.Context, code string) (*Started, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrEmptyCode
	}

	page, err := v.opener.Open(ctx)
	if err != nil {
		v.metrics.IncPortalError("open")
		return nil, err
	}

	filled := v.filler.FillCode(ctx, page, code)
	if filled {
		v.logger.Info("verification code filled in", "code_length", len(code))
	} else {
		v.metrics.IncCodeFillFailure()
		v.logger.Warn("could not fill verification code: field not found", "code_length", len(code))
	}

	sess, err := v.store.Create(code, v.cfg.ExpectedID, page)
	if err != nil {
		if closeErr := page.Close(); closeErr != nil {
			v.logger.Warn("failed to close page of unregistered session", "error", closeErr)
		}
		return nil, err
	}
	v.metrics.IncStarted()

	v.logger.Info("verification started",
		"verification_id", sess.ID,
		"code_filled", filled,
	)
	return &Started{Session: sess.Snapshot(), CodeFilled: filled}, nil
}

// Poll classifies the current page of session id. It returns
// session.ErrNotFound for unknown handles; every other failure shows up as
// a pending status. A session that already has a decision is answered from
// the store without reading the page again.
func (v *Verifier) Poll(ctx context.Context, id string) (session.Snapshot, error) {
	sess, err := v.store.Get(id)
	if err != nil {
		return session.Snapshot{}, err
	}

	res, _, _ := v.polls.Do(id, func() (any, error) {
		return v.poll(ctx, sess), nil
	})
	return res.(session.Snapshot), nil
}

func (v *Verifier) poll(ctx context.Context, sess *session.Session) session.Snapshot {
	var layout uint64
	snap, decided := sess.Attempt(func(page session.Page) *session.Decision {
		text, ok := page.Text(ctx)
		if !ok {
			v.logger.Debug("page text unavailable", "verification_id", sess.ID)
			text = ""
		}

		result := parser.Parse(text)
		d := Classify(result, sess.ExpectedID)
		if d.Status == session.StatusPending {
			return nil
		}
		if d.Mismatch {
			v.metrics.IncMismatch()
			v.logger.Warn("identity mismatch on result page",
				"verification_id", sess.ID,
				"expected", identity.MaskForDisplay(sess.ExpectedID),
				"found", *result.MaskedID,
				"mismatched_positions", identity.MismatchedPositions(*result.MaskedID, sess.ExpectedID),
			)
		}

		entry := v.evidence(ctx, sess.ID, page)
		layout = entry.LayoutFingerprint
		return &session.Decision{Status: d.Status, Result: result, Audit: entry}
	})
	if !decided {
		return snap
	}

	v.metrics.ObserveDecision(string(snap.Status))
	v.checkLayout(sess.ID, layout)
	v.logger.Info("verification decided",
		"verification_id", snap.ID,
		"status", snap.Status,
	)
	if v.notifier != nil {
		v.notifier.DeliverAsync(&webhook.Event{
			Type:           "verification." + string(snap.Status),
			VerificationID: snap.ID,
			Timestamp:      v.now().Unix(),
			Data: map[string]any{
				"status":      snap.Status,
				"result":      snap.Result,
				"expected_id": identity.MaskForDisplay(snap.ExpectedID),
			},
		})
	}
	return snap
}

// evidence captures the audit entry for a decision. Every capture is
// best-effort: a failure leaves its field empty.
func (v *Verifier) evidence(ctx context.Context, id string, page session.Page) session.AuditEntry {
	entry := session.AuditEntry{Timestamp: v.now().UTC()}

	if png, ok := page.Screenshot(ctx); ok {
		entry.Screenshot = png
	} else {
		v.logger.Warn("audit screenshot unavailable", "verification_id", id)
	}

	if html, ok := page.HTML(ctx); ok {
		entry.LayoutFingerprint = simhash.Layout(html)
		if v.transcriber != nil {
			entry.Transcript = v.transcriber.Transcript(html, v.cfg.PortalURL)
		}
	}
	return entry
}

// checkLayout reports result pages that no longer resemble the reference
// layout the extraction heuristics were tuned on.
func (v *Verifier) checkLayout(id string, layout uint64) {
	if v.cfg.ReferenceLayout == 0 || layout == 0 {
		return
	}
	if dist := simhash.Distance(v.cfg.ReferenceLayout, layout); dist > v.cfg.LayoutTolerance {
		v.metrics.IncLayoutDrift()
		v.logger.Warn("result page layout drifted from reference",
			"verification_id", id,
			"distance", dist,
			"layout", layout,
		)
	}
}
