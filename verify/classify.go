// Package verify decides whether a portal result page certifies the expected
// identifier, and drives sessions from start to decision.
package verify

import (
	"github.com/use-agent/certcheck/identity"
	"github.com/use-agent/certcheck/parser"
	"github.com/use-agent/certcheck/session"
)

// minReviewAreas is the number of scores that, without an identifier, show a
// result page rendered and needs a human look.
const minReviewAreas = 2

// Decision is the classifier output.
type Decision struct {
	Status session.Status

	// Mismatch is set when an identifier was extracted but does not match
	// the expected one.
	Mismatch bool
}

// Classify maps a parsed page and the expected identifier to a status.
//
// A present mask decides alone: it matches (approved) or it does not
// (denied), malformed masks included. Without a mask, two or more scores
// mean needs_review. Anything less is pending.
func Classify(r parser.Result, expectedID string) Decision {
	if r.MaskedID != nil {
		if identity.Matches(*r.MaskedID, expectedID) {
			return Decision{Status: session.StatusApproved}
		}
		return Decision{Status: session.StatusDenied, Mismatch: true}
	}
	if r.NumericAreas() >= minReviewAreas {
		return Decision{Status: session.StatusNeedsReview}
	}
	return Decision{Status: session.StatusPending}
}
