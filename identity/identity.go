// Package identity formats and matches the 11-digit national identifier
// (CPF) printed, partially redacted, on the exam result page.
package identity

import "strings"

const (
	// Length is the number of positional characters in an identifier.
	Length = 11

	// Wildcard marks a redacted position.
	Wildcard = '*'

	// Redacted is the display form returned for unusable input.
	Redacted = "***.***.***-**"
)

// shown lists the positions left visible by MaskForDisplay.
var shown = [Length]bool{
	true, true, true,
	false, false, false,
	true, true, true,
	false, false,
}

// Digits returns s with every non-digit removed.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// positional keeps only digits and wildcards, the characters that occupy a
// position in a masked identifier.
func positional(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == Wildcard {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MaskForDisplay renders an identifier as DDD.***.DDD-** for display.
//
// Input must be a raw identifier with exactly 11 digits (punctuation is
// ignored) or a value already in that display form, which is returned
// unchanged. Anything else, partially masked input included, yields Redacted
// instead of an error; callers must accept it.
func MaskForDisplay(id string) string {
	if isDisplayForm(id) {
		return id
	}
	d := Digits(id)
	if len(d) != Length || len(positional(id)) != Length {
		return Redacted
	}
	out := []byte(d)
	for i := range out {
		if !shown[i] {
			out[i] = Wildcard
		}
	}
	return format(out)
}

// isDisplayForm reports whether s is exactly DDD.***.DDD-**.
func isDisplayForm(s string) bool {
	if len(s) != 14 || s[3] != '.' || s[7] != '.' || s[11] != '-' {
		return false
	}
	p := s[0:3] + s[4:7] + s[8:11] + s[12:14]
	for i := 0; i < Length; i++ {
		c := p[i]
		if shown[i] && (c < '0' || c > '9') {
			return false
		}
		if !shown[i] && c != Wildcard {
			return false
		}
	}
	return true
}

func format(p []byte) string {
	return string(p[0:3]) + "." + string(p[3:6]) + "." + string(p[6:9]) + "-" + string(p[9:11])
}

// Matches reports whether a masked identifier scraped from a page is
// consistent with the full reference identifier. A wildcard position in
// masked matches any digit. Both sides fail closed: a reference without
// exactly 11 digits, or a mask without exactly 11 positional characters,
// never matches.
func Matches(masked, reference string) bool {
	ref := Digits(reference)
	if len(ref) != Length {
		return false
	}
	m := positional(masked)
	if len(m) != Length {
		return false
	}
	for i := 0; i < Length; i++ {
		if m[i] != Wildcard && m[i] != ref[i] {
			return false
		}
	}
	return true
}

// MismatchedPositions returns the zero-based positions where a visible
// digit of masked differs from reference, or nil when either side is not a
// usable 11-position value. It lets a mismatch be reported without logging
// the full identifier.
func MismatchedPositions(masked, reference string) []int {
	ref := Digits(reference)
	m := positional(masked)
	if len(ref) != Length || len(m) != Length {
		return nil
	}
	var out []int
	for i := 0; i < Length; i++ {
		if m[i] != Wildcard && m[i] != ref[i] {
			out = append(out, i)
		}
	}
	return out
}
