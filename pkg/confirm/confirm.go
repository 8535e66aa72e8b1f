package confirm

import (
	"regexp"
	"strings"
)

// Verdict classifies a short utterance as a confirmation answer.
type Verdict int

const (
	Ambiguous Verdict = iota
	Affirmative
	Negative
)

// String returns the string representation of a Verdict
func (v Verdict) String() string {
	switch v {
	case Affirmative:
		return "AFFIRMATIVE"
	case Negative:
		return "NEGATIVE"
	default:
		return "AMBIGUOUS"
	}
}

var (
	affirmativeRe = regexp.MustCompile(`^(yes|yep|yeah|correct|right|confirm|sure|y)$`)
	negativeRe    = regexp.MustCompile(`^(no|nope|nah|not|incorrect|wrong|change|don't|dont)`)
)

// IsAffirmative reports whether the utterance reads as a yes. The whole
// trimmed, case-folded utterance must match the affirmative lexicon, or
// contain both "that" and "right" ("that's right" style replies).
func IsAffirmative(text string) bool {
	if text == "" {
		return false
	}
	t := strings.ToLower(strings.TrimSpace(text))
	if affirmativeRe.MatchString(t) {
		return true
	}
	return strings.Contains(t, "that") && strings.Contains(t, "right")
}

// IsNegative reports whether the utterance reads as a no. The trimmed,
// case-folded utterance must start with a negative word, or contain
// "not right" or "wrong".
func IsNegative(text string) bool {
	if text == "" {
		return false
	}
	t := strings.ToLower(strings.TrimSpace(text))
	if negativeRe.MatchString(t) {
		return true
	}
	return strings.Contains(t, "not right") || strings.Contains(t, "wrong")
}

// Classify resolves an utterance into a single verdict. Affirmative is
// checked before Negative, so a crafted utterance matching both reads as
// Affirmative. Empty input is Ambiguous.
func Classify(text string) Verdict {
	if IsAffirmative(text) {
		return Affirmative
	}
	if IsNegative(text) {
		return Negative
	}
	return Ambiguous
}
