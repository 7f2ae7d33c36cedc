// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package intent

import (
	"strings"
	"unicode"
)

// Intent is the coarse category assigned to a caller utterance
type Intent string

const (
	FeatureQuery Intent = "feature-query"
	Positive     Intent = "positive"
	Negative     Intent = "negative"
	Neutral      Intent = "neutral"
)

// Classifier assigns an Intent to a non-empty utterance
type Classifier interface {
	Classify(utterance string) Intent
}

// Lexicon holds the phrase sets a KeywordClassifier matches against.
// Phrases are lower-case and may span several words.
type Lexicon struct {
	FeatureQuery []string
	Positive     []string
	Negative     []string
}

// DefaultLexicon is the phrase set used for sales feedback calls
var DefaultLexicon = Lexicon{
	FeatureQuery: []string{
		"how", "what", "when", "where", "why", "tell me about", "explain",
		"know more about", "information about", "process", "feature",
		"onboarding", "setup", "set up", "configure", "work", "does", "can", "able to",
	},
	Positive: []string{
		"good", "great", "excellent", "amazing", "wonderful", "love", "happy",
		"satisfied", "impressed", "perfect", "best", "fantastic",
	},
	Negative: []string{
		"horrible", "bad", "terrible", "awful", "poor", "not good", "disappointing",
		"frustrating", "difficult", "issue", "problem", "trouble", "error", "bug",
		"not working", "fail",
	},
}

// KeywordClassifier tests the phrase sets in priority order: feature-query,
// positive, negative. The first set with a word match wins; no match is
// Neutral. The last word of a phrase also matches its plain inflections
// ("issue" matches "issues", "work" matches "working") but never another word
// sharing the prefix ("can" does not match "cancel"). A question that also
// carries sentiment ("how great is it?") is therefore a feature-query.
type KeywordClassifier struct {
	lex Lexicon
}

var _ Classifier = (*KeywordClassifier)(nil)

// NewKeywordClassifier returns a classifier over lex. A zero Lexicon selects DefaultLexicon.
func NewKeywordClassifier(lex Lexicon) *KeywordClassifier {
	if len(lex.FeatureQuery) == 0 && len(lex.Positive) == 0 && len(lex.Negative) == 0 {
		lex = DefaultLexicon
	}
	return &KeywordClassifier{lex: Lexicon{
		FeatureQuery: normalizeAll(lex.FeatureQuery),
		Positive:     normalizeAll(lex.Positive),
		Negative:     normalizeAll(lex.Negative),
	}}
}

func (c *KeywordClassifier) Classify(utterance string) Intent {
	text := normalize(utterance)
	switch {
	case containsAny(text, c.lex.FeatureQuery):
		return FeatureQuery
	case containsAny(text, c.lex.Positive):
		return Positive
	case containsAny(text, c.lex.Negative):
		return Negative
	default:
		return Neutral
	}
}

// normalize lower-cases s and reduces it to space-separated words padded with
// a space on both ends, so phrase membership is a plain substring test on
// word boundaries.
func normalize(s string) string {
	var b strings.Builder
	b.WriteByte(' ')
	space := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space {
			b.WriteByte(' ')
			space = true
		}
	}
	if !space {
		b.WriteByte(' ')
	}
	return b.String()
}

// normalizeAll keeps the leading boundary space of each phrase and drops the
// trailing one; matches decides where the last word may end.
func normalizeAll(phrases []string) []string {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if n := strings.TrimRight(normalize(p), " "); strings.TrimSpace(n) != "" {
			out = append(out, n)
		}
	}
	return out
}

// inflections may follow the last word of a phrase
var inflections = []string{"", "s", "es", "d", "ed", "ing"}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if matches(text, p) {
			return true
		}
	}
	return false
}

func matches(text, phrase string) bool {
	for rest := text; ; {
		i := strings.Index(rest, phrase)
		if i < 0 {
			return false
		}
		tail := rest[i+len(phrase):]
		for _, suffix := range inflections {
			if strings.HasPrefix(tail, suffix+" ") {
				return true
			}
		}
		rest = rest[i+1:]
	}
}
