// Package pii implements the pattern-based export redaction of §4.15. It
// never mutates the store; it produces a scrubbed copy of text or a
// standalone scrub report.
package pii

import (
	"os"
	"regexp"
)

// Kind names the pattern category a match belongs to, used in the
// [REDACTED:<kind>] replacement token.
type Kind string

const (
	KindEmail   Kind = "email"
	KindAPIKey  Kind = "api_key"
	KindIPv4    Kind = "ipv4"
	KindHomePath Kind = "home_path"
)

type pattern struct {
	kind Kind
	re   *regexp.Regexp
}

var emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
var apiKeyRe = regexp.MustCompile(`\b(sk-[A-Za-z0-9]{16,}|ghp_[A-Za-z0-9]{20,}|gho_[A-Za-z0-9]{20,}|AKIA[A-Z0-9]{16})\b`)
var ipv4Re = regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4]\d|1?\d?\d)\.){3}(?:25[0-5]|2[0-4]\d|1?\d?\d)\b`)

// homePathPattern is built lazily from the caller's home directory since
// the closed pattern set targets "absolute file paths under user home",
// which is host-specific.
func homePathPattern() *regexp.Regexp {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return regexp.MustCompile(`(?!)`) // never matches
	}
	return regexp.MustCompile(regexp.QuoteMeta(home) + `(?:/[^\s"'` + "`" + `]*)?`)
}

func patterns() []pattern {
	return []pattern{
		{KindAPIKey, apiKeyRe}, // before email/ipv4: key prefixes can contain digits that look numeric
		{KindEmail, emailRe},
		{KindIPv4, ipv4Re},
		{KindHomePath, homePathPattern()},
	}
}

// Match is one redacted occurrence, recorded for a scrub report.
type Match struct {
	Kind  Kind
	Value string
}

// Scrub replaces every match of the closed pattern set in text with
// "[REDACTED:<kind>]", returning the scrubbed text and the list of matches
// found (in original, unredacted form, for the report).
func Scrub(text string) (string, []Match) {
	var matches []Match
	out := text
	for _, p := range patterns() {
		found := p.re.FindAllString(out, -1)
		for _, f := range found {
			matches = append(matches, Match{Kind: p.kind, Value: f})
		}
		out = p.re.ReplaceAllString(out, "[REDACTED:"+string(p.kind)+"]")
	}
	return out, matches
}
