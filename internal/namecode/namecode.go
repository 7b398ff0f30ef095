// Package namecode derives the short project code that links a task list to a
// chat channel. Lists carry the code at the end of their display name, e.g.
// "Website Redesign (ABC-1234)"; channels carry it hyphen-delimited, e.g.
// "-abc-1234-website".
package namecode

import (
	"regexp"
	"strings"
)

type Rule string

const (
	RulePrimary  Rule = "primary"
	RuleFallback Rule = "fallback"
)

type Match struct {
	Code string
	Rule Rule
}

var (
	primaryPattern = regexp.MustCompile(`\(\s*([A-Za-z]{3})[- ]?(\d{4})\s*\)\s*$`)
	groupPattern   = regexp.MustCompile(`\(([^()]*)\)`)
	channelPattern = regexp.MustCompile(`-([A-Za-z]{3})-(\d{4})`)
)

// ExtractCode returns the lower-cased code of a list name.
func ExtractCode(name string) (string, bool) {
	m, ok := MatchName(name)
	if !ok {
		return "", false
	}
	return m.Code, true
}

// MatchName tries the primary rule and, only when it fails, the fallback rule.
// The first successful rule wins; the two are never combined.
func MatchName(name string) (Match, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Match{}, false
	}
	if code, ok := matchPrimary(name); ok {
		return Match{Code: code, Rule: RulePrimary}, true
	}
	if code, ok := matchFallback(name); ok {
		return Match{Code: code, Rule: RuleFallback}, true
	}
	return Match{}, false
}

func matchPrimary(name string) (string, bool) {
	sub := primaryPattern.FindStringSubmatch(name)
	if len(sub) < 2 {
		return "", false
	}
	return strings.ToLower(sub[1]), true
}

// matchFallback takes whatever precedes the first dash of the first
// parenthesized group. It only ever looks at its own group.
func matchFallback(name string) (string, bool) {
	sub := groupPattern.FindStringSubmatch(name)
	if len(sub) < 2 {
		return "", false
	}
	prefix := sub[1]
	if idx := strings.Index(prefix, "-"); idx >= 0 {
		prefix = prefix[:idx]
	}
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" {
		return "", false
	}
	return prefix, true
}

// ChannelEligible reports whether a chat channel takes part in relaying.
func ChannelEligible(name string, archived bool) bool {
	if archived {
		return false
	}
	return channelPattern.MatchString(name)
}

// ChannelCode returns the lower-cased 3-letter code embedded in a channel name.
func ChannelCode(name string) (string, bool) {
	sub := channelPattern.FindStringSubmatch(name)
	if len(sub) < 2 {
		return "", false
	}
	return strings.ToLower(sub[1]), true
}

// ChannelPrefix is the case-insensitive channel-name prefix a code maps to.
func ChannelPrefix(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	return "-" + code
}
