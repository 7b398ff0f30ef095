package mention

import (
	"regexp"
	"strings"
)

var (
	plainMentionPattern = regexp.MustCompile(`@(\w+)`)
	slackMentionPattern = regexp.MustCompile(`<@([A-Za-z0-9_]+)(?:\|([^>]+))?>`)
)

// ToChat rewrites every "@name" into Slack's "<@name>" form in a single pass.
// Only the mention token is lower-cased. Mentions already wrapped as "<@...>"
// are left alone, so ToChat(ToChat(s)) == ToChat(s).
func ToChat(text string) string {
	if !strings.Contains(text, "@") {
		return text
	}
	matches := plainMentionPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 2*len(matches))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if start > 0 && text[start-1] == '<' {
			continue
		}
		b.WriteString(text[last:start])
		b.WriteString("<@")
		b.WriteString(strings.ToLower(text[m[2]:m[3]]))
		b.WriteString(">")
		last = end
	}
	b.WriteString(text[last:])
	return b.String()
}

// ToTask turns Slack mentions back into plain "@name" text. A labelled
// mention ("<@U123|alice>") keeps its label; a bare one keeps the user id.
func ToTask(text string) string {
	if !strings.Contains(text, "<@") {
		return text
	}
	return slackMentionPattern.ReplaceAllStringFunc(text, func(raw string) string {
		sub := slackMentionPattern.FindStringSubmatch(raw)
		if len(sub) < 2 {
			return raw
		}
		name := strings.TrimSpace(sub[1])
		if len(sub) > 2 && strings.TrimSpace(sub[2]) != "" {
			name = strings.TrimSpace(sub[2])
		}
		return "@" + name
	})
}
