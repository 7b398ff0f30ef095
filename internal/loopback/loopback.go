package loopback

import "strings"

const DefaultMarker = "[API_COMMENT]"

// Guard tags text written into the task tracker and recognises the tag when
// that text comes back as a webhook.
type Guard struct {
	marker string
}

func New(marker string) *Guard {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		marker = DefaultMarker
	}
	return &Guard{marker: marker}
}

func (g *Guard) Marker() string {
	if g == nil {
		return DefaultMarker
	}
	return g.marker
}

func (g *Guard) Tag(text string) string {
	text = strings.TrimRight(text, " \t\r\n")
	if g.IsTagged(text) {
		return text
	}
	if text == "" {
		return g.Marker()
	}
	return text + " " + g.Marker()
}

func (g *Guard) IsTagged(text string) bool {
	return strings.Contains(text, g.Marker())
}
