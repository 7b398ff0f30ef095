package slackclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/quailyquaily/taskrelay/internal/relay"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

var ErrInvalidSignature = errors.New("invalid slack request signature")

// VerifyRequest checks Slack's v0 request signature. An empty secret disables
// the check.
func VerifyRequest(header http.Header, body []byte, signingSecret string) error {
	signingSecret = strings.TrimSpace(signingSecret)
	if signingSecret == "" {
		return nil
	}
	sv, err := slack.NewSecretsVerifier(header, signingSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if _, err := sv.Write(body); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if err := sv.Ensure(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// Message is the part of a Slack message event the relay cares about.
type Message struct {
	ChannelID string
	UserID    string
	BotID     string
	SubType   string
	Text      string
	TS        string
	ThreadTS  string
}

// Envelope is a decoded Events API request. Exactly one of Challenge or
// Message is set for the request types the relay handles; both are empty for
// everything else.
type Envelope struct {
	Type      string
	EventID   string
	Challenge string
	Message   *Message
}

type envelopeMeta struct {
	EventID   string `json:"event_id"`
	Challenge string `json:"challenge"`
}

func ParseEvents(body []byte) (Envelope, error) {
	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return Envelope{}, &relay.Error{Kind: relay.KindMalformedEvent, Op: "decode_slack_event", Err: err}
	}
	out := Envelope{Type: ev.Type}
	switch ev.Type {
	case slackevents.URLVerification:
		var meta envelopeMeta
		if err := json.Unmarshal(body, &meta); err != nil {
			return Envelope{}, &relay.Error{Kind: relay.KindMalformedEvent, Op: "decode_slack_event", Err: err}
		}
		out.Challenge = meta.Challenge
		return out, nil
	case slackevents.CallbackEvent:
		var meta envelopeMeta
		_ = json.Unmarshal(body, &meta)
		out.EventID = meta.EventID
		msg, ok := ev.InnerEvent.Data.(*slackevents.MessageEvent)
		if !ok || msg == nil {
			return out, nil
		}
		out.Message = &Message{
			ChannelID: strings.TrimSpace(msg.Channel),
			UserID:    strings.TrimSpace(msg.User),
			BotID:     strings.TrimSpace(msg.BotID),
			SubType:   strings.TrimSpace(msg.SubType),
			Text:      msg.Text,
			TS:        strings.TrimSpace(msg.TimeStamp),
			ThreadTS:  strings.TrimSpace(msg.ThreadTimeStamp),
		}
		return out, nil
	default:
		return out, nil
	}
}

// relayedSubtypes are message subtypes that carry a human reply.
var relayedSubtypes = map[string]bool{
	"":                 true,
	"thread_broadcast": true,
	"file_share":       true,
	"bot_message":      true,
}

// Relayable reports whether the message is a new post rather than an edit,
// deletion or channel notice.
func (m Message) Relayable() bool {
	return relayedSubtypes[m.SubType]
}

// IsBotOrigin reports whether the message was written by a bot, including the
// relay itself.
func (m Message) IsBotOrigin(self Identity) bool {
	if m.BotID != "" || m.SubType == "bot_message" {
		return true
	}
	if self.UserID != "" && m.UserID == self.UserID {
		return true
	}
	return false
}

// ThreadToken is the root ts of the thread the message replies to, or "" for
// a top-level message.
func (m Message) ThreadToken() string {
	if m.ThreadTS == "" || m.ThreadTS == m.TS {
		return ""
	}
	return m.ThreadTS
}

func (m Message) RelayEvent(self Identity, authorName string) relay.ChatMessageEvent {
	return relay.ChatMessageEvent{
		ThreadToken: m.ThreadToken(),
		ChannelID:   m.ChannelID,
		IsBotOrigin: m.IsBotOrigin(self),
		Text:        m.Text,
		AuthorName:  authorName,
	}
}
