package slackclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/quailyquaily/taskrelay/internal/relay"
)

func signSlack(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte("v0:" + ts + ":"))
	_, _ = mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyRequest(t *testing.T) {
	t.Parallel()

	body := []byte(`{"type":"url_verification","challenge":"abc"}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	h := http.Header{}
	h.Set("X-Slack-Request-Timestamp", ts)
	h.Set("X-Slack-Signature", signSlack("shh", ts, body))

	if err := VerifyRequest(h, body, "shh"); err != nil {
		t.Fatalf("VerifyRequest() error = %v", err)
	}
	if err := VerifyRequest(h, body, "other"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("wrong secret error mismatch: got %v", err)
	}
	if err := VerifyRequest(http.Header{}, body, "shh"); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("missing headers error mismatch: got %v", err)
	}
	if err := VerifyRequest(http.Header{}, body, ""); err != nil {
		t.Fatalf("empty secret should skip verification, got %v", err)
	}
}

func TestParseEventsURLVerification(t *testing.T) {
	t.Parallel()

	env, err := ParseEvents([]byte(`{"token":"x","type":"url_verification","challenge":"3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P"}`))
	if err != nil {
		t.Fatalf("ParseEvents() error = %v", err)
	}
	if env.Challenge != "3eZbrw1aBm2rZgRNFdxV2595E9CY3gmdALWMmHkvFXO7tYXAYM8P" {
		t.Fatalf("challenge mismatch: got %q", env.Challenge)
	}
}

const threadedReply = `{
  "token": "x",
  "team_id": "T1",
  "api_app_id": "A1",
  "type": "event_callback",
  "event_id": "Ev1",
  "event_time": 1700000000,
  "event": {
    "type": "message",
    "channel": "C1",
    "user": "U1",
    "text": "thanks <@U2|alice>",
    "ts": "1700000001.000200",
    "thread_ts": "1700000000.000100",
    "channel_type": "channel",
    "event_ts": "1700000001.000200"
  }
}`

func TestParseEventsThreadedMessage(t *testing.T) {
	t.Parallel()

	env, err := ParseEvents([]byte(threadedReply))
	if err != nil {
		t.Fatalf("ParseEvents() error = %v", err)
	}
	if env.EventID != "Ev1" || env.Message == nil {
		t.Fatalf("envelope mismatch: %+v", env)
	}
	msg := *env.Message
	if !msg.Relayable() {
		t.Fatalf("plain message should be relayable")
	}
	ev := msg.RelayEvent(Identity{UserID: "UBOT"}, "carol")
	want := relay.ChatMessageEvent{
		ThreadToken: "1700000000.000100",
		ChannelID:   "C1",
		Text:        "thanks <@U2|alice>",
		AuthorName:  "carol",
	}
	if ev != want {
		t.Fatalf("event mismatch: got %+v want %+v", ev, want)
	}
}

func TestParseEventsRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := ParseEvents([]byte(`not json`)); !errors.Is(err, relay.ErrMalformedEvent) {
		t.Fatalf("error mismatch: got %v", err)
	}
}

func TestMessageClassification(t *testing.T) {
	t.Parallel()

	self := Identity{UserID: "UBOT", BotID: "B1"}
	cases := []struct {
		name      string
		msg       Message
		bot       bool
		relayable bool
		token     string
	}{
		{name: "human_reply", msg: Message{UserID: "U1", TS: "2", ThreadTS: "1"}, relayable: true, token: "1"},
		{name: "top_level", msg: Message{UserID: "U1", TS: "1"}, relayable: true},
		{name: "thread_root", msg: Message{UserID: "U1", TS: "1", ThreadTS: "1"}, relayable: true},
		{name: "bot_id", msg: Message{BotID: "B9", TS: "2", ThreadTS: "1"}, bot: true, relayable: true, token: "1"},
		{name: "bot_subtype", msg: Message{SubType: "bot_message", TS: "2", ThreadTS: "1"}, bot: true, relayable: true, token: "1"},
		{name: "self_user", msg: Message{UserID: "UBOT", TS: "2", ThreadTS: "1"}, bot: true, relayable: true, token: "1"},
		{name: "edit", msg: Message{SubType: "message_changed", TS: "2", ThreadTS: "1"}, token: "1"},
		{name: "join", msg: Message{SubType: "channel_join", UserID: "U1", TS: "2"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := tc.msg.IsBotOrigin(self); got != tc.bot {
				t.Fatalf("IsBotOrigin() = %v, want %v", got, tc.bot)
			}
			if got := tc.msg.Relayable(); got != tc.relayable {
				t.Fatalf("Relayable() = %v, want %v", got, tc.relayable)
			}
			if got := tc.msg.ThreadToken(); got != tc.token {
				t.Fatalf("ThreadToken() = %q, want %q", got, tc.token)
			}
		})
	}
}
