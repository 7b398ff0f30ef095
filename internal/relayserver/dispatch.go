package relayserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/quailyquaily/taskrelay/internal/clickup"
	"github.com/quailyquaily/taskrelay/internal/relay"
	"github.com/quailyquaily/taskrelay/internal/slackclient"
)

// EventHandler is the relay as seen by the transport layer.
type EventHandler interface {
	HandleTaskCommentEvent(ctx context.Context, ev relay.TaskCommentEvent) (relay.Outcome, error)
	HandleChatMessageEvent(ctx context.Context, ev relay.ChatMessageEvent) (relay.Outcome, error)
}

type UserNamer interface {
	UserName(ctx context.Context, userID string) string
}

const (
	outcomeIgnored   = "ignored"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)

// Dispatcher decodes inbound payloads from either service and hands them to
// the relay. The HTTP routes and the Socket Mode loop share it.
type Dispatcher struct {
	Relay    EventHandler
	Users    UserNamer
	Self     slackclient.Identity
	Activity *ActivityLog
	Logger   *slog.Logger
}

// Result is what a single inbound payload produced.
type Result struct {
	Outcome string
	Err     error
}

func (d *Dispatcher) logger() *slog.Logger {
	if d == nil || d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// ClickUpComment relays one ClickUp webhook body.
func (d *Dispatcher) ClickUpComment(ctx context.Context, body []byte) Result {
	payload, err := clickup.ParseWebhook(body)
	if err != nil {
		d.record(Delivery{ID: uuid.NewString(), Source: SourceClickUp}, Result{Outcome: outcomeFailed, Err: err})
		return Result{Outcome: outcomeFailed, Err: err}
	}
	deliveryID := payload.DeliveryID()
	if deliveryID == "" {
		deliveryID = uuid.NewString()
	}
	if !d.Activity.Claim("clickup:"+deliveryID, SourceClickUp) {
		d.logger().Debug("clickup_webhook_duplicate", "delivery_id", deliveryID)
		return Result{Outcome: outcomeDuplicate}
	}
	delivery := Delivery{ID: "clickup:" + deliveryID, Source: SourceClickUp, TaskID: payload.TaskID}

	ev, err := payload.TaskComment()
	if errors.Is(err, clickup.ErrIgnoredEvent) {
		d.logger().Debug("clickup_webhook_ignored", "event", payload.Event)
		res := Result{Outcome: outcomeIgnored}
		d.record(delivery, res)
		return res
	}
	if err != nil {
		res := Result{Outcome: outcomeFailed, Err: err}
		d.record(delivery, res)
		return res
	}
	delivery.TaskID = ev.TaskID
	outcome, err := d.Relay.HandleTaskCommentEvent(ctx, ev)
	res := Result{Outcome: string(outcome), Err: err}
	if err != nil {
		res.Outcome = outcomeFailed
	}
	d.record(delivery, res)
	return res
}

// SlackEvents relays one Events API body. A url_verification request returns
// its challenge in Result.Outcome with a nil error.
func (d *Dispatcher) SlackEvents(ctx context.Context, body []byte) (Result, string) {
	env, err := slackclient.ParseEvents(body)
	if err != nil {
		d.logger().Warn("slack_event_decode_error", "error", err.Error())
		return Result{Outcome: outcomeFailed, Err: err}, ""
	}
	if env.Challenge != "" {
		return Result{Outcome: outcomeIgnored}, env.Challenge
	}
	if env.Message == nil || !env.Message.Relayable() {
		return Result{Outcome: outcomeIgnored}, ""
	}
	msg := *env.Message
	id := "slack:" + strings.TrimSpace(env.EventID)
	if env.EventID == "" {
		id = "slack:" + msg.ChannelID + ":" + msg.TS
	}
	if !d.Activity.Claim(id, SourceSlack) {
		d.logger().Debug("slack_event_duplicate", "event_id", env.EventID)
		return Result{Outcome: outcomeDuplicate}, ""
	}

	author := ""
	if !msg.IsBotOrigin(d.Self) && d.Users != nil {
		author = d.Users.UserName(ctx, msg.UserID)
	}
	outcome, err := d.Relay.HandleChatMessageEvent(ctx, msg.RelayEvent(d.Self, author))
	res := Result{Outcome: string(outcome), Err: err}
	if err != nil {
		res.Outcome = outcomeFailed
	}
	d.record(Delivery{ID: id, Source: SourceSlack, ChannelID: msg.ChannelID}, res)
	return res, ""
}

// SlackSocketEnvelope feeds a Socket Mode envelope through SlackEvents.
func (d *Dispatcher) SlackSocketEnvelope(ctx context.Context, env slackclient.SocketEnvelope) {
	payload, ok := env.EventsPayload()
	if !ok {
		return
	}
	res, _ := d.SlackEvents(ctx, payload)
	if res.Err != nil {
		d.logger().Debug("slack_socket_event_failed", "envelope_id", env.EnvelopeID, "error", res.Err.Error())
	}
}

func (d *Dispatcher) record(delivery Delivery, res Result) {
	delivery.Outcome = res.Outcome
	if res.Err != nil {
		delivery.Error = res.Err.Error()
		if kind, ok := relay.KindOf(res.Err); ok {
			delivery.ErrorKind = string(kind)
		}
	}
	d.Activity.Record(delivery)
}

// StatusForError maps a relay error to the HTTP status the webhook answers.
func StatusForError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	kind, ok := relay.KindOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch kind {
	case relay.KindMalformedEvent:
		return http.StatusBadRequest
	case relay.KindDirectoryLookupMiss:
		return http.StatusNotFound
	case relay.KindSendFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
