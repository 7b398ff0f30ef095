// Package relay correlates task-tracker comments with chat threads and moves
// messages between the two in both directions.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quailyquaily/taskrelay/internal/directory"
	"github.com/quailyquaily/taskrelay/internal/loopback"
	"github.com/quailyquaily/taskrelay/internal/mention"
	"github.com/quailyquaily/taskrelay/internal/namecode"
	"golang.org/x/sync/singleflight"
)

const DefaultHeaderColor = "#f2c744"

var ErrTaskNotFound = errors.New("task not found")

type TaskInfo struct {
	ID   string
	Name string
	URL  string
}

type TaskTracker interface {
	// FetchTaskInfo returns ErrTaskNotFound (possibly wrapped) when the task
	// does not exist.
	FetchTaskInfo(ctx context.Context, taskID string) (TaskInfo, error)
	// SendTaskComment posts text verbatim; callers tag it first.
	SendTaskComment(ctx context.Context, taskID string, text string) error
}

// ChatMessage is rendered by the chat client as one coloured attachment with
// a mrkdwn section per entry in Sections. Text is the notification fallback.
type ChatMessage struct {
	Text     string
	Color    string
	Sections []string
}

type ChatSender interface {
	// SendChannelMessage posts msg to channelID, threaded under threadToken
	// when it is non-empty, and returns the token of the posted message.
	SendChannelMessage(ctx context.Context, channelID string, msg ChatMessage, threadToken string) (string, error)
}

type TaskCommentEvent struct {
	ListID      string
	TaskID      string
	CommentText string
	AuthorName  string
}

type ChatMessageEvent struct {
	ThreadToken string
	ChannelID   string
	IsBotOrigin bool
	Text        string
	AuthorName  string
}

type Outcome string

const (
	OutcomeRelayed            Outcome = "relayed"
	OutcomeLoopbackSuppressed Outcome = "loopback_suppressed"
)

type Options struct {
	Lists    directory.ListStore
	Channels directory.ChannelStore
	Threads  directory.ThreadStore

	Tracker TaskTracker
	Chat    ChatSender

	Guard       *loopback.Guard
	HeaderColor string
	Logger      *slog.Logger
}

type Relay struct {
	lists    directory.ListStore
	channels directory.ChannelStore
	threads  directory.ThreadStore

	tracker TaskTracker
	chat    ChatSender

	guard       *loopback.Guard
	headerColor string
	log         *slog.Logger

	opening singleflight.Group
}

func New(opts Options) (*Relay, error) {
	switch {
	case opts.Lists == nil:
		return nil, fmt.Errorf("list store is required")
	case opts.Channels == nil:
		return nil, fmt.Errorf("channel store is required")
	case opts.Threads == nil:
		return nil, fmt.Errorf("thread store is required")
	case opts.Tracker == nil:
		return nil, fmt.Errorf("task tracker is required")
	case opts.Chat == nil:
		return nil, fmt.Errorf("chat sender is required")
	}
	guard := opts.Guard
	if guard == nil {
		guard = loopback.New("")
	}
	color := strings.TrimSpace(opts.HeaderColor)
	if color == "" {
		color = DefaultHeaderColor
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		lists:       opts.Lists,
		channels:    opts.Channels,
		threads:     opts.Threads,
		tracker:     opts.Tracker,
		chat:        opts.Chat,
		guard:       guard,
		headerColor: color,
		log:         log,
	}, nil
}

// HandleTaskCommentEvent relays one task comment into the task's chat thread,
// opening the thread with a header message on the first comment.
func (r *Relay) HandleTaskCommentEvent(ctx context.Context, ev TaskCommentEvent) (Outcome, error) {
	if r.guard.IsTagged(ev.CommentText) {
		r.log.Debug("relay_comment_suppressed", "task_id", ev.TaskID, "reason", "loopback_marker")
		return OutcomeLoopbackSuppressed, nil
	}
	ev.TaskID = strings.TrimSpace(ev.TaskID)
	ev.ListID = strings.TrimSpace(ev.ListID)
	if ev.TaskID == "" {
		return "", r.fail(malformed("decode_task_comment", "task id is required"), "list_id", ev.ListID)
	}
	if strings.TrimSpace(ev.CommentText) == "" {
		return "", r.fail(malformed("decode_task_comment", "comment text is empty"), "task_id", ev.TaskID)
	}

	thread, err := r.threadForTask(ctx, ev)
	if err != nil {
		return "", r.fail(err, "task_id", ev.TaskID, "list_id", ev.ListID)
	}

	body := mention.ToChat(ev.CommentText)
	reply := ChatMessage{Text: body, Color: r.headerColor, Sections: []string{body}}
	if author := strings.TrimSpace(ev.AuthorName); author != "" {
		reply.Sections = append(reply.Sections, "by "+author)
	}
	if _, err := r.chat.SendChannelMessage(ctx, thread.ChannelID, reply, thread.ParentThreadToken); err != nil {
		return "", r.fail(sendFailure("send_reply", err), "task_id", ev.TaskID, "channel_id", thread.ChannelID)
	}
	r.log.Info("relay_comment_relayed",
		"direction", "task_to_chat",
		"task_id", ev.TaskID,
		"channel_id", thread.ChannelID,
		"thread_token", thread.ParentThreadToken,
	)
	return OutcomeRelayed, nil
}

// HandleChatMessageEvent relays a threaded chat reply back to its task.
func (r *Relay) HandleChatMessageEvent(ctx context.Context, ev ChatMessageEvent) (Outcome, error) {
	if ev.IsBotOrigin {
		r.log.Debug("relay_chat_suppressed", "channel_id", ev.ChannelID, "thread_token", ev.ThreadToken, "reason", "bot_origin")
		return OutcomeLoopbackSuppressed, nil
	}
	ev.ThreadToken = strings.TrimSpace(ev.ThreadToken)
	ev.ChannelID = strings.TrimSpace(ev.ChannelID)
	if ev.ThreadToken == "" {
		return "", r.fail(malformed("decode_chat_message", "message is not in a thread"), "channel_id", ev.ChannelID)
	}
	text := strings.TrimSpace(mention.ToTask(ev.Text))
	if text == "" {
		return "", r.fail(malformed("decode_chat_message", "message text is empty"), "channel_id", ev.ChannelID)
	}

	thread, ok, err := r.threads.FindThreadByToken(ctx, ev.ChannelID, ev.ThreadToken)
	if err != nil {
		return "", r.fail(storeFailure("find_thread", err), "thread_token", ev.ThreadToken)
	}
	if !ok {
		return "", r.fail(lookupMiss("find_thread", "no task for thread %s", ev.ThreadToken),
			"channel_id", ev.ChannelID, "thread_token", ev.ThreadToken)
	}

	if author := strings.TrimSpace(ev.AuthorName); author != "" {
		text = author + ": " + text
	}
	if err := r.tracker.SendTaskComment(ctx, thread.TaskID, r.guard.Tag(text)); err != nil {
		return "", r.fail(sendFailure("send_task_comment", err), "task_id", thread.TaskID)
	}
	r.log.Info("relay_comment_relayed",
		"direction", "chat_to_task",
		"task_id", thread.TaskID,
		"channel_id", thread.ChannelID,
		"thread_token", thread.ParentThreadToken,
	)
	return OutcomeRelayed, nil
}

func (r *Relay) threadForTask(ctx context.Context, ev TaskCommentEvent) (directory.ThreadCorrelation, error) {
	thread, ok, err := r.threads.FindThreadByTask(ctx, ev.TaskID)
	if err != nil {
		return directory.ThreadCorrelation{}, storeFailure("find_thread", err)
	}
	if ok {
		return thread, nil
	}

	// Concurrent first comments for one task share a single header. The flight
	// outlives the leader's request so followers never inherit its cancellation.
	v, err, _ := r.opening.Do(ev.TaskID, func() (any, error) {
		return r.openThread(context.WithoutCancel(ctx), ev)
	})
	if err != nil {
		return directory.ThreadCorrelation{}, err
	}
	return v.(directory.ThreadCorrelation), nil
}

func (r *Relay) openThread(ctx context.Context, ev TaskCommentEvent) (directory.ThreadCorrelation, error) {
	// Another flight may have finished between the lookup and Do.
	if thread, ok, err := r.threads.FindThreadByTask(ctx, ev.TaskID); err != nil {
		return directory.ThreadCorrelation{}, storeFailure("find_thread", err)
	} else if ok {
		return thread, nil
	}

	channel, err := r.resolveChannel(ctx, ev.ListID)
	if err != nil {
		return directory.ThreadCorrelation{}, err
	}

	task, err := r.tracker.FetchTaskInfo(ctx, ev.TaskID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return directory.ThreadCorrelation{}, lookupMiss("fetch_task", "task %s not found", ev.TaskID)
		}
		return directory.ThreadCorrelation{}, sendFailure("fetch_task", err)
	}

	token, err := r.chat.SendChannelMessage(ctx, channel.ChannelID, r.headerMessage(ev.TaskID, task), "")
	if err != nil {
		return directory.ThreadCorrelation{}, sendFailure("send_header", err)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return directory.ThreadCorrelation{}, sendFailure("send_header", fmt.Errorf("chat returned no message token"))
	}

	stored, created, err := r.threads.CreateThreadIfAbsent(ctx, directory.ThreadCorrelation{
		TaskID:            ev.TaskID,
		ChannelID:         channel.ChannelID,
		ParentThreadToken: token,
	})
	if err != nil {
		r.log.Warn("relay_header_orphaned", "task_id", ev.TaskID, "channel_id", channel.ChannelID, "thread_token", token)
		return directory.ThreadCorrelation{}, storeFailure("save_thread", err)
	}
	if !created {
		// Another process opened the thread first; reply into theirs.
		r.log.Warn("relay_header_orphaned",
			"task_id", ev.TaskID,
			"channel_id", channel.ChannelID,
			"thread_token", token,
			"winner_token", stored.ParentThreadToken,
		)
		return stored, nil
	}
	r.log.Info("relay_thread_opened",
		"task_id", ev.TaskID,
		"list_id", ev.ListID,
		"channel_id", channel.ChannelID,
		"thread_token", token,
	)
	return stored, nil
}

// resolveChannel maps a list to its chat channel through the shared code.
func (r *Relay) resolveChannel(ctx context.Context, listID string) (directory.ChatChannel, error) {
	if listID == "" {
		return directory.ChatChannel{}, malformed("resolve_channel", "list id is required to open a thread")
	}
	list, ok, err := r.lists.FindList(ctx, listID)
	if err != nil {
		return directory.ChatChannel{}, storeFailure("find_list", err)
	}
	if !ok {
		return directory.ChatChannel{}, lookupMiss("find_list", "list %s is not tracked", listID)
	}
	match, ok := namecode.MatchName(list.ListName)
	if !ok {
		return directory.ChatChannel{}, lookupMiss("extract_code", "list name %q carries no code", list.ListName)
	}
	channel, ok, err := r.channels.FindChannelByCode(ctx, match.Code)
	if err != nil {
		return directory.ChatChannel{}, storeFailure("find_channel", err)
	}
	if !ok {
		return directory.ChatChannel{}, lookupMiss("find_channel", "no channel for code %q", match.Code)
	}
	r.log.Debug("relay_channel_resolved",
		"list_id", listID,
		"code", match.Code,
		"rule", string(match.Rule),
		"channel_id", channel.ChannelID,
	)
	return channel, nil
}

func (r *Relay) headerMessage(taskID string, task TaskInfo) ChatMessage {
	name := strings.TrimSpace(task.Name)
	if name == "" {
		name = taskID
	}
	title := "*" + name + "*"
	if url := strings.TrimSpace(task.URL); url != "" {
		title = "*<" + url + "|" + name + ">*"
	}
	return ChatMessage{Text: name, Color: r.headerColor, Sections: []string{title}}
}

// fail logs err once with its kind and returns it unchanged.
func (r *Relay) fail(err error, attrs ...any) error {
	kind, _ := KindOf(err)
	args := append([]any{"error", err.Error()}, attrs...)
	switch kind {
	case KindDirectoryLookupMiss:
		r.log.Warn("relay_lookup_miss", args...)
	case KindMalformedEvent:
		r.log.Warn("relay_malformed_event", args...)
	case KindStore:
		r.log.Error("relay_store_failed", args...)
	default:
		r.log.Error("relay_send_failed", args...)
	}
	return err
}
