package directory

import (
	"context"
	"errors"
	"sort"
	"strings"
)

var ErrInvalidRecord = errors.New("invalid directory record")

type TrackedList struct {
	ListID   string `json:"list_id" yaml:"list_id"`
	ListName string `json:"list_name" yaml:"list_name"`
}

type ChatChannel struct {
	ChannelID   string `json:"channel_id" yaml:"channel_id"`
	ChannelName string `json:"channel_name" yaml:"channel_name"`
}

type ThreadCorrelation struct {
	TaskID            string `json:"task_id" yaml:"task_id"`
	ChannelID         string `json:"channel_id" yaml:"channel_id"`
	ParentThreadToken string `json:"parent_thread_token" yaml:"parent_thread_token"`
}

// UpsertResult reports what an upsert did, for sync accounting and logs.
type UpsertResult int

const (
	UpsertUnchanged UpsertResult = iota
	UpsertInserted
	UpsertUpdated
)

func (r UpsertResult) String() string {
	switch r {
	case UpsertInserted:
		return "inserted"
	case UpsertUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

func (r UpsertResult) Changed() bool {
	return r != UpsertUnchanged
}

type ListStore interface {
	UpsertList(ctx context.Context, list TrackedList) (UpsertResult, error)
	FindList(ctx context.Context, listID string) (TrackedList, bool, error)
	Lists(ctx context.Context) ([]TrackedList, error)
}

type ChannelStore interface {
	UpsertChannel(ctx context.Context, channel ChatChannel) (UpsertResult, error)
	// FindChannelByCode returns the first channel, ordered by name then id,
	// whose name starts with "-<code>" ignoring case.
	FindChannelByCode(ctx context.Context, code string) (ChatChannel, bool, error)
	Channels(ctx context.Context) ([]ChatChannel, error)
}

type ThreadStore interface {
	FindThreadByTask(ctx context.Context, taskID string) (ThreadCorrelation, bool, error)
	// FindThreadByToken looks a thread up by its root token. An empty
	// channelID matches any channel.
	FindThreadByToken(ctx context.Context, channelID, token string) (ThreadCorrelation, bool, error)
	// CreateThreadIfAbsent inserts the row unless one exists for the task.
	// It returns the stored row and whether this call created it.
	CreateThreadIfAbsent(ctx context.Context, thread ThreadCorrelation) (ThreadCorrelation, bool, error)
	Threads(ctx context.Context) ([]ThreadCorrelation, error)
}

// Store bundles the three tables; both implementations satisfy it.
type Store interface {
	ListStore
	ChannelStore
	ThreadStore
}

func normalizeList(list TrackedList) (TrackedList, error) {
	list.ListID = strings.TrimSpace(list.ListID)
	list.ListName = strings.TrimSpace(list.ListName)
	if list.ListID == "" {
		return TrackedList{}, errors.Join(ErrInvalidRecord, errors.New("list_id is required"))
	}
	return list, nil
}

func normalizeChannel(channel ChatChannel) (ChatChannel, error) {
	channel.ChannelID = strings.TrimSpace(channel.ChannelID)
	channel.ChannelName = strings.TrimSpace(channel.ChannelName)
	if channel.ChannelID == "" {
		return ChatChannel{}, errors.Join(ErrInvalidRecord, errors.New("channel_id is required"))
	}
	return channel, nil
}

func normalizeThread(thread ThreadCorrelation) (ThreadCorrelation, error) {
	thread.TaskID = strings.TrimSpace(thread.TaskID)
	thread.ChannelID = strings.TrimSpace(thread.ChannelID)
	thread.ParentThreadToken = strings.TrimSpace(thread.ParentThreadToken)
	switch {
	case thread.TaskID == "":
		return ThreadCorrelation{}, errors.Join(ErrInvalidRecord, errors.New("task_id is required"))
	case thread.ChannelID == "":
		return ThreadCorrelation{}, errors.Join(ErrInvalidRecord, errors.New("channel_id is required"))
	case thread.ParentThreadToken == "":
		return ThreadCorrelation{}, errors.Join(ErrInvalidRecord, errors.New("parent_thread_token is required"))
	}
	return thread, nil
}

func sortChannels(items []ChatChannel) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].ChannelName == items[j].ChannelName {
			return items[i].ChannelID < items[j].ChannelID
		}
		return items[i].ChannelName < items[j].ChannelName
	})
}
