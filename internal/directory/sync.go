package directory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quailyquaily/taskrelay/internal/namecode"
)

type RemoteFolder struct {
	ID   string
	Name string
}

type RemoteList struct {
	ID   string
	Name string
}

type RemoteChannel struct {
	ID       string
	Name     string
	Archived bool
}

// ListSource walks the task tracker's space: folders, the lists inside them,
// and the lists that live directly in the space.
type ListSource interface {
	ListFolders(ctx context.Context) ([]RemoteFolder, error)
	ListFolderLists(ctx context.Context, folderID string) ([]RemoteList, error)
	ListFolderlessLists(ctx context.Context) ([]RemoteList, error)
}

// ChannelSource returns every chat channel visible to the bot, all pages.
type ChannelSource interface {
	ListChannels(ctx context.Context) ([]RemoteChannel, error)
}

type SyncReport struct {
	Seen      int `json:"seen" yaml:"seen"`
	Inserted  int `json:"inserted" yaml:"inserted"`
	Updated   int `json:"updated" yaml:"updated"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
	Skipped   int `json:"skipped" yaml:"skipped"`
}

func (r *SyncReport) record(res UpsertResult) {
	switch res {
	case UpsertInserted:
		r.Inserted++
	case UpsertUpdated:
		r.Updated++
	default:
		r.Unchanged++
	}
}

type SyncerOptions struct {
	Lists    ListStore
	Channels ChannelStore

	ListSource    ListSource
	ChannelSource ChannelSource

	Logger *slog.Logger
}

// Syncer refreshes the list and channel tables from the remote services.
// Rows are only inserted or renamed, never removed.
type Syncer struct {
	lists    ListStore
	channels ChannelStore

	listSource    ListSource
	channelSource ChannelSource

	log *slog.Logger
}

func NewSyncer(opts SyncerOptions) (*Syncer, error) {
	if opts.Lists == nil {
		return nil, fmt.Errorf("list store is required")
	}
	if opts.Channels == nil {
		return nil, fmt.Errorf("channel store is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{
		lists:         opts.Lists,
		channels:      opts.Channels,
		listSource:    opts.ListSource,
		channelSource: opts.ChannelSource,
		log:           log,
	}, nil
}

func (s *Syncer) CanSyncLists() bool {
	return s != nil && s.listSource != nil
}

func (s *Syncer) CanSyncChannels() bool {
	return s != nil && s.channelSource != nil
}

func (s *Syncer) SyncLists(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	if !s.CanSyncLists() {
		return report, fmt.Errorf("list source is not configured")
	}
	folders, err := s.listSource.ListFolders(ctx)
	if err != nil {
		return report, fmt.Errorf("list folders: %w", err)
	}
	var remote []RemoteList
	for _, folder := range folders {
		items, err := s.listSource.ListFolderLists(ctx, folder.ID)
		if err != nil {
			return report, fmt.Errorf("list folder %s lists: %w", folder.ID, err)
		}
		remote = append(remote, items...)
	}
	folderless, err := s.listSource.ListFolderlessLists(ctx)
	if err != nil {
		return report, fmt.Errorf("list folderless lists: %w", err)
	}
	remote = append(remote, folderless...)

	for _, item := range remote {
		report.Seen++
		if strings.TrimSpace(item.ID) == "" {
			report.Skipped++
			continue
		}
		res, err := s.lists.UpsertList(ctx, TrackedList{ListID: item.ID, ListName: item.Name})
		if err != nil {
			return report, fmt.Errorf("upsert list %s: %w", item.ID, err)
		}
		report.record(res)
		switch res {
		case UpsertInserted:
			s.log.Info("directory_list_added", "list_id", item.ID, "list_name", item.Name)
		case UpsertUpdated:
			s.log.Info("directory_list_renamed", "list_id", item.ID, "list_name", item.Name)
		}
	}
	s.log.Info("directory_lists_synced",
		"seen", report.Seen,
		"inserted", report.Inserted,
		"updated", report.Updated,
		"skipped", report.Skipped,
	)
	return report, nil
}

func (s *Syncer) SyncChannels(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	if !s.CanSyncChannels() {
		return report, fmt.Errorf("channel source is not configured")
	}
	remote, err := s.channelSource.ListChannels(ctx)
	if err != nil {
		return report, fmt.Errorf("list channels: %w", err)
	}
	for _, item := range remote {
		report.Seen++
		if strings.TrimSpace(item.ID) == "" || !namecode.ChannelEligible(item.Name, item.Archived) {
			report.Skipped++
			continue
		}
		res, err := s.channels.UpsertChannel(ctx, ChatChannel{ChannelID: item.ID, ChannelName: item.Name})
		if err != nil {
			return report, fmt.Errorf("upsert channel %s: %w", item.ID, err)
		}
		report.record(res)
		if res.Changed() {
			s.log.Info("directory_channel_"+res.String(), "channel_id", item.ID, "channel_name", item.Name)
		}
	}
	s.log.Info("directory_channels_synced",
		"seen", report.Seen,
		"inserted", report.Inserted,
		"updated", report.Updated,
		"skipped", report.Skipped,
	)
	return report, nil
}
