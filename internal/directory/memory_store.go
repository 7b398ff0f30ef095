package directory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/quailyquaily/taskrelay/internal/namecode"
)

// MemoryStore keeps the directory in process memory. It is used by tests and
// by the "memory" db driver; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	lists    map[string]TrackedList
	channels map[string]ChatChannel
	threads  map[string]ThreadCorrelation
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lists:    make(map[string]TrackedList),
		channels: make(map[string]ChatChannel),
		threads:  make(map[string]ThreadCorrelation),
	}
}

func (s *MemoryStore) UpsertList(_ context.Context, list TrackedList) (UpsertResult, error) {
	list, err := normalizeList(list)
	if err != nil {
		return UpsertUnchanged, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.lists[list.ListID]
	if !ok {
		s.lists[list.ListID] = list
		return UpsertInserted, nil
	}
	if existing.ListName == list.ListName {
		return UpsertUnchanged, nil
	}
	s.lists[list.ListID] = list
	return UpsertUpdated, nil
}

func (s *MemoryStore) FindList(_ context.Context, listID string) (TrackedList, bool, error) {
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return TrackedList{}, false, nil
	}
	s.mu.RLock()
	item, ok := s.lists[listID]
	s.mu.RUnlock()
	return item, ok, nil
}

func (s *MemoryStore) Lists(_ context.Context) ([]TrackedList, error) {
	s.mu.RLock()
	out := make([]TrackedList, 0, len(s.lists))
	for _, item := range s.lists {
		out = append(out, item)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ListID < out[j].ListID })
	return out, nil
}

func (s *MemoryStore) UpsertChannel(_ context.Context, channel ChatChannel) (UpsertResult, error) {
	channel, err := normalizeChannel(channel)
	if err != nil {
		return UpsertUnchanged, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.channels[channel.ChannelID]
	if !ok {
		s.channels[channel.ChannelID] = channel
		return UpsertInserted, nil
	}
	if existing.ChannelName == channel.ChannelName {
		return UpsertUnchanged, nil
	}
	s.channels[channel.ChannelID] = channel
	return UpsertUpdated, nil
}

func (s *MemoryStore) FindChannelByCode(ctx context.Context, code string) (ChatChannel, bool, error) {
	prefix := namecode.ChannelPrefix(code)
	if prefix == "" {
		return ChatChannel{}, false, nil
	}
	all, err := s.Channels(ctx)
	if err != nil {
		return ChatChannel{}, false, err
	}
	for _, item := range all {
		if strings.HasPrefix(strings.ToLower(item.ChannelName), prefix) {
			return item, true, nil
		}
	}
	return ChatChannel{}, false, nil
}

func (s *MemoryStore) Channels(_ context.Context) ([]ChatChannel, error) {
	s.mu.RLock()
	out := make([]ChatChannel, 0, len(s.channels))
	for _, item := range s.channels {
		out = append(out, item)
	}
	s.mu.RUnlock()
	sortChannels(out)
	return out, nil
}

func (s *MemoryStore) FindThreadByTask(_ context.Context, taskID string) (ThreadCorrelation, bool, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return ThreadCorrelation{}, false, nil
	}
	s.mu.RLock()
	item, ok := s.threads[taskID]
	s.mu.RUnlock()
	return item, ok, nil
}

func (s *MemoryStore) FindThreadByToken(ctx context.Context, channelID, token string) (ThreadCorrelation, bool, error) {
	channelID = strings.TrimSpace(channelID)
	token = strings.TrimSpace(token)
	if token == "" {
		return ThreadCorrelation{}, false, nil
	}
	all, err := s.Threads(ctx)
	if err != nil {
		return ThreadCorrelation{}, false, err
	}
	for _, item := range all {
		if item.ParentThreadToken != token {
			continue
		}
		if channelID != "" && item.ChannelID != channelID {
			continue
		}
		return item, true, nil
	}
	return ThreadCorrelation{}, false, nil
}

func (s *MemoryStore) CreateThreadIfAbsent(_ context.Context, thread ThreadCorrelation) (ThreadCorrelation, bool, error) {
	thread, err := normalizeThread(thread)
	if err != nil {
		return ThreadCorrelation{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.threads[thread.TaskID]; ok {
		return existing, false, nil
	}
	s.threads[thread.TaskID] = thread
	return thread, true, nil
}

func (s *MemoryStore) Threads(_ context.Context) ([]ThreadCorrelation, error) {
	s.mu.RLock()
	out := make([]ThreadCorrelation, 0, len(s.threads))
	for _, item := range s.threads {
		out = append(out, item)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out, nil
}
