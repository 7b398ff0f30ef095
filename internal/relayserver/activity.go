package relayserver

import (
	"sort"
	"strings"
	"sync"
	"time"
)

const defaultMaxDeliveries = 1000

type Source string

const (
	SourceClickUp Source = "clickup"
	SourceSlack   Source = "slack"
)

// Delivery is one inbound event and what the relay did with it.
type Delivery struct {
	ID         string    `json:"id"`
	Source     Source    `json:"source"`
	Outcome    string    `json:"outcome"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	ChannelID  string    `json:"channel_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// ActivityLog keeps the most recent deliveries in memory. Slack event ids are
// recorded too, so a redelivered event can be recognised and dropped.
type ActivityLog struct {
	mu       sync.RWMutex
	items    map[string]Delivery
	maxItems int
}

func NewActivityLog(maxItems int) *ActivityLog {
	if maxItems <= 0 {
		maxItems = defaultMaxDeliveries
	}
	return &ActivityLog{
		items:    make(map[string]Delivery),
		maxItems: maxItems,
	}
}

func (l *ActivityLog) Record(d Delivery) {
	if l == nil {
		return
	}
	id := strings.TrimSpace(d.ID)
	if id == "" {
		return
	}
	d.ID = id
	if d.ReceivedAt.IsZero() {
		d.ReceivedAt = time.Now().UTC()
	}
	l.mu.Lock()
	l.items[id] = d
	l.pruneLocked()
	l.mu.Unlock()
}

// Claim records id as in flight and reports whether it should be processed.
// Ids whose earlier attempt failed may be claimed again.
func (l *ActivityLog) Claim(id string, source Source) bool {
	if l == nil {
		return true
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.items[id]; ok && prev.Outcome != outcomeFailed {
		return false
	}
	l.items[id] = Delivery{ID: id, Source: source, Outcome: "pending", ReceivedAt: time.Now().UTC()}
	l.pruneLocked()
	return true
}

func (l *ActivityLog) Get(id string) (Delivery, bool) {
	if l == nil {
		return Delivery{}, false
	}
	l.mu.RLock()
	item, ok := l.items[strings.TrimSpace(id)]
	l.mu.RUnlock()
	return item, ok
}

// List returns the newest deliveries first, optionally filtered by source.
func (l *ActivityLog) List(source Source, limit int) []Delivery {
	if l == nil {
		return nil
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	want := strings.ToLower(strings.TrimSpace(string(source)))

	l.mu.RLock()
	out := make([]Delivery, 0, len(l.items))
	for _, item := range l.items {
		if want != "" && string(item.Source) != want {
			continue
		}
		out = append(out, item)
	}
	l.mu.RUnlock()

	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (l *ActivityLog) pruneLocked() {
	if l.maxItems <= 0 || len(l.items) <= l.maxItems {
		return
	}
	all := make([]Delivery, 0, len(l.items))
	for _, item := range l.items {
		all = append(all, item)
	}
	sortNewestFirst(all)
	keep := make(map[string]Delivery, l.maxItems)
	for i := 0; i < len(all) && i < l.maxItems; i++ {
		keep[all[i].ID] = all[i]
	}
	l.items = keep
}

func sortNewestFirst(items []Delivery) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].ReceivedAt.Equal(items[j].ReceivedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].ReceivedAt.After(items[j].ReceivedAt)
	})
}
