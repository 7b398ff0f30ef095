package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/quailyquaily/taskrelay/db/models"
	"github.com/quailyquaily/taskrelay/internal/namecode"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists the directory through gorm (sqlite or postgres).
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("nil db")
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) UpsertList(ctx context.Context, list TrackedList) (UpsertResult, error) {
	list, err := normalizeList(list)
	if err != nil {
		return UpsertUnchanged, err
	}
	result := UpsertUnchanged
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.TrackedList
		res := tx.Where("list_id = ?", list.ListID).Limit(1).Find(&existing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			row := models.TrackedList{ListID: list.ListID, ListName: list.ListName}
			ins := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "list_id"}},
				DoNothing: true,
			}).Create(&row)
			if ins.Error != nil {
				return ins.Error
			}
			if ins.RowsAffected > 0 {
				result = UpsertInserted
				return nil
			}
			// Lost an insert race; fall through to the name comparison.
			if err := tx.Where("list_id = ?", list.ListID).First(&existing).Error; err != nil {
				return err
			}
		}
		if existing.ListName == list.ListName {
			return nil
		}
		if err := tx.Model(&models.TrackedList{}).
			Where("list_id = ?", list.ListID).
			Update("list_name", list.ListName).Error; err != nil {
			return err
		}
		result = UpsertUpdated
		return nil
	})
	if err != nil {
		return UpsertUnchanged, err
	}
	return result, nil
}

func (s *GormStore) FindList(ctx context.Context, listID string) (TrackedList, bool, error) {
	listID = strings.TrimSpace(listID)
	if listID == "" {
		return TrackedList{}, false, nil
	}
	var row models.TrackedList
	res := s.db.WithContext(ctx).Where("list_id = ?", listID).Limit(1).Find(&row)
	if res.Error != nil {
		return TrackedList{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return TrackedList{}, false, nil
	}
	return listFromModel(row), true, nil
}

func (s *GormStore) Lists(ctx context.Context) ([]TrackedList, error) {
	var rows []models.TrackedList
	if err := s.db.WithContext(ctx).Order("list_id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]TrackedList, 0, len(rows))
	for _, row := range rows {
		out = append(out, listFromModel(row))
	}
	return out, nil
}

func (s *GormStore) UpsertChannel(ctx context.Context, channel ChatChannel) (UpsertResult, error) {
	channel, err := normalizeChannel(channel)
	if err != nil {
		return UpsertUnchanged, err
	}
	result := UpsertUnchanged
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.ChatChannel
		res := tx.Where("channel_id = ?", channel.ChannelID).Limit(1).Find(&existing)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			row := models.ChatChannel{ChannelID: channel.ChannelID, ChannelName: channel.ChannelName}
			ins := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "channel_id"}},
				DoNothing: true,
			}).Create(&row)
			if ins.Error != nil {
				return ins.Error
			}
			if ins.RowsAffected > 0 {
				result = UpsertInserted
				return nil
			}
			if err := tx.Where("channel_id = ?", channel.ChannelID).First(&existing).Error; err != nil {
				return err
			}
		}
		if existing.ChannelName == channel.ChannelName {
			return nil
		}
		if err := tx.Model(&models.ChatChannel{}).
			Where("channel_id = ?", channel.ChannelID).
			Update("channel_name", channel.ChannelName).Error; err != nil {
			return err
		}
		result = UpsertUpdated
		return nil
	})
	if err != nil {
		return UpsertUnchanged, err
	}
	return result, nil
}

func (s *GormStore) FindChannelByCode(ctx context.Context, code string) (ChatChannel, bool, error) {
	prefix := namecode.ChannelPrefix(code)
	if prefix == "" {
		return ChatChannel{}, false, nil
	}
	var row models.ChatChannel
	res := s.db.WithContext(ctx).
		Where(`LOWER(channel_name) LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%").
		Order("channel_name asc").
		Order("channel_id asc").
		Limit(1).
		Find(&row)
	if res.Error != nil {
		return ChatChannel{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return ChatChannel{}, false, nil
	}
	return channelFromModel(row), true, nil
}

func (s *GormStore) Channels(ctx context.Context) ([]ChatChannel, error) {
	var rows []models.ChatChannel
	if err := s.db.WithContext(ctx).Order("channel_name asc").Order("channel_id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ChatChannel, 0, len(rows))
	for _, row := range rows {
		out = append(out, channelFromModel(row))
	}
	return out, nil
}

func (s *GormStore) FindThreadByTask(ctx context.Context, taskID string) (ThreadCorrelation, bool, error) {
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return ThreadCorrelation{}, false, nil
	}
	var row models.ThreadCorrelation
	res := s.db.WithContext(ctx).Where("task_id = ?", taskID).Limit(1).Find(&row)
	if res.Error != nil {
		return ThreadCorrelation{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return ThreadCorrelation{}, false, nil
	}
	return threadFromModel(row), true, nil
}

func (s *GormStore) FindThreadByToken(ctx context.Context, channelID, token string) (ThreadCorrelation, bool, error) {
	channelID = strings.TrimSpace(channelID)
	token = strings.TrimSpace(token)
	if token == "" {
		return ThreadCorrelation{}, false, nil
	}
	query := s.db.WithContext(ctx).Where("parent_thread_token = ?", token)
	if channelID != "" {
		query = query.Where("channel_id = ?", channelID)
	}
	var row models.ThreadCorrelation
	res := query.Order("task_id asc").Limit(1).Find(&row)
	if res.Error != nil {
		return ThreadCorrelation{}, false, res.Error
	}
	if res.RowsAffected == 0 {
		return ThreadCorrelation{}, false, nil
	}
	return threadFromModel(row), true, nil
}

func (s *GormStore) CreateThreadIfAbsent(ctx context.Context, thread ThreadCorrelation) (ThreadCorrelation, bool, error) {
	thread, err := normalizeThread(thread)
	if err != nil {
		return ThreadCorrelation{}, false, err
	}
	row := models.ThreadCorrelation{
		TaskID:            thread.TaskID,
		ChannelID:         thread.ChannelID,
		ParentThreadToken: thread.ParentThreadToken,
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}},
		DoNothing: true,
	}).Create(&row)
	if res.Error != nil {
		return ThreadCorrelation{}, false, res.Error
	}
	if res.RowsAffected > 0 {
		return thread, true, nil
	}
	existing, ok, err := s.FindThreadByTask(ctx, thread.TaskID)
	if err != nil {
		return ThreadCorrelation{}, false, err
	}
	if !ok {
		return ThreadCorrelation{}, false, fmt.Errorf("thread for task %s vanished after conflicting insert", thread.TaskID)
	}
	return existing, false, nil
}

func (s *GormStore) Threads(ctx context.Context) ([]ThreadCorrelation, error) {
	var rows []models.ThreadCorrelation
	if err := s.db.WithContext(ctx).Order("task_id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ThreadCorrelation, 0, len(rows))
	for _, row := range rows {
		out = append(out, threadFromModel(row))
	}
	return out, nil
}

func listFromModel(row models.TrackedList) TrackedList {
	return TrackedList{ListID: row.ListID, ListName: row.ListName}
}

func channelFromModel(row models.ChatChannel) ChatChannel {
	return ChatChannel{ChannelID: row.ChannelID, ChannelName: row.ChannelName}
}

func threadFromModel(row models.ThreadCorrelation) ThreadCorrelation {
	return ThreadCorrelation{
		TaskID:            row.TaskID,
		ChannelID:         row.ChannelID,
		ParentThreadToken: row.ParentThreadToken,
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
