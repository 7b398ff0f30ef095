package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ThreadCorrelation pins a task to the root message of its chat thread.
// TaskID is unique: the first writer wins and later writers re-read the row.
type ThreadCorrelation struct {
	ID string `gorm:"primaryKey;type:text"`

	TaskID            string `gorm:"type:text;not null;uniqueIndex"`
	ChannelID         string `gorm:"type:text;not null;index:idx_thread_lookup"`
	ParentThreadToken string `gorm:"type:text;not null;index:idx_thread_lookup"`

	CreatedAt int64 `gorm:"autoCreateTime"`
}

func (t *ThreadCorrelation) BeforeCreate(_ *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
