package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrackedList maps a task-tracker list id to its display name. The name is the
// only mutable field; rows are never deleted by the relay.
type TrackedList struct {
	ID string `gorm:"primaryKey;type:text"`

	ListID   string `gorm:"type:text;not null;uniqueIndex"`
	ListName string `gorm:"type:text;not null"`

	CreatedAt int64 `gorm:"autoCreateTime"`
	UpdatedAt int64 `gorm:"autoUpdateTime"`
}

func (l *TrackedList) BeforeCreate(_ *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}
