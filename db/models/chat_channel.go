package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatChannel is a chat channel whose name follows the project naming
// convention. Archived or non-matching channels are never stored.
type ChatChannel struct {
	ID string `gorm:"primaryKey;type:text"`

	ChannelID   string `gorm:"type:text;not null;uniqueIndex"`
	ChannelName string `gorm:"type:text;not null;index"`

	CreatedAt int64 `gorm:"autoCreateTime"`
	UpdatedAt int64 `gorm:"autoUpdateTime"`
}

func (c *ChatChannel) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
