package db

import (
	"fmt"

	"github.com/quailyquaily/taskrelay/db/models"
	"gorm.io/gorm"
)

func AutoMigrate(gdb *gorm.DB) error {
	if gdb == nil {
		return fmt.Errorf("nil gorm db")
	}
	return gdb.AutoMigrate(
		&models.TrackedList{},
		&models.ChatChannel{},
		&models.ThreadCorrelation{},
	)
}
