package models

import (
	"time"

	"gorm.io/datatypes"
)

type SyncCursor struct {
	ServiceID    string         `gorm:"primaryKey;type:text;comment:connector service name"`
	ResourceName string         `gorm:"primaryKey;type:text;comment:resource within the service"`
	LastRecordAt *time.Time     `gorm:"type:timestamptz;comment:latest record timestamp seen by a successful run"`
	LastRecordID *string        `gorm:"type:text"`
	LastSyncedAt *time.Time     `gorm:"type:timestamptz;comment:finish time of the last successful run"`
	SyncMode     string         `gorm:"type:text;not null;default:incremental"`
	LastError    *string        `gorm:"type:text"`
	StatsJSON    datatypes.JSON `gorm:"type:jsonb"`
	UpdatedAt    time.Time      `gorm:"type:timestamptz;autoUpdateTime"`
}

func (SyncCursor) TableName() string {
	return "sync_cursors"
}
