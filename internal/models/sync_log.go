package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SyncStatusRunning   = "running"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// SyncLog is one audit row per resource run.
type SyncLog struct {
	ID             uuid.UUID  `gorm:"primaryKey;type:uuid"`
	ServiceID      string     `gorm:"type:text;not null;index:idx_sync_logs_service_started,priority:1"`
	ResourceName   string     `gorm:"type:text;not null"`
	Mode           string     `gorm:"type:text;not null"`
	Status         string     `gorm:"type:text;not null;index"`
	StartedAt      time.Time  `gorm:"type:timestamptz;not null;index:idx_sync_logs_service_started,priority:2,sort:desc"`
	CompletedAt    *time.Time `gorm:"type:timestamptz"`
	QueryFrom      *time.Time `gorm:"type:timestamptz"`
	QueryTo        *time.Time `gorm:"type:timestamptz"`
	RecordsFetched int        `gorm:"not null;default:0"`
	RecordsInsert  int        `gorm:"column:records_inserted;not null;default:0"`
	RecordsUpdate  int        `gorm:"column:records_updated;not null;default:0"`
	RecordsSkipped int        `gorm:"not null;default:0"`
	RecordsDeleted int        `gorm:"not null;default:0"`
	FailedBatches  int        `gorm:"not null;default:0"`
	APICalls       int64      `gorm:"column:api_calls;not null;default:0"`
	ElapsedMs      int64      `gorm:"not null;default:0"`
	ErrorMessage   *string    `gorm:"type:text"`
}

func (SyncLog) TableName() string {
	return "sync_logs"
}
