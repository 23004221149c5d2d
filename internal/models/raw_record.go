package models

import (
	"time"

	"gorm.io/datatypes"
)

// RawRecord is a warehouse row. Table names are per connector resource
// (raw.<service>__<resource>) and are set with db.Table.
type RawRecord struct {
	SourceID   string         `gorm:"primaryKey;type:text"`
	Data       datatypes.JSON `gorm:"type:jsonb;not null"`
	RecordAt   *time.Time     `gorm:"type:timestamptz"`
	SyncedAt   time.Time      `gorm:"type:timestamptz;not null"`
	APIVersion *string        `gorm:"type:text"`
}
