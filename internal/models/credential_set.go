package models

import (
	"time"

	"gorm.io/datatypes"
)

// CredentialSet holds one service's credentials. Payload is an encrypted
// JSON envelope; only metadata is stored in clear.
type CredentialSet struct {
	Service   string         `gorm:"primaryKey;type:text"`
	AuthType  string         `gorm:"type:text;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	ExpiresAt *time.Time     `gorm:"type:timestamptz"`
	CreatedAt time.Time      `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"type:timestamptz;autoUpdateTime"`
}

func (CredentialSet) TableName() string {
	return "credential_sets"
}
