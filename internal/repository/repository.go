package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"lifesync/internal/models"
)

type CursorRepository interface {
	GetCursor(ctx context.Context, service, resource string) (*models.SyncCursor, error)
	SaveCursor(ctx context.Context, cursor *models.SyncCursor) error
	ListCursors(ctx context.Context, params ListCursorsParams) ([]models.SyncCursor, error)
}

type SyncLogRepository interface {
	CreateSyncLog(ctx context.Context, item *models.SyncLog) error
	FinishSyncLog(ctx context.Context, item *models.SyncLog) error
	ListSyncLogs(ctx context.Context, params ListSyncLogsParams) ([]models.SyncLog, error)
	CountSyncLogs(ctx context.Context, params ListSyncLogsParams) (int64, error)
}

// WarehouseRepository writes connector rows into raw.<service>__<resource> tables.
type WarehouseRepository interface {
	EnsureRawTable(ctx context.Context, table string) error
	UpsertRaw(ctx context.Context, table string, conflictKey []string, rows []models.RawRecord) (UpsertCounts, error)
	DeleteRawBySourceIDs(ctx context.Context, table string, ids []string) (int64, error)
}

type CredentialRepository interface {
	GetCredentialSet(ctx context.Context, service string) (*models.CredentialSet, error)
	SaveCredentialSet(ctx context.Context, item *models.CredentialSet) error
	DeleteCredentialSet(ctx context.Context, service string) (bool, error)
	ListCredentialSets(ctx context.Context) ([]models.CredentialSet, error)
}

type SettingsRepository interface {
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
	CountSystemSettings(ctx context.Context, params ListSystemSettingsParams) (int64, error)
}

type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	CursorRepository
	SyncLogRepository
	WarehouseRepository
	CredentialRepository
	SettingsRepository
}

type UpsertCounts struct {
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

type ListCursorsParams struct {
	Service *string
}

type ListSyncLogsParams struct {
	Limit    int
	Offset   int
	Service  *string
	Resource *string
	Status   *string
	Since    *time.Time
	OrderBy  string
	Asc      *bool
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}
