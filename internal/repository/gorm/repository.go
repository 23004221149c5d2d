package gormrepository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lifesync/internal/models"
	"lifesync/internal/repository"
)

const deleteBatchSize = 1000

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- sync cursors -----------------------------------------------------------

func (s *Store) GetCursor(ctx context.Context, service, resource string) (*models.SyncCursor, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var cursor models.SyncCursor
	err := s.db.WithContext(ctx).
		Where("service_id = ? AND resource_name = ?", service, resource).
		First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cursor, nil
}

// SaveCursor upserts the cursor. last_record_at only moves forward, even if a
// caller passes an older value.
func (s *Store) SaveCursor(ctx context.Context, cursor *models.SyncCursor) error {
	if s == nil || s.db == nil || cursor == nil {
		return nil
	}
	cursor.UpdatedAt = time.Now().UTC()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "service_id"}, {Name: "resource_name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_record_at": gorm.Expr("GREATEST(sync_cursors.last_record_at, EXCLUDED.last_record_at)"),
			"last_record_id": gorm.Expr("COALESCE(EXCLUDED.last_record_id, sync_cursors.last_record_id)"),
			"last_synced_at": gorm.Expr("EXCLUDED.last_synced_at"),
			"sync_mode":      gorm.Expr("EXCLUDED.sync_mode"),
			"last_error":     gorm.Expr("EXCLUDED.last_error"),
			"stats_json":     gorm.Expr("EXCLUDED.stats_json"),
			"updated_at":     gorm.Expr("EXCLUDED.updated_at"),
		}),
	}).Create(cursor).Error
}

func (s *Store) ListCursors(ctx context.Context, params repository.ListCursorsParams) ([]models.SyncCursor, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SyncCursor{})
	if params.Service != nil && strings.TrimSpace(*params.Service) != "" {
		query = query.Where("service_id = ?", strings.TrimSpace(*params.Service))
	}
	var items []models.SyncCursor
	if err := query.Order("service_id asc").Order("resource_name asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- sync logs --------------------------------------------------------------

func (s *Store) CreateSyncLog(ctx context.Context, item *models.SyncLog) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

// FinishSyncLog writes the final counters once. Rows that already left the
// running state are not touched.
func (s *Store) FinishSyncLog(ctx context.Context, item *models.SyncLog) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.SyncLog{}).
		Where("id = ? AND status = ?", item.ID, models.SyncStatusRunning).
		Updates(map[string]any{
			"status":           item.Status,
			"completed_at":     item.CompletedAt,
			"records_fetched":  item.RecordsFetched,
			"records_inserted": item.RecordsInsert,
			"records_updated":  item.RecordsUpdate,
			"records_skipped":  item.RecordsSkipped,
			"records_deleted":  item.RecordsDeleted,
			"failed_batches":   item.FailedBatches,
			"api_calls":        item.APICalls,
			"elapsed_ms":       item.ElapsedMs,
			"error_message":    item.ErrorMessage,
		}).Error
}

func (s *Store) ListSyncLogs(ctx context.Context, params repository.ListSyncLogsParams) ([]models.SyncLog, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applySyncLogFilters(s.db.WithContext(ctx).Model(&models.SyncLog{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "started_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.SyncLog
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSyncLogs(ctx context.Context, params repository.ListSyncLogsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var total int64
	if err := applySyncLogFilters(s.db.WithContext(ctx).Model(&models.SyncLog{}), params).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func applySyncLogFilters(query *gorm.DB, params repository.ListSyncLogsParams) *gorm.DB {
	if params.Service != nil && strings.TrimSpace(*params.Service) != "" {
		query = query.Where("service_id = ?", strings.TrimSpace(*params.Service))
	}
	if params.Resource != nil && strings.TrimSpace(*params.Resource) != "" {
		query = query.Where("resource_name = ?", strings.TrimSpace(*params.Resource))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Since != nil {
		query = query.Where("started_at >= ?", *params.Since)
	}
	return query
}

// --- warehouse --------------------------------------------------------------

func (s *Store) EnsureRawTable(ctx context.Context, table string) error {
	if s == nil || s.db == nil {
		return nil
	}
	schema, _ := splitTable(table)
	if schema != "" {
		if err := s.db.WithContext(ctx).Exec(fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %q", schema)).Error; err != nil {
			return err
		}
	}
	return s.db.WithContext(ctx).Table(table).AutoMigrate(&models.RawRecord{})
}

// UpsertRaw writes rows in one transaction and reports how many source ids
// were new. Rows must already be unique by source_id.
func (s *Store) UpsertRaw(ctx context.Context, table string, conflictKey []string, rows []models.RawRecord) (repository.UpsertCounts, error) {
	var counts repository.UpsertCounts
	if s == nil || s.db == nil || len(rows) == 0 {
		return counts, nil
	}
	if len(conflictKey) == 0 {
		conflictKey = []string{"source_id"}
	}
	columns := make([]clause.Column, 0, len(conflictKey))
	for _, name := range conflictKey {
		columns = append(columns, clause.Column{Name: name})
	}
	_, bare := splitTable(table)
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.SourceID)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []string
		if err := tx.Table(table).Where("source_id IN ?", ids).Pluck("source_id", &existing).Error; err != nil {
			return err
		}
		err := tx.Table(table).Clauses(clause.OnConflict{
			Columns: columns,
			DoUpdates: clause.Assignments(map[string]any{
				"data":        gorm.Expr("EXCLUDED.data"),
				"record_at":   gorm.Expr("EXCLUDED.record_at"),
				"synced_at":   gorm.Expr("EXCLUDED.synced_at"),
				"api_version": gorm.Expr(fmt.Sprintf("COALESCE(EXCLUDED.api_version, %q.api_version)", bare)),
			}),
		}).Create(&rows).Error
		if err != nil {
			return err
		}
		counts.Updated = len(existing)
		counts.Inserted = len(rows) - len(existing)
		return nil
	})
	if err != nil {
		return repository.UpsertCounts{}, err
	}
	return counts, nil
}

func (s *Store) DeleteRawBySourceIDs(ctx context.Context, table string, ids []string) (int64, error) {
	if s == nil || s.db == nil || len(ids) == 0 {
		return 0, nil
	}
	var total int64
	for start := 0; start < len(ids); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		res := s.db.WithContext(ctx).Table(table).Where("source_id IN ?", ids[start:end]).Delete(&models.RawRecord{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected
	}
	return total, nil
}

func splitTable(table string) (schema, name string) {
	if i := strings.Index(table, "."); i > 0 {
		return table[:i], table[i+1:]
	}
	return "", table
}

// --- credentials ------------------------------------------------------------

func (s *Store) GetCredentialSet(ctx context.Context, service string) (*models.CredentialSet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	service = strings.TrimSpace(service)
	if service == "" {
		return nil, nil
	}
	var item models.CredentialSet
	err := s.db.WithContext(ctx).First(&item, "service = ?", service).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveCredentialSet(ctx context.Context, item *models.CredentialSet) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Service = strings.TrimSpace(item.Service)
	if item.Service == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "service"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"auth_type",
			"payload",
			"expires_at",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) DeleteCredentialSet(ctx context.Context, service string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res := s.db.WithContext(ctx).Where("service = ?", strings.TrimSpace(service)).Delete(&models.CredentialSet{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ListCredentialSets(ctx context.Context) ([]models.CredentialSet, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.CredentialSet
	if err := s.db.WithContext(ctx).Order("service asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- system settings --------------------------------------------------------

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		query = query.Where("key LIKE ?", strings.TrimSpace(*params.Prefix)+"%")
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "key")
	var items []models.SystemSetting
	if err := query.Limit(normalizeLimit(params.Limit, 500)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SystemSetting{})
	if params.Prefix != nil && strings.TrimSpace(*params.Prefix) != "" {
		query = query.Where("key LIKE ?", strings.TrimSpace(*params.Prefix)+"%")
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
