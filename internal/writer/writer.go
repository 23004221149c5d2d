package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"lifesync/internal/models"
	"lifesync/internal/repository"
	"lifesync/internal/syncerr"
)

const DefaultBatchSize = 1000

// Record is one normalized row keyed by its natural id.
type Record struct {
	SourceID string
	Data     any
	RecordAt *time.Time
}

type Result struct {
	Total         int     `json:"total"`
	Inserted      int     `json:"inserted"`
	Updated       int     `json:"updated"`
	Deleted       int     `json:"deleted"`
	FailedBatches int     `json:"failed_batches"`
	FailedRows    int     `json:"failed_rows"`
	Errors        []error `json:"-"`
}

func (r Result) Failed() bool {
	return r.FailedBatches > 0 || r.FailedRows > 0
}

func (r Result) Err() error {
	return errors.Join(r.Errors...)
}

func (r *Result) Merge(o Result) {
	r.Total += o.Total
	r.Inserted += o.Inserted
	r.Updated += o.Updated
	r.Deleted += o.Deleted
	r.FailedBatches += o.FailedBatches
	r.FailedRows += o.FailedRows
	r.Errors = append(r.Errors, o.Errors...)
}

type Store interface {
	UpsertRaw(ctx context.Context, table string, conflictKey []string, rows []models.RawRecord) (repository.UpsertCounts, error)
	DeleteRawBySourceIDs(ctx context.Context, table string, ids []string) (int64, error)
}

type Writer struct {
	Store     Store
	BatchSize int
	Logger    *zap.Logger
	Now       func() time.Time
}

func New(store Store, batchSize int, logger *zap.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{Store: store, BatchSize: batchSize, Logger: logger}
}

// Dedup keeps one record per SourceID. The last occurrence wins and keeps
// the position of the first.
func Dedup(records []Record) []Record {
	if len(records) < 2 {
		return records
	}
	index := make(map[string]int, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if i, ok := index[r.SourceID]; ok {
			out[i] = r
			continue
		}
		index[r.SourceID] = len(out)
		out = append(out, r)
	}
	return out
}

// Upsert writes records in batches. A failing batch is counted and the
// remaining batches still run.
func (w *Writer) Upsert(ctx context.Context, table, apiVersion string, records []Record, conflictKey []string) Result {
	var res Result
	records = Dedup(records)
	res.Total = len(records)
	if len(records) == 0 {
		return res
	}
	syncedAt := w.now().UTC()
	var version *string
	if apiVersion != "" {
		version = &apiVersion
	}

	rows := make([]models.RawRecord, 0, len(records))
	for _, r := range records {
		if r.SourceID == "" {
			res.FailedRows++
			res.Errors = append(res.Errors, syncerr.Write(table, errors.New("record without source id")))
			continue
		}
		data, err := encode(r.Data)
		if err != nil {
			res.FailedRows++
			res.Errors = append(res.Errors, syncerr.Write(table, fmt.Errorf("encode %s: %w", r.SourceID, err)))
			continue
		}
		rows = append(rows, models.RawRecord{
			SourceID:   r.SourceID,
			Data:       data,
			RecordAt:   r.RecordAt,
			SyncedAt:   syncedAt,
			APIVersion: version,
		})
	}

	size := w.batchSize()
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		if err := ctx.Err(); err != nil {
			res.FailedBatches++
			res.FailedRows += len(rows) - start
			res.Errors = append(res.Errors, syncerr.Write(table, err))
			break
		}
		counts, err := w.Store.UpsertRaw(ctx, table, conflictKey, rows[start:end])
		if err != nil {
			res.FailedBatches++
			res.FailedRows += end - start
			res.Errors = append(res.Errors, syncerr.Write(fmt.Sprintf("%s batch %d", table, start/size+1), err))
			w.logger().Warn("upsert batch failed",
				zap.String("table", table),
				zap.Int("batch", start/size+1),
				zap.Int("rows", end-start),
				zap.Error(err),
			)
			continue
		}
		res.Inserted += counts.Inserted
		res.Updated += counts.Updated
	}
	return res
}

func (w *Writer) Delete(ctx context.Context, table string, ids []string) Result {
	var res Result
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return res
	}
	size := w.batchSize()
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		n, err := w.Store.DeleteRawBySourceIDs(ctx, table, ids[start:end])
		if err != nil {
			res.FailedBatches++
			res.FailedRows += end - start
			res.Errors = append(res.Errors, syncerr.Write("delete "+table, err))
			w.logger().Warn("delete batch failed", zap.String("table", table), zap.Error(err))
			continue
		}
		res.Deleted += int(n)
	}
	return res
}

func encode(v any) (datatypes.JSON, error) {
	switch d := v.(type) {
	case nil:
		return datatypes.JSON("{}"), nil
	case json.RawMessage:
		if !json.Valid(d) {
			return nil, errors.New("invalid json")
		}
		return datatypes.JSON(d), nil
	case []byte:
		if !json.Valid(d) {
			return nil, errors.New("invalid json")
		}
		return datatypes.JSON(d), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return datatypes.JSON(b), nil
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (w *Writer) batchSize() int {
	if w.BatchSize > 0 {
		return w.BatchSize
	}
	return DefaultBatchSize
}

func (w *Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *Writer) logger() *zap.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return zap.NewNop()
}
