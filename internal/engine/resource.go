package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"lifesync/internal/fetch"
	"lifesync/internal/models"
	"lifesync/internal/syncerr"
	"lifesync/internal/writer"
)

// Row is a normalized record. Deleted rows go to the delete path.
type Row struct {
	SourceID string
	Data     any
	RecordAt *time.Time
	Deleted  bool
}

// Transformer maps one provider record to a row. nil, nil skips the record;
// an error marks it invalid and skips it.
type Transformer[T any] func(T) (*Row, error)

type Kind int

const (
	KindIncremental Kind = iota
	KindMaster
)

func (k Kind) String() string {
	if k == KindMaster {
		return "master"
	}
	return "incremental"
}

type JobInfo struct {
	Name  string
	Table string
	Kind  Kind
}

// Job is one syncable resource of a service.
type Job interface {
	Info() JobInfo
	Run(ctx context.Context, e *Engine, service string, req Request) ResourceResult
}

// Resource binds a typed fetch sequence to its transformer and warehouse table.
type Resource[T any] struct {
	Name        string
	Table       string
	APIVersion  string
	Kind        Kind
	ConflictKey []string
	Fetch       func(ctx context.Context, w fetch.Window) iter.Seq2[T, error]
	Transform   Transformer[T]
	// Calls reports the provider client's HTTP attempt counter.
	Calls func() int64
}

func (r *Resource[T]) Info() JobInfo {
	return JobInfo{Name: r.Name, Table: r.Table, Kind: r.Kind}
}

func (r *Resource[T]) Run(ctx context.Context, e *Engine, service string, req Request) ResourceResult {
	return Execute(ctx, e, service, r, req)
}

// Execute runs one resource through fetch, transform, write and cursor
// advance. The cursor moves only when every step succeeded.
func Execute[T any](ctx context.Context, e *Engine, service string, r *Resource[T], req Request) ResourceResult {
	started := e.now()
	res := ResourceResult{
		RunID:    uuid.New(),
		Service:  service,
		Resource: r.Name,
		Kind:     r.Kind.String(),
		State:    StateIdle,
	}
	log := e.logger().With(zap.String("service", service), zap.String("resource", r.Name), zap.String("run_id", res.RunID.String()))
	var callsBefore int64
	if r.Calls != nil {
		callsBefore = r.Calls()
	}

	var prev *models.SyncCursor
	if e.Cursors != nil {
		c, err := e.Cursors.GetCursor(ctx, service, r.Name)
		if err != nil {
			return e.fail(ctx, &res, nil, started, fmt.Errorf("load cursor: %w", err))
		}
		prev = c
	}
	window, mode := e.Window(r.Kind, prev, req)
	res.Mode = mode
	if !window.IsZero() {
		w := window
		res.Window = &w
	}
	syncLog := e.startLog(ctx, &res, started, log)

	e.transition(&res, StateFetching)
	if r.Fetch == nil {
		return e.fail(ctx, &res, syncLog, started, syncerr.Configuration(service, "resource %s has no fetcher", r.Name))
	}
	var items []T
	for item, err := range r.Fetch(ctx, window) {
		if err != nil {
			res.Fetched = len(items)
			res.APICalls = callsSince(r.Calls, callsBefore)
			return e.fail(ctx, &res, syncLog, started, err)
		}
		items = append(items, item)
	}
	res.Fetched = len(items)
	res.APICalls = callsSince(r.Calls, callsBefore)

	e.transition(&res, StateTransforming)
	var (
		rows   []*Row
		index  = make(map[string]int, len(items))
		latest *time.Time
	)
	for _, item := range items {
		row, err := r.Transform(item)
		if err != nil {
			res.Skipped++
			res.Invalid++
			log.Debug("record skipped", zap.Error(err))
			continue
		}
		if row == nil {
			res.Skipped++
			continue
		}
		if row.RecordAt != nil && (latest == nil || row.RecordAt.After(*latest)) {
			t := *row.RecordAt
			latest = &t
		}
		// last seen wins per source id, including a later delete
		if i, ok := index[row.SourceID]; ok {
			rows[i] = row
			continue
		}
		index[row.SourceID] = len(rows)
		rows = append(rows, row)
	}
	var (
		active  []writer.Record
		deleted []string
	)
	for _, row := range rows {
		if row.Deleted {
			deleted = append(deleted, row.SourceID)
			continue
		}
		active = append(active, writer.Record{SourceID: row.SourceID, Data: row.Data, RecordAt: row.RecordAt})
	}

	e.transition(&res, StateWriting)
	var written writer.Result
	if len(deleted) > 0 {
		written.Merge(e.Writer.Delete(ctx, r.Table, deleted))
	}
	written.Merge(e.Writer.Upsert(ctx, r.Table, r.APIVersion, active, r.ConflictKey))
	res.Inserted = written.Inserted
	res.Updated = written.Updated
	res.Deleted = written.Deleted
	res.FailedBatches = written.FailedBatches
	res.FailedRows = written.FailedRows
	if written.Failed() {
		return e.fail(ctx, &res, syncLog, started, written.Err())
	}

	e.transition(&res, StateCursorAdvance)
	if e.Cursors != nil {
		cursor := nextCursor(prev, service, r.Name, latest, e.now(), mode, res)
		if err := e.Cursors.SaveCursor(ctx, cursor); err != nil {
			return e.fail(ctx, &res, syncLog, started, fmt.Errorf("save cursor: %w", err))
		}
		res.Cursor = cursor.LastRecordAt
	}

	res.Elapsed = e.now().Sub(started)
	e.transition(&res, StateDone)
	e.finishLog(ctx, syncLog, &res, log)
	return res
}

// nextCursor keeps last_record_at monotonic: max(previous, observed).
// Observed times after now (future calendar events) count as now.
func nextCursor(prev *models.SyncCursor, service, resource string, observed *time.Time, now time.Time, mode string, res ResourceResult) *models.SyncCursor {
	cursor := &models.SyncCursor{ServiceID: service, ResourceName: resource, SyncMode: mode}
	if prev != nil {
		cursor.LastRecordAt = prev.LastRecordAt
		cursor.LastRecordID = prev.LastRecordID
	}
	if observed != nil && observed.After(now) {
		observed = &now
	}
	if observed != nil && (cursor.LastRecordAt == nil || observed.After(*cursor.LastRecordAt)) {
		t := observed.UTC()
		cursor.LastRecordAt = &t
	}
	synced := now.UTC()
	cursor.LastSyncedAt = &synced
	stats, _ := json.Marshal(map[string]any{
		"fetched":  res.Fetched,
		"inserted": res.Inserted,
		"updated":  res.Updated,
		"skipped":  res.Skipped,
		"deleted":  res.Deleted,
	})
	cursor.StatsJSON = datatypes.JSON(stats)
	return cursor
}

func callsSince(calls func() int64, before int64) int64 {
	if calls == nil {
		return 0
	}
	return calls() - before
}

func (e *Engine) transition(res *ResourceResult, s State) {
	res.State = s
	e.emit(res)
}

func (e *Engine) emit(res *ResourceResult) {
	if e.Observer == nil {
		return
	}
	ev := Event{
		RunID:    res.RunID,
		Service:  res.Service,
		Resource: res.Resource,
		State:    res.State,
		At:       e.now(),
		Fetched:  res.Fetched,
		Inserted: res.Inserted,
		Updated:  res.Updated,
		Skipped:  res.Skipped,
		Deleted:  res.Deleted,
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	e.Observer.Observe(ev)
}

func (e *Engine) fail(ctx context.Context, res *ResourceResult, syncLog *models.SyncLog, started time.Time, err error) ResourceResult {
	if err == nil {
		err = errors.New("unknown failure")
	}
	res.Err = err
	res.Error = err.Error()
	res.Elapsed = e.now().Sub(started)
	e.transition(res, StateFailed)
	if syncLog != nil {
		e.finishLog(ctx, syncLog, res, e.logger())
	}
	if e.Cursors != nil && !errors.Is(err, context.Canceled) {
		e.recordCursorError(ctx, res)
	}
	return *res
}

// recordCursorError stores the failure message without touching the watermark.
func (e *Engine) recordCursorError(ctx context.Context, res *ResourceResult) {
	prev, err := e.Cursors.GetCursor(ctx, res.Service, res.Resource)
	if err != nil {
		return
	}
	cursor := &models.SyncCursor{ServiceID: res.Service, ResourceName: res.Resource, SyncMode: res.Mode}
	if prev != nil {
		cursor.LastRecordAt = prev.LastRecordAt
		cursor.LastRecordID = prev.LastRecordID
		cursor.LastSyncedAt = prev.LastSyncedAt
		cursor.StatsJSON = prev.StatsJSON
	}
	msg := res.Error
	cursor.LastError = &msg
	if err := e.Cursors.SaveCursor(ctx, cursor); err != nil {
		e.logger().Warn("save cursor error failed", zap.String("service", res.Service), zap.String("resource", res.Resource), zap.Error(err))
	}
}

func (e *Engine) startLog(ctx context.Context, res *ResourceResult, started time.Time, log *zap.Logger) *models.SyncLog {
	if e.Logs == nil {
		return nil
	}
	item := &models.SyncLog{
		ID:           res.RunID,
		ServiceID:    res.Service,
		ResourceName: res.Resource,
		Mode:         res.Mode,
		Status:       models.SyncStatusRunning,
		StartedAt:    started.UTC(),
	}
	if res.Window != nil {
		from, to := res.Window.Start.UTC(), res.Window.End.UTC()
		item.QueryFrom = &from
		item.QueryTo = &to
	}
	if err := e.Logs.CreateSyncLog(ctx, item); err != nil {
		log.Warn("create sync log failed", zap.Error(err))
		return nil
	}
	return item
}

func (e *Engine) finishLog(ctx context.Context, item *models.SyncLog, res *ResourceResult, log *zap.Logger) {
	if e.Logs == nil || item == nil {
		return
	}
	completed := e.now().UTC()
	item.CompletedAt = &completed
	item.Status = models.SyncStatusCompleted
	if res.Err != nil {
		item.Status = models.SyncStatusFailed
		msg := res.Err.Error()
		item.ErrorMessage = &msg
	}
	item.RecordsFetched = res.Fetched
	item.RecordsInsert = res.Inserted
	item.RecordsUpdate = res.Updated
	item.RecordsSkipped = res.Skipped
	item.RecordsDeleted = res.Deleted
	item.FailedBatches = res.FailedBatches
	item.APICalls = res.APICalls
	item.ElapsedMs = res.Elapsed.Milliseconds()
	// The run context may already be cancelled; the audit row is still written.
	if err := e.Logs.FinishSyncLog(context.WithoutCancel(ctx), item); err != nil {
		log.Warn("finish sync log failed", zap.Error(err))
	}
}
