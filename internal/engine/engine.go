package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lifesync/internal/fetch"
	"lifesync/internal/models"
	"lifesync/internal/repository"
	"lifesync/internal/syncerr"
	"lifesync/internal/writer"
)

const (
	ModeIncremental = "incremental"
	ModeBackfill    = "backfill"
	ModeFull        = "full"

	DefaultLookbackDays       = 7
	DefaultMarginDays         = 1
	DefaultMastersConcurrency = 4
)

// Request selects what a run covers. Start and End (half-open) switch the
// run to backfill mode; both must be set.
type Request struct {
	Start     *time.Time
	End       *time.Time
	Resources []string
}

func (r Request) Backfill() bool {
	return r.Start != nil && r.End != nil
}

func (r Request) wants(resource string) bool {
	return len(r.Resources) == 0 || slices.Contains(r.Resources, resource)
}

type Engine struct {
	Cursors  repository.CursorRepository
	Logs     repository.SyncLogRepository
	Writer   *writer.Writer
	Logger   *zap.Logger
	Observer Observer
	Now      func() time.Time
	Location *time.Location

	LookbackDays       int
	MarginDays         int
	MastersConcurrency int
}

type ResourceResult struct {
	RunID         uuid.UUID     `json:"run_id"`
	Service       string        `json:"service"`
	Resource      string        `json:"resource"`
	Kind          string        `json:"kind"`
	Mode          string        `json:"mode"`
	State         State         `json:"state"`
	Window        *fetch.Window `json:"window,omitempty"`
	Fetched       int           `json:"fetched"`
	Inserted      int           `json:"inserted"`
	Updated       int           `json:"updated"`
	Skipped       int           `json:"skipped"`
	Invalid       int           `json:"invalid"`
	Deleted       int           `json:"deleted"`
	FailedBatches int           `json:"failed_batches"`
	FailedRows    int           `json:"failed_rows"`
	APICalls      int64         `json:"api_calls"`
	Cursor        *time.Time    `json:"cursor,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
	Error         string        `json:"error,omitempty"`
	Err           error         `json:"-"`
}

func (r ResourceResult) Success() bool {
	return r.Err == nil && r.State == StateDone
}

type MastersResult struct {
	Results []ResourceResult `json:"results"`
	Success bool             `json:"success"`
}

func (m MastersResult) Failures() []ResourceResult {
	var out []ResourceResult
	for _, r := range m.Results {
		if !r.Success() {
			out = append(out, r)
		}
	}
	return out
}

// Service groups the jobs of one provider. Preflight runs before any job and
// usually resolves credentials.
type Service struct {
	Name      string
	Preflight func(ctx context.Context) error
	Masters   []Job
	Resources []Job
}

func (s Service) Jobs() []Job {
	out := make([]Job, 0, len(s.Masters)+len(s.Resources))
	out = append(out, s.Masters...)
	return append(out, s.Resources...)
}

type ServiceResult struct {
	Service   string           `json:"service"`
	Masters   MastersResult    `json:"masters"`
	Resources []ResourceResult `json:"resources"`
	Aborted   []string         `json:"aborted,omitempty"`
	Elapsed   time.Duration    `json:"elapsed"`
	Error     string           `json:"error,omitempty"`
	Err       error            `json:"-"`
}

func (s ServiceResult) Success() bool {
	if s.Err != nil || len(s.Aborted) > 0 {
		return false
	}
	if len(s.Masters.Results) > 0 && !s.Masters.Success {
		return false
	}
	for _, r := range s.Resources {
		if !r.Success() {
			return false
		}
	}
	return true
}

// Window computes the fetch range for a job. Masters have no window.
func (e *Engine) Window(kind Kind, cursor *models.SyncCursor, req Request) (fetch.Window, string) {
	if kind == KindMaster {
		return fetch.Window{}, ModeFull
	}
	if req.Backfill() {
		return fetch.Window{Start: *req.Start, End: *req.End}, ModeBackfill
	}
	now := e.now()
	loc := e.location()
	if cursor != nil && cursor.LastRecordAt != nil {
		margin := e.MarginDays
		if margin < 0 {
			margin = 0
		} else if margin == 0 {
			margin = DefaultMarginDays
		}
		start := fetch.StartOfDay(cursor.LastRecordAt.AddDate(0, 0, -margin), loc)
		if !start.Before(now) {
			start = fetch.StartOfDay(now, loc)
		}
		return fetch.Window{Start: start, End: now}, ModeIncremental
	}
	lookback := e.LookbackDays
	if lookback <= 0 {
		lookback = DefaultLookbackDays
	}
	return fetch.Window{Start: fetch.StartOfDay(now.AddDate(0, 0, -lookback), loc), End: now}, ModeIncremental
}

// RunMasters runs jobs concurrently and returns one result per job in input
// order. A failing job never cancels its siblings.
func (e *Engine) RunMasters(ctx context.Context, service string, jobs []Job, req Request) MastersResult {
	results := make([]ResourceResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(e.mastersConcurrency())
	for i, job := range jobs {
		g.Go(func() error {
			results[i] = e.runJob(ctx, job, service, req)
			return nil
		})
	}
	_ = g.Wait()
	out := MastersResult{Results: results, Success: true}
	for _, r := range results {
		if !r.Success() {
			out.Success = false
		}
	}
	return out
}

// RunService runs masters first, then the remaining resources in order.
// Configuration and auth failures stop the rest of the service.
func (e *Engine) RunService(ctx context.Context, svc Service, req Request) ServiceResult {
	started := e.now()
	out := ServiceResult{Service: svc.Name}
	finish := func() ServiceResult {
		out.Elapsed = e.now().Sub(started)
		if out.Err != nil {
			out.Error = out.Err.Error()
		}
		return out
	}

	if svc.Preflight != nil {
		if err := svc.Preflight(ctx); err != nil {
			out.Err = err
			for _, j := range svc.Jobs() {
				if req.wants(j.Info().Name) {
					out.Aborted = append(out.Aborted, j.Info().Name)
				}
			}
			e.logger().Error("service preflight failed", zap.String("service", svc.Name), zap.Error(err))
			return finish()
		}
	}

	var masters []Job
	for _, j := range svc.Masters {
		if req.wants(j.Info().Name) {
			masters = append(masters, j)
		}
	}
	fatal := false
	if len(masters) > 0 {
		out.Masters = e.RunMasters(ctx, svc.Name, masters, req)
		for _, r := range out.Masters.Failures() {
			if syncerr.Fatal(r.Err) {
				fatal = true
				out.Err = r.Err
				break
			}
		}
	}

	for _, j := range svc.Resources {
		name := j.Info().Name
		if !req.wants(name) {
			continue
		}
		if fatal || ctx.Err() != nil {
			out.Aborted = append(out.Aborted, name)
			continue
		}
		r := e.runJob(ctx, j, svc.Name, req)
		out.Resources = append(out.Resources, r)
		if syncerr.Fatal(r.Err) {
			fatal = true
			out.Err = r.Err
		}
	}
	if out.Err == nil && ctx.Err() != nil && len(out.Aborted) > 0 {
		out.Err = ctx.Err()
	}
	return finish()
}

// runJob converts a panicking job into a failed result so siblings keep running.
func (e *Engine) runJob(ctx context.Context, job Job, service string, req Request) (res ResourceResult) {
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("panic: %v", p)
			e.logger().Error("sync job panicked", zap.String("service", service), zap.String("resource", job.Info().Name), zap.Any("panic", p))
			res = ResourceResult{
				RunID:    uuid.New(),
				Service:  service,
				Resource: job.Info().Name,
				Kind:     job.Info().Kind.String(),
				State:    StateFailed,
				Err:      err,
				Error:    err.Error(),
			}
			e.emit(&res)
		}
	}()
	return job.Run(ctx, e, service, req)
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) location() *time.Location {
	if e.Location != nil {
		return e.Location
	}
	return time.UTC
}

func (e *Engine) mastersConcurrency() int {
	if e.MastersConcurrency > 0 {
		return e.MastersConcurrency
	}
	return DefaultMastersConcurrency
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

// ErrNoWriter is returned by Validate when the engine cannot persist rows.
var ErrNoWriter = errors.New("engine: writer is not configured")

func (e *Engine) Validate() error {
	if e == nil || e.Writer == nil || e.Writer.Store == nil {
		return ErrNoWriter
	}
	return nil
}
