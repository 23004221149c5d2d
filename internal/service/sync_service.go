package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lifesync/internal/config"
	"lifesync/internal/connector"
	"lifesync/internal/connector/fitbit"
	"lifesync/internal/connector/gcalendar"
	"lifesync/internal/connector/notion"
	"lifesync/internal/connector/tanita"
	"lifesync/internal/connector/toggl"
	"lifesync/internal/connector/zaim"
	"lifesync/internal/engine"
	"lifesync/internal/fetch"
	"lifesync/internal/repository"
)

var (
	ErrUnknownService = errors.New("unknown service")
	ErrAlreadyRunning = errors.New("sync already running")
)

// DefaultRegistry maps service ids to connector factories.
func DefaultRegistry() map[string]connector.Factory {
	return map[string]connector.Factory{
		gcalendar.Service: gcalendar.New,
		toggl.Service:     toggl.New,
		zaim.Service:      zaim.New,
		fitbit.Service:    fitbit.New,
		tanita.Service:    tanita.New,
		notion.Service:    notion.New,
	}
}

func PolicyFromConfig(c config.RetryConfig) fetch.Policy {
	p := fetch.DefaultPolicy()
	if c.DefaultRetryAfter > 0 {
		p.DefaultRetryAfter = c.DefaultRetryAfter
	}
	if c.MaxRetryAfter > 0 {
		p.MaxRetryAfter = c.MaxRetryAfter
	}
	// 0 lifts the 429 ceiling; negative keeps the default
	if c.MaxRateLimitRetries >= 0 {
		p.MaxRateLimitRetries = c.MaxRateLimitRetries
	}
	if c.ServerErrorDelay > 0 {
		p.ServerErrorDelay = c.ServerErrorDelay
	}
	if c.ServerErrorRetries >= 0 {
		p.ServerErrorRetries = c.ServerErrorRetries
	}
	return p
}

func BreakerFromConfig(c config.BreakerConfig) fetch.BreakerConfig {
	return fetch.BreakerConfig{
		Enabled:          c.Enabled,
		FailureThreshold: c.FailureThreshold,
		MaxRequests:      c.MaxRequests,
		Interval:         c.Interval,
		Timeout:          c.Timeout,
	}
}

type RunRequest struct {
	Services  []string   `json:"services"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	Resources []string   `json:"resources,omitempty"`
}

func (r RunRequest) engineRequest() engine.Request {
	return engine.Request{Start: r.Start, End: r.End, Resources: r.Resources}
}

type Summary struct {
	StartedAt time.Time              `json:"started_at"`
	Elapsed   time.Duration          `json:"elapsed"`
	Services  []engine.ServiceResult `json:"services"`
	Success   bool                   `json:"success"`
}

// ExitCode is 0 when every service fully succeeded and 1 otherwise.
func (s Summary) ExitCode() int {
	if s.Success {
		return 0
	}
	return 1
}

type SyncService struct {
	Engine    *engine.Engine
	Registry  map[string]connector.Factory
	Deps      connector.Deps
	Config    config.Config
	Warehouse repository.WarehouseRepository
	Logger    *zap.Logger
	// RunTimeout bounds one service run. Zero means no limit.
	RunTimeout time.Duration

	mu      sync.Mutex
	running map[string]bool
	ensured map[string]bool
}

// Available lists registered services that are not disabled in config.
func (s *SyncService) Available() []string {
	var out []string
	for name := range s.Registry {
		if s.Config.Connector(name).Disabled {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve validates names. An empty list means every available service.
func (s *SyncService) Resolve(names []string) ([]string, error) {
	if len(names) == 0 {
		return s.Available(), nil
	}
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || slices.Contains(out, n) {
			continue
		}
		if _, ok := s.Registry[n]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownService, n)
		}
		out = append(out, n)
	}
	return out, nil
}

// Build constructs the engine service of name with its connector config.
func (s *SyncService) Build(name string) (engine.Service, error) {
	factory, ok := s.Registry[name]
	if !ok {
		return engine.Service{}, fmt.Errorf("%w: %s", ErrUnknownService, name)
	}
	d := s.Deps
	d.Config = s.Config.Connector(name)
	if d.Logger == nil {
		d.Logger = s.logger()
	}
	return factory(d), nil
}

// EnsureTables creates the warehouse tables of the given services.
func (s *SyncService) EnsureTables(ctx context.Context, names []string) error {
	if s.Warehouse == nil {
		return nil
	}
	for _, name := range names {
		svc, err := s.Build(name)
		if err != nil {
			return err
		}
		for _, j := range svc.Jobs() {
			table := j.Info().Table
			if s.tableEnsured(table) {
				continue
			}
			if err := s.Warehouse.EnsureRawTable(ctx, table); err != nil {
				return fmt.Errorf("ensure %s: %w", table, err)
			}
			s.markEnsured(table)
		}
	}
	return nil
}

// RunAll syncs the requested services concurrently. Services never cancel
// each other; each result reports its own failure.
func (s *SyncService) RunAll(ctx context.Context, req RunRequest) (Summary, error) {
	if err := s.Engine.Validate(); err != nil {
		return Summary{}, err
	}
	if (req.Start == nil) != (req.End == nil) {
		return Summary{}, errors.New("start and end must be given together")
	}
	if req.Start != nil && !req.End.After(*req.Start) {
		return Summary{}, errors.New("end must be after start")
	}
	names, err := s.Resolve(req.Services)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{StartedAt: time.Now().UTC()}
	results := make([]engine.ServiceResult, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			results[i] = s.Run(ctx, name, req)
			return nil
		})
	}
	_ = g.Wait()
	sum.Services = results
	sum.Elapsed = time.Since(sum.StartedAt)
	sum.Success = true
	for _, r := range results {
		if !r.Success() {
			sum.Success = false
		}
	}
	s.logger().Info("sync summary",
		zap.Int("services", len(results)),
		zap.Bool("success", sum.Success),
		zap.Duration("elapsed", sum.Elapsed),
	)
	return sum, nil
}

// Run syncs one service. Overlapping runs of the same service are refused.
func (s *SyncService) Run(ctx context.Context, name string, req RunRequest) engine.ServiceResult {
	if !s.acquire(name) {
		return engine.ServiceResult{Service: name, Err: ErrAlreadyRunning, Error: ErrAlreadyRunning.Error()}
	}
	defer s.release(name)

	if s.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.RunTimeout)
		defer cancel()
	}
	if err := s.EnsureTables(ctx, []string{name}); err != nil {
		return engine.ServiceResult{Service: name, Err: err, Error: err.Error()}
	}
	svc, err := s.Build(name)
	if err != nil {
		return engine.ServiceResult{Service: name, Err: err, Error: err.Error()}
	}
	res := s.Engine.RunService(ctx, svc, req.engineRequest())
	fields := []zap.Field{
		zap.String("service", name),
		zap.Bool("success", res.Success()),
		zap.Int("resources", len(res.Resources)),
		zap.Strings("aborted", res.Aborted),
		zap.Duration("elapsed", res.Elapsed),
	}
	if res.Err != nil {
		s.logger().Warn("service sync finished with errors", append(fields, zap.Error(res.Err))...)
	} else {
		s.logger().Info("service sync finished", fields...)
	}
	return res
}

func (s *SyncService) acquire(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == nil {
		s.running = map[string]bool{}
	}
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

func (s *SyncService) release(name string) {
	s.mu.Lock()
	delete(s.running, name)
	s.mu.Unlock()
}

func (s *SyncService) tableEnsured(table string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensured[table]
}

func (s *SyncService) markEnsured(table string) {
	s.mu.Lock()
	if s.ensured == nil {
		s.ensured = map[string]bool{}
	}
	s.ensured[table] = true
	s.mu.Unlock()
}

func (s *SyncService) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
