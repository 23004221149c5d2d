package cronrunner

import (
	"context"
	"fmt"
	"sort"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"lifesync/internal/config"
)

type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		// A run still in progress makes the next tick a no-op.
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		job(r.baseCtx)
	})
}

// ScheduleServices adds one job per service using cfg.Spec(service). Services
// without a schedule are skipped. Returns the number of jobs added.
func (r *Runner) ScheduleServices(cfg config.CronConfig, services []string, run func(ctx context.Context, service string)) (int, error) {
	names := append([]string(nil), services...)
	sort.Strings(names)
	added := 0
	for _, name := range names {
		spec := cfg.Spec(name)
		if spec == "" {
			r.logger.Info("no schedule for service", zap.String("service", name))
			continue
		}
		if _, err := r.Add(spec, func(ctx context.Context) { run(ctx, name) }); err != nil {
			return added, fmt.Errorf("schedule %s (%q): %w", name, spec, err)
		}
		r.logger.Info("service scheduled", zap.String("service", name), zap.String("spec", spec))
		added++
	}
	return added, nil
}

func (r *Runner) Entries() int {
	return len(r.cron.Entries())
}

func (r *Runner) Start() {
	r.logger.Info("cron started")
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("cron stopped")
}
