package service

import (
	"context"

	"go.uber.org/zap"
)

// RunScheduled is the cron entry point for one service. It does nothing when
// the scheduler or the service switch is off.
func (s *SyncService) RunScheduled(ctx context.Context, name string, settings *SystemSettingsService) {
	if !settings.IsEnabled(ctx, FeatureScheduler, true) {
		s.logger().Debug("scheduler disabled", zap.String("service", name))
		return
	}
	if !settings.IsEnabled(ctx, FeatureSync(name), true) {
		s.logger().Info("scheduled sync disabled", zap.String("service", name))
		return
	}
	if _, err := s.RunAll(ctx, RunRequest{Services: []string{name}}); err != nil {
		s.logger().Warn("scheduled sync failed", zap.String("service", name), zap.Error(err))
	}
}
