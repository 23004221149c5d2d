package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	cronrunner "lifesync/internal/cron"
	"lifesync/internal/handler"

	_ "lifesync/docs"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the sync scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, root.cfg, root.log)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(ctx, a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	cfg, logger := a.cfg, a.log
	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(handler.RequireBearer(cfg.Server.APIToken))
	engine.Use(handler.AuditWrites(logger.Named("audit")))
	if strings.TrimSpace(cfg.Server.APIToken) == "" {
		logger.Warn("server.api_token is empty, /api is not protected")
	}

	healthHandler := &handler.HealthHandler{
		Ping:      a.db.SQL.PingContext,
		Encrypted: a.vault.Encrypted,
		Services:  a.sync.Available,
	}
	healthHandler.Register(engine)
	syncHandler := &handler.SyncHandler{
		Sync:       a.sync,
		Cursors:    a.store,
		Logs:       a.store,
		Stream:     a.hub,
		Location:   cfg.Location(),
		Logger:     logger.Named("api"),
		Background: ctx,
	}
	syncHandler.Register(engine)
	credentialsHandler := &handler.CredentialsHandler{Vault: a.vault, Cache: a.cache}
	credentialsHandler.Register(engine)
	settingsHandler := &handler.SettingsHandler{Settings: a.settings}
	settingsHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cronRunner := cronrunner.New(logger.Named("cron"), ctx)
	if cfg.Cron.Enabled {
		n, err := cronRunner.ScheduleServices(cfg.Cron, a.sync.Available(), func(ctx context.Context, name string) {
			a.sync.RunScheduled(ctx, name, a.settings)
		})
		if err != nil {
			logger.Warn("cron register failed", zap.Error(err))
		}
		logger.Info("cron jobs registered", zap.Int("jobs", n))
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case serveErr = <-errCh:
		logger.Error("server error", zap.Error(serveErr))
	}

	// Websocket clients hold connections open; close them before Shutdown waits.
	a.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return serveErr
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
