package main

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"lifesync/internal/config"
	"lifesync/internal/connector"
	"lifesync/internal/credential"
	"lifesync/internal/db"
	"lifesync/internal/engine"
	"lifesync/internal/progress"
	gormrepository "lifesync/internal/repository/gorm"
	"lifesync/internal/service"
	"lifesync/internal/writer"
)

// app holds the wiring shared by every command.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	db       *db.DB
	store    *gormrepository.Store
	vault    *credential.Vault
	cache    *credential.Cache
	settings *service.SystemSettingsService
	hub      *progress.Hub
	sync     *service.SyncService
}

func newApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		_ = db.Close(dbConn)
		return nil, err
	}
	store := gormrepository.New(dbConn.Gorm)

	sealer, err := credential.NewSealer(cfg.Credentials.EncryptionKey, cfg.Credentials.EncryptionPrevKey)
	if err != nil {
		_ = db.Close(dbConn)
		return nil, err
	}
	if !sealer.Enabled() {
		log.Warn("credentials.encryption_key is empty, credentials are stored unencrypted")
	}
	vault := credential.NewVault(store, sealer, log.Named("vault"))
	cache := credential.NewCache(vault, cfg.Credentials.RefreshThreshold, log.Named("credentials"))

	hub := progress.NewHub(log.Named("progress"))
	loc := cfg.Location()
	eng := &engine.Engine{
		Cursors:            store,
		Logs:               store,
		Writer:             writer.New(store, cfg.Sync.BatchSize, log.Named("writer")),
		Logger:             log.Named("engine"),
		Observer:           engine.Observers(engine.LogObserver(log.Named("engine")), hub),
		Location:           loc,
		LookbackDays:       cfg.Sync.LookbackDays,
		MarginDays:         cfg.Sync.MarginDays,
		MastersConcurrency: cfg.Sync.MastersConcurrency,
	}

	settings := &service.SystemSettingsService{Repo: store}
	syncSvc := &service.SyncService{
		Engine:   eng,
		Registry: service.DefaultRegistry(),
		Deps: connector.Deps{
			Cache:      cache,
			HTTP:       &http.Client{Timeout: 60 * time.Second},
			Logger:     log.Named("connector"),
			Policy:     service.PolicyFromConfig(cfg.Retry),
			Breaker:    service.BreakerFromConfig(cfg.Breaker),
			Location:   loc,
			ChunkDelay: cfg.Sync.ChunkDelay,
			RawSchema:  cfg.DB.RawSchema,
		},
		Config:     cfg,
		Warehouse:  store,
		Logger:     log.Named("sync"),
		RunTimeout: cfg.Sync.RunTimeout,
	}
	if err := settings.EnsureDefaultSwitches(ctx, syncSvc.Available()); err != nil {
		log.Warn("init default feature switches failed", zap.Error(err))
	}

	return &app{
		cfg:      cfg,
		log:      log,
		db:       dbConn,
		store:    store,
		vault:    vault,
		cache:    cache,
		settings: settings,
		hub:      hub,
		sync:     syncSvc,
	}, nil
}

func (a *app) Close() {
	a.hub.Close()
	if err := db.Close(a.db); err != nil {
		a.log.Warn("db close failed", zap.Error(err))
	}
}
