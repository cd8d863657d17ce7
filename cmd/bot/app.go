package main

import (
	"context"
	"fmt"

	"github.com/Fi44er/cashier_bot/config"
	"github.com/Fi44er/cashier_bot/db"
	"github.com/Fi44er/cashier_bot/internal/events"
	"github.com/Fi44er/cashier_bot/internal/repository"
	"github.com/Fi44er/cashier_bot/internal/service"
	"github.com/Fi44er/cashier_bot/internal/settlement"
	"github.com/Fi44er/cashier_bot/utils"
	"gorm.io/gorm"
)

// app holds everything the subcommands share.
type app struct {
	cfg       config.Config
	logger    *utils.Logger
	db        *gorm.DB
	settings  *service.SettingsStore
	publisher events.Publisher
	service   *service.Service
}

func bootstrap(ctx context.Context, envPath string) (*app, error) {
	cfg, err := config.LoadConfig(envPath)
	if err != nil {
		return nil, err
	}
	logger := utils.InitLogger(cfg.LogLevel)

	if cfg.DB_URL == "" {
		return nil, fmt.Errorf("DB_URL is required")
	}
	database, err := db.ConnectDb(cfg.DB_URL, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database, cfg.Migrate, logger); err != nil {
		return nil, err
	}

	repo := repository.NewRepository(database, logger)
	settings := service.NewSettingsStore(cfg.TenantID, repo, logger)
	if _, err := settings.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load tenant settings: %w", err)
	}

	platform := settlement.NewClient(cfg.SettlementBaseURL, cfg.TenantID, cfg.SettlementTimeout, settings.Credentials, logger)
	publisher := events.New(cfg.AMQPURL, cfg.EventsExchange, logger)

	svc := service.NewService(repo, settings, platform, publisher, service.Options{
		TenantID:         cfg.TenantID,
		ReferralMaturity: cfg.ReferralMaturity,
		BTCXPub:          cfg.BTCXPub,
		BTCNetwork:       cfg.BTCNetwork,
	}, logger)

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        database,
		settings:  settings,
		publisher: publisher,
		service:   svc,
	}, nil
}

func (a *app) pingDB(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (a *app) close() {
	a.publisher.Close()
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
