package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Fi44er/cashier_bot/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedTenantConfig inserts defaults for a tenant that has no row yet.
// An existing row is never overwritten.
func (r *Repository) SeedTenantConfig(ctx context.Context, cfg *models.TenantConfig) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			DoNothing: true,
		}).
		Create(cfg).Error
	if err != nil {
		return fmt.Errorf("failed to seed tenant config %s: %w", cfg.TenantID, err)
	}
	return nil
}

func (r *Repository) GetTenantConfig(ctx context.Context, tenantID string) (*models.TenantConfig, error) {
	var cfg models.TenantConfig
	err := r.db.WithContext(ctx).First(&cfg, "tenant_id = ?", tenantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tenant config %s: %w", tenantID, err)
	}
	return &cfg, nil
}

// UpdateTenantConfig applies mutate to the locked row and saves it.
func (r *Repository) UpdateTenantConfig(ctx context.Context, tenantID string, mutate func(*models.TenantConfig) error) (*models.TenantConfig, error) {
	var cfg models.TenantConfig
	err := r.atomically(ctx, "update tenant config", func(tx *gorm.DB) error {
		if err := forUpdate(tx).First(&cfg, "tenant_id = ?", tenantID).Error; err != nil {
			return fmt.Errorf("failed to lock tenant config %s: %w", tenantID, err)
		}
		if err := mutate(&cfg); err != nil {
			return err
		}
		return tx.Save(&cfg).Error
	})
	if err != nil {
		return nil, err
	}
	r.logger.Infof("Tenant config %s updated", tenantID)
	return &cfg, nil
}
