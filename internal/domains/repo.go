package domains

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

// Repository persists domain configurations, one per merchant.
type Repository interface {
	CreateIfAbsent(ctx context.Context, cfg *models.DomainConfiguration) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.DomainConfiguration, error)
	FindByMerchant(ctx context.Context, merchantID uuid.UUID) (*models.DomainConfiguration, error)
	FindByDomain(ctx context.Context, domain string) (*models.DomainConfiguration, error)
	RecordCheck(ctx context.Context, cfg *models.DomainConfiguration) error
	Delete(ctx context.Context, id uuid.UUID) (*models.DomainConfiguration, error)
	ListUnverified(ctx context.Context, limit int) ([]models.DomainConfiguration, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a domain configuration repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateIfAbsent(ctx context.Context, cfg *models.DomainConfiguration) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "merchant_id"}}, DoNothing: true}).
		Create(cfg)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindByID returns (nil, nil) when absent.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.DomainConfiguration, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *repository) FindByMerchant(ctx context.Context, merchantID uuid.UUID) (*models.DomainConfiguration, error) {
	return r.first(r.db.WithContext(ctx).Where("merchant_id = ?", merchantID))
}

func (r *repository) FindByDomain(ctx context.Context, domain string) (*models.DomainConfiguration, error) {
	return r.first(r.db.WithContext(ctx).Where("domain = ?", domain))
}

func (r *repository) first(query *gorm.DB) (*models.DomainConfiguration, error) {
	var cfg models.DomainConfiguration
	if err := query.First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// RecordCheck writes the outcome of a DNS check onto a row that still exists
// and is not verified yet. It returns gorm.ErrRecordNotFound when no such row
// matched, so a removed configuration is never written back.
func (r *repository) RecordCheck(ctx context.Context, cfg *models.DomainConfiguration) error {
	res := r.db.WithContext(ctx).
		Model(&models.DomainConfiguration{}).
		Where("id = ? AND verified = ?", cfg.ID, false).
		Updates(map[string]any{
			"status":               cfg.Status,
			"configured_correctly": cfg.ConfiguredCorrectly,
			"record_checks":        cfg.RecordChecks,
			"verified":             cfg.Verified,
			"verified_at":          cfg.VerifiedAt,
			"last_checked_at":      cfg.LastCheckedAt,
			"updated_at":           cfg.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes the row and returns what was deleted, or (nil, nil) when
// there was nothing to delete.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) (*models.DomainConfiguration, error) {
	var deleted *models.DomainConfiguration
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cfg models.DomainConfiguration
		if err := tx.Where("id = ?", id).First(&cfg).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := tx.Delete(&models.DomainConfiguration{}, "id = ?", id).Error; err != nil {
			return err
		}
		deleted = &cfg
		return nil
	})
	return deleted, err
}

// ListUnverified returns configurations still waiting on DNS, least recently
// checked first.
func (r *repository) ListUnverified(ctx context.Context, limit int) ([]models.DomainConfiguration, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.DomainConfiguration
	err := r.db.WithContext(ctx).
		Where("status <> ?", enums.DomainStatusVerified).
		Order("last_checked_at IS NOT NULL, last_checked_at ASC, created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
