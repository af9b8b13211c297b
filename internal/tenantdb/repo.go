package tenantdb

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

// Repository persists tenant database configs, one per merchant.
type Repository interface {
	CreateIfAbsent(ctx context.Context, cfg *models.TenantDatabase) (bool, error)
	FindByMerchant(ctx context.Context, merchantID uuid.UUID) (*models.TenantDatabase, error)
	MarkProvisioning(ctx context.Context, id uuid.UUID) error
	ClaimNamespace(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkReady(ctx context.Context, id uuid.UUID, collections []string, at time.Time) error
	MarkError(ctx context.Context, id uuid.UUID, lastError string) error
	ListByStatus(ctx context.Context, status enums.TenantDatabaseStatus, limit int) ([]models.TenantDatabase, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a tenant database repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// CreateIfAbsent inserts cfg unless the merchant already has a config and
// reports whether the insert happened.
func (r *repository) CreateIfAbsent(ctx context.Context, cfg *models.TenantDatabase) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "merchant_id"}}, DoNothing: true}).
		Create(cfg)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindByMerchant returns (nil, nil) when the merchant has no config.
func (r *repository) FindByMerchant(ctx context.Context, merchantID uuid.UUID) (*models.TenantDatabase, error) {
	var cfg models.TenantDatabase
	if err := r.db.WithContext(ctx).Where("merchant_id = ?", merchantID).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *repository) MarkProvisioning(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.TenantDatabase{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.TenantDatabaseStatusProvisioning,
			"last_error": nil,
		}).Error
}

// ClaimNamespace keeps the first claim time when called again.
func (r *repository) ClaimNamespace(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.TenantDatabase{}).
		Where("id = ? AND namespace_claimed_at IS NULL", id).
		Update("namespace_claimed_at", at).Error
}

func (r *repository) MarkReady(ctx context.Context, id uuid.UUID, collections []string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.TenantDatabase{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         enums.TenantDatabaseStatusReady,
			"last_error":     nil,
			"collections":    datatypes.NewJSONSlice(collections),
			"provisioned_at": at,
		}).Error
}

func (r *repository) MarkError(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&models.TenantDatabase{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.TenantDatabaseStatusError,
			"last_error": lastError,
		}).Error
}

func (r *repository) ListByStatus(ctx context.Context, status enums.TenantDatabaseStatus, limit int) ([]models.TenantDatabase, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.TenantDatabase
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
