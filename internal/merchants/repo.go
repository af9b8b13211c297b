package merchants

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
	"github.com/angelmondragon/storefront-provisioner/pkg/pagination"
)

// Repository persists merchants.
type Repository interface {
	Create(ctx context.Context, merchant *models.Merchant) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error)
	UpdateSettings(ctx context.Context, merchant *models.Merchant) error
	UpdateStatus(ctx context.Context, merchant *models.Merchant, from enums.MerchantStatus) (bool, error)
	List(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Merchant, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a merchant repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, merchant *models.Merchant) error {
	return r.db.WithContext(ctx).Create(merchant).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error) {
	var merchant models.Merchant
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&merchant).Error; err != nil {
		return nil, err
	}
	return &merchant, nil
}

// UpdateSettings writes only the settings column and returns
// gorm.ErrRecordNotFound when the row is gone.
func (r *repository) UpdateSettings(ctx context.Context, merchant *models.Merchant) error {
	res := r.db.WithContext(ctx).
		Model(&models.Merchant{}).
		Where("id = ?", merchant.ID).
		Updates(map[string]any{
			"settings":   merchant.Settings,
			"updated_at": merchant.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateStatus moves the merchant to merchant.Status only while the stored
// status is still from.
func (r *repository) UpdateStatus(ctx context.Context, merchant *models.Merchant, from enums.MerchantStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Merchant{}).
		Where("id = ? AND status = ?", merchant.ID, from).
		Updates(map[string]any{
			"status":     merchant.Status,
			"updated_at": merchant.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// List returns up to limit merchants, newest first, strictly after cursor.
func (r *repository) List(ctx context.Context, limit int, cursor *pagination.Cursor) ([]models.Merchant, error) {
	var rows []models.Merchant
	query := r.db.WithContext(ctx).Model(&models.Merchant{})
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
