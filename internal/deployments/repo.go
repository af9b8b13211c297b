package deployments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
)

// Repository persists deployments, one per merchant.
type Repository interface {
	CreateIfAbsent(ctx context.Context, d *models.Deployment) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Deployment, error)
	FindByMerchant(ctx context.Context, merchantID uuid.UUID) (*models.Deployment, error)
	// UpdateRevision writes every column of d only when the stored row is
	// still at revision expected.
	UpdateRevision(ctx context.Context, d *models.Deployment, expected int) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a deployment repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateIfAbsent(ctx context.Context, d *models.Deployment) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "merchant_id"}}, DoNothing: true}).
		Create(d)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindByID returns gorm.ErrRecordNotFound when absent.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Deployment, error) {
	var d models.Deployment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

// FindByMerchant returns (nil, nil) when the merchant has no deployment.
func (r *repository) FindByMerchant(ctx context.Context, merchantID uuid.UUID) (*models.Deployment, error) {
	var d models.Deployment
	if err := r.db.WithContext(ctx).Where("merchant_id = ?", merchantID).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *repository) UpdateRevision(ctx context.Context, d *models.Deployment, expected int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(d).
		Where("revision = ?", expected).
		Select("*").
		Omit("id", "merchant_id", "created_at").
		Updates(d)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
