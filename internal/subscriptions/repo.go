package subscriptions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-provisioner/pkg/db/models"
	"github.com/angelmondragon/storefront-provisioner/pkg/enums"
)

// Repository persists subscriptions. There is at most one row per merchant.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByMerchant(ctx context.Context, merchantID uuid.UUID) (*models.Subscription, error)
	CreateIfAbsent(ctx context.Context, sub *models.Subscription) (bool, error)
	UpdateWhere(ctx context.Context, sub *models.Subscription, guard Guard) (bool, error)
	ListDue(ctx context.Context, before time.Time, limit int) ([]models.Subscription, error)
}

// Guard is an optimistic precondition on the stored row.
type Guard struct {
	Status       *enums.SubscriptionStatus
	RenewalCount *int
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindByMerchant returns (nil, nil) when the merchant has no subscription.
func (r *repository) FindByMerchant(ctx context.Context, merchantID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("merchant_id = ?", merchantID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// CreateIfAbsent inserts sub unless the merchant already has a row and reports
// whether the insert happened.
func (r *repository) CreateIfAbsent(ctx context.Context, sub *models.Subscription) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "merchant_id"}}, DoNothing: true}).
		Create(sub)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateWhere writes every column of sub only when the stored row still
// satisfies guard.
func (r *repository) UpdateWhere(ctx context.Context, sub *models.Subscription, guard Guard) (bool, error) {
	query := r.db.WithContext(ctx).Model(sub)
	if guard.Status != nil {
		query = query.Where("status = ?", *guard.Status)
	}
	if guard.RenewalCount != nil {
		query = query.Where("renewal_count = ?", *guard.RenewalCount)
	}
	res := query.Select("*").Omit("id", "merchant_id", "created_at").Updates(sub)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListDue returns active subscriptions whose current period ended at or before
// the cutoff, oldest first.
func (r *repository) ListDue(ctx context.Context, before time.Time, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	var subs []models.Subscription
	err := r.db.WithContext(ctx).
		Where("status = ?", enums.SubscriptionStatusActive).
		Where("current_period_end <= ?", before).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&subs).Error
	if err != nil {
		return nil, err
	}
	return subs, nil
}
