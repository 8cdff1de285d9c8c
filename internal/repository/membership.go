package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"atrium/internal/models"
	"atrium/internal/observability"
)

// MembershipRepository manages club membership rows.
type MembershipRepository interface {
	WithTx(tx *gorm.DB) MembershipRepository

	Get(ctx context.Context, clubID, userID uint) (*models.ClubMembership, error)
	Create(ctx context.Context, membership *models.ClubMembership) error
	Update(ctx context.Context, membership *models.ClubMembership) error
	Delete(ctx context.Context, clubID, userID uint) error
	DeleteByClub(ctx context.Context, clubID uint) error

	CountActiveByTier(ctx context.Context, tierID uint) (int64, error)
	CountActiveByTiers(ctx context.Context, tierIDs []uint) (int64, error)
	ListByClub(ctx context.Context, clubID uint, limit, offset int) ([]models.ClubMembership, error)
	ListByUser(ctx context.Context, userID uint) ([]models.ClubMembership, error)
}

type membershipRepository struct {
	db *gorm.DB
}

func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

func (r *membershipRepository) WithTx(tx *gorm.DB) MembershipRepository {
	return &membershipRepository{db: tx}
}

func (r *membershipRepository) Get(ctx context.Context, clubID, userID uint) (*models.ClubMembership, error) {
	var membership models.ClubMembership
	err := readDB(r.db).WithContext(ctx).
		Where("club_id = ? AND user_id = ?", clubID, userID).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &membership, nil
}

func (r *membershipRepository) Create(ctx context.Context, membership *models.ClubMembership) error {
	if err := r.db.WithContext(ctx).Create(membership).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *membershipRepository) Update(ctx context.Context, membership *models.ClubMembership) error {
	if err := r.db.WithContext(ctx).Save(membership).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *membershipRepository) Delete(ctx context.Context, clubID, userID uint) error {
	err := r.db.WithContext(ctx).
		Where("club_id = ? AND user_id = ?", clubID, userID).
		Delete(&models.ClubMembership{}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *membershipRepository) DeleteByClub(ctx context.Context, clubID uint) error {
	err := r.db.WithContext(ctx).
		Where("club_id = ?", clubID).
		Delete(&models.ClubMembership{}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *membershipRepository) CountActiveByTier(ctx context.Context, tierID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ClubMembership{}).
		Where("tier_id = ? AND status = ?", tierID, models.ClubMembershipStatusActive).
		Count(&count).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *membershipRepository) CountActiveByTiers(ctx context.Context, tierIDs []uint) (int64, error) {
	if len(tierIDs) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ClubMembership{}).
		Where("tier_id IN ? AND status = ?", tierIDs, models.ClubMembershipStatusActive).
		Count(&count).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *membershipRepository) ListByUser(ctx context.Context, userID uint) ([]models.ClubMembership, error) {
	defer observability.TrackQuery("select", "club_memberships")()
	var memberships []models.ClubMembership
	err := readDB(r.db).WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&memberships).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return memberships, nil
}

func (r *membershipRepository) ListByClub(ctx context.Context, clubID uint, limit, offset int) ([]models.ClubMembership, error) {
	var memberships []models.ClubMembership
	err := readDB(r.db).WithContext(ctx).
		Preload("User").
		Preload("Tier").
		Where("club_id = ?", clubID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&memberships).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return memberships, nil
}
