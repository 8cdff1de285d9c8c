package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"atrium/internal/models"
)

// TierFilter narrows a tier listing. Zero value lists everything.
type TierFilter struct {
	ListedOnly   bool
	JoinableOnly bool
}

// TierRepository manages membership tiers.
type TierRepository interface {
	WithTx(tx *gorm.DB) TierRepository

	GetByID(ctx context.Context, id uint) (*models.ClubTier, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.ClubTier, error)
	ListByClubs(ctx context.Context, clubIDs []uint, filter TierFilter) ([]models.ClubTier, error)
	TierIDsByClubs(ctx context.Context, clubIDs []uint) ([]uint, error)
	NamesByID(ctx context.Context, ids []uint) (map[uint]string, error)

	// Create inserts a tier, silently skipping the insert when a tier with
	// the same name already exists in the club.
	Create(ctx context.Context, tier *models.ClubTier) error
	Update(ctx context.Context, tier *models.ClubTier) error
	DeleteByIDs(ctx context.Context, clubID uint, ids []uint) error
}

type tierRepository struct {
	db *gorm.DB
}

func NewTierRepository(db *gorm.DB) TierRepository {
	return &tierRepository{db: db}
}

func (r *tierRepository) WithTx(tx *gorm.DB) TierRepository {
	return &tierRepository{db: tx}
}

func (r *tierRepository) GetByID(ctx context.Context, id uint) (*models.ClubTier, error) {
	var tier models.ClubTier
	err := readDB(r.db).WithContext(ctx).First(&tier, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Club tier", id)
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &tier, nil
}

func (r *tierRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.ClubTier, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var tiers []models.ClubTier
	err := readDB(r.db).WithContext(ctx).Where("id IN ?", ids).Find(&tiers).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return tiers, nil
}

func (r *tierRepository) ListByClubs(ctx context.Context, clubIDs []uint, filter TierFilter) ([]models.ClubTier, error) {
	if len(clubIDs) == 0 {
		return nil, nil
	}
	query := readDB(r.db).WithContext(ctx).Where("club_id IN ?", clubIDs)
	if filter.ListedOnly {
		query = query.Where("unlisted = ?", false)
	}
	if filter.JoinableOnly {
		query = query.Where("joinable = ?", true)
	}
	var tiers []models.ClubTier
	if err := query.Order("club_id ASC, price_cents ASC, id ASC").Find(&tiers).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return tiers, nil
}

func (r *tierRepository) TierIDsByClubs(ctx context.Context, clubIDs []uint) ([]uint, error) {
	if len(clubIDs) == 0 {
		return nil, nil
	}
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.ClubTier{}).
		Where("club_id IN ?", clubIDs).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return ids, nil
}

func (r *tierRepository) NamesByID(ctx context.Context, ids []uint) (map[uint]string, error) {
	if len(ids) == 0 {
		return map[uint]string{}, nil
	}
	var rows []models.ClubTier
	err := readDB(r.db).WithContext(ctx).
		Select("id", "name").
		Where("id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	names := make(map[uint]string, len(rows))
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}

func (r *tierRepository) Create(ctx context.Context, tier *models.ClubTier) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "club_id"}, {Name: "name"}},
			DoNothing: true,
		}).
		Create(tier).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *tierRepository) Update(ctx context.Context, tier *models.ClubTier) error {
	if err := r.db.WithContext(ctx).Save(tier).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *tierRepository) DeleteByIDs(ctx context.Context, clubID uint, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Where("club_id = ? AND id IN ?", clubID, ids).
		Delete(&models.ClubTier{}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
