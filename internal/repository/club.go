package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"atrium/internal/models"
)

// ClubRepository manages clubs and their admin rows.
type ClubRepository interface {
	WithTx(tx *gorm.DB) ClubRepository

	GetByID(ctx context.Context, id uint) (*models.Club, error)
	GetBySlug(ctx context.Context, slug string) (*models.Club, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]models.Club, error)
	NamesByID(ctx context.Context, ids []uint) (map[uint]string, error)

	Create(ctx context.Context, club *models.Club) error
	Update(ctx context.Context, club *models.Club) error
	Delete(ctx context.Context, id uint) error

	// LockByID loads the club row with a row lock. Callers must hold a
	// transaction; the lock is the serialization point between tier edits
	// and grant writes against the same club.
	LockByID(ctx context.Context, id uint) (*models.Club, error)

	// AdminRow returns the admin row for a user in a club, or nil when the
	// user holds no adminship there.
	AdminRow(ctx context.Context, clubID, userID uint) (*models.ClubAdmin, error)
	ListAdmins(ctx context.Context, clubID uint) ([]models.ClubAdmin, error)
	UpsertAdmin(ctx context.Context, admin *models.ClubAdmin) error
	RemoveAdmin(ctx context.Context, clubID, userID uint) error
	RemoveAdminsByClub(ctx context.Context, clubID uint) error

	// ContributingClubIDs returns the ids of every club the user owns or
	// administers, deduplicated.
	ContributingClubIDs(ctx context.Context, userID uint) ([]uint, error)
}

type clubRepository struct {
	db *gorm.DB
}

func NewClubRepository(db *gorm.DB) ClubRepository {
	return &clubRepository{db: db}
}

func (r *clubRepository) WithTx(tx *gorm.DB) ClubRepository {
	return &clubRepository{db: tx}
}

func (r *clubRepository) GetByID(ctx context.Context, id uint) (*models.Club, error) {
	var club models.Club
	err := readDB(r.db).WithContext(ctx).First(&club, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Club", id)
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &club, nil
}

func (r *clubRepository) GetBySlug(ctx context.Context, slug string) (*models.Club, error) {
	var club models.Club
	err := readDB(r.db).WithContext(ctx).Where("slug = ?", slug).First(&club).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Club", slug)
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &club, nil
}

func (r *clubRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Club{}).Where("slug = ?", slug).Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *clubRepository) List(ctx context.Context, limit, offset int) ([]models.Club, error) {
	var clubs []models.Club
	err := readDB(r.db).WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&clubs).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return clubs, nil
}

func (r *clubRepository) NamesByID(ctx context.Context, ids []uint) (map[uint]string, error) {
	if len(ids) == 0 {
		return map[uint]string{}, nil
	}
	var rows []models.Club
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

func (r *clubRepository) Create(ctx context.Context, club *models.Club) error {
	if err := r.db.WithContext(ctx).Create(club).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *clubRepository) Update(ctx context.Context, club *models.Club) error {
	if err := r.db.WithContext(ctx).Save(club).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *clubRepository) Delete(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&models.Club{}, id).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *clubRepository) LockByID(ctx context.Context, id uint) (*models.Club, error) {
	query := r.db.WithContext(ctx)
	// Row locks only exist on postgres; sqlite serializes writers itself.
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var club models.Club
	err := query.First(&club, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.NewNotFoundError("Club", id)
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &club, nil
}

func (r *clubRepository) AdminRow(ctx context.Context, clubID, userID uint) (*models.ClubAdmin, error) {
	var admin models.ClubAdmin
	err := readDB(r.db).WithContext(ctx).
		Where("club_id = ? AND user_id = ?", clubID, userID).
		First(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return &admin, nil
}

func (r *clubRepository) ListAdmins(ctx context.Context, clubID uint) ([]models.ClubAdmin, error) {
	var admins []models.ClubAdmin
	err := readDB(r.db).WithContext(ctx).
		Preload("User").
		Where("club_id = ?", clubID).
		Find(&admins).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return admins, nil
}

func (r *clubRepository) UpsertAdmin(ctx context.Context, admin *models.ClubAdmin) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "club_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"permissions", "updated_at"}),
		}).
		Create(admin).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *clubRepository) RemoveAdmin(ctx context.Context, clubID, userID uint) error {
	err := r.db.WithContext(ctx).
		Where("club_id = ? AND user_id = ?", clubID, userID).
		Delete(&models.ClubAdmin{}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *clubRepository) RemoveAdminsByClub(ctx context.Context, clubID uint) error {
	err := r.db.WithContext(ctx).
		Where("club_id = ?", clubID).
		Delete(&models.ClubAdmin{}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *clubRepository) ContributingClubIDs(ctx context.Context, userID uint) ([]uint, error) {
	db := readDB(r.db).WithContext(ctx)

	var owned []uint
	if err := db.Model(&models.Club{}).Where("owner_user_id = ?", userID).Pluck("id", &owned).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	var administered []uint
	if err := db.Model(&models.ClubAdmin{}).Where("user_id = ?", userID).Pluck("club_id", &administered).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	seen := make(map[uint]struct{}, len(owned)+len(administered))
	ids := make([]uint, 0, len(owned)+len(administered))
	for _, id := range append(owned, administered...) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
