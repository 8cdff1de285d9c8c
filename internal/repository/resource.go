package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"atrium/internal/models"
	"atrium/internal/observability"
)

// ResourceRepository gives the entitlement engine a uniform view over the
// gate-able resource tables.
type ResourceRepository interface {
	WithTx(tx *gorm.DB) ResourceRepository

	// Exists reports whether the referenced resource row is present.
	Exists(ctx context.Context, ref models.ResourceRef) (bool, error)
	// OwnerID returns the id of the user who owns the referenced resource.
	OwnerID(ctx context.Context, ref models.ResourceRef) (uint, error)
	// SetAvailability writes the denormalized gate flag on the resource row.
	SetAvailability(ctx context.Context, ref models.ResourceRef, availability models.Availability) error
	// DisplayTitles resolves human-readable titles for a batch of refs.
	DisplayTitles(ctx context.Context, refs []models.ResourceRef) (map[models.ResourceRef]string, error)
}

type resourceRepository struct {
	db *gorm.DB
}

func NewResourceRepository(db *gorm.DB) ResourceRepository {
	return &resourceRepository{db: db}
}

func (r *resourceRepository) WithTx(tx *gorm.DB) ResourceRepository {
	return &resourceRepository{db: tx}
}

// resourceTable maps an entity type to its model and title column.
func resourceTable(t models.EntityType) (model interface{}, titleColumn string, ok bool) {
	switch t {
	case models.EntityTypeModelVersion:
		return &models.ModelVersion{}, "name", true
	case models.EntityTypeArticle:
		return &models.Article{}, "title", true
	case models.EntityTypePost:
		return &models.Post{}, "title", true
	}
	return nil, "", false
}

func (r *resourceRepository) Exists(ctx context.Context, ref models.ResourceRef) (bool, error) {
	model, _, ok := resourceTable(ref.EntityType)
	if !ok {
		return false, models.NewValidationError("unknown entity type: " + string(ref.EntityType))
	}
	var count int64
	err := r.db.WithContext(ctx).Model(model).Where("id = ?", ref.EntityID).Count(&count).Error
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return count > 0, nil
}

func (r *resourceRepository) OwnerID(ctx context.Context, ref models.ResourceRef) (uint, error) {
	model, _, ok := resourceTable(ref.EntityType)
	if !ok {
		return 0, models.NewValidationError("unknown entity type: " + string(ref.EntityType))
	}
	var ownerID uint
	err := r.db.WithContext(ctx).Model(model).
		Select("user_id").
		Where("id = ?", ref.EntityID).
		Take(&ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, models.NewNotFoundError(string(ref.EntityType), ref.EntityID)
	}
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return ownerID, nil
}

func (r *resourceRepository) SetAvailability(ctx context.Context, ref models.ResourceRef, availability models.Availability) error {
	model, _, ok := resourceTable(ref.EntityType)
	if !ok {
		return models.NewValidationError("unknown entity type: " + string(ref.EntityType))
	}
	result := r.db.WithContext(ctx).Model(model).
		Where("id = ?", ref.EntityID).
		Update("availability", availability)
	if result.Error != nil {
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError(string(ref.EntityType), ref.EntityID)
	}
	observability.AvailabilityFlips.WithLabelValues(string(ref.EntityType), string(availability)).Inc()
	return nil
}

func (r *resourceRepository) DisplayTitles(ctx context.Context, refs []models.ResourceRef) (map[models.ResourceRef]string, error) {
	titles := make(map[models.ResourceRef]string, len(refs))
	if len(refs) == 0 {
		return titles, nil
	}

	byType := make(map[models.EntityType][]uint)
	for _, ref := range refs {
		byType[ref.EntityType] = append(byType[ref.EntityType], ref.EntityID)
	}

	type titleRow struct {
		ID    uint
		Title string
	}
	for entityType, ids := range byType {
		model, titleColumn, ok := resourceTable(entityType)
		if !ok {
			continue
		}
		var rows []titleRow
		err := readDB(r.db).WithContext(ctx).Model(model).
			Select("id", titleColumn+" AS title").
			Where("id IN ?", ids).
			Find(&rows).Error
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		for _, row := range rows {
			titles[models.ResourceRef{EntityID: row.ID, EntityType: entityType}] = row.Title
		}
	}
	return titles, nil
}
