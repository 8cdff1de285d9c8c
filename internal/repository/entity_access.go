package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"atrium/internal/models"
	"atrium/internal/observability"
)

// AccessorScope identifies the club and tier accessor rows a bulk operation
// is allowed to touch. Rows granted by clubs outside the scope are left
// untouched.
type AccessorScope struct {
	ClubIDs []uint
	TierIDs []uint
}

// Empty reports whether the scope selects no accessor rows at all.
func (s AccessorScope) Empty() bool {
	return len(s.ClubIDs) == 0 && len(s.TierIDs) == 0
}

// EntityAccessRepository manages grant rows linking resources to the clubs,
// tiers, and users entitled to them.
type EntityAccessRepository interface {
	// WithTx returns a copy of the repository bound to the given transaction.
	WithTx(tx *gorm.DB) EntityAccessRepository

	ListForEntity(ctx context.Context, ref models.ResourceRef) ([]models.EntityAccess, error)
	ListForEntities(ctx context.Context, refs []models.ResourceRef) ([]models.EntityAccess, error)
	CountForEntity(ctx context.Context, ref models.ResourceRef) (int64, error)

	// DeleteScoped removes grant rows for a single resource whose accessor
	// falls inside the given scope.
	DeleteScoped(ctx context.Context, ref models.ResourceRef, scope AccessorScope) error
	// DeleteUserGrant removes a direct user grant for a single resource.
	DeleteUserGrant(ctx context.Context, ref models.ResourceRef, userID uint) error

	// BulkCreate inserts grant rows, silently skipping rows that already
	// exist.
	BulkCreate(ctx context.Context, rows []models.EntityAccess) error

	// ListByAccessors returns every grant row, across all resources, whose
	// accessor falls inside the scope.
	ListByAccessors(ctx context.Context, scope AccessorScope) ([]models.EntityAccess, error)
	// DeleteByAccessors removes every grant row whose accessor falls inside
	// the scope, across all resources.
	DeleteByAccessors(ctx context.Context, scope AccessorScope) error
}

type entityAccessRepository struct {
	db    *gorm.DB
	audit *observability.GrantAuditLogger
}

func NewEntityAccessRepository(db *gorm.DB) EntityAccessRepository {
	return &entityAccessRepository{db: db, audit: observability.NewGrantAuditLogger("entity_accesses")}
}

func (r *entityAccessRepository) WithTx(tx *gorm.DB) EntityAccessRepository {
	return &entityAccessRepository{db: tx, audit: r.audit}
}

func (r *entityAccessRepository) ListForEntity(ctx context.Context, ref models.ResourceRef) ([]models.EntityAccess, error) {
	defer observability.TrackQuery("select", "entity_accesses")()
	var rows []models.EntityAccess
	err := readDB(r.db).WithContext(ctx).
		Where("access_to_id = ? AND access_to_type = ?", ref.EntityID, ref.EntityType).
		Find(&rows).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return rows, nil
}

func (r *entityAccessRepository) ListForEntities(ctx context.Context, refs []models.ResourceRef) ([]models.EntityAccess, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	// Group the refs by entity type so each type becomes one IN clause.
	byType := make(map[models.EntityType][]uint)
	for _, ref := range refs {
		byType[ref.EntityType] = append(byType[ref.EntityType], ref.EntityID)
	}

	db := readDB(r.db)
	cond := db.Session(&gorm.Session{NewDB: true})
	first := true
	for entityType, ids := range byType {
		group := db.Session(&gorm.Session{NewDB: true}).
			Where("access_to_type = ? AND access_to_id IN ?", entityType, ids)
		if first {
			cond = cond.Where(group)
			first = false
		} else {
			cond = cond.Or(group)
		}
	}

	var rows []models.EntityAccess
	if err := db.WithContext(ctx).Where(cond).Find(&rows).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return rows, nil
}

func (r *entityAccessRepository) CountForEntity(ctx context.Context, ref models.ResourceRef) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.EntityAccess{}).
		Where("access_to_id = ? AND access_to_type = ?", ref.EntityID, ref.EntityType).
		Count(&count).Error
	if err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

func (r *entityAccessRepository) DeleteScoped(ctx context.Context, ref models.ResourceRef, scope AccessorScope) error {
	if scope.Empty() {
		return nil
	}
	query := r.db.WithContext(ctx).
		Where("access_to_id = ? AND access_to_type = ?", ref.EntityID, ref.EntityType).
		Where(accessorCondition(r.db, scope))
	if err := query.Delete(&models.EntityAccess{}).Error; err != nil {
		r.audit.LogError(ctx, err, "delete_scoped")
		return models.NewInternalError(err)
	}
	r.audit.LogDelete(ctx, map[string]interface{}{
		"entity_id":   ref.EntityID,
		"entity_type": ref.EntityType,
		"club_ids":    scope.ClubIDs,
		"tier_ids":    scope.TierIDs,
	})
	return nil
}

func (r *entityAccessRepository) DeleteUserGrant(ctx context.Context, ref models.ResourceRef, userID uint) error {
	err := r.db.WithContext(ctx).
		Where("access_to_id = ? AND access_to_type = ? AND accessor_id = ? AND accessor_type = ?",
			ref.EntityID, ref.EntityType, userID, models.AccessorTypeUser).
		Delete(&models.EntityAccess{}).Error
	if err != nil {
		r.audit.LogError(ctx, err, "delete_user_grant")
		return models.NewInternalError(err)
	}
	r.audit.LogDelete(ctx, map[string]interface{}{
		"entity_id":   ref.EntityID,
		"entity_type": ref.EntityType,
		"user_id":     userID,
	})
	return nil
}

func (r *entityAccessRepository) BulkCreate(ctx context.Context, rows []models.EntityAccess) error {
	if len(rows) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		r.audit.LogError(ctx, err, "bulk_create")
		return models.NewInternalError(err)
	}
	r.audit.LogCreate(ctx, map[string]interface{}{"rows": len(rows)})
	return nil
}

func (r *entityAccessRepository) ListByAccessors(ctx context.Context, scope AccessorScope) ([]models.EntityAccess, error) {
	if scope.Empty() {
		return nil, nil
	}
	var rows []models.EntityAccess
	err := r.db.WithContext(ctx).
		Where(accessorCondition(r.db, scope)).
		Find(&rows).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return rows, nil
}

func (r *entityAccessRepository) DeleteByAccessors(ctx context.Context, scope AccessorScope) error {
	if scope.Empty() {
		return nil
	}
	err := r.db.WithContext(ctx).
		Where(accessorCondition(r.db, scope)).
		Delete(&models.EntityAccess{}).Error
	if err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

// accessorCondition builds the OR condition matching club and tier accessor
// rows inside the scope.
func accessorCondition(db *gorm.DB, scope AccessorScope) *gorm.DB {
	cond := db.Session(&gorm.Session{NewDB: true})
	switch {
	case len(scope.ClubIDs) > 0 && len(scope.TierIDs) > 0:
		cond = cond.
			Where("accessor_type = ? AND accessor_id IN ?", models.AccessorTypeClub, scope.ClubIDs).
			Or("accessor_type = ? AND accessor_id IN ?", models.AccessorTypeClubTier, scope.TierIDs)
	case len(scope.ClubIDs) > 0:
		cond = cond.Where("accessor_type = ? AND accessor_id IN ?", models.AccessorTypeClub, scope.ClubIDs)
	default:
		cond = cond.Where("accessor_type = ? AND accessor_id IN ?", models.AccessorTypeClubTier, scope.TierIDs)
	}
	return cond
}
