package service

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"atrium/internal/cache"
	"atrium/internal/models"
	"atrium/internal/observability"
	"atrium/internal/repository"
)

const (
	// replaceTimeout bounds a full grant replace transaction end to end.
	replaceTimeout = 30 * time.Second
	// maxGrantClubs caps how many clubs a single grant request may reference.
	maxGrantClubs = 50
)

// ClubScope describes the grant a single club contributes to a resource. An
// empty TierIDs list means the whole club, every current and future tier.
type ClubScope struct {
	ClubID  uint
	TierIDs []uint
}

// EntitlementService owns the grant rows and the denormalized availability
// flag on resources. All writes replace state inside one transaction; grant
// rows are never updated in place.
type EntitlementService struct {
	db           *gorm.DB
	accessRepo   repository.EntityAccessRepository
	tierRepo     repository.TierRepository
	resourceRepo repository.ResourceRepository
	clubRepo     repository.ClubRepository
	permissions  *PermissionService
}

// NewEntitlementService returns a new EntitlementService.
func NewEntitlementService(
	db *gorm.DB,
	accessRepo repository.EntityAccessRepository,
	tierRepo repository.TierRepository,
	resourceRepo repository.ResourceRepository,
	clubRepo repository.ClubRepository,
	permissions *PermissionService,
) *EntitlementService {
	return &EntitlementService{
		db:           db,
		accessRepo:   accessRepo,
		tierRepo:     tierRepo,
		resourceRepo: resourceRepo,
		clubRepo:     clubRepo,
		permissions:  permissions,
	}
}

// Grant replaces the club and tier grants on a resource with the given
// scopes. An empty scope list ungates the resource from every club the
// principal contributes to. Direct user grants are never touched here.
func (s *EntitlementService) Grant(ctx context.Context, principal models.Principal, ref models.ResourceRef, scopes []ClubScope) (err error) {
	span, ctx := observability.NewSpan(ctx, "entitlement.grant")
	defer func() {
		span.SetError(err)
		span.End()
	}()

	if !models.ValidEntityType(ref.EntityType) {
		return models.NewValidationError("unknown entity type: " + string(ref.EntityType))
	}
	if err := s.authorizeResource(ctx, principal, ref); err != nil {
		return err
	}

	if len(scopes) == 0 {
		return s.ungate(ctx, principal, ref)
	}

	merged, clubIDs, err := mergeScopes(scopes)
	if err != nil {
		return err
	}
	if err := s.permissions.RequireContributingAll(ctx, principal, clubIDs); err != nil {
		return err
	}

	addedBy := principal.UserID
	err = s.replace(ctx, clubIDs, func(tx *gorm.DB) error {
		// The tier set is read under the club locks: tier validation and the
		// deletion id-space must see the registry as of this transaction, or
		// a concurrent tier delete could slip an orphan grant row in.
		tiers, err := s.tierRepo.WithTx(tx).ListByClubs(ctx, clubIDs, repository.TierFilter{})
		if err != nil {
			return err
		}
		tierClub := make(map[uint]uint, len(tiers))
		allTierIDs := make([]uint, 0, len(tiers))
		for _, tier := range tiers {
			tierClub[tier.ID] = tier.ClubID
			allTierIDs = append(allTierIDs, tier.ID)
		}

		rows := make([]models.EntityAccess, 0, len(merged))
		for _, scope := range merged {
			if len(scope.TierIDs) == 0 {
				rows = append(rows, models.EntityAccess{
					AccessToID:   ref.EntityID,
					AccessToType: ref.EntityType,
					AccessorID:   scope.ClubID,
					AccessorType: models.AccessorTypeClub,
					AddedByID:    &addedBy,
				})
				continue
			}
			for _, tierID := range scope.TierIDs {
				if tierClub[tierID] != scope.ClubID {
					return models.NewNotFoundError("Club tier", tierID)
				}
				rows = append(rows, models.EntityAccess{
					AccessToID:   ref.EntityID,
					AccessToType: ref.EntityType,
					AccessorID:   tierID,
					AccessorType: models.AccessorTypeClubTier,
					AddedByID:    &addedBy,
				})
			}
		}

		deleteScope := repository.AccessorScope{ClubIDs: clubIDs, TierIDs: allTierIDs}
		accessTx := s.accessRepo.WithTx(tx)
		if err := accessTx.DeleteScoped(ctx, ref, deleteScope); err != nil {
			return err
		}
		if err := accessTx.BulkCreate(ctx, rows); err != nil {
			return err
		}
		return s.resourceRepo.WithTx(tx).SetAvailability(ctx, ref, models.AvailabilityPrivate)
	})
	s.finish(ctx, "grant", ref, err)
	return err
}

// UpdateScope replaces a single club's grant on a resource, narrowing or
// widening it to the given tiers. Other clubs' grants are untouched.
func (s *EntitlementService) UpdateScope(ctx context.Context, principal models.Principal, ref models.ResourceRef, clubID uint, tierIDs []uint) error {
	if !models.ValidEntityType(ref.EntityType) {
		return models.NewValidationError("unknown entity type: " + string(ref.EntityType))
	}
	if err := s.authorizeResource(ctx, principal, ref); err != nil {
		return err
	}
	if err := s.permissions.RequireContributingAll(ctx, principal, []uint{clubID}); err != nil {
		return err
	}

	addedBy := principal.UserID
	err := s.replace(ctx, []uint{clubID}, func(tx *gorm.DB) error {
		// Tier validation happens under the club lock, same as Grant.
		clubTierIDs, err := s.tierRepo.WithTx(tx).TierIDsByClubs(ctx, []uint{clubID})
		if err != nil {
			return err
		}
		known := make(map[uint]struct{}, len(clubTierIDs))
		for _, id := range clubTierIDs {
			known[id] = struct{}{}
		}
		for _, id := range tierIDs {
			if _, ok := known[id]; !ok {
				return models.NewNotFoundError("Club tier", id)
			}
		}

		rows := make([]models.EntityAccess, 0, len(tierIDs)+1)
		if len(tierIDs) == 0 {
			rows = append(rows, models.EntityAccess{
				AccessToID:   ref.EntityID,
				AccessToType: ref.EntityType,
				AccessorID:   clubID,
				AccessorType: models.AccessorTypeClub,
				AddedByID:    &addedBy,
			})
		}
		for _, tierID := range tierIDs {
			rows = append(rows, models.EntityAccess{
				AccessToID:   ref.EntityID,
				AccessToType: ref.EntityType,
				AccessorID:   tierID,
				AccessorType: models.AccessorTypeClubTier,
				AddedByID:    &addedBy,
			})
		}

		deleteScope := repository.AccessorScope{ClubIDs: []uint{clubID}, TierIDs: clubTierIDs}
		accessTx := s.accessRepo.WithTx(tx)
		if err := accessTx.DeleteScoped(ctx, ref, deleteScope); err != nil {
			return err
		}
		if err := accessTx.BulkCreate(ctx, rows); err != nil {
			return err
		}
		return s.resourceRepo.WithTx(tx).SetAvailability(ctx, ref, models.AvailabilityPrivate)
	})
	s.finish(ctx, "update_scope", ref, err)
	return err
}

// Revoke removes a single club's grant (club-level and all of its tiers) from
// a resource, flipping the resource public when no grants of any kind remain.
func (s *EntitlementService) Revoke(ctx context.Context, principal models.Principal, ref models.ResourceRef, clubID uint) error {
	if !models.ValidEntityType(ref.EntityType) {
		return models.NewValidationError("unknown entity type: " + string(ref.EntityType))
	}
	if err := s.authorizeResource(ctx, principal, ref); err != nil {
		return err
	}
	if err := s.permissions.RequireContributingAll(ctx, principal, []uint{clubID}); err != nil {
		return err
	}

	err := s.replace(ctx, []uint{clubID}, func(tx *gorm.DB) error {
		clubTierIDs, err := s.tierRepo.WithTx(tx).TierIDsByClubs(ctx, []uint{clubID})
		if err != nil {
			return err
		}
		deleteScope := repository.AccessorScope{ClubIDs: []uint{clubID}, TierIDs: clubTierIDs}
		if err := s.accessRepo.WithTx(tx).DeleteScoped(ctx, ref, deleteScope); err != nil {
			return err
		}
		return s.recomputeAvailability(ctx, tx, ref)
	})
	s.finish(ctx, "revoke", ref, err)
	return err
}

// GrantToUser adds a direct user grant, independent of any club.
func (s *EntitlementService) GrantToUser(ctx context.Context, principal models.Principal, ref models.ResourceRef, userID uint) error {
	if !models.ValidEntityType(ref.EntityType) {
		return models.NewValidationError("unknown entity type: " + string(ref.EntityType))
	}
	if err := s.authorizeResource(ctx, principal, ref); err != nil {
		return err
	}

	addedBy := principal.UserID
	row := models.EntityAccess{
		AccessToID:   ref.EntityID,
		AccessToType: ref.EntityType,
		AccessorID:   userID,
		AccessorType: models.AccessorTypeUser,
		AddedByID:    &addedBy,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.accessRepo.WithTx(tx).BulkCreate(ctx, []models.EntityAccess{row}); err != nil {
			return err
		}
		return s.resourceRepo.WithTx(tx).SetAvailability(ctx, ref, models.AvailabilityPrivate)
	})
	s.finish(ctx, "grant_user", ref, err)
	return err
}

// RevokeFromUser removes a direct user grant, flipping the resource public
// when it was the last grant.
func (s *EntitlementService) RevokeFromUser(ctx context.Context, principal models.Principal, ref models.ResourceRef, userID uint) error {
	if !models.ValidEntityType(ref.EntityType) {
		return models.NewValidationError("unknown entity type: " + string(ref.EntityType))
	}
	if err := s.authorizeResource(ctx, principal, ref); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.accessRepo.WithTx(tx).DeleteUserGrant(ctx, ref, userID); err != nil {
			return err
		}
		return s.recomputeAvailability(ctx, tx, ref)
	})
	s.finish(ctx, "revoke_user", ref, err)
	return err
}

// ungate removes every club and tier grant that belongs to a club the
// principal contributes to. Moderators ungate across all clubs. User grants
// survive, so the resource only flips public when none remain afterwards.
func (s *EntitlementService) ungate(ctx context.Context, principal models.Principal, ref models.ResourceRef) error {
	current, err := s.accessRepo.ListForEntity(ctx, ref)
	if err != nil {
		return err
	}

	clubSet := make(map[uint]struct{})
	var grantTierIDs []uint
	for _, row := range current {
		switch row.AccessorType {
		case models.AccessorTypeClub:
			clubSet[row.AccessorID] = struct{}{}
		case models.AccessorTypeClubTier:
			grantTierIDs = append(grantTierIDs, row.AccessorID)
		}
	}
	if len(grantTierIDs) > 0 {
		tiers, err := s.tierRepo.GetByIDs(ctx, grantTierIDs)
		if err != nil {
			return err
		}
		for _, tier := range tiers {
			clubSet[tier.ClubID] = struct{}{}
		}
	}

	clubIDs := make([]uint, 0, len(clubSet))
	for id := range clubSet {
		clubIDs = append(clubIDs, id)
	}
	if !principal.IsModerator {
		contributing, err := s.permissions.ContributingClubIDs(ctx, principal)
		if err != nil {
			return err
		}
		allowed := make(map[uint]struct{}, len(contributing))
		for _, id := range contributing {
			allowed[id] = struct{}{}
		}
		kept := clubIDs[:0]
		for _, id := range clubIDs {
			if _, ok := allowed[id]; ok {
				kept = append(kept, id)
			}
		}
		clubIDs = kept
	}
	if len(clubIDs) == 0 {
		// Nothing this principal may remove; availability is unchanged.
		return nil
	}

	err = s.replace(ctx, clubIDs, func(tx *gorm.DB) error {
		allTierIDs, err := s.tierRepo.WithTx(tx).TierIDsByClubs(ctx, clubIDs)
		if err != nil {
			return err
		}
		deleteScope := repository.AccessorScope{ClubIDs: clubIDs, TierIDs: allTierIDs}
		if err := s.accessRepo.WithTx(tx).DeleteScoped(ctx, ref, deleteScope); err != nil {
			return err
		}
		return s.recomputeAvailability(ctx, tx, ref)
	})
	s.finish(ctx, "ungate", ref, err)
	return err
}

// authorizeResource allows the resource owner and moderators through.
func (s *EntitlementService) authorizeResource(ctx context.Context, principal models.Principal, ref models.ResourceRef) error {
	if principal.IsModerator {
		// Still ensure the resource exists.
		exists, err := s.resourceRepo.Exists(ctx, ref)
		if err != nil {
			return err
		}
		if !exists {
			return models.NewNotFoundError(string(ref.EntityType), ref.EntityID)
		}
		return nil
	}
	ownerID, err := s.resourceRepo.OwnerID(ctx, ref)
	if err != nil {
		return err
	}
	if ownerID != principal.UserID {
		return models.NewUnauthorizedError("Only the resource owner may change its grants")
	}
	return nil
}

// replace runs fn inside one bounded transaction, locking the involved club
// rows first in ascending id order. The club row lock is the serialization
// point between grant writes and tier registry edits.
func (s *EntitlementService) replace(ctx context.Context, clubIDs []uint, fn func(tx *gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, replaceTimeout)
	defer cancel()

	timer := time.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SET LOCAL lock_timeout = '10s'").Error; err != nil {
				return models.NewInternalError(err)
			}
		}
		ordered := make([]uint, len(clubIDs))
		copy(ordered, clubIDs)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
		clubTx := s.clubRepo.WithTx(tx)
		for _, clubID := range ordered {
			if _, err := clubTx.LockByID(ctx, clubID); err != nil {
				return err
			}
		}
		return fn(tx)
	})
	observability.GrantReplaceLatency.Observe(time.Since(timer).Seconds())
	return err
}

// recomputeAvailability counts the remaining grant rows inside the
// transaction and writes the flag accordingly. The grant table is the single
// source of truth; the flag is only a projection of it.
func (s *EntitlementService) recomputeAvailability(ctx context.Context, tx *gorm.DB, ref models.ResourceRef) error {
	remaining, err := s.accessRepo.WithTx(tx).CountForEntity(ctx, ref)
	if err != nil {
		return err
	}
	availability := models.AvailabilityPrivate
	if remaining == 0 {
		availability = models.AvailabilityPublic
	}
	return s.resourceRepo.WithTx(tx).SetAvailability(ctx, ref, availability)
}

func (s *EntitlementService) finish(ctx context.Context, operation string, ref models.ResourceRef, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.EntitlementMutations.WithLabelValues(operation, outcome).Inc()
	if err == nil {
		cache.InvalidateEntityGating(ctx, ref)
	}
}

// mergeScopes deduplicates the requested clubs, unioning tier lists. A club
// appearing both club-wide and tier-scoped collapses to club-wide.
func mergeScopes(scopes []ClubScope) ([]ClubScope, []uint, error) {
	if len(scopes) > maxGrantClubs {
		return nil, nil, models.NewValidationError("too many clubs in one grant request")
	}
	order := make([]uint, 0, len(scopes))
	byClub := make(map[uint]*ClubScope, len(scopes))
	clubWide := make(map[uint]bool, len(scopes))
	for _, scope := range scopes {
		if scope.ClubID == 0 {
			return nil, nil, models.NewValidationError("club id is required")
		}
		existing, seen := byClub[scope.ClubID]
		if !seen {
			copied := ClubScope{ClubID: scope.ClubID}
			byClub[scope.ClubID] = &copied
			order = append(order, scope.ClubID)
			existing = &copied
		}
		if len(scope.TierIDs) == 0 {
			clubWide[scope.ClubID] = true
			continue
		}
		existing.TierIDs = append(existing.TierIDs, scope.TierIDs...)
	}

	merged := make([]ClubScope, 0, len(order))
	for _, clubID := range order {
		scope := byClub[clubID]
		if clubWide[clubID] {
			scope.TierIDs = nil
		} else {
			scope.TierIDs = dedupeIDs(scope.TierIDs)
		}
		merged = append(merged, *scope)
	}
	return merged, order, nil
}

func dedupeIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
