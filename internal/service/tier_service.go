package service

import (
	"context"

	"gorm.io/gorm"

	"atrium/internal/cache"
	"atrium/internal/models"
	"atrium/internal/observability"
	"atrium/internal/repository"
)

const maxTiersPerClub = 20

// TierInput describes a tier to create.
type TierInput struct {
	Name        string
	Description string
	PriceCents  int64
	Currency    string
	MemberCap   *int
	Unlisted    bool
	Joinable    bool
}

// TierUpdate describes an edit to an existing tier. Nil fields are left
// unchanged.
type TierUpdate struct {
	ID          uint
	Name        *string
	Description *string
	PriceCents  *int64
	MemberCap   *int
	Unlisted    *bool
	Joinable    *bool
}

// ReplaceTiersInput is one batched edit of a club's tier registry.
type ReplaceTiersInput struct {
	Create    []TierInput
	Update    []TierUpdate
	DeleteIDs []uint
}

// TierService manages the tier registry of clubs.
type TierService struct {
	db             *gorm.DB
	tierRepo       repository.TierRepository
	clubRepo       repository.ClubRepository
	membershipRepo repository.MembershipRepository
	accessRepo     repository.EntityAccessRepository
	resourceRepo   repository.ResourceRepository
	permissions    *PermissionService
}

// NewTierService returns a new TierService.
func NewTierService(
	db *gorm.DB,
	tierRepo repository.TierRepository,
	clubRepo repository.ClubRepository,
	membershipRepo repository.MembershipRepository,
	accessRepo repository.EntityAccessRepository,
	resourceRepo repository.ResourceRepository,
	permissions *PermissionService,
) *TierService {
	return &TierService{
		db:             db,
		tierRepo:       tierRepo,
		clubRepo:       clubRepo,
		membershipRepo: membershipRepo,
		accessRepo:     accessRepo,
		resourceRepo:   resourceRepo,
		permissions:    permissions,
	}
}

// ListTiers returns the tiers of the given clubs ordered cheapest first.
// Callers who do not contribute to every queried club are forced to listed,
// joinable tiers only: a single club outside the caller's administered set
// degrades the whole query to the restrictive filter, so mixing clubs into
// one request cannot expose another club's unlisted or closed tiers.
// Moderators see everything.
func (s *TierService) ListTiers(ctx context.Context, principal models.Principal, clubIDs []uint) ([]models.ClubTier, error) {
	clubIDs = dedupeIDs(clubIDs)
	if len(clubIDs) == 0 {
		return nil, nil
	}

	known, err := s.clubRepo.NamesByID(ctx, clubIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range clubIDs {
		if _, ok := known[id]; !ok {
			return nil, models.NewNotFoundError("Club", id)
		}
	}

	filter := repository.TierFilter{ListedOnly: true, JoinableOnly: true}
	switch {
	case principal.IsModerator:
		filter = repository.TierFilter{}
	case principal.UserID != 0:
		contributing, err := s.permissions.ContributingClubIDs(ctx, principal)
		if err != nil {
			return nil, err
		}
		administered := make(map[uint]struct{}, len(contributing))
		for _, id := range contributing {
			administered[id] = struct{}{}
		}
		all := true
		for _, id := range clubIDs {
			if _, ok := administered[id]; !ok {
				all = false
				break
			}
		}
		if all {
			filter = repository.TierFilter{}
		}
	}

	return s.tierRepo.ListByClubs(ctx, clubIDs, filter)
}

// ReplaceTiers applies one batched edit to a club's tier registry. The whole
// batch commits or none of it does; the club row stays locked for the
// duration so concurrent grant writes see either the old or the new registry.
func (s *TierService) ReplaceTiers(ctx context.Context, principal models.Principal, clubID uint, in ReplaceTiersInput) ([]models.ClubTier, error) {
	auth, err := s.permissions.ResolveClub(ctx, principal, clubID)
	if err != nil {
		return nil, err
	}
	if !auth.Can(models.ClubAdminPermissionManageTiers) {
		return nil, models.NewUnauthorizedError("You do not have permission to manage tiers in this club")
	}
	for _, tier := range in.Create {
		if err := validateTierInput(tier); err != nil {
			return nil, err
		}
	}
	for _, update := range in.Update {
		if update.ID == 0 {
			return nil, models.NewValidationError("tier id is required for updates")
		}
		if update.Name != nil && *update.Name == "" {
			return nil, models.NewValidationError("tier name cannot be empty")
		}
		if update.PriceCents != nil && *update.PriceCents < 0 {
			return nil, models.NewValidationError("tier price cannot be negative")
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		clubTx := s.clubRepo.WithTx(tx)
		tierTx := s.tierRepo.WithTx(tx)
		membershipTx := s.membershipRepo.WithTx(tx)

		if _, err := clubTx.LockByID(ctx, clubID); err != nil {
			return err
		}

		existing, err := tierTx.ListByClubs(ctx, []uint{clubID}, repository.TierFilter{})
		if err != nil {
			return err
		}
		byID := make(map[uint]models.ClubTier, len(existing))
		for _, tier := range existing {
			byID[tier.ID] = tier
		}

		if len(in.DeleteIDs) > 0 {
			for _, id := range in.DeleteIDs {
				if _, ok := byID[id]; !ok {
					return models.NewNotFoundError("Club tier", id)
				}
			}
			members, err := membershipTx.CountActiveByTiers(ctx, in.DeleteIDs)
			if err != nil {
				return err
			}
			if members > 0 {
				return models.NewValidationError("Cannot delete a tier that still has active members")
			}
			if err := tierTx.DeleteByIDs(ctx, clubID, in.DeleteIDs); err != nil {
				return err
			}
			if err := s.cleanupTierGrants(ctx, tx, in.DeleteIDs); err != nil {
				return err
			}
		}

		for _, update := range in.Update {
			tier, ok := byID[update.ID]
			if !ok {
				return models.NewNotFoundError("Club tier", update.ID)
			}
			if update.Name != nil {
				tier.Name = *update.Name
			}
			if update.Description != nil {
				tier.Description = *update.Description
			}
			if update.PriceCents != nil {
				tier.PriceCents = *update.PriceCents
			}
			if update.MemberCap != nil {
				tier.MemberCap = update.MemberCap
			}
			if update.Unlisted != nil {
				tier.Unlisted = *update.Unlisted
			}
			if update.Joinable != nil {
				tier.Joinable = *update.Joinable
			}
			if err := tierTx.Update(ctx, &tier); err != nil {
				return err
			}
		}

		if len(existing)-len(in.DeleteIDs)+len(in.Create) > maxTiersPerClub {
			return models.NewValidationError("A club cannot have more than 20 tiers")
		}
		for _, input := range in.Create {
			tier := models.ClubTier{
				ClubID:      clubID,
				Name:        input.Name,
				Description: input.Description,
				PriceCents:  input.PriceCents,
				Currency:    normalizeCurrency(input.Currency),
				MemberCap:   input.MemberCap,
				Unlisted:    input.Unlisted,
				Joinable:    input.Joinable,
			}
			if err := tierTx.Create(ctx, &tier); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		observability.TierReplaceOperations.WithLabelValues("error").Inc()
		return nil, err
	}
	observability.TierReplaceOperations.WithLabelValues("ok").Inc()
	cache.InvalidateClubTiers(ctx, clubID)

	return s.tierRepo.ListByClubs(ctx, []uint{clubID}, repository.TierFilter{})
}

// cleanupTierGrants removes grant rows pointing at deleted tiers so no orphan
// grant can keep a resource private, flipping resources public when a deleted
// tier carried their last grant.
func (s *TierService) cleanupTierGrants(ctx context.Context, tx *gorm.DB, deletedTierIDs []uint) error {
	accessTx := s.accessRepo.WithTx(tx)
	scope := repository.AccessorScope{TierIDs: deletedTierIDs}
	affected, err := accessTx.ListByAccessors(ctx, scope)
	if err != nil {
		return err
	}
	if len(affected) == 0 {
		return nil
	}
	if err := accessTx.DeleteByAccessors(ctx, scope); err != nil {
		return err
	}

	resourceTx := s.resourceRepo.WithTx(tx)
	seen := make(map[models.ResourceRef]struct{})
	for _, row := range affected {
		ref := models.ResourceRef{EntityID: row.AccessToID, EntityType: row.AccessToType}
		if _, done := seen[ref]; done {
			continue
		}
		seen[ref] = struct{}{}
		remaining, err := accessTx.CountForEntity(ctx, ref)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := resourceTx.SetAvailability(ctx, ref, models.AvailabilityPublic); err != nil {
				return err
			}
		}
		cache.InvalidateEntityGating(ctx, ref)
	}
	return nil
}

func validateTierInput(in TierInput) error {
	if in.Name == "" {
		return models.NewValidationError("tier name is required")
	}
	if len(in.Name) > 120 {
		return models.NewValidationError("tier name must be at most 120 characters")
	}
	if in.PriceCents < 0 {
		return models.NewValidationError("tier price cannot be negative")
	}
	if in.MemberCap != nil && *in.MemberCap <= 0 {
		return models.NewValidationError("member cap must be positive when set")
	}
	return nil
}

func normalizeCurrency(currency string) string {
	if currency == "" {
		return "usd"
	}
	return currency
}
