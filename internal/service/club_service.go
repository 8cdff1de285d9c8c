package service

import (
	"context"
	"fmt"
	"time"

	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"atrium/internal/billing"
	"atrium/internal/cache"
	"atrium/internal/ledger"
	"atrium/internal/models"
	"atrium/internal/observability"
	"atrium/internal/repository"
	"atrium/internal/validation"
)

// CreateClubInput is the input for creating a club.
type CreateClubInput struct {
	Name           string
	Description    string
	HeaderImageURL string
	Tiers          []TierInput
}

// UpdateClubInput edits club details. Nil fields are left unchanged.
type UpdateClubInput struct {
	Name           *string
	Description    *string
	HeaderImageURL *string
}

// ClubService provides club lifecycle and membership business logic.
type ClubService struct {
	db             *gorm.DB
	clubRepo       repository.ClubRepository
	tierRepo       repository.TierRepository
	membershipRepo repository.MembershipRepository
	accessRepo     repository.EntityAccessRepository
	resourceRepo   repository.ResourceRepository
	permissions    *PermissionService
	ledger         ledger.Service
	logger         *observability.StructuredLogger
}

// NewClubService returns a new ClubService.
func NewClubService(
	db *gorm.DB,
	clubRepo repository.ClubRepository,
	tierRepo repository.TierRepository,
	membershipRepo repository.MembershipRepository,
	accessRepo repository.EntityAccessRepository,
	resourceRepo repository.ResourceRepository,
	permissions *PermissionService,
	ledgerService ledger.Service,
) *ClubService {
	return &ClubService{
		db:             db,
		clubRepo:       clubRepo,
		tierRepo:       tierRepo,
		membershipRepo: membershipRepo,
		accessRepo:     accessRepo,
		resourceRepo:   resourceRepo,
		permissions:    permissions,
		ledger:         ledgerService,
		logger:         observability.NewStructuredLogger(),
	}
}

// GetClub returns a club by slug, read through the cache.
func (s *ClubService) GetClub(ctx context.Context, clubSlug string) (*models.Club, error) {
	var club models.Club
	err := cache.Aside(ctx, cache.ClubKey(clubSlug), &club, 5*time.Minute, func() error {
		found, err := s.clubRepo.GetBySlug(ctx, clubSlug)
		if err != nil {
			return err
		}
		club = *found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &club, nil
}

// ListClubs returns a page of clubs, newest first.
func (s *ClubService) ListClubs(ctx context.Context, limit, offset int) ([]models.Club, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.clubRepo.List(ctx, limit, offset)
}

// CreateClub creates a club owned by the principal, together with its initial
// tiers, in one transaction.
func (s *ClubService) CreateClub(ctx context.Context, principal models.Principal, in CreateClubInput) (*models.Club, error) {
	if err := validation.ValidateClubName(in.Name); err != nil {
		return nil, err
	}
	if len(in.Tiers) > maxTiersPerClub {
		return nil, models.NewValidationError("A club cannot have more than 20 tiers")
	}
	for _, tier := range in.Tiers {
		if err := validateTierInput(tier); err != nil {
			return nil, err
		}
	}

	clubSlug, err := s.uniqueSlug(ctx, in.Name)
	if err != nil {
		return nil, err
	}

	club := models.Club{
		Name:        in.Name,
		Slug:        clubSlug,
		Description: in.Description,
		OwnerUserID: principal.UserID,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		clubTx := s.clubRepo.WithTx(tx)
		if in.HeaderImageURL != "" {
			image := models.Image{UserID: principal.UserID, URL: in.HeaderImageURL}
			if err := tx.Create(&image).Error; err != nil {
				return models.NewInternalError(err)
			}
			club.HeaderImageID = &image.ID
		}
		if err := clubTx.Create(ctx, &club); err != nil {
			return err
		}
		tierTx := s.tierRepo.WithTx(tx)
		for _, input := range in.Tiers {
			tier := models.ClubTier{
				ClubID:      club.ID,
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
		return nil, err
	}

	s.logger.LogServiceCall(ctx, "club_service", "create_club", map[string]interface{}{
		"club_id": club.ID,
		"slug":    club.Slug,
		"user_id": principal.UserID,
	})
	return &club, nil
}

// UpdateClubDetails edits the club's descriptive fields. The slug never
// changes after creation; links to the club stay stable.
func (s *ClubService) UpdateClubDetails(ctx context.Context, principal models.Principal, clubID uint, in UpdateClubInput) (*models.Club, error) {
	auth, err := s.permissions.ResolveClub(ctx, principal, clubID)
	if err != nil {
		return nil, err
	}
	if !auth.Can(models.ClubAdminPermissionManageClub) {
		return nil, models.NewUnauthorizedError("You do not have permission to manage this club")
	}

	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		if err := validation.ValidateClubName(*in.Name); err != nil {
			return nil, err
		}
		club.Name = *in.Name
	}
	if in.Description != nil {
		club.Description = *in.Description
	}
	if in.HeaderImageURL != nil {
		image := models.Image{UserID: principal.UserID, URL: *in.HeaderImageURL}
		if err := s.db.WithContext(ctx).Create(&image).Error; err != nil {
			return nil, models.NewInternalError(err)
		}
		club.HeaderImageID = &image.ID
	}
	if err := s.clubRepo.Update(ctx, club); err != nil {
		return nil, err
	}
	cache.InvalidateClub(ctx, club.Slug)
	return club, nil
}

// DeleteClub removes a club and everything hanging off it. Any remaining club
// balance is refunded to the owner first; resources that lose their last
// grant flip back to public inside the same transaction.
func (s *ClubService) DeleteClub(ctx context.Context, principal models.Principal, clubID uint) error {
	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return err
	}
	if club.OwnerUserID != principal.UserID && !principal.IsModerator {
		return models.NewUnauthorizedError("Only the club owner may delete the club")
	}

	// Refund before removal. If the transfer fails the club stays; a
	// crashed deletion after the refund leaves an empty-balance club that
	// a retry removes without a second payout.
	balance, err := s.ledger.Balance(ctx, ledger.AccountTypeClub, clubID)
	if err != nil {
		return err
	}
	if balance > 0 {
		err = s.ledger.Transfer(ctx,
			ledger.Account{Type: ledger.AccountTypeClub, ID: clubID},
			ledger.Account{Type: ledger.AccountTypeUser, ID: club.OwnerUserID},
			balance, ledger.NewIdempotencyKey())
		if err != nil {
			return err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		clubTx := s.clubRepo.WithTx(tx)
		tierTx := s.tierRepo.WithTx(tx)
		accessTx := s.accessRepo.WithTx(tx)

		if _, err := clubTx.LockByID(ctx, clubID); err != nil {
			return err
		}
		tierIDs, err := tierTx.TierIDsByClubs(ctx, []uint{clubID})
		if err != nil {
			return err
		}
		scope := repository.AccessorScope{ClubIDs: []uint{clubID}, TierIDs: tierIDs}

		// Remember which resources this club was gating so their
		// availability can be recomputed after the rows are gone.
		affected, err := accessTx.ListByAccessors(ctx, scope)
		if err != nil {
			return err
		}
		if err := accessTx.DeleteByAccessors(ctx, scope); err != nil {
			return err
		}

		seen := make(map[models.ResourceRef]struct{})
		resourceTx := s.resourceRepo.WithTx(tx)
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

		membershipTx := s.membershipRepo.WithTx(tx)
		if err := membershipTx.DeleteByClub(ctx, clubID); err != nil {
			return err
		}
		if err := clubTx.RemoveAdminsByClub(ctx, clubID); err != nil {
			return err
		}
		if len(tierIDs) > 0 {
			if err := tierTx.DeleteByIDs(ctx, clubID, tierIDs); err != nil {
				return err
			}
		}
		return clubTx.Delete(ctx, clubID)
	})
	if err != nil {
		return err
	}

	cache.InvalidateClub(ctx, club.Slug)
	cache.InvalidateClubTiers(ctx, clubID)
	s.logger.LogServiceCall(ctx, "club_service", "delete_club", map[string]interface{}{
		"club_id":        clubID,
		"user_id":        principal.UserID,
		"refunded_cents": balance,
	})
	return nil
}

// JoinClub enrolls the principal into a tier, charging the first billing
// period up front. A user holds at most one membership per club.
func (s *ClubService) JoinClub(ctx context.Context, principal models.Principal, clubID, tierID uint) (*models.ClubMembership, error) {
	tier, err := s.tierRepo.GetByID(ctx, tierID)
	if err != nil {
		return nil, err
	}
	if tier.ClubID != clubID {
		return nil, models.NewNotFoundError("Club tier", tierID)
	}
	if !tier.Joinable {
		return nil, models.NewValidationError("This tier is not open for new members")
	}
	if tier.Unlisted && !principal.IsModerator {
		auth, err := s.permissions.ResolveClub(ctx, principal, clubID)
		if err != nil {
			return nil, err
		}
		if !auth.Contributing() {
			return nil, models.NewNotFoundError("Club tier", tierID)
		}
	}

	existing, err := s.membershipRepo.Get(ctx, clubID, principal.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewValidationError("You are already a member of this club")
	}

	if tier.MemberCap != nil {
		members, err := s.membershipRepo.CountActiveByTier(ctx, tierID)
		if err != nil {
			return nil, err
		}
		if members >= int64(*tier.MemberCap) {
			return nil, models.NewValidationError("This tier is full")
		}
	}

	now := time.Now().UTC()
	membership := models.ClubMembership{
		ClubID:        clubID,
		UserID:        principal.UserID,
		TierID:        tierID,
		Status:        models.ClubMembershipStatusActive,
		StartedAt:     now,
		NextBillingAt: billing.NextBillingDate(now),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.membershipRepo.WithTx(tx).Create(ctx, &membership); err != nil {
			return err
		}
		// The debit runs last: if the insert fails, including losing a race
		// on the membership primary key, the user is never charged. A failed
		// debit rolls the membership row back with it.
		if tier.PriceCents > 0 {
			return s.ledger.Transfer(ctx,
				ledger.Account{Type: ledger.AccountTypeUser, ID: principal.UserID},
				ledger.Account{Type: ledger.AccountTypeClub, ID: clubID},
				tier.PriceCents, ledger.NewIdempotencyKey())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// LeaveClub cancels the principal's membership. The current period stays paid
// through its end; no partial refunds.
func (s *ClubService) LeaveClub(ctx context.Context, principal models.Principal, clubID uint) error {
	membership, err := s.membershipRepo.Get(ctx, clubID, principal.UserID)
	if err != nil {
		return err
	}
	if membership == nil {
		return models.NewNotFoundError("Club membership", clubID)
	}
	membership.Status = models.ClubMembershipStatusCancelled
	return s.membershipRepo.Update(ctx, membership)
}

// ListAdmins returns the club's admin roster. Contributors and moderators
// only; the roster is not public.
func (s *ClubService) ListAdmins(ctx context.Context, principal models.Principal, clubID uint) ([]models.ClubAdmin, error) {
	auth, err := s.permissions.ResolveClub(ctx, principal, clubID)
	if err != nil {
		return nil, err
	}
	if !auth.Contributing() && !auth.IsModerator {
		return nil, models.NewUnauthorizedError("Only club contributors may view the admin roster")
	}
	return s.clubRepo.ListAdmins(ctx, clubID)
}

// SetAdmin grants or replaces a user's admin capabilities in a club. Only the
// owner and moderators may change the roster; the owner cannot hold an admin
// row on top of ownership.
func (s *ClubService) SetAdmin(ctx context.Context, principal models.Principal, clubID, userID uint, perms []models.ClubAdminPermission) error {
	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return err
	}
	if club.OwnerUserID != principal.UserID && !principal.IsModerator {
		return models.NewUnauthorizedError("Only the club owner may manage admins")
	}
	if userID == club.OwnerUserID {
		return models.NewValidationError("The club owner already holds every capability")
	}
	if len(perms) == 0 {
		return models.NewValidationError("At least one capability is required")
	}
	valid := make(map[models.ClubAdminPermission]struct{}, len(models.AllClubAdminPermissions))
	for _, p := range models.AllClubAdminPermissions {
		valid[p] = struct{}{}
	}
	for _, p := range perms {
		if _, ok := valid[p]; !ok {
			return models.NewValidationError("Unknown capability: " + string(p))
		}
	}
	return s.clubRepo.UpsertAdmin(ctx, &models.ClubAdmin{ClubID: clubID, UserID: userID, Permissions: perms})
}

// RemoveAdmin revokes a user's adminship in a club.
func (s *ClubService) RemoveAdmin(ctx context.Context, principal models.Principal, clubID, userID uint) error {
	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return err
	}
	if club.OwnerUserID != principal.UserID && !principal.IsModerator {
		return models.NewUnauthorizedError("Only the club owner may manage admins")
	}
	return s.clubRepo.RemoveAdmin(ctx, clubID, userID)
}

// uniqueSlug derives a slug from the club name, suffixing on collision.
func (s *ClubService) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := slug.Make(name)
	if err := validation.ValidateClubSlug(base); err != nil {
		return "", err
	}
	candidate := base
	for i := 2; ; i++ {
		taken, err := s.clubRepo.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		if i > 20 {
			return "", models.NewValidationError("Could not derive a unique slug for this club name")
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}
