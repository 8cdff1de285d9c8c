package service

import (
	"context"
	"sort"
	"time"

	"atrium/internal/cache"
	"atrium/internal/models"
	"atrium/internal/repository"
)

const (
	gatingCacheTTL    = 2 * time.Minute
	maxProjectionRefs = 100
)

// ClubGate is one club's contribution to a resource's gating, as shown to
// clients deciding what to render next to a locked resource.
type ClubGate struct {
	ClubID    uint     `json:"club_id"`
	ClubName  string   `json:"club_name"`
	ClubWide  bool     `json:"club_wide"`
	TierIDs   []uint   `json:"tier_ids,omitempty"`
	TierNames []string `json:"tier_names,omitempty"`
}

// ResourceGating is the read model of one resource's grants.
type ResourceGating struct {
	Ref           models.ResourceRef  `json:"ref"`
	Title         string              `json:"title"`
	Availability  models.Availability `json:"availability"`
	Clubs         []ClubGate          `json:"clubs"`
	HasUserGrants bool                `json:"has_user_grants"`
}

// ProjectionService assembles read models over the grant table for display.
// It never mutates anything.
type ProjectionService struct {
	accessRepo   repository.EntityAccessRepository
	clubRepo     repository.ClubRepository
	tierRepo     repository.TierRepository
	resourceRepo repository.ResourceRepository
}

// NewProjectionService returns a new ProjectionService.
func NewProjectionService(
	accessRepo repository.EntityAccessRepository,
	clubRepo repository.ClubRepository,
	tierRepo repository.TierRepository,
	resourceRepo repository.ResourceRepository,
) *ProjectionService {
	return &ProjectionService{
		accessRepo:   accessRepo,
		clubRepo:     clubRepo,
		tierRepo:     tierRepo,
		resourceRepo: resourceRepo,
	}
}

// GatingDetails resolves the grants of one resource into displayable club and
// tier names, read through the cache.
func (s *ProjectionService) GatingDetails(ctx context.Context, ref models.ResourceRef) (*ResourceGating, error) {
	if !models.ValidEntityType(ref.EntityType) {
		return nil, models.NewValidationError("unknown entity type: " + string(ref.EntityType))
	}
	var gating ResourceGating
	err := cache.Aside(ctx, cache.EntityGatingKey(ref), &gating, gatingCacheTTL, func() error {
		batch, err := s.BatchGatingDetails(ctx, []models.ResourceRef{ref})
		if err != nil {
			return err
		}
		gating = batch[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &gating, nil
}

// BatchGatingDetails resolves grants for up to 100 resources in one pass,
// returning results in input order. Unknown refs come back with empty gating
// rather than an error so feed rendering never trips over deleted resources.
func (s *ProjectionService) BatchGatingDetails(ctx context.Context, refs []models.ResourceRef) ([]ResourceGating, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	if len(refs) > maxProjectionRefs {
		return nil, models.NewValidationError("at most 100 resources per request")
	}
	for _, ref := range refs {
		if !models.ValidEntityType(ref.EntityType) {
			return nil, models.NewValidationError("unknown entity type: " + string(ref.EntityType))
		}
	}

	rows, err := s.accessRepo.ListForEntities(ctx, refs)
	if err != nil {
		return nil, err
	}

	// Collect referenced tiers, then the clubs those tiers belong to.
	tierIDSet := make(map[uint]struct{})
	clubIDSet := make(map[uint]struct{})
	for _, row := range rows {
		switch row.AccessorType {
		case models.AccessorTypeClub:
			clubIDSet[row.AccessorID] = struct{}{}
		case models.AccessorTypeClubTier:
			tierIDSet[row.AccessorID] = struct{}{}
		}
	}
	tierIDs := make([]uint, 0, len(tierIDSet))
	for id := range tierIDSet {
		tierIDs = append(tierIDs, id)
	}
	tiers, err := s.tierRepo.GetByIDs(ctx, tierIDs)
	if err != nil {
		return nil, err
	}
	tierByID := make(map[uint]models.ClubTier, len(tiers))
	for _, tier := range tiers {
		tierByID[tier.ID] = tier
		clubIDSet[tier.ClubID] = struct{}{}
	}
	clubIDs := make([]uint, 0, len(clubIDSet))
	for id := range clubIDSet {
		clubIDs = append(clubIDs, id)
	}
	clubNames, err := s.clubRepo.NamesByID(ctx, clubIDs)
	if err != nil {
		return nil, err
	}
	titles, err := s.resourceRepo.DisplayTitles(ctx, refs)
	if err != nil {
		return nil, err
	}

	byRef := make(map[models.ResourceRef][]models.EntityAccess, len(refs))
	for _, row := range rows {
		ref := models.ResourceRef{EntityID: row.AccessToID, EntityType: row.AccessToType}
		byRef[ref] = append(byRef[ref], row)
	}

	results := make([]ResourceGating, 0, len(refs))
	for _, ref := range refs {
		gating := ResourceGating{
			Ref:          ref,
			Title:        titles[ref],
			Availability: models.AvailabilityPublic,
		}
		grants := byRef[ref]
		if len(grants) > 0 {
			gating.Availability = models.AvailabilityPrivate
		}

		clubWide := make(map[uint]bool)
		tiersByClub := make(map[uint][]models.ClubTier)
		for _, row := range grants {
			switch row.AccessorType {
			case models.AccessorTypeClub:
				clubWide[row.AccessorID] = true
			case models.AccessorTypeClubTier:
				if tier, ok := tierByID[row.AccessorID]; ok {
					tiersByClub[tier.ClubID] = append(tiersByClub[tier.ClubID], tier)
				}
			case models.AccessorTypeUser:
				gating.HasUserGrants = true
			}
		}

		gateClubIDs := make([]uint, 0, len(clubWide)+len(tiersByClub))
		for id := range clubWide {
			gateClubIDs = append(gateClubIDs, id)
		}
		for id := range tiersByClub {
			if !clubWide[id] {
				gateClubIDs = append(gateClubIDs, id)
			}
		}
		sort.Slice(gateClubIDs, func(i, j int) bool { return gateClubIDs[i] < gateClubIDs[j] })

		for _, clubID := range gateClubIDs {
			gate := ClubGate{
				ClubID:   clubID,
				ClubName: clubNames[clubID],
				ClubWide: clubWide[clubID],
			}
			if !gate.ClubWide {
				clubTiers := tiersByClub[clubID]
				sort.Slice(clubTiers, func(i, j int) bool {
					return clubTiers[i].PriceCents < clubTiers[j].PriceCents
				})
				for _, tier := range clubTiers {
					gate.TierIDs = append(gate.TierIDs, tier.ID)
					gate.TierNames = append(gate.TierNames, tier.Name)
				}
			}
			gating.Clubs = append(gating.Clubs, gate)
		}
		results = append(results, gating)
	}
	return results, nil
}

// CanAccess decides whether a user clears a resource's gate: public
// resources, resource grants through any of the user's active memberships,
// and direct user grants all pass.
func (s *ProjectionService) CanAccess(ctx context.Context, principal models.Principal, ref models.ResourceRef, memberships []models.ClubMembership) (bool, error) {
	if !models.ValidEntityType(ref.EntityType) {
		return false, models.NewValidationError("unknown entity type: " + string(ref.EntityType))
	}
	grants, err := s.accessRepo.ListForEntity(ctx, ref)
	if err != nil {
		return false, err
	}
	if len(grants) == 0 {
		return true, nil
	}
	if principal.IsModerator {
		return true, nil
	}

	memberClubs := make(map[uint]bool, len(memberships))
	memberTiers := make(map[uint]bool, len(memberships))
	for _, m := range memberships {
		if m.Status != models.ClubMembershipStatusActive {
			continue
		}
		memberClubs[m.ClubID] = true
		memberTiers[m.TierID] = true
	}

	for _, row := range grants {
		switch row.AccessorType {
		case models.AccessorTypeUser:
			if row.AccessorID == principal.UserID {
				return true, nil
			}
		case models.AccessorTypeClub:
			if memberClubs[row.AccessorID] {
				return true, nil
			}
		case models.AccessorTypeClubTier:
			if memberTiers[row.AccessorID] {
				return true, nil
			}
		}
	}
	return false, nil
}
