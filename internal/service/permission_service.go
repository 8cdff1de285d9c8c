// Package service provides application business logic (clubs, tiers, grants, etc.).
package service

import (
	"context"

	"atrium/internal/models"
	"atrium/internal/repository"
)

// ClubAuthorization is the resolved capability set of a principal within one
// club. Owners and moderators hold every capability implicitly; admins hold
// whatever their admin row carries.
type ClubAuthorization struct {
	IsOwner     bool
	IsModerator bool
	IsAdmin     bool
	Permissions []models.ClubAdminPermission
}

// Contributing reports whether the principal owns or administers the club.
func (a ClubAuthorization) Contributing() bool {
	return a.IsOwner || a.IsAdmin
}

// Can reports whether the principal holds the given capability in the club.
func (a ClubAuthorization) Can(p models.ClubAdminPermission) bool {
	if a.IsOwner || a.IsModerator {
		return true
	}
	for _, held := range a.Permissions {
		if held == p {
			return true
		}
	}
	return false
}

// PermissionService resolves what a principal may do in a club.
type PermissionService struct {
	clubRepo repository.ClubRepository
}

// NewPermissionService returns a new PermissionService.
func NewPermissionService(clubRepo repository.ClubRepository) *PermissionService {
	return &PermissionService{clubRepo: clubRepo}
}

// ResolveClub computes the principal's authorization within a club. It returns
// a NOT_FOUND error when the club does not exist.
func (s *PermissionService) ResolveClub(ctx context.Context, principal models.Principal, clubID uint) (ClubAuthorization, error) {
	club, err := s.clubRepo.GetByID(ctx, clubID)
	if err != nil {
		return ClubAuthorization{}, err
	}

	auth := ClubAuthorization{
		IsOwner:     club.OwnerUserID == principal.UserID,
		IsModerator: principal.IsModerator,
	}
	if auth.IsOwner || auth.IsModerator {
		auth.Permissions = models.AllClubAdminPermissions
		return auth, nil
	}

	admin, err := s.clubRepo.AdminRow(ctx, clubID, principal.UserID)
	if err != nil {
		return ClubAuthorization{}, err
	}
	if admin != nil {
		auth.IsAdmin = true
		auth.Permissions = admin.Permissions
	}
	return auth, nil
}

// ContributingClubIDs returns every club id the principal owns or administers.
// Moderator status does not widen this set; moderators bypass the contributing
// check instead.
func (s *PermissionService) ContributingClubIDs(ctx context.Context, principal models.Principal) ([]uint, error) {
	return s.clubRepo.ContributingClubIDs(ctx, principal.UserID)
}

// RequireContributingAll verifies that the principal contributes to every club
// in clubIDs, rejecting the whole set when any single club fails the check.
// Moderators pass unconditionally.
func (s *PermissionService) RequireContributingAll(ctx context.Context, principal models.Principal, clubIDs []uint) error {
	if principal.IsModerator {
		return nil
	}
	contributing, err := s.ContributingClubIDs(ctx, principal)
	if err != nil {
		return err
	}
	allowed := make(map[uint]struct{}, len(contributing))
	for _, id := range contributing {
		allowed[id] = struct{}{}
	}
	for _, id := range clubIDs {
		if _, ok := allowed[id]; !ok {
			return models.NewUnauthorizedError("You must be an owner or admin of every referenced club")
		}
	}
	return nil
}
