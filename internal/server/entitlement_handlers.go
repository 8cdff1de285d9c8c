package server

import (
	"atrium/internal/middleware"
	"atrium/internal/models"
	"atrium/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetGatingDetails handles GET /api/resources/:type/:id/gating
//
// Public read model: which clubs and tiers gate the resource. Returns an
// empty public projection for unknown resources rather than 404, so the
// response never leaks whether a resource exists.
func (s *Server) GetGatingDetails(c *fiber.Ctx) error {
	ctx := c.Context()

	ref, err := s.parseResourceRef(c)
	if err != nil {
		return nil
	}

	gating, err := s.projections.GatingDetails(ctx, ref)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(gating)
}

// BatchGatingDetails handles POST /api/resources/gating
func (s *Server) BatchGatingDetails(c *fiber.Ctx) error {
	ctx := c.Context()

	var req struct {
		Resources []struct {
			Type string `json:"type"`
			ID   uint   `json:"id"`
		} `json:"resources"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if len(req.Resources) == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("At least one resource reference is required"))
	}

	refs := make([]models.ResourceRef, 0, len(req.Resources))
	for _, r := range req.Resources {
		refs = append(refs, models.ResourceRef{
			EntityType: models.EntityType(r.Type),
			EntityID:   r.ID,
		})
	}

	gatings, err := s.projections.BatchGatingDetails(ctx, refs)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"resources": gatings})
}

// CheckResourceAccess handles GET /api/resources/:type/:id/access
func (s *Server) CheckResourceAccess(c *fiber.Ctx) error {
	ctx := c.Context()
	principal := middleware.PrincipalFromCtx(c)

	ref, err := s.parseResourceRef(c)
	if err != nil {
		return nil
	}

	memberships, err := s.membershipRepo.ListByUser(ctx, principal.UserID)
	if err != nil {
		return respondServiceError(c, err)
	}

	allowed, err := s.projections.CanAccess(ctx, principal, ref, memberships)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"allowed": allowed})
}

// SetResourceGrants handles POST /api/resources/:type/:id/grants
//
// Replaces the resource's club gating with the requested scopes. An empty
// scope list ungates the caller's clubs and may flip the resource public.
func (s *Server) SetResourceGrants(c *fiber.Ctx) error {
	ctx := c.Context()
	principal := middleware.PrincipalFromCtx(c)

	ref, err := s.parseResourceRef(c)
	if err != nil {
		return nil
	}

	var req struct {
		Clubs []struct {
			ClubID  uint   `json:"club_id"`
			TierIDs []uint `json:"tier_ids"`
		} `json:"clubs"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	scopes := make([]service.ClubScope, 0, len(req.Clubs))
	for _, sc := range req.Clubs {
		scopes = append(scopes, service.ClubScope{
			ClubID:  sc.ClubID,
			TierIDs: sc.TierIDs,
		})
	}

	if err := s.entitlements.Grant(ctx, principal, ref, scopes); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Grants updated"})
}

// UpdateClubGrant handles PUT /api/resources/:type/:id/grants/clubs/:clubId
//
// Narrows or widens one club's grant without touching other clubs. An empty
// tier list widens the grant to the whole club.
func (s *Server) UpdateClubGrant(c *fiber.Ctx) error {
	ctx := c.Context()
	principal := middleware.PrincipalFromCtx(c)

	ref, err := s.parseResourceRef(c)
	if err != nil {
		return nil
	}
	clubID, err := s.parseID(c, "clubId")
	if err != nil {
		return nil
	}

	var req struct {
		TierIDs []uint `json:"tier_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if err := s.entitlements.UpdateScope(ctx, principal, ref, clubID, req.TierIDs); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Grant updated"})
}

// RevokeClubGrant handles DELETE /api/resources/:type/:id/grants/clubs/:clubId
func (s *Server) RevokeClubGrant(c *fiber.Ctx) error {
	ctx := c.Context()
	principal := middleware.PrincipalFromCtx(c)

	ref, err := s.parseResourceRef(c)
	if err != nil {
		return nil
	}
	clubID, err := s.parseID(c, "clubId")
	if err != nil {
		return nil
	}

	if err := s.entitlements.Revoke(ctx, principal, ref, clubID); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Grant revoked"})
}

// GrantUserAccess handles POST /api/resources/:type/:id/grants/users/:userId
func (s *Server) GrantUserAccess(c *fiber.Ctx) error {
	ctx := c.Context()
	principal := middleware.PrincipalFromCtx(c)

	ref, err := s.parseResourceRef(c)
	if err != nil {
		return nil
	}
	userID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}
	if s.featureDisabled(c, "disable_user_grants", principal.UserID) {
		return nil
	}

	if err := s.entitlements.GrantToUser(ctx, principal, ref, userID); err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "User access granted"})
}

// RevokeUserAccess handles DELETE /api/resources/:type/:id/grants/users/:userId
func (s *Server) RevokeUserAccess(c *fiber.Ctx) error {
	ctx := c.Context()
	principal := middleware.PrincipalFromCtx(c)

	ref, err := s.parseResourceRef(c)
	if err != nil {
		return nil
	}
	userID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	if err := s.entitlements.RevokeFromUser(ctx, principal, ref, userID); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "User access revoked"})
}
