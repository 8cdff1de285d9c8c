package server

import (
	"atrium/internal/middleware"
	"atrium/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetClubAdmins handles GET /api/clubs/:id/admins
func (s *Server) GetClubAdmins(c *fiber.Ctx) error {
	ctx := c.Context()
	principal := middleware.PrincipalFromCtx(c)

	clubID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	admins, err := s.clubService.ListAdmins(ctx, principal, clubID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"admins": admins})
}

// SetClubAdmin handles PUT /api/clubs/:id/admins/:userId
//
// Upserts the target user's admin row with the given capability list,
// replacing whatever capabilities the row carried before.
func (s *Server) SetClubAdmin(c *fiber.Ctx) error {
	ctx := c.Context()
	principal := middleware.PrincipalFromCtx(c)

	clubID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	userID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	var req struct {
		Permissions []string `json:"permissions"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	perms := make([]models.ClubAdminPermission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		perms = append(perms, models.ClubAdminPermission(p))
	}

	if err := s.clubService.SetAdmin(ctx, principal, clubID, userID, perms); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Admin permissions updated"})
}

// RemoveClubAdmin handles DELETE /api/clubs/:id/admins/:userId
func (s *Server) RemoveClubAdmin(c *fiber.Ctx) error {
	ctx := c.Context()
	principal := middleware.PrincipalFromCtx(c)

	clubID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	userID, err := s.parseID(c, "userId")
	if err != nil {
		return nil
	}

	if err := s.clubService.RemoveAdmin(ctx, principal, clubID, userID); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Admin removed"})
}
