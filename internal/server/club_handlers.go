package server

import (
	"atrium/internal/middleware"
	"atrium/internal/models"
	"atrium/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetClubs handles GET /api/clubs
func (s *Server) GetClubs(c *fiber.Ctx) error {
	ctx := c.Context()
	page := parsePagination(c, 20)

	clubs, err := s.clubService.ListClubs(ctx, page.Limit, page.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"clubs":  clubs,
		"limit":  page.Limit,
		"offset": page.Offset,
	})
}

// GetClubBySlug handles GET /api/clubs/:slug
func (s *Server) GetClubBySlug(c *fiber.Ctx) error {
	ctx := c.Context()
	clubSlug := c.Params("slug")
	if clubSlug == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Club slug is required"))
	}

	club, err := s.clubService.GetClub(ctx, clubSlug)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(club)
}

// CreateClub handles POST /api/clubs
func (s *Server) CreateClub(c *fiber.Ctx) error {
	ctx := c.Context()
	principal := middleware.PrincipalFromCtx(c)

	var req struct {
		Name           string `json:"name"`
		Description    string `json:"description"`
		HeaderImageURL string `json:"header_image_url,omitempty"`
		Tiers          []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			PriceCents  int64  `json:"price_cents"`
			Currency    string `json:"currency"`
			MemberCap   *int   `json:"member_cap,omitempty"`
			Unlisted    bool   `json:"unlisted"`
			Joinable    *bool  `json:"joinable"`
		} `json:"tiers"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	in := service.CreateClubInput{
		Name:           req.Name,
		Description:    req.Description,
		HeaderImageURL: req.HeaderImageURL,
	}
	for _, t := range req.Tiers {
		in.Tiers = append(in.Tiers, service.TierInput{
			Name:        t.Name,
			Description: t.Description,
			PriceCents:  t.PriceCents,
			Currency:    t.Currency,
			MemberCap:   t.MemberCap,
			Unlisted:    t.Unlisted,
			Joinable:    joinableValue(t.Joinable),
		})
	}

	club, err := s.clubService.CreateClub(ctx, principal, in)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(club)
}

// UpdateClub handles PUT /api/clubs/:id
func (s *Server) UpdateClub(c *fiber.Ctx) error {
	ctx := c.Context()
	principal := middleware.PrincipalFromCtx(c)

	clubID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Name           *string `json:"name"`
		Description    *string `json:"description"`
		HeaderImageURL *string `json:"header_image_url"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	club, err := s.clubService.UpdateClubDetails(ctx, principal, clubID, service.UpdateClubInput{
		Name:           req.Name,
		Description:    req.Description,
		HeaderImageURL: req.HeaderImageURL,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(club)
}

// DeleteClub handles DELETE /api/clubs/:id
func (s *Server) DeleteClub(c *fiber.Ctx) error {
	ctx := c.Context()
	principal := middleware.PrincipalFromCtx(c)

	clubID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.clubService.DeleteClub(ctx, principal, clubID); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Club deleted successfully"})
}

// JoinClub handles POST /api/clubs/:id/join
func (s *Server) JoinClub(c *fiber.Ctx) error {
	ctx := c.Context()
	principal := middleware.PrincipalFromCtx(c)

	clubID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	// Ops kill switch for paid joins, e.g. during a ledger incident.
	if s.featureDisabled(c, "disable_joins", principal.UserID) {
		return nil
	}

	var req struct {
		TierID uint `json:"tier_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if req.TierID == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Tier ID is required"))
	}

	membership, err := s.clubService.JoinClub(ctx, principal, clubID, req.TierID)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(membership)
}

// LeaveClub handles POST /api/clubs/:id/leave
func (s *Server) LeaveClub(c *fiber.Ctx) error {
	ctx := c.Context()
	principal := middleware.PrincipalFromCtx(c)

	clubID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.clubService.LeaveClub(ctx, principal, clubID); err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Membership cancelled"})
}

// GetClubMembers handles GET /api/clubs/:id/members
func (s *Server) GetClubMembers(c *fiber.Ctx) error {
	ctx := c.Context()
	principal := middleware.PrincipalFromCtx(c)

	clubID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, 50)

	auth, err := s.permissions.ResolveClub(ctx, principal, clubID)
	if err != nil {
		return respondServiceError(c, err)
	}
	if !auth.Contributing() && !auth.IsModerator {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewUnauthorizedError("Only club contributors may list members"))
	}

	members, err := s.membershipRepo.ListByClub(ctx, clubID, page.Limit, page.Offset)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"members": members,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}
