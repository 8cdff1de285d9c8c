package server

import (
	"atrium/internal/middleware"
	"atrium/internal/models"
	"atrium/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetClubTiers handles GET /api/clubs/:id/tiers
//
// The route is public: anonymous visitors see listed tiers only, club
// contributors and moderators see everything.
func (s *Server) GetClubTiers(c *fiber.Ctx) error {
	ctx := c.Context()
	principal := s.optionalPrincipal(c)

	clubID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	tiers, err := s.tierService.ListTiers(ctx, principal, []uint{clubID})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"tiers": tiers})
}

type tierCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
	MemberCap   *int   `json:"member_cap,omitempty"`
	Unlisted    bool   `json:"unlisted"`
	Joinable    *bool  `json:"joinable"`
}

// joinableValue defaults an absent joinable field to true. New tiers are open
// for signup unless the request says otherwise; the column itself carries no
// database default.
func joinableValue(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

type tierUpdateRequest struct {
	ID          uint    `json:"id"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	PriceCents  *int64  `json:"price_cents"`
	MemberCap   *int    `json:"member_cap"`
	Unlisted    *bool   `json:"unlisted"`
	Joinable    *bool   `json:"joinable"`
}

// ReplaceClubTiers handles PUT /api/clubs/:id/tiers
//
// The request body carries one batched edit: tiers to create, tiers to patch
// and tier IDs to delete. The whole batch applies atomically or not at all.
func (s *Server) ReplaceClubTiers(c *fiber.Ctx) error {
	ctx := c.Context()
	principal := middleware.PrincipalFromCtx(c)

	clubID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	var req struct {
		Create    []tierCreateRequest `json:"create"`
		Update    []tierUpdateRequest `json:"update"`
		DeleteIDs []uint              `json:"delete_ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	in := service.ReplaceTiersInput{DeleteIDs: req.DeleteIDs}
	for _, t := range req.Create {
		in.Create = append(in.Create, service.TierInput{
			Name:        t.Name,
			Description: t.Description,
			PriceCents:  t.PriceCents,
			Currency:    t.Currency,
			MemberCap:   t.MemberCap,
			Unlisted:    t.Unlisted,
			Joinable:    joinableValue(t.Joinable),
		})
	}
	for _, t := range req.Update {
		in.Update = append(in.Update, service.TierUpdate{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
			PriceCents:  t.PriceCents,
			MemberCap:   t.MemberCap,
			Unlisted:    t.Unlisted,
			Joinable:    t.Joinable,
		})
	}

	tiers, err := s.tierService.ReplaceTiers(ctx, principal, clubID, in)
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.JSON(fiber.Map{"tiers": tiers})
}
