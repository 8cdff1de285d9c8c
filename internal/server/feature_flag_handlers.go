package server

import (
	"atrium/internal/middleware"
	"atrium/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetFeatureFlags returns configured feature flags and evaluated state for current user.
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	principal := middleware.PrincipalFromCtx(c)

	if s.featureFlags == nil {
		return c.JSON(fiber.Map{
			"raw":       map[string]string{},
			"evaluated": map[string]bool{},
		})
	}

	return c.JSON(fiber.Map{
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(principal.UserID),
	})
}

// featureDisabled checks an ops kill switch. When the named flag evaluates on
// for the caller, the response is written and the caller should return nil.
func (s *Server) featureDisabled(c *fiber.Ctx, flag string, userID uint) bool {
	if s.featureFlags == nil || !s.featureFlags.Enabled(flag, userID) {
		return false
	}
	_ = models.RespondWithError(c, fiber.StatusServiceUnavailable,
		models.NewValidationError("This feature is temporarily disabled"))
	return true
}
