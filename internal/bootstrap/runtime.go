// Package bootstrap wires runtime dependencies for the command-line entry
// points.
package bootstrap

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"atrium/internal/cache"
	"atrium/internal/config"
	"atrium/internal/database"
	"atrium/internal/models"
	"atrium/internal/seed"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options control runtime initialization behavior.
type Options struct {
	SeedDemoData bool
}

// InitRuntime connects to DB and Redis and optionally seeds demo data.
func InitRuntime(cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	// Init Redis (may result in nil client if unreachable)
	cache.InitRedis(cfg.RedisURL)
	r := cache.GetClient()

	if err := ensureDevModerator(cfg, db); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap development moderator: %w", err)
	}

	if opts.SeedDemoData {
		if err := seed.Seed(db, seed.DefaultOptions()); err != nil {
			return nil, nil, fmt.Errorf("failed to seed demo data: %w", err)
		}
	}

	return db, r, nil
}

// ensureDevModerator guarantees a moderator account exists in development so
// the moderation endpoints are reachable out of the box. Identity comes from
// the external token issuer, so the row only carries the flag.
func ensureDevModerator(cfg *config.Config, db *gorm.DB) error {
	if cfg == nil || db == nil {
		return nil
	}
	if !strings.EqualFold(cfg.Env, "development") {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var mod models.User
		findErr := tx.Where("is_moderator = ?", true).First(&mod).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			mod = models.User{
				Username:    "atrium_moderator",
				Email:       "moderator@atrium.local",
				IsModerator: true,
			}
			if err := tx.Create(&mod).Error; err != nil {
				return err
			}
			log.Printf("Bootstrapped development moderator %q (id=%d)", mod.Username, mod.ID)
			return nil
		case findErr != nil:
			return findErr
		default:
			return nil
		}
	})
}
