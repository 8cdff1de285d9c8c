package seed

import (
	"fmt"
	"log"

	"atrium/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers     int
	NumClubs     int
	NumResources int
	ShouldClean  bool
}

// DefaultOptions returns a small but representative demo data set.
func DefaultOptions() Options {
	return Options{
		NumUsers:     40,
		NumClubs:     8,
		NumResources: 60,
	}
}

// Seed populates the database with demo clubs, tiers, memberships, and gated
// resources.
func Seed(db *gorm.DB, opts Options) error {
	log.Printf("Seeding %d users, %d clubs, %d resources...", opts.NumUsers, opts.NumClubs, opts.NumResources)

	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			log.Println("Warning: could not clear all existing data, continuing anyway...")
		}
	}

	f := NewFactory(db)

	users := make([]*models.User, 0, opts.NumUsers)
	for i := 0; i < opts.NumUsers; i++ {
		user, err := f.CreateUser()
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		users = append(users, user)
	}
	log.Printf("Created %d users", len(users))

	type seededClub struct {
		club  *models.Club
		tiers []models.ClubTier
	}
	clubs := make([]seededClub, 0, opts.NumClubs)
	for i := 0; i < opts.NumClubs && i < len(users); i++ {
		club, tiers, err := f.CreateClub(users[i])
		if err != nil {
			return fmt.Errorf("create club: %w", err)
		}
		clubs = append(clubs, seededClub{club: club, tiers: tiers})
	}
	log.Printf("Created %d clubs", len(clubs))

	// Join each non-owner user to a few clubs.
	memberships := 0
	for i, user := range users {
		for j, sc := range clubs {
			if sc.club.OwnerUserID == user.ID {
				continue
			}
			if (i+j)%3 != 0 {
				continue
			}
			tier := sc.tiers[f.rndIndex(len(sc.tiers))]
			if _, err := f.CreateMembership(user, &tier); err != nil {
				return fmt.Errorf("create membership: %w", err)
			}
			memberships++
		}
	}
	log.Printf("Created %d memberships", memberships)

	// Create resources; gate roughly half of them behind their owner's club.
	gated := 0
	for i := 0; i < opts.NumResources; i++ {
		sc := clubs[i%len(clubs)]
		owner := sc.club.OwnerUserID
		ref, err := f.CreateResource(&models.User{ID: owner})
		if err != nil {
			return fmt.Errorf("create resource: %w", err)
		}
		if i%2 == 0 {
			if err := f.GateResource(ref, sc.club.ID, owner); err != nil {
				return fmt.Errorf("gate resource: %w", err)
			}
			gated++
		}
	}
	log.Printf("Created %d resources (%d gated)", opts.NumResources, gated)

	return nil
}

func (f *Factory) rndIndex(n int) int {
	if n <= 1 {
		return 0
	}
	return f.rnd.Intn(n)
}

func clearData(db *gorm.DB) error {
	tables := []any{
		&models.EntityAccess{},
		&models.ClubMembership{},
		&models.ClubAdmin{},
		&models.ClubTier{},
		&models.Club{},
		&models.ModelVersion{},
		&models.Article{},
		&models.Post{},
		&models.Image{},
		&models.User{},
	}
	for _, table := range tables {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(table).Error; err != nil {
			return err
		}
	}
	return nil
}
