// Command seed populates the database with demo clubs, tiers, memberships,
// and gated resources.
package main

import (
	"flag"
	"log"

	"atrium/internal/config"
	"atrium/internal/database"
	"atrium/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 40, "Number of users to create")
	numClubs := flag.Int("clubs", 8, "Number of clubs to create")
	numResources := flag.Int("resources", 60, "Number of gate-able resources to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Printf("Target: %d users, %d clubs, %d resources, clean=%v", *numUsers, *numClubs, *numResources, *shouldClean)

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	opts := seed.Options{
		NumUsers:     *numUsers,
		NumClubs:     *numClubs,
		NumResources: *numResources,
		ShouldClean:  *shouldClean,
	}
	if err := seed.Seed(db, opts); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("Seeding complete")
}
