// Package main provides moderator management utilities for Atrium.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"atrium/internal/config"
	"atrium/internal/database"
	"atrium/internal/models"

	"gorm.io/gorm"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage:")
		fmt.Println("  go run ./cmd/admin/main.go promote <user_id>   - Grant the moderator flag")
		fmt.Println("  go run ./cmd/admin/main.go demote <user_id>    - Remove the moderator flag")
		fmt.Println("  go run ./cmd/admin/main.go list               - List all moderators")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	switch os.Args[1] {
	case "promote":
		if len(os.Args) < 3 {
			fmt.Println("Usage: go run ./cmd/admin/main.go promote <user_id>")
			os.Exit(1)
		}
		setModerator(db, os.Args[2], true)

	case "demote":
		if len(os.Args) < 3 {
			fmt.Println("Usage: go run ./cmd/admin/main.go demote <user_id>")
			os.Exit(1)
		}
		setModerator(db, os.Args[2], false)

	case "list":
		listModerators(db)

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}
}

func setModerator(db *gorm.DB, rawID string, moderator bool) {
	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil {
		log.Fatalf("Invalid user ID %q: %v", rawID, err)
	}

	var user models.User
	if err := db.First(&user, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Fatalf("User %d not found", id)
		}
		log.Fatalf("Lookup failed: %v", err)
	}

	if user.IsModerator == moderator {
		fmt.Printf("User %s (id=%d) already has is_moderator=%v\n", user.Username, user.ID, moderator)
		return
	}

	if err := db.Model(&user).Update("is_moderator", moderator).Error; err != nil {
		log.Fatalf("Update failed: %v", err)
	}
	fmt.Printf("User %s (id=%d) is_moderator set to %v\n", user.Username, user.ID, moderator)
}

func listModerators(db *gorm.DB) {
	var moderators []models.User
	if err := db.Where("is_moderator = ?", true).Order("id").Find(&moderators).Error; err != nil {
		log.Fatalf("List failed: %v", err)
	}

	if len(moderators) == 0 {
		fmt.Println("No moderators found")
		return
	}
	for _, m := range moderators {
		fmt.Printf("%d\t%s\t%s\n", m.ID, m.Username, m.Email)
	}
}
