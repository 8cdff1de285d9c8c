package database

import "atrium/internal/models"

// PersistentModels returns the authoritative set of schema-managed GORM models.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Image{},
		&models.Club{},
		&models.ClubAdmin{},
		&models.ClubTier{},
		&models.ClubMembership{},
		&models.EntityAccess{},
		&models.ModelVersion{},
		&models.Article{},
		&models.Post{},
	}
}
