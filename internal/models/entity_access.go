package models

import "time"

// AccessorType tags who a grant is for. Club, tier, and user grants share one
// table so that the availability recomputation has a single source of truth.
type AccessorType string

const (
	// AccessorTypeClub grants access through a club, covering all of its
	// current and future tiers.
	AccessorTypeClub AccessorType = "club"
	// AccessorTypeClubTier grants access through one specific tier.
	AccessorTypeClubTier AccessorType = "club_tier"
	// AccessorTypeUser grants access directly to one user, independent of
	// any club.
	AccessorTypeUser AccessorType = "user"
)

// EntityType tags which kind of resource a grant points at.
type EntityType string

const (
	// EntityTypeModelVersion gates a model version.
	EntityTypeModelVersion EntityType = "model_version"
	// EntityTypeArticle gates an article.
	EntityTypeArticle EntityType = "article"
	// EntityTypePost gates a post.
	EntityTypePost EntityType = "post"
)

// ValidEntityType reports whether t names a known resource kind.
func ValidEntityType(t EntityType) bool {
	switch t {
	case EntityTypeModelVersion, EntityTypeArticle, EntityTypePost:
		return true
	}
	return false
}

// Availability is the denormalized public/private gate state on a resource.
// A resource is public exactly when it has zero EntityAccess rows.
type Availability string

const (
	// AvailabilityPublic marks a resource reachable by anyone.
	AvailabilityPublic Availability = "public"
	// AvailabilityPrivate marks a resource gated behind at least one grant.
	AvailabilityPrivate Availability = "private"
)

// ResourceRef identifies a gate-able resource by type and id. Resources do not
// know their own grants; grants reference them through this pair.
type ResourceRef struct {
	EntityID   uint       `json:"entity_id"`
	EntityType EntityType `json:"entity_type"`
}

// EntityAccess asserts that an accessor (club, tier, or user) may access a
// resource. Rows are only ever created and deleted, never updated in place.
type EntityAccess struct {
	AccessToID   uint         `gorm:"primaryKey;autoIncrement:false" json:"access_to_id"`
	AccessToType EntityType   `gorm:"primaryKey;type:varchar(32)" json:"access_to_type"`
	AccessorID   uint         `gorm:"primaryKey;autoIncrement:false" json:"accessor_id"`
	AccessorType AccessorType `gorm:"primaryKey;type:varchar(32)" json:"accessor_type"`
	AddedByID    *uint        `json:"added_by_id"`
	AddedBy      *User        `gorm:"foreignKey:AddedByID" json:"added_by,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// TableName specifies the table name for GORM.
func (EntityAccess) TableName() string {
	return "entity_access"
}
