package models

import "time"

// ClubAdminPermission names a capability a club admin may hold.
type ClubAdminPermission string

const (
	// ClubAdminPermissionManageClub allows editing club details.
	ClubAdminPermissionManageClub ClubAdminPermission = "manage_club"
	// ClubAdminPermissionManageTiers allows creating, editing, and deleting tiers.
	ClubAdminPermissionManageTiers ClubAdminPermission = "manage_tiers"
	// ClubAdminPermissionManageMemberships allows managing member rows.
	ClubAdminPermissionManageMemberships ClubAdminPermission = "manage_memberships"
	// ClubAdminPermissionManageResources allows gating and ungating resources.
	ClubAdminPermissionManageResources ClubAdminPermission = "manage_resources"
)

// AllClubAdminPermissions is the full capability set, held implicitly by the
// club owner and by platform moderators.
var AllClubAdminPermissions = []ClubAdminPermission{
	ClubAdminPermissionManageClub,
	ClubAdminPermissionManageTiers,
	ClubAdminPermissionManageMemberships,
	ClubAdminPermissionManageResources,
}

// Club represents a creator community that can own tiers and gate resources.
type Club struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"size:120;not null" json:"name"`
	Slug          string    `gorm:"size:64;not null;uniqueIndex" json:"slug"`
	Description   string    `gorm:"type:text" json:"description"`
	OwnerUserID   uint      `gorm:"not null;index" json:"owner_user_id"`
	OwnerUser     *User     `gorm:"foreignKey:OwnerUserID" json:"owner_user,omitempty"`
	HeaderImageID *uint     `json:"header_image_id"`
	HeaderImage   *Image    `gorm:"foreignKey:HeaderImageID" json:"header_image,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (Club) TableName() string {
	return "clubs"
}

// ClubAdmin grants a user a set of capabilities in a club. The owner never has
// an admin row; ownership and adminship are independent facts combined by the
// permission resolver.
type ClubAdmin struct {
	ClubID      uint                  `gorm:"primaryKey;autoIncrement:false" json:"club_id"`
	Club        *Club                 `gorm:"foreignKey:ClubID" json:"club,omitempty"`
	UserID      uint                  `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	User        *User                 `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Permissions []ClubAdminPermission `gorm:"serializer:json;type:text" json:"permissions"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

// HasPermission reports whether the admin row carries the given capability.
func (a ClubAdmin) HasPermission(p ClubAdminPermission) bool {
	for _, held := range a.Permissions {
		if held == p {
			return true
		}
	}
	return false
}

// Image is a stored upload referenced by club headers.
type Image struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	URL       string    `gorm:"size:512;not null" json:"url"`
	CreatedAt time.Time `json:"created_at"`
}
