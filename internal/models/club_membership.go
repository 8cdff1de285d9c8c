package models

import "time"

// ClubMembershipStatus defines the billing state of a membership.
type ClubMembershipStatus string

const (
	// ClubMembershipStatusActive indicates a paid-up membership.
	ClubMembershipStatusActive ClubMembershipStatus = "active"
	// ClubMembershipStatusCancelled indicates a membership that will not renew.
	ClubMembershipStatusCancelled ClubMembershipStatus = "cancelled"
)

// ClubMembership maps a user to the tier they hold in a club.
type ClubMembership struct {
	ClubID        uint                 `gorm:"primaryKey;autoIncrement:false" json:"club_id"`
	Club          *Club                `gorm:"foreignKey:ClubID" json:"club,omitempty"`
	UserID        uint                 `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	User          *User                `gorm:"foreignKey:UserID" json:"user,omitempty"`
	TierID        uint                 `gorm:"not null;index" json:"tier_id"`
	Tier          *ClubTier            `gorm:"foreignKey:TierID" json:"tier,omitempty"`
	Status        ClubMembershipStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	StartedAt     time.Time            `gorm:"not null" json:"started_at"`
	NextBillingAt time.Time            `gorm:"not null" json:"next_billing_at"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}
