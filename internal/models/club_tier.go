package models

import "time"

// ClubTier is a priced membership level within a club. Name is the natural key
// within a club; tier creation is idempotent on it.
type ClubTier struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ClubID      uint      `gorm:"not null;uniqueIndex:idx_club_tier_name" json:"club_id"`
	Club        *Club     `gorm:"foreignKey:ClubID" json:"club,omitempty"`
	Name        string    `gorm:"size:120;not null;uniqueIndex:idx_club_tier_name" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	PriceCents  int64     `gorm:"not null" json:"price_cents"`
	Currency    string    `gorm:"size:8;not null;default:'usd'" json:"currency"`
	MemberCap   *int      `json:"member_cap"`
	Unlisted    bool      `gorm:"not null" json:"unlisted"`
	// Joinable carries no column default on purpose: GORM omits zero-value
	// fields that have one, which would make joinable=false unpersistable at
	// creation. The API layer defaults absent values to true instead.
	Joinable  bool      `gorm:"not null" json:"joinable"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM.
func (ClubTier) TableName() string {
	return "club_tiers"
}
