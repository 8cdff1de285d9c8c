package models

import "time"

// ModelVersion is a gate-able release of a model. Only the fields the
// entitlement engine and projections touch live here; the rest of the model
// catalog is out of scope for this service.
type ModelVersion struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	Name         string       `gorm:"size:255;not null" json:"name"`
	UserID       uint         `gorm:"not null;index" json:"user_id"`
	Availability Availability `gorm:"type:varchar(16);not null;default:'public'" json:"availability"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Article is a gate-able long-form write-up.
type Article struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	Title        string       `gorm:"size:255;not null" json:"title"`
	UserID       uint         `gorm:"not null;index" json:"user_id"`
	Availability Availability `gorm:"type:varchar(16);not null;default:'public'" json:"availability"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Post is a gate-able feed post.
type Post struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	Title        string       `gorm:"size:255;not null" json:"title"`
	UserID       uint         `gorm:"not null;index" json:"user_id"`
	Availability Availability `gorm:"type:varchar(16);not null;default:'public'" json:"availability"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}
