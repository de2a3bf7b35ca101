package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Chore is a family-scoped task with a cash reward. Inactive chores are archived:
// parents still see them, kids do not.
type Chore struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	FamilyID     uint            `gorm:"index;not null" json:"-"`
	Title        string          `gorm:"size:255;not null" json:"title"`
	RewardAmount decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"rewardAmount"`
	Description  *string         `gorm:"type:text" json:"description"`
	Category     *string         `gorm:"size:64" json:"category"`
	Active       bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt    time.Time       `json:"-"`
	UpdatedAt    time.Time       `json:"-"`
}
