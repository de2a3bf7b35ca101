package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kid belongs to one family. GoalAmount is the kid's savings target, nil when unset.
type Kid struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	FamilyID   uint             `gorm:"index;not null" json:"-"`
	Name       string           `gorm:"size:255;not null" json:"name"`
	LoginCode  string           `gorm:"column:login_code;size:64;not null;uniqueIndex" json:"-"`
	AvatarURL  *string          `gorm:"size:1024" json:"avatarUrl"`
	GoalAmount *decimal.Decimal `gorm:"type:numeric(10,2)" json:"goalAmount"`
	CreatedAt  time.Time        `json:"-"`
	UpdatedAt  time.Time        `json:"-"`
}
