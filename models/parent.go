package models

import "time"

// Parent is created together with its family at registration. LoginCode holds the
// HMAC digest of the issued code, never the code itself.
type Parent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FamilyID  uint      `gorm:"index;not null" json:"familyId"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;not null" json:"email"`
	LoginCode string    `gorm:"column:login_code;size:64;not null;uniqueIndex" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}
