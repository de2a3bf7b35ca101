package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money columns serialize as JSON numbers, not quoted strings.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Account roles carried in tokens.
const (
	RoleParent = "parent"
	RoleKid    = "kid"
)

// Login code prefixes per account kind.
const (
	PrefixFamily = "FAM"
	PrefixParent = "PAR"
	PrefixKid    = "KID"
)

// Family is the tenant boundary; every other row hangs off a family id.
type Family struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	FamilyCode string    `gorm:"size:64;not null;uniqueIndex" json:"familyCode"`
	CreatedAt  time.Time `json:"createdAt"`
}
