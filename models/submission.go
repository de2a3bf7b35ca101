package models

import "time"

// Submission statuses. pending is the only non-terminal state.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Submission is a kid's photo claim that a chore was done.
type Submission struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ChoreID    uint       `gorm:"index;not null" json:"choreId"`
	KidID      uint       `gorm:"index;not null" json:"kidId"`
	PhotoURL   string     `gorm:"size:1024;not null" json:"photoUrl"`
	Status     string     `gorm:"size:16;not null;default:'pending';index" json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	ApprovedAt *time.Time `json:"approvedAt"`
	ApproverID *uint      `json:"approverId"`
}

// DecisionStatus maps a parent's decision to a terminal status: "reject" rejects,
// anything else approves.
func DecisionStatus(decision string) string {
	if decision == "reject" {
		return StatusRejected
	}
	return StatusApproved
}

// All returns every model for migration, in dependency order.
func All() []interface{} {
	return []interface{}{&Family{}, &Parent{}, &Kid{}, &Chore{}, &Submission{}}
}
