package model

import "time"

const (
	MembershipFree = "free"
	MembershipPro  = "pro"
)

// Profile is a denormalized copy of the membership state. It is written from
// billing events but never consulted for access decisions.
type Profile struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	UserID     string    `json:"user_id" gorm:"type:varchar(191);not null;uniqueIndex"`
	Membership string    `json:"membership" gorm:"type:varchar(16);not null;default:'free'"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func MembershipFor(active bool) string {
	if active {
		return MembershipPro
	}
	return MembershipFree
}
