package model

import "time"

// Subscription is the authoritative membership row for one user. Active is
// nullable: rows written before the column existed carry NULL and count as
// active.
type Subscription struct {
	ID                   uint       `json:"id" gorm:"primaryKey"`
	UserID               string     `json:"user_id" gorm:"type:varchar(191);not null;uniqueIndex"`
	Active               *bool      `json:"active"`
	StripeCustomerID     *string    `json:"stripe_customer_id" gorm:"type:varchar(191);index"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id" gorm:"type:varchar(191);index"`
	StripePriceID        *string    `json:"stripe_price_id" gorm:"type:varchar(191)"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func (s *Subscription) IsActive() bool {
	return s.Active == nil || *s.Active
}

func Bool(v bool) *bool {
	return &v
}

// String returns nil for the empty string so optional billing references stay NULL.
func String(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
