package store

import (
	"errors"
	"time"
)

// ErrNotFound means no row exists for the key. For subscriptions this is a
// valid state (the user never checked out), not a failure.
var ErrNotFound = errors.New("record not found")

// BillingUpdate carries the fields a subscription lifecycle event overwrites.
// Rows are matched by subscription id or customer id because the user is not
// part of those events.
type BillingUpdate struct {
	SubscriptionID   string
	CustomerID       string
	Active           bool
	PriceID          string
	CurrentPeriodEnd *time.Time
}
