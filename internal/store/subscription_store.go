package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gridpick_backend/internal/model"
)

type SubscriptionStore struct {
	db *gorm.DB
}

func NewSubscriptionStore(db *gorm.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

func (s *SubscriptionStore) FindByUser(ctx context.Context, userID string) (*model.Subscription, error) {
	var sub model.Subscription
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ActiveStatus is the lightweight check used by the subscription endpoint.
// A missing row is reported as inactive with a nil error.
func (s *SubscriptionStore) ActiveStatus(ctx context.Context, userID string) (bool, error) {
	var rows []struct {
		Active *bool
	}
	err := s.db.WithContext(ctx).
		Raw(`SELECT active FROM subscriptions WHERE user_id = ? LIMIT 1`, userID).
		Scan(&rows).Error
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	return rows[0].Active == nil || *rows[0].Active, nil
}

// UpsertByUser inserts the row or overwrites its billing fields when a row
// for the same user already exists. Postgres serializes concurrent calls on
// the unique user_id index.
func (s *SubscriptionStore) UpsertByUser(ctx context.Context, sub *model.Subscription) error {
	columns := []string{"active", "stripe_customer_id", "stripe_subscription_id", "updated_at"}
	if sub.StripePriceID != nil {
		columns = append(columns, "stripe_price_id")
	}
	if sub.CurrentPeriodEnd != nil {
		columns = append(columns, "current_period_end")
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(sub).Error
}

// ActivateUser creates or refreshes the user's row with active=true and
// leaves billing references untouched.
func (s *SubscriptionStore) ActivateUser(ctx context.Context, userID string) error {
	sub := &model.Subscription{
		UserID: userID,
		Active: model.Bool(true),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"active", "updated_at"}),
	}).Create(sub).Error
}

// UpdateByBilling overwrites the rows that belong to a Stripe subscription
// and returns the ids of the users it touched. Rows are matched by
// subscription id; the customer id only claims rows that have no
// subscription yet, so events for a customer's earlier subscription never
// touch the current one. No match is not an error: the caller decides how to
// treat an event that arrived early.
func (s *SubscriptionStore) UpdateByBilling(ctx context.Context, u BillingUpdate) ([]string, error) {
	updates := map[string]interface{}{
		"active":                 u.Active,
		"stripe_subscription_id": u.SubscriptionID,
		"stripe_customer_id":     u.CustomerID,
		"updated_at":             time.Now(),
	}
	if u.PriceID != "" {
		updates["stripe_price_id"] = u.PriceID
	}
	if u.CurrentPeriodEnd != nil {
		updates["current_period_end"] = *u.CurrentPeriodEnd
	}

	var userIDs []string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Subscription{}).
			Where("stripe_subscription_id = ?", u.SubscriptionID).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			res = tx.Model(&model.Subscription{}).
				Where("stripe_customer_id = ? AND stripe_subscription_id IS NULL", u.CustomerID).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return nil
			}
		}
		return tx.Model(&model.Subscription{}).
			Where("stripe_subscription_id = ?", u.SubscriptionID).
			Pluck("user_id", &userIDs).Error
	})
	if err != nil {
		return nil, err
	}
	return userIDs, nil
}

// EachMembership walks every subscription row in batches.
func (s *SubscriptionStore) EachMembership(ctx context.Context, fn func(userID string, active bool) error) error {
	var batch []model.Subscription
	return s.db.WithContext(ctx).
		Select("id", "user_id", "active").
		FindInBatches(&batch, 500, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				if err := fn(batch[i].UserID, batch[i].IsActive()); err != nil {
					return err
				}
			}
			return nil
		}).Error
}
