package billing

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"gridpick_backend/internal/model"
	"gridpick_backend/internal/store"
	"gridpick_backend/pkg/subscription"
)

type SubscriptionWriter interface {
	UpsertByUser(ctx context.Context, sub *model.Subscription) error
	UpdateByBilling(ctx context.Context, u store.BillingUpdate) ([]string, error)
}

type ProfileWriter interface {
	SetMembership(ctx context.Context, userID, membership string) error
}

type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	// OutcomeSkipped means the event referenced billing ids with no stored
	// row, usually an update delivered before its checkout.
	OutcomeSkipped Outcome = "skipped"
)

// Reconciler applies parsed billing events to the subscription store. Every
// write is an overwrite keyed by user or billing ids, so replaying an event
// leaves the store unchanged.
type Reconciler struct {
	subs     SubscriptionWriter
	profiles ProfileWriter
	plans    *subscription.Plans
	log      logrus.FieldLogger
}

func NewReconciler(subs SubscriptionWriter, profiles ProfileWriter, plans *subscription.Plans, log logrus.FieldLogger) *Reconciler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Reconciler{subs: subs, profiles: profiles, plans: plans, log: log}
}

func (r *Reconciler) Reconcile(ctx context.Context, ev Event) (Outcome, error) {
	switch e := ev.(type) {
	case CheckoutCompleted:
		if err := validateEvent(e); err != nil {
			return "", err
		}
		return r.applyCheckout(ctx, e)
	case SubscriptionChanged:
		if err := validateEvent(e); err != nil {
			return "", err
		}
		return r.applySubscriptionChange(ctx, e)
	case Unsupported:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedEvent, e.EventType)
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedEvent, ev)
	}
}

func (r *Reconciler) applyCheckout(ctx context.Context, e CheckoutCompleted) (Outcome, error) {
	sub := &model.Subscription{
		UserID:               e.UserID,
		Active:               model.Bool(true),
		StripeCustomerID:     model.String(e.CustomerID),
		StripeSubscriptionID: model.String(e.SubscriptionID),
		StripePriceID:        model.String(e.PriceID),
	}
	if err := r.subs.UpsertByUser(ctx, sub); err != nil {
		return "", fmt.Errorf("%w: upsert subscription for user %s: %w", ErrPersistence, e.UserID, err)
	}

	r.log.WithFields(logrus.Fields{
		"event_id":        e.ID,
		"user_id":         e.UserID,
		"subscription_id": e.SubscriptionID,
	}).Info("Activated subscription from checkout")

	r.syncProfile(ctx, e.UserID, true)
	return OutcomeApplied, nil
}

func (r *Reconciler) applySubscriptionChange(ctx context.Context, e SubscriptionChanged) (Outcome, error) {
	tier := r.plans.Membership(e.ProductID, e.PriceID)
	active := tier.IsPaid() && !e.Deleted && subscription.IsEntitlingStatus(e.Status)

	userIDs, err := r.subs.UpdateByBilling(ctx, store.BillingUpdate{
		SubscriptionID:   e.SubscriptionID,
		CustomerID:       e.CustomerID,
		Active:           active,
		PriceID:          e.PriceID,
		CurrentPeriodEnd: e.CurrentPeriodEnd,
	})
	if err != nil {
		return "", fmt.Errorf("%w: update subscription %s: %w", ErrPersistence, e.SubscriptionID, err)
	}

	entry := r.log.WithFields(logrus.Fields{
		"event_id":        e.ID,
		"event_type":      e.Type(),
		"subscription_id": e.SubscriptionID,
		"customer_id":     e.CustomerID,
		"tier":            tier,
		"active":          active,
	})
	if len(userIDs) == 0 {
		entry.Warn("No subscription row matches billing ids, skipping")
		return OutcomeSkipped, nil
	}
	entry.WithField("users", len(userIDs)).Info("Updated subscription")

	for _, userID := range userIDs {
		r.syncProfile(ctx, userID, active)
	}
	return OutcomeApplied, nil
}

// syncProfile mirrors the membership into the profile cache. The cache is
// never read for access decisions, so a failed write is only logged.
func (r *Reconciler) syncProfile(ctx context.Context, userID string, active bool) {
	if r.profiles == nil {
		return
	}
	if err := r.profiles.SetMembership(ctx, userID, model.MembershipFor(active)); err != nil {
		r.log.WithError(err).WithField("user_id", userID).Warn("Failed to update profile membership")
	}
}
