package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stripe/stripe-go/v74"
)

const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Event is one of CheckoutCompleted, SubscriptionChanged or Unsupported.
type Event interface {
	StripeEventID() string
	Type() string
	isEvent()
}

// CheckoutCompleted links a user to the Stripe customer and subscription
// created by a successful checkout.
type CheckoutCompleted struct {
	ID             string
	UserID         string `validate:"required"`
	SubscriptionID string `validate:"required"`
	CustomerID     string `validate:"required"`
	PriceID        string
}

// SubscriptionChanged is a plan change or cancellation. It does not name the
// user; rows are found by the billing references stored at checkout.
type SubscriptionChanged struct {
	ID               string
	Deleted          bool
	SubscriptionID   string `validate:"required"`
	CustomerID       string `validate:"required"`
	ProductID        string `validate:"required"`
	PriceID          string
	Status           string
	CurrentPeriodEnd *time.Time
}

type Unsupported struct {
	ID        string
	EventType string
}

func (e CheckoutCompleted) StripeEventID() string { return e.ID }
func (CheckoutCompleted) Type() string            { return EventCheckoutCompleted }
func (CheckoutCompleted) isEvent()                {}

func (e SubscriptionChanged) StripeEventID() string { return e.ID }
func (e SubscriptionChanged) Type() string {
	if e.Deleted {
		return EventSubscriptionDeleted
	}
	return EventSubscriptionUpdated
}
func (SubscriptionChanged) isEvent() {}

func (e Unsupported) StripeEventID() string { return e.ID }
func (e Unsupported) Type() string          { return e.EventType }
func (Unsupported) isEvent()                {}

var validate = validator.New()

// ParseEvent narrows a verified Stripe event to one of the supported variants.
// Unknown types come back as Unsupported together with ErrUnsupportedEvent.
func ParseEvent(ev stripe.Event) (Event, error) {
	switch string(ev.Type) {
	case EventCheckoutCompleted:
		return parseCheckout(ev)
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		return parseSubscription(ev)
	default:
		return Unsupported{ID: ev.ID, EventType: string(ev.Type)}, fmt.Errorf("%w: %s", ErrUnsupportedEvent, ev.Type)
	}
}

func rawObject(ev stripe.Event) ([]byte, error) {
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: event has no data object", ErrMissingData)
	}
	return ev.Data.Raw, nil
}

func parseCheckout(ev stripe.Event) (Event, error) {
	raw, err := rawObject(ev)
	if err != nil {
		return nil, err
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("%w: invalid checkout session: %w", ErrMissingData, err)
	}

	out := CheckoutCompleted{
		ID:     ev.ID,
		UserID: strings.TrimSpace(sess.ClientReferenceID),
	}
	if out.UserID == "" {
		out.UserID = strings.TrimSpace(sess.Metadata["userId"])
	}
	if sess.Customer != nil {
		out.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		out.SubscriptionID = sess.Subscription.ID
	}
	if sess.LineItems != nil && len(sess.LineItems.Data) > 0 && sess.LineItems.Data[0].Price != nil {
		out.PriceID = sess.LineItems.Data[0].Price.ID
	}

	if err := validateEvent(out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseSubscription(ev stripe.Event) (Event, error) {
	raw, err := rawObject(ev)
	if err != nil {
		return nil, err
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return nil, fmt.Errorf("%w: invalid subscription: %w", ErrMissingData, err)
	}

	out := SubscriptionChanged{
		ID:             ev.ID,
		Deleted:        string(ev.Type) == EventSubscriptionDeleted,
		SubscriptionID: sub.ID,
		Status:         string(sub.Status),
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0] != nil {
		item := sub.Items.Data[0]
		if item.Price != nil {
			out.PriceID = item.Price.ID
			if item.Price.Product != nil {
				out.ProductID = item.Price.Product.ID
			}
		}
		if out.ProductID == "" && item.Plan != nil && item.Plan.Product != nil {
			out.ProductID = item.Plan.Product.ID
		}
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		out.CurrentPeriodEnd = &end
	}

	if err := validateEvent(out); err != nil {
		return nil, err
	}
	return out, nil
}

func validateEvent(ev interface{}) error {
	err := validate.Struct(ev)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return fmt.Errorf("%w: missing %s", ErrMissingData, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %w", ErrMissingData, err)
}
