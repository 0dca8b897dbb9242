package controller

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"

	"gridpick_backend/internal/middleware"
	"gridpick_backend/internal/model"
	"gridpick_backend/internal/store"
)

type SubscriptionReader interface {
	FindByUser(ctx context.Context, userID string) (*model.Subscription, error)
	ActiveStatus(ctx context.Context, userID string) (bool, error)
}

type SubscriptionController struct {
	subs        SubscriptionReader
	mode        middleware.GateMode
	priceID     string
	appURL      string
	pricingPath string
	log         logrus.FieldLogger

	newSession func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type SubscriptionDeps struct {
	Subscriptions SubscriptionReader
	Mode          middleware.GateMode
	PriceID       string
	AppURL        string
	PricingPath   string
	Logger        logrus.FieldLogger
}

func NewSubscriptionController(deps SubscriptionDeps) *SubscriptionController {
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SubscriptionController{
		subs:        deps.Subscriptions,
		mode:        deps.Mode,
		priceID:     deps.PriceID,
		appURL:      strings.TrimRight(deps.AppURL, "/"),
		pricingPath: deps.PricingPath,
		log:         log,
		newSession:  session.New,
	}
}

// CheckSubscription answers {isPro} straight from the store without touching
// the gate's activation path.
func (s *SubscriptionController) CheckSubscription(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing userId",
		})
	}

	active, err := s.subs.ActiveStatus(c.UserContext(), userID)
	if err != nil {
		entry := s.log.WithError(err).WithFields(logrus.Fields{"user_id": userID, "mode": s.mode})
		if s.mode.Permissive() {
			entry.Warn("Subscription check failed, reporting pro")
			return c.JSON(fiber.Map{"isPro": true})
		}
		entry.Error("Subscription check failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not check subscription",
		})
	}

	return c.JSON(fiber.Map{"isPro": active})
}

func (s *SubscriptionController) CreateCheckoutSession(c *fiber.Ctx) error {
	claims, ok := middleware.CurrentUser(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}
	if s.priceID == "" {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Checkout is not configured",
		})
	}

	userID := claims.UserID()
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(userID),
		SuccessURL:        stripe.String(s.appURL + "/dashboard?checkout=success"),
		CancelURL:         stripe.String(s.appURL + s.pricingPath),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.priceID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.AddMetadata("userId", userID)

	// Reuse the Stripe customer from an earlier checkout.
	if sub, err := s.subs.FindByUser(c.UserContext(), userID); err == nil && sub.StripeCustomerID != nil {
		params.Customer = sub.StripeCustomerID
	} else if claims.Email != "" {
		params.CustomerEmail = stripe.String(claims.Email)
	}

	sess, err := s.newSession(params)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("Could not create checkout session")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not create checkout session",
		})
	}

	return c.JSON(fiber.Map{"url": sess.URL})
}

func (s *SubscriptionController) GetMySubscription(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	sub, err := s.subs.FindByUser(c.UserContext(), userID)
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No subscription found",
		})
	}
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("Could not fetch subscription")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not fetch subscription",
		})
	}

	return c.JSON(fiber.Map{
		"subscription": sub,
		"active":       sub.IsActive(),
	})
}
