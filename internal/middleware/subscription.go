package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"gridpick_backend/internal/model"
	"gridpick_backend/internal/store"
	"gridpick_backend/pkg/metrics"
)

type GateMode string

const (
	GateStrict     GateMode = "strict"
	GatePermissive GateMode = "permissive"
)

// ParseGateMode falls back to strict for anything unrecognized and reports it.
func ParseGateMode(raw string) (GateMode, error) {
	switch GateMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", GateStrict:
		return GateStrict, nil
	case GatePermissive:
		return GatePermissive, nil
	default:
		return GateStrict, fmt.Errorf("unknown gate mode %q", raw)
	}
}

func (m GateMode) Permissive() bool {
	return m == GatePermissive
}

const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonActive          = "active"
	ReasonInactive        = "inactive"
	ReasonAutoActivated   = "auto_activated"
	ReasonLookupFailed    = "lookup_failed"
)

// Decision is terminal: either Allow is set or Redirect names the target.
type Decision struct {
	Allow    bool
	Redirect string
	Reason   string
}

type SubscriptionLookup interface {
	FindByUser(ctx context.Context, userID string) (*model.Subscription, error)
	ActivateUser(ctx context.Context, userID string) error
}

type GateOptions struct {
	Mode        GateMode
	LoginPath   string
	PricingPath string
	Logger      logrus.FieldLogger
	Metrics     *metrics.Metrics
}

// AccessGate decides whether a request may reach a protected page based on
// the caller's subscription row.
type AccessGate struct {
	subs        SubscriptionLookup
	mode        GateMode
	loginPath   string
	pricingPath string
	log         logrus.FieldLogger
	metrics     *metrics.Metrics
}

func NewAccessGate(subs SubscriptionLookup, opts GateOptions) *AccessGate {
	g := &AccessGate{
		subs:        subs,
		mode:        opts.Mode,
		loginPath:   opts.LoginPath,
		pricingPath: opts.PricingPath,
		log:         opts.Logger,
		metrics:     opts.Metrics,
	}
	if g.mode == "" {
		g.mode = GateStrict
	}
	if g.loginPath == "" {
		g.loginPath = "/sign-in"
	}
	if g.pricingPath == "" {
		g.pricingPath = "/pricing"
	}
	if g.log == nil {
		g.log = logrus.StandardLogger()
	}
	return g
}

func (g *AccessGate) Mode() GateMode {
	return g.mode
}

func (g *AccessGate) Decide(ctx context.Context, userID string) Decision {
	d := g.decide(ctx, userID)
	g.metrics.ObserveGate(string(g.mode), d.Reason)
	return d
}

func (g *AccessGate) decide(ctx context.Context, userID string) Decision {
	if userID == "" {
		return Decision{Redirect: g.loginPath, Reason: ReasonUnauthenticated}
	}

	entry := g.log.WithFields(logrus.Fields{"user_id": userID, "mode": g.mode})

	active := false
	sub, err := g.subs.FindByUser(ctx, userID)
	switch {
	case err == nil:
		active = sub.IsActive()
	case errors.Is(err, store.ErrNotFound):
	default:
		if g.mode.Permissive() {
			entry.WithError(err).Warn("Subscription lookup failed, allowing")
			return Decision{Allow: true, Reason: ReasonLookupFailed}
		}
		entry.WithError(err).Error("Subscription lookup failed, redirecting to pricing")
		return Decision{Redirect: g.pricingPath, Reason: ReasonLookupFailed}
	}

	if active {
		return Decision{Allow: true, Reason: ReasonActive}
	}

	if !g.mode.Permissive() {
		return Decision{Redirect: g.pricingPath, Reason: ReasonInactive}
	}

	if err := g.subs.ActivateUser(ctx, userID); err != nil {
		entry.WithError(err).Warn("Failed to activate subscription row")
	} else {
		entry.Info("Activated subscription row on first visit")
	}
	return Decision{Allow: true, Reason: ReasonAutoActivated}
}

const decisionLocalsKey = "gate_decision"

// GateDecision returns the decision that let the request through Handler.
func GateDecision(c *fiber.Ctx) (Decision, bool) {
	d, ok := c.Locals(decisionLocalsKey).(Decision)
	return d, ok
}

// Handler runs the gate for the authenticated caller and redirects with 303
// when access is denied. Authenticate must run first.
func (g *AccessGate) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		d := g.Decide(c.UserContext(), UserID(c))
		if d.Allow {
			c.Locals(decisionLocalsKey, d)
			return c.Next()
		}
		return c.Redirect(d.Redirect, fiber.StatusSeeOther)
	}
}
