package subscription

import "strings"

type Tier string

const (
	FreeTier Tier = "free"
	ProTier  Tier = "pro"
)

// Plans maps Stripe product and price ids onto membership tiers. Anything not
// listed is the free tier.
type Plans struct {
	paid map[string]struct{}
}

func NewPlans(proProductIDs, proPriceIDs []string) *Plans {
	p := &Plans{paid: make(map[string]struct{}, len(proProductIDs)+len(proPriceIDs))}
	for _, id := range append(append([]string{}, proProductIDs...), proPriceIDs...) {
		if id = strings.TrimSpace(id); id != "" {
			p.paid[id] = struct{}{}
		}
	}
	return p
}

// Membership resolves the tier for a subscription item. The product id is
// checked first; the price id lets a paid price on a shared product count.
func (p *Plans) Membership(productID, priceID string) Tier {
	if p == nil {
		return FreeTier
	}
	if _, ok := p.paid[strings.TrimSpace(productID)]; ok && productID != "" {
		return ProTier
	}
	if _, ok := p.paid[strings.TrimSpace(priceID)]; ok && priceID != "" {
		return ProTier
	}
	return FreeTier
}

func (t Tier) IsPaid() bool {
	return t == ProTier
}

// IsEntitlingStatus reports whether a Stripe subscription status keeps access.
// An empty status means the event did not carry one.
func IsEntitlingStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "active", "trialing", "past_due":
		return true
	default:
		return false
	}
}
