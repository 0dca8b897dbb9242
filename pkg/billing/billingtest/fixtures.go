// Package billingtest builds signed Stripe webhook payloads for tests.
package billingtest

import (
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/webhook"
)

const Secret = "whsec_test_secret"

// Sign returns a Stripe-Signature header value for payload signed at the
// given time.
func Sign(payload []byte, secret string, at time.Time) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: at,
	})
	return signed.Header
}

// Event wraps a data object in a Stripe event envelope.
func Event(id, eventType string, object map[string]interface{}) []byte {
	body := map[string]interface{}{
		"id":          id,
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"created":     time.Now().Unix(),
		"livemode":    false,
	}
	if object != nil {
		body["data"] = map[string]interface{}{"object": object}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return raw
}

func CheckoutSession(userID, customerID, subscriptionID string) map[string]interface{} {
	obj := map[string]interface{}{
		"id":     "cs_test_" + subscriptionID,
		"object": "checkout.session",
		"mode":   "subscription",
	}
	if userID != "" {
		obj["client_reference_id"] = userID
	}
	if customerID != "" {
		obj["customer"] = customerID
	}
	if subscriptionID != "" {
		obj["subscription"] = subscriptionID
	}
	return obj
}

func Subscription(id, customerID, productID, priceID, status string) map[string]interface{} {
	obj := map[string]interface{}{
		"id":                 id,
		"object":             "subscription",
		"current_period_end": time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
	}
	if customerID != "" {
		obj["customer"] = customerID
	}
	if status != "" {
		obj["status"] = status
	}
	if productID != "" || priceID != "" {
		price := map[string]interface{}{"id": priceID, "object": "price"}
		if productID != "" {
			price["product"] = productID
		}
		obj["items"] = map[string]interface{}{
			"object": "list",
			"data": []interface{}{
				map[string]interface{}{"id": "si_" + id, "object": "subscription_item", "price": price},
			},
		}
	}
	return obj
}
