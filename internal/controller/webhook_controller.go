package controller

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"gridpick_backend/internal/model"
	"gridpick_backend/pkg/billing"
	"gridpick_backend/pkg/metrics"
)

type EventReconciler interface {
	Reconcile(ctx context.Context, ev billing.Event) (billing.Outcome, error)
}

type EventLog interface {
	Record(ctx context.Context, event *model.WebhookEvent) (bool, *model.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, processingErr error) error
}

type PayloadArchive interface {
	Archive(ctx context.Context, eventID, eventType string, payload []byte) (string, error)
}

type WebhookController struct {
	verifier   *billing.Verifier
	reconciler EventReconciler
	events     EventLog
	archive    PayloadArchive
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
}

type WebhookDeps struct {
	Verifier   *billing.Verifier
	Reconciler EventReconciler
	Events     EventLog
	Archive    PayloadArchive
	Metrics    *metrics.Metrics
	Logger     logrus.FieldLogger
}

func NewWebhookController(deps WebhookDeps) *WebhookController {
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WebhookController{
		verifier:   deps.Verifier,
		reconciler: deps.Reconciler,
		events:     deps.Events,
		archive:    deps.Archive,
		metrics:    deps.Metrics,
		log:        log,
	}
}

// HandleStripeWebhook verifies, records and applies one Stripe delivery.
// Only persistence failures answer 5xx; everything else Stripe would resend
// unchanged, so it gets a 400.
func (w *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	ctx := c.UserContext()
	// fiber reuses the request buffer after the handler returns
	payload := append([]byte(nil), c.Body()...)

	ev, err := w.verifier.Verify(payload, c.Get(billing.SignatureHeader))
	if err != nil {
		w.log.WithError(err).Warn("Rejected Stripe webhook")
		w.metrics.ObserveWebhook("", "rejected")
		return c.Status(fiber.StatusBadRequest).SendString("Webhook Error: " + err.Error())
	}

	entry := w.log.WithFields(logrus.Fields{"event_id": ev.ID, "event_type": ev.Type})
	eventType := string(ev.Type)

	record := w.recordEvent(ctx, entry, ev.ID, eventType, payload)
	if record != nil && record.Settled() {
		entry.Info("Stripe event already processed")
		w.metrics.ObserveWebhook(eventType, "duplicate")
		return c.SendStatus(fiber.StatusOK)
	}
	w.archivePayload(ctx, entry, ev.ID, eventType, payload)

	parsed, err := billing.ParseEvent(ev)
	if err == nil {
		var outcome billing.Outcome
		outcome, err = w.reconciler.Reconcile(ctx, parsed)
		if err == nil {
			w.markProcessed(ctx, entry, record, nil)
			w.metrics.ObserveWebhook(eventType, string(outcome))
			return c.SendStatus(fiber.StatusOK)
		}
	}

	w.markProcessed(ctx, entry, record, err)

	if billing.Retryable(err) {
		entry.WithError(err).Error("Failed to apply Stripe event")
		w.metrics.ObserveWebhook(eventType, "failed")
		return c.Status(fiber.StatusInternalServerError).SendString("Webhook error: " + err.Error())
	}

	if errors.Is(err, billing.ErrUnsupportedEvent) {
		entry.Debug("Ignoring unsupported Stripe event")
		w.metrics.ObserveWebhook(eventType, "unsupported")
	} else {
		entry.WithError(err).Warn("Invalid Stripe event")
		w.metrics.ObserveWebhook(eventType, "invalid")
	}
	return c.Status(fiber.StatusBadRequest).SendString("Webhook Error: " + err.Error())
}

// recordEvent returns nil when the event log is unavailable; the
// subscription store stays authoritative either way.
func (w *WebhookController) recordEvent(ctx context.Context, entry logrus.FieldLogger, id, eventType string, payload []byte) *model.WebhookEvent {
	if w.events == nil {
		return nil
	}
	_, rec, err := w.events.Record(ctx, &model.WebhookEvent{
		StripeEventID: id,
		EventType:     eventType,
		Payload:       datatypes.JSON(payload),
	})
	if err != nil {
		entry.WithError(err).Warn("Could not record Stripe event")
		return nil
	}
	return rec
}

func (w *WebhookController) markProcessed(ctx context.Context, entry logrus.FieldLogger, rec *model.WebhookEvent, processingErr error) {
	if w.events == nil || rec == nil {
		return
	}
	if err := w.events.MarkProcessed(ctx, rec.ID, processingErr); err != nil {
		entry.WithError(err).Warn("Could not mark Stripe event processed")
	}
}

func (w *WebhookController) archivePayload(ctx context.Context, entry logrus.FieldLogger, id, eventType string, payload []byte) {
	if w.archive == nil {
		return
	}
	key, err := w.archive.Archive(ctx, id, eventType, payload)
	if err != nil {
		entry.WithError(err).Warn("Could not archive Stripe payload")
		return
	}
	entry.WithField("object_key", key).Debug("Archived Stripe payload")
}
