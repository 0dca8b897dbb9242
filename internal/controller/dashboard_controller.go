package controller

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"gridpick_backend/internal/middleware"
	"gridpick_backend/internal/model"
	"gridpick_backend/internal/store"
	"gridpick_backend/pkg/database"
)

// GetDashboard runs behind the access gate. Membership comes from the row and
// access carries the gate's reason.
func (s *SubscriptionController) GetDashboard(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	resp := fiber.Map{
		"userId":     userID,
		"membership": model.MembershipFree,
	}
	if d, ok := middleware.GateDecision(c); ok {
		resp["access"] = d.Reason
	}

	sub, err := s.subs.FindByUser(c.UserContext(), userID)
	switch {
	case err == nil:
		resp["membership"] = model.MembershipFor(sub.IsActive())
		resp["currentPeriodEnd"] = sub.CurrentPeriodEnd
	case !errors.Is(err, store.ErrNotFound):
		s.log.WithError(err).WithField("user_id", userID).Warn("Could not load subscription for dashboard")
	}

	return c.JSON(resp)
}

// Health pings the connection pool.
func Health(db *gorm.DB, log logrus.FieldLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		if err := database.Ping(ctx, db); err != nil {
			log.WithError(err).Warn("Health check failed")
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
			})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
