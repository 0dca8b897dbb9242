package cron

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"gridpick_backend/internal/model"
	"gridpick_backend/pkg/metrics"
)

type MembershipSource interface {
	EachMembership(ctx context.Context, fn func(userID string, active bool) error) error
}

type ProfileWriter interface {
	SetMembership(ctx context.Context, userID, membership string) error
}

// ProfileSync rewrites the profile cache from the subscription store. It
// repairs profile writes the webhook path dropped.
type ProfileSync struct {
	subs     MembershipSource
	profiles ProfileWriter
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
	timeout  time.Duration
}

type SyncResult struct {
	Synced int
	Failed int
}

func NewProfileSync(subs MembershipSource, profiles ProfileWriter, m *metrics.Metrics, log logrus.FieldLogger) *ProfileSync {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ProfileSync{subs: subs, profiles: profiles, metrics: m, log: log, timeout: 10 * time.Minute}
}

func (p *ProfileSync) Run(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	err := p.subs.EachMembership(ctx, func(userID string, active bool) error {
		if err := p.profiles.SetMembership(ctx, userID, model.MembershipFor(active)); err != nil {
			res.Failed++
			p.log.WithError(err).WithField("user_id", userID).Warn("Could not sync profile membership")
			return nil
		}
		res.Synced++
		return nil
	})

	p.metrics.ObserveProfileSync("ok", res.Synced)
	p.metrics.ObserveProfileSync("failed", res.Failed)
	return res, err
}

// InitProfileSyncCron schedules Run and returns the started scheduler so the
// caller can stop it on shutdown.
func InitProfileSyncCron(sync *ProfileSync, schedule string) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sync.timeout)
		defer cancel()

		sync.log.Info("Syncing profile memberships...")
		res, err := sync.Run(ctx)
		entry := sync.log.WithFields(logrus.Fields{"synced": res.Synced, "failed": res.Failed})
		if err != nil {
			entry.WithError(err).Error("Profile sync aborted")
			return
		}
		entry.Info("Profile sync finished")
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	return c, nil
}
