// Package storetest provides an in-memory stand-in for the gorm stores with
// the same keying rules, for tests that exercise billing and gating logic.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gridpick_backend/internal/model"
	"gridpick_backend/internal/store"
)

type Memory struct {
	mu       sync.Mutex
	nextID   uint
	subs     map[string]*model.Subscription
	profiles map[string]string
	events   map[string]*model.WebhookEvent

	// ReadErr fails FindByUser, ActiveStatus and EachMembership.
	ReadErr error
	// WriteErr fails every subscription mutation.
	WriteErr error
	// ProfileErr fails SetMembership.
	ProfileErr error
	// EventErr fails Record and MarkProcessed.
	EventErr error

	Lookups int
	Writes  int
}

func NewMemory() *Memory {
	return &Memory{
		subs:     make(map[string]*model.Subscription),
		profiles: make(map[string]string),
		events:   make(map[string]*model.WebhookEvent),
	}
}

// Put seeds a row as-is, including a nil Active for legacy rows.
func (m *Memory) Put(sub model.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	sub.ID = m.nextID
	m.subs[sub.UserID] = &sub
}

func (m *Memory) Get(userID string) (model.Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[userID]
	if !ok {
		return model.Subscription{}, false
	}
	return *sub, true
}

func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Memory) Membership(userID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profiles[userID]
}

func (m *Memory) Event(stripeEventID string) (model.WebhookEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[stripeEventID]
	if !ok {
		return model.WebhookEvent{}, false
	}
	return *ev, true
}

func (m *Memory) FindByUser(_ context.Context, userID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lookups++
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	sub, ok := m.subs[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *sub
	return &out, nil
}

func (m *Memory) ActiveStatus(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Lookups++
	if m.ReadErr != nil {
		return false, m.ReadErr
	}
	sub, ok := m.subs[userID]
	if !ok {
		return false, nil
	}
	return sub.IsActive(), nil
}

func (m *Memory) UpsertByUser(_ context.Context, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Writes++
	now := time.Now()
	existing, ok := m.subs[sub.UserID]
	if !ok {
		m.nextID++
		row := *sub
		row.ID = m.nextID
		row.CreatedAt = now
		row.UpdatedAt = now
		m.subs[sub.UserID] = &row
		sub.ID = row.ID
		return nil
	}
	existing.Active = sub.Active
	existing.StripeCustomerID = sub.StripeCustomerID
	existing.StripeSubscriptionID = sub.StripeSubscriptionID
	if sub.StripePriceID != nil {
		existing.StripePriceID = sub.StripePriceID
	}
	if sub.CurrentPeriodEnd != nil {
		existing.CurrentPeriodEnd = sub.CurrentPeriodEnd
	}
	existing.UpdatedAt = now
	sub.ID = existing.ID
	return nil
}

func (m *Memory) ActivateUser(ctx context.Context, userID string) error {
	m.mu.Lock()
	if m.WriteErr != nil {
		m.mu.Unlock()
		return m.WriteErr
	}
	existing, ok := m.subs[userID]
	if ok {
		m.Writes++
		existing.Active = model.Bool(true)
		existing.UpdatedAt = time.Now()
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()
	return m.UpsertByUser(ctx, &model.Subscription{UserID: userID, Active: model.Bool(true)})
}

func (m *Memory) UpdateByBilling(_ context.Context, u store.BillingUpdate) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return nil, m.WriteErr
	}
	matched := m.matchBilling(func(sub *model.Subscription) bool {
		return sub.StripeSubscriptionID != nil && *sub.StripeSubscriptionID == u.SubscriptionID
	})
	if len(matched) == 0 {
		matched = m.matchBilling(func(sub *model.Subscription) bool {
			return sub.StripeSubscriptionID == nil &&
				sub.StripeCustomerID != nil && *sub.StripeCustomerID == u.CustomerID
		})
	}

	var userIDs []string
	for _, sub := range matched {
		sub.Active = model.Bool(u.Active)
		sub.StripeSubscriptionID = model.String(u.SubscriptionID)
		sub.StripeCustomerID = model.String(u.CustomerID)
		if u.PriceID != "" {
			sub.StripePriceID = model.String(u.PriceID)
		}
		if u.CurrentPeriodEnd != nil {
			end := *u.CurrentPeriodEnd
			sub.CurrentPeriodEnd = &end
		}
		sub.UpdatedAt = time.Now()
		userIDs = append(userIDs, sub.UserID)
	}
	if len(userIDs) > 0 {
		m.Writes++
	}
	sort.Strings(userIDs)
	return userIDs, nil
}

func (m *Memory) matchBilling(match func(*model.Subscription) bool) []*model.Subscription {
	var out []*model.Subscription
	for _, sub := range m.subs {
		if match(sub) {
			out = append(out, sub)
		}
	}
	return out
}

func (m *Memory) EachMembership(_ context.Context, fn func(userID string, active bool) error) error {
	m.mu.Lock()
	if m.ReadErr != nil {
		m.mu.Unlock()
		return m.ReadErr
	}
	rows := make([]model.Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		rows = append(rows, *sub)
	}
	m.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	for _, row := range rows {
		if err := fn(row.UserID, row.IsActive()); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) SetMembership(_ context.Context, userID, membership string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ProfileErr != nil {
		return m.ProfileErr
	}
	m.profiles[userID] = membership
	return nil
}

func (m *Memory) Record(_ context.Context, event *model.WebhookEvent) (bool, *model.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EventErr != nil {
		return false, nil, m.EventErr
	}
	if existing, ok := m.events[event.StripeEventID]; ok {
		out := *existing
		return false, &out, nil
	}
	row := *event
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.CreatedAt = time.Now()
	m.events[row.StripeEventID] = &row
	out := row
	return true, &out, nil
}

func (m *Memory) MarkProcessed(_ context.Context, id uuid.UUID, processingErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EventErr != nil {
		return m.EventErr
	}
	for _, ev := range m.events {
		if ev.ID != id {
			continue
		}
		now := time.Now()
		ev.ProcessedAt = &now
		ev.ProcessingError = ""
		if processingErr != nil {
			ev.ProcessingError = processingErr.Error()
		}
	}
	return nil
}
