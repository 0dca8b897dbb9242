package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gridpick_backend/internal/model"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

var subscriptionColumns = []string{
	"id", "user_id", "active", "stripe_customer_id", "stripe_subscription_id",
	"stripe_price_id", "current_period_end", "created_at", "updated_at",
}

func TestFindByUser(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewSubscriptionStore(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM "subscriptions" WHERE user_id = \$1`).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns).
			AddRow(1, "u1", false, "cus_1", "sub_1", nil, nil, now, now))

	sub, err := s.FindByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", sub.UserID)
	assert.False(t, sub.IsActive())
	require.NotNil(t, sub.StripeCustomerID)
	assert.Equal(t, "cus_1", *sub.StripeCustomerID)
	assert.Nil(t, sub.StripePriceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByUserLegacyRowWithoutActive(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewSubscriptionStore(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM "subscriptions" WHERE user_id = \$1`).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns).
			AddRow(7, "legacy", nil, nil, nil, nil, nil, now, now))

	sub, err := s.FindByUser(context.Background(), "legacy")
	require.NoError(t, err)
	assert.Nil(t, sub.Active)
	assert.True(t, sub.IsActive())
}

func TestFindByUserNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewSubscriptionStore(db)

	mock.ExpectQuery(`SELECT \* FROM "subscriptions" WHERE user_id = \$1`).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns))

	_, err := s.FindByUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByUserQueryError(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewSubscriptionStore(db)
	boom := errors.New("connection reset")

	mock.ExpectQuery(`SELECT \* FROM "subscriptions"`).WillReturnError(boom)

	_, err := s.FindByUser(context.Background(), "u1")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestActiveStatus(t *testing.T) {
	tests := []struct {
		name string
		rows *sqlmock.Rows
		want bool
	}{
		{name: "active", rows: sqlmock.NewRows([]string{"active"}).AddRow(true), want: true},
		{name: "inactive", rows: sqlmock.NewRows([]string{"active"}).AddRow(false), want: false},
		{name: "legacy null", rows: sqlmock.NewRows([]string{"active"}).AddRow(nil), want: true},
		{name: "missing row", rows: sqlmock.NewRows([]string{"active"}), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			s := NewSubscriptionStore(db)

			mock.ExpectQuery(`SELECT active FROM subscriptions WHERE user_id = \$1 LIMIT 1`).
				WithArgs("u1").
				WillReturnRows(tt.rows)

			got, err := s.ActiveStatus(context.Background(), "u1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUpsertByUserUsesOnConflict(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewSubscriptionStore(db)

	mock.ExpectQuery(`INSERT INTO "subscriptions" .* ON CONFLICT \("user_id"\) DO UPDATE SET "active"="excluded"."active","stripe_customer_id"="excluded"."stripe_customer_id","stripe_subscription_id"="excluded"."stripe_subscription_id","updated_at"="excluded"."updated_at"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	sub := &model.Subscription{
		UserID:               "u1",
		Active:               model.Bool(true),
		StripeCustomerID:     model.String("cus_1"),
		StripeSubscriptionID: model.String("sub_1"),
	}
	require.NoError(t, s.UpsertByUser(context.Background(), sub))
	assert.Equal(t, uint(1), sub.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertByUserOverwritesPriceWhenPresent(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewSubscriptionStore(db)

	mock.ExpectQuery(`ON CONFLICT \("user_id"\) DO UPDATE SET .*"stripe_price_id"="excluded"."stripe_price_id"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

	sub := &model.Subscription{
		UserID:               "u1",
		Active:               model.Bool(true),
		StripeCustomerID:     model.String("cus_1"),
		StripeSubscriptionID: model.String("sub_1"),
		StripePriceID:        model.String("price_pro"),
	}
	require.NoError(t, s.UpsertByUser(context.Background(), sub))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActivateUser(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewSubscriptionStore(db)

	mock.ExpectQuery(`INSERT INTO "subscriptions" .* ON CONFLICT \("user_id"\) DO UPDATE SET "active"="excluded"."active","updated_at"="excluded"."updated_at"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(9))

	require.NoError(t, s.ActivateUser(context.Background(), "u2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateByBilling(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewSubscriptionStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "subscriptions" SET .* WHERE stripe_subscription_id = \$\d+$`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .*user_id.* FROM "subscriptions" WHERE stripe_subscription_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
	mock.ExpectCommit()

	end := time.Date(2026, 11, 17, 0, 0, 0, 0, time.UTC)
	userIDs, err := s.UpdateByBilling(context.Background(), BillingUpdate{
		SubscriptionID:   "sub_1",
		CustomerID:       "cus_1",
		Active:           false,
		PriceID:          "price_free",
		CurrentPeriodEnd: &end,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, userIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateByBillingNoMatchingRow(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewSubscriptionStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "subscriptions" SET .* WHERE stripe_subscription_id = \$\d+$`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE "subscriptions" SET .* WHERE \(?stripe_customer_id = \$\d+ AND stripe_subscription_id IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	userIDs, err := s.UpdateByBilling(context.Background(), BillingUpdate{SubscriptionID: "sub_x", CustomerID: "cus_x"})
	require.NoError(t, err)
	assert.Empty(t, userIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateByBillingFallsBackToCustomerWithoutSubscription(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewSubscriptionStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "subscriptions" SET .* WHERE stripe_subscription_id = \$\d+$`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE "subscriptions" SET .* WHERE \(?stripe_customer_id = \$\d+ AND stripe_subscription_id IS NULL`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "cus_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT .*user_id.* FROM "subscriptions" WHERE stripe_subscription_id = \$1`).
		WithArgs("sub_1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
	mock.ExpectCommit()

	userIDs, err := s.UpdateByBilling(context.Background(), BillingUpdate{SubscriptionID: "sub_1", CustomerID: "cus_1", Active: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, userIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateByBillingRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewSubscriptionStore(db)
	boom := errors.New("deadlock detected")

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "subscriptions" SET`).WillReturnError(boom)
	mock.ExpectRollback()

	_, err := s.UpdateByBilling(context.Background(), BillingUpdate{SubscriptionID: "sub_1", CustomerID: "cus_1"})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileSetMembership(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewProfileStore(db)

	mock.ExpectQuery(`INSERT INTO "profiles" .* ON CONFLICT \("user_id"\) DO UPDATE SET "membership"="excluded"."membership","updated_at"="excluded"."updated_at"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	require.NoError(t, s.SetMembership(context.Background(), "u1", model.MembershipPro))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookEventMarkProcessed(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewWebhookEventStore(db)

	mock.ExpectExec(`UPDATE "webhook_events" SET .*"processing_error"=\$\d+.* WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ev := &model.WebhookEvent{}
	require.NoError(t, ev.BeforeCreate(nil))
	require.NoError(t, s.MarkProcessed(context.Background(), ev.ID, errors.New("missing data")))
	assert.NoError(t, mock.ExpectationsWereMet())
}
