package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridpick_backend/internal/model"
	"gridpick_backend/internal/store/storetest"
	"gridpick_backend/pkg/metrics"
)

func newGate(mem *storetest.Memory, mode GateMode) (*AccessGate, *test.Hook) {
	log, hook := test.NewNullLogger()
	return NewAccessGate(mem, GateOptions{
		Mode:        mode,
		LoginPath:   "/sign-in",
		PricingPath: "/pricing",
		Logger:      log,
	}), hook
}

func TestParseGateMode(t *testing.T) {
	mode, err := ParseGateMode("")
	require.NoError(t, err)
	assert.Equal(t, GateStrict, mode)

	mode, err = ParseGateMode(" Permissive ")
	require.NoError(t, err)
	assert.Equal(t, GatePermissive, mode)

	mode, err = ParseGateMode("lenient")
	assert.Error(t, err)
	assert.Equal(t, GateStrict, mode)
}

func TestDecide(t *testing.T) {
	lookupErr := errors.New("pool exhausted")

	tests := []struct {
		name      string
		mode      GateMode
		userID    string
		row       *model.Subscription
		readErr   error
		want      Decision
		wantWrite bool
	}{
		{
			name: "strict unauthenticated",
			mode: GateStrict,
			want: Decision{Redirect: "/sign-in", Reason: ReasonUnauthenticated},
		},
		{
			name: "permissive unauthenticated",
			mode: GatePermissive,
			want: Decision{Redirect: "/sign-in", Reason: ReasonUnauthenticated},
		},
		{
			name:   "active row",
			mode:   GateStrict,
			userID: "user_1",
			row:    &model.Subscription{UserID: "user_1", Active: model.Bool(true)},
			want:   Decision{Allow: true, Reason: ReasonActive},
		},
		{
			name:   "legacy row without active column",
			mode:   GateStrict,
			userID: "user_1",
			row:    &model.Subscription{UserID: "user_1"},
			want:   Decision{Allow: true, Reason: ReasonActive},
		},
		{
			name:   "strict inactive row",
			mode:   GateStrict,
			userID: "user_1",
			row:    &model.Subscription{UserID: "user_1", Active: model.Bool(false)},
			want:   Decision{Redirect: "/pricing", Reason: ReasonInactive},
		},
		{
			name:   "strict missing row",
			mode:   GateStrict,
			userID: "user_1",
			want:   Decision{Redirect: "/pricing", Reason: ReasonInactive},
		},
		{
			name:      "permissive missing row",
			mode:      GatePermissive,
			userID:    "user_1",
			want:      Decision{Allow: true, Reason: ReasonAutoActivated},
			wantWrite: true,
		},
		{
			name:      "permissive inactive row",
			mode:      GatePermissive,
			userID:    "user_1",
			row:       &model.Subscription{UserID: "user_1", Active: model.Bool(false)},
			want:      Decision{Allow: true, Reason: ReasonAutoActivated},
			wantWrite: true,
		},
		{
			name:    "strict lookup error",
			mode:    GateStrict,
			userID:  "user_1",
			readErr: lookupErr,
			want:    Decision{Redirect: "/pricing", Reason: ReasonLookupFailed},
		},
		{
			name:    "permissive lookup error",
			mode:    GatePermissive,
			userID:  "user_1",
			readErr: lookupErr,
			want:    Decision{Allow: true, Reason: ReasonLookupFailed},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := storetest.NewMemory()
			if tt.row != nil {
				mem.Put(*tt.row)
			}
			mem.ReadErr = tt.readErr
			gate, _ := newGate(mem, tt.mode)

			got := gate.Decide(context.Background(), tt.userID)

			assert.Equal(t, tt.want, got)
			assert.NotEqual(t, got.Allow, got.Redirect != "", "decision must be terminal")
			if tt.userID == "" {
				assert.Zero(t, mem.Lookups)
			}
			if tt.wantWrite {
				row, ok := mem.Get("user_1")
				require.True(t, ok)
				assert.True(t, row.IsActive())
				assert.Equal(t, 1, mem.Count())
			} else {
				assert.Zero(t, mem.Writes)
			}
		})
	}
}

func TestPermissiveActivationFailureIsSwallowed(t *testing.T) {
	mem := storetest.NewMemory()
	mem.WriteErr = errors.New("read-only replica")
	gate, hook := newGate(mem, GatePermissive)

	got := gate.Decide(context.Background(), "user_1")

	assert.True(t, got.Allow)
	assert.Equal(t, 0, mem.Count())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestStrictLookupErrorIsLoggedAsError(t *testing.T) {
	mem := storetest.NewMemory()
	mem.ReadErr = errors.New("timeout")
	gate, hook := newGate(mem, GateStrict)

	gate.Decide(context.Background(), "user_1")

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestGateHandler(t *testing.T) {
	mem := storetest.NewMemory()
	mem.Put(model.Subscription{UserID: "pro_user", Active: model.Bool(true)})
	mem.Put(model.Subscription{UserID: "lapsed_user", Active: model.Bool(false)})
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	log, _ := test.NewNullLogger()
	gate := NewAccessGate(mem, GateOptions{Mode: GateStrict, Logger: log, Metrics: m})

	app := fiber.New()
	app.Get("/dashboard", Authenticate(testSecret), gate.Handler(), func(c *fiber.Ctx) error {
		return c.SendString("dashboard")
	})

	tests := []struct {
		name     string
		userID   string
		status   int
		location string
	}{
		{"anonymous", "", fiber.StatusSeeOther, "/sign-in"},
		{"active", "pro_user", fiber.StatusOK, ""},
		{"inactive", "lapsed_user", fiber.StatusSeeOther, "/pricing"},
		{"unknown", "new_user", fiber.StatusSeeOther, "/pricing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/dashboard", nil)
			if tt.userID != "" {
				req.Header.Set("Authorization", "Bearer "+token(t, tt.userID))
			}

			resp, err := app.Test(req)

			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.location, resp.Header.Get("Location"))
		})
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GateDecisionsTotal.WithLabelValues("strict", ReasonInactive)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateDecisionsTotal.WithLabelValues("strict", ReasonUnauthenticated)))
}
