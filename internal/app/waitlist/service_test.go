package waitlist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"nightlife/internal/models"
	"nightlife/internal/notify"
	"nightlife/internal/store"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, msg notify.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func setup(t *testing.T, policy ExpiryPolicy) (Service, *clock, *mockNotifier) {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.CreateEvent(context.Background(), &models.Event{
		ID: "evt-1", Slug: "sold-out", Title: "Sold Out",
	}))

	c := &clock{now: time.Date(2026, 6, 1, 20, 0, 0, 0, time.UTC)}
	n := &mockNotifier{}
	n.On("Notify", mock.Anything, mock.Anything).Return(nil)
	return New(mem, n, WithClock(c.Now), WithPolicy(policy)), c, n
}

func TestJoinNormalisesAndDeduplicates(t *testing.T) {
	svc, c, _ := setup(t, KeepPolicy{})
	ctx := context.Background()

	first, created, err := svc.Join(ctx, JoinRequest{EventID: "evt-1", Email: " Fan@Example.COM "})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "fan@example.com", first.Email)
	assert.Equal(t, models.AnyTicket, first.TicketID)

	c.now = c.now.Add(time.Minute)
	again, created, err := svc.Join(ctx, JoinRequest{EventID: "evt-1", TicketID: "vip", Email: "fan@example.com"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	_, _, err = svc.Join(ctx, JoinRequest{EventID: "evt-1"})
	assert.ErrorIs(t, err, store.ErrValidation)
	_, _, err = svc.Join(ctx, JoinRequest{EventID: "missing", Email: "a@example.com"})
	assert.ErrorIs(t, err, store.ErrEventNotFound)
}

func TestProcessNotifiesOldestMatchingEntry(t *testing.T) {
	svc, c, n := setup(t, KeepPolicy{})
	ctx := context.Background()

	_, _, err := svc.Join(ctx, JoinRequest{EventID: "evt-1", TicketID: "vip", Email: "vip@example.com"})
	require.NoError(t, err)
	c.now = c.now.Add(time.Minute)
	_, _, err = svc.Join(ctx, JoinRequest{EventID: "evt-1", TicketID: "ga", Email: "ga@example.com"})
	require.NoError(t, err)

	entry, err := svc.Process(ctx, "evt-1", "ga")
	require.NoError(t, err)
	assert.Equal(t, "ga@example.com", entry.Email)
	assert.Equal(t, models.WaitlistNotified, entry.Status)
	assert.Equal(t, c.now.Add(HoldWindow), *entry.ExpiresAt)

	n.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(msg notify.Message) bool {
		return msg.Type == notify.TypeWaitlistNotified && msg.Email == "ga@example.com"
	}))

	_, err = svc.Process(ctx, "evt-1", "ga")
	assert.ErrorIs(t, err, store.ErrWaitlistEmpty)
}

func TestVerifyAccessWindow(t *testing.T) {
	svc, c, _ := setup(t, KeepPolicy{})
	ctx := context.Background()

	_, _, err := svc.Join(ctx, JoinRequest{EventID: "evt-1", Email: "fan@example.com"})
	require.NoError(t, err)

	ok, err := svc.VerifyAccess(ctx, "evt-1", "fan@example.com")
	require.NoError(t, err)
	assert.False(t, ok, "waiting entries have no access yet")

	_, err = svc.Process(ctx, "evt-1", "")
	require.NoError(t, err)

	c.now = c.now.Add(10 * time.Minute)
	ok, err = svc.VerifyAccess(ctx, "evt-1", "FAN@example.com")
	require.NoError(t, err)
	assert.True(t, ok)

	c.now = c.now.Add(10 * time.Minute)
	ok, err = svc.VerifyAccess(ctx, "evt-1", "fan@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpiryPolicies(t *testing.T) {
	tests := []struct {
		policy     ExpiryPolicy
		canRequeue bool
	}{
		{policy: KeepPolicy{}},
		{policy: ExpirePolicy{}},
		{policy: RequeuePolicy{}, canRequeue: true},
	}

	for _, tc := range tests {
		t.Run(tc.policy.Name(), func(t *testing.T) {
			svc, c, _ := setup(t, tc.policy)
			ctx := context.Background()

			_, _, err := svc.Join(ctx, JoinRequest{EventID: "evt-1", Email: "fan@example.com"})
			require.NoError(t, err)
			_, err = svc.Process(ctx, "evt-1", "")
			require.NoError(t, err)

			c.now = c.now.Add(HoldWindow + time.Second)
			ok, err := svc.VerifyAccess(ctx, "evt-1", "fan@example.com")
			require.NoError(t, err)
			assert.False(t, ok)

			// Only a requeued entry can be picked up again.
			_, err = svc.Process(ctx, "evt-1", "")
			if tc.canRequeue {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, store.ErrWaitlistEmpty)
			}
		})
	}
}

func TestMarkPurchased(t *testing.T) {
	svc, _, _ := setup(t, KeepPolicy{})
	ctx := context.Background()

	_, _, err := svc.Join(ctx, JoinRequest{EventID: "evt-1", Email: "fan@example.com"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.MarkPurchased(ctx, "evt-1", "fan@example.com"), store.ErrWaitlistEntryNotFound)

	_, err = svc.Process(ctx, "evt-1", "")
	require.NoError(t, err)
	require.NoError(t, svc.MarkPurchased(ctx, "evt-1", "fan@example.com"))

	ok, err := svc.VerifyAccess(ctx, "evt-1", "fan@example.com")
	require.NoError(t, err)
	assert.False(t, ok, "purchased entries no longer grant access")
}

func TestParsePolicy(t *testing.T) {
	for name, want := range map[string]string{"": PolicyKeep, "keep": PolicyKeep, "expire": PolicyExpire, "requeue": PolicyRequeue} {
		p, err := ParsePolicy(name)
		require.NoError(t, err)
		assert.Equal(t, want, p.Name())
	}
	_, err := ParsePolicy("forever")
	assert.Error(t, err)
}
