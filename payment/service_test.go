package payment

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-hotspot/billing"
	"go-hotspot/catalog"
	"go-hotspot/loyalty"
	"go-hotspot/notify"
	"go-hotspot/notify/notifytest"
	"go-hotspot/subscription"
	"go-hotspot/web/db"
	"go-hotspot/web/db/dbtest"
)

var start = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	conn    *gorm.DB
	clock   *clockwork.FakeClock
	sms     *notifytest.Recorder
	loyalty *loyalty.Engine
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		conn:  dbtest.Open(t),
		clock: clockwork.NewFakeClockAt(start),
		sms:   &notifytest.Recorder{},
	}
	subs := subscription.NewManager(f.conn, f.clock, zap.NewNop())
	f.loyalty = loyalty.NewEngine(f.conn, subs, f.clock, zap.NewNop())
	f.svc = NewService(f.conn, catalog.Default(), subs, f.loyalty, f.clock, zap.NewNop(), WithNotifier(f.sms))
	return f
}

func TestFlexiSurfPurchaseEarnsNinePoints(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.conn.Create(&db.Profile{UserID: "u1", PhoneNumber: "+256700000001"}).Error)

	p, err := f.svc.Purchase(t.Context(), "u1", "2", db.MethodMobileMoney)
	require.NoError(t, err)
	assert.Equal(t, db.PaymentPending, p.Status)
	assert.Equal(t, int64(9975), p.Amount)

	done, err := f.svc.Complete(t.Context(), p.ID, "MM-123")
	require.NoError(t, err)
	assert.Equal(t, db.PaymentCompleted, done.Status)
	assert.Equal(t, "MM-123", done.TransactionID)
	assert.NotEmpty(t, done.SubscriptionID)

	b, err := f.loyalty.Balance(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), b.Points)
	assert.Equal(t, int64(9975), b.TotalSpent)

	var sub db.Subscription
	require.NoError(t, f.conn.First(&sub, "id = ?", done.SubscriptionID).Error)
	assert.Equal(t, start.Add(168*time.Hour), sub.EndsAt.UTC())
	assert.Equal(t, db.SourcePayment, sub.Source)

	msgs := f.sms.OfType(notify.PlanPurchase)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Text, "You earned 9 loyalty points")
}

func TestCompleteTwiceAccruesOnce(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.Purchase(t.Context(), "u1", "3", db.MethodCash)
	require.NoError(t, err)
	_, err = f.svc.Complete(t.Context(), p.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Complete(t.Context(), p.ID, "")
	assert.ErrorIs(t, err, billing.ErrAlreadyUsed)
	_, err = f.svc.Fail(t.Context(), p.ID)
	assert.ErrorIs(t, err, billing.ErrAlreadyUsed)

	b, err := f.loyalty.Balance(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), b.Points)
}

func TestPurchaseValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Purchase(t.Context(), "u1", "2", "bitcoin")
	assert.ErrorIs(t, err, billing.ErrInvalidInput)
	_, err = f.svc.Purchase(t.Context(), "u1", "99", db.MethodCash)
	assert.ErrorIs(t, err, billing.ErrInvalidPlan)
	_, err = f.svc.Purchase(t.Context(), "", "2", db.MethodCash)
	assert.ErrorIs(t, err, billing.ErrInvalidInput)

	_, err = f.svc.Complete(t.Context(), "missing", "")
	assert.ErrorIs(t, err, billing.ErrNotFound)
	_, err = f.svc.Fail(t.Context(), "missing")
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestFailAndExpirePending(t *testing.T) {
	f := newFixture(t)

	failed, err := f.svc.Purchase(t.Context(), "u1", "1", db.MethodCash)
	require.NoError(t, err)
	p, err := f.svc.Fail(t.Context(), failed.ID)
	require.NoError(t, err)
	assert.Equal(t, db.PaymentFailed, p.Status)

	stale, err := f.svc.Purchase(t.Context(), "u1", "1", db.MethodCash)
	require.NoError(t, err)

	n, err := f.svc.ExpirePending(t.Context(), start.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.svc.ExpirePending(t.Context(), start.Add(DefaultPendingTTL+time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = f.svc.Complete(t.Context(), stale.ID, "")
	assert.ErrorIs(t, err, billing.ErrAlreadyUsed)

	payments, err := f.svc.List(t.Context(), "u1")
	require.NoError(t, err)
	assert.Len(t, payments, 2)
	for _, p := range payments {
		assert.Equal(t, db.PaymentFailed, p.Status)
	}
}

func TestPaymentsExtendEachOther(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Purchase(t.Context(), "u1", "1", db.MethodCash)
	require.NoError(t, err)
	second, err := f.svc.Purchase(t.Context(), "u1", "1", db.MethodCash)
	require.NoError(t, err)

	a, err := f.svc.Complete(t.Context(), first.ID, "")
	require.NoError(t, err)
	b, err := f.svc.Complete(t.Context(), second.ID, "")
	require.NoError(t, err)
	assert.Equal(t, a.SubscriptionID, b.SubscriptionID)

	var sub db.Subscription
	require.NoError(t, f.conn.First(&sub, "id = ?", a.SubscriptionID).Error)
	assert.Equal(t, start.Add(48*time.Hour), sub.EndsAt.UTC())
}
