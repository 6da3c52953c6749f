package loyalty

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-hotspot/billing"
	"go-hotspot/notify/notifytest"
	"go-hotspot/subscription"
	"go-hotspot/web/db"
	"go-hotspot/web/db/dbtest"
)

var start = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	conn   *gorm.DB
	clock  *clockwork.FakeClock
	subs   *subscription.Manager
	engine *Engine
	sms    *notifytest.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		conn:  dbtest.Open(t),
		clock: clockwork.NewFakeClockAt(start),
		sms:   &notifytest.Recorder{},
	}
	f.subs = subscription.NewManager(f.conn, f.clock, zap.NewNop())
	f.engine = NewEngine(f.conn, f.subs, f.clock, zap.NewNop(), WithNotifier(f.sms))
	return f
}

func (f *fixture) setPoints(t *testing.T, userID string, points int64) {
	t.Helper()
	require.NoError(t, f.conn.Create(&db.Profile{UserID: userID, PhoneNumber: "+256700000001", LoyaltyPoints: points}).Error)
}

func TestPointsFor(t *testing.T) {
	assert.Equal(t, int64(9), PointsFor(9975))
	assert.Equal(t, int64(1), PointsFor(1500))
	assert.Equal(t, int64(40), PointsFor(40500))
	assert.Equal(t, int64(0), PointsFor(999))
	assert.Equal(t, int64(0), PointsFor(-1000))
}

func TestAccrueOncePerPayment(t *testing.T) {
	f := newFixture(t)

	points, err := f.engine.Accrue(t.Context(), "u1", "pay-1", 9975)
	require.NoError(t, err)
	assert.Equal(t, int64(9), points)

	points, err = f.engine.Accrue(t.Context(), "u1", "pay-1", 9975)
	require.NoError(t, err)
	assert.Zero(t, points)

	points, err = f.engine.Accrue(t.Context(), "u1", "pay-2", 1500)
	require.NoError(t, err)
	assert.Equal(t, int64(1), points)

	b, err := f.engine.Balance(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), b.Points)
	assert.Equal(t, int64(11475), b.TotalSpent)
	require.NotNil(t, b.NextTier)
	assert.Equal(t, int64(50), b.NextTier.Points)
}

func TestConcurrentAccrualOfOnePayment(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Accrue(t.Context(), "u1", "pay-1", 40500)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	b, err := f.engine.Balance(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), b.Points)
	assert.Equal(t, int64(40500), b.TotalSpent)
}

func TestAccrueValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Accrue(t.Context(), "u1", "", 1000)
	assert.ErrorIs(t, err, billing.ErrInvalidInput)
	_, err = f.engine.Accrue(t.Context(), "u1", "pay-1", -5)
	assert.ErrorIs(t, err, billing.ErrInvalidInput)
}

func TestRedeemExtendsActiveWindow(t *testing.T) {
	f := newFixture(t)
	f.setPoints(t, "u1", 200)

	var sub *db.Subscription
	require.NoError(t, f.conn.Transaction(func(tx *gorm.DB) error {
		var err error
		sub, err = f.subs.OpenWindow(tx, "u1", subscription.Grant{
			PlanID: "2", Duration: 168 * time.Hour, Source: db.SourcePayment, SourceID: "pay-1",
		})
		return err
	}))

	f.clock.Advance(2 * time.Hour)
	reward, err := f.engine.Redeem(t.Context(), "u1", 100)
	require.NoError(t, err)
	assert.True(t, reward.Redeemed)
	assert.Equal(t, 3, reward.DaysGranted)
	assert.Equal(t, int64(100), reward.PointsRequired)

	b, err := f.engine.Balance(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), b.Points)

	rewards, err := f.engine.Rewards(t.Context(), "u1")
	require.NoError(t, err)
	assert.Len(t, rewards, 1)

	cur, err := f.subs.Current(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, cur.ID)
	assert.Equal(t, sub.EndsAt.Add(72*time.Hour).UTC(), cur.EndsAt.UTC())

	assert.Len(t, f.sms.Messages(), 1)
}

func TestRedeemWithoutWindowOpensOne(t *testing.T) {
	f := newFixture(t)
	f.setPoints(t, "u1", 50)

	_, err := f.engine.Redeem(t.Context(), "u1", 50)
	require.NoError(t, err)

	cur, err := f.subs.Current(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, start.Add(24*time.Hour), cur.EndsAt.UTC())
	assert.Equal(t, db.SourceLoyalty, cur.Source)
}

func TestRedeemIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.setPoints(t, "u1", 80)

	_, err := f.engine.Redeem(t.Context(), "u1", 100)
	assert.ErrorIs(t, err, billing.ErrInsufficientPoints)
	_, err = f.engine.Redeem(t.Context(), "u1", 75)
	assert.ErrorIs(t, err, billing.ErrInvalidInput)

	b, err := f.engine.Balance(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(80), b.Points)

	var rewards, subs int64
	require.NoError(t, f.conn.Model(&db.LoyaltyReward{}).Count(&rewards).Error)
	require.NoError(t, f.conn.Model(&db.Subscription{}).Count(&subs).Error)
	assert.Zero(t, rewards)
	assert.Zero(t, subs)
}

func TestConcurrentRedeemNeverOverdraws(t *testing.T) {
	f := newFixture(t)
	f.setPoints(t, "u1", 120)

	const n = 4
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Redeem(t.Context(), "u1", 50)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, billing.ErrInsufficientPoints)
		}
	}
	assert.Equal(t, 2, ok)

	b, err := f.engine.Balance(t.Context(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), b.Points)
}

func TestParseTiers(t *testing.T) {
	tiers, err := ParseTiers("50:1, 100:3,200:7")
	require.NoError(t, err)
	assert.Equal(t, DefaultTiers(), tiers)

	for _, bad := range []string{"", "50", "50:x", "0:1", "50:1,50:2"} {
		_, err := ParseTiers(bad)
		assert.ErrorIs(t, err, billing.ErrInvalidInput, bad)
	}
}

func TestTiersAreSorted(t *testing.T) {
	f := newFixture(t)
	e := NewEngine(f.conn, f.subs, f.clock, zap.NewNop(), WithTiers([]Tier{{Points: 200, Days: 7}, {Points: 50, Days: 1}}))
	assert.Equal(t, []Tier{{Points: 50, Days: 1}, {Points: 200, Days: 7}}, e.Tiers())
}
