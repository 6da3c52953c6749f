// Package loyalty credits points for spend and redeems them for bonus access days.
package loyalty

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"go-hotspot/billing"
	"go-hotspot/metrics"
	"go-hotspot/notify"
	"go-hotspot/subscription"
	"go-hotspot/web/db"
)

// PointValue is the spend in UGX that earns one point.
const PointValue = 1000

// Tier is a redeemable reward: Points buys Days of extra access.
type Tier struct {
	Points int64 `json:"points" yaml:"points"`
	Days   int   `json:"days" yaml:"days"`
}

func DefaultTiers() []Tier {
	return []Tier{
		{Points: 50, Days: 1},
		{Points: 100, Days: 3},
		{Points: 200, Days: 7},
	}
}

// PointsFor returns the points earned by amount.
func PointsFor(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return amount / PointValue
}

type Balance struct {
	Points     int64 `json:"points"`
	TotalSpent int64 `json:"total_spent"`
	NextTier   *Tier `json:"next_tier,omitempty"`
}

type Engine struct {
	db       *gorm.DB
	subs     *subscription.Manager
	clock    clockwork.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics
	notifier notify.Notifier
	tiers    []Tier
	timeout  time.Duration
}

type Option func(*Engine)

// WithTiers replaces the reward table.
func WithTiers(tiers []Tier) Option {
	return func(e *Engine) { e.tiers = tiers }
}

func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

func NewEngine(conn *gorm.DB, subs *subscription.Manager, clock clockwork.Clock, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		db:       conn,
		subs:     subs,
		clock:    clock,
		logger:   logger.Named("loyalty"),
		notifier: notify.Discard{},
		tiers:    DefaultTiers(),
		timeout:  billing.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.tiers = slices.Clone(e.tiers)
	slices.SortFunc(e.tiers, func(a, b Tier) int { return cmp.Compare(a.Points, b.Points) })
	return e
}

func (e *Engine) Tiers() []Tier {
	return slices.Clone(e.tiers)
}

// Accrue credits the points for paymentID once. Repeats return 0 points and no error.
func (e *Engine) Accrue(ctx context.Context, userID, paymentID string, amount int64) (int64, error) {
	var points int64
	err := billing.Retry(ctx, billing.DefaultAttempts, func(ctx context.Context) error {
		ctx, cancel := billing.WithTimeout(ctx, e.timeout)
		defer cancel()

		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			points, err = e.AccrueTx(tx, userID, paymentID, amount)
			return err
		})
	})
	if err != nil {
		return 0, err
	}
	e.metrics.PointsCredited(points)
	return points, nil
}

// AccrueTx is Accrue inside the caller's transaction.
func (e *Engine) AccrueTx(tx *gorm.DB, userID, paymentID string, amount int64) (int64, error) {
	if userID == "" || paymentID == "" {
		return 0, fmt.Errorf("%w: user and payment id are required", billing.ErrInvalidInput)
	}
	if amount < 0 {
		return 0, fmt.Errorf("%w: amount must not be negative", billing.ErrInvalidInput)
	}

	profile, err := db.LockProfile(tx, userID)
	if err != nil {
		return 0, err
	}

	points := PointsFor(amount)
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&db.LoyaltyAccrual{
		PaymentID: paymentID,
		UserID:    userID,
		Amount:    amount,
		Points:    points,
		CreatedAt: e.clock.Now().UTC(),
	})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to record accrual: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		e.logger.Debug("payment already accrued", zap.String("payment_id", paymentID))
		return 0, nil
	}

	if err := updateBalance(tx, profile, map[string]any{
		"loyalty_points": gorm.Expr("loyalty_points + ?", points),
		"total_spent":    gorm.Expr("total_spent + ?", amount),
	}); err != nil {
		return 0, err
	}
	return points, nil
}

// Redeem spends tierPoints for the matching tier's bonus days. The deduction, the reward
// record and the window extension commit together or not at all.
func (e *Engine) Redeem(ctx context.Context, userID string, tierPoints int64) (*db.LoyaltyReward, error) {
	tier, ok := lo.Find(e.tiers, func(t Tier) bool { return t.Points == tierPoints })
	if !ok {
		return nil, fmt.Errorf("%w: no reward tier for %d points", billing.ErrInvalidInput, tierPoints)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", billing.ErrInvalidInput)
	}

	var (
		reward  db.LoyaltyReward
		sub     *db.Subscription
		profile *db.Profile
	)
	err := billing.Retry(ctx, billing.DefaultAttempts, func(ctx context.Context) error {
		ctx, cancel := billing.WithTimeout(ctx, e.timeout)
		defer cancel()

		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			profile, err = db.LockProfile(tx, userID)
			if err != nil {
				return err
			}
			if profile.LoyaltyPoints < tier.Points {
				return fmt.Errorf("%w: have %d, need %d", billing.ErrInsufficientPoints, profile.LoyaltyPoints, tier.Points)
			}

			if err := updateBalance(tx, profile, map[string]any{
				"loyalty_points": gorm.Expr("loyalty_points - ?", tier.Points),
			}); err != nil {
				return err
			}

			now := e.clock.Now().UTC()
			reward = db.LoyaltyReward{
				UserID:         userID,
				PointsRequired: tier.Points,
				DaysGranted:    tier.Days,
				Redeemed:       true,
				RedeemedAt:     &now,
				CreatedAt:      now,
			}
			if err := tx.Create(&reward).Error; err != nil {
				return fmt.Errorf("failed to record reward: %w", err)
			}

			sub, err = e.subs.GrantBonus(tx, userID, tier.Days, reward.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	e.metrics.RewardRedeemed(tier.Points)
	e.logger.Info("redeemed loyalty reward",
		zap.String("user_id", userID),
		zap.Int64("points", tier.Points),
		zap.Int("days", tier.Days))
	e.notifier.Notify(notify.Message{
		UserID:      userID,
		PhoneNumber: profile.PhoneNumber,
		Text:        notify.BonusText(tier.Days, sub.EndsAt),
		Type:        notify.PlanPurchase,
	})
	return &reward, nil
}

func (e *Engine) Balance(ctx context.Context, userID string) (*Balance, error) {
	ctx, cancel := billing.WithTimeout(ctx, e.timeout)
	defer cancel()

	var p db.Profile
	err := e.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error
	if err != nil && !db.IsNotFound(err) {
		return nil, billing.Classify(fmt.Errorf("failed to load balance: %w", err))
	}

	b := &Balance{Points: p.LoyaltyPoints, TotalSpent: p.TotalSpent}
	if next, ok := lo.Find(e.tiers, func(t Tier) bool { return t.Points > p.LoyaltyPoints }); ok {
		b.NextTier = &next
	}
	return b, nil
}

// Rewards lists the user's redeemed rewards, newest first.
func (e *Engine) Rewards(ctx context.Context, userID string) ([]db.LoyaltyReward, error) {
	ctx, cancel := billing.WithTimeout(ctx, e.timeout)
	defer cancel()

	var rewards []db.LoyaltyReward
	if err := e.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at desc").Find(&rewards).Error; err != nil {
		return nil, billing.Classify(fmt.Errorf("failed to list rewards: %w", err))
	}
	return rewards, nil
}

// ParseTiers reads a "points:days,points:days" list.
func ParseTiers(s string) ([]Tier, error) {
	var tiers []Tier
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var t Tier
		if _, err := fmt.Sscanf(part, "%d:%d", &t.Points, &t.Days); err != nil || t.Points <= 0 || t.Days <= 0 {
			return nil, fmt.Errorf("%w: bad loyalty tier %q", billing.ErrInvalidInput, part)
		}
		tiers = append(tiers, t)
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: no loyalty tiers", billing.ErrInvalidInput)
	}
	if len(lo.UniqBy(tiers, func(t Tier) int64 { return t.Points })) != len(tiers) {
		return nil, fmt.Errorf("%w: duplicate loyalty tier", billing.ErrInvalidInput)
	}
	return tiers, nil
}

// updateBalance applies a version-checked update to the profile row. A concurrent
// writer that got there first turns into ErrPersistenceConflict.
func updateBalance(tx *gorm.DB, profile *db.Profile, updates map[string]any) error {
	updates["version"] = gorm.Expr("version + 1")
	res := tx.Model(&db.Profile{}).
		Where("user_id = ? AND version = ?", profile.UserID, profile.Version).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update balance: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return billing.ErrPersistenceConflict
	}
	profile.Version++
	return nil
}
