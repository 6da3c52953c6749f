// Package payment settles plan purchases. A completed payment opens or extends the
// buyer's access window and credits loyalty points in the same transaction.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-hotspot/billing"
	"go-hotspot/catalog"
	"go-hotspot/loyalty"
	"go-hotspot/metrics"
	"go-hotspot/notify"
	"go-hotspot/subscription"
	"go-hotspot/web/db"
)

// DefaultPendingTTL is how long a purchase may stay pending before the sweep fails it.
const DefaultPendingTTL = 24 * time.Hour

type Service struct {
	db         *gorm.DB
	catalog    *catalog.Catalog
	subs       *subscription.Manager
	loyalty    *loyalty.Engine
	clock      clockwork.Clock
	logger     *zap.Logger
	metrics    *metrics.Metrics
	notifier   notify.Notifier
	pendingTTL time.Duration
	timeout    time.Duration
}

type Option func(*Service)

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithPendingTTL(d time.Duration) Option {
	return func(s *Service) { s.pendingTTL = d }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func NewService(conn *gorm.DB, cat *catalog.Catalog, subs *subscription.Manager, engine *loyalty.Engine, clock clockwork.Clock, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		db:         conn,
		catalog:    cat,
		subs:       subs,
		loyalty:    engine,
		clock:      clock,
		logger:     logger.Named("payment"),
		notifier:   notify.Discard{},
		pendingTTL: DefaultPendingTTL,
		timeout:    billing.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Purchase records a pending payment for planID at the plan's current price.
func (s *Service) Purchase(ctx context.Context, userID, planID string, method db.PaymentMethod) (*db.Payment, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", billing.ErrInvalidInput)
	}
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unknown payment method %q", billing.ErrInvalidInput, method)
	}
	plan, err := s.catalog.Get(planID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := billing.WithTimeout(ctx, s.timeout)
	defer cancel()

	p := db.Payment{
		UserID:    userID,
		PlanID:    plan.ID,
		Amount:    plan.PriceUGX,
		Method:    method,
		Status:    db.PaymentPending,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, billing.Classify(fmt.Errorf("failed to create payment: %w", err))
	}

	s.logger.Info("payment created",
		zap.String("payment_id", p.ID),
		zap.String("user_id", userID),
		zap.String("plan_id", plan.ID),
		zap.Int64("amount", p.Amount))
	return &p, nil
}

// Complete settles a pending payment: it opens the plan's access window and credits
// loyalty points. Settling twice returns ErrAlreadyUsed.
func (s *Service) Complete(ctx context.Context, paymentID, transactionID string) (*db.Payment, error) {
	var (
		p       db.Payment
		plan    catalog.Plan
		sub     *db.Subscription
		profile *db.Profile
		points  int64
	)
	err := billing.Retry(ctx, billing.DefaultAttempts, func(ctx context.Context) error {
		ctx, cancel := billing.WithTimeout(ctx, s.timeout)
		defer cancel()

		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			if p, err = s.load(tx, paymentID); err != nil {
				return err
			}
			if profile, err = db.LockProfile(tx, p.UserID); err != nil {
				return err
			}
			if p.Status != db.PaymentPending {
				return fmt.Errorf("%w: payment %s is %s", billing.ErrAlreadyUsed, paymentID, p.Status)
			}
			if plan, err = s.catalog.Get(p.PlanID); err != nil {
				return err
			}

			now := s.clock.Now().UTC()
			res := tx.Model(&db.Payment{}).
				Where("id = ? AND status = ?", p.ID, db.PaymentPending).
				Updates(map[string]any{
					"status":         db.PaymentCompleted,
					"transaction_id": transactionID,
					"settled_at":     now,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to settle payment: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: payment %s", billing.ErrAlreadyUsed, paymentID)
			}

			sub, err = s.subs.OpenWindow(tx, p.UserID, subscription.Grant{
				PlanID:   plan.ID,
				Duration: plan.Duration(),
				Source:   db.SourcePayment,
				SourceID: p.ID,
			})
			if err != nil {
				return err
			}
			if err := tx.Model(&db.Payment{}).Where("id = ?", p.ID).
				Update("subscription_id", sub.ID).Error; err != nil {
				return fmt.Errorf("failed to link subscription: %w", err)
			}

			points, err = s.loyalty.AccrueTx(tx, p.UserID, p.ID, p.Amount)
			if err != nil {
				return err
			}

			p.Status = db.PaymentCompleted
			p.TransactionID = transactionID
			p.SubscriptionID = sub.ID
			p.SettledAt = &now
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentSettled(string(db.PaymentCompleted))
	s.metrics.PointsCredited(points)
	s.logger.Info("payment completed",
		zap.String("payment_id", p.ID),
		zap.String("user_id", p.UserID),
		zap.Int64("points", points),
		zap.Time("valid_until", sub.EndsAt))

	s.notifier.Notify(notify.Message{
		UserID:      p.UserID,
		PhoneNumber: profile.PhoneNumber,
		Text:        notify.PurchaseText(plan.Name, sub.EndsAt, points),
		Type:        notify.PlanPurchase,
	})
	return &p, nil
}

// Fail marks a pending payment as failed.
func (s *Service) Fail(ctx context.Context, paymentID string) (*db.Payment, error) {
	ctx, cancel := billing.WithTimeout(ctx, s.timeout)
	defer cancel()

	var p db.Payment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = s.load(tx, paymentID); err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		res := tx.Model(&db.Payment{}).
			Where("id = ? AND status = ?", p.ID, db.PaymentPending).
			Updates(map[string]any{"status": db.PaymentFailed, "settled_at": now})
		if res.Error != nil {
			return fmt.Errorf("failed to update payment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: payment %s is %s", billing.ErrAlreadyUsed, paymentID, p.Status)
		}
		p.Status = db.PaymentFailed
		p.SettledAt = &now
		return nil
	})
	if err != nil {
		return nil, billing.Classify(err)
	}

	s.metrics.PaymentSettled(string(db.PaymentFailed))
	return &p, nil
}

// ExpirePending fails payments left pending longer than the pending TTL.
func (s *Service) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := billing.WithTimeout(ctx, s.timeout)
	defer cancel()

	res := s.db.WithContext(ctx).Model(&db.Payment{}).
		Where("status = ? AND created_at < ?", db.PaymentPending, now.Add(-s.pendingTTL)).
		Updates(map[string]any{"status": db.PaymentFailed, "settled_at": now})
	if res.Error != nil {
		return 0, billing.Classify(fmt.Errorf("failed to expire pending payments: %w", res.Error))
	}
	if res.RowsAffected > 0 {
		s.logger.Info("expired pending payments", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// List returns the user's payments, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]db.Payment, error) {
	ctx, cancel := billing.WithTimeout(ctx, s.timeout)
	defer cancel()

	var payments []db.Payment
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at desc").Find(&payments).Error; err != nil {
		return nil, billing.Classify(fmt.Errorf("failed to list payments: %w", err))
	}
	return payments, nil
}

func (s *Service) load(tx *gorm.DB, paymentID string) (db.Payment, error) {
	var p db.Payment
	err := tx.First(&p, "id = ?", paymentID).Error
	if db.IsNotFound(err) {
		return p, fmt.Errorf("%w: payment %s", billing.ErrNotFound, paymentID)
	}
	if err != nil {
		return p, fmt.Errorf("failed to load payment: %w", err)
	}
	return p, nil
}
