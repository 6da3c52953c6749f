// Package subscription owns the time-bounded access windows.
//
// A user has at most one active window per network. Every voucher, payment or loyalty
// reward either opens a new window starting now or extends the active one from its
// current end, so windows never overlap.
package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-hotspot/billing"
	"go-hotspot/metrics"
	"go-hotspot/notify"
	"go-hotspot/web/db"
)

// Grant is one contribution of access time.
type Grant struct {
	PlanID   string
	Duration time.Duration
	Source   db.GrantSource
	SourceID string
}

type UsageReport struct {
	Subscription  db.Subscription `json:"subscription"`
	Active        bool            `json:"active"`
	Remaining     time.Duration   `json:"remaining"`
	DataUsedBytes int64           `json:"data_used_bytes"`
}

type Manager struct {
	db        *gorm.DB
	clock     clockwork.Clock
	logger    *zap.Logger
	metrics   *metrics.Metrics
	notifier  notify.Notifier
	networkID string
	alertLead time.Duration
	timeout   time.Duration
}

type Option func(*Manager)

func WithNetwork(id string) Option {
	return func(m *Manager) { m.networkID = id }
}

func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithAlertLead sets how long before the end of a window the expiry alert goes out.
func WithAlertLead(d time.Duration) Option {
	return func(m *Manager) { m.alertLead = d }
}

func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

func NewManager(conn *gorm.DB, clock clockwork.Clock, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		db:        conn,
		clock:     clock,
		logger:    logger.Named("subscription"),
		notifier:  notify.Discard{},
		networkID: "default",
		alertLead: 24 * time.Hour,
		timeout:   billing.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Now() time.Time {
	return m.clock.Now().UTC()
}

// Remaining is the access time left in sub at now, never negative.
func Remaining(sub db.Subscription, now time.Time) time.Duration {
	if left := sub.EndsAt.Sub(now); left > 0 {
		return left
	}
	return 0
}

func IsActive(sub db.Subscription, now time.Time) bool {
	return now.Before(sub.EndsAt)
}

// OpenWindow applies g to the user's access window inside tx. The caller must hold the
// user's profile lock.
func (m *Manager) OpenWindow(tx *gorm.DB, userID string, g Grant) (*db.Subscription, error) {
	if g.Duration <= 0 {
		return nil, fmt.Errorf("%w: grant duration must be positive", billing.ErrInvalidInput)
	}
	now := m.Now()

	// Windows that ended but were not swept yet are closed before the new grant.
	if err := tx.Model(&db.Subscription{}).
		Where("user_id = ? AND network_id = ? AND active = ? AND ends_at <= ?", userID, m.networkID, true, now).
		Update("active", false).Error; err != nil {
		return nil, fmt.Errorf("failed to close stale windows: %w", err)
	}

	var sub db.Subscription
	err := tx.Where("user_id = ? AND network_id = ? AND active = ?", userID, m.networkID, true).
		Order("ends_at desc").First(&sub).Error

	switch {
	case err == nil:
		sub.EndsAt = sub.EndsAt.Add(g.Duration)
		updates := map[string]any{
			"ends_at":       sub.EndsAt,
			"source":        g.Source,
			"alert_sent_at": nil,
		}
		if g.PlanID != "" {
			sub.PlanID = g.PlanID
			updates["plan_id"] = g.PlanID
		}
		sub.Source = g.Source
		sub.AlertSentAt = nil
		if err := tx.Model(&db.Subscription{}).Where("id = ?", sub.ID).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("failed to extend window: %w", err)
		}

	case db.IsNotFound(err):
		sub = db.Subscription{
			UserID:    userID,
			NetworkID: m.networkID,
			PlanID:    g.PlanID,
			Source:    g.Source,
			StartsAt:  now,
			EndsAt:    now.Add(g.Duration),
			Active:    true,
			CreatedAt: now,
		}
		if err := tx.Create(&sub).Error; err != nil {
			return nil, fmt.Errorf("failed to open window: %w", err)
		}

	default:
		return nil, fmt.Errorf("failed to load active window: %w", err)
	}

	grant := db.SubscriptionGrant{
		SubscriptionID: sub.ID,
		Source:         g.Source,
		SourceID:       g.SourceID,
		Hours:          int(g.Duration / time.Hour),
		GrantedAt:      now,
	}
	if err := tx.Create(&grant).Error; err != nil {
		return nil, fmt.Errorf("failed to record grant: %w", err)
	}

	m.metrics.WindowGranted(string(g.Source))
	return &sub, nil
}

// GrantBonus adds loyalty bonus days to the user's window.
func (m *Manager) GrantBonus(tx *gorm.DB, userID string, days int, sourceID string) (*db.Subscription, error) {
	if days <= 0 {
		return nil, fmt.Errorf("%w: bonus days must be positive", billing.ErrInvalidInput)
	}
	return m.OpenWindow(tx, userID, Grant{
		Duration: time.Duration(days) * 24 * time.Hour,
		Source:   db.SourceLoyalty,
		SourceID: sourceID,
	})
}

// Current returns the user's latest window, active or not.
func (m *Manager) Current(ctx context.Context, userID string) (*db.Subscription, error) {
	ctx, cancel := billing.WithTimeout(ctx, m.timeout)
	defer cancel()

	var sub db.Subscription
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND network_id = ?", userID, m.networkID).
		Order("ends_at desc").First(&sub).Error
	if db.IsNotFound(err) {
		return nil, billing.ErrNoActivePlan
	}
	if err != nil {
		return nil, billing.Classify(fmt.Errorf("failed to load window: %w", err))
	}
	return &sub, nil
}

func (m *Manager) Usage(ctx context.Context, userID string) (*UsageReport, error) {
	sub, err := m.Current(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := m.Now()
	return &UsageReport{
		Subscription:  *sub,
		Active:        IsActive(*sub, now),
		Remaining:     Remaining(*sub, now),
		DataUsedBytes: sub.DataUsedBytes,
	}, nil
}

// RecordUsage adds transferred bytes to the user's running window.
func (m *Manager) RecordUsage(ctx context.Context, userID string, bytes int64) error {
	if bytes < 0 {
		return fmt.Errorf("%w: usage must not be negative", billing.ErrInvalidInput)
	}

	ctx, cancel := billing.WithTimeout(ctx, m.timeout)
	defer cancel()

	res := m.db.WithContext(ctx).Model(&db.Subscription{}).
		Where("user_id = ? AND network_id = ? AND active = ? AND ends_at > ?", userID, m.networkID, true, m.Now()).
		UpdateColumn("data_used_bytes", gorm.Expr("data_used_bytes + ?", bytes))
	if res.Error != nil {
		return billing.Classify(fmt.Errorf("failed to record usage: %w", res.Error))
	}
	if res.RowsAffected == 0 {
		return billing.ErrNoActivePlan
	}
	return nil
}
