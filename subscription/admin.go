package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-hotspot/billing"
	"go-hotspot/notify"
	"go-hotspot/web/db"
)

// MaxExtendHours bounds a single staff extension.
const MaxExtendHours = 24 * 365

// Disconnect ends the user's running window now and sends a deactivation message.
func (m *Manager) Disconnect(ctx context.Context, userID string) (*db.Subscription, error) {
	ctx, cancel := billing.WithTimeout(ctx, m.timeout)
	defer cancel()

	var (
		sub     db.Subscription
		profile *db.Profile
	)
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if profile, err = db.LockProfile(tx, userID); err != nil {
			return err
		}

		now := m.Now()
		err = tx.Where("user_id = ? AND network_id = ? AND active = ? AND ends_at > ?", userID, m.networkID, true, now).
			Order("ends_at desc").First(&sub).Error
		if db.IsNotFound(err) {
			return billing.ErrNoActivePlan
		}
		if err != nil {
			return fmt.Errorf("failed to load active window: %w", err)
		}

		sub.Active = false
		sub.EndsAt = now
		return tx.Model(&db.Subscription{}).Where("id = ?", sub.ID).
			Updates(map[string]any{"active": false, "ends_at": now}).Error
	})
	if err != nil {
		return nil, billing.Classify(err)
	}

	m.metrics.WindowClosed()
	m.logger.Info("window disconnected", zap.String("user_id", userID), zap.String("subscription_id", sub.ID))
	m.notifier.Notify(notify.Message{
		UserID:      userID,
		PhoneNumber: profile.PhoneNumber,
		Text:        notify.DeactivationText(),
		Type:        notify.Deactivation,
	})
	return &sub, nil
}

// Extend grants hours of access on behalf of staff member actorID, extending a running
// window from its end or opening a new one.
func (m *Manager) Extend(ctx context.Context, userID string, hours int, actorID string) (*db.Subscription, error) {
	if hours < 1 || hours > MaxExtendHours {
		return nil, fmt.Errorf("%w: hours must be between 1 and %d", billing.ErrInvalidInput, MaxExtendHours)
	}

	var sub *db.Subscription
	err := billing.Retry(ctx, billing.DefaultAttempts, func(ctx context.Context) error {
		ctx, cancel := billing.WithTimeout(ctx, m.timeout)
		defer cancel()

		return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, err := db.LockProfile(tx, userID); err != nil {
				return err
			}
			var err error
			sub, err = m.OpenWindow(tx, userID, Grant{
				Duration: time.Duration(hours) * time.Hour,
				Source:   db.SourceAdmin,
				SourceID: actorID,
			})
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("window extended by staff",
		zap.String("user_id", userID),
		zap.String("actor_id", actorID),
		zap.Int("hours", hours),
		zap.Time("ends_at", sub.EndsAt))
	return sub, nil
}

// ActiveWindows returns the running window of each listed user, keyed by user id.
func (m *Manager) ActiveWindows(ctx context.Context, userIDs []string) (map[string]db.Subscription, error) {
	if len(userIDs) == 0 {
		return map[string]db.Subscription{}, nil
	}

	ctx, cancel := billing.WithTimeout(ctx, m.timeout)
	defer cancel()

	var subs []db.Subscription
	if err := m.db.WithContext(ctx).
		Where("user_id IN ? AND network_id = ? AND active = ? AND ends_at > ?", userIDs, m.networkID, true, m.Now()).
		Find(&subs).Error; err != nil {
		return nil, billing.Classify(fmt.Errorf("failed to load windows: %w", err))
	}
	return lo.KeyBy(subs, func(s db.Subscription) string { return s.UserID }), nil
}
