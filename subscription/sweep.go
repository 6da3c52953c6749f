package subscription

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"go-hotspot/billing"
	"go-hotspot/notify"
	"go-hotspot/web/db"
)

type SweepResult struct {
	Deactivated int `json:"deactivated"`
	Alerted     int `json:"alerted"`
}

// Sweep deactivates windows that ended by now and sends one expiry alert for each window
// ending within the alert lead. Each row is claimed with a conditional update that
// repeats the time bounds, so concurrent sweeps never notify twice and a window extended
// after it was read is left alone.
func (m *Manager) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	ctx, cancel := billing.WithTimeout(ctx, m.timeout)
	defer cancel()

	var result SweepResult
	conn := m.db.WithContext(ctx)

	var ended []db.Subscription
	if err := conn.Where("active = ? AND ends_at <= ?", true, now).Find(&ended).Error; err != nil {
		return result, billing.Classify(fmt.Errorf("failed to find ended windows: %w", err))
	}

	for _, sub := range ended {
		res := conn.Model(&db.Subscription{}).
			Where("id = ? AND active = ? AND ends_at <= ?", sub.ID, true, now).
			Update("active", false)
		if res.Error != nil {
			return result, billing.Classify(fmt.Errorf("failed to deactivate window %s: %w", sub.ID, res.Error))
		}
		if res.RowsAffected == 0 {
			continue
		}

		result.Deactivated++
		m.metrics.WindowClosed()
		m.send(ctx, sub.UserID, notify.Deactivation, notify.DeactivationText())
	}

	var ending []db.Subscription
	if err := conn.Where("active = ? AND ends_at > ? AND ends_at <= ? AND alert_sent_at IS NULL",
		true, now, now.Add(m.alertLead)).Find(&ending).Error; err != nil {
		return result, billing.Classify(fmt.Errorf("failed to find ending windows: %w", err))
	}

	for _, sub := range ending {
		res := conn.Model(&db.Subscription{}).
			Where("id = ? AND active = ? AND ends_at > ? AND ends_at <= ? AND alert_sent_at IS NULL",
				sub.ID, true, now, now.Add(m.alertLead)).
			Update("alert_sent_at", now)
		if res.Error != nil {
			return result, billing.Classify(fmt.Errorf("failed to mark alert for window %s: %w", sub.ID, res.Error))
		}
		if res.RowsAffected == 0 {
			continue
		}

		result.Alerted++
		m.send(ctx, sub.UserID, notify.ExpiryAlert, notify.ExpiryAlertText(sub.EndsAt))
	}

	if result.Deactivated > 0 || result.Alerted > 0 {
		m.logger.Info("swept access windows",
			zap.Int("deactivated", result.Deactivated),
			zap.Int("alerted", result.Alerted))
	}
	return result, nil
}

func (m *Manager) send(ctx context.Context, userID string, kind notify.Type, text string) {
	var p db.Profile
	if err := m.db.WithContext(ctx).Select("phone_number").First(&p, "user_id = ?", userID).Error; err != nil {
		m.logger.Warn("no profile for notification", zap.String("user_id", userID), zap.Error(err))
		return
	}
	m.notifier.Notify(notify.Message{
		UserID:      userID,
		PhoneNumber: p.PhoneNumber,
		Text:        text,
		Type:        kind,
	})
}
