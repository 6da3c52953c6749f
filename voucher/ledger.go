package voucher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-hotspot/billing"
	"go-hotspot/metrics"
	"go-hotspot/notify"
	"go-hotspot/subscription"
	"go-hotspot/web/db"
)

// Ledger is the only writer of voucher state.
type Ledger struct {
	db            *gorm.DB
	subs          *subscription.Manager
	clock         clockwork.Clock
	logger        *zap.Logger
	metrics       *metrics.Metrics
	notifier      notify.Notifier
	deviceBinding bool
	timeout       time.Duration
}

type LedgerOption func(*Ledger)

// WithDeviceBinding controls whether an account bound to one MAC address may activate
// vouchers from another.
func WithDeviceBinding(on bool) LedgerOption {
	return func(l *Ledger) { l.deviceBinding = on }
}

func WithLedgerNotifier(n notify.Notifier) LedgerOption {
	return func(l *Ledger) { l.notifier = n }
}

func WithLedgerMetrics(m *metrics.Metrics) LedgerOption {
	return func(l *Ledger) { l.metrics = m }
}

func WithLedgerTimeout(d time.Duration) LedgerOption {
	return func(l *Ledger) { l.timeout = d }
}

func NewLedger(conn *gorm.DB, subs *subscription.Manager, clock clockwork.Clock, logger *zap.Logger, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		db:            conn,
		subs:          subs,
		clock:         clock,
		logger:        logger.Named("voucher.ledger"),
		notifier:      notify.Discard{},
		deviceBinding: true,
		timeout:       billing.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Activate redeems code for userID on deviceID and returns the access window it
// opened or extended. Exactly one concurrent activation of a code succeeds; the rest
// get ErrAlreadyUsed.
func (l *Ledger) Activate(ctx context.Context, code, deviceID, userID string) (*db.Subscription, error) {
	code = NormalizeCode(code)
	if !ValidCode(code) {
		return nil, fmt.Errorf("%w: malformed voucher code", billing.ErrInvalidInput)
	}
	mac, err := billing.NormalizeMAC(deviceID)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", billing.ErrInvalidInput)
	}

	var (
		sub     *db.Subscription
		voucher db.Voucher
		profile *db.Profile
	)
	err = billing.Retry(ctx, billing.DefaultAttempts, func(ctx context.Context) error {
		ctx, cancel := billing.WithTimeout(ctx, l.timeout)
		defer cancel()

		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			profile, err = db.LockProfile(tx, userID)
			if err != nil {
				return err
			}

			voucher = db.Voucher{}
			if err := tx.Where("code = ?", code).First(&voucher).Error; err != nil {
				if db.IsNotFound(err) {
					return fmt.Errorf("%w: voucher %s", billing.ErrNotFound, code)
				}
				return fmt.Errorf("failed to load voucher: %w", err)
			}

			if voucher.State != db.VoucherUnused {
				return fmt.Errorf("%w: voucher %s is %s", billing.ErrAlreadyUsed, code, voucher.State)
			}
			now := l.clock.Now().UTC()
			if now.After(voucher.ExpiresAt) {
				return fmt.Errorf("%w: voucher %s expired at %s", billing.ErrExpired, code, voucher.ExpiresAt.UTC().Format(time.RFC3339))
			}

			if err := l.bindDevice(tx, profile, mac); err != nil {
				return err
			}

			res := tx.Model(&db.Voucher{}).
				Where("id = ? AND state = ?", voucher.ID, db.VoucherUnused).
				Updates(map[string]any{
					"state":        db.VoucherActivated,
					"device_id":    mac,
					"user_id":      userID,
					"activated_at": now,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to activate voucher: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: voucher %s", billing.ErrAlreadyUsed, code)
			}

			sub, err = l.subs.OpenWindow(tx, userID, subscription.Grant{
				PlanID:   voucher.PlanID,
				Duration: time.Duration(voucher.DurationHours) * time.Hour,
				Source:   db.SourceVoucher,
				SourceID: voucher.ID,
			})
			if err != nil {
				return err
			}

			return tx.Model(&db.Voucher{}).Where("id = ?", voucher.ID).
				Update("valid_until", sub.EndsAt).Error
		})
	})
	if err != nil {
		l.metrics.VoucherActivation(activationResult(err))
		return nil, err
	}

	l.metrics.VoucherActivation("success")
	l.logger.Info("voucher activated",
		zap.String("code", code),
		zap.String("user_id", userID),
		zap.String("device_id", mac),
		zap.Time("valid_until", sub.EndsAt))

	l.notifier.Notify(notify.Message{
		UserID:      userID,
		PhoneNumber: profile.PhoneNumber,
		Text:        notify.ActivationText(voucher.PlanName, sub.EndsAt),
		Type:        notify.Activation,
	})
	return sub, nil
}

// bindDevice enforces the account's device binding. An account without a device is
// bound to mac.
func (l *Ledger) bindDevice(tx *gorm.DB, profile *db.Profile, mac string) error {
	if profile.MacAddress == "" {
		profile.MacAddress = mac
		return tx.Model(&db.Profile{}).Where("user_id = ?", profile.UserID).
			Update("mac_address", mac).Error
	}
	if l.deviceBinding && profile.MacAddress != mac {
		return fmt.Errorf("%w: account is bound to another device", billing.ErrDeviceConflict)
	}
	return nil
}

func activationResult(err error) string {
	switch {
	case errors.Is(err, billing.ErrNotFound):
		return "not_found"
	case errors.Is(err, billing.ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, billing.ErrExpired):
		return "expired"
	case errors.Is(err, billing.ErrDeviceConflict):
		return "device_conflict"
	default:
		return "error"
	}
}

// ExpireStale moves Unused vouchers past their redemption window and Activated vouchers
// past their access window to Expired. Running it twice is harmless.
func (l *Ledger) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := billing.WithTimeout(ctx, l.timeout)
	defer cancel()

	var total int64
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.Voucher{}).
			Where("state = ? AND expires_at < ?", db.VoucherUnused, now).
			Update("state", db.VoucherExpired)
		if res.Error != nil {
			return fmt.Errorf("failed to expire unused vouchers: %w", res.Error)
		}
		total += res.RowsAffected

		res = tx.Model(&db.Voucher{}).
			Where("state = ? AND valid_until <= ?", db.VoucherActivated, now).
			Update("state", db.VoucherExpired)
		if res.Error != nil {
			return fmt.Errorf("failed to expire activated vouchers: %w", res.Error)
		}
		total += res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, billing.Classify(err)
	}

	if total > 0 {
		l.metrics.VoucherExpired(total)
		l.logger.Info("expired vouchers", zap.Int64("count", total))
	}
	return total, nil
}
