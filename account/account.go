// Package account manages the customer's contact details and bound device.
package account

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-hotspot/billing"
	"go-hotspot/web/db"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{9,15}$`)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Filter selects profiles for the staff user list. Query matches the user id, phone
// number, name or bound device.
type Filter struct {
	Query  string
	Limit  int
	Offset int
}

type Service struct {
	db               *gorm.DB
	logger           *zap.Logger
	maxDeviceChanges int
	timeout          time.Duration
}

func NewService(conn *gorm.DB, logger *zap.Logger, maxDeviceChanges int, timeout time.Duration) *Service {
	return &Service{
		db:               conn,
		logger:           logger.Named("account"),
		maxDeviceChanges: maxDeviceChanges,
		timeout:          timeout,
	}
}

// NormalizePhone strips spaces and dashes and checks the remaining digits.
func NormalizePhone(phone string) (string, error) {
	phone = strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(phone))
	if !phonePattern.MatchString(phone) {
		return "", fmt.Errorf("%w: phone number %q", billing.ErrInvalidInput, phone)
	}
	return phone, nil
}

// Register creates or updates the profile's contact fields.
func (s *Service) Register(ctx context.Context, userID, phone, firstName, lastName string) (*db.Profile, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", billing.ErrInvalidInput)
	}
	phone, err := NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	ctx, cancel := billing.WithTimeout(ctx, s.timeout)
	defer cancel()

	var p *db.Profile
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = db.LockProfile(tx, userID); err != nil {
			return err
		}
		p.PhoneNumber = phone
		p.FirstName = strings.TrimSpace(firstName)
		p.LastName = strings.TrimSpace(lastName)
		return tx.Model(&db.Profile{}).Where("user_id = ?", userID).Updates(map[string]any{
			"phone_number": p.PhoneNumber,
			"first_name":   p.FirstName,
			"last_name":    p.LastName,
		}).Error
	})
	if err != nil {
		return nil, billing.Classify(fmt.Errorf("failed to save profile: %w", err))
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, userID string) (*db.Profile, error) {
	ctx, cancel := billing.WithTimeout(ctx, s.timeout)
	defer cancel()

	var p db.Profile
	err := s.db.WithContext(ctx).First(&p, "user_id = ?", userID).Error
	if db.IsNotFound(err) {
		return nil, fmt.Errorf("%w: profile %s", billing.ErrNotFound, userID)
	}
	if err != nil {
		return nil, billing.Classify(fmt.Errorf("failed to load profile: %w", err))
	}
	return &p, nil
}

// ChangeDevice binds the account to deviceID. Binding the first device is free; each
// later change counts against the change allowance.
func (s *Service) ChangeDevice(ctx context.Context, userID, deviceID string) (*db.Profile, error) {
	mac, err := billing.NormalizeMAC(deviceID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := billing.WithTimeout(ctx, s.timeout)
	defer cancel()

	var p *db.Profile
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if p, err = db.LockProfile(tx, userID); err != nil {
			return err
		}
		if p.MacAddress == mac {
			return nil
		}

		if p.MacAddress != "" {
			if p.DeviceChangesUsed >= s.maxDeviceChanges {
				return fmt.Errorf("%w: device change limit of %d reached", billing.ErrDeviceConflict, s.maxDeviceChanges)
			}
			p.DeviceChangesUsed++
		}
		p.MacAddress = mac
		return tx.Model(&db.Profile{}).Where("user_id = ?", userID).Updates(map[string]any{
			"mac_address":         p.MacAddress,
			"device_changes_used": p.DeviceChangesUsed,
		}).Error
	})
	if err != nil {
		return nil, billing.Classify(err)
	}

	s.logger.Info("device bound",
		zap.String("user_id", userID),
		zap.String("device_id", mac),
		zap.Int("changes_used", p.DeviceChangesUsed))
	return p, nil
}

// List returns profiles newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]db.Profile, error) {
	ctx, cancel := billing.WithTimeout(ctx, s.timeout)
	defer cancel()

	q := s.db.WithContext(ctx).Model(&db.Profile{})
	if query := strings.TrimSpace(f.Query); query != "" {
		like := "%" + query + "%"
		q = q.Where("user_id LIKE ? OR phone_number LIKE ? OR first_name LIKE ? OR last_name LIKE ? OR mac_address LIKE ?",
			like, like, like, like, strings.ToUpper(like))
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var profiles []db.Profile
	if err := q.Order("created_at desc").Order("user_id").
		Limit(min(limit, maxListLimit)).Offset(max(f.Offset, 0)).
		Find(&profiles).Error; err != nil {
		return nil, billing.Classify(fmt.Errorf("failed to list profiles: %w", err))
	}
	return profiles, nil
}
