package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VoucherState string

const (
	VoucherUnused    VoucherState = "unused"
	VoucherActivated VoucherState = "activated"
	VoucherExpired   VoucherState = "expired"
)

type GrantSource string

const (
	SourceVoucher GrantSource = "voucher"
	SourcePayment GrantSource = "payment"
	SourceLoyalty GrantSource = "loyalty"
	SourceAdmin   GrantSource = "admin"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

type PaymentMethod string

const (
	MethodVoucher     PaymentMethod = "voucher"
	MethodCash        PaymentMethod = "cash"
	MethodMobileMoney PaymentMethod = "mobile_money"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodVoucher, MethodCash, MethodMobileMoney:
		return true
	}
	return false
}

type Voucher struct {
	ID            string       `gorm:"primaryKey;size:36" json:"id"`
	Code          string       `gorm:"uniqueIndex;size:32;not null" json:"code"`
	PlanID        string       `gorm:"size:64;not null" json:"plan_id"`
	PlanName      string       `gorm:"size:128" json:"plan_name"`
	DurationHours int          `json:"duration_hours"`
	PriceUGX      int64        `json:"price_ugx"`
	State         VoucherState `gorm:"size:16;index;not null" json:"state"`
	DeviceID      string       `gorm:"size:17" json:"device_id,omitempty"`
	UserID        string       `gorm:"size:64;index" json:"user_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	ExpiresAt     time.Time    `gorm:"index" json:"expires_at"`
	ActivatedAt   *time.Time   `json:"activated_at,omitempty"`
	ValidUntil    *time.Time   `gorm:"index" json:"valid_until,omitempty"`
}

type Subscription struct {
	ID            string      `gorm:"primaryKey;size:36" json:"id"`
	UserID        string      `gorm:"size:64;index:idx_subscription_owner;not null" json:"user_id"`
	NetworkID     string      `gorm:"size:64;index:idx_subscription_owner;not null" json:"network_id"`
	PlanID        string      `gorm:"size:64" json:"plan_id"`
	Source        GrantSource `gorm:"size:16" json:"source"`
	StartsAt      time.Time   `json:"starts_at"`
	EndsAt        time.Time   `gorm:"index" json:"ends_at"`
	Active        bool        `gorm:"index" json:"active"`
	DataUsedBytes int64       `json:"data_used_bytes"`
	AlertSentAt   *time.Time  `json:"alert_sent_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// SubscriptionGrant records each contribution of time to a window.
type SubscriptionGrant struct {
	ID             string      `gorm:"primaryKey;size:36" json:"id"`
	SubscriptionID string      `gorm:"size:36;index;not null" json:"subscription_id"`
	Source         GrantSource `gorm:"size:16" json:"source"`
	SourceID       string      `gorm:"size:64" json:"source_id"`
	Hours          int         `json:"hours"`
	GrantedAt      time.Time   `json:"granted_at"`
}

// Profile is the per-user account row. It carries the loyalty balance and the bound device.
type Profile struct {
	UserID            string    `gorm:"primaryKey;size:64" json:"user_id"`
	PhoneNumber       string    `gorm:"size:20" json:"phone_number"`
	FirstName         string    `gorm:"size:64" json:"first_name"`
	LastName          string    `gorm:"size:64" json:"last_name"`
	MacAddress        string    `gorm:"size:17" json:"mac_address"`
	DeviceChangesUsed int       `json:"device_changes_used"`
	LoyaltyPoints     int64     `json:"loyalty_points"`
	TotalSpent        int64     `json:"total_spent"`
	Version           int64     `json:"-"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// LoyaltyAccrual is the processed-payment guard: one row per accrued payment.
type LoyaltyAccrual struct {
	PaymentID string    `gorm:"primaryKey;size:36" json:"payment_id"`
	UserID    string    `gorm:"size:64;index" json:"user_id"`
	Amount    int64     `json:"amount"`
	Points    int64     `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}

type LoyaltyReward struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	UserID         string     `gorm:"size:64;index;not null" json:"user_id"`
	PointsRequired int64      `json:"points_required"`
	DaysGranted    int        `json:"days_granted"`
	Redeemed       bool       `json:"redeemed"`
	RedeemedAt     *time.Time `json:"redeemed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

type Payment struct {
	ID             string        `gorm:"primaryKey;size:36" json:"id"`
	UserID         string        `gorm:"size:64;index;not null" json:"user_id"`
	PlanID         string        `gorm:"size:64" json:"plan_id"`
	SubscriptionID string        `gorm:"size:36" json:"subscription_id,omitempty"`
	Amount         int64         `json:"amount"`
	Method         PaymentMethod `gorm:"size:16" json:"method"`
	Status         PaymentStatus `gorm:"size:16;index" json:"status"`
	TransactionID  string        `gorm:"size:128" json:"transaction_id,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	SettledAt      *time.Time    `json:"settled_at,omitempty"`
}

type Notification struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	UserID      string    `gorm:"size:64;index" json:"user_id"`
	PhoneNumber string    `gorm:"size:20" json:"phone_number"`
	Message     string    `gorm:"size:480" json:"message"`
	Type        string    `gorm:"size:32" json:"type"`
	Status      string    `gorm:"size:16" json:"status"`
	Error       string    `gorm:"size:255" json:"error,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

func (v *Voucher) BeforeCreate(*gorm.DB) error           { v.ID = ensureID(v.ID); return nil }
func (s *Subscription) BeforeCreate(*gorm.DB) error      { s.ID = ensureID(s.ID); return nil }
func (g *SubscriptionGrant) BeforeCreate(*gorm.DB) error { g.ID = ensureID(g.ID); return nil }
func (r *LoyaltyReward) BeforeCreate(*gorm.DB) error     { r.ID = ensureID(r.ID); return nil }
func (p *Payment) BeforeCreate(*gorm.DB) error           { p.ID = ensureID(p.ID); return nil }
func (n *Notification) BeforeCreate(*gorm.DB) error      { n.ID = ensureID(n.ID); return nil }

func ensureID(id string) string {
	if id != "" {
		return id
	}
	return uuid.New().String()
}

// Models lists every table owned by the service, in migration order.
func Models() []any {
	return []any{
		&Profile{},
		&Voucher{},
		&Subscription{},
		&SubscriptionGrant{},
		&Payment{},
		&LoyaltyAccrual{},
		&LoyaltyReward{},
		&Notification{},
	}
}
