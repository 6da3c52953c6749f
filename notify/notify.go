// Package notify delivers customer SMS notifications.
//
// Notifications never take part in billing transactions. Components call Notify after
// commit; delivery happens on a background queue and failures are only logged, counted
// and recorded in the notifications table.
package notify

import (
	"context"
	"fmt"
	"time"

	"go-hotspot/billing"
)

type Type string

const (
	Activation   Type = "activation"
	Deactivation Type = "deactivation"
	PlanPurchase Type = "plan_purchase"
	ExpiryAlert  Type = "expiry_alert"
)

type Message struct {
	UserID      string
	PhoneNumber string
	Text        string
	Type        Type
}

// Notifier accepts a message for delivery without blocking the caller.
type Notifier interface {
	Notify(msg Message)
}

// Sender performs one delivery attempt.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Discard drops every message.
type Discard struct{}

func (Discard) Notify(Message) {}

const brand = "TriLink Wireless"

const dateLayout = "02 Jan 2006 15:04"

func ActivationText(planName string, validUntil time.Time) string {
	return fmt.Sprintf("%s: Your %s voucher is active. Access valid until %s UTC.",
		brand, planName, validUntil.UTC().Format(dateLayout))
}

func PurchaseText(planName string, validUntil time.Time, points int64) string {
	return fmt.Sprintf("%s: Your %s plan has been activated! Valid until %s UTC. You earned %d loyalty points!",
		brand, planName, validUntil.UTC().Format(dateLayout), points)
}

func BonusText(days int, validUntil time.Time) string {
	return fmt.Sprintf("%s: %d bonus day(s) added to your plan. Access valid until %s UTC.",
		brand, days, validUntil.UTC().Format(dateLayout))
}

func ExpiryAlertText(endsAt time.Time) string {
	return fmt.Sprintf("%s: Your internet plan expires at %s UTC. Renew to stay connected.",
		brand, endsAt.UTC().Format(dateLayout))
}

func DeactivationText() string {
	return fmt.Sprintf("%s: Your internet plan has expired and you have been disconnected.", brand)
}

func failed(kind Type, err error) error {
	return fmt.Errorf("%w: %s: %w", billing.ErrNotificationFailed, kind, err)
}
