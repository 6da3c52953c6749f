package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go-hotspot/utils"
	"go-hotspot/voucher"
)

type Config struct {
	Env      string
	LogLevel string
	GinPort  string

	DBDriver string // mysql or sqlite
	DSN      string

	// Secret signs the bearer tokens issued by the auth provider.
	Secret string

	BackendTimeout time.Duration
	RedisURL       string
	RateLimit      int
	RateWindow     time.Duration

	PlansFile string
	NetworkID string

	VoucherPrefix     string
	VoucherWindowDays int
	DeviceBinding     bool
	MaxDeviceChanges  int

	NotificationsEnabled bool
	SMSURL               string
	SMSKey               string
	SMSTimeout           time.Duration
	SMSQueueSize         int

	// LoyaltyTiers is a "points:days" list, e.g. "50:1,100:3,200:7".
	LoyaltyTiers string
	PaymentTTL   time.Duration

	SweepSchedule   string
	ExpiryAlertLead time.Duration
}

// Defaults returns the values used when a variable is unset.
func Defaults() Config {
	return Config{
		Env:                  "production",
		LogLevel:             "info",
		GinPort:              "8080",
		DBDriver:             "mysql",
		BackendTimeout:       10 * time.Second,
		RateLimit:            15,
		RateWindow:           time.Minute,
		NetworkID:            "default",
		VoucherPrefix:        "TLW",
		VoucherWindowDays:    30,
		DeviceBinding:        true,
		MaxDeviceChanges:     2,
		NotificationsEnabled: true,
		SMSTimeout:           5 * time.Second,
		SMSQueueSize:         256,
		LoyaltyTiers:         "50:1,100:3,200:7",
		PaymentTTL:           24 * time.Hour,
		SweepSchedule:        "@every 5m",
		ExpiryAlertLead:      6 * time.Hour,
	}
}

// Load reads .env (if present) and then the process environment.
func Load() (Config, error) {
	utils.LoadEnv()
	return FromEnv(os.LookupEnv)
}

func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Defaults()
	p := parser{lookup: lookup}

	p.strVar("ENV", &c.Env)
	p.strVar("LOG_LEVEL", &c.LogLevel)
	p.strVar("GIN_PORT", &c.GinPort)
	p.strVar("DB_DRIVER", &c.DBDriver)
	p.strVar("DB", &c.DSN)
	p.strVar("SECRET", &c.Secret)
	p.durationVar("BACKEND_TIMEOUT", &c.BackendTimeout)
	p.strVar("REDIS_URL", &c.RedisURL)
	p.intVar("RATE_LIMIT", &c.RateLimit)
	p.durationVar("RATE_WINDOW", &c.RateWindow)
	p.strVar("PLANS_FILE", &c.PlansFile)
	p.strVar("NETWORK_ID", &c.NetworkID)
	p.strVar("VOUCHER_PREFIX", &c.VoucherPrefix)
	p.intVar("VOUCHER_WINDOW_DAYS", &c.VoucherWindowDays)
	p.boolVar("DEVICE_BINDING", &c.DeviceBinding)
	p.intVar("MAX_DEVICE_CHANGES", &c.MaxDeviceChanges)
	p.boolVar("NOTIFICATIONS_ENABLED", &c.NotificationsEnabled)
	p.strVar("SMS_URL", &c.SMSURL)
	p.strVar("SMS_KEY", &c.SMSKey)
	p.durationVar("SMS_TIMEOUT", &c.SMSTimeout)
	p.intVar("SMS_QUEUE_SIZE", &c.SMSQueueSize)
	p.strVar("LOYALTY_TIERS", &c.LoyaltyTiers)
	p.durationVar("PAYMENT_TTL", &c.PaymentTTL)
	p.strVar("SWEEP_SCHEDULE", &c.SweepSchedule)
	p.durationVar("EXPIRY_ALERT_LEAD", &c.ExpiryAlertLead)

	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}

	c.VoucherPrefix = strings.ToUpper(c.VoucherPrefix)
	return c, c.Validate()
}

func (c Config) Validate() error {
	if c.DSN == "" {
		return errors.New("DB is required")
	}
	if c.DBDriver != "mysql" && c.DBDriver != "sqlite" {
		return fmt.Errorf("DB_DRIVER must be mysql or sqlite, got %q", c.DBDriver)
	}
	if c.Secret == "" {
		return errors.New("SECRET is required")
	}
	if !voucher.ValidPrefix(c.VoucherPrefix) {
		return fmt.Errorf("VOUCHER_PREFIX %q must be 1 to 8 letters or digits", c.VoucherPrefix)
	}
	if c.VoucherWindowDays < 1 || c.VoucherWindowDays > 365 {
		return errors.New("VOUCHER_WINDOW_DAYS must be between 1 and 365")
	}
	if c.MaxDeviceChanges < 0 {
		return errors.New("MAX_DEVICE_CHANGES must not be negative")
	}
	if c.RateLimit < 1 || c.RateWindow <= 0 {
		return errors.New("RATE_LIMIT and RATE_WINDOW must be positive")
	}
	if c.NotificationsEnabled && c.SMSURL != "" && c.SMSKey == "" {
		return errors.New("SMS_KEY is required when SMS_URL is set")
	}
	return nil
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) strVar(key string, dst *string) {
	if v, ok := p.lookup(key); ok && v != "" {
		*dst = v
	}
}

func (p *parser) intVar(key string, dst *int) {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (p *parser) boolVar(key string, dst *bool) {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = b
}

func (p *parser) durationVar(key string, dst *time.Duration) {
	v, ok := p.lookup(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}
