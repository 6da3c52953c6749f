// Package voucher generates prepaid access codes and runs their lifecycle:
// unused, then activated by exactly one device, then expired.
package voucher

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-hotspot/billing"
	"go-hotspot/catalog"
	"go-hotspot/metrics"
	"go-hotspot/web/db"
)

const (
	MaxBatch          = 100
	DefaultWindowDays = 30
	MaxWindowDays     = 365
	maxCodeAttempts   = 8
)

type Generator struct {
	db         *gorm.DB
	catalog    *catalog.Catalog
	clock      clockwork.Clock
	logger     *zap.Logger
	metrics    *metrics.Metrics
	prefix     string
	windowDays int
	timeout    time.Duration
	newCode    func() (string, error)
}

type GeneratorOption func(*Generator)

// WithPrefix sets the code prefix. A prefix ValidPrefix rejects is ignored, since the
// ledger could not activate codes issued under it.
func WithPrefix(prefix string) GeneratorOption {
	return func(g *Generator) {
		prefix = strings.ToUpper(strings.TrimSpace(prefix))
		if !ValidPrefix(prefix) {
			g.logger.Warn("invalid voucher prefix, keeping default",
				zap.String("prefix", prefix), zap.String("default", g.prefix))
			return
		}
		g.prefix = prefix
	}
}

// WithWindowDays sets the default redemption window.
func WithWindowDays(days int) GeneratorOption {
	return func(g *Generator) { g.windowDays = days }
}

// WithCodeFunc replaces the random code source.
func WithCodeFunc(fn func() (string, error)) GeneratorOption {
	return func(g *Generator) { g.newCode = fn }
}

func WithGeneratorMetrics(m *metrics.Metrics) GeneratorOption {
	return func(g *Generator) { g.metrics = m }
}

func WithGeneratorTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) { g.timeout = d }
}

func NewGenerator(conn *gorm.DB, cat *catalog.Catalog, clock clockwork.Clock, logger *zap.Logger, opts ...GeneratorOption) *Generator {
	g := &Generator{
		db:         conn,
		catalog:    cat,
		clock:      clock,
		logger:     logger.Named("voucher.generator"),
		prefix:     DefaultPrefix,
		windowDays: DefaultWindowDays,
		timeout:    billing.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.newCode == nil {
		g.newCode = func() (string, error) { return RandomCode(g.prefix) }
	}
	return g
}

// Generate validates the request and returns a sequence that inserts one Unused voucher
// per step. The sequence stops at the first error and can be ranged over only once.
// windowDays of 0 selects the default redemption window.
func (g *Generator) Generate(ctx context.Context, planID string, quantity, windowDays int) (iter.Seq2[db.Voucher, error], error) {
	if quantity < 1 || quantity > MaxBatch {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", billing.ErrInvalidInput, MaxBatch)
	}
	if windowDays == 0 {
		windowDays = g.windowDays
	}
	if windowDays < 1 || windowDays > MaxWindowDays {
		return nil, fmt.Errorf("%w: redemption window must be between 1 and %d days", billing.ErrInvalidInput, MaxWindowDays)
	}

	plan, err := g.catalog.Get(planID)
	if err != nil {
		return nil, err
	}

	var consumed atomic.Bool
	return func(yield func(db.Voucher, error) bool) {
		if consumed.Swap(true) {
			return
		}
		for i := 0; i < quantity; i++ {
			v, err := g.insert(ctx, plan, windowDays)
			if !yield(v, err) || err != nil {
				return
			}
		}
	}, nil
}

// GenerateAll drains Generate. On error it returns the vouchers created so far.
func (g *Generator) GenerateAll(ctx context.Context, planID string, quantity, windowDays int) ([]db.Voucher, error) {
	seq, err := g.Generate(ctx, planID, quantity, windowDays)
	if err != nil {
		return nil, err
	}

	vouchers := make([]db.Voucher, 0, quantity)
	for v, err := range seq {
		if err != nil {
			return vouchers, err
		}
		vouchers = append(vouchers, v)
	}

	g.logger.Info("generated vouchers",
		zap.String("plan_id", planID),
		zap.Int("quantity", len(vouchers)))
	return vouchers, nil
}

func (g *Generator) insert(ctx context.Context, plan catalog.Plan, windowDays int) (db.Voucher, error) {
	ctx, cancel := billing.WithTimeout(ctx, g.timeout)
	defer cancel()
	conn := g.db.WithContext(ctx)

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := g.newCode()
		if err != nil {
			return db.Voucher{}, fmt.Errorf("failed to draw voucher code: %w", err)
		}

		var taken int64
		if err := conn.Model(&db.Voucher{}).Where("code = ?", code).Count(&taken).Error; err != nil {
			return db.Voucher{}, billing.Classify(fmt.Errorf("failed to check voucher code: %w", err))
		}
		if taken > 0 {
			continue
		}

		now := g.clock.Now().UTC()
		v := db.Voucher{
			Code:          code,
			PlanID:        plan.ID,
			PlanName:      plan.Name,
			DurationHours: plan.DurationHours,
			PriceUGX:      plan.PriceUGX,
			State:         db.VoucherUnused,
			CreatedAt:     now,
			ExpiresAt:     now.AddDate(0, 0, windowDays),
		}
		err = conn.Create(&v).Error
		if db.IsDuplicate(err) {
			continue
		}
		if err != nil {
			return db.Voucher{}, billing.Classify(fmt.Errorf("failed to create voucher: %w", err))
		}

		g.metrics.VoucherGenerated()
		return v, nil
	}

	g.logger.Error("voucher code space exhausted", zap.String("prefix", g.prefix))
	return db.Voucher{}, billing.ErrCodeSpaceExhausted
}
