package voucher

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/samber/lo"
	qrcode "github.com/skip2/go-qrcode"

	"go-hotspot/billing"
	"go-hotspot/web/db"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
	defaultQRSize    = 256
)

// Filter narrows admin voucher listings. Query matches code or plan name.
type Filter struct {
	Query  string
	State  db.VoucherState
	PlanID string
	Limit  int
	Offset int
}

func (l *Ledger) Get(ctx context.Context, code string) (*db.Voucher, error) {
	ctx, cancel := billing.WithTimeout(ctx, l.timeout)
	defer cancel()

	var v db.Voucher
	err := l.db.WithContext(ctx).Where("code = ?", NormalizeCode(code)).First(&v).Error
	if db.IsNotFound(err) {
		return nil, fmt.Errorf("%w: voucher %s", billing.ErrNotFound, code)
	}
	if err != nil {
		return nil, billing.Classify(fmt.Errorf("failed to load voucher: %w", err))
	}
	return &v, nil
}

// List returns vouchers newest first.
func (l *Ledger) List(ctx context.Context, f Filter) ([]db.Voucher, error) {
	switch f.State {
	case "", db.VoucherUnused, db.VoucherActivated, db.VoucherExpired:
	default:
		return nil, fmt.Errorf("%w: unknown voucher state %q", billing.ErrInvalidInput, f.State)
	}

	ctx, cancel := billing.WithTimeout(ctx, l.timeout)
	defer cancel()

	q := l.db.WithContext(ctx).Model(&db.Voucher{})
	if f.Query != "" {
		like := "%" + f.Query + "%"
		q = q.Where("code LIKE ? OR plan_name LIKE ?", like, like)
	}
	if f.State != "" {
		q = q.Where("state = ?", f.State)
	}
	if f.PlanID != "" {
		q = q.Where("plan_id = ?", f.PlanID)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	var vouchers []db.Voucher
	if err := q.Order("created_at desc").Order("code").Limit(limit).Offset(max(f.Offset, 0)).
		Find(&vouchers).Error; err != nil {
		return nil, billing.Classify(fmt.Errorf("failed to list vouchers: %w", err))
	}
	return vouchers, nil
}

var csvHeader = []string{"code", "plan", "duration_hours", "price_ugx", "state", "created_at", "expires_at", "device_id", "valid_until"}

// ExportCSV writes the vouchers matching f to w for printing or bookkeeping.
func (l *Ledger) ExportCSV(ctx context.Context, w io.Writer, f Filter) (int, error) {
	if f.Limit <= 0 {
		f.Limit = maxListLimit
	}
	vouchers, err := l.List(ctx, f)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return 0, err
	}
	for _, v := range vouchers {
		validUntil := lo.FromPtrOr(v.ValidUntil, time.Time{})
		row := []string{
			v.Code,
			v.PlanName,
			strconv.Itoa(v.DurationHours),
			strconv.FormatInt(v.PriceUGX, 10),
			string(v.State),
			v.CreatedAt.UTC().Format(time.RFC3339),
			v.ExpiresAt.UTC().Format(time.RFC3339),
			v.DeviceID,
			"",
		}
		if !validUntil.IsZero() {
			row[8] = validUntil.UTC().Format(time.RFC3339)
		}
		if err := cw.Write(row); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	return len(vouchers), cw.Error()
}

// QRCode renders the voucher code as a PNG for printed cards.
func (l *Ledger) QRCode(ctx context.Context, code string, size int) ([]byte, error) {
	v, err := l.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = defaultQRSize
	}
	if size > 1024 {
		return nil, fmt.Errorf("%w: qr size must be at most 1024", billing.ErrInvalidInput)
	}

	png, err := qrcode.Encode(v.Code, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to render qr code: %w", err)
	}
	return png, nil
}
