package notify

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-hotspot/metrics"
	"go-hotspot/web/db"
)

const (
	statusSent   = "sent"
	statusFailed = "failed"
)

// Dispatcher queues messages and delivers them from a single background goroutine.
type Dispatcher struct {
	db      *gorm.DB
	sender  Sender
	clock   clockwork.Clock
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Message
	done   chan struct{}
}

func NewDispatcher(conn *gorm.DB, sender Sender, clock clockwork.Clock, logger *zap.Logger, m *metrics.Metrics, size int, timeout time.Duration) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	d := &Dispatcher{
		db:      conn,
		sender:  sender,
		clock:   clock,
		logger:  logger.Named("notify"),
		metrics: m,
		timeout: timeout,
		queue:   make(chan Message, size),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues msg. Messages without a phone number are skipped; a full queue or a
// closed dispatcher drops the message.
func (d *Dispatcher) Notify(msg Message) {
	if msg.PhoneNumber == "" {
		d.logger.Debug("skipping notification, no phone number",
			zap.String("user_id", msg.UserID), zap.String("type", string(msg.Type)))
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("dispatcher closed, dropping message",
			zap.String("user_id", msg.UserID), zap.String("type", string(msg.Type)))
		d.metrics.Notification(string(msg.Type), "dropped")
		return
	}

	select {
	case d.queue <- msg:
	default:
		d.logger.Warn("notification queue full, dropping message",
			zap.String("user_id", msg.UserID), zap.String("type", string(msg.Type)))
		d.metrics.Notification(string(msg.Type), "dropped")
	}
}

// Close stops accepting messages and waits until the queue is drained.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	record := db.Notification{
		UserID:      msg.UserID,
		PhoneNumber: msg.PhoneNumber,
		Message:     msg.Text,
		Type:        string(msg.Type),
		Status:      statusSent,
		SentAt:      d.clock.Now().UTC(),
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		record.Status = statusFailed
		record.Error = truncate(err.Error(), 255)
		d.logger.Error("failed to send notification",
			zap.String("user_id", msg.UserID),
			zap.String("type", string(msg.Type)),
			zap.Error(err))
	}
	d.metrics.Notification(string(msg.Type), record.Status)

	if err := d.db.WithContext(ctx).Create(&record).Error; err != nil {
		d.logger.Error("failed to record notification", zap.Error(err))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
