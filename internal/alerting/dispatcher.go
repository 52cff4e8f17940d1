package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/uptix/hub/internal/metrics"
	"github.com/uptix/hub/internal/models"
)

// DispatcherConfig sizes the asynchronous delivery queue.
type DispatcherConfig struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

// Dispatcher delivers notifications in the background. Callers submit and
// move on; delivery errors end up in the log and in metrics only.
type Dispatcher struct {
	sender      Sender
	queue       chan models.Notification
	workers     int
	sendTimeout time.Duration
	logger      *slog.Logger
	wg          sync.WaitGroup
}

func NewDispatcher(sender Sender, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Dispatcher{
		sender:      sender,
		queue:       make(chan models.Notification, cfg.QueueSize),
		workers:     cfg.Workers,
		sendTimeout: cfg.SendTimeout,
		logger:      logger,
	}
}

// Submit enqueues n without blocking. It returns false, and drops n, when
// the queue is full.
func (d *Dispatcher) Submit(n models.Notification) bool {
	select {
	case d.queue <- n:
		metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
		return true
	default:
		metrics.AlertDispatch.WithLabelValues("dropped").Inc()
		d.logger.Warn("alert queue full, dropping notification", "subject", n.Subject)
		return false
	}
}

// Run starts the workers and blocks until ctx is cancelled and every
// in-flight delivery has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("alert dispatcher started", "transport", d.sender.Name(), "workers", d.workers)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.wg.Wait()
	d.logger.Info("alert dispatcher stopped")
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
			d.deliver(ctx, n)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n models.Notification) {
	defer func() {
		if r := recover(); r != nil {
			metrics.AlertDispatch.WithLabelValues("failed").Inc()
			d.logger.Error("alert transport panicked", "transport", d.sender.Name(), "panic", r)
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if err := d.sender.Send(sendCtx, n); err != nil {
		metrics.AlertDispatch.WithLabelValues("failed").Inc()
		d.logger.Error("failed to send alert", "transport", d.sender.Name(), "subject", n.Subject, "err", err)
		return
	}
	metrics.AlertDispatch.WithLabelValues("sent").Inc()
	d.logger.Info("alert sent", "transport", d.sender.Name(), "host", n.HostName, "category", n.Category)
}

// SendTest delivers a test notification synchronously so operators can
// verify the transport configuration.
func (d *Dispatcher) SendTest(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	n := models.Notification{
		Subject:  DefaultSubjectPrefix + " Test alert",
		Body:     "This is a test alert from Uptix Hub.",
		Category: "test",
		FiredAt:  time.Now().UTC(),
	}
	if err := d.sender.Send(ctx, n); err != nil {
		return fmt.Errorf("%s: %w", d.sender.Name(), err)
	}
	return nil
}
