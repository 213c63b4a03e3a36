package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/storefront/api/internal/repositories"
)

const (
	defaultNotificationQueueSize = 256
	defaultNotificationWorkers   = 2
	defaultNotificationTimeout   = 45 * time.Second

	orderEventPlaced    = "order.placed"
	orderEventDelivered = "order.delivered"
)

// ErrDispatcherClosed is returned by Close when called twice.
var ErrDispatcherClosed = errors.New("notifications: dispatcher closed")

// NotificationDispatcherDeps enumerates collaborators for the notification workers.
type NotificationDispatcherDeps struct {
	Accounts   repositories.AccountRepository
	Mailer     Mailer
	Invoices   InvoiceRenderer
	Archive    InvoiceArchive
	Events     OrderEventPublisher
	QueueSize  int
	Workers    int
	JobTimeout time.Duration
	Meter      metric.Meter
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type notificationJob struct {
	ctx          context.Context
	notification Notification
}

type notificationDispatcher struct {
	accounts   repositories.AccountRepository
	mailer     Mailer
	invoices   InvoiceRenderer
	archive    InvoiceArchive
	events     OrderEventPublisher
	jobTimeout time.Duration
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)

	dropped        metric.Int64Counter
	droppedEnabled bool

	mu     sync.RWMutex
	closed bool
	queue  chan notificationJob
	wg     sync.WaitGroup
}

var _ NotificationDispatcher = (*notificationDispatcher)(nil)

// NewNotificationDispatcher starts the worker pool. Delivery is at-most-once: jobs live only in
// memory and failures are logged, never retried.
func NewNotificationDispatcher(deps NotificationDispatcherDeps) (NotificationDispatcher, error) {
	if deps.Mailer == nil {
		return nil, errors.New("notification dispatcher: mailer is required")
	}
	queueSize := deps.QueueSize
	if queueSize <= 0 {
		queueSize = defaultNotificationQueueSize
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultNotificationWorkers
	}
	timeout := deps.JobTimeout
	if timeout <= 0 {
		timeout = defaultNotificationTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(servicesMetricNamespace)
	}
	dropped, droppedErr := meter.Int64Counter(
		"notifications.dropped",
		metric.WithDescription("Notifications discarded because the queue was full or closed"),
	)

	d := &notificationDispatcher{
		accounts:   deps.Accounts,
		mailer:     deps.Mailer,
		invoices:   deps.Invoices,
		archive:    deps.Archive,
		events:     deps.Events,
		jobTimeout: timeout,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:         logger,
		dropped:        dropped,
		droppedEnabled: droppedErr == nil,
		queue:          make(chan notificationJob, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.run()
	}
	return d, nil
}

// Enqueue hands the notification to a worker without blocking. It reports false when the job
// was dropped.
func (d *notificationDispatcher) Enqueue(ctx context.Context, n Notification) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	reason := ""
	if d.closed {
		reason = "closed"
	} else {
		select {
		case d.queue <- notificationJob{ctx: context.WithoutCancel(ctx), notification: n}:
			return true
		default:
			reason = "queue_full"
		}
	}

	d.logger(ctx, "notification.dropped", map[string]any{
		"kind":    string(n.Kind),
		"orderId": n.Order.ID,
		"reason":  reason,
	})
	if d.droppedEnabled {
		d.dropped.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", string(n.Kind)),
			attribute.String("reason", reason),
		))
	}
	return false
}

// Close stops accepting jobs and waits for queued ones until ctx expires.
func (d *notificationDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *notificationDispatcher) run() {
	defer d.wg.Done()
	for job := range d.queue {
		d.process(job)
	}
}

func (d *notificationDispatcher) process(job notificationJob) {
	ctx, cancel := context.WithTimeout(job.ctx, d.jobTimeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			d.logger(ctx, "notification.panic", map[string]any{
				"kind":    string(job.notification.Kind),
				"orderId": job.notification.Order.ID,
				"panic":   rec,
			})
		}
	}()

	n := job.notification
	email := d.resolveEmail(ctx, n)

	switch n.Kind {
	case NotificationOrderConfirmation:
		d.publish(ctx, orderEventPlaced, n.Order, "")
		if email == "" {
			d.logger(ctx, "notification.skipped", map[string]any{"kind": string(n.Kind), "orderId": n.Order.ID, "reason": "no_email"})
			return
		}
		d.send(ctx, n, composeConfirmation(n.Order, email))
	case NotificationInvoiceDelivery:
		d.deliverInvoice(ctx, n, email)
	default:
		d.logger(ctx, "notification.unknown_kind", map[string]any{"kind": string(n.Kind), "orderId": n.Order.ID})
	}
}

func (d *notificationDispatcher) deliverInvoice(ctx context.Context, n Notification, email string) {
	if d.invoices == nil {
		d.logger(ctx, "notification.failed", map[string]any{"kind": string(n.Kind), "orderId": n.Order.ID, "error": "invoice renderer not configured"})
		return
	}
	pdf, err := d.invoices.Render(n.Order, email)
	if err != nil {
		d.logger(ctx, "notification.failed", map[string]any{"kind": string(n.Kind), "orderId": n.Order.ID, "stage": "render", "error": err.Error()})
		return
	}

	invoicePath := ""
	if d.archive != nil {
		path, err := d.archive.StoreInvoice(ctx, n.Order, pdf)
		if err != nil {
			d.logger(ctx, "notification.archive_failed", map[string]any{"orderId": n.Order.ID, "error": err.Error()})
		} else {
			invoicePath = path
		}
	}
	d.publish(ctx, orderEventDelivered, n.Order, invoicePath)

	if email == "" {
		d.logger(ctx, "notification.skipped", map[string]any{"kind": string(n.Kind), "orderId": n.Order.ID, "reason": "no_email"})
		return
	}
	d.send(ctx, n, composeInvoice(n.Order, email, pdf))
}

func (d *notificationDispatcher) resolveEmail(ctx context.Context, n Notification) string {
	if email := strings.TrimSpace(n.Email); email != "" {
		return email
	}
	if d.accounts == nil || strings.TrimSpace(n.Order.UserID) == "" {
		return ""
	}
	account, err := d.accounts.FindByID(ctx, n.Order.UserID)
	if err != nil {
		d.logger(ctx, "notification.account_lookup_failed", map[string]any{"orderId": n.Order.ID, "userId": n.Order.UserID, "error": err.Error()})
		return ""
	}
	return strings.TrimSpace(account.Email)
}

func (d *notificationDispatcher) send(ctx context.Context, n Notification, msg MailMessage) {
	if err := d.mailer.Send(ctx, msg); err != nil {
		d.logger(ctx, "notification.failed", map[string]any{"kind": string(n.Kind), "orderId": n.Order.ID, "stage": "send", "error": err.Error()})
		return
	}
	d.logger(ctx, "notification.sent", map[string]any{"kind": string(n.Kind), "orderId": n.Order.ID})
}

func (d *notificationDispatcher) publish(ctx context.Context, eventType string, order Order, invoicePath string) {
	if d.events == nil {
		return
	}
	event := OrderEvent{
		Type:          eventType,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Status:        string(order.Status),
		Amount:        order.Amount,
		PaymentMethod: string(order.PaymentMethod),
		InvoicePath:   invoicePath,
		OccurredAt:    d.clock(),
	}
	if _, err := d.events.PublishOrderEvent(ctx, event); err != nil {
		d.logger(ctx, "notification.publish_failed", map[string]any{"type": eventType, "orderId": order.ID, "error": err.Error()})
	}
}
