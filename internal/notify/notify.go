// Package notify carries the side effects of status transitions: client
// notifications and e-commerce order updates. Everything here is
// best-effort and runs off the webhook response path; failures are logged,
// never propagated.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/courierhub/dispatch/pkg/courier"
)

// SMSSender sends an SMS to a client contact.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// EmailSender sends an email to a client contact.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// PushSender sends a push notification to a client device.
type PushSender interface {
	SendPush(ctx context.Context, clientID, title, body string) error
}

// EcommerceForwarder forwards a translated status to a linked e-commerce
// order.
type EcommerceForwarder interface {
	ForwardStatus(ctx context.Context, orderID string, status courier.EcommerceStatus) error
}

// Runner executes notification tasks in the background. Panics are recovered
// and failures logged; nothing a task does can reach the caller.
type Runner struct {
	logger  *otelzap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRunner creates a background task runner.
func NewRunner(logger *otelzap.Logger) *Runner {
	return &Runner{logger: logger, timeout: 10 * time.Second}
}

// Submit runs the task in the background under its own timeout.
func (r *Runner) Submit(name string, task func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("Notification task panicked",
					zap.String("task", name), zap.Any("panic", rec))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := task(ctx); err != nil {
			r.logger.Warn("Notification task failed",
				zap.String("task", name), zap.Error(err))
		}
	}()
}

// Wait blocks until all submitted tasks have finished. Used on shutdown and
// in tests.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// ============================================================================
// Logging senders: development defaults, replaced by real integrations in
// deployment wiring.
// ============================================================================

// LogSMSSender logs instead of sending.
type LogSMSSender struct{ Logger *otelzap.Logger }

func (s *LogSMSSender) SendSMS(ctx context.Context, phone, message string) error {
	s.Logger.Ctx(ctx).Info("SMS notification",
		zap.String("phone", phone), zap.String("message", message))
	return nil
}

// LogEmailSender logs instead of sending.
type LogEmailSender struct{ Logger *otelzap.Logger }

func (s *LogEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	s.Logger.Ctx(ctx).Info("Email notification",
		zap.String("to", to), zap.String("subject", subject))
	return nil
}

// LogPushSender logs instead of sending.
type LogPushSender struct{ Logger *otelzap.Logger }

func (s *LogPushSender) SendPush(ctx context.Context, clientID, title, body string) error {
	s.Logger.Ctx(ctx).Info("Push notification",
		zap.String("client_id", clientID), zap.String("title", title))
	return nil
}

// LogEcommerceForwarder logs instead of publishing.
type LogEcommerceForwarder struct{ Logger *otelzap.Logger }

func (f *LogEcommerceForwarder) ForwardStatus(ctx context.Context, orderID string, status courier.EcommerceStatus) error {
	f.Logger.Ctx(ctx).Info("E-commerce status forward",
		zap.String("order_id", orderID), zap.String("status", string(status)))
	return nil
}

var (
	_ SMSSender          = (*LogSMSSender)(nil)
	_ EmailSender        = (*LogEmailSender)(nil)
	_ PushSender         = (*LogPushSender)(nil)
	_ EcommerceForwarder = (*LogEcommerceForwarder)(nil)
)
