// Package alerts delivers best-effort operator notifications. Delivery
// failures are logged and never interrupt the trading cycle.
package alerts

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Sakeswap/sakeperp-arbitrageur/internal/cooldown"
	"github.com/Sakeswap/sakeperp-arbitrageur/internal/metrics"
)

// Repeats of the same subject inside this window are dropped.
const throttleWindow = 5 * time.Minute

type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

type Notifier struct {
	sender  Sender
	gate    *cooldown.Gate
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewNotifier wraps a sender with per-subject throttling. A nil sender
// yields a notifier that only logs.
func NewNotifier(sender Sender, log *zap.Logger, m *metrics.Metrics) *Notifier {
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Notifier{
		sender:  sender,
		gate:    cooldown.NewGate(throttleWindow),
		log:     log,
		metrics: m,
	}
}

// Notify sends subject/body unless the same subject fired within the
// throttle window.
func (n *Notifier) Notify(ctx context.Context, subject, body string) {
	if !n.gate.Allow(subject) {
		n.metrics.NotificationsSuppressed.Inc()
		n.log.Debug("notification suppressed", zap.String("subject", subject))
		return
	}
	if n.sender == nil {
		n.log.Warn("notification (no sender configured)",
			zap.String("subject", subject), zap.String("body", body))
		return
	}
	if err := n.sender.Send(ctx, subject, body); err != nil {
		n.log.Error("notification delivery failed",
			zap.String("subject", subject), zap.Error(err))
		return
	}
	n.metrics.NotificationsSent.Inc()
	n.log.Info("notification sent", zap.String("subject", subject))
}
