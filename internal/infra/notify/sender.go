// Package notify renders notification jobs and delivers them through pluggable senders.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/domain"
)

// ErrUnsupportedKind is returned when no sender handles a job's kind.
var ErrUnsupportedKind = errors.New("notify: unsupported notification kind")

// Sender delivers a rendered job over one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, job domain.NotificationJob) error
}

// Dispatcher renders jobs and routes them to the sender registered for their kind.
// Delivery is at most once: failures are logged and counted, never retried.
type Dispatcher struct {
	senders map[domain.NotificationKind]Sender
	results *prometheus.CounterVec
	logger  *zap.Logger
}

// NewDispatcher routes email jobs to email and sms jobs to sms. Either may be nil.
func NewDispatcher(email, sms Sender, results *prometheus.CounterVec, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	senders := make(map[domain.NotificationKind]Sender, 2)
	if email != nil {
		senders[domain.NotificationKindEmail] = email
	}
	if sms != nil {
		senders[domain.NotificationKindSMS] = sms
	}
	return &Dispatcher{senders: senders, results: results, logger: logger}
}

// Deliver renders and sends job.
func (d *Dispatcher) Deliver(ctx context.Context, job domain.NotificationJob) error {
	sender, ok := d.senders[job.Kind]
	if !ok {
		d.count(job.Kind, "unsupported")
		return fmt.Errorf("%w: %q", ErrUnsupportedKind, job.Kind)
	}

	rendered, err := Render(job)
	if err != nil {
		d.count(job.Kind, "render_error")
		d.logger.Error("render notification failed", zap.String("job_id", job.ID), zap.String("template", job.Template), zap.Error(err))
		return err
	}

	if err := sender.Send(ctx, rendered); err != nil {
		d.count(job.Kind, "failed")
		d.logger.Error("send notification failed",
			zap.String("job_id", job.ID),
			zap.String("sender", sender.Name()),
			zap.String("kind", string(job.Kind)),
			zap.Error(err),
		)
		return fmt.Errorf("send via %s: %w", sender.Name(), err)
	}

	d.count(job.Kind, "sent")
	return nil
}

func (d *Dispatcher) count(kind domain.NotificationKind, result string) {
	if d.results != nil {
		d.results.WithLabelValues(string(kind), result).Inc()
	}
}
