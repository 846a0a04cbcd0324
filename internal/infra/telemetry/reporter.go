package telemetry

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/core/port"
	"github.com/arklim/realm-auth-service/internal/infra/logger"
)

// Reporter records errors to the log at a level derived from their severity and counts them.
type Reporter struct {
	logger  *zap.Logger
	metrics *Metrics
}

var _ port.ErrorReporter = (*Reporter)(nil)

// NewReporter builds a Reporter. metrics may be nil.
func NewReporter(log *zap.Logger, metrics *Metrics) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{logger: log, metrics: metrics}
}

// Report logs err for component. Critical entries carry alert=true for paging rules.
func (r *Reporter) Report(ctx context.Context, severity domain.Severity, component string, err error, fields ...zap.Field) {
	if r == nil {
		return
	}

	fields = append(fields,
		zap.String("component", component),
		zap.String("severity", string(severity)),
		zap.Error(err),
	)
	log := logger.WithContext(ctx, r.logger)

	switch severity {
	case domain.SeverityInfo:
		log.Info("error reported", fields...)
	case domain.SeverityWarning:
		log.Warn("error reported", fields...)
	case domain.SeverityCritical:
		log.Error("error reported", append(fields, zap.Bool("alert", true))...)
	default:
		log.Error("error reported", fields...)
	}

	if r.metrics != nil {
		r.metrics.Errors.WithLabelValues(component, string(severity)).Inc()
	}
}
