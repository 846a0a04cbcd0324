package port

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/domain"
)

// ErrorReporter records swallowed and propagated errors with a severity tier.
type ErrorReporter interface {
	Report(ctx context.Context, severity domain.Severity, component string, err error, fields ...zap.Field)
}
