package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/core/port"
	"github.com/arklim/realm-auth-service/internal/infra/logger"
)

const (
	revocationComponent     = "revocation"
	defaultRevocationTTL    = 24 * time.Hour
	revocationOutcomeClear  = "filter_negative"
	revocationOutcomeHit    = "confirmed"
	revocationOutcomeFalse  = "false_positive"
	revocationOutcomeFailed = "degraded"
)

// ErrRevocationIDRequired is returned when Revoke is called without a token identifier.
var ErrRevocationIDRequired = errors.New("revocation id is required")

// RevocationChecker answers whether a session token identifier has been revoked.
// The blacklist filter rejects fast; a filter hit is confirmed against the TTL'd store marker.
type RevocationChecker struct {
	filter    port.MembershipFilter
	store     port.RevocationStore
	publisher port.RevocationPublisher
	reporter  port.ErrorReporter
	policy    domain.DegradationPolicy
	outcomes  *prometheus.CounterVec
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewRevocationChecker constructs a checker. A non-positive ttl defaults to 24h.
func NewRevocationChecker(filter port.MembershipFilter, store port.RevocationStore, reporter port.ErrorReporter, ttl time.Duration, log *zap.Logger) *RevocationChecker {
	if ttl <= 0 {
		ttl = defaultRevocationTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RevocationChecker{
		filter:   filter,
		store:    store,
		reporter: reporter,
		policy:   domain.NewDegradationPolicy(domain.DegradationPolicyModeLenient),
		ttl:      ttl,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithPublisher enables fan-out of revocations to other instances.
func (c *RevocationChecker) WithPublisher(publisher port.RevocationPublisher) *RevocationChecker {
	c.publisher = publisher
	return c
}

// WithDegradationPolicy overrides the answer given when the store cannot be read.
func (c *RevocationChecker) WithDegradationPolicy(policy domain.DegradationPolicy) *RevocationChecker {
	c.policy = policy
	return c
}

// WithOutcomeCounter records each check under an "outcome" label.
func (c *RevocationChecker) WithOutcomeCounter(counter *prometheus.CounterVec) *RevocationChecker {
	c.outcomes = counter
	return c
}

// WithClock overrides the internal clock for deterministic tests.
func (c *RevocationChecker) WithClock(clock func() time.Time) *RevocationChecker {
	if clock != nil {
		c.now = clock
	}
	return c
}

// WithTokenLifetime raises the marker TTL to at least lifetime so a revoked
// token cannot outlive its marker.
func (c *RevocationChecker) WithTokenLifetime(lifetime time.Duration) *RevocationChecker {
	if lifetime > c.ttl {
		c.ttl = lifetime
	}
	return c
}

// IsRevoked reports whether jti is revoked. Store failures are reported and
// answered according to the degradation policy, lenient by default.
func (c *RevocationChecker) IsRevoked(ctx context.Context, jti string) bool {
	jti = strings.TrimSpace(jti)
	if jti == "" || !c.filter.Contains(jti) {
		c.observe(revocationOutcomeClear)
		return false
	}

	revoked, err := c.store.IsRevoked(ctx, jti)
	if err != nil {
		c.observe(revocationOutcomeFailed)
		c.report(ctx, domain.SeverityHigh, fmt.Errorf("confirm revocation: %w", err), zap.String("jti", logger.MaskToken(jti)))
		return c.policy.RevokedOnFailure()
	}
	if !revoked {
		c.observe(revocationOutcomeFalse)
		return false
	}
	c.observe(revocationOutcomeHit)
	return true
}

// Revoke adds jti to the blacklist filter and then writes the store marker.
// Both writes must succeed; fan-out to other instances is best effort.
func (c *RevocationChecker) Revoke(ctx context.Context, jti string) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return fmt.Errorf("%w: %w", domain.ErrValidationFailed, ErrRevocationIDRequired)
	}

	if err := c.filter.Add(ctx, jti); err != nil {
		c.report(ctx, domain.SeverityHigh, fmt.Errorf("add to blacklist filter: %w", err), zap.String("jti", logger.MaskToken(jti)))
		return fmt.Errorf("%w: blacklist filter: %v", domain.ErrInternal, err)
	}
	if err := c.store.MarkRevoked(ctx, jti, c.ttl); err != nil {
		c.report(ctx, domain.SeverityHigh, fmt.Errorf("mark revoked: %w", err), zap.String("jti", logger.MaskToken(jti)))
		return fmt.Errorf("%w: revocation store: %v", domain.ErrInternal, err)
	}

	if c.publisher != nil {
		now := c.now()
		event := domain.TokenRevokedEvent{
			EventID:   uuid.NewString(),
			JTI:       jti,
			RevokedAt: now,
			ExpiresAt: now.Add(c.ttl),
		}
		if err := c.publisher.PublishTokenRevoked(ctx, event); err != nil {
			c.report(ctx, domain.SeverityWarning, fmt.Errorf("publish token revoked: %w", err), zap.String("jti", logger.MaskToken(jti)))
		}
	}

	c.logger.Debug("token revoked", zap.String("jti", logger.MaskToken(jti)))
	return nil
}

// AcceptRemote applies a revocation broadcast by another instance to the local filter.
// The store marker is shared, so only the filter needs updating. Expired events are ignored.
func (c *RevocationChecker) AcceptRemote(ctx context.Context, event domain.TokenRevokedEvent) error {
	jti := strings.TrimSpace(event.JTI)
	if jti == "" {
		return ErrRevocationIDRequired
	}
	if !event.ExpiresAt.IsZero() && !c.now().Before(event.ExpiresAt) {
		return nil
	}
	if c.filter.Contains(jti) {
		return nil
	}
	if err := c.filter.Add(ctx, jti); err != nil {
		return fmt.Errorf("add remote revocation: %w", err)
	}
	return nil
}

func (c *RevocationChecker) observe(outcome string) {
	if c.outcomes != nil {
		c.outcomes.WithLabelValues(outcome).Inc()
	}
}

func (c *RevocationChecker) report(ctx context.Context, severity domain.Severity, err error, fields ...zap.Field) {
	if c.reporter != nil {
		c.reporter.Report(ctx, severity, revocationComponent, err, fields...)
		return
	}
	c.logger.Warn("revocation error", append(fields, zap.Error(err))...)
}
