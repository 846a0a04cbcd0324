package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "auth"

// Metrics groups the domain collectors shared by the revocation checker,
// user cache, filter bank, notification queue and error reporter.
type Metrics struct {
	RevocationChecks   *prometheus.CounterVec
	CacheLookups       *prometheus.CounterVec
	FilterAdds         *prometheus.CounterVec
	SuspiciousRequests prometheus.Counter
	Notifications      *prometheus.CounterVec
	Errors             *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg, reusing collectors that are already registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{}
	var err error

	if m.RevocationChecks, err = Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "revocation_checks_total",
		Help:      "Revocation checks partitioned by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}

	if m.CacheLookups, err = Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "user_cache_lookups_total",
		Help:      "User cache lookups partitioned by realm, key kind and result.",
	}, []string{"realm", "key", "result"})); err != nil {
		return nil, err
	}

	if m.FilterAdds, err = Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "filter_adds_total",
		Help:      "Items added to membership filters.",
	}, []string{"filter"})); err != nil {
		return nil, err
	}

	if m.SuspiciousRequests, err = Register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "suspicious_requests_total",
		Help:      "Requests from addresses present in the suspicious IP filter.",
	})); err != nil {
		return nil, err
	}

	if m.Notifications, err = Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification jobs partitioned by kind and result.",
	}, []string{"kind", "result"})); err != nil {
		return nil, err
	}

	if m.Errors, err = Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Reported errors partitioned by component and severity.",
	}, []string{"component", "severity"})); err != nil {
		return nil, err
	}

	return m, nil
}

// Register adds collector to reg, returning the already registered collector when one with the same descriptor exists.
func Register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
			return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return collector, fmt.Errorf("register collector: %w", err)
	}
	return collector, nil
}
