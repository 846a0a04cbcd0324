package bloom

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/domain"
	"github.com/arklim/realm-auth-service/internal/core/port"
	"github.com/arklim/realm-auth-service/internal/infra/config"
)

const (
	BlacklistedTokens    = "blacklisted_tokens"
	CompromisedPasswords = "compromised_passwords"
	SuspiciousIPs        = "suspicious_ips"
	RegisteredEmails     = "registered_emails"
)

// Bank holds the four membership filters of the service.
type Bank struct {
	BlacklistedTokens    *Filter
	CompromisedPasswords *Filter
	SuspiciousIPs        *Filter
	RegisteredEmails     *Filter
}

// NewBank builds every filter from cfg and restores any stored snapshots.
func NewBank(ctx context.Context, cfg config.FilterSettings, store port.FilterSnapshotStore, logger *zap.Logger, opts ...FilterOption) (*Bank, error) {
	specs := []struct {
		name   string
		sizing config.FilterSizing
		extra  []FilterOption
	}{
		{BlacklistedTokens, cfg.BlacklistedTokens, nil},
		{CompromisedPasswords, cfg.CompromisedPasswords, nil},
		{SuspiciousIPs, cfg.SuspiciousIPs, nil},
		{RegisteredEmails, cfg.RegisteredEmails, []FilterOption{WithNormalizer(domain.NormalizeEmail)}},
	}

	filters := make(map[string]*Filter, len(specs))
	for _, spec := range specs {
		filterOpts := append(append([]FilterOption{}, opts...), spec.extra...)
		f, err := NewFilter(spec.name, spec.sizing.Capacity, spec.sizing.ErrorRate, store, logger, filterOpts...)
		if err != nil {
			return nil, err
		}
		if _, err := f.Load(ctx); err != nil {
			return nil, err
		}
		filters[spec.name] = f
	}

	return &Bank{
		BlacklistedTokens:    filters[BlacklistedTokens],
		CompromisedPasswords: filters[CompromisedPasswords],
		SuspiciousIPs:        filters[SuspiciousIPs],
		RegisteredEmails:     filters[RegisteredEmails],
	}, nil
}

// Stats reports every filter in a stable order.
func (b *Bank) Stats() []FilterStats {
	return []FilterStats{
		b.BlacklistedTokens.Stats(),
		b.CompromisedPasswords.Stats(),
		b.SuspiciousIPs.Stats(),
		b.RegisteredEmails.Stats(),
	}
}

// SeedFromFile adds every non-empty, non-comment line of path to f.
func SeedFromFile(ctx context.Context, f *Filter, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open seed file: %w", err)
	}
	defer file.Close()

	var items []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		items = append(items, line)
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read seed file: %w", err)
	}

	if err := f.AddMany(ctx, items); err != nil {
		return 0, err
	}
	return len(items), nil
}
