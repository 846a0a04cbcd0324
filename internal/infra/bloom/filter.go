package bloom

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"go.uber.org/zap"

	"github.com/arklim/realm-auth-service/internal/core/port"
)

// Filter is a snapshot-backed bloom filter. Add is serialized; Contains only
// takes the read side of the lock so lookups never wait on each other.
type Filter struct {
	name      string
	capacity  uint
	errorRate float64
	normalize func(string) string

	mu    sync.RWMutex
	bf    *bloom.BloomFilter
	added uint64

	// persistMu orders snapshot writes so the newest state is written last.
	persistMu sync.Mutex
	store     port.FilterSnapshotStore
	onAdd     func(name string)
	logger    *zap.Logger
}

var _ port.MembershipFilter = (*Filter)(nil)

// FilterOption customises a Filter.
type FilterOption func(*Filter)

// WithNormalizer rewrites items before Add and Contains.
func WithNormalizer(fn func(string) string) FilterOption {
	return func(f *Filter) { f.normalize = fn }
}

// WithAddHook is invoked after every successful Add.
func WithAddHook(fn func(name string)) FilterOption {
	return func(f *Filter) { f.onAdd = fn }
}

// NewFilter builds an empty filter sized for capacity items at errorRate.
func NewFilter(name string, capacity uint, errorRate float64, store port.FilterSnapshotStore, logger *zap.Logger, opts ...FilterOption) (*Filter, error) {
	if capacity == 0 {
		return nil, fmt.Errorf("filter %s: capacity must be positive", name)
	}
	if errorRate <= 0 || errorRate >= 1 {
		return nil, fmt.Errorf("filter %s: error rate must be in (0, 1)", name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	f := &Filter{
		name:      name,
		capacity:  capacity,
		errorRate: errorRate,
		bf:        bloom.NewWithEstimates(capacity, errorRate),
		store:     store,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Name returns the snapshot name of the filter.
func (f *Filter) Name() string {
	return f.name
}

// Load replaces the in-memory state with the stored snapshot when one exists.
func (f *Filter) Load(ctx context.Context) (bool, error) {
	if f.store == nil {
		return false, nil
	}

	data, err := f.store.Load(ctx, f.name)
	if err != nil {
		return false, fmt.Errorf("load %s snapshot: %w", f.name, err)
	}
	if len(data) == 0 {
		return false, nil
	}

	restored := &bloom.BloomFilter{}
	if _, err := restored.ReadFrom(bytes.NewReader(data)); err != nil {
		return false, fmt.Errorf("decode %s snapshot: %w", f.name, err)
	}

	f.mu.Lock()
	f.bf = restored
	f.added = uint64(restored.ApproximatedSize())
	f.mu.Unlock()

	f.logger.Info("filter snapshot loaded",
		zap.String("filter", f.name),
		zap.Int("bytes", len(data)),
	)
	return true, nil
}

// Add inserts item and writes the resulting snapshot through to the store.
func (f *Filter) Add(ctx context.Context, item string) error {
	f.insert(item)
	if err := f.persist(ctx); err != nil {
		return err
	}
	if f.onAdd != nil {
		f.onAdd(f.name)
	}
	return nil
}

// AddMany inserts items and persists a single snapshot afterwards.
func (f *Filter) AddMany(ctx context.Context, items []string) error {
	if len(items) == 0 {
		return nil
	}
	for _, item := range items {
		f.insert(item)
	}
	return f.persist(ctx)
}

// Contains reports whether item may be in the set. False is definitive.
func (f *Filter) Contains(item string) bool {
	item = f.norm(item)
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bf.TestString(item)
}

// Stats describes the current sizing and fill of the filter.
func (f *Filter) Stats() FilterStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return FilterStats{
		Name:             f.name,
		Capacity:         f.capacity,
		ErrorRate:        f.errorRate,
		ApproximateCount: f.bf.ApproximatedSize(),
		Inserts:          f.added,
		BitSize:          f.bf.Cap(),
		HashCount:        f.bf.K(),
	}
}

func (f *Filter) insert(item string) {
	item = f.norm(item)
	f.mu.Lock()
	f.bf.AddString(item)
	f.added++
	f.mu.Unlock()
}

func (f *Filter) norm(item string) string {
	if f.normalize != nil {
		return f.normalize(item)
	}
	return item
}

func (f *Filter) persist(ctx context.Context) error {
	if f.store == nil {
		return nil
	}

	f.persistMu.Lock()
	defer f.persistMu.Unlock()

	var buf bytes.Buffer
	f.mu.RLock()
	_, err := f.bf.WriteTo(&buf)
	f.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode %s snapshot: %w", f.name, err)
	}

	if err := f.store.Save(ctx, f.name, buf.Bytes()); err != nil {
		return fmt.Errorf("save %s snapshot: %w", f.name, err)
	}
	return nil
}

// FilterStats is the JSON shape of a filter in the stats endpoint.
type FilterStats struct {
	Name             string  `json:"name"`
	Capacity         uint    `json:"capacity"`
	ErrorRate        float64 `json:"error_rate"`
	ApproximateCount uint32  `json:"approximate_count"`
	Inserts          uint64  `json:"inserts"`
	BitSize          uint    `json:"bit_size"`
	HashCount        uint    `json:"hash_count"`
}
