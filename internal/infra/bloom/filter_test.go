package bloom

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/realm-auth-service/internal/infra/config"
)

func testSizing() config.FilterSettings {
	sizing := config.FilterSizing{Capacity: 10_000, ErrorRate: 0.001}
	return config.FilterSettings{
		BlacklistedTokens:    sizing,
		CompromisedPasswords: sizing,
		SuspiciousIPs:        sizing,
		RegisteredEmails:     sizing,
	}
}

func TestFilterNoFalseNegatives(t *testing.T) {
	f, err := NewFilter("t", 10_000, 0.001, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 1000; i++ {
		require.NoError(t, f.Add(ctx, fmt.Sprintf("item-%d", i)))
	}
	for i := 0; i < 1000; i++ {
		assert.True(t, f.Contains(fmt.Sprintf("item-%d", i)))
	}
}

func TestFilterFalsePositiveRateWithinBounds(t *testing.T) {
	f, err := NewFilter("t", 10_000, 0.001, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 10_000; i++ {
		require.NoError(t, f.Add(ctx, fmt.Sprintf("member-%d", i)))
	}

	falsePositives := 0
	const lookups = 20_000
	for i := 0; i < lookups; i++ {
		if f.Contains(fmt.Sprintf("absent-%d", i)) {
			falsePositives++
		}
	}

	// Ten times the configured rate leaves room for statistical noise.
	assert.Less(t, float64(falsePositives)/lookups, 0.01)
}

func TestFilterSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSnapshotStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	f, err := NewFilter(BlacklistedTokens, 1000, 0.001, store, nil)
	require.NoError(t, err)
	require.NoError(t, f.Add(ctx, "jti-1"))

	_, err = os.Stat(filepath.Join(dir, BlacklistedTokens+".bloom"))
	require.NoError(t, err, "expected write-through snapshot")

	restored, err := NewFilter(BlacklistedTokens, 1000, 0.001, store, nil)
	require.NoError(t, err)
	loaded, err := restored.Load(ctx)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.True(t, restored.Contains("jti-1"))
}

func TestFilterLoadWithoutSnapshotStartsEmpty(t *testing.T) {
	store, err := NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)

	f, err := NewFilter("empty", 1000, 0.001, store, nil)
	require.NoError(t, err)
	loaded, err := f.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.False(t, f.Contains("anything"))
}

func TestFilterConcurrentAdds(t *testing.T) {
	store, err := NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)
	f, err := NewFilter("concurrent", 10_000, 0.001, store, nil)
	require.NoError(t, err)

	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = f.Add(ctx, fmt.Sprintf("w%d-%d", w, i))
				_ = f.Contains(fmt.Sprintf("w%d-%d", w, i))
			}
		}(w)
	}
	wg.Wait()

	restored, err := NewFilter("concurrent", 10_000, 0.001, store, nil)
	require.NoError(t, err)
	_, err = restored.Load(ctx)
	require.NoError(t, err)
	for w := 0; w < 8; w++ {
		for i := 0; i < 50; i++ {
			assert.True(t, restored.Contains(fmt.Sprintf("w%d-%d", w, i)))
		}
	}
}

func TestNewFilterRejectsBadSizing(t *testing.T) {
	_, err := NewFilter("bad", 0, 0.001, nil, nil)
	assert.Error(t, err)
	_, err = NewFilter("bad", 10, 1.5, nil, nil)
	assert.Error(t, err)
}

func TestBankNormalizesEmails(t *testing.T) {
	bank, err := NewBank(context.Background(), testSizing(), nil, nil)
	require.NoError(t, err)

	require.NoError(t, bank.RegisteredEmails.Add(context.Background(), "  Alice@Example.COM "))
	assert.True(t, bank.RegisteredEmails.Contains("alice@example.com"))
	assert.False(t, bank.SuspiciousIPs.Contains("alice@example.com"))

	stats := bank.Stats()
	require.Len(t, stats, 4)
	assert.Equal(t, RegisteredEmails, stats[3].Name)
	assert.Equal(t, uint64(1), stats[3].Inserts)
}

func TestSeedFromFile(t *testing.T) {
	bank, err := NewBank(context.Background(), testSizing(), nil, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "passwords.txt")
	require.NoError(t, os.WriteFile(path, []byte("# leaked\nhunter2\n\nP@ssw0rd!\n"), 0o600))

	n, err := SeedFromFile(context.Background(), bank.CompromisedPasswords, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, bank.CompromisedPasswords.Contains("hunter2"))
	assert.True(t, bank.CompromisedPasswords.Contains("P@ssw0rd!"))
}
