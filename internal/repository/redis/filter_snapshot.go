package redis

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/realm-auth-service/internal/core/port"
)

const defaultFilterSnapshotPrefix = "auth:filters"

// ErrSnapshotChecksum indicates a stored snapshot does not match its checksum.
var ErrSnapshotChecksum = errors.New("filter snapshot checksum mismatch")

// FilterSnapshotRepository persists membership filter snapshots so every
// instance sharing the Redis deployment warm-starts from the same state.
type FilterSnapshotRepository struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

var _ port.FilterSnapshotStore = (*FilterSnapshotRepository)(nil)

// NewFilterSnapshotRepository wires Redis storage for filter snapshots.
func NewFilterSnapshotRepository(client *red.Client, keyPrefix string) *FilterSnapshotRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultFilterSnapshotPrefix
	}
	return &FilterSnapshotRepository{client: client, prefix: prefix, now: time.Now}
}

// Save stores data inside a checksummed envelope without expiry.
func (r *FilterSnapshotRepository) Save(ctx context.Context, name string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("snapshot payload required")
	}

	envelope := snapshotEnvelope{
		SnapshotID:  uuid.NewString(),
		GeneratedAt: r.now().UTC(),
		Checksum:    checksum(data),
		Payload:     base64.StdEncoding.EncodeToString(data),
	}

	encoded, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode snapshot envelope: %w", err)
	}

	if err := r.client.Set(ctx, r.key(name), encoded, 0).Err(); err != nil {
		return fmt.Errorf("redis set filter snapshot: %w", err)
	}
	return nil
}

// Load returns nil, nil when no snapshot exists for name.
func (r *FilterSnapshotRepository) Load(ctx context.Context, name string) ([]byte, error) {
	raw, err := r.client.Get(ctx, r.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get filter snapshot: %w", err)
	}

	var envelope snapshotEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode snapshot envelope: %w", err)
	}

	payload, err := base64.StdEncoding.DecodeString(envelope.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot payload: %w", err)
	}

	if checksum(payload) != envelope.Checksum {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotChecksum, name)
	}
	return payload, nil
}

func (r *FilterSnapshotRepository) key(name string) string {
	return fmt.Sprintf("%s:%s", r.prefix, name)
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type snapshotEnvelope struct {
	SnapshotID  string    `json:"snapshot_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Checksum    string    `json:"checksum"`
	Payload     string    `json:"payload"`
}
