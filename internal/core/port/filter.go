package port

import "context"

// MembershipFilter is a probabilistic set: Contains never yields a false negative.
type MembershipFilter interface {
	Add(ctx context.Context, item string) error
	Contains(item string) bool
}

// FilterSnapshotStore persists serialized filter state under a filter name.
// Load returns nil, nil when no snapshot exists.
type FilterSnapshotStore interface {
	Save(ctx context.Context, name string, data []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
}
