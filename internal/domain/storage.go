package domain

import "context"

// KeyValueStore is the client's persistent storage. Multi-key writes and
// deletes are atomic: readers never observe a partial SetMany or DeleteMany.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetMany(ctx context.Context, values map[string]string) error
	DeleteMany(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}
