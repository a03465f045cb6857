package storage

import "context"

// Repository is an error-returning key/value store. Get returns (nil, nil)
// when the key is absent.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}

// Batcher is implemented by repositories that can apply several writes
// atomically. fn receives a repository bound to the batch.
type Batcher interface {
	Batch(ctx context.Context, fn func(ctx context.Context, r Repository) error) error
}

// batch runs fn atomically when r supports it, and directly otherwise.
func batch(ctx context.Context, r Repository, fn func(ctx context.Context, r Repository) error) error {
	if b, ok := r.(Batcher); ok {
		return b.Batch(ctx, fn)
	}
	return fn(ctx, r)
}
