package repositories

import "context"

// ObjectStore abstracts the remote object storage holding uploaded chunks,
// keyed by the deterministic session/sequence scheme.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	// List returns the keys under the prefix in lexicographic order. Keys
	// embed the zero-padded sequence index, so this order is the capture
	// order.
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// DeletePrefix removes every object under the prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}
