// Package provider abstracts the config source the loader reads raw
// bytes from, grounded on the teacher's pkg/config/provider package.
// Only the file source is implemented: the spec has no remote config
// store (consul/etcd/zookeeper) to exercise, so those branches are
// left out rather than stubbed unused.
package provider

import "context"

// Provider loads raw config bytes and can optionally watch the
// source for changes.
type Provider interface {
	// Load reads the current raw config bytes from the source.
	Load(ctx context.Context) ([]byte, error)

	// Watch starts watching for changes, signaling on the returned
	// channel. Cancel ctx to stop. Returns a nil channel if the
	// provider doesn't support watching.
	Watch(ctx context.Context) (<-chan struct{}, error)

	// Close releases resources held by the provider.
	Close() error
}
