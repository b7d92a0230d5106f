package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"google.golang.org/api/option"
)

// Options select and configure a backend.
type Options struct {
	Backend string // memory | firestore | sqlite

	SQLitePath string

	FirestoreProject  string
	FirestoreDatabase string
	// ClientOptions are passed to the Firestore client (credentials etc).
	ClientOptions []option.ClientOption

	Logger *slog.Logger
}

// Open constructs the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Provider, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	switch opts.Backend {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(opts.SQLitePath)
	case "firestore":
		return OpenFirestore(ctx, opts.FirestoreProject, opts.FirestoreDatabase, log, opts.ClientOptions...)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", opts.Backend)
	}
}

// Factory builds the process-wide Provider once, on first use. Concurrent
// first calls block until the single construction finishes.
type Factory struct {
	opts Options

	once     sync.Once
	provider Provider
	err      error
}

// NewFactory returns a Factory that will open opts on first Get.
func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts}
}

// Get returns the shared Provider, constructing it on the first call. A
// construction error is sticky.
func (f *Factory) Get(ctx context.Context) (Provider, error) {
	f.once.Do(func() {
		f.provider, f.err = Open(ctx, f.opts)
		if f.err == nil && f.opts.Logger != nil {
			f.opts.Logger.Info("storage backend ready", slog.String("backend", f.opts.Backend))
		}
	})
	return f.provider, f.err
}

// Close closes the Provider if it was ever constructed.
func (f *Factory) Close() error {
	f.once.Do(func() {}) // no construction after Close
	if f.provider == nil {
		return nil
	}
	return f.provider.Close()
}
