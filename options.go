package rectree

import (
	"log/slog"

	"github.com/hupe1980/rectree/blobstore"
	"github.com/hupe1980/rectree/internal/fs"
	"github.com/hupe1980/rectree/internal/tree"
	"github.com/hupe1980/rectree/namespace"
)

// Validator is an extra per-record check run by Check and Repair.
type Validator = tree.Validator

// FileSystem is the file system Save and Load go through.
type FileSystem = fs.FileSystem

// FatalHandler receives errors that mean the caller or the tree is broken.
type FatalHandler func(err error)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	registry         namespace.Registry
	validator        Validator
	fsys             fs.FileSystem
	store            blobstore.Store
	workers          int
	ioLimit          int64
	memoryCeiling    int64
	autoGrowMax      int
	autoRepair       bool
	fatal            FatalHandler
}

// Option configures a Tree.
type Option func(*options)

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := rectree.NewJSONLogger(slog.LevelInfo)
//	t, _ := rectree.New(cfg, rectree.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures metrics collection for operations.
//
//	metrics := &rectree.BasicMetricsCollector{}
//	t, _ := rectree.New(cfg, rectree.WithMetricsCollector(metrics))
//	// ... use t ...
//	stats := metrics.GetStats()
//	fmt.Printf("Adds: %d, Avg latency: %dns\n", stats.AddCount, stats.AddAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithRegistry sets the namespace registry. Inserts into namespaces the
// registry does not know fail with ErrUnknownNamespace, and the registry's
// counters track every namespace's live and tombstone totals.
//
// By default every namespace id is accepted.
func WithRegistry(r namespace.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithValidator sets a per-record check run by Check and Repair.
func WithValidator(v Validator) Option {
	return func(o *options) {
		o.validator = v
	}
}

// WithFileSystem replaces the local file system used by Save, Load and Restore.
func WithFileSystem(fsys FileSystem) Option {
	return func(o *options) {
		o.fsys = fsys
	}
}

// WithBlobStore mirrors every successful save to store and enables Restore.
//
// Stores that implement blobstore.Committer receive each save under a new
// name that is then committed as current; other stores have the saved file
// overwritten in place.
func WithBlobStore(store blobstore.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithBackgroundWorkers sets how many saves may run in the background at
// once. When every worker is busy a save runs on the caller's goroutine.
// 0 runs every save inline. Default: 1.
func WithBackgroundWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithIOLimit throttles save writes to bytesPerSec. 0 means unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithMemoryCeiling caps the bytes the arena and owned payloads may
// reserve. Growth and inserts beyond it fail with ErrMemoryLimitExceeded.
// 0 means unlimited.
func WithMemoryCeiling(bytes int64) Option {
	return func(o *options) {
		o.memoryCeiling = bytes
	}
}

// WithAutoGrow doubles the capacity, up to maxCapacity slots, when an
// insert finds the tree full. maxCapacity <= 0 disables auto-grow.
func WithAutoGrow(maxCapacity int) Option {
	return func(o *options) {
		o.autoGrowMax = maxCapacity
	}
}

// WithAutoRepair makes Load repair a tree that fails its integrity check
// instead of returning the corruption error.
func WithAutoRepair(enabled bool) Option {
	return func(o *options) {
		o.autoRepair = enabled
	}
}

// WithFatalHandler sets the handler for logical-use errors and failed
// repairs. The default logs the error and panics.
func WithFatalHandler(h FatalHandler) Option {
	return func(o *options) {
		o.fatal = h
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		workers:          1,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.fsys == nil {
		o.fsys = fs.Default
	}
	if o.registry == nil {
		o.registry = namespace.NewOpenSet()
	}
	return o
}
