package config

import (
	"log/slog"
)

// Reloader re-reads a TOML file and hands the result to an apply function,
// typically one that swaps parts of it into one or more Stores. It is driven
// by a Watcher and may also be called directly.
type Reloader[T any] struct {
	path     string
	defaults *T
	apply    func(*T)
	logger   *slog.Logger
}

// NewReloader creates a reloader for the file at path.
func NewReloader[T any](path string, defaults *T, apply func(*T), logger *slog.Logger) *Reloader[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader[T]{path: path, defaults: defaults, apply: apply, logger: logger}
}

// Reload loads the file and applies it. A file that fails to parse or
// validate leaves the current configuration in place.
func (r *Reloader[T]) Reload() error {
	cfg, err := LoadTOML(r.path, r.defaults)
	if err != nil {
		r.logger.Warn("config reload rejected", "path", r.path, "error", err)
		return err
	}
	r.apply(cfg)
	return nil
}

// Watch starts a Watcher that calls Reload on every change of the file.
func (r *Reloader[T]) Watch(opts ...WatcherOption) (*Watcher, error) {
	opts = append([]WatcherOption{WithWatcherLogger(r.logger)}, opts...)
	return NewWatcher(r.path, func() { _ = r.Reload() }, opts...)
}

// ToStore returns an apply function that swaps the loaded value into store.
func ToStore[T any](store *Store[T]) func(*T) {
	return func(cfg *T) { store.Swap(cfg) }
}
