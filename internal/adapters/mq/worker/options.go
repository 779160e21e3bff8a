// Package worker runs the release workers that apply expiry penalties and
// reset overdue issues back to open.
package worker

import (
	"github.com/issuearena/issuearena/pkg/logger"
)

// Option applies a configuration option to the ReleaseWorker.
type Option func(*ReleaseWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *ReleaseWorker) {
		if name != "" {
			w.name = name
			w.logger = logger.Get().Named(name)
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *ReleaseWorker) {
		if l != nil {
			w.logger = l
		}
	}
}
