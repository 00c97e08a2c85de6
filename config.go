package kflow

import (
	"io"
	"log/slog"

	"github.com/birdayz/kflow/internal/execution"
	"github.com/birdayz/kflow/kprocessor"
	"github.com/birdayz/kflow/kstate"
)

// Option is a function that configures an App
type Option func(*App)

// WithLog sets the logger for the application
var WithLog = func(log *slog.Logger) Option {
	return func(a *App) {
		a.log = log
	}
}

// WithStateDir sets the directory of the storage environment. The app opens
// the environment in New and closes it in Close.
var WithStateDir = func(stateDir string) Option {
	return func(a *App) {
		a.stateDir = stateDir
	}
}

// WithEnv uses an already opened storage environment. The caller keeps
// ownership and closes it after the app.
var WithEnv = func(env *kstate.Env) Option {
	return func(a *App) {
		a.env = env
	}
}

// WithSyncWrites controls whether commits of an environment opened through
// WithStateDir are synced to disk. Default: true.
var WithSyncWrites = func(sync bool) Option {
	return func(a *App) {
		a.syncWrites = sync
	}
}

// WithChannelCapacity sets the buffer size of every edge.
var WithChannelCapacity = func(n int) Option {
	return func(a *App) {
		a.channelCapacity = n
	}
}

// WithInterceptors wraps every delivery to a processor or sink. Interceptors
// run in the given order.
var WithInterceptors = func(interceptors ...kprocessor.Interceptor) Option {
	return func(a *App) {
		a.interceptors = append(a.interceptors, interceptors...)
	}
}

// ErrorRecovery determines how to handle a processing error
type ErrorRecovery = execution.ErrorRecovery

// Error recovery constants
const (
	RecoveryFail = execution.RecoveryFail
	RecoverySkip = execution.RecoverySkip
)

// ErrorHandler is called when a stage fails to process a message
type ErrorHandler = execution.ErrorHandler

// ProcessingError describes a failed stage.
type ProcessingError = execution.ProcessingError

// InitError describes a stage that failed to initialize.
type InitError = execution.InitError

// WithErrorHandler sets a custom error handler for processing failures.
// Default behavior is fail-fast (RecoveryFail).
var WithErrorHandler = func(handler ErrorHandler) Option {
	return func(a *App) {
		a.errorHandler = handler
	}
}

// NullLogger creates a logger that discards all output
func NullLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
