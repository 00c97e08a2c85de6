// Package kflow runs checkpointed dataflow pipelines.
//
// A pipeline is a kdag.DAG of sources, processors and sinks. App wires it to a
// storage environment, runs one goroutine per stage and resumes every source
// after the last transaction its durable stages committed.
package kflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/birdayz/kflow/internal/execution"
	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/kprocessor"
	"github.com/birdayz/kflow/kstate"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// ErrStateDirRequired is returned when a pipeline with stateful stages is
// created without WithStateDir() or WithEnv().
var ErrStateDirRequired = errors.New("kflow: WithStateDir() is required for stateful pipelines")

var (
	// ErrAlreadyRunning is returned by Run while another Run is active.
	ErrAlreadyRunning = errors.New("kflow: app is already running")
	// ErrClosed is returned by Run after Close.
	ErrClosed = errors.New("kflow: app is closed")
)

type App struct {
	dag *kdag.DAG
	log *slog.Logger

	// State management
	stateDir   string
	syncWrites bool
	env        *kstate.Env
	ownsEnv    bool

	channelCapacity int
	interceptors    []kprocessor.Interceptor
	errorHandler    execution.ErrorHandler

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
	running bool
}

// New creates a new kflow application. Returns an error if the configuration
// is invalid (e.g., stateful pipeline without WithStateDir()) or if the state
// directory cannot be opened.
func New(dag *kdag.DAG, opts ...Option) (*App, error) {
	a := &App{
		dag:        dag,
		log:        NullLogger(),
		syncWrites: true,
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.env == nil && a.stateDir == "" && requiresState(dag) {
		return nil, ErrStateDirRequired
	}

	if a.env == nil && a.stateDir != "" {
		env, err := kstate.Open(a.stateDir, kstate.WithSync(a.syncWrites))
		if err != nil {
			return nil, fmt.Errorf("open state dir %s: %w", a.stateDir, err)
		}
		a.env = env
		a.ownsEnv = true
	}

	return a, nil
}

// MustNew creates a new kflow application, panicking on configuration errors.
// Prefer New() for production code to handle errors gracefully.
func MustNew(dag *kdag.DAG, opts ...Option) *App {
	app, err := New(dag, opts...)
	if err != nil {
		panic(err)
	}
	return app
}

func requiresState(dag *kdag.DAG) bool {
	for _, id := range dag.TopologicalOrder() {
		node, _ := dag.Node(id)
		stage := node.Stage()
		if s, ok := stage.(kprocessor.Stateful); ok && s.RequiresState() {
			return true
		}
		if d, ok := stage.(kprocessor.Durable); ok && d.Durable() {
			return true
		}
	}
	return false
}

// Env returns the storage environment, or nil for stateless pipelines.
func (a *App) Env() *kstate.Env {
	return a.env
}

// Run blocks until the pipeline finished, failed, ctx was cancelled, or Close
// was called. Sources resume after the positions committed by earlier runs.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrClosed
	}
	if a.running {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running = true
	a.mu.Unlock()

	defer func() {
		cancel()
		a.mu.Lock()
		a.running = false
		close(a.done)
		a.mu.Unlock()
	}()

	log := a.log.With("run_id", uuid.NewString())

	var interceptor kprocessor.Interceptor
	if len(a.interceptors) > 0 {
		interceptor = kprocessor.Chain(a.interceptors...)
	}

	x, err := execution.NewExecutor(a.dag, execution.Config{
		Log:             log,
		Env:             a.env,
		ChannelCapacity: a.channelCapacity,
		Interceptor:     interceptor,
		ErrorHandler:    a.errorHandler,
	})
	if err != nil {
		return err
	}
	return x.Run(ctx)
}

// Close gracefully shuts down the application: a running pipeline is
// cancelled and awaited, then the storage environment is closed if the app
// opened it.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	cancel, done, running := a.cancel, a.done, a.running
	a.mu.Unlock()

	if running {
		cancel()
		<-done
	}

	var err error
	if a.ownsEnv {
		err = multierr.Append(err, a.env.Close())
	}
	return err
}
