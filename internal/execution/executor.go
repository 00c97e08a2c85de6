package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"

	"github.com/birdayz/kflow/kcheckpoint"
	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/kprocessor"
	"github.com/birdayz/kflow/kstate"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Config holds configuration for an Executor.
type Config struct {
	Log *slog.Logger

	// Env is the shared storage environment. It may be nil for pipelines
	// without stateful stages.
	Env *kstate.Env

	// ChannelCapacity is the buffer size of each edge. Default: 64.
	ChannelCapacity int

	// Interceptor wraps every delivery to a processor or sink.
	Interceptor kprocessor.Interceptor

	ErrorHandler ErrorHandler
}

// Executor runs a DAG: one goroutine per stage, one bounded channel per edge.
type Executor struct {
	dag         *kdag.DAG
	cfg         Config
	checkpoints *kcheckpoint.Store
}

func NewExecutor(dag *kdag.DAG, cfg Config) (*Executor, error) {
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.DiscardHandler)
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultErrorHandler()
	}

	x := &Executor{dag: dag, cfg: cfg}
	if cfg.Env != nil {
		store, err := kcheckpoint.Open(cfg.Env)
		if err != nil {
			return nil, err
		}
		x.checkpoints = store
	}
	return x, nil
}

// Run initializes every stage, runs the pipeline until all stages finished
// and tears everything down.
//
// Run returns nil when every stage finished, either because its inputs were
// exhausted, it returned Stop, or ctx was cancelled. A failing Init is
// reported as *InitError; a failing stage cancels all others and is reported
// as *ProcessingError.
func (x *Executor) Run(ctx context.Context) error {
	plan := NewPlan(x.dag, x.cfg.ChannelCapacity)
	order := x.dag.TopologicalOrder()

	contexts := make(map[kdag.NodeID]*stageContext, len(order))
	for i, id := range order {
		u := plan.units[id]
		sc := &stageContext{
			id:  string(id),
			env: x.cfg.Env,
			log: x.cfg.Log.With("stage", string(id), "role", u.node.Type.String()),
		}
		contexts[id] = sc

		if err := initStage(u.node, sc); err != nil {
			x.closeInitialized(plan, order[:i])
			return &InitError{StageID: id, Cause: err}
		}
	}

	resume, err := x.resumePositions()
	if err != nil {
		x.closeInitialized(plan, order)
		return err
	}

	x.cfg.Log.Info("Starting pipeline", "stages", plan.Units(), "channels", plan.Channels(), "capacity", plan.Capacity())

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range order {
		u := plan.units[id]
		sc := contexts[id]
		g.Go(func() error {
			if u.node.Type == kdag.NodeTypeSource {
				return x.runSource(gctx, u, sc, resume[id])
			}
			return x.runConsumer(gctx, u, sc)
		})
	}

	err = g.Wait()
	if err != nil {
		x.cfg.Log.Error("Pipeline failed", "error", err)
		return err
	}
	x.cfg.Log.Info("Pipeline finished")
	return nil
}

func initStage(n *kdag.Node, sc kprocessor.StageContext) error {
	switch n.Type {
	case kdag.NodeTypeSource:
		return n.Source.Init(sc)
	case kdag.NodeTypeProcessor:
		return n.Processor.Init(sc)
	default:
		return n.Sink.Init(sc)
	}
}

func closeStage(n *kdag.Node) error {
	switch n.Type {
	case kdag.NodeTypeSource:
		return n.Source.Close()
	case kdag.NodeTypeProcessor:
		return n.Processor.Close()
	default:
		return n.Sink.Close()
	}
}

// closeInitialized tears down already initialized stages in reverse order.
func (x *Executor) closeInitialized(plan *Plan, initialized []kdag.NodeID) {
	var errs error
	for _, id := range slices.Backward(initialized) {
		errs = multierr.Append(errs, closeStage(plan.units[id].node))
	}
	if errs != nil {
		x.cfg.Log.Warn("Failed to close stages after aborted startup", "error", errs)
	}
}

// resumePositions computes, per source, the minimum checkpoint over the
// durable stages downstream of it.
func (x *Executor) resumePositions() (map[kdag.NodeID]kcheckpoint.Position, error) {
	out := make(map[kdag.NodeID]kcheckpoint.Position)
	if x.checkpoints == nil {
		return out, nil
	}

	txn := x.cfg.Env.BeginRead()
	defer txn.Close()

	for _, src := range x.dag.Sources() {
		var durable []string
		for _, id := range x.dag.Downstream(src) {
			node, _ := x.dag.Node(id)
			if d, ok := node.Stage().(kprocessor.Durable); ok && d.Durable() {
				durable = append(durable, string(id))
			}
		}
		if len(durable) == 0 {
			out[src] = kcheckpoint.Unknown()
			continue
		}

		pos, err := x.checkpoints.Resume(txn, string(src), durable...)
		if err != nil {
			return nil, fmt.Errorf("read checkpoint of source %s: %w", src, err)
		}
		out[src] = pos
	}
	return out, nil
}

// unitContext derives the context of one unit. It is cancelled together with
// gctx, and also once every outbound edge was detached by its consumer.
func unitContext(gctx context.Context, u *unit) (context.Context, context.CancelFunc) {
	uctx, cancel := context.WithCancel(gctx)
	if len(u.out) == 0 {
		return uctx, cancel
	}
	go func() {
		for _, e := range u.out {
			select {
			case <-e.detached:
			case <-uctx.Done():
				return
			}
		}
		cancel()
	}()
	return uctx, cancel
}

func (x *Executor) runSource(gctx context.Context, u *unit, sc *stageContext, from kcheckpoint.Position) (err error) {
	uctx, cancel := unitContext(gctx, u)
	fw := newForwarder(u)
	defer func() {
		err = multierr.Append(err, x.finish(u, cancel, fw))
	}()

	sc.log.Debug("Starting source", "from", from)
	startErr := u.node.Source.Start(uctx, fw, from)
	if gctx.Err() != nil {
		return nil
	}
	if cerr := fw.channelErr(); cerr != nil {
		return newProcessingError(cerr, PhaseForward, u.node)
	}
	if startErr != nil && uctx.Err() != nil && errors.Is(startErr, context.Canceled) {
		sc.log.Debug("All consumers stopped")
		return nil
	}
	if startErr != nil {
		return newProcessingError(startErr, PhaseStart, u.node)
	}
	return nil
}

func (x *Executor) runConsumer(gctx context.Context, u *unit, sc *stageContext) (err error) {
	uctx, cancel := unitContext(gctx, u)
	fw := newForwarder(u)
	defer func() {
		for _, e := range u.in {
			e.detach()
		}
		err = multierr.Append(err, x.finish(u, cancel, fw))
	}()

	deliver := x.handler(u, sc, fw)
	align := newAligner(x.dag, u)

	// process delivers one message and reports whether the unit is done.
	process := func(port kprocessor.PortHandle, msg kprocessor.Message) (bool, error) {
		ctrl, perr := deliver(uctx, string(u.node.ID), port, msg)
		if cerr := fw.channelErr(); cerr != nil {
			if gctx.Err() != nil {
				return true, nil
			}
			return true, newProcessingError(cerr, PhaseForward, u.node).withMessage(port, msg)
		}
		if perr != nil {
			if gctx.Err() != nil {
				return true, nil
			}
			if uctx.Err() != nil && errors.Is(perr, context.Canceled) {
				sc.log.Debug("All consumers stopped")
				return true, nil
			}
			pe := newProcessingError(perr, PhaseProcess, u.node).withMessage(port, msg)
			if x.cfg.ErrorHandler(uctx, pe) == RecoverySkip {
				sc.log.Warn("Skipping message after processing error", "message", msg, "error", perr)
				return false, nil
			}
			return true, pe
		}
		if ctrl == kprocessor.Stop {
			sc.log.Debug("Stage requested stop", "message", msg)
			return true, nil
		}
		return false, nil
	}

	cases := make([]reflect.SelectCase, 0, len(u.in)+1)
	for _, e := range u.in {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(e.ch)})
	}
	doneIdx := len(cases)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(uctx.Done())})

	exhausted := make([]bool, len(u.in))
	remaining := len(u.in)

	// gate disables the select cases of exhausted and blocked edges. It fails
	// when every live edge waits on another one.
	gate := func() error {
		if !align.active() {
			return nil
		}
		waiting := 0
		for i, e := range u.in {
			switch {
			case exhausted[i]:
				cases[i].Chan = reflect.Value{}
			case align.isBlocked(i):
				cases[i].Chan = reflect.Value{}
				waiting++
			default:
				cases[i].Chan = reflect.ValueOf(e.ch)
			}
		}
		if remaining > 0 && waiting == remaining {
			return newProcessingError(fmt.Errorf("%w: commits of %d inbound edges cannot be aligned",
				kprocessor.ErrInvalidLifecycle, waiting), PhaseProcess, u.node)
		}
		return nil
	}

	for remaining > 0 {
		if uctx.Err() != nil {
			return x.interrupted(gctx, u, sc)
		}

		chosen, recv, ok := reflect.Select(cases)
		if chosen == doneIdx {
			return x.interrupted(gctx, u, sc)
		}
		if !ok {
			exhausted[chosen] = true
			cases[chosen].Chan = reflect.Value{}
			remaining--
			for _, st := range align.closed(chosen) {
				if done, err := process(st.port, st.commit); done || err != nil {
					return err
				}
			}
			if err := gate(); err != nil {
				return err
			}
			continue
		}

		e := u.in[chosen]
		msg := recv.Interface().(kprocessor.Message)

		admitted, err := align.admit(chosen, e.To.Port, msg)
		if err != nil {
			return newProcessingError(err, PhaseProcess, u.node).withMessage(e.To.Port, msg)
		}
		if err := gate(); err != nil {
			return err
		}
		if !admitted {
			continue
		}

		if done, err := process(e.To.Port, msg); done || err != nil {
			return err
		}
	}

	sc.log.Debug("Inputs exhausted")
	return nil
}

// interrupted handles a cancelled unit context. Cancellation of the whole run
// discards buffered input; detachment of all consumers is a graceful stop.
func (x *Executor) interrupted(gctx context.Context, u *unit, sc *stageContext) error {
	if gctx.Err() == nil {
		sc.log.Debug("All consumers stopped")
		return nil
	}
	dropped := 0
	for _, e := range u.in {
		dropped += e.discard()
	}
	if dropped > 0 {
		sc.log.Debug("Discarded buffered messages after cancellation", "count", dropped)
	}
	return nil
}

// handler returns the delivery function of a processor or sink, wrapped by
// the configured interceptor.
func (x *Executor) handler(u *unit, sc *stageContext, fw *forwarder) kprocessor.Handler {
	var h kprocessor.Handler
	if u.node.Type == kdag.NodeTypeProcessor {
		h = func(ctx context.Context, _ string, from kprocessor.PortHandle, msg kprocessor.Message) (kprocessor.Control, error) {
			return u.node.Processor.Process(ctx, from, msg, sc, fw)
		}
	} else {
		h = func(ctx context.Context, _ string, from kprocessor.PortHandle, msg kprocessor.Message) (kprocessor.Control, error) {
			return u.node.Sink.Process(ctx, from, msg, sc)
		}
	}

	if x.cfg.Interceptor == nil {
		return h
	}
	icpt := x.cfg.Interceptor
	return func(ctx context.Context, stage string, from kprocessor.PortHandle, msg kprocessor.Message) (kprocessor.Control, error) {
		return icpt(ctx, stage, from, msg, h)
	}
}

// finish closes the unit's outbound edges and tears the stage down.
func (x *Executor) finish(u *unit, cancel context.CancelFunc, fw *forwarder) error {
	cancel()
	fw.close()
	if err := closeStage(u.node); err != nil {
		return newProcessingError(err, PhaseClose, u.node)
	}
	return nil
}
