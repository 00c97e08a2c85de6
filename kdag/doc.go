// Package kdag builds and validates the stage graph of a pipeline.
//
// # Overview
//
// A graph consists of stages (sources, processors and sinks, see kprocessor)
// and edges. Each edge connects exactly one output port of one stage to
// exactly one input port of another. Several edges may leave the same output
// port (broadcast) and several may enter the same input port (fan-in).
//
// The package separates build-time graph construction from runtime
// execution: a Builder collects stages and edges, Build validates them and
// returns an immutable DAG, and internal/execution turns a DAG into running
// goroutines and channels.
//
// # Basic Usage
//
//	b := kdag.NewBuilder()
//	b.MustAddSource("gen", &processors.GeneratorSource{Total: 1000, TxSize: 10})
//	b.MustAddProcessor("fanout", processors.NewBroadcast(0, 1))
//	b.MustAddSink("print", processors.NewSampleSink())
//	b.MustAddSink("table", processors.NewMaterializeSink("table"))
//
//	b.MustConnect(kdag.Default("gen"), kdag.Default("fanout"))
//	b.MustConnect(kdag.Port("fanout", 0), kdag.Default("print"))
//	b.MustConnect(kdag.Port("fanout", 1), kdag.Default("table"))
//
//	dag := b.MustBuild()
//
// # Validation
//
// Build rejects graphs that contain:
//
//   - cycles (the error names the cycle path, e.g. "a -> b -> a", and the
//     port-level edges closing it)
//   - edges referring to unknown stages or undeclared ports
//   - stages declaring the same port handle twice on one side
//   - edges out of sinks or into sources
//   - processors or sinks that are unreachable from every source (each is
//     reported with its inbound edges)
//   - more than MaxNodesPerDAG stages, paths deeper than MaxDepth or stages
//     with more than MaxChildrenPerNode outgoing edges
//
// Every failure is a *GraphError wrapping one of the package's sentinel
// errors, so callers can test it with errors.Is and errors.As:
//
//	_, err := b.Build()
//	if errors.Is(err, kdag.ErrCycleDetected) { ... }
//
// Validation happens before any stage is initialized.
//
// # Ordering
//
// DAG.TopologicalOrder is deterministic: among stages whose predecessors are
// all ordered, the lexicographically smallest id comes first. The runtime
// initializes stages in this order and tears failed startups down in reverse.
//
// # Thread Safety
//
// Builder is not safe for concurrent use. The DAG returned by Build is
// immutable and safe to share.
package kdag
